package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	C "github.com/sagernet/sing-box/constant"
	"github.com/sagernet/sing-box/include"
	"github.com/sagernet/sing-box/option"
	sJson "github.com/sagernet/sing/common/json"
	"github.com/sagernet/sing/common/json/badoption"

	"github.com/Resinat/Prism/internal/node"
)

const (
	singBoxSelectorTag = "proxy"
	singBoxDirectTag   = "direct"
)

// singBoxContext carries the protocol registries the option types need to
// encode themselves.
var singBoxContext = sync.OnceValue(func() context.Context {
	return include.Context(context.Background())
})

func renderSingBox(nodes []node.Node) ([]byte, error) {
	exported := exportable(nodes)
	tags := uniqueNames(exported)

	outbounds := make([]option.Outbound, 0, len(exported)+2)
	if len(tags) > 0 {
		outbounds = append(outbounds, option.Outbound{
			Type: C.TypeSelector,
			Tag:  singBoxSelectorTag,
			Options: &option.SelectorOutboundOptions{
				Outbounds: tags,
				Default:   tags[0],
			},
		})
	}
	for i := range exported {
		outbounds = append(outbounds, singBoxOutbound(&exported[i], tags[i]))
	}
	outbounds = append(outbounds, option.Outbound{
		Type:    C.TypeDirect,
		Tag:     singBoxDirectTag,
		Options: &option.DirectOutboundOptions{},
	})

	raw, err := sJson.MarshalContext(singBoxContext(), option.Options{Outbounds: outbounds})
	if err != nil {
		return nil, fmt.Errorf("render: encode sing-box: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("render: indent sing-box: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func singBoxOutbound(n *node.Node, tag string) option.Outbound {
	server := option.ServerOptions{Server: n.Server, ServerPort: n.Port}
	switch n.Type {
	case node.TypeVLESS:
		return option.Outbound{Type: C.TypeVLESS, Tag: tag, Options: &option.VLESSOutboundOptions{
			ServerOptions:               server,
			UUID:                        n.UUID,
			Flow:                        n.Flow,
			OutboundTLSOptionsContainer: option.OutboundTLSOptionsContainer{TLS: streamTLS(n)},
			Transport:                   singBoxTransport(n),
		}}
	case node.TypeVMess:
		return option.Outbound{Type: C.TypeVMess, Tag: tag, Options: &option.VMessOutboundOptions{
			ServerOptions:               server,
			UUID:                        n.UUID,
			Security:                    firstNonEmpty(n.Method, "auto"),
			AlterId:                     n.AlterID,
			OutboundTLSOptionsContainer: option.OutboundTLSOptionsContainer{TLS: streamTLS(n)},
			Transport:                   singBoxTransport(n),
		}}
	case node.TypeTrojan:
		tls := streamTLS(n)
		if tls == nil && n.Security != "none" {
			tls = &option.OutboundTLSOptions{Enabled: true, ServerName: firstNonEmpty(n.SNI, n.Server), Insecure: n.Insecure}
		}
		return option.Outbound{Type: C.TypeTrojan, Tag: tag, Options: &option.TrojanOutboundOptions{
			ServerOptions:               server,
			Password:                    n.Password,
			OutboundTLSOptionsContainer: option.OutboundTLSOptionsContainer{TLS: tls},
			Transport:                   singBoxTransport(n),
		}}
	case node.TypeSS:
		return option.Outbound{Type: C.TypeShadowsocks, Tag: tag, Options: &option.ShadowsocksOutboundOptions{
			ServerOptions: server,
			Method:        n.Method,
			Password:      n.Password,
		}}
	case node.TypeSOCKS5:
		return option.Outbound{Type: C.TypeSOCKS, Tag: tag, Options: &option.SOCKSOutboundOptions{
			ServerOptions: server,
			Version:       "5",
			Username:      n.Username,
			Password:      n.Password,
		}}
	case node.TypeHysteria2:
		opts := &option.Hysteria2OutboundOptions{
			ServerOptions:               server,
			Password:                    n.Password,
			OutboundTLSOptionsContainer: option.OutboundTLSOptionsContainer{TLS: quicTLS(n)},
		}
		if n.Obfs != "" {
			opts.Obfs = &option.Hysteria2Obfs{Type: n.Obfs, Password: n.ObfsPassword}
		}
		return option.Outbound{Type: C.TypeHysteria2, Tag: tag, Options: opts}
	default: // node.TypeHysteria
		return option.Outbound{Type: C.TypeHysteria, Tag: tag, Options: &option.HysteriaOutboundOptions{
			ServerOptions:               server,
			AuthString:                  n.AuthStr,
			UpMbps:                      n.UpMbps,
			DownMbps:                    n.DownMbps,
			Obfs:                        n.Obfs,
			OutboundTLSOptionsContainer: option.OutboundTLSOptionsContainer{TLS: quicTLS(n)},
		}}
	}
}

// streamTLS returns the TLS block for v2ray-family nodes, nil when the node
// is plaintext.
func streamTLS(n *node.Node) *option.OutboundTLSOptions {
	reality := n.Security == "reality"
	if !n.TLS && !reality && n.Security != "tls" {
		return nil
	}
	tls := &option.OutboundTLSOptions{
		Enabled:    true,
		ServerName: n.SNI,
		Insecure:   n.Insecure,
	}
	if len(n.ALPN) > 0 {
		tls.ALPN = badoption.Listable[string](n.ALPN)
	}
	fp := n.Fingerprint
	if reality {
		tls.Reality = &option.OutboundRealityOptions{Enabled: true, PublicKey: n.PublicKey, ShortID: n.ShortID}
		if fp == "" {
			fp = "chrome"
		}
	}
	if fp != "" {
		tls.UTLS = &option.OutboundUTLSOptions{Enabled: true, Fingerprint: fp}
	}
	return tls
}

func quicTLS(n *node.Node) *option.OutboundTLSOptions {
	tls := &option.OutboundTLSOptions{
		Enabled:    true,
		ServerName: firstNonEmpty(n.SNI, n.Server),
		Insecure:   n.Insecure,
	}
	if len(n.ALPN) > 0 {
		tls.ALPN = badoption.Listable[string](n.ALPN)
	}
	return tls
}

func singBoxTransport(n *node.Node) *option.V2RayTransportOptions {
	switch n.Network {
	case "ws":
		t := &option.V2RayTransportOptions{Type: C.V2RayTransportTypeWebsocket}
		t.WebsocketOptions.Path = n.WSPath
		if headers := n.RequestHeaders(); headers != nil {
			t.WebsocketOptions.Headers = make(badoption.HTTPHeader, len(headers))
			for k, v := range headers {
				t.WebsocketOptions.Headers[k] = badoption.Listable[string]{v}
			}
		}
		return t
	case "grpc":
		t := &option.V2RayTransportOptions{Type: C.V2RayTransportTypeGRPC}
		t.GRPCOptions.ServiceName = n.GRPCServiceName
		return t
	case "http", "h2":
		t := &option.V2RayTransportOptions{Type: C.V2RayTransportTypeHTTP}
		t.HTTPOptions.Path = n.WSPath
		if n.WSHost != "" {
			t.HTTPOptions.Host = badoption.Listable[string]{n.WSHost}
		}
		return t
	case "httpupgrade":
		t := &option.V2RayTransportOptions{Type: C.V2RayTransportTypeHTTPUpgrade}
		t.HTTPUpgradeOptions.Path = n.WSPath
		t.HTTPUpgradeOptions.Host = n.WSHost
		return t
	}
	return nil
}
