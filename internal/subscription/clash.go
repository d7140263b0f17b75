package subscription

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Resinat/Prism/internal/fieldmap"
	"github.com/Resinat/Prism/internal/node"
)

func looksLikeClashYAML(text string) bool {
	lower := strings.ToLower(text)
	return strings.HasPrefix(lower, "proxies:") || strings.Contains(lower, "\nproxies:")
}

func (p *Parser) parseClashYAML(text string) ([]node.Node, error) {
	var cfg struct {
		Proxies []map[string]any `yaml:"proxies"`
	}
	if err := yaml.Unmarshal([]byte(text), &cfg); err != nil {
		return nil, fmt.Errorf("subscription: unmarshal clash yaml: %w", err)
	}

	cp := &Parser{Now: p.now, SourceType: node.SourceClash}
	if p != nil && p.SourceType != "" {
		cp.SourceType = p.SourceType
	}
	nodes := make([]node.Node, 0, len(cfg.Proxies))
	for i, proxy := range cfg.Proxies {
		n, ok := convertClashProxy(proxy)
		if !ok {
			continue
		}
		nodes = append(nodes, cp.finish(n, i))
	}
	return nodes, nil
}

// convertClashProxy maps one Clash proxy entry onto a node. Entries of
// unsupported types or without a server are dropped.
func convertClashProxy(proxy map[string]any) (node.Node, bool) {
	typ, ok := node.ParseType(fieldmap.String(proxy, "type"))
	server := strings.TrimSpace(fieldmap.String(proxy, "server"))
	if !ok || server == "" {
		return node.Node{}, false
	}
	n := node.Node{
		Type:   typ,
		Name:   strings.TrimSpace(fieldmap.String(proxy, "name")),
		Server: server,
		Port:   node.NormalizePort(fieldmap.String(proxy, "port"), typ),
	}

	switch typ {
	case node.TypeSS:
		n.Method = strings.TrimSpace(fieldmap.FirstNonEmpty(fieldmap.String(proxy, "cipher"), fieldmap.String(proxy, "method")))
		n.Password = fieldmap.String(proxy, "password")
	case node.TypeVMess:
		n.UUID = strings.TrimSpace(fieldmap.String(proxy, "uuid"))
		n.Method = fieldmap.FirstNonEmpty(fieldmap.String(proxy, "cipher"), "auto")
		if aid, ok := fieldmap.Int(proxy, "alterId", "alter_id", "aid"); ok {
			n.AlterID = aid
		}
		applyClashStream(&n, proxy)
	case node.TypeVLESS:
		n.UUID = strings.TrimSpace(fieldmap.String(proxy, "uuid"))
		n.Flow = fieldmap.String(proxy, "flow")
		n.Encryption = "none"
		applyClashStream(&n, proxy)
		if reality, ok := fieldmap.Map(proxy, "reality-opts"); ok {
			n.Security = "reality"
			n.TLS = false
			n.PublicKey = fieldmap.String(reality, "public-key")
			n.ShortID = fieldmap.String(reality, "short-id")
		}
	case node.TypeTrojan:
		n.Password = fieldmap.String(proxy, "password")
		applyClashStream(&n, proxy)
		n.TLS = true
		n.Security = "tls"
		if n.SNI == "" {
			n.SNI = server
		}
	case node.TypeSOCKS5:
		n.Username = fieldmap.String(proxy, "username")
		n.Password = fieldmap.String(proxy, "password")
	case node.TypeHysteria2:
		n.Password = fieldmap.FirstNonEmpty(fieldmap.String(proxy, "password"), fieldmap.String(proxy, "auth"))
		n.TLS = true
		n.SNI = fieldmap.FirstNonEmpty(fieldmap.String(proxy, "sni"), fieldmap.String(proxy, "peer"))
		n.Insecure, _ = fieldmap.Bool(proxy, "skip-cert-verify")
		n.ALPN = fieldmap.Strings(proxy, "alpn")
		n.Obfs = fieldmap.String(proxy, "obfs")
		n.ObfsPassword = fieldmap.String(proxy, "obfs-password")
	case node.TypeHysteria:
		n.AuthStr = fieldmap.String(proxy, "auth-str", "auth_str", "auth")
		n.Protocol = fieldmap.String(proxy, "protocol")
		n.UpMbps = atoiDefault(fieldmap.String(proxy, "up"), 10)
		n.DownMbps = atoiDefault(fieldmap.String(proxy, "down"), 50)
		n.TLS = true
		n.SNI = fieldmap.FirstNonEmpty(fieldmap.String(proxy, "sni"), fieldmap.String(proxy, "peer"))
		n.Insecure, _ = fieldmap.Bool(proxy, "skip-cert-verify")
		n.ALPN = fieldmap.Strings(proxy, "alpn")
		n.Obfs = fieldmap.String(proxy, "obfs")
	}
	return n, true
}

func applyClashStream(n *node.Node, proxy map[string]any) {
	n.Network = strings.ToLower(fieldmap.FirstNonEmpty(fieldmap.String(proxy, "network"), "tcp"))
	if tls, ok := fieldmap.Bool(proxy, "tls"); ok && tls {
		n.TLS = true
		n.Security = "tls"
	}
	n.SNI = fieldmap.FirstNonEmpty(fieldmap.String(proxy, "servername"), fieldmap.String(proxy, "sni"))
	n.Insecure, _ = fieldmap.Bool(proxy, "skip-cert-verify")
	n.ALPN = fieldmap.Strings(proxy, "alpn")
	n.Fingerprint = fieldmap.String(proxy, "client-fingerprint")
	if ws, ok := fieldmap.Map(proxy, "ws-opts"); ok {
		n.WSPath = fieldmap.String(ws, "path")
		n.SetWSHeaders(fieldmap.StringMap(ws, "headers"))
	}
	if grpc, ok := fieldmap.Map(proxy, "grpc-opts"); ok {
		n.GRPCServiceName = fieldmap.String(grpc, "grpc-service-name")
	}
}
