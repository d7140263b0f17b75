package panel

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Resinat/Prism/internal/fieldmap"
	"github.com/Resinat/Prism/internal/node"
)

// Parser converts inbounds into nodes. The zero value is usable.
type Parser struct {
	Now func() time.Time
}

// NewParser returns a Parser stamping nodes with time.Now.
func NewParser() *Parser {
	return &Parser{Now: time.Now}
}

func (p *Parser) now() time.Time {
	if p == nil || p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// ParseInbound converts one inbound. Multi-client protocols yield one node
// per client, shadowsocks yields one node per inbound and unknown protocols
// yield none. A malformed inbound is logged and yields none.
//
// Server is left empty: the inbound does not know the panel's public
// address, the caller fills it in.
func (p *Parser) ParseInbound(in Inbound) []node.Node {
	nodes, _ := p.parseInbound(in, 0)
	return nodes
}

// ParseInbounds converts every inbound in order. A bad inbound does not
// affect the others.
func (p *Parser) ParseInbounds(inbounds []Inbound) []node.Node {
	var out []node.Node
	for _, in := range inbounds {
		nodes, _ := p.parseInbound(in, len(out))
		out = append(out, nodes...)
	}
	return out
}

// parseInbound converts in, numbering generated ids from base. The error is
// returned for tests; callers treat it as already logged.
func (p *Parser) parseInbound(in Inbound, base int) ([]node.Node, error) {
	nodes, err := p.convert(in, base)
	if err != nil {
		logrus.Warnf("[panel] inbound %d (%q, %s): %v", in.ID, in.Remark, in.Protocol, err)
		return nil, err
	}
	return nodes, nil
}

func (p *Parser) convert(in Inbound, base int) ([]node.Node, error) {
	var typ node.Type
	switch strings.ToLower(strings.TrimSpace(in.Protocol)) {
	case "vless":
		typ = node.TypeVLESS
	case "vmess":
		typ = node.TypeVMess
	case "trojan":
		typ = node.TypeTrojan
	case "shadowsocks":
		typ = node.TypeSS
	default:
		logrus.Debugf("[panel] inbound %d: skip unsupported protocol %q", in.ID, in.Protocol)
		return nil, nil
	}

	settings, err := ensureParsed(in.Settings)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	if typ == node.TypeSS {
		return []node.Node{p.shadowsocks(in, settings, base)}, nil
	}

	stream, err := ensureParsed(in.StreamSettings)
	if err != nil {
		return nil, fmt.Errorf("streamSettings: %w", err)
	}
	rawClients, ok := fieldmap.Slice(settings, "clients")
	if !ok {
		if _, present := settings["clients"]; present {
			return nil, fmt.Errorf("settings.clients is not an array")
		}
		return nil, nil
	}

	now := p.now()
	remark := fieldmap.FirstNonEmpty(strings.TrimSpace(in.Remark), typ.DisplayName())
	nodes := make([]node.Node, 0, len(rawClients))
	for i, raw := range rawClients {
		client, ok := fieldmap.Map(map[string]any{"c": raw}, "c")
		if !ok {
			logrus.Debugf("[panel] inbound %d: client %d is not an object", in.ID, i+1)
			continue
		}
		n, ok := clientNode(typ, in, settings, client)
		if !ok {
			logrus.Debugf("[panel] inbound %d: client %d has no credential", in.ID, i+1)
			continue
		}
		applyStream(&n, typ, stream)

		label := strings.TrimSpace(fieldmap.String(client, "email"))
		if label == "" {
			label = strconv.Itoa(i + 1)
		}
		n.Name = remark + "-" + label
		n.Enabled = in.Enable
		if enable, ok := fieldmap.Bool(client, "enable"); ok && !enable {
			n.Enabled = false
		}
		stamp(&n, now, base+len(nodes))
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// clientNode builds the credential part of a node and its dedup key.
func clientNode(typ node.Type, in Inbound, settings, client map[string]any) (node.Node, bool) {
	n := node.Node{
		Type: typ,
		Port: node.PortFromInt(in.Port, typ),
	}
	var identity string
	switch typ {
	case node.TypeVLESS:
		n.UUID = strings.TrimSpace(fieldmap.String(client, "id"))
		n.Flow = fieldmap.String(client, "flow")
		n.Encryption = fieldmap.FirstNonEmpty(fieldmap.String(settings, "decryption"), "none")
		identity = n.UUID
	case node.TypeVMess:
		n.UUID = strings.TrimSpace(fieldmap.String(client, "id"))
		n.Method = fieldmap.FirstNonEmpty(fieldmap.String(client, "security"), "auto")
		if aid, ok := fieldmap.Int(client, "alterId"); ok && aid > 0 {
			n.AlterID = aid
		}
		identity = n.UUID
	case node.TypeTrojan:
		n.Password = fieldmap.FirstNonEmpty(fieldmap.String(client, "id"), fieldmap.String(client, "password"))
		identity = n.Password
	}
	if identity == "" {
		return node.Node{}, false
	}
	n.SourceNodeID = fmt.Sprintf("%d_%s", in.ID, identity)
	return n, true
}

func (p *Parser) shadowsocks(in Inbound, settings map[string]any, base int) node.Node {
	n := node.Node{
		Type:         node.TypeSS,
		Name:         fieldmap.FirstNonEmpty(strings.TrimSpace(in.Remark), node.TypeSS.DisplayName()),
		Port:         node.PortFromInt(in.Port, node.TypeSS),
		Method:       strings.TrimSpace(fieldmap.String(settings, "method")),
		Password:     fieldmap.String(settings, "password"),
		SourceNodeID: fmt.Sprintf("%d_ss", in.ID),
		Enabled:      in.Enable,
	}
	stamp(&n, p.now(), base)
	return n
}

func stamp(n *node.Node, now time.Time, index int) {
	n.ID = node.NewID(n.Type, now, index)
	n.SourceType = node.SourcePanel
	n.CreatedAt = now
	n.UpdatedAt = now
}

// applyStream copies transport and TLS settings. Only vless reads the
// reality block.
func applyStream(n *node.Node, typ node.Type, stream map[string]any) {
	n.Network = strings.ToLower(fieldmap.FirstNonEmpty(fieldmap.String(stream, "network"), "tcp"))
	n.Security = strings.ToLower(fieldmap.FirstNonEmpty(fieldmap.String(stream, "security"), "none"))
	n.TLS = n.Security == "tls"

	tlsSettings, _ := fieldmap.Map(stream, "tlsSettings")
	tlsClient, _ := fieldmap.Map(tlsSettings, "settings")
	n.SNI = fieldmap.String(tlsSettings, "serverName")
	n.ALPN = fieldmap.Strings(tlsSettings, "alpn")
	n.Fingerprint = fieldmap.String(tlsClient, "fingerprint")
	n.Insecure, _ = fieldmap.Bool(tlsClient, "allowInsecure")

	if typ == node.TypeVLESS {
		reality, _ := fieldmap.Map(stream, "realitySettings")
		realityClient, _ := fieldmap.Map(reality, "settings")
		n.SNI = fieldmap.FirstNonEmpty(
			n.SNI,
			fieldmap.String(reality, "serverName"),
			fieldmap.String(realityClient, "serverName"),
			first(fieldmap.Strings(reality, "serverNames")),
		)
		if n.Security == "reality" {
			n.PublicKey = fieldmap.FirstNonEmpty(fieldmap.String(reality, "publicKey"), fieldmap.String(realityClient, "publicKey"))
			n.ShortID = first(fieldmap.Strings(reality, "shortIds"))
			n.Fingerprint = fieldmap.FirstNonEmpty(n.Fingerprint, fieldmap.String(realityClient, "fingerprint"))
		}
	}

	if ws, ok := fieldmap.Map(stream, "wsSettings"); ok {
		n.WSPath = fieldmap.String(ws, "path")
		n.WSHost = fieldmap.String(ws, "host")
		n.SetWSHeaders(fieldmap.StringMap(ws, "headers"))
	}
	if grpc, ok := fieldmap.Map(stream, "grpcSettings"); ok {
		n.GRPCServiceName = fieldmap.String(grpc, "serviceName")
	}
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
