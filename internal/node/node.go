// Package node defines the canonical proxy node shared by every ingest
// parser and export renderer.
package node

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Type identifies the proxy protocol of a Node.
type Type string

const (
	TypeVLESS     Type = "vless"
	TypeVMess     Type = "vmess"
	TypeTrojan    Type = "trojan"
	TypeSS        Type = "ss"
	TypeSOCKS5    Type = "socks5"
	TypeHysteria  Type = "hysteria"
	TypeHysteria2 Type = "hysteria2"
)

// Types lists every supported protocol in a stable order.
var Types = []Type{
	TypeVLESS,
	TypeVMess,
	TypeTrojan,
	TypeSS,
	TypeSOCKS5,
	TypeHysteria,
	TypeHysteria2,
}

// ParseType maps a protocol name or alias to its Type.
func ParseType(s string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vless":
		return TypeVLESS, true
	case "vmess":
		return TypeVMess, true
	case "trojan":
		return TypeTrojan, true
	case "ss", "shadowsocks":
		return TypeSS, true
	case "socks5", "socks":
		return TypeSOCKS5, true
	case "hysteria":
		return TypeHysteria, true
	case "hysteria2", "hy2":
		return TypeHysteria2, true
	}
	return "", false
}

// IsValid reports whether t is one of the supported protocols.
func (t Type) IsValid() bool {
	return slices.Contains(Types, t)
}

// DisplayName is the label used for generated node names ("VLESS-3").
func (t Type) DisplayName() string {
	switch t {
	case TypeVLESS:
		return "VLESS"
	case TypeVMess:
		return "VMess"
	case TypeTrojan:
		return "Trojan"
	case TypeSS:
		return "SS"
	case TypeSOCKS5:
		return "SOCKS5"
	case TypeHysteria:
		return "Hysteria"
	case TypeHysteria2:
		return "Hysteria2"
	}
	return strings.ToUpper(string(t))
}

// Node is the canonical, wire-format independent proxy endpoint.
// Only the fields meaningful for Type are populated by parsers and read by
// renderers; the rest stay zero.
type Node struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    Type   `json:"type"`
	Enabled bool   `json:"enabled"`

	Server string `json:"server"`
	Port   uint16 `json:"port"`

	UUID     string `json:"uuid,omitempty"`
	Password string `json:"password,omitempty"`
	Username string `json:"username,omitempty"`
	Method   string `json:"method,omitempty"`
	AlterID  int    `json:"alterId,omitempty"`
	AuthStr  string `json:"authStr,omitempty"`

	Network         string            `json:"network,omitempty"`
	Security        string            `json:"security,omitempty"`
	TLS             bool              `json:"tls,omitempty"`
	SNI             string            `json:"sni,omitempty"`
	ALPN            []string          `json:"alpn,omitempty"`
	Fingerprint     string            `json:"fingerprint,omitempty"`
	Flow            string            `json:"flow,omitempty"`
	Encryption      string            `json:"encryption,omitempty"`
	WSPath          string            `json:"wsPath,omitempty"`
	WSHost          string            `json:"wsHost,omitempty"`
	WSHeaders       map[string]string `json:"wsHeaders,omitempty"`
	GRPCServiceName string            `json:"grpcServiceName,omitempty"`
	Insecure        bool              `json:"insecure,omitempty"`
	PublicKey       string            `json:"publicKey,omitempty"`
	ShortID         string            `json:"shortId,omitempty"`

	Obfs         string `json:"obfs,omitempty"`
	ObfsPassword string `json:"obfsPassword,omitempty"`
	UpMbps       int    `json:"upMbps,omitempty"`
	DownMbps     int    `json:"downMbps,omitempty"`
	Protocol     string `json:"protocol,omitempty"`

	SourceType   string `json:"sourceType,omitempty"`
	SourceNodeID string `json:"sourceNodeId,omitempty"`
	SourceID     string `json:"sourceId,omitempty"`

	Remark    string    `json:"remark,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Source types recorded in Node.SourceType.
const (
	SourceLink  = "xui-link"
	SourcePanel = "xui-panel"
	SourceClash = "clash-yaml"
)

// DefaultPort is the port substituted when a link carries a missing,
// non-numeric or out-of-range port.
func DefaultPort(t Type) uint16 {
	switch t {
	case TypeSOCKS5:
		return 1080
	case TypeSS:
		return 8388
	default:
		return 443
	}
}

// NormalizePort parses raw as a port for a node of type t. Invalid input is
// coerced to DefaultPort(t) instead of being rejected.
func NormalizePort(raw string, t Type) uint16 {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 || n > 65535 {
		return DefaultPort(t)
	}
	return uint16(n)
}

// PortFromInt applies the same policy as NormalizePort to an integer.
func PortFromInt(n int, t Type) uint16 {
	if n < 1 || n > 65535 {
		return DefaultPort(t)
	}
	return uint16(n)
}

// SetWSHeaders records a websocket header set. A Host header fills WSHost
// when it is still empty; every other header lands in WSHeaders.
func (n *Node) SetWSHeaders(headers map[string]string) {
	for k, v := range headers {
		if strings.EqualFold(k, "host") {
			if n.WSHost == "" {
				n.WSHost = v
			}
			continue
		}
		if n.WSHeaders == nil {
			n.WSHeaders = make(map[string]string, len(headers))
		}
		n.WSHeaders[k] = v
	}
}

// RequestHeaders merges WSHeaders with WSHost sent as Host. It returns nil
// when the node carries neither.
func (n *Node) RequestHeaders() map[string]string {
	if n.WSHost == "" && len(n.WSHeaders) == 0 {
		return nil
	}
	out := make(map[string]string, len(n.WSHeaders)+1)
	for k, v := range n.WSHeaders {
		if !strings.EqualFold(k, "host") {
			out[k] = v
		}
	}
	if n.WSHost != "" {
		out["Host"] = n.WSHost
	}
	return out
}

// NewID returns "<type>-<unix millis>-<index>", unique within one batch.
func NewID(t Type, at time.Time, index int) string {
	return fmt.Sprintf("%s-%d-%d", t, at.UnixMilli(), index)
}

// Valid checks that the credentials required by the node's protocol are present.
func (n *Node) Valid() error {
	if !n.Type.IsValid() {
		return fmt.Errorf("node %q: unsupported type %q", n.Name, n.Type)
	}
	if n.Port == 0 {
		return fmt.Errorf("node %q: port must be 1-65535", n.Name)
	}
	switch n.Type {
	case TypeVLESS, TypeVMess:
		if n.UUID == "" {
			return fmt.Errorf("node %q: %s requires uuid", n.Name, n.Type)
		}
	case TypeTrojan, TypeHysteria2:
		if n.Password == "" {
			return fmt.Errorf("node %q: %s requires password", n.Name, n.Type)
		}
	case TypeSS:
		if n.Method == "" || n.Password == "" {
			return fmt.Errorf("node %q: ss requires method and password", n.Name)
		}
	}
	return nil
}

// ErrNoServer marks nodes whose server is still unset, such as panel nodes
// before the caller assigns the panel host.
var ErrNoServer = errors.New("node has no server")

// RequireServer returns ErrNoServer when the node cannot be dialled yet.
func (n *Node) RequireServer() error {
	if strings.TrimSpace(n.Server) == "" {
		return ErrNoServer
	}
	return nil
}

// HasTag reports whether tag is attached to the node (case-insensitive).
func (n *Node) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
