package render

import (
	"encoding/base64"
	"encoding/json"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Resinat/Prism/internal/node"
)

// linkStyle captures the small dialect differences between link consumers.
type linkStyle struct {
	hysteria2Scheme string
	insecureKey     string
}

var (
	v2rayStyle        = linkStyle{hysteria2Scheme: "hy2", insecureKey: "insecure"}
	shadowrocketStyle = linkStyle{hysteria2Scheme: "hysteria2", insecureKey: "allowInsecure"}
)

// Link renders n as a share link that parses back to the same node.
// It reports false for nodes that cannot be exported.
func Link(n node.Node) (string, bool) {
	return v2rayStyle.link(&n)
}

func (s linkStyle) link(n *node.Node) (string, bool) {
	if !renderable(n) {
		logrus.Debugf("[render] skip node %q: type %q server %q", n.Name, n.Type, n.Server)
		return "", false
	}
	switch n.Type {
	case node.TypeVLESS:
		return s.vless(n), true
	case node.TypeVMess:
		return vmess(n), true
	case node.TypeTrojan:
		return s.trojan(n), true
	case node.TypeSS:
		return ss(n), true
	case node.TypeSOCKS5:
		return socks5(n), true
	case node.TypeHysteria2:
		return s.hysteria2(n), true
	case node.TypeHysteria:
		return hysteria(n), true
	}
	return "", false
}

// escape percent-encodes s for the userinfo and fragment parts. Spaces
// become %20 since parsers do not treat '+' as a space there.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func hostPort(n *node.Node) string {
	return net.JoinHostPort(n.Server, strconv.Itoa(int(n.Port)))
}

func assemble(scheme, userinfo string, n *node.Node, q url.Values) string {
	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	if userinfo != "" {
		b.WriteString(userinfo)
		b.WriteByte('@')
	}
	b.WriteString(hostPort(n))
	if len(q) > 0 {
		b.WriteByte('?')
		b.WriteString(q.Encode())
	}
	if n.Name != "" {
		b.WriteByte('#')
		b.WriteString(escape(n.Name))
	}
	return b.String()
}

func set(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func (s linkStyle) stream(q url.Values, n *node.Node) {
	set(q, "type", n.Network)
	set(q, "sni", n.SNI)
	set(q, "alpn", strings.Join(n.ALPN, ","))
	set(q, "fp", n.Fingerprint)
	set(q, "path", n.WSPath)
	set(q, "host", n.WSHost)
	set(q, "serviceName", n.GRPCServiceName)
	if n.Insecure {
		q.Set(s.insecureKey, "1")
	}
}

func tlsSecurity(n *node.Node, fallback string) string {
	if n.Security != "" {
		return n.Security
	}
	if n.TLS {
		return "tls"
	}
	return fallback
}

func (s linkStyle) vless(n *node.Node) string {
	q := url.Values{}
	s.stream(q, n)
	q.Set("encryption", firstNonEmpty(n.Encryption, "none"))
	set(q, "flow", n.Flow)
	set(q, "security", tlsSecurity(n, ""))
	set(q, "pbk", n.PublicKey)
	set(q, "sid", n.ShortID)
	return assemble("vless", escape(n.UUID), n, q)
}

// vmessPayload is the v2rayN JSON share format. Field order follows the
// struct so the payload is stable.
type vmessPayload struct {
	V    string `json:"v"`
	PS   string `json:"ps"`
	Add  string `json:"add"`
	Port string `json:"port"`
	ID   string `json:"id"`
	Aid  string `json:"aid"`
	Scy  string `json:"scy"`
	Net  string `json:"net"`
	Type string `json:"type"`
	Host string `json:"host"`
	Path string `json:"path"`
	TLS  string `json:"tls"`
	SNI  string `json:"sni,omitempty"`
	ALPN string `json:"alpn,omitempty"`
	FP   string `json:"fp,omitempty"`
}

func vmess(n *node.Node) string {
	p := vmessPayload{
		V:    "2",
		PS:   n.Name,
		Add:  n.Server,
		Port: strconv.Itoa(int(n.Port)),
		ID:   n.UUID,
		Aid:  strconv.Itoa(n.AlterID),
		Scy:  firstNonEmpty(n.Method, "auto"),
		Net:  firstNonEmpty(n.Network, "tcp"),
		Type: "none",
		Host: n.WSHost,
		Path: n.WSPath,
		TLS:  tlsSecurity(n, ""),
		SNI:  n.SNI,
		ALPN: strings.Join(n.ALPN, ","),
		FP:   n.Fingerprint,
	}
	if p.Net == "grpc" {
		p.Path = n.GRPCServiceName
	}
	raw, _ := json.Marshal(p)
	return "vmess://" + base64.StdEncoding.EncodeToString(raw)
}

func (s linkStyle) trojan(n *node.Node) string {
	q := url.Values{}
	s.stream(q, n)
	q.Set("security", tlsSecurity(n, "tls"))
	q.Set("sni", firstNonEmpty(n.SNI, n.Server))
	return assemble("trojan", escape(n.Password), n, q)
}

// ss renders SIP002 with base64url userinfo.
func ss(n *node.Node) string {
	userinfo := base64.RawURLEncoding.EncodeToString([]byte(n.Method + ":" + n.Password))
	return assemble("ss", userinfo, n, nil)
}

func socks5(n *node.Node) string {
	userinfo := ""
	if n.Username != "" || n.Password != "" {
		userinfo = escape(n.Username) + ":" + escape(n.Password)
	}
	return assemble("socks5", userinfo, n, nil)
}

func (s linkStyle) hysteria2(n *node.Node) string {
	q := url.Values{}
	set(q, "sni", n.SNI)
	set(q, "alpn", strings.Join(n.ALPN, ","))
	set(q, "obfs", n.Obfs)
	set(q, "obfs-password", n.ObfsPassword)
	if n.Insecure {
		q.Set("insecure", "1")
	}
	return assemble(s.hysteria2Scheme, escape(n.Password), n, q)
}

func hysteria(n *node.Node) string {
	q := url.Values{}
	set(q, "auth", n.AuthStr)
	set(q, "protocol", n.Protocol)
	set(q, "peer", n.SNI)
	set(q, "alpn", strings.Join(n.ALPN, ","))
	set(q, "obfs", n.Obfs)
	q.Set("upmbps", strconv.Itoa(n.UpMbps))
	q.Set("downmbps", strconv.Itoa(n.DownMbps))
	if n.Insecure {
		q.Set("insecure", "1")
	}
	return assemble("hysteria", "", n, q)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
