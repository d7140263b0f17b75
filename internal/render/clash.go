package render

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Resinat/Prism/internal/node"
)

const clashGroupName = "PROXY"

type clashConfig struct {
	Proxies     []clashProxy `yaml:"proxies"`
	ProxyGroups []clashGroup `yaml:"proxy-groups"`
	Rules       []string     `yaml:"rules"`
}

type clashGroup struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Proxies []string `yaml:"proxies"`
}

// clashProxy lists fields in the order clients print them. Zero values are
// omitted so strict parsers never see empty placeholders.
type clashProxy struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Server string `yaml:"server"`
	Port   uint16 `yaml:"port"`

	Cipher   string `yaml:"cipher,omitempty"`
	Password string `yaml:"password,omitempty"`
	UUID     string `yaml:"uuid,omitempty"`
	AlterID  *int   `yaml:"alterId,omitempty"`
	Username string `yaml:"username,omitempty"`
	AuthStr  string `yaml:"auth-str,omitempty"`
	Protocol string `yaml:"protocol,omitempty"`
	Up       int    `yaml:"up,omitempty"`
	Down     int    `yaml:"down,omitempty"`
	UDP      bool   `yaml:"udp,omitempty"`

	TLS               bool     `yaml:"tls,omitempty"`
	ServerName        string   `yaml:"servername,omitempty"`
	SNI               string   `yaml:"sni,omitempty"`
	SkipCertVerify    bool     `yaml:"skip-cert-verify,omitempty"`
	ALPN              []string `yaml:"alpn,omitempty"`
	Flow              string   `yaml:"flow,omitempty"`
	ClientFingerprint string   `yaml:"client-fingerprint,omitempty"`
	Obfs              string   `yaml:"obfs,omitempty"`
	ObfsPassword      string   `yaml:"obfs-password,omitempty"`

	Network     string            `yaml:"network,omitempty"`
	WSOpts      *clashWSOpts      `yaml:"ws-opts,omitempty"`
	GRPCOpts    *clashGRPCOpts    `yaml:"grpc-opts,omitempty"`
	RealityOpts *clashRealityOpts `yaml:"reality-opts,omitempty"`
}

type clashWSOpts struct {
	Path    string            `yaml:"path,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

type clashGRPCOpts struct {
	ServiceName string `yaml:"grpc-service-name,omitempty"`
}

type clashRealityOpts struct {
	PublicKey string `yaml:"public-key,omitempty"`
	ShortID   string `yaml:"short-id,omitempty"`
}

func renderClash(nodes []node.Node) ([]byte, error) {
	exported := exportable(nodes)
	names := uniqueNames(exported)

	cfg := clashConfig{
		Proxies: make([]clashProxy, 0, len(exported)),
		Rules:   []string{"MATCH," + clashGroupName},
	}
	for i := range exported {
		cfg.Proxies = append(cfg.Proxies, clashProxyFor(&exported[i], names[i]))
	}
	group := clashGroup{Name: clashGroupName, Type: "select", Proxies: names}
	if len(group.Proxies) == 0 {
		group.Proxies = []string{"DIRECT"}
	}
	cfg.ProxyGroups = []clashGroup{group}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("render: encode clash: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("render: encode clash: %w", err)
	}
	return buf.Bytes(), nil
}

func clashProxyFor(n *node.Node, name string) clashProxy {
	p := clashProxy{
		Name:   name,
		Type:   string(n.Type),
		Server: n.Server,
		Port:   n.Port,
	}
	switch n.Type {
	case node.TypeSS:
		p.Cipher = n.Method
		p.Password = n.Password
		p.UDP = true
	case node.TypeVMess:
		p.UUID = n.UUID
		aid := n.AlterID
		p.AlterID = &aid
		p.Cipher = firstNonEmpty(n.Method, "auto")
		p.UDP = true
		clashStream(&p, n)
		p.ServerName = n.SNI
	case node.TypeVLESS:
		p.UUID = n.UUID
		p.Flow = n.Flow
		p.UDP = true
		clashStream(&p, n)
		p.ServerName = n.SNI
		if n.Security == "reality" {
			p.TLS = true
			p.RealityOpts = &clashRealityOpts{PublicKey: n.PublicKey, ShortID: n.ShortID}
		}
	case node.TypeTrojan:
		p.Password = n.Password
		p.UDP = true
		clashStream(&p, n)
		// Trojan is always TLS in Clash; the flag is not part of its schema.
		p.TLS = false
		p.SNI = firstNonEmpty(n.SNI, n.Server)
	case node.TypeSOCKS5:
		p.Username = n.Username
		p.Password = n.Password
		p.UDP = true
	case node.TypeHysteria2:
		p.Password = n.Password
		p.SNI = n.SNI
		p.SkipCertVerify = n.Insecure
		p.ALPN = n.ALPN
		p.Obfs = n.Obfs
		p.ObfsPassword = n.ObfsPassword
	case node.TypeHysteria:
		p.AuthStr = n.AuthStr
		p.Protocol = n.Protocol
		p.Up = n.UpMbps
		p.Down = n.DownMbps
		p.SNI = n.SNI
		p.SkipCertVerify = n.Insecure
		p.ALPN = n.ALPN
		p.Obfs = n.Obfs
	}
	return p
}

// clashStream fills the v2ray transport and TLS fields.
func clashStream(p *clashProxy, n *node.Node) {
	if n.Network != "" && n.Network != "tcp" {
		p.Network = n.Network
	}
	p.TLS = n.TLS
	p.SkipCertVerify = n.Insecure
	p.ALPN = n.ALPN
	p.ClientFingerprint = n.Fingerprint
	switch n.Network {
	case "ws":
		if headers := n.RequestHeaders(); n.WSPath != "" || headers != nil {
			p.WSOpts = &clashWSOpts{Path: n.WSPath, Headers: headers}
		}
	case "grpc":
		if n.GRPCServiceName != "" {
			p.GRPCOpts = &clashGRPCOpts{ServiceName: n.GRPCServiceName}
		}
	}
}
