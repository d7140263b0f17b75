// Package subscription decodes proxy share links and whole subscription
// bodies into canonical nodes.
package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Resinat/Prism/internal/fieldmap"
	"github.com/Resinat/Prism/internal/node"
)

// Parser turns links into nodes. The zero value is usable: it stamps nodes
// with time.Now and the "xui-link" source type.
type Parser struct {
	// Now supplies the timestamp embedded in generated ids and bookkeeping
	// fields. Tests pin it for reproducible ids.
	Now func() time.Time
	// SourceType is recorded on every produced node.
	SourceType string
}

// NewParser returns a Parser for links of the given source type.
func NewParser(sourceType string) *Parser {
	return &Parser{Now: time.Now, SourceType: sourceType}
}

func (p *Parser) now() time.Time {
	if p == nil || p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func (p *Parser) sourceType() string {
	if p == nil || p.SourceType == "" {
		return node.SourceLink
	}
	return p.SourceType
}

// ParseLink decodes a single share link. index is the 0-based position of
// the link in its batch; it feeds the generated id and default name.
//
// Lines without "://" return ErrNotLink and unknown schemes return
// *UnsupportedSchemeError; both are skips (see IsSkip). Any other error is
// a *LinkError.
func (p *Parser) ParseLink(line string, index int) (node.Node, error) {
	line = strings.TrimSpace(line)
	if !strings.Contains(line, "://") {
		return node.Node{}, ErrNotLink
	}
	parts, _ := splitURI(line)

	var (
		n   node.Node
		err error
	)
	switch parts.scheme {
	case "vless":
		n, err = parseVLESS(parts)
	case "vmess":
		n, err = parseVMess(line)
	case "trojan":
		n, err = parseTrojan(parts)
	case "ss":
		n, err = parseSS(line, parts)
	case "socks5", "socks":
		n, err = parseSOCKS5(parts)
	case "hy2", "hysteria2":
		n, err = parseHysteria2(parts)
	case "hysteria":
		n, err = parseHysteria(parts)
	default:
		return node.Node{}, &UnsupportedSchemeError{Scheme: parts.scheme}
	}
	if err != nil {
		var linkErr *LinkError
		if errors.As(err, &linkErr) {
			return node.Node{}, err
		}
		return node.Node{}, &LinkError{Scheme: parts.scheme, Err: err}
	}
	return p.finish(n, index), nil
}

// finish fills the fields every parser branch shares.
func (p *Parser) finish(n node.Node, index int) node.Node {
	now := p.now()
	if strings.TrimSpace(n.Name) == "" {
		n.Name = fmt.Sprintf("%s-%d", n.Type.DisplayName(), index+1)
	}
	n.ID = node.NewID(n.Type, now, index)
	n.Enabled = true
	n.SourceType = p.sourceType()
	n.CreatedAt = now
	n.UpdatedAt = now
	return n
}

// applyStream reads the v2ray-style stream parameters shared by vless and
// trojan links.
func applyStream(n *node.Node, p uriParts) {
	q := p.query
	n.Network = strings.ToLower(fieldmap.FirstNonEmpty(q.Get("type"), "tcp"))
	n.SNI = q.Get("sni")
	n.ALPN = fieldmap.SplitList(q.Get("alpn"))
	n.Fingerprint = q.Get("fp")
	n.WSPath = q.Get("path")
	n.WSHost = q.Get("host")
	n.GRPCServiceName = q.Get("serviceName")
	n.Insecure = queryBool(q, "allowInsecure", "insecure")
}

func parseVLESS(p uriParts) (node.Node, error) {
	if p.host == "" {
		return node.Node{}, errors.New("missing host")
	}
	n := node.Node{
		Type:   node.TypeVLESS,
		Name:   p.fragment,
		Server: p.host,
		Port:   node.NormalizePort(p.port, node.TypeVLESS),
		UUID:   p.userinfo,
	}
	applyStream(&n, p)
	q := p.query
	n.Encryption = fieldmap.FirstNonEmpty(q.Get("encryption"), "none")
	n.Flow = q.Get("flow")
	n.Security = strings.ToLower(q.Get("security"))
	n.TLS = n.Security == "tls"
	n.PublicKey = q.Get("pbk")
	n.ShortID = q.Get("sid")
	return n, nil
}

// parseVMess decodes "vmess://<base64 JSON>". The payload is opaque until
// decoded, so any decode failure is a hard error for the line.
func parseVMess(link string) (node.Node, error) {
	payload := strings.TrimSpace(link[strings.Index(link, "://")+3:])
	if hash := strings.Index(payload, "#"); hash >= 0 {
		payload = payload[:hash]
	}
	raw, ok := decodeBase64Relaxed(payload)
	if !ok || !utf8.Valid(raw) {
		return node.Node{}, &LinkError{Scheme: "vmess", Err: errors.New("payload is not base64")}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return node.Node{}, &LinkError{Scheme: "vmess", Err: fmt.Errorf("payload is not JSON: %w", err)}
	}

	n := node.Node{
		Type:     node.TypeVMess,
		Name:     strings.TrimSpace(fieldmap.String(m, "ps")),
		Server:   strings.TrimSpace(fieldmap.String(m, "add")),
		Port:     node.NormalizePort(fieldmap.String(m, "port"), node.TypeVMess),
		UUID:     strings.TrimSpace(fieldmap.String(m, "id")),
		Method:   fieldmap.FirstNonEmpty(fieldmap.String(m, "scy"), "auto"),
		Network:  strings.ToLower(fieldmap.FirstNonEmpty(fieldmap.String(m, "net"), "tcp")),
		SNI:      fieldmap.String(m, "sni"),
		ALPN:     fieldmap.SplitList(fieldmap.String(m, "alpn")),
		WSHost:   fieldmap.String(m, "host"),
		Security: strings.ToLower(fieldmap.String(m, "tls")),
	}
	if aid, ok := fieldmap.Int(m, "aid"); ok && aid > 0 {
		n.AlterID = aid
	}
	n.TLS = n.Security == "tls"
	n.Fingerprint = fieldmap.String(m, "fp")
	path := fieldmap.String(m, "path")
	if n.Network == "grpc" {
		n.GRPCServiceName = path
	} else {
		n.WSPath = path
	}
	if n.Server == "" {
		return node.Node{}, &LinkError{Scheme: "vmess", Err: errors.New("missing add")}
	}
	return n, nil
}

func parseTrojan(p uriParts) (node.Node, error) {
	if p.host == "" {
		return node.Node{}, errors.New("missing host")
	}
	n := node.Node{
		Type:     node.TypeTrojan,
		Name:     p.fragment,
		Server:   p.host,
		Port:     node.NormalizePort(p.port, node.TypeTrojan),
		Password: p.userinfo,
	}
	applyStream(&n, p)
	if n.SNI == "" {
		n.SNI = p.host
	}
	n.Security = strings.ToLower(fieldmap.FirstNonEmpty(p.query.Get("security"), "tls"))
	n.TLS = n.Security != "none"
	return n, nil
}

// parseSS handles SIP002 "ss://base64(method:password)@host:port#name" with
// a literal "method:password" fallback, and the legacy
// "ss://base64(method:password@host:port)#name" form.
func parseSS(link string, p uriParts) (node.Node, error) {
	if !p.hasUserinfo {
		return parseLegacySS(link, p)
	}
	if p.host == "" {
		return node.Node{}, errors.New("missing host")
	}
	method, password := splitSSUserinfo(p.rawUserinfo)
	return node.Node{
		Type:     node.TypeSS,
		Name:     p.fragment,
		Server:   p.host,
		Port:     node.NormalizePort(p.port, node.TypeSS),
		Method:   method,
		Password: password,
	}, nil
}

func splitSSUserinfo(raw string) (string, string) {
	if decoded, ok := decodeBase64Relaxed(unescape(raw)); ok && utf8.Valid(decoded) {
		if method, password, found := strings.Cut(string(decoded), ":"); found && method != "" {
			return strings.TrimSpace(method), password
		}
	}
	literal := unescape(raw)
	method, password, _ := strings.Cut(literal, ":")
	return strings.TrimSpace(method), password
}

func parseLegacySS(link string, p uriParts) (node.Node, error) {
	payload := link[strings.Index(link, "://")+3:]
	if cut := strings.IndexAny(payload, "?#"); cut >= 0 {
		payload = payload[:cut]
	}
	decoded, ok := decodeBase64Relaxed(strings.TrimSuffix(payload, "/"))
	if !ok || !utf8.Valid(decoded) {
		return node.Node{}, errors.New("legacy payload is not base64")
	}
	text := string(decoded)
	at := strings.LastIndex(text, "@")
	if at < 0 {
		return node.Node{}, errors.New("legacy payload missing '@'")
	}
	method, password, _ := strings.Cut(text[:at], ":")
	host, port := splitHostPort(text[at+1:])
	if host == "" {
		return node.Node{}, errors.New("missing host")
	}
	return node.Node{
		Type:     node.TypeSS,
		Name:     p.fragment,
		Server:   host,
		Port:     node.NormalizePort(port, node.TypeSS),
		Method:   strings.TrimSpace(method),
		Password: password,
	}, nil
}

func parseSOCKS5(p uriParts) (node.Node, error) {
	if p.host == "" {
		return node.Node{}, errors.New("missing host")
	}
	n := node.Node{
		Type:   node.TypeSOCKS5,
		Name:   p.fragment,
		Server: p.host,
		Port:   node.NormalizePort(p.port, node.TypeSOCKS5),
	}
	if p.hasUserinfo {
		// Split before unescaping so an escaped ':' stays in the username.
		user, pass, _ := strings.Cut(p.rawUserinfo, ":")
		n.Username = unescape(user)
		n.Password = unescape(pass)
	}
	return n, nil
}

func parseHysteria2(p uriParts) (node.Node, error) {
	if p.host == "" {
		return node.Node{}, errors.New("missing host")
	}
	q := p.query
	return node.Node{
		Type:         node.TypeHysteria2,
		Name:         p.fragment,
		Server:       p.host,
		Port:         node.NormalizePort(p.port, node.TypeHysteria2),
		Password:     p.userinfo,
		SNI:          q.Get("sni"),
		Insecure:     q.Get("insecure") == "1",
		TLS:          true,
		ALPN:         fieldmap.SplitList(q.Get("alpn")),
		Obfs:         q.Get("obfs"),
		ObfsPassword: q.Get("obfs-password"),
	}, nil
}

func parseHysteria(p uriParts) (node.Node, error) {
	if p.host == "" {
		return node.Node{}, errors.New("missing host")
	}
	q := p.query
	n := node.Node{
		Type:     node.TypeHysteria,
		Name:     p.fragment,
		Server:   p.host,
		Port:     node.NormalizePort(p.port, node.TypeHysteria),
		AuthStr:  fieldmap.FirstNonEmpty(p.userinfo, q.Get("auth")),
		Protocol: q.Get("protocol"),
		UpMbps:   atoiDefault(q.Get("upmbps"), 10),
		DownMbps: atoiDefault(q.Get("downmbps"), 50),
		SNI:      q.Get("peer"),
		Insecure: q.Get("insecure") == "1",
		TLS:      true,
		ALPN:     fieldmap.SplitList(q.Get("alpn")),
		Obfs:     q.Get("obfs"),
	}
	return n, nil
}

func atoiDefault(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return n
}
