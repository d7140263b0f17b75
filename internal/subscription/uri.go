package subscription

import (
	"bytes"
	"encoding/base64"
	"net/url"
	"strings"
	"unicode/utf8"
)

// uriParts is a share link split into its components. The split tolerates
// out-of-range ports, base64 userinfo containing '/' and unescaped '@' in
// passwords, none of which survive url.Parse.
type uriParts struct {
	scheme      string
	userinfo    string // percent-decoded
	rawUserinfo string
	hasUserinfo bool
	host        string
	port        string
	query       url.Values
	fragment    string // percent-decoded
}

// splitURI splits "scheme://userinfo@host:port/path?query#fragment".
func splitURI(link string) (uriParts, bool) {
	scheme, rest, ok := strings.Cut(link, "://")
	if !ok {
		return uriParts{}, false
	}
	p := uriParts{scheme: strings.ToLower(strings.TrimSpace(scheme))}

	if before, frag, found := strings.Cut(rest, "#"); found {
		rest = before
		p.fragment = unescape(frag)
	}
	rawQuery := ""
	if before, q, found := strings.Cut(rest, "?"); found {
		rest = before
		rawQuery = q
	}
	// Errors leave the successfully parsed pairs in place.
	p.query, _ = url.ParseQuery(rawQuery)

	authority := rest
	if at := strings.LastIndex(authority, "@"); at >= 0 {
		p.rawUserinfo = authority[:at]
		p.userinfo = unescape(p.rawUserinfo)
		p.hasUserinfo = true
		authority = authority[at+1:]
	}
	if slash := strings.Index(authority, "/"); slash >= 0 {
		authority = authority[:slash]
	}
	p.host, p.port = splitHostPort(authority)
	return p, true
}

// splitHostPort separates host and port, tolerating a missing port and
// bracketed IPv6 literals.
func splitHostPort(hostport string) (string, string) {
	hostport = strings.TrimSpace(hostport)
	if strings.HasPrefix(hostport, "[") {
		end := strings.Index(hostport, "]")
		if end < 0 {
			return strings.Trim(hostport, "[]"), ""
		}
		host := hostport[1:end]
		rest := hostport[end+1:]
		return host, strings.TrimPrefix(rest, ":")
	}
	idx := strings.LastIndex(hostport, ":")
	if idx < 0 {
		return hostport, ""
	}
	// Bare IPv6 without brackets has several colons and no port.
	if strings.Count(hostport, ":") > 1 {
		return hostport, ""
	}
	return hostport[:idx], hostport[idx+1:]
}

// unescape percent-decodes s, leaving it unchanged when it is malformed.
func unescape(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(decoded)
}

func decodeBase64Relaxed(input string) ([]byte, bool) {
	s := strings.Join(strings.Fields(input), "")
	if s == "" {
		return nil, false
	}

	s = strings.TrimRight(s, "=")
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded, true
	}
	if decoded, err := base64.URLEncoding.DecodeString(s); err == nil {
		return decoded, true
	}
	return nil, false
}

// tryDecodeBody decodes a whole subscription body that is base64 of a link
// list. Bodies that decode to binary or to text without any link are
// rejected so plain link lists are never mangled.
func tryDecodeBody(data []byte) (string, bool) {
	compact := strings.Join(strings.Fields(string(data)), "")
	if !looksLikeBase64(compact) {
		return "", false
	}

	decoded, ok := decodeBase64Relaxed(compact)
	if !ok || !utf8.Valid(decoded) {
		return "", false
	}
	text := string(decoded)
	if !strings.Contains(text, "://") {
		return "", false
	}
	return text, true
}

func looksLikeBase64(s string) bool {
	if len(s) < 8 || len(s)%4 == 1 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '+' || r == '/' || r == '-' || r == '_' || r == '=':
		default:
			return false
		}
	}
	return true
}

func normalizeInput(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	return bytes.TrimPrefix(trimmed, []byte{0xEF, 0xBB, 0xBF})
}

func normalizeTextContent(content string) string {
	content = strings.TrimPrefix(content, "\uFEFF")

	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		switch r {
		case '\u200B', '\u200C', '\u200D':
			continue
		}
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func queryBool(values url.Values, keys ...string) bool {
	for _, key := range keys {
		value := strings.TrimSpace(values.Get(key))
		if value == "" {
			continue
		}
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		}
	}
	return false
}
