package netutil

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
)

// NormalizeHost turns a user supplied server into the form stored on
// nodes. It accepts a bare host, "host:port", "[v6]:port" or a URL, drops
// the port, canonicalises IP literals and converts internationalised
// names to lowercase ASCII.
//
//	"https://Panel.Example.com:54321/xui" -> "panel.example.com"
//	"[2001:DB8::1]:443"                   -> "2001:db8::1"
//	"bücher.example"                      -> "xn--bcher-kva.example"
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if strings.Contains(host, "://") || strings.HasPrefix(host, "//") {
		if u, err := url.Parse(host); err == nil && u.Host != "" {
			host = u.Host
		}
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	} else if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	if host == "" {
		return "", errors.New("netutil: empty host")
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		return ip.Unmap().String(), nil
	}
	if strings.ContainsAny(host, "/@ ?#") {
		return "", fmt.Errorf("netutil: invalid host %q", raw)
	}
	ascii, err := hostProfile.ToASCII(strings.TrimSuffix(host, "."))
	if err != nil {
		return "", fmt.Errorf("netutil: invalid host %q: %w", raw, err)
	}
	return ascii, nil
}
