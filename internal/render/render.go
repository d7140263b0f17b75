// Package render serializes nodes into client subscription formats.
//
// Renderers never filter by Enabled; callers pass the nodes they want
// exported. Nodes of unknown type, or without a server, are skipped. Output
// is byte-identical for identical input.
package render

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/Resinat/Prism/internal/node"
)

// Format names an export format.
type Format string

const (
	FormatV2Ray        Format = "v2ray"
	FormatPlain        Format = "plain"
	FormatShadowrocket Format = "shadowrocket"
	FormatClash        Format = "clash"
	FormatSingBox      Format = "singbox"
)

// Formats lists every supported format.
var Formats = []Format{FormatV2Ray, FormatPlain, FormatShadowrocket, FormatClash, FormatSingBox}

// ParseFormat maps a format name or alias to its Format. An empty string
// selects v2ray.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "v2ray", "v2rayn", "base64":
		return FormatV2Ray, nil
	case "plain", "raw", "links":
		return FormatPlain, nil
	case "shadowrocket", "sr":
		return FormatShadowrocket, nil
	case "clash", "clash-meta", "mihomo", "yaml":
		return FormatClash, nil
	case "singbox", "sing-box", "box":
		return FormatSingBox, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// ContentType is the HTTP content type of documents in format f.
func (f Format) ContentType() string {
	switch f {
	case FormatClash:
		return "application/x-yaml; charset=utf-8"
	case FormatSingBox:
		return "application/json; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// FileExtension is used for Content-Disposition filenames.
func (f Format) FileExtension() string {
	switch f {
	case FormatClash:
		return "yaml"
	case FormatSingBox:
		return "json"
	default:
		return "txt"
	}
}

// Render encodes nodes in format f.
func Render(f Format, nodes []node.Node) ([]byte, error) {
	switch f {
	case FormatV2Ray:
		return wrapBase64(joinLinks(nodes, v2rayStyle)), nil
	case FormatPlain:
		return []byte(joinLinks(nodes, v2rayStyle)), nil
	case FormatShadowrocket:
		return wrapBase64(joinLinks(nodes, shadowrocketStyle)), nil
	case FormatClash:
		return renderClash(nodes)
	case FormatSingBox:
		return renderSingBox(nodes)
	}
	return nil, fmt.Errorf("render: unknown format %q", f)
}

func joinLinks(nodes []node.Node, style linkStyle) string {
	links := make([]string, 0, len(nodes))
	for i := range nodes {
		if link, ok := style.link(&nodes[i]); ok {
			links = append(links, link)
		}
	}
	return strings.Join(links, "\n")
}

func wrapBase64(body string) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(body)))
	base64.StdEncoding.Encode(out, []byte(body))
	return out
}

// renderable reports whether n can be exported at all.
func renderable(n *node.Node) bool {
	return n.Type.IsValid() && n.RequireServer() == nil
}
