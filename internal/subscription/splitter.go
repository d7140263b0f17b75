package subscription

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Resinat/Prism/internal/node"
)

// Split decodes a whole subscription body into nodes.
//
// The body may be base64 of a newline-delimited link list or the list
// itself; undecodable bodies fall back to raw lines. Each non-blank line is
// parsed with its 0-based position among non-blank lines. Lines that fail
// are logged and dropped, so the result is the ordered list of nodes that
// parsed. Split never fails as a whole.
func (p *Parser) Split(body []byte) []node.Node {
	normalized := normalizeInput(body)
	if len(normalized) == 0 {
		return nil
	}

	text := string(normalized)
	if decoded, ok := tryDecodeBody(normalized); ok {
		text = decoded
	}
	return p.parseLines(normalizeTextContent(text))
}

func (p *Parser) parseLines(text string) []node.Node {
	var (
		nodes   []node.Node
		index   int
		skipped int
		failed  int
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		n, err := p.ParseLink(line, index)
		index++
		if err != nil {
			if IsSkip(err) {
				skipped++
				logrus.Debugf("[subscription] skip line %d: %v", index-1, err)
			} else {
				failed++
				logrus.Warnf("[subscription] drop line %d: %v", index-1, err)
			}
			continue
		}
		nodes = append(nodes, n)
	}
	if skipped > 0 || failed > 0 {
		logrus.Infof("[subscription] parsed %d nodes (%d skipped, %d failed)", len(nodes), skipped, failed)
	}
	return nodes
}

// ParseContent is Split extended with Clash YAML detection: a body that
// carries a top-level "proxies:" list is converted proxy by proxy, anything
// else goes through Split.
func (p *Parser) ParseContent(body []byte) []node.Node {
	normalized := normalizeInput(body)
	if len(normalized) == 0 {
		return nil
	}
	text := normalizeTextContent(string(normalized))
	if looksLikeClashYAML(text) {
		nodes, err := p.parseClashYAML(text)
		if err == nil {
			return nodes
		}
		logrus.Warnf("[subscription] clash yaml rejected, falling back to link list: %v", err)
	}
	return p.Split(normalized)
}
