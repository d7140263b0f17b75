package render

import (
	"fmt"

	"github.com/Resinat/Prism/internal/node"
)

func exportable(nodes []node.Node) []node.Node {
	out := make([]node.Node, 0, len(nodes))
	for i := range nodes {
		if renderable(&nodes[i]) {
			out = append(out, nodes[i])
		}
	}
	return out
}

// uniqueNames returns one display name per node. Repeated names get " (2)",
// " (3)" suffixes in input order; blank names fall back to the node type.
func uniqueNames(nodes []node.Node) []string {
	names := make([]string, len(nodes))
	taken := make(map[string]bool, len(nodes))
	for i := range nodes {
		base := nodes[i].Name
		if base == "" {
			base = fmt.Sprintf("%s-%d", nodes[i].Type.DisplayName(), i+1)
		}
		name := base
		for k := 2; taken[name]; k++ {
			name = fmt.Sprintf("%s (%d)", base, k)
		}
		taken[name] = true
		names[i] = name
	}
	return names
}
