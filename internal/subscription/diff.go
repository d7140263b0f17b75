package subscription

import (
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/Resinat/Prism/internal/node"
)

// NodeSet is a source's node view keyed by content fingerprint. The value is
// the id of the node that carries the fingerprint.
type NodeSet = xsync.Map[node.Hash, string]

// IndexNodes builds the fingerprint view of nodes. When two nodes share a
// fingerprint the first one wins.
func IndexNodes(nodes []node.Node) *NodeSet {
	m := xsync.NewMap[node.Hash, string]()
	for i := range nodes {
		m.LoadOrStore(node.Fingerprint(nodes[i]), nodes[i].ID)
	}
	return m
}

// DiffHashes computes the hash diff between old and new node views.
// Returns slices of added, kept, and removed hashes.
func DiffHashes(oldMap, newMap *NodeSet) (added, kept, removed []node.Hash) {
	newMap.Range(func(h node.Hash, _ string) bool {
		if _, ok := oldMap.Load(h); ok {
			kept = append(kept, h)
		} else {
			added = append(added, h)
		}
		return true
	})

	oldMap.Range(func(h node.Hash, _ string) bool {
		if _, ok := newMap.Load(h); !ok {
			removed = append(removed, h)
		}
		return true
	})

	return added, kept, removed
}
