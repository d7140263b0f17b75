package subscription

import (
	"testing"

	"github.com/Resinat/Prism/internal/node"
)

func TestIndexNodes_FirstDuplicateWins(t *testing.T) {
	a := mustParse(t, "trojan://pw@a.example.com:443#first", 0)
	dup := mustParse(t, "trojan://pw@a.example.com:443#second", 1)

	m := IndexNodes([]node.Node{a, dup})
	if m.Size() != 1 {
		t.Fatalf("expected 1 entry, got %d", m.Size())
	}
	id, ok := m.Load(node.Fingerprint(a))
	if !ok || id != a.ID {
		t.Fatalf("expected id %q, got %q (ok=%v)", a.ID, id, ok)
	}
}

func TestDiffHashes(t *testing.T) {
	n1 := mustParse(t, "socks5://1.1.1.1:1080", 0)
	n2 := mustParse(t, "socks5://2.2.2.2:1080", 1)
	n3 := mustParse(t, "socks5://3.3.3.3:1080", 2)

	oldMap := IndexNodes([]node.Node{n1, n2})
	newMap := IndexNodes([]node.Node{n2, n3})

	added, kept, removed := DiffHashes(oldMap, newMap)

	if len(added) != 1 || added[0] != node.Fingerprint(n3) {
		t.Fatalf("expected n3 added, got %v", added)
	}
	if len(kept) != 1 || kept[0] != node.Fingerprint(n2) {
		t.Fatalf("expected n2 kept, got %v", kept)
	}
	if len(removed) != 1 || removed[0] != node.Fingerprint(n1) {
		t.Fatalf("expected n1 removed, got %v", removed)
	}
}

func TestDiffHashes_Empty(t *testing.T) {
	empty := IndexNodes(nil)
	full := IndexNodes([]node.Node{mustParse(t, "socks5://1.1.1.1:1080", 0)})

	added, kept, removed := DiffHashes(empty, full)
	if len(added) != 1 || len(kept) != 0 || len(removed) != 0 {
		t.Fatalf("empty→full: added=%d kept=%d removed=%d", len(added), len(kept), len(removed))
	}

	added, kept, removed = DiffHashes(full, empty)
	if len(added) != 0 || len(kept) != 0 || len(removed) != 1 {
		t.Fatalf("full→empty: added=%d kept=%d removed=%d", len(added), len(kept), len(removed))
	}
}
