package node

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Hash is a 128-bit content fingerprint of a node's connection settings.
// Two nodes that dial the same endpoint with the same credentials and
// stream options share a Hash regardless of name, id or timestamps.
type Hash [16]byte

// Zero is the zero-value Hash.
var Zero Hash

// fingerprintExcluded lists the JSON keys that do not affect how a node
// connects.
var fingerprintExcluded = []string{
	"id", "name", "enabled", "remark", "tags",
	"createdAt", "updatedAt", "sourceId",
}

// Fingerprint computes the content Hash of n.
// encoding/json sorts map keys at every level, so the canonical form is
// deterministic without manual sorting.
func Fingerprint(n Node) Hash {
	raw, err := json.Marshal(n)
	if err != nil {
		return Zero
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return HashBytes(raw)
	}
	for _, k := range fingerprintExcluded {
		delete(m, k)
	}
	canonical, err := json.Marshal(m)
	if err != nil {
		return HashBytes(raw)
	}
	return HashBytes(canonical)
}

// Hex returns the lowercase hex encoding of the hash.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements fmt.Stringer.
func (h Hash) String() string {
	return h.Hex()
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// ParseHex decodes a 32-character hex string into a Hash.
func ParseHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Zero, fmt.Errorf("node.ParseHex: %w", err)
	}
	if len(b) != 16 {
		return Zero, fmt.Errorf("node.ParseHex: expected 16 bytes, got %d", len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// HashBytes computes xxh3-128 of data. Renderers use it for ETags.
func HashBytes(data []byte) Hash {
	h128 := xxh3.Hash128(data)
	var h Hash
	binary.LittleEndian.PutUint64(h[:8], h128.Lo)
	binary.LittleEndian.PutUint64(h[8:], h128.Hi)
	return h
}
