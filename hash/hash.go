package hash

import (
	"bytes"
	"encoding/json"

	"github.com/minio/sha256-simd"

	"github.com/energywebfoundation/worker-contract-sub000/types"
)

// Sum hashes data with sha256.
func Sum(data ...[]byte) types.Hash {
	h := sha256.New()
	for _, d := range data {
		_, _ = h.Write(d)
	}
	var out types.Hash
	h.Sum(out[:0])
	return out
}

// Leaf hashes a disclosed key/value pair: sha256(key || value).
func Leaf(key, value string) types.Hash {
	return Sum([]byte(key), []byte(value))
}

// JSONLeaf hashes a key together with the JSON rendering of value,
// the layout used by precise proofs over flat records.
func JSONLeaf(key string, value any) (types.Hash, error) {
	rendered, err := MarshalJSON(value)
	if err != nil {
		return types.Hash{}, err
	}
	return Leaf(key, string(rendered)), nil
}

// Pair hashes two sibling nodes in ascending order, so a proof
// does not need to carry left/right positions.
func Pair(a, b types.Hash) types.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return Sum(a[:], b[:])
}

// MarshalJSON renders v without HTML escaping and without the trailing newline.
func MarshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
