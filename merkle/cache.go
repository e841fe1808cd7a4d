package merkle

import (
	"encoding/binary"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/energywebfoundation/worker-contract-sub000/hash"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

// CachedVerifier remembers the outcome of recent verifications. Verification
// is a pure function of its inputs, so results never go stale.
type CachedVerifier struct {
	inner Verifier
	cache *lru.Cache
}

func NewCachedVerifier(inner Verifier, size int) (*CachedVerifier, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating verification cache: %w", err)
	}
	return &CachedVerifier{inner: inner, cache: cache}, nil
}

func (v *CachedVerifier) Verify(leaf types.Hash, proof []types.Hash, root types.Hash) bool {
	key := cacheKey(leaf, proof, root)
	if ok, found := v.cache.Get(key); found {
		return ok.(bool)
	}
	ok := v.inner.Verify(leaf, proof, root)
	v.cache.Add(key, ok)
	return ok
}

func (v *CachedVerifier) Len() int {
	return v.cache.Len()
}

func cacheKey(leaf types.Hash, proof []types.Hash, root types.Hash) types.Hash {
	parts := make([][]byte, 0, len(proof)+3)
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(proof)))
	parts = append(parts, n[:], leaf[:], root[:])
	for i := range proof {
		parts = append(parts, proof[i][:])
	}
	return hash.Sum(parts...)
}
