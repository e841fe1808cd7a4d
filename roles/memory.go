package roles

import (
	"context"
	"sync"

	"github.com/energywebfoundation/worker-contract-sub000/types"
)

type claimKey struct {
	subject types.Address
	role    string
}

// MemoryOracle keeps claims in memory. A claim granted at version v
// satisfies queries for any version up to v; version 0 matches any claim.
type MemoryOracle struct {
	mu      sync.RWMutex
	granted map[claimKey]uint64
	revoked map[claimKey]bool
}

func NewMemoryOracle() *MemoryOracle {
	return &MemoryOracle{
		granted: make(map[claimKey]uint64),
		revoked: make(map[claimKey]bool),
	}
}

func (o *MemoryOracle) Grant(subject types.Address, role string, version uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.granted[claimKey{subject, role}] = version
	delete(o.revoked, claimKey{subject, role})
}

// Drop removes a claim without marking it revoked.
func (o *MemoryOracle) Drop(subject types.Address, role string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.granted, claimKey{subject, role})
}

func (o *MemoryOracle) Revoke(subject types.Address, role string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.revoked[claimKey{subject, role}] = true
}

func (o *MemoryOracle) HasRole(_ context.Context, subject types.Address, role string, version uint64) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	granted, ok := o.granted[claimKey{subject, role}]
	return ok && granted >= version, nil
}

func (o *MemoryOracle) IsRevoked(_ context.Context, role string, subject types.Address) (bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.revoked[claimKey{subject, role}], nil
}
