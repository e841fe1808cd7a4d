// Package roles answers who may act as a worker, issuer, revoker, claimer or
// approver. The answer always comes from an external claims oracle and is
// never cached: a credential revoked externally takes effect on the next call.
package roles

import (
	"context"
	"fmt"

	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

//go:generate mockgen -package mocks -destination mocks/oracle.go . Oracle

// Oracle is the external claims service.
type Oracle interface {
	// HasRole reports whether subject holds role at the given version.
	HasRole(ctx context.Context, subject types.Address, role string, version uint64) (bool, error)
	// IsRevoked reports whether the role claim of subject was revoked.
	IsRevoked(ctx context.Context, role string, subject types.Address) (bool, error)
}

// Kind is one of the ledger's permission tiers.
type Kind string

const (
	Worker   Kind = "Worker"
	Issuer   Kind = "Issuer"
	Revoker  Kind = "Revoker"
	Claimer  Kind = "Claimer"
	Approver Kind = "Approver"
)

var Kinds = []Kind{Worker, Issuer, Revoker, Claimer, Approver}

// Defaults are the Energy Web IAM claims greenproof deployments use.
var Defaults = map[Kind]Role{
	Worker:   {Name: "workerRole.roles.greenproof.apps.iam.ewc", Version: 1},
	Issuer:   {Name: "minter.roles.greenproof.apps.iam.ewc", Version: 1},
	Revoker:  {Name: "revoker.roles.greenproof.apps.iam.ewc", Version: 1},
	Claimer:  {Name: "claimer.roles.greenproof.apps.iam.ewc", Version: 1},
	Approver: {Name: "approver.roles.greenproof.apps.iam.ewc", Version: 1},
}

// Role binds a Kind to the claim name and version the oracle is queried with.
type Role struct {
	Name    string
	Version uint64
}

func roleKey(kind Kind) []byte {
	return db.Key("roles", string(kind))
}

func Get(r db.Reader, kind Kind) (Role, error) {
	var role Role
	if err := r.Get(roleKey(kind), &role); err != nil {
		return Role{}, fmt.Errorf("reading %s role: %w", kind, err)
	}
	return role, nil
}

func Put(tx *db.Tx, kind Kind, role Role) error {
	return tx.Put(roleKey(kind), role)
}

// Checker resolves enrollment against the oracle using the role
// configuration recorded in the store.
type Checker struct {
	oracle Oracle
}

func NewChecker(oracle Oracle) *Checker {
	return &Checker{oracle: oracle}
}

// Enrolled reports whether subject holds the role of kind and the claim is
// not revoked.
func (c *Checker) Enrolled(ctx context.Context, r db.Reader, kind Kind, subject types.Address) (bool, error) {
	role, err := Get(r, kind)
	if err != nil {
		return false, err
	}
	ok, err := c.oracle.HasRole(ctx, subject, role.Name, role.Version)
	if err != nil {
		return false, fmt.Errorf("querying %s role of %s: %w", kind, subject, err)
	}
	if !ok {
		return false, nil
	}
	revoked, err := c.oracle.IsRevoked(ctx, role.Name, subject)
	if err != nil {
		return false, fmt.Errorf("querying %s revocation of %s: %w", kind, subject, err)
	}
	return !revoked, nil
}
