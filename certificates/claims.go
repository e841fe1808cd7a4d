package certificates

import (
	"context"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/logging"
	"github.com/energywebfoundation/worker-contract-sub000/roles"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

// Revoke tombstones certificate id and every token derived from it.
func (l *Ledger) Revoke(ctx context.Context, tx *db.Tx, caller types.Address, id uint64) error {
	if err := l.require(ctx, tx, roles.Revoker, caller, ErrNotEnrolledRevoker); err != nil {
		return err
	}
	cert, err := GetProof(tx, id)
	if err != nil {
		return err
	}
	if cert.Revoked {
		return ErrProofRevoked.With(id)
	}
	deadline := time.Unix(cert.IssuanceDate, 0).Add(l.cfg.RevocablePeriod)
	if !tx.Now().Before(deadline) {
		return ErrTimeToRevokeElapsed.With(id, cert.IssuanceDate, int64(l.cfg.RevocablePeriod/time.Second))
	}

	cert.Revoked = true
	cert.RevocationDate = tx.Now().Unix()
	if err := putCertificate(tx, cert); err != nil {
		return err
	}
	if l.cascade != nil {
		if err := l.cascade.RevokeWithParent(ctx, tx, id); err != nil {
			return err
		}
	}
	tx.Emit(events.ProofRevoked{CertificateID: id})
	tx.OnCommit(func(ctx context.Context) {
		revokedMetric.Inc()
		logging.FromContext(ctx).Info("certificate revoked", zap.Uint64("id", id))
	})
	return nil
}

// Claim retires amount of id held by caller.
func (l *Ledger) Claim(ctx context.Context, tx *db.Tx, caller types.Address, id uint64, amount *uint256.Int) error {
	return l.claim(tx, id, caller, amount)
}

// ClaimFor retires amount of id held by owner on behalf of an enrolled claimer.
func (l *Ledger) ClaimFor(ctx context.Context, tx *db.Tx, caller types.Address, id uint64, owner types.Address, amount *uint256.Int) error {
	if err := l.require(ctx, tx, roles.Claimer, caller, ErrNotEnrolledClaimer); err != nil {
		return err
	}
	return l.claim(tx, id, owner, amount)
}

func (l *Ledger) claim(tx *db.Tx, id uint64, owner types.Address, amount *uint256.Int) error {
	cert, err := GetProof(tx, id)
	if err != nil {
		return err
	}
	if cert.Revoked {
		return ErrProofRevoked.With(id)
	}
	h, err := getHolding(tx, id, owner)
	if err != nil {
		return err
	}
	if h.Available().Lt(amount) {
		return ErrInsufficientBalance.With(owner, id, amount)
	}
	h.Claimed.Add(&h.Claimed, amount)
	if err := tx.Put(holdingKey(id, owner), h); err != nil {
		return err
	}
	tx.Emit(events.ProofClaimed{CertificateID: id, Owner: owner, ClaimDate: tx.Now().Unix(), Amount: amount.Clone()})
	tx.OnCommit(func(context.Context) { claimsMetric.Inc() })
	return nil
}
