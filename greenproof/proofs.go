package greenproof

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/energywebfoundation/worker-contract-sub000/certificates"
	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

// unpaused is update for operations that pausing the ledger blocks.
func (l *Ledger) unpaused(ctx context.Context, caller types.Address, op string, fn func(tx *db.Tx) error) (*Receipt, error) {
	return l.update(ctx, caller, op, func(tx *db.Tx) error {
		if err := whenNotPaused(tx); err != nil {
			return err
		}
		return fn(tx)
	})
}

func (l *Ledger) RequestProofIssuance(ctx context.Context, caller types.Address, req certificates.Request) (uint64, *Receipt, error) {
	var id uint64
	receipt, err := l.unpaused(ctx, caller, OpRequestProofIssuance, func(tx *db.Tx) error {
		var err error
		id, err = l.certs.Issue(ctx, tx, caller, req)
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	receipt.Value = id
	return id, receipt, nil
}

func (l *Ledger) RequestBatchIssuance(ctx context.Context, caller types.Address, reqs []certificates.Request) ([]uint64, *Receipt, error) {
	var ids []uint64
	receipt, err := l.unpaused(ctx, caller, OpRequestBatchIssuance, func(tx *db.Tx) error {
		var err error
		ids, err = l.certs.IssueBatch(ctx, tx, caller, reqs)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	receipt.Value = ids
	return ids, receipt, nil
}

func (l *Ledger) DiscloseData(ctx context.Context, caller types.Address, key, value string, proof []types.Hash, dataHash types.Hash) (*Receipt, error) {
	return l.update(ctx, caller, OpDiscloseData, func(tx *db.Tx) error {
		return l.certs.Disclose(ctx, tx, caller, key, value, proof, dataHash)
	})
}

func (l *Ledger) SafeTransferFrom(ctx context.Context, caller, from, to types.Address, id uint64, amount *uint256.Int) (*Receipt, error) {
	return l.unpaused(ctx, caller, OpSafeTransferFrom, func(tx *db.Tx) error {
		return l.certs.Transfer(ctx, tx, caller, from, to, id, amount)
	})
}

func (l *Ledger) SafeBatchTransferFrom(ctx context.Context, caller, from, to types.Address, ids []uint64, amounts []*uint256.Int) (*Receipt, error) {
	return l.unpaused(ctx, caller, OpSafeBatchTransferFrom, func(tx *db.Tx) error {
		return l.certs.BatchTransfer(ctx, tx, caller, from, to, ids, amounts)
	})
}

func (l *Ledger) ApproveOperator(ctx context.Context, caller, operator, owner types.Address) (*Receipt, error) {
	return l.update(ctx, caller, OpApproveOperator, func(tx *db.Tx) error {
		return l.certs.ApproveOperator(ctx, tx, caller, operator, owner)
	})
}

// RemoveApprovedOperator withdraws an approval caller granted.
func (l *Ledger) RemoveApprovedOperator(ctx context.Context, caller, operator types.Address) (*Receipt, error) {
	return l.update(ctx, caller, OpRemoveApprovedOperator, func(tx *db.Tx) error {
		return l.certs.RemoveApprovedOperator(tx, caller, operator)
	})
}

func (l *Ledger) RevokeProof(ctx context.Context, caller types.Address, id uint64) (*Receipt, error) {
	return l.update(ctx, caller, OpRevokeProof, func(tx *db.Tx) error {
		return l.certs.Revoke(ctx, tx, caller, id)
	})
}

func (l *Ledger) ClaimProof(ctx context.Context, caller types.Address, id uint64, amount *uint256.Int) (*Receipt, error) {
	return l.unpaused(ctx, caller, OpClaimProof, func(tx *db.Tx) error {
		return l.certs.Claim(ctx, tx, caller, id, amount)
	})
}

func (l *Ledger) ClaimProofFor(ctx context.Context, caller types.Address, id uint64, owner types.Address, amount *uint256.Int) (*Receipt, error) {
	return l.unpaused(ctx, caller, OpClaimProofFor, func(tx *db.Tx) error {
		return l.certs.ClaimFor(ctx, tx, caller, id, owner, amount)
	})
}

func (l *Ledger) IssueMetaToken(ctx context.Context, caller types.Address, parentID uint64, amount *uint256.Int, receiver types.Address, uri string) (*Receipt, error) {
	return l.unpaused(ctx, caller, OpIssueMetaToken, func(tx *db.Tx) error {
		return l.meta.Issue(ctx, tx, caller, parentID, amount, receiver, uri)
	})
}

// RevokeMetaToken always fails: meta tokens are revoked with their parent.
func (l *Ledger) RevokeMetaToken(ctx context.Context, caller types.Address, id uint64) (*Receipt, error) {
	return l.update(ctx, caller, OpRevokeMetaToken, func(*db.Tx) error {
		return l.meta.Revoke(caller, id)
	})
}

func (l *Ledger) ClaimMetaToken(ctx context.Context, caller types.Address, id uint64, amount *uint256.Int) (*Receipt, error) {
	return l.unpaused(ctx, caller, OpClaimMetaToken, func(tx *db.Tx) error {
		return l.meta.Claim(ctx, tx, caller, id, amount)
	})
}

func (l *Ledger) ClaimMetaTokenFor(ctx context.Context, caller types.Address, id uint64, owner types.Address, amount *uint256.Int) (*Receipt, error) {
	return l.unpaused(ctx, caller, OpClaimMetaTokenFor, func(tx *db.Tx) error {
		return l.meta.ClaimFor(ctx, tx, caller, id, owner, amount)
	})
}

func (l *Ledger) SafeTransferMetaToken(ctx context.Context, caller, from, to types.Address, id uint64, amount *uint256.Int) (*Receipt, error) {
	return l.unpaused(ctx, caller, OpSafeTransferMetaToken, func(tx *db.Tx) error {
		return l.meta.Transfer(ctx, tx, caller, from, to, id, amount)
	})
}

// VerifyProof checks leaf against root with the ledger's verifier.
func (l *Ledger) VerifyProof(root, leaf types.Hash, proof []types.Hash) bool {
	return l.certs.VerifyProof(root, leaf, proof)
}
