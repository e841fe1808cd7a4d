package certificates

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/roles"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

func (l *Ledger) authorizeTransfer(tx *db.Tx, operator, from, to types.Address) error {
	if to.IsZero() {
		return ErrForbiddenZeroAddressReceiver.With()
	}
	if operator == from {
		return nil
	}
	ok, err := IsApprovedForAll(tx, from, operator)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotOwnerOrApproved.With(operator, from)
	}
	return nil
}

// move transfers amount of id. Revoked certificates may only go back to
// their generator.
func move(tx *db.Tx, from, to types.Address, id uint64, amount *uint256.Int) error {
	cert := &Certificate{}
	found, err := db.Lookup(tx, certificateKey(id), cert)
	if err != nil {
		return err
	}
	sender, err := getHolding(tx, id, from)
	if err != nil {
		return err
	}
	if !found || sender.Available().Lt(amount) {
		return ErrInsufficientBalance.With(from, id, amount)
	}
	if cert.Revoked && to != cert.Generator {
		return ErrNotAllowedTransfer.With(id, from, to)
	}
	if from == to {
		return nil
	}

	sender.Balance.Sub(&sender.Balance, amount)
	if err := tx.Put(holdingKey(id, from), sender); err != nil {
		return err
	}
	return credit(tx, id, to, amount)
}

// Transfer moves amount of certificate id from from to to on behalf of operator.
func (l *Ledger) Transfer(ctx context.Context, tx *db.Tx, operator, from, to types.Address, id uint64, amount *uint256.Int) error {
	if err := l.authorizeTransfer(tx, operator, from, to); err != nil {
		return err
	}
	if err := move(tx, from, to, id, amount); err != nil {
		return err
	}
	tx.Emit(events.TransferSingle{Operator: operator, From: from, To: to, ID: id, Value: amount.Clone()})
	return nil
}

// BatchTransfer moves several certificates at once, all or nothing.
func (l *Ledger) BatchTransfer(ctx context.Context, tx *db.Tx, operator, from, to types.Address, ids []uint64, amounts []*uint256.Int) error {
	if len(ids) != len(amounts) {
		return ErrLengthMismatch.With(len(ids), len(amounts))
	}
	if err := l.authorizeTransfer(tx, operator, from, to); err != nil {
		return err
	}
	values := make([]*uint256.Int, 0, len(amounts))
	for i, id := range ids {
		if err := move(tx, from, to, id, amounts[i]); err != nil {
			return err
		}
		values = append(values, amounts[i].Clone())
	}
	tx.Emit(events.TransferBatch{Operator: operator, From: from, To: to, IDs: append([]uint64{}, ids...), Values: values})
	return nil
}

// ApproveOperator lets operator move every certificate of owner. Only an
// enrolled approver can grant that.
func (l *Ledger) ApproveOperator(ctx context.Context, tx *db.Tx, caller, operator, owner types.Address) error {
	if err := l.require(ctx, tx, roles.Approver, caller, ErrNotEnrolledApprover); err != nil {
		return err
	}
	if operator == owner {
		return ErrForbiddenSelfApproval.With(operator, owner)
	}
	ok, err := IsApprovedForAll(tx, owner, operator)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyApprovedOperator.With(operator, owner)
	}
	if err := tx.Put(approvalKey(owner, operator), true); err != nil {
		return err
	}
	tx.Emit(events.ApprovalForAll{Owner: owner, Operator: operator, Approved: true})
	return nil
}

// RemoveApprovedOperator is called by owner to withdraw an approval.
func (l *Ledger) RemoveApprovedOperator(tx *db.Tx, owner, operator types.Address) error {
	ok, err := IsApprovedForAll(tx, owner, operator)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotApprovedOperator.With(operator, owner)
	}
	if err := tx.Delete(approvalKey(owner, operator)); err != nil {
		return err
	}
	tx.Emit(events.ApprovalForAll{Owner: owner, Operator: operator, Approved: false})
	return nil
}
