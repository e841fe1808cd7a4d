// Package metatoken derives meta tokens from certificates. A meta token
// shares the id of its parent certificate, can never exceed the parent's
// volume and is revoked together with it.
package metatoken

import (
	"context"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/energywebfoundation/worker-contract-sub000/certificates"
	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/logging"
	"github.com/energywebfoundation/worker-contract-sub000/roles"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

var (
	ErrMetaTokenIssuanceDisabled = types.NewFailure(types.ErrStateConflict, "MetaTokenIssuanceDisabled")
	ErrNotAllowedIssuance        = types.NewFailure(types.ErrStateConflict, "NotAllowedIssuance")
	ErrNotAdmin                  = types.NewFailure(types.ErrAuthorization, "NotAdmin")
	ErrMetaTokenNotFound         = types.NewFailure(types.ErrNotFound, "MetaTokenNotFound")
	ErrRevokedToken              = types.NewFailure(types.ErrStateConflict, "RevokedToken")
)

var issuedMetric = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "greenproof",
	Subsystem: "metatoken",
	Name:      "issued_total",
	Help:      "Number of meta token issuances",
})

// Token is the record of the meta token derived from certificate ID.
type Token struct {
	ID             uint64
	Issued         uint256.Int
	IssuanceDate   int64
	Revoked        bool
	RevocationDate int64
	TokenURI       string
}

type Holding struct {
	Balance uint256.Int
	Claimed uint256.Int
}

func (h *Holding) Available() *uint256.Int {
	return new(uint256.Int).Sub(&h.Balance, &h.Claimed)
}

func tokenKey(id uint64) []byte {
	return db.SeqKey("meta/t", id)
}

func holdingKey(id uint64, owner types.Address) []byte {
	return db.Key("meta/bal", strconv.FormatUint(id, 10), owner.Hex())
}

type Config struct {
	IssuanceEnabled bool
}

type Ledger struct {
	cfg     Config
	checker *roles.Checker
}

func New(cfg Config, checker *roles.Checker) *Ledger {
	return &Ledger{cfg: cfg, checker: checker}
}

// Issue mints amount meta tokens of parentID to receiver.
func (l *Ledger) Issue(ctx context.Context, tx *db.Tx, caller types.Address, parentID uint64, amount *uint256.Int, receiver types.Address, uri string) error {
	if !l.cfg.IssuanceEnabled {
		return ErrMetaTokenIssuanceDisabled.With()
	}
	ok, err := l.checker.Enrolled(ctx, tx, roles.Issuer, caller)
	if err != nil {
		return err
	}
	if !ok {
		return certificates.ErrNotEnrolledIssuer.With(caller)
	}
	if receiver.IsZero() {
		return certificates.ErrForbiddenZeroAddressReceiver.With()
	}
	parent, err := certificates.GetProof(tx, parentID)
	if err != nil {
		return err
	}

	token, _, err := lookup(tx, parentID)
	if err != nil {
		return err
	}
	available := new(uint256.Int)
	if !parent.Revoked {
		available.Sub(&parent.Volume, &token.Issued)
	}
	if available.Lt(amount) {
		return ErrNotAllowedIssuance.With(parentID, receiver, amount, available)
	}

	token.ID = parentID
	token.Issued.Add(&token.Issued, amount)
	if token.IssuanceDate == 0 {
		token.IssuanceDate = tx.Now().Unix()
	}
	if uri != "" {
		token.TokenURI = uri
	}
	if err := tx.Put(tokenKey(parentID), token); err != nil {
		return err
	}
	h, err := getHolding(tx, parentID, receiver)
	if err != nil {
		return err
	}
	h.Balance.Add(&h.Balance, amount)
	if err := tx.Put(holdingKey(parentID, receiver), h); err != nil {
		return err
	}

	tx.Emit(events.MetaTokenIssued{TokenID: parentID, Receiver: receiver, IssuanceDate: tx.Now().Unix(), Amount: amount.Clone()})
	tx.OnCommit(func(ctx context.Context) {
		issuedMetric.Inc()
		logging.FromContext(ctx).Info("meta token issued",
			zap.Uint64("id", parentID),
			zap.Stringer("receiver", receiver),
			zap.String("amount", amount.Dec()),
		)
	})
	return nil
}

// Revoke is the externally reachable revocation. Meta tokens are only ever
// revoked together with their parent certificate, so it always fails.
func (l *Ledger) Revoke(caller types.Address, id uint64) error {
	return ErrNotAdmin.With(caller)
}

// RevokeWithParent revokes the meta token of a revoked certificate, if any.
func (l *Ledger) RevokeWithParent(ctx context.Context, tx *db.Tx, id uint64) error {
	_, found, err := lookup(tx, id)
	if err != nil || !found {
		return err
	}
	return revoke(tx, id)
}

func revoke(tx *db.Tx, id uint64) error {
	token, found, err := lookup(tx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrMetaTokenNotFound.With(id)
	}
	if token.Revoked {
		return ErrRevokedToken.With(id)
	}
	token.Revoked = true
	token.RevocationDate = tx.Now().Unix()
	if err := tx.Put(tokenKey(id), token); err != nil {
		return err
	}
	tx.Emit(events.MetaTokenRevoked{TokenID: id, RevocationDate: token.RevocationDate})
	return nil
}

// Claim retires amount of meta token id held by caller.
func (l *Ledger) Claim(ctx context.Context, tx *db.Tx, caller types.Address, id uint64, amount *uint256.Int) error {
	return claim(tx, id, caller, amount)
}

// ClaimFor retires amount of meta token id held by owner on behalf of an enrolled claimer.
func (l *Ledger) ClaimFor(ctx context.Context, tx *db.Tx, caller types.Address, id uint64, owner types.Address, amount *uint256.Int) error {
	ok, err := l.checker.Enrolled(ctx, tx, roles.Claimer, caller)
	if err != nil {
		return err
	}
	if !ok {
		return certificates.ErrNotEnrolledClaimer.With(caller)
	}
	return claim(tx, id, owner, amount)
}

func claim(tx *db.Tx, id uint64, owner types.Address, amount *uint256.Int) error {
	if _, err := usable(tx, id); err != nil {
		return err
	}
	h, err := getHolding(tx, id, owner)
	if err != nil {
		return err
	}
	if h.Available().Lt(amount) {
		return certificates.ErrInsufficientBalance.With(owner, id, amount)
	}
	h.Claimed.Add(&h.Claimed, amount)
	if err := tx.Put(holdingKey(id, owner), h); err != nil {
		return err
	}
	tx.Emit(events.MetaTokenClaimed{TokenID: id, Owner: owner, ClaimDate: tx.Now().Unix(), Amount: amount.Clone()})
	return nil
}

// Transfer moves amount of meta token id. Certificate operator approvals
// apply to meta tokens as well.
func (l *Ledger) Transfer(ctx context.Context, tx *db.Tx, operator, from, to types.Address, id uint64, amount *uint256.Int) error {
	if operator != from {
		ok, err := certificates.IsApprovedForAll(tx, from, operator)
		if err != nil {
			return err
		}
		if !ok {
			return certificates.ErrNotOwnerOrApproved.With(operator, from)
		}
	}
	if to.IsZero() {
		return certificates.ErrForbiddenZeroAddressReceiver.With()
	}
	if _, err := usable(tx, id); err != nil {
		return err
	}
	sender, err := getHolding(tx, id, from)
	if err != nil {
		return err
	}
	if sender.Available().Lt(amount) {
		return certificates.ErrInsufficientBalance.With(from, id, amount)
	}
	if from != to {
		sender.Balance.Sub(&sender.Balance, amount)
		if err := tx.Put(holdingKey(id, from), sender); err != nil {
			return err
		}
		receiver, err := getHolding(tx, id, to)
		if err != nil {
			return err
		}
		receiver.Balance.Add(&receiver.Balance, amount)
		if err := tx.Put(holdingKey(id, to), receiver); err != nil {
			return err
		}
	}
	tx.Emit(events.MetaTokenTransferred{Operator: operator, From: from, To: to, TokenID: id, Amount: amount.Clone()})
	return nil
}

// usable returns token id unless it is missing or revoked.
func usable(r db.Reader, id uint64) (*Token, error) {
	token, found, err := lookup(r, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrMetaTokenNotFound.With(id)
	}
	if token.Revoked {
		return nil, ErrRevokedToken.With(id)
	}
	return token, nil
}

func lookup(r db.Reader, id uint64) (*Token, bool, error) {
	token := &Token{}
	found, err := db.Lookup(r, tokenKey(id), token)
	return token, found, err
}

func getHolding(r db.Reader, id uint64, owner types.Address) (*Holding, error) {
	h := &Holding{}
	if _, err := db.Lookup(r, holdingKey(id, owner), h); err != nil {
		return nil, err
	}
	return h, nil
}

func GetMetaToken(r db.Reader, id uint64) (*Token, error) {
	token, found, err := lookup(r, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrMetaTokenNotFound.With(id)
	}
	return token, nil
}

func BalanceOf(r db.Reader, owner types.Address, id uint64) (*uint256.Int, error) {
	h, err := getHolding(r, id, owner)
	if err != nil {
		return nil, err
	}
	return h.Balance.Clone(), nil
}

func ClaimedBalanceOf(r db.Reader, owner types.Address, id uint64) (*uint256.Int, error) {
	h, err := getHolding(r, id, owner)
	if err != nil {
		return nil, err
	}
	return h.Claimed.Clone(), nil
}

// IssuedVolume is the meta volume issued against certificate id so far.
func IssuedVolume(r db.Reader, id uint64) (*uint256.Int, error) {
	token, _, err := lookup(r, id)
	if err != nil {
		return nil, err
	}
	return token.Issued.Clone(), nil
}
