// Package certificates mints and manages proof certificates: semi-fungible
// tokens for energy volumes whose underlying data won a worker vote.
//
// A certificate is never deleted. Revocation tombstones it, after which it
// can only travel back to its generator and can no longer be claimed.
package certificates

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/merkle"
	"github.com/energywebfoundation/worker-contract-sub000/roles"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

var (
	ErrNotEnrolledIssuer            = types.NewFailure(types.ErrAuthorization, "NotEnrolledIssuer")
	ErrNotEnrolledRevoker           = types.NewFailure(types.ErrAuthorization, "NotEnrolledRevoker")
	ErrNotEnrolledClaimer           = types.NewFailure(types.ErrAuthorization, "NotEnrolledClaimer")
	ErrNotEnrolledApprover          = types.NewFailure(types.ErrAuthorization, "NotEnrolledApprover")
	ErrNotOwnerOrApproved           = types.NewFailure(types.ErrAuthorization, "NotOwnerOrApproved")
	ErrForbiddenZeroAddressReceiver = types.NewFailure(types.ErrValidation, "ForbiddenZeroAddressReceiver")
	ErrNotInConsensus               = types.NewFailure(types.ErrValidation, "NotInConsensus")
	ErrVolumeNotInConsensus         = types.NewFailure(types.ErrValidation, "VolumeNotInConsensus")
	ErrInvalidProof                 = types.NewFailure(types.ErrValidation, "InvalidProof")
	ErrForbiddenSelfApproval        = types.NewFailure(types.ErrValidation, "ForbiddenSelfApproval")
	ErrLengthMismatch               = types.NewFailure(types.ErrValidation, "ArrayLengthMismatch")
	ErrAlreadyCertifiedData         = types.NewFailure(types.ErrStateConflict, "AlreadyCertifiedData")
	ErrInsufficientBalance          = types.NewFailure(types.ErrStateConflict, "InsufficientBalance")
	ErrNotAllowedTransfer           = types.NewFailure(types.ErrStateConflict, "NotAllowedTransfer")
	ErrAlreadyApprovedOperator      = types.NewFailure(types.ErrStateConflict, "AlreadyApprovedOperator")
	ErrNotApprovedOperator          = types.NewFailure(types.ErrStateConflict, "NotApprovedOperator")
	ErrProofRevoked                 = types.NewFailure(types.ErrStateConflict, "ProofRevoked")
	ErrAlreadyDisclosedData         = types.NewFailure(types.ErrStateConflict, "AlreadyDisclosedData")
	ErrNonExistingCertificate       = types.NewFailure(types.ErrNotFound, "NonExistingCertificate")
	ErrDataNotDisclosed             = types.NewFailure(types.ErrNotFound, "DataNotDisclosed")
	ErrBatchQueueSizeExceeded       = types.NewFailure(types.ErrResourceLimit, "BatchQueueSizeExceeded")
	ErrTimeToRevokeElapsed          = types.NewFailure(types.ErrTemporal, "TimeToRevokeElapsed")
)

var (
	mintedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "greenproof",
		Subsystem: "certificates",
		Name:      "minted_total",
		Help:      "Number of certificates minted",
	})
	revokedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "greenproof",
		Subsystem: "certificates",
		Name:      "revoked_total",
		Help:      "Number of certificates revoked",
	})
	claimsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "greenproof",
		Subsystem: "certificates",
		Name:      "claims_total",
		Help:      "Number of certificate claims",
	})
)

// Certificate is the record of a minted proof.
type Certificate struct {
	ID             uint64
	Generator      types.Address
	Volume         uint256.Int
	DataHash       types.Hash
	VoteID         types.Hash
	IssuanceDate   int64
	Revoked        bool
	RevocationDate int64
	TokenURI       string
}

// Holding is what one owner holds of a certificate. Claimed volume stays
// in the balance but can neither be transferred nor claimed again.
type Holding struct {
	Balance uint256.Int
	Claimed uint256.Int
}

func (h *Holding) Available() *uint256.Int {
	return new(uint256.Int).Sub(&h.Balance, &h.Claimed)
}

// Owned is a certificate together with the volume its owner can still use.
type Owned struct {
	Certificate Certificate
	Remaining   uint256.Int
}

// Cascade is told about revoked certificates so that tokens derived from
// them are revoked in the same unit of work.
type Cascade interface {
	RevokeWithParent(ctx context.Context, tx *db.Tx, id uint64) error
}

type Config struct {
	// RevocablePeriod is how long after issuance a certificate can be revoked.
	RevocablePeriod time.Duration
	// MaxBatch bounds batch issuance requests.
	MaxBatch int
}

const DefaultMaxBatch = 20

var lastIDKey = []byte("cert/last")

func certificateKey(id uint64) []byte {
	return db.SeqKey("cert/c", id)
}

func holdingKey(id uint64, owner types.Address) []byte {
	return db.Key("cert/bal", strconv.FormatUint(id, 10), owner.Hex())
}

func ownersKey(id uint64) []byte {
	return db.Key("cert/owners", strconv.FormatUint(id, 10))
}

func ownedKey(owner types.Address) []byte {
	return db.Key("cert/of", owner.Hex())
}

func dataKey(dataHash types.Hash) []byte {
	return db.Key("cert/data", dataHash.Hex())
}

func approvalKey(owner, operator types.Address) []byte {
	return db.Key("cert/approval", owner.Hex(), operator.Hex())
}

func disclosedKey(dataHash types.Hash, key string) []byte {
	return db.Key("cert/disclosed", dataHash.Hex(), key)
}

type Ledger struct {
	cfg      Config
	checker  *roles.Checker
	verifier merkle.Verifier
	cascade  Cascade
}

func New(cfg Config, checker *roles.Checker, verifier merkle.Verifier, cascade Cascade) *Ledger {
	if cfg.MaxBatch == 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	return &Ledger{cfg: cfg, checker: checker, verifier: verifier, cascade: cascade}
}

func (l *Ledger) require(ctx context.Context, tx *db.Tx, kind roles.Kind, caller types.Address, failure *types.Failure) error {
	ok, err := l.checker.Enrolled(ctx, tx, kind, caller)
	if err != nil {
		return err
	}
	if !ok {
		return failure.With(caller)
	}
	return nil
}

// GetProof returns the certificate id.
func GetProof(r db.Reader, id uint64) (*Certificate, error) {
	cert := &Certificate{}
	found, err := db.Lookup(r, certificateKey(id), cert)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNonExistingCertificate.With(id)
	}
	return cert, nil
}

func LastID(r db.Reader) (uint64, error) {
	var last uint64
	err := r.Get(lastIDKey, &last)
	if errors.Is(err, db.ErrNotFound) {
		return 0, nil
	}
	return last, err
}

func getHolding(r db.Reader, id uint64, owner types.Address) (*Holding, error) {
	h := &Holding{}
	if _, err := db.Lookup(r, holdingKey(id, owner), h); err != nil {
		return nil, err
	}
	return h, nil
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

// CertificateOwners lists everyone who ever held id, in order of first receipt.
func CertificateOwners(r db.Reader, id uint64) ([]types.Address, error) {
	owners := []types.Address{}
	if _, err := db.Lookup(r, ownersKey(id), &owners); err != nil {
		return nil, err
	}
	return owners, nil
}

// ProofsOf lists the certificates owner still has unclaimed volume of.
func ProofsOf(r db.Reader, owner types.Address) ([]Owned, error) {
	var ids []uint64
	if _, err := db.Lookup(r, ownedKey(owner), &ids); err != nil {
		return nil, err
	}
	owned := []Owned{}
	for _, id := range ids {
		h, err := getHolding(r, id, owner)
		if err != nil {
			return nil, err
		}
		remaining := h.Available()
		if remaining.IsZero() {
			continue
		}
		cert, err := GetProof(r, id)
		if err != nil {
			return nil, err
		}
		owned = append(owned, Owned{Certificate: *cert, Remaining: *remaining})
	}
	return owned, nil
}

// ProofIDByDataHash returns the latest certificate minted for dataHash, 0 if none.
func ProofIDByDataHash(r db.Reader, dataHash types.Hash) (uint64, error) {
	var id uint64
	if _, err := db.Lookup(r, dataKey(dataHash), &id); err != nil {
		return 0, err
	}
	return id, nil
}

func IsApprovedForAll(r db.Reader, owner, operator types.Address) (bool, error) {
	return r.Has(approvalKey(owner, operator))
}

func DisclosedData(r db.Reader, dataHash types.Hash, key string) (string, error) {
	var value string
	found, err := db.Lookup(r, disclosedKey(dataHash, key), &value)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrDataNotDisclosed.With(dataHash, key)
	}
	return value, nil
}

// VerifyProof checks leaf against root.
func (l *Ledger) VerifyProof(root, leaf types.Hash, proof []types.Hash) bool {
	return l.verifier.Verify(leaf, proof, root)
}

// credit adds amount of id to owner, recording the owner on first receipt.
func credit(tx *db.Tx, id uint64, owner types.Address, amount *uint256.Int) error {
	h, err := getHolding(tx, id, owner)
	if err != nil {
		return err
	}
	if h.Balance.IsZero() && h.Claimed.IsZero() {
		if err := recordOwner(tx, id, owner); err != nil {
			return err
		}
	}
	h.Balance.Add(&h.Balance, amount)
	return tx.Put(holdingKey(id, owner), h)
}

func recordOwner(tx *db.Tx, id uint64, owner types.Address) error {
	owners, err := CertificateOwners(tx, id)
	if err != nil {
		return err
	}
	for _, o := range owners {
		if o == owner {
			return nil
		}
	}
	if err := tx.Put(ownersKey(id), append(owners, owner)); err != nil {
		return err
	}

	var ids []uint64
	if _, err := db.Lookup(tx, ownedKey(owner), &ids); err != nil {
		return err
	}
	return tx.Put(ownedKey(owner), append(ids, id))
}

func putCertificate(tx *db.Tx, cert *Certificate) error {
	if err := tx.Put(certificateKey(cert.ID), cert); err != nil {
		return fmt.Errorf("storing certificate %d: %w", cert.ID, err)
	}
	return nil
}
