package certificates

import (
	"context"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/hash"
	"github.com/energywebfoundation/worker-contract-sub000/logging"
	"github.com/energywebfoundation/worker-contract-sub000/roles"
	"github.com/energywebfoundation/worker-contract-sub000/types"
	"github.com/energywebfoundation/worker-contract-sub000/voting"
)

// Request asks for a certificate over dataHash.
//
// DataProof must place DataHash under one of the winning matches of VoteID
// and AmountProof must place the leaf "volume"+Volume under DataHash.
// Volume is in whole units; the minted amount carries 18 decimals.
type Request struct {
	VoteID      types.Hash
	Generator   types.Address
	DataHash    types.Hash
	DataProof   []types.Hash
	Volume      *uint256.Int
	AmountProof []types.Hash
	TokenURI    string
}

// VolumeLeaf is the leaf a volume is committed to in a data hash.
func VolumeLeaf(volume *uint256.Int) types.Hash {
	return hash.Leaf("volume", volume.Dec())
}

// Issue mints a certificate to the generator of req.
func (l *Ledger) Issue(ctx context.Context, tx *db.Tx, caller types.Address, req Request) (uint64, error) {
	if err := l.require(ctx, tx, roles.Issuer, caller, ErrNotEnrolledIssuer); err != nil {
		return 0, err
	}
	if req.Generator.IsZero() {
		return 0, ErrForbiddenZeroAddressReceiver.With()
	}
	if req.Volume == nil {
		req.Volume = new(uint256.Int)
	}

	matches, err := voting.WinningMatches(tx, req.VoteID)
	if err != nil {
		return 0, err
	}
	var inConsensus bool
	for _, match := range matches {
		if l.verifier.Verify(req.DataHash, req.DataProof, match) {
			inConsensus = true
			break
		}
	}
	if !inConsensus {
		return 0, ErrNotInConsensus.With(req.VoteID)
	}
	if !l.verifier.Verify(VolumeLeaf(req.Volume), req.AmountProof, req.DataHash) {
		return 0, ErrVolumeNotInConsensus.With(req.Volume, req.DataHash)
	}

	previous, err := ProofIDByDataHash(tx, req.DataHash)
	if err != nil {
		return 0, err
	}
	if previous != 0 {
		cert, err := GetProof(tx, previous)
		if err != nil {
			return 0, err
		}
		if !cert.Revoked {
			return 0, ErrAlreadyCertifiedData.With(req.DataHash)
		}
	}

	amount, err := types.ToWei(req.Volume)
	if err != nil {
		return 0, err
	}
	last, err := LastID(tx)
	if err != nil {
		return 0, err
	}
	cert := &Certificate{
		ID:           last + 1,
		Generator:    req.Generator,
		Volume:       *amount,
		DataHash:     req.DataHash,
		VoteID:       req.VoteID,
		IssuanceDate: tx.Now().Unix(),
		TokenURI:     req.TokenURI,
	}
	if err := putCertificate(tx, cert); err != nil {
		return 0, err
	}
	if err := tx.Put(lastIDKey, cert.ID); err != nil {
		return 0, err
	}
	if err := tx.Put(dataKey(req.DataHash), cert.ID); err != nil {
		return 0, err
	}
	if err := credit(tx, cert.ID, req.Generator, amount); err != nil {
		return 0, err
	}

	tx.Emit(events.TransferSingle{Operator: caller, To: req.Generator, ID: cert.ID, Value: amount.Clone()})
	tx.Emit(events.ProofMinted{CertificateID: cert.ID, Amount: amount.Clone(), Receiver: req.Generator})
	id := cert.ID
	tx.OnCommit(func(ctx context.Context) {
		mintedMetric.Inc()
		logging.FromContext(ctx).Info("certificate minted",
			zap.Uint64("id", id),
			zap.Stringer("generator", req.Generator),
			zap.String("amount", amount.Dec()),
		)
	})
	return cert.ID, nil
}

// IssueBatch mints every request or none.
func (l *Ledger) IssueBatch(ctx context.Context, tx *db.Tx, caller types.Address, reqs []Request) ([]uint64, error) {
	if len(reqs) > l.cfg.MaxBatch {
		return nil, ErrBatchQueueSizeExceeded.With(len(reqs), l.cfg.MaxBatch)
	}
	ids := make([]uint64, 0, len(reqs))
	for _, req := range reqs {
		id, err := l.Issue(ctx, tx, caller, req)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Disclose publishes one field of the data committed to by dataHash.
func (l *Ledger) Disclose(ctx context.Context, tx *db.Tx, caller types.Address, key, value string, proof []types.Hash, dataHash types.Hash) error {
	if err := l.require(ctx, tx, roles.Issuer, caller, ErrNotEnrolledIssuer); err != nil {
		return err
	}
	if !l.verifier.Verify(hash.Leaf(key, value), proof, dataHash) {
		return ErrInvalidProof.With()
	}
	ok, err := tx.Has(disclosedKey(dataHash, key))
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyDisclosedData.With(dataHash, key)
	}
	if err := tx.Put(disclosedKey(dataHash, key), value); err != nil {
		return err
	}
	tx.Emit(events.DataDisclosed{DataHash: dataHash, Key: key, Value: value})
	return nil
}
