package certificates_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/energywebfoundation/worker-contract-sub000/certificates"
	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/merkle"
	"github.com/energywebfoundation/worker-contract-sub000/roles"
	"github.com/energywebfoundation/worker-contract-sub000/types"
	"github.com/energywebfoundation/worker-contract-sub000/voting"
	"github.com/energywebfoundation/worker-contract-sub000/workers"
)

const revocablePeriod = time.Hour

var (
	worker    = types.MustAddress("0x00000000000000000000000000000000000000a0")
	issuer    = types.MustAddress("0x00000000000000000000000000000000000000a1")
	revoker   = types.MustAddress("0x00000000000000000000000000000000000000a2")
	claimer   = types.MustAddress("0x00000000000000000000000000000000000000a3")
	approver  = types.MustAddress("0x00000000000000000000000000000000000000a4")
	generator = types.MustAddress("0x00000000000000000000000000000000000000b0")
	alice     = types.MustAddress("0x00000000000000000000000000000000000000b1")
	bob       = types.MustAddress("0x00000000000000000000000000000000000000b2")

	voteID = types.HashFromString("vote-1")
)

type noRewards struct{}

func (noRewards) Reward(context.Context, *db.Tx, []types.Address) error { return nil }

type recordingCascade struct {
	revoked []uint64
}

func (c *recordingCascade) RevokeWithParent(_ context.Context, _ *db.Tx, id uint64) error {
	c.revoked = append(c.revoked, id)
	return nil
}

type fixture struct {
	t       *testing.T
	db      *db.DB
	oracle  *roles.MemoryOracle
	ledger  *certificates.Ledger
	engine  *voting.Engine
	cascade *recordingCascade
	batch   *merkle.Batch
	now     time.Time
}

func newFixture(t *testing.T, maxBatch int) *fixture {
	t.Helper()
	return newFixtureWithItems(t, maxBatch, []map[string]any{
		{"generatorID": "gen-1", "volume": 42},
		{"generatorID": "gen-2", "volume": 7},
		{"generatorID": "gen-3", "volume": 1},
	})
}

func newFixtureWithItems(t *testing.T, maxBatch int, items []map[string]any) *fixture {
	t.Helper()
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, database.Close()) })

	batch, err := merkle.NewBatch(items)
	require.NoError(t, err)

	oracle := roles.NewMemoryOracle()
	checker := roles.NewChecker(oracle)
	cascade := &recordingCascade{}
	f := &fixture{
		t:       t,
		db:      database,
		oracle:  oracle,
		ledger:  certificates.New(certificates.Config{RevocablePeriod: revocablePeriod, MaxBatch: maxBatch}, checker, merkle.Plain, cascade),
		engine:  voting.New(voting.Config{TimeLimit: time.Hour, Majority: 51}, noRewards{}),
		cascade: cascade,
		batch:   batch,
		now:     time.Unix(1_700_000_000, 0),
	}
	for subject, kind := range map[types.Address]roles.Kind{
		worker:   roles.Worker,
		issuer:   roles.Issuer,
		revoker:  roles.Revoker,
		claimer:  roles.Claimer,
		approver: roles.Approver,
	} {
		oracle.Grant(subject, roles.Defaults[kind].Name, 1)
	}
	registry := workers.New(checker)
	f.mustUpdate(func(tx *db.Tx) error {
		for _, kind := range roles.Kinds {
			if err := roles.Put(tx, kind, roles.Defaults[kind]); err != nil {
				return err
			}
		}
		if err := registry.Add(context.Background(), tx, worker); err != nil {
			return err
		}
		// a single worker decides the vote on its own
		return f.engine.Vote(context.Background(), tx, worker, voteID, batch.Root)
	})
	return f
}

func (f *fixture) update(fn func(tx *db.Tx) error) ([]events.Event, error) {
	return f.db.Update(context.Background(), f.now, fn)
}

func (f *fixture) mustUpdate(fn func(tx *db.Tx) error) []events.Event {
	emitted, err := f.update(fn)
	require.NoError(f.t, err)
	return emitted
}

func (f *fixture) view(fn func(r db.Reader)) {
	require.NoError(f.t, f.db.View(context.Background(), func(r db.Reader) error {
		fn(r)
		return nil
	}))
}

func (f *fixture) request(i int, volume uint64) certificates.Request {
	item := f.batch.Items[i]
	_, proof, err := item.FieldProof("volume", volume)
	require.NoError(f.t, err)
	return certificates.Request{
		VoteID:      voteID,
		Generator:   generator,
		DataHash:    item.DataHash,
		DataProof:   item.DataProof,
		Volume:      uint256.NewInt(volume),
		AmountProof: proof,
		TokenURI:    "ipfs://cert",
	}
}

func (f *fixture) issue(caller types.Address, req certificates.Request) (uint64, []events.Event, error) {
	var id uint64
	emitted, err := f.update(func(tx *db.Tx) error {
		var err error
		id, err = f.ledger.Issue(context.Background(), tx, caller, req)
		return err
	})
	return id, emitted, err
}

func (f *fixture) mustIssue(req certificates.Request) uint64 {
	id, _, err := f.issue(issuer, req)
	require.NoError(f.t, err)
	return id
}

func (f *fixture) transfer(operator, from, to types.Address, id uint64, amount *uint256.Int) ([]events.Event, error) {
	return f.update(func(tx *db.Tx) error {
		return f.ledger.Transfer(context.Background(), tx, operator, from, to, id, amount)
	})
}

func (f *fixture) revoke(caller types.Address, id uint64) ([]events.Event, error) {
	return f.update(func(tx *db.Tx) error {
		return f.ledger.Revoke(context.Background(), tx, caller, id)
	})
}

func (f *fixture) balance(owner types.Address, id uint64) *uint256.Int {
	var out *uint256.Int
	f.view(func(r db.Reader) {
		var err error
		out, err = certificates.BalanceOf(r, owner, id)
		require.NoError(f.t, err)
	})
	return out
}

func (f *fixture) claimed(owner types.Address, id uint64) *uint256.Int {
	var out *uint256.Int
	f.view(func(r db.Reader) {
		var err error
		out, err = certificates.ClaimedBalanceOf(r, owner, id)
		require.NoError(f.t, err)
	})
	return out
}

func TestIssue(t *testing.T) {
	f := newFixture(t, 0)
	req := f.request(0, 42)

	id, emitted, err := f.issue(issuer, req)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
	require.Equal(t, []events.Event{
		events.TransferSingle{Operator: issuer, To: generator, ID: 1, Value: types.Ether(42)},
		events.ProofMinted{CertificateID: 1, Amount: types.Ether(42), Receiver: generator},
	}, emitted)

	require.Equal(t, types.Ether(42), f.balance(generator, 1))
	f.view(func(r db.Reader) {
		cert, err := certificates.GetProof(r, 1)
		require.NoError(t, err)
		require.Equal(t, generator, cert.Generator)
		require.Equal(t, *types.Ether(42), cert.Volume)
		require.Equal(t, req.DataHash, cert.DataHash)
		require.Equal(t, voteID, cert.VoteID)
		require.Equal(t, f.now.Unix(), cert.IssuanceDate)
		require.Equal(t, "ipfs://cert", cert.TokenURI)
		require.False(t, cert.Revoked)

		last, err := certificates.LastID(r)
		require.NoError(t, err)
		require.Equal(t, uint64(1), last)

		byData, err := certificates.ProofIDByDataHash(r, req.DataHash)
		require.NoError(t, err)
		require.Equal(t, uint64(1), byData)

		owners, err := certificates.CertificateOwners(r, 1)
		require.NoError(t, err)
		require.Equal(t, []types.Address{generator}, owners)

		owned, err := certificates.ProofsOf(r, generator)
		require.NoError(t, err)
		require.Len(t, owned, 1)
		require.Equal(t, *types.Ether(42), owned[0].Remaining)

		_, err = certificates.GetProof(r, 2)
		require.ErrorIs(t, err, certificates.ErrNonExistingCertificate)
		require.ErrorIs(t, err, types.ErrNotFound)

		unknown, err := certificates.ProofIDByDataHash(r, types.HashFromString("unknown"))
		require.NoError(t, err)
		require.Zero(t, unknown)
	})
}

func TestIssueRejections(t *testing.T) {
	f := newFixture(t, 0)
	req := f.request(0, 42)

	_, _, err := f.issue(alice, req)
	require.ErrorIs(t, err, certificates.ErrNotEnrolledIssuer)
	require.ErrorIs(t, err, types.ErrAuthorization)

	zero := req
	zero.Generator = types.Address{}
	_, _, err = f.issue(issuer, zero)
	require.ErrorIs(t, err, certificates.ErrForbiddenZeroAddressReceiver)

	unknownVote := req
	unknownVote.VoteID = types.HashFromString("vote-2")
	_, _, err = f.issue(issuer, unknownVote)
	require.ErrorIs(t, err, certificates.ErrNotInConsensus)

	otherData := req
	otherData.DataProof = f.batch.Items[1].DataProof
	_, _, err = f.issue(issuer, otherData)
	require.ErrorIs(t, err, certificates.ErrNotInConsensus)

	wrongVolume := req
	wrongVolume.Volume = uint256.NewInt(43)
	_, _, err = f.issue(issuer, wrongVolume)
	require.ErrorIs(t, err, certificates.ErrVolumeNotInConsensus)

	f.mustIssue(req)
	_, _, err = f.issue(issuer, req)
	require.ErrorIs(t, err, certificates.ErrAlreadyCertifiedData)
	require.ErrorIs(t, err, types.ErrStateConflict)

	f.oracle.Revoke(issuer, roles.Defaults[roles.Issuer].Name)
	_, _, err = f.issue(issuer, f.request(1, 7))
	require.ErrorIs(t, err, certificates.ErrNotEnrolledIssuer)
}

func TestReissueAfterRevocation(t *testing.T) {
	f := newFixture(t, 0)
	req := f.request(0, 42)
	first := f.mustIssue(req)
	_, err := f.revoke(revoker, first)
	require.NoError(t, err)

	second := f.mustIssue(req)
	require.Equal(t, uint64(2), second)
	f.view(func(r db.Reader) {
		id, err := certificates.ProofIDByDataHash(r, req.DataHash)
		require.NoError(t, err)
		require.Equal(t, second, id)
	})
}

func TestIssueBatch(t *testing.T) {
	f := newFixture(t, 2)
	batch := func(reqs ...certificates.Request) ([]uint64, error) {
		var ids []uint64
		_, err := f.update(func(tx *db.Tx) error {
			var err error
			ids, err = f.ledger.IssueBatch(context.Background(), tx, issuer, reqs)
			return err
		})
		return ids, err
	}

	_, err := batch(f.request(0, 42), f.request(1, 7), f.request(2, 1))
	require.ErrorIs(t, err, certificates.ErrBatchQueueSizeExceeded)
	require.ErrorIs(t, err, types.ErrResourceLimit)

	bad := f.request(1, 7)
	bad.Volume = uint256.NewInt(8)
	_, err = batch(f.request(0, 42), bad)
	require.ErrorIs(t, err, certificates.ErrVolumeNotInConsensus)
	f.view(func(r db.Reader) {
		last, err := certificates.LastID(r)
		require.NoError(t, err)
		require.Zero(t, last)
	})

	ids, err := batch(f.request(0, 42), f.request(1, 7))
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, ids)
	require.Equal(t, types.Ether(7), f.balance(generator, 2))
}

func TestIssueBatchDefaultLimit(t *testing.T) {
	items := make([]map[string]any, certificates.DefaultMaxBatch+1)
	for i := range items {
		items[i] = map[string]any{"generatorID": fmt.Sprintf("gen-%d", i), "volume": i + 1}
	}
	f := newFixtureWithItems(t, 0, items)
	requests := make([]certificates.Request, len(items))
	for i := range requests {
		requests[i] = f.request(i, uint64(i+1))
	}
	batch := func(reqs []certificates.Request) ([]uint64, error) {
		var ids []uint64
		_, err := f.update(func(tx *db.Tx) error {
			var err error
			ids, err = f.ledger.IssueBatch(context.Background(), tx, issuer, reqs)
			return err
		})
		return ids, err
	}

	_, err := batch(requests)
	require.ErrorIs(t, err, certificates.ErrBatchQueueSizeExceeded)
	require.EqualError(t, err, "BatchQueueSizeExceeded(21, 20)")
	f.view(func(r db.Reader) {
		last, err := certificates.LastID(r)
		require.NoError(t, err)
		require.Zero(t, last)
	})

	ids, err := batch(requests[:certificates.DefaultMaxBatch])
	require.NoError(t, err)
	require.Len(t, ids, certificates.DefaultMaxBatch)
	require.Equal(t, uint64(1), ids[0])
	require.Equal(t, uint64(certificates.DefaultMaxBatch), ids[len(ids)-1])
}

func TestTransfers(t *testing.T) {
	f := newFixture(t, 0)
	id := f.mustIssue(f.request(0, 42))

	emitted, err := f.transfer(generator, generator, alice, id, types.Ether(10))
	require.NoError(t, err)
	require.Equal(t, []events.Event{
		events.TransferSingle{Operator: generator, From: generator, To: alice, ID: id, Value: types.Ether(10)},
	}, emitted)
	require.Equal(t, types.Ether(32), f.balance(generator, id))
	require.Equal(t, types.Ether(10), f.balance(alice, id))

	_, err = f.transfer(alice, generator, alice, id, types.Ether(1))
	require.ErrorIs(t, err, certificates.ErrNotOwnerOrApproved)
	_, err = f.transfer(generator, generator, types.Address{}, id, types.Ether(1))
	require.ErrorIs(t, err, certificates.ErrForbiddenZeroAddressReceiver)
	_, err = f.transfer(alice, alice, bob, id, types.Ether(11))
	require.ErrorIs(t, err, certificates.ErrInsufficientBalance)
	_, err = f.transfer(alice, alice, bob, 99, types.Ether(1))
	require.ErrorIs(t, err, certificates.ErrInsufficientBalance)

	approve := func(caller, operator, owner types.Address) ([]events.Event, error) {
		return f.update(func(tx *db.Tx) error {
			return f.ledger.ApproveOperator(context.Background(), tx, caller, operator, owner)
		})
	}
	_, err = approve(alice, alice, generator)
	require.ErrorIs(t, err, certificates.ErrNotEnrolledApprover)
	_, err = approve(approver, generator, generator)
	require.ErrorIs(t, err, certificates.ErrForbiddenSelfApproval)

	emitted, err = approve(approver, alice, generator)
	require.NoError(t, err)
	require.Equal(t, []events.Event{events.ApprovalForAll{Owner: generator, Operator: alice, Approved: true}}, emitted)
	_, err = approve(approver, alice, generator)
	require.ErrorIs(t, err, certificates.ErrAlreadyApprovedOperator)

	_, err = f.transfer(alice, generator, bob, id, types.Ether(2))
	require.NoError(t, err)
	require.Equal(t, types.Ether(2), f.balance(bob, id))

	f.view(func(r db.Reader) {
		owners, err := certificates.CertificateOwners(r, id)
		require.NoError(t, err)
		require.Equal(t, []types.Address{generator, alice, bob}, owners)
	})

	remove := func() ([]events.Event, error) {
		return f.update(func(tx *db.Tx) error {
			return f.ledger.RemoveApprovedOperator(tx, generator, alice)
		})
	}
	emitted, err = remove()
	require.NoError(t, err)
	require.Equal(t, []events.Event{events.ApprovalForAll{Owner: generator, Operator: alice, Approved: false}}, emitted)
	_, err = remove()
	require.ErrorIs(t, err, certificates.ErrNotApprovedOperator)
	_, err = f.transfer(alice, generator, bob, id, types.Ether(1))
	require.ErrorIs(t, err, certificates.ErrNotOwnerOrApproved)
}

func TestBatchTransfer(t *testing.T) {
	f := newFixture(t, 0)
	first := f.mustIssue(f.request(0, 42))
	second := f.mustIssue(f.request(1, 7))
	batch := func(ids []uint64, amounts []*uint256.Int) ([]events.Event, error) {
		return f.update(func(tx *db.Tx) error {
			return f.ledger.BatchTransfer(context.Background(), tx, generator, generator, alice, ids, amounts)
		})
	}

	_, err := batch([]uint64{first, second}, []*uint256.Int{types.Ether(1)})
	require.ErrorIs(t, err, certificates.ErrLengthMismatch)

	_, err = batch([]uint64{first, second}, []*uint256.Int{types.Ether(1), types.Ether(8)})
	require.ErrorIs(t, err, certificates.ErrInsufficientBalance)
	require.True(t, f.balance(alice, first).IsZero())

	emitted, err := batch([]uint64{first, second}, []*uint256.Int{types.Ether(1), types.Ether(7)})
	require.NoError(t, err)
	require.Equal(t, []events.Event{events.TransferBatch{
		Operator: generator,
		From:     generator,
		To:       alice,
		IDs:      []uint64{first, second},
		Values:   []*uint256.Int{types.Ether(1), types.Ether(7)},
	}}, emitted)
	require.Equal(t, types.Ether(1), f.balance(alice, first))
	require.Equal(t, types.Ether(7), f.balance(alice, second))

	f.view(func(r db.Reader) {
		owned, err := certificates.ProofsOf(r, generator)
		require.NoError(t, err)
		require.Len(t, owned, 1)
		require.Equal(t, first, owned[0].Certificate.ID)
	})
}

func TestRevoke(t *testing.T) {
	f := newFixture(t, 0)
	id := f.mustIssue(f.request(0, 42))
	_, err := f.transfer(generator, generator, alice, id, types.Ether(5))
	require.NoError(t, err)

	_, err = f.revoke(alice, id)
	require.ErrorIs(t, err, certificates.ErrNotEnrolledRevoker)
	_, err = f.revoke(revoker, 42)
	require.ErrorIs(t, err, certificates.ErrNonExistingCertificate)

	f.now = f.now.Add(revocablePeriod - time.Second)
	emitted, err := f.revoke(revoker, id)
	require.NoError(t, err)
	require.Equal(t, []events.Event{events.ProofRevoked{CertificateID: id}}, emitted)
	require.Equal(t, []uint64{id}, f.cascade.revoked)

	_, err = f.revoke(revoker, id)
	require.ErrorIs(t, err, certificates.ErrProofRevoked)

	f.view(func(r db.Reader) {
		cert, err := certificates.GetProof(r, id)
		require.NoError(t, err)
		require.True(t, cert.Revoked)
		require.Equal(t, f.now.Unix(), cert.RevocationDate)
	})

	// revoked volume can only go back to its generator
	_, err = f.transfer(alice, alice, bob, id, types.Ether(1))
	require.ErrorIs(t, err, certificates.ErrNotAllowedTransfer)
	_, err = f.transfer(alice, alice, generator, id, types.Ether(5))
	require.NoError(t, err)
	require.Equal(t, types.Ether(42), f.balance(generator, id))

	_, err = f.update(func(tx *db.Tx) error {
		return f.ledger.Claim(context.Background(), tx, generator, id, types.Ether(1))
	})
	require.ErrorIs(t, err, certificates.ErrProofRevoked)
}

func TestRevocationWindow(t *testing.T) {
	f := newFixture(t, 0)
	id := f.mustIssue(f.request(0, 42))

	f.now = f.now.Add(revocablePeriod)
	_, err := f.revoke(revoker, id)
	require.ErrorIs(t, err, certificates.ErrTimeToRevokeElapsed)
	require.ErrorIs(t, err, types.ErrTemporal)
	require.Empty(t, f.cascade.revoked)
}

func TestClaims(t *testing.T) {
	f := newFixture(t, 0)
	id := f.mustIssue(f.request(0, 42))
	claim := func(amount *uint256.Int) ([]events.Event, error) {
		return f.update(func(tx *db.Tx) error {
			return f.ledger.Claim(context.Background(), tx, generator, id, amount)
		})
	}
	claimFor := func(caller types.Address, amount *uint256.Int) error {
		_, err := f.update(func(tx *db.Tx) error {
			return f.ledger.ClaimFor(context.Background(), tx, caller, id, generator, amount)
		})
		return err
	}

	emitted, err := claim(types.Ether(10))
	require.NoError(t, err)
	require.Equal(t, []events.Event{
		events.ProofClaimed{CertificateID: id, Owner: generator, ClaimDate: f.now.Unix(), Amount: types.Ether(10)},
	}, emitted)
	require.Equal(t, types.Ether(10), f.claimed(generator, id))
	require.Equal(t, types.Ether(42), f.balance(generator, id))

	// claimed volume stays put
	_, err = f.transfer(generator, generator, alice, id, types.Ether(33))
	require.ErrorIs(t, err, certificates.ErrInsufficientBalance)
	_, err = claim(types.Ether(33))
	require.ErrorIs(t, err, certificates.ErrInsufficientBalance)

	require.ErrorIs(t, claimFor(alice, types.Ether(1)), certificates.ErrNotEnrolledClaimer)
	require.NoError(t, claimFor(claimer, types.Ether(32)))
	require.Equal(t, types.Ether(42), f.claimed(generator, id))

	f.view(func(r db.Reader) {
		owned, err := certificates.ProofsOf(r, generator)
		require.NoError(t, err)
		require.Empty(t, owned)
	})
}

func TestDisclose(t *testing.T) {
	f := newFixture(t, 0)
	item := f.batch.Items[0]
	_, proof, err := item.FieldProof("generatorID", "gen-1")
	require.NoError(t, err)
	disclose := func(caller types.Address, value string, proof []types.Hash) ([]events.Event, error) {
		return f.update(func(tx *db.Tx) error {
			return f.ledger.Disclose(context.Background(), tx, caller, "generatorID", value, proof, item.DataHash)
		})
	}

	// values are disclosed in their JSON rendering
	_, err = disclose(alice, `"gen-1"`, proof)
	require.ErrorIs(t, err, certificates.ErrNotEnrolledIssuer)
	_, err = disclose(issuer, `"gen-2"`, proof)
	require.ErrorIs(t, err, certificates.ErrInvalidProof)

	f.view(func(r db.Reader) {
		_, err := certificates.DisclosedData(r, item.DataHash, "generatorID")
		require.ErrorIs(t, err, certificates.ErrDataNotDisclosed)
	})

	emitted, err := disclose(issuer, `"gen-1"`, proof)
	require.NoError(t, err)
	require.Equal(t, []events.Event{
		events.DataDisclosed{DataHash: item.DataHash, Key: "generatorID", Value: `"gen-1"`},
	}, emitted)
	_, err = disclose(issuer, `"gen-1"`, proof)
	require.ErrorIs(t, err, certificates.ErrAlreadyDisclosedData)

	f.view(func(r db.Reader) {
		value, err := certificates.DisclosedData(r, item.DataHash, "generatorID")
		require.NoError(t, err)
		require.Equal(t, `"gen-1"`, value)
	})
}
