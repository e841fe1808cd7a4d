package greenproof

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

// Operation names. They are the selectors admin functions are declared with.
const (
	OpTransferOwnership             = "transferOwnership"
	OpPause                         = "pause"
	OpUnpause                       = "unpause"
	OpUpdateClaimManager            = "updateClaimManager"
	OpUpdateClaimRevocationRegistry = "updateClaimRevocationRegistry"
	OpSetAdmin                      = "setAdmin"
	OpDeclareSingleAdminFunction    = "declareSingleAdminFunction"
	OpDeclareBatchAdminFunctions    = "declareBatchAdminFunctions"
	OpRemoveSingleAdminFunction     = "removeSingleAdminFunction"
	OpRemoveBatchAdminFunctions     = "removeBatchAdminFunctions"

	OpAddWorker              = "addWorker"
	OpRemoveWorker           = "removeWorker"
	OpVote                   = "vote"
	OpCancelExpiredVotings   = "cancelExpiredVotings"
	OpReplenishRewardPool    = "replenishRewardPool"
	OpFundRewardPool         = "fundRewardPool"
	OpPayReward              = "payReward"
	OpSetRewardsEnabled      = "setRewardsEnabled"
	OpRequestProofIssuance   = "requestProofIssuance"
	OpRequestBatchIssuance   = "requestBatchIssuance"
	OpDiscloseData           = "discloseData"
	OpSafeTransferFrom       = "safeTransferFrom"
	OpSafeBatchTransferFrom  = "safeBatchTransferFrom"
	OpApproveOperator        = "approveOperator"
	OpRemoveApprovedOperator = "removeApprovedOperator"
	OpRevokeProof            = "revokeProof"
	OpClaimProof             = "claimProof"
	OpClaimProofFor          = "claimProofFor"
	OpIssueMetaToken         = "issueMetaToken"
	OpRevokeMetaToken        = "revokeMetaToken"
	OpClaimMetaToken         = "claimMetaToken"
	OpClaimMetaTokenFor      = "claimMetaTokenFor"
	OpSafeTransferMetaToken  = "safeTransferMetaToken"
)

func (l *Ledger) AddWorker(ctx context.Context, caller, worker types.Address) (*Receipt, error) {
	return l.update(ctx, caller, OpAddWorker, func(tx *db.Tx) error {
		return l.workers.Add(ctx, tx, worker)
	})
}

func (l *Ledger) RemoveWorker(ctx context.Context, caller, worker types.Address) (*Receipt, error) {
	return l.update(ctx, caller, OpRemoveWorker, func(tx *db.Tx) error {
		return l.workers.Remove(ctx, tx, worker)
	})
}

// Vote casts the vote of caller, a whitelisted worker.
func (l *Ledger) Vote(ctx context.Context, caller types.Address, input, output types.Hash) (*Receipt, error) {
	return l.update(ctx, caller, OpVote, func(tx *db.Tx) error {
		return l.voting.Vote(ctx, tx, caller, input, output)
	})
}

// CancelExpiredVotings expires timed out sessions within the given window
// of voting ids and candidate indices.
func (l *Ledger) CancelExpiredVotings(ctx context.Context, caller types.Address, startVoting, maxVotings, startSession, maxSessions uint64) (int, *Receipt, error) {
	var expired int
	receipt, err := l.ownerUpdate(ctx, caller, OpCancelExpiredVotings, func(tx *db.Tx, _ *State) error {
		var err error
		expired, err = l.voting.CancelExpired(ctx, tx, startVoting, maxVotings, startSession, maxSessions)
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	receipt.Value = expired
	return expired, receipt, nil
}

func (l *Ledger) ReplenishRewardPool(ctx context.Context, caller types.Address, amount *uint256.Int) (*Receipt, error) {
	var paid uint64
	receipt, err := l.update(ctx, caller, OpReplenishRewardPool, func(tx *db.Tx) error {
		var err error
		paid, err = l.rewards.Replenish(ctx, tx, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	receipt.Value = paid
	return receipt, nil
}

// FundRewardPool deposits amount without paying queued rewards.
func (l *Ledger) FundRewardPool(ctx context.Context, caller types.Address, amount *uint256.Int) (*Receipt, error) {
	return l.update(ctx, caller, OpFundRewardPool, func(tx *db.Tx) error {
		return l.rewards.Fund(tx, amount)
	})
}

func (l *Ledger) PayReward(ctx context.Context, caller types.Address, numberOfPays uint64) (*Receipt, error) {
	var paid uint64
	receipt, err := l.update(ctx, caller, OpPayReward, func(tx *db.Tx) error {
		var err error
		paid, err = l.rewards.PayReward(ctx, tx, numberOfPays)
		return err
	})
	if err != nil {
		return nil, err
	}
	receipt.Value = paid
	return receipt, nil
}

func (l *Ledger) SetRewardsEnabled(ctx context.Context, caller types.Address, enabled bool) (*Receipt, error) {
	return l.ownerUpdate(ctx, caller, OpSetRewardsEnabled, func(tx *db.Tx, _ *State) error {
		return l.rewards.SetEnabled(tx, enabled)
	})
}
