// Package events declares the facts the ledger records. Every successful
// operation emits zero or more events; they are journaled in the same unit
// of work as the state change and broadcast once it commits.
package events

import (
	"github.com/holiman/uint256"

	"github.com/energywebfoundation/worker-contract-sub000/types"
)

type Event interface {
	EventName() string
}

// Workers.

type WorkerAdded struct {
	Worker types.Address
	Time   int64
}

func (WorkerAdded) EventName() string { return "WorkerAdded" }

type WorkerRemoved struct {
	Worker types.Address
	Time   int64
}

func (WorkerRemoved) EventName() string { return "WorkerRemoved" }

// Voting.

type WinningMatch struct {
	InputHash  types.Hash
	OutputHash types.Hash
	VoteCount  uint64
}

func (WinningMatch) EventName() string { return "WinningMatch" }

type ConsensusReached struct {
	InputHash  types.Hash
	OutputHash types.Hash
}

func (ConsensusReached) EventName() string { return "ConsensusReached" }

type NoConsensusReached struct {
	InputHash types.Hash
}

func (NoConsensusReached) EventName() string { return "NoConsensusReached" }

type VotingSessionExpired struct {
	InputHash  types.Hash
	OutputHash types.Hash
}

func (VotingSessionExpired) EventName() string { return "VotingSessionExpired" }

// Rewards.

type RewardsPaidOut struct {
	Count uint64
}

func (RewardsPaidOut) EventName() string { return "RewardsPaidOut" }

type Replenished struct {
	Amount *uint256.Int
}

func (Replenished) EventName() string { return "Replenished" }

type RewardsActivated struct{}

func (RewardsActivated) EventName() string { return "RewardsActivated" }

type RewardsDeactivated struct{}

func (RewardsDeactivated) EventName() string { return "RewardsDeactivated" }

// Certificates.

type TransferSingle struct {
	Operator types.Address
	From     types.Address
	To       types.Address
	ID       uint64
	Value    *uint256.Int
}

func (TransferSingle) EventName() string { return "TransferSingle" }

type TransferBatch struct {
	Operator types.Address
	From     types.Address
	To       types.Address
	IDs      []uint64
	Values   []*uint256.Int
}

func (TransferBatch) EventName() string { return "TransferBatch" }

type ProofMinted struct {
	CertificateID uint64
	Amount        *uint256.Int
	Receiver      types.Address
}

func (ProofMinted) EventName() string { return "ProofMinted" }

type ProofRevoked struct {
	CertificateID uint64
}

func (ProofRevoked) EventName() string { return "ProofRevoked" }

type ProofClaimed struct {
	CertificateID uint64
	Owner         types.Address
	ClaimDate     int64
	Amount        *uint256.Int
}

func (ProofClaimed) EventName() string { return "ProofClaimed" }

type ApprovalForAll struct {
	Owner    types.Address
	Operator types.Address
	Approved bool
}

func (ApprovalForAll) EventName() string { return "ApprovalForAll" }

type DataDisclosed struct {
	DataHash types.Hash
	Key      string
	Value    string
}

func (DataDisclosed) EventName() string { return "DataDisclosed" }

// Meta tokens.

type MetaTokenIssued struct {
	TokenID      uint64
	Receiver     types.Address
	IssuanceDate int64
	Amount       *uint256.Int
}

func (MetaTokenIssued) EventName() string { return "MetaTokenIssued" }

type MetaTokenRevoked struct {
	TokenID        uint64
	RevocationDate int64
}

func (MetaTokenRevoked) EventName() string { return "MetaTokenRevoked" }

type MetaTokenClaimed struct {
	TokenID   uint64
	Owner     types.Address
	ClaimDate int64
	Amount    *uint256.Int
}

func (MetaTokenClaimed) EventName() string { return "MetaTokenClaimed" }

type MetaTokenTransferred struct {
	Operator types.Address
	From     types.Address
	To       types.Address
	TokenID  uint64
	Amount   *uint256.Int
}

func (MetaTokenTransferred) EventName() string { return "MetaTokenTransferred" }

// Admin gate.

type AdminFunctionDeclared struct {
	Selector string
	Time     int64
}

func (AdminFunctionDeclared) EventName() string { return "AdminFunctionDeclared" }

type AdminFunctionsDeclared struct {
	Selectors []string
	Time      int64
}

func (AdminFunctionsDeclared) EventName() string { return "AdminFunctionsDeclared" }

type AdminFunctionDiscarded struct {
	Selector string
	Time     int64
}

func (AdminFunctionDiscarded) EventName() string { return "AdminFunctionDiscarded" }

type AdminFunctionsDiscarded struct {
	Selectors []string
	Time      int64
}

func (AdminFunctionsDiscarded) EventName() string { return "AdminFunctionsDiscarded" }

type AdminUpdated struct {
	Previous types.Address
	New      types.Address
}

func (AdminUpdated) EventName() string { return "AdminUpdated" }

// Ledger configuration.

type OwnershipTransferred struct {
	Previous types.Address
	New      types.Address
}

func (OwnershipTransferred) EventName() string { return "OwnershipTransferred" }

type Paused struct {
	Account types.Address
}

func (Paused) EventName() string { return "Paused" }

type Unpaused struct {
	Account types.Address
}

func (Unpaused) EventName() string { return "Unpaused" }

type ClaimManagerUpdated struct {
	Previous types.Address
	New      types.Address
}

func (ClaimManagerUpdated) EventName() string { return "ClaimManagerUpdated" }

type ClaimsRevocationRegistryUpdated struct {
	Previous types.Address
	New      types.Address
}

func (ClaimsRevocationRegistryUpdated) EventName() string { return "ClaimsRevocationRegistryUpdated" }

// RoleVersionUpdated is named after the role, e.g. IssuerVersionUpdated.
type RoleVersionUpdated struct {
	Role     string
	Previous uint64
	New      uint64
}

func (e RoleVersionUpdated) EventName() string { return e.Role + "VersionUpdated" }
