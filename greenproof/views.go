package greenproof

import (
	"github.com/energywebfoundation/worker-contract-sub000/certificates"
	"github.com/energywebfoundation/worker-contract-sub000/metatoken"
	"github.com/energywebfoundation/worker-contract-sub000/rewards"
	"github.com/energywebfoundation/worker-contract-sub000/types"
	"github.com/energywebfoundation/worker-contract-sub000/voting"
)

// JSON renderings of stored records. Amounts are decimal wei strings.

type CertificateView struct {
	ID             uint64        `json:"id"`
	Generator      types.Address `json:"generator"`
	Volume         types.Uint    `json:"volume"`
	DataHash       types.Hash    `json:"merkleRootHash"`
	VoteID         types.Hash    `json:"voteID"`
	IssuanceDate   int64         `json:"issuanceDate"`
	Revoked        bool          `json:"isRevoked"`
	RevocationDate int64         `json:"revocationDate"`
	TokenURI       string        `json:"tokenURI"`
}

func certificateView(c *certificates.Certificate) CertificateView {
	return CertificateView{
		ID:             c.ID,
		Generator:      c.Generator,
		Volume:         *types.NewUint(&c.Volume),
		DataHash:       c.DataHash,
		VoteID:         c.VoteID,
		IssuanceDate:   c.IssuanceDate,
		Revoked:        c.Revoked,
		RevocationDate: c.RevocationDate,
		TokenURI:       c.TokenURI,
	}
}

type OwnedView struct {
	Certificate CertificateView `json:"certificate"`
	Remaining   types.Uint      `json:"remainingVolume"`
}

type MetaTokenView struct {
	ID             uint64     `json:"id"`
	Issued         types.Uint `json:"issuedVolume"`
	IssuanceDate   int64      `json:"issuanceDate"`
	Revoked        bool       `json:"isRevoked"`
	RevocationDate int64      `json:"revocationDate"`
	TokenURI       string     `json:"tokenURI"`
}

func metaTokenView(t *metatoken.Token) MetaTokenView {
	return MetaTokenView{
		ID:             t.ID,
		Issued:         *types.NewUint(&t.Issued),
		IssuanceDate:   t.IssuanceDate,
		Revoked:        t.Revoked,
		RevocationDate: t.RevocationDate,
		TokenURI:       t.TokenURI,
	}
}

type PoolView struct {
	Balance types.Uint `json:"balance"`
	Reward  types.Uint `json:"rewardAmount"`
	Enabled bool       `json:"rewardsEnabled"`
	Queued  uint64     `json:"queuedRewards"`
}

func poolView(p *rewards.Pool) PoolView {
	return PoolView{
		Balance: *types.NewUint(&p.Balance),
		Reward:  *types.NewUint(&p.Reward),
		Enabled: p.Enabled,
		Queued:  p.Queued(),
	}
}

type PendingView struct {
	Winner types.Address `json:"winner"`
	Amount types.Uint    `json:"amount"`
}

type CandidateView struct {
	Output    types.Hash      `json:"matchResult"`
	Status    voting.Status   `json:"status"`
	Voters    []types.Address `json:"voters"`
	StartedAt int64           `json:"startedAt"`
}

type SessionView struct {
	Input        types.Hash      `json:"inputHash"`
	Round        uint64          `json:"round"`
	Candidates   []CandidateView `json:"sessions"`
	ActiveVoters []types.Address `json:"activeVoters"`
	Winners      []types.Hash    `json:"winningMatches"`
}

func sessionView(s *voting.Session) SessionView {
	v := SessionView{
		Input:        s.Input,
		Round:        s.Round,
		Candidates:   make([]CandidateView, 0, len(s.Candidates)),
		ActiveVoters: s.ActiveVoters,
		Winners:      s.Winners,
	}
	for _, c := range s.Candidates {
		v.Candidates = append(v.Candidates, CandidateView{Output: c.Output, Status: c.Status, Voters: c.Voters, StartedAt: c.StartedAt})
	}
	return v
}

type StateView struct {
	Owner              types.Address     `json:"owner"`
	Admin              types.Address     `json:"admin"`
	ClaimManager       types.Address     `json:"claimManager"`
	RevocationRegistry types.Address     `json:"claimsRevocationRegistry"`
	Paused             bool              `json:"paused"`
	RoleVersions       map[string]uint64 `json:"roleVersions"`
}
