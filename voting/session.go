package voting

import (
	"fmt"

	mapset "github.com/deckarep/golang-set"

	"github.com/energywebfoundation/worker-contract-sub000/types"
)

// Status is the lifecycle state of a candidate output.
type Status uint32

const (
	// StatusIdle candidates hold no votes; the next vote (re)starts them.
	StatusIdle Status = iota
	StatusActive
	StatusWon
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusActive:
		return "Active"
	case StatusWon:
		return "Won"
	case StatusExpired:
		return "Expired"
	}
	return fmt.Sprintf("Status(%d)", uint32(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Candidate is one proposed output for an input hash.
type Candidate struct {
	Output    types.Hash
	Status    Status
	Voters    []types.Address
	StartedAt int64
}

// Reveal lists the won outputs a worker voted for.
type Reveal struct {
	Worker  types.Address
	Outputs []types.Hash
}

// Session is the voting state of one input hash. Candidates keep the order
// in which they were first proposed.
type Session struct {
	Input        types.Hash
	Round        uint64
	Candidates   []Candidate
	ActiveVoters []types.Address
	Winners      []types.Hash
	Revealed     []Reveal
}

func (s *Session) candidate(output types.Hash) *Candidate {
	for i := range s.Candidates {
		if s.Candidates[i].Output == output {
			return &s.Candidates[i]
		}
	}
	s.Candidates = append(s.Candidates, Candidate{Output: output, Status: StatusIdle})
	return &s.Candidates[len(s.Candidates)-1]
}

func (s *Session) find(output types.Hash) *Candidate {
	for i := range s.Candidates {
		if s.Candidates[i].Output == output {
			return &s.Candidates[i]
		}
	}
	return nil
}

func (s *Session) hasActiveVote(worker types.Address) bool {
	return toSet(s.ActiveVoters).Contains(worker)
}

// release drops the round votes of voters.
func (s *Session) release(voters []types.Address) {
	active := toSet(s.ActiveVoters).Difference(toSet(voters))
	s.ActiveVoters = fromSet(active, s.ActiveVoters)
}

func (s *Session) expire(c *Candidate) {
	s.release(c.Voters)
	c.Voters = nil
	c.Status = StatusExpired
}

// nextRound releases every active vote and resets the candidates that did not win.
func (s *Session) nextRound() {
	s.Round++
	s.ActiveVoters = nil
	for i := range s.Candidates {
		c := &s.Candidates[i]
		if c.Status == StatusActive {
			c.Status = StatusIdle
			c.Voters = nil
		}
	}
}

func (s *Session) reveal(worker types.Address, output types.Hash) {
	for i := range s.Revealed {
		if s.Revealed[i].Worker == worker {
			s.Revealed[i].Outputs = append(s.Revealed[i].Outputs, output)
			return
		}
	}
	s.Revealed = append(s.Revealed, Reveal{Worker: worker, Outputs: []types.Hash{output}})
}

func (s *Session) revealed(worker types.Address) []types.Hash {
	for _, r := range s.Revealed {
		if r.Worker == worker {
			return r.Outputs
		}
	}
	return []types.Hash{}
}

func toSet(addrs []types.Address) mapset.Set {
	set := mapset.NewThreadUnsafeSet()
	for _, a := range addrs {
		set.Add(a)
	}
	return set
}

// fromSet keeps the order of order for the members still in set.
func fromSet(set mapset.Set, order []types.Address) []types.Address {
	var out []types.Address
	for _, a := range order {
		if set.Contains(a) {
			out = append(out, a)
		}
	}
	return out
}

// Threshold is the number of agreeing votes needed among workers:
// ceil(workers * majority / 100), never below one.
func Threshold(workers uint64, majority uint64) uint64 {
	threshold := (workers*majority + 99) / 100
	if threshold == 0 {
		return 1
	}
	return threshold
}
