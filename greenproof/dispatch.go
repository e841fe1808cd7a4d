package greenproof

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/holiman/uint256"

	"github.com/energywebfoundation/worker-contract-sub000/admin"
	"github.com/energywebfoundation/worker-contract-sub000/certificates"
	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/events"
	"github.com/energywebfoundation/worker-contract-sub000/metatoken"
	"github.com/energywebfoundation/worker-contract-sub000/rewards"
	"github.com/energywebfoundation/worker-contract-sub000/roles"
	"github.com/energywebfoundation/worker-contract-sub000/types"
	"github.com/energywebfoundation/worker-contract-sub000/voting"
	"github.com/energywebfoundation/worker-contract-sub000/workers"
)

var (
	ErrUnknownOperation = types.NewFailure(types.ErrUnknownCommand, "UnknownOperation")
	ErrInvalidArguments = types.NewFailure(types.ErrValidation, "InvalidArguments")
)

// MaxEventsPage bounds one events read.
const MaxEventsPage = 1000

// IssuanceRequest is the JSON form of certificates.Request. Volume is in
// whole units.
type IssuanceRequest struct {
	VoteID      types.Hash    `json:"voteID"`
	Generator   types.Address `json:"generator"`
	DataHash    types.Hash    `json:"dataHash"`
	DataProof   []types.Hash  `json:"dataProof"`
	Volume      types.Uint    `json:"volume"`
	AmountProof []types.Hash  `json:"amountProof"`
	TokenURI    string        `json:"tokenUri"`
}

func (r *IssuanceRequest) request() certificates.Request {
	return certificates.Request{
		VoteID:      r.VoteID,
		Generator:   r.Generator,
		DataHash:    r.DataHash,
		DataProof:   r.DataProof,
		Volume:      r.Volume.Int(),
		AmountProof: r.AmountProof,
		TokenURI:    r.TokenURI,
	}
}

type (
	callHandler func(ctx context.Context, l *Ledger, caller types.Address, args json.RawMessage) (*Receipt, error)
	readHandler func(r db.Reader, args json.RawMessage) (any, error)
	none        struct{}
)

func decode[T any](args json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(args)) == 0 {
		args = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, ErrInvalidArguments.With(err.Error())
	}
	return v, nil
}

func call[T any](fn func(ctx context.Context, l *Ledger, caller types.Address, a T) (*Receipt, error)) callHandler {
	return func(ctx context.Context, l *Ledger, caller types.Address, args json.RawMessage) (*Receipt, error) {
		a, err := decode[T](args)
		if err != nil {
			return nil, err
		}
		return fn(ctx, l, caller, a)
	}
}

func read[T any](fn func(r db.Reader, a T) (any, error)) readHandler {
	return func(r db.Reader, args json.RawMessage) (any, error) {
		a, err := decode[T](args)
		if err != nil {
			return nil, err
		}
		return fn(r, a)
	}
}

type (
	addressArg struct {
		Address types.Address `json:"address"`
	}
	workerArg struct {
		Worker types.Address `json:"worker"`
	}
	idArg struct {
		ID uint64 `json:"id"`
	}
	amountArg struct {
		Amount types.Uint `json:"amount"`
	}
	selectorArg struct {
		Selector string `json:"functionSelector"`
	}
	selectorsArg struct {
		Selectors []string `json:"functionSelectors"`
	}
	transferArgs struct {
		From   types.Address `json:"from"`
		To     types.Address `json:"to"`
		ID     uint64        `json:"id"`
		Amount types.Uint    `json:"amount"`
	}
	claimArgs struct {
		ID     uint64        `json:"id"`
		Owner  types.Address `json:"owner"`
		Amount types.Uint    `json:"amount"`
	}
	balanceArgs struct {
		Account types.Address `json:"account"`
		ID      uint64        `json:"id"`
	}
	inputArg struct {
		InputHash types.Hash `json:"inputHash"`
	}
)

var calls = map[string]callHandler{
	OpTransferOwnership: call(func(ctx context.Context, l *Ledger, caller types.Address, a struct {
		NewOwner types.Address `json:"newOwner"`
	}) (*Receipt, error) {
		return l.TransferOwnership(ctx, caller, a.NewOwner)
	}),
	OpPause: call(func(ctx context.Context, l *Ledger, caller types.Address, _ none) (*Receipt, error) {
		return l.Pause(ctx, caller)
	}),
	OpUnpause: call(func(ctx context.Context, l *Ledger, caller types.Address, _ none) (*Receipt, error) {
		return l.Unpause(ctx, caller)
	}),
	OpUpdateClaimManager: call(func(ctx context.Context, l *Ledger, caller types.Address, a addressArg) (*Receipt, error) {
		return l.UpdateClaimManager(ctx, caller, a.Address)
	}),
	OpUpdateClaimRevocationRegistry: call(func(ctx context.Context, l *Ledger, caller types.Address, a addressArg) (*Receipt, error) {
		return l.UpdateClaimRevocationRegistry(ctx, caller, a.Address)
	}),
	OpSetAdmin: call(func(ctx context.Context, l *Ledger, caller types.Address, a addressArg) (*Receipt, error) {
		return l.SetAdmin(ctx, caller, a.Address)
	}),
	OpDeclareSingleAdminFunction: call(func(ctx context.Context, l *Ledger, caller types.Address, a selectorArg) (*Receipt, error) {
		return l.DeclareSingleAdminFunction(ctx, caller, a.Selector)
	}),
	OpDeclareBatchAdminFunctions: call(func(ctx context.Context, l *Ledger, caller types.Address, a selectorsArg) (*Receipt, error) {
		return l.DeclareBatchAdminFunctions(ctx, caller, a.Selectors)
	}),
	OpRemoveSingleAdminFunction: call(func(ctx context.Context, l *Ledger, caller types.Address, a selectorArg) (*Receipt, error) {
		return l.RemoveSingleAdminFunction(ctx, caller, a.Selector)
	}),
	OpRemoveBatchAdminFunctions: call(func(ctx context.Context, l *Ledger, caller types.Address, a selectorsArg) (*Receipt, error) {
		return l.RemoveBatchAdminFunctions(ctx, caller, a.Selectors)
	}),

	OpAddWorker: call(func(ctx context.Context, l *Ledger, caller types.Address, a workerArg) (*Receipt, error) {
		return l.AddWorker(ctx, caller, a.Worker)
	}),
	OpRemoveWorker: call(func(ctx context.Context, l *Ledger, caller types.Address, a workerArg) (*Receipt, error) {
		return l.RemoveWorker(ctx, caller, a.Worker)
	}),
	OpVote: call(func(ctx context.Context, l *Ledger, caller types.Address, a struct {
		InputHash   types.Hash `json:"inputHash"`
		MatchResult types.Hash `json:"matchResult"`
	}) (*Receipt, error) {
		return l.Vote(ctx, caller, a.InputHash, a.MatchResult)
	}),
	OpCancelExpiredVotings: call(func(ctx context.Context, l *Ledger, caller types.Address, a struct {
		StartVoting  uint64 `json:"startVoting"`
		MaxVotings   uint64 `json:"maxVotings"`
		StartSession uint64 `json:"startSession"`
		MaxSessions  uint64 `json:"maxSessions"`
	}) (*Receipt, error) {
		_, receipt, err := l.CancelExpiredVotings(ctx, caller, a.StartVoting, a.MaxVotings, a.StartSession, a.MaxSessions)
		return receipt, err
	}),
	OpReplenishRewardPool: call(func(ctx context.Context, l *Ledger, caller types.Address, a amountArg) (*Receipt, error) {
		return l.ReplenishRewardPool(ctx, caller, a.Amount.Int())
	}),
	OpFundRewardPool: call(func(ctx context.Context, l *Ledger, caller types.Address, a amountArg) (*Receipt, error) {
		return l.FundRewardPool(ctx, caller, a.Amount.Int())
	}),
	OpPayReward: call(func(ctx context.Context, l *Ledger, caller types.Address, a struct {
		NumberOfPays uint64 `json:"numberOfPays"`
	}) (*Receipt, error) {
		return l.PayReward(ctx, caller, a.NumberOfPays)
	}),
	OpSetRewardsEnabled: call(func(ctx context.Context, l *Ledger, caller types.Address, a struct {
		Enabled bool `json:"enabled"`
	}) (*Receipt, error) {
		return l.SetRewardsEnabled(ctx, caller, a.Enabled)
	}),

	OpRequestProofIssuance: call(func(ctx context.Context, l *Ledger, caller types.Address, a IssuanceRequest) (*Receipt, error) {
		_, receipt, err := l.RequestProofIssuance(ctx, caller, a.request())
		return receipt, err
	}),
	OpRequestBatchIssuance: call(func(ctx context.Context, l *Ledger, caller types.Address, a struct {
		Requests []IssuanceRequest `json:"requests"`
	}) (*Receipt, error) {
		reqs := make([]certificates.Request, 0, len(a.Requests))
		for i := range a.Requests {
			reqs = append(reqs, a.Requests[i].request())
		}
		_, receipt, err := l.RequestBatchIssuance(ctx, caller, reqs)
		return receipt, err
	}),
	OpDiscloseData: call(func(ctx context.Context, l *Ledger, caller types.Address, a struct {
		Key       string       `json:"key"`
		Value     string       `json:"value"`
		DataProof []types.Hash `json:"dataProof"`
		DataHash  types.Hash   `json:"dataHash"`
	}) (*Receipt, error) {
		return l.DiscloseData(ctx, caller, a.Key, a.Value, a.DataProof, a.DataHash)
	}),
	OpSafeTransferFrom: call(func(ctx context.Context, l *Ledger, caller types.Address, a transferArgs) (*Receipt, error) {
		return l.SafeTransferFrom(ctx, caller, a.From, a.To, a.ID, a.Amount.Int())
	}),
	OpSafeBatchTransferFrom: call(func(ctx context.Context, l *Ledger, caller types.Address, a struct {
		From    types.Address `json:"from"`
		To      types.Address `json:"to"`
		IDs     []uint64      `json:"ids"`
		Amounts []types.Uint  `json:"amounts"`
	}) (*Receipt, error) {
		amounts := make([]*uint256.Int, 0, len(a.Amounts))
		for i := range a.Amounts {
			amounts = append(amounts, a.Amounts[i].Int())
		}
		return l.SafeBatchTransferFrom(ctx, caller, a.From, a.To, a.IDs, amounts)
	}),
	OpApproveOperator: call(func(ctx context.Context, l *Ledger, caller types.Address, a struct {
		Operator types.Address `json:"operator"`
		Owner    types.Address `json:"owner"`
	}) (*Receipt, error) {
		return l.ApproveOperator(ctx, caller, a.Operator, a.Owner)
	}),
	OpRemoveApprovedOperator: call(func(ctx context.Context, l *Ledger, caller types.Address, a struct {
		Operator types.Address `json:"operator"`
	}) (*Receipt, error) {
		return l.RemoveApprovedOperator(ctx, caller, a.Operator)
	}),
	OpRevokeProof: call(func(ctx context.Context, l *Ledger, caller types.Address, a idArg) (*Receipt, error) {
		return l.RevokeProof(ctx, caller, a.ID)
	}),
	OpClaimProof: call(func(ctx context.Context, l *Ledger, caller types.Address, a claimArgs) (*Receipt, error) {
		return l.ClaimProof(ctx, caller, a.ID, a.Amount.Int())
	}),
	OpClaimProofFor: call(func(ctx context.Context, l *Ledger, caller types.Address, a claimArgs) (*Receipt, error) {
		return l.ClaimProofFor(ctx, caller, a.ID, a.Owner, a.Amount.Int())
	}),

	OpIssueMetaToken: call(func(ctx context.Context, l *Ledger, caller types.Address, a struct {
		ParentID uint64        `json:"parentCertificateID"`
		Amount   types.Uint    `json:"amount"`
		Receiver types.Address `json:"receiver"`
		TokenURI string        `json:"tokenUri"`
	}) (*Receipt, error) {
		return l.IssueMetaToken(ctx, caller, a.ParentID, a.Amount.Int(), a.Receiver, a.TokenURI)
	}),
	OpRevokeMetaToken: call(func(ctx context.Context, l *Ledger, caller types.Address, a idArg) (*Receipt, error) {
		return l.RevokeMetaToken(ctx, caller, a.ID)
	}),
	OpClaimMetaToken: call(func(ctx context.Context, l *Ledger, caller types.Address, a claimArgs) (*Receipt, error) {
		return l.ClaimMetaToken(ctx, caller, a.ID, a.Amount.Int())
	}),
	OpClaimMetaTokenFor: call(func(ctx context.Context, l *Ledger, caller types.Address, a claimArgs) (*Receipt, error) {
		return l.ClaimMetaTokenFor(ctx, caller, a.ID, a.Owner, a.Amount.Int())
	}),
	OpSafeTransferMetaToken: call(func(ctx context.Context, l *Ledger, caller types.Address, a transferArgs) (*Receipt, error) {
		return l.SafeTransferMetaToken(ctx, caller, a.From, a.To, a.ID, a.Amount.Int())
	}),
}

func init() {
	for _, kind := range roles.Kinds {
		kind := kind
		calls["update"+string(kind)+"Version"] = call(func(ctx context.Context, l *Ledger, caller types.Address, a struct {
			Version uint64 `json:"version"`
		}) (*Receipt, error) {
			return l.UpdateRoleVersion(ctx, caller, kind, a.Version)
		})
	}
}

var reads = map[string]readHandler{
	"owner": read(func(r db.Reader, _ none) (any, error) {
		state, err := GetState(r)
		if err != nil {
			return nil, err
		}
		return state.Owner, nil
	}),
	"paused": read(func(r db.Reader, _ none) (any, error) {
		state, err := GetState(r)
		if err != nil {
			return nil, err
		}
		return state.Paused, nil
	}),
	"getState": read(func(r db.Reader, _ none) (any, error) {
		return stateView(r)
	}),

	"isWhitelistedWorker": read(func(r db.Reader, a workerArg) (any, error) {
		return workers.IsWhitelisted(r, a.Worker)
	}),
	"getWorkers": read(func(r db.Reader, _ none) (any, error) {
		return workers.List(r)
	}),
	"numberOfWorkers": read(func(r db.Reader, _ none) (any, error) {
		return workers.Count(r)
	}),

	"getWinningMatches": read(func(r db.Reader, a inputArg) (any, error) {
		return voting.WinningMatches(r, a.InputHash)
	}),
	"getWinners": read(func(r db.Reader, a struct {
		InputHash   types.Hash `json:"inputHash"`
		MatchResult types.Hash `json:"matchResult"`
	}) (any, error) {
		return voting.Winners(r, a.InputHash, a.MatchResult)
	}),
	"getWorkerVotes": read(func(r db.Reader, a struct {
		InputHash types.Hash    `json:"inputHash"`
		Worker    types.Address `json:"worker"`
	}) (any, error) {
		return voting.WorkerVotes(r, a.InputHash, a.Worker)
	}),
	"numberOfVotings": read(func(r db.Reader, _ none) (any, error) {
		return voting.NumberOfVotings(r)
	}),
	"getVoteIDs": read(func(r db.Reader, _ none) (any, error) {
		return voting.VoteIDs(r)
	}),
	"getSession": read(func(r db.Reader, a inputArg) (any, error) {
		session, err := voting.GetSession(r, a.InputHash)
		if err != nil || session == nil {
			return nil, err
		}
		return sessionView(session), nil
	}),

	"getRewardPool": read(func(r db.Reader, _ none) (any, error) {
		pool, err := rewards.GetPool(r)
		if err != nil {
			return nil, err
		}
		return poolView(pool), nil
	}),
	"getPendingRewards": read(func(r db.Reader, _ none) (any, error) {
		pending, err := rewards.PendingRewards(r)
		if err != nil {
			return nil, err
		}
		views := make([]PendingView, 0, len(pending))
		for i := range pending {
			views = append(views, PendingView{Winner: pending[i].Winner, Amount: *types.NewUint(&pending[i].Amount)})
		}
		return views, nil
	}),

	"getProof": read(func(r db.Reader, a idArg) (any, error) {
		cert, err := certificates.GetProof(r, a.ID)
		if err != nil {
			return nil, err
		}
		return certificateView(cert), nil
	}),
	"lastProofIndex": read(func(r db.Reader, _ none) (any, error) {
		return certificates.LastID(r)
	}),
	"balanceOf": read(func(r db.Reader, a balanceArgs) (any, error) {
		return uintView(certificates.BalanceOf(r, a.Account, a.ID))
	}),
	"claimedBalanceOf": read(func(r db.Reader, a balanceArgs) (any, error) {
		return uintView(certificates.ClaimedBalanceOf(r, a.Account, a.ID))
	}),
	"getCertificateOwners": read(func(r db.Reader, a idArg) (any, error) {
		return certificates.CertificateOwners(r, a.ID)
	}),
	"getProofsOf": read(func(r db.Reader, a struct {
		Account types.Address `json:"account"`
	}) (any, error) {
		owned, err := certificates.ProofsOf(r, a.Account)
		if err != nil {
			return nil, err
		}
		views := make([]OwnedView, 0, len(owned))
		for i := range owned {
			views = append(views, OwnedView{
				Certificate: certificateView(&owned[i].Certificate),
				Remaining:   *types.NewUint(&owned[i].Remaining),
			})
		}
		return views, nil
	}),
	"getProofIdByDataHash": read(func(r db.Reader, a struct {
		DataHash types.Hash `json:"dataHash"`
	}) (any, error) {
		return certificates.ProofIDByDataHash(r, a.DataHash)
	}),
	"isApprovedForAll": read(func(r db.Reader, a struct {
		Owner    types.Address `json:"owner"`
		Operator types.Address `json:"operator"`
	}) (any, error) {
		return certificates.IsApprovedForAll(r, a.Owner, a.Operator)
	}),
	"getDisclosedData": read(func(r db.Reader, a struct {
		DataHash types.Hash `json:"dataHash"`
		Key      string     `json:"key"`
	}) (any, error) {
		return certificates.DisclosedData(r, a.DataHash, a.Key)
	}),

	"getMetaToken": read(func(r db.Reader, a idArg) (any, error) {
		token, err := metatoken.GetMetaToken(r, a.ID)
		if err != nil {
			return nil, err
		}
		return metaTokenView(token), nil
	}),
	"metaTokenBalanceOf": read(func(r db.Reader, a balanceArgs) (any, error) {
		return uintView(metatoken.BalanceOf(r, a.Account, a.ID))
	}),
	"claimedMetaBalanceOf": read(func(r db.Reader, a balanceArgs) (any, error) {
		return uintView(metatoken.ClaimedBalanceOf(r, a.Account, a.ID))
	}),
	"getMetaTokenIssuedVolume": read(func(r db.Reader, a idArg) (any, error) {
		return uintView(metatoken.IssuedVolume(r, a.ID))
	}),

	"isAdminFunction": read(func(r db.Reader, a selectorArg) (any, error) {
		return admin.IsAdminFunction(r, a.Selector)
	}),
	"getAdminFunctions": read(func(r db.Reader, _ none) (any, error) {
		return admin.Functions(r)
	}),
	"getAdmin": read(func(r db.Reader, _ none) (any, error) {
		return admin.Admin(r)
	}),

	"events": read(func(r db.Reader, a struct {
		Since uint64 `json:"since"`
		Limit int    `json:"limit"`
	}) (any, error) {
		if a.Limit <= 0 || a.Limit > MaxEventsPage {
			a.Limit = MaxEventsPage
		}
		records, err := events.Since(r, a.Since, a.Limit)
		if err != nil {
			return nil, err
		}
		if records == nil {
			records = []events.Record{}
		}
		return records, nil
	}),
}

func uintView(v *uint256.Int, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return types.NewUint(v), nil
}

func stateView(r db.Reader) (*StateView, error) {
	state, err := GetState(r)
	if err != nil {
		return nil, err
	}
	adminID, err := admin.Admin(r)
	if err != nil {
		return nil, err
	}
	view := &StateView{
		Owner:              state.Owner,
		Admin:              adminID,
		ClaimManager:       state.ClaimManager,
		RevocationRegistry: state.RevocationRegistry,
		Paused:             state.Paused,
		RoleVersions:       make(map[string]uint64, len(roles.Kinds)),
	}
	for _, kind := range roles.Kinds {
		role, err := roles.Get(r, kind)
		if err != nil {
			return nil, err
		}
		view.RoleVersions[string(kind)] = role.Version
	}
	return view, nil
}

// Call runs the mutating operation op of caller with JSON arguments.
func (l *Ledger) Call(ctx context.Context, caller types.Address, op string, args json.RawMessage) (*Receipt, error) {
	handler, ok := calls[op]
	if !ok {
		return nil, ErrUnknownOperation.With(op)
	}
	return handler(ctx, l, caller, args)
}

// Read answers the query op with JSON arguments from a consistent snapshot.
func (l *Ledger) Read(ctx context.Context, op string, args json.RawMessage) (any, error) {
	handler, ok := reads[op]
	if !ok {
		return nil, ErrUnknownOperation.With(op)
	}
	var result any
	err := l.db.View(ctx, func(r db.Reader) error {
		var err error
		result, err = handler(r, args)
		return err
	})
	return result, err
}

// Operations lists every operation Call and Read accept.
func Operations() (mutating, queries []string) {
	for op := range calls {
		mutating = append(mutating, op)
	}
	for op := range reads {
		queries = append(queries, op)
	}
	sort.Strings(mutating)
	sort.Strings(queries)
	return mutating, queries
}
