package greenproof

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/holiman/uint256"
	"go.uber.org/zap/zapcore"

	"github.com/energywebfoundation/worker-contract-sub000/certificates"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

func DefaultConfig() Config {
	return Config{
		RevocablePeriod:  365 * 24 * time.Hour,
		VotingTimeLimit:  15 * time.Minute,
		Majority:         51,
		RewardAmount:     "1",
		MaxBatchIssuance: certificates.DefaultMaxBatch,
		ProofCacheSize:   1024,
	}
}

//nolint:lll
type Config struct {
	Owner              types.Address `long:"owner"               description:"Identity owning the ledger"`
	Admin              types.Address `long:"admin"               description:"Identity allowed to call admin functions (defaults to the owner)"`
	ClaimManager       types.Address `long:"claim-manager"       description:"Address of the claim manager the role oracle answers for"`
	RevocationRegistry types.Address `long:"revocation-registry" description:"Address of the claims revocation registry"`

	RevocablePeriod  time.Duration `long:"revocable-period"   description:"How long after issuance a certificate can be revoked"`
	VotingTimeLimit  time.Duration `long:"voting-time-limit"  description:"How long a voting session may collect votes"`
	Majority         uint64        `long:"majority"           description:"Percentage of workers that must agree on a result"`
	RewardAmount     string        `long:"reward-amount"      description:"Reward paid to each winning worker, in whole units"`
	DisableRewards   bool          `long:"disable-rewards"    description:"Start with reward payments disabled"`
	MetaTokens       bool          `long:"meta-tokens"        description:"Allow issuing meta tokens"`
	MaxBatchIssuance int           `long:"max-batch-issuance" description:"The maximum number of certificates issued in one batch"`
	ProofCacheSize   int           `long:"proof-cache-size"   description:"Number of verified merkle proofs to remember"`
}

var errInit = types.NewFailure(types.ErrValidation, "Error")

// validate reports every invalid setting at once.
func (c *Config) validate() (*uint256.Int, error) {
	var result *multierror.Error
	if c.Owner.IsZero() {
		result = multierror.Append(result, errInit.With("init: Invalid contract Owner"))
	}
	if c.ClaimManager.IsZero() {
		result = multierror.Append(result, errInit.With("init: Invalid claimManager"))
	}
	if c.RevocationRegistry.IsZero() {
		result = multierror.Append(result, errInit.With("init: Invalid claimsRevocationRegistry"))
	}
	if c.RevocablePeriod <= 0 {
		result = multierror.Append(result, errInit.With("init: Invalid revocable period"))
	}
	if c.Majority > 100 {
		result = multierror.Append(result, errInit.With("init: Majority percentage must be between 0 and 100"))
	}
	reward, err := types.ParseAmount(c.RewardAmount)
	switch {
	case err != nil:
		result = multierror.Append(result, err)
	case reward.IsZero():
		result = multierror.Append(result, errInit.With("init: Null reward amount"))
	}
	return reward, result.ErrorOrNil()
}

// implement zap.ObjectMarshaler interface.
func (c *Config) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("owner", c.Owner.Hex())
	enc.AddString("admin", c.Admin.Hex())
	enc.AddString("claim_manager", c.ClaimManager.Hex())
	enc.AddString("revocation_registry", c.RevocationRegistry.Hex())
	enc.AddDuration("revocable_period", c.RevocablePeriod)
	enc.AddDuration("voting_time_limit", c.VotingTimeLimit)
	enc.AddUint64("majority", c.Majority)
	enc.AddString("reward_amount", c.RewardAmount)
	enc.AddBool("rewards_enabled", !c.DisableRewards)
	enc.AddBool("meta_tokens", c.MetaTokens)
	enc.AddInt("max_batch_issuance", c.MaxBatchIssuance)
	return nil
}
