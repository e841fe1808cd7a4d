package rpc

import (
	"bytes"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/energywebfoundation/worker-contract-sub000/greenproof"
	"github.com/energywebfoundation/worker-contract-sub000/signing"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

const (
	DefaultMaxRequestAge = 5 * time.Minute
	defaultSeenRequests  = 1 << 16
)

// ErrUnauthenticated is returned for call requests whose signature does
// not verify, that are stale, or that were already seen.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator establishes who sent a call request. The caller is the
// address of the ed25519 key that signed it.
type Authenticator struct {
	maxAge time.Duration
	seen   *lru.Cache
	now    func() time.Time
}

// NewAuthenticator accepts requests whose timestamp is within maxAge of
// the local clock. Zero means DefaultMaxRequestAge.
func NewAuthenticator(maxAge time.Duration) (*Authenticator, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxRequestAge
	}
	seen, err := lru.New(defaultSeenRequests)
	if err != nil {
		return nil, fmt.Errorf("creating replay cache: %w", err)
	}
	return &Authenticator{maxAge: maxAge, seen: seen, now: time.Now}, nil
}

// Authenticate verifies in and returns the caller with the canonical
// arguments the signature covers.
func (a *Authenticator) Authenticate(in *CallRequest) (types.Address, json.RawMessage, error) {
	args, err := CanonicalArgs(in.Args)
	if err != nil {
		return types.Address{}, nil, greenproof.ErrInvalidArguments.With(err.Error())
	}
	signed, err := signing.NewFromScaleEncodable(
		signing.Request{Operation: in.Operation, Args: args, Timestamp: in.Timestamp},
		in.Signature, in.PublicKey,
	)
	if err != nil {
		return types.Address{}, nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	age := a.now().Sub(time.Unix(int64(in.Timestamp), 0))
	if age > a.maxAge || age < -a.maxAge {
		return types.Address{}, nil, fmt.Errorf("%w: request timestamp %d is outside the accepted window", ErrUnauthenticated, in.Timestamp)
	}
	if seen, _ := a.seen.ContainsOrAdd(string(in.Signature), struct{}{}); seen {
		return types.Address{}, nil, fmt.Errorf("%w: request was already submitted", ErrUnauthenticated)
	}
	return signed.Signer(), args, nil
}

// NewCallRequest signs op with args as of now. args is marshaled to JSON
// unless it already is a json.RawMessage.
func NewCallRequest(signer crypto.Signer, op string, args any, now time.Time) (*CallRequest, error) {
	raw, err := rawArgs(args)
	if err != nil {
		return nil, err
	}
	canonical, err := CanonicalArgs(raw)
	if err != nil {
		return nil, fmt.Errorf("encoding arguments: %w", err)
	}
	signed, err := signing.Sign(signing.Request{Operation: op, Args: canonical, Timestamp: uint64(now.Unix())}, signer)
	if err != nil {
		return nil, err
	}
	return &CallRequest{
		Operation: op,
		Args:      canonical,
		Timestamp: signed.Data().Timestamp,
		PublicKey: signed.PubKey(),
		Signature: signed.Signature(),
	}, nil
}

// CanonicalArgs rewrites args in the form both ends sign: compact, with
// object keys sorted and numbers in shortest form. Empty and null
// arguments canonicalize to nil.
func CanonicalArgs(args json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(args)) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
