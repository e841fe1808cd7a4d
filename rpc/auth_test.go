package rpc_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/energywebfoundation/worker-contract-sub000/greenproof"
	"github.com/energywebfoundation/worker-contract-sub000/rpc"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

func TestCanonicalArgs(t *testing.T) {
	for _, tc := range []struct {
		name, in, want string
	}{
		{"empty", ``, ``},
		{"null", ` null `, ``},
		{"sorted keys", `{ "b": 1, "a": [true, "x"] }`, `{"a":[true,"x"],"b":1}`},
		{"numbers", `{"volume": 42.0, "ratio": 1e2}`, `{"ratio":100,"volume":42}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := rpc.CanonicalArgs(json.RawMessage(tc.in))
			require.NoError(t, err)
			require.Equal(t, tc.want, string(got))

			again, err := rpc.CanonicalArgs(got)
			require.NoError(t, err)
			require.Equal(t, got, again)
		})
	}

	_, err := rpc.CanonicalArgs(json.RawMessage(`{"worker":`))
	require.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	auth, err := rpc.NewAuthenticator(time.Minute)
	require.NoError(t, err)

	in, err := rpc.NewCallRequest(workerKey, greenproof.OpVote, map[string]any{"votingID": "v1", "matchResult": "r1"}, time.Now())
	require.NoError(t, err)
	caller, args, err := auth.Authenticate(in)
	require.NoError(t, err)
	require.Equal(t, worker, caller)
	require.JSONEq(t, `{"votingID":"v1","matchResult":"r1"}`, string(args))

	_, _, err = auth.Authenticate(in)
	require.ErrorIs(t, err, rpc.ErrUnauthenticated)

	future, err := rpc.NewCallRequest(workerKey, greenproof.OpVote, nil, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	_, _, err = auth.Authenticate(future)
	require.ErrorIs(t, err, rpc.ErrUnauthenticated)

	malformed, err := rpc.NewCallRequest(workerKey, greenproof.OpVote, nil, time.Now())
	require.NoError(t, err)
	malformed.Args = json.RawMessage(`{`)
	_, _, err = auth.Authenticate(malformed)
	require.ErrorIs(t, err, types.ErrValidation)
}
