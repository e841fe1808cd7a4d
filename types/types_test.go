package types_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/energywebfoundation/worker-contract-sub000/types"
)

func TestParseAddress(t *testing.T) {
	t.Parallel()
	addr, err := types.ParseAddress("0x00000000000000000000000000000000000000ff")
	require.NoError(t, err)
	require.Equal(t, byte(0xff), addr[19])
	require.Equal(t, "0x00000000000000000000000000000000000000ff", addr.Hex())

	_, err = types.ParseAddress("0x1234")
	require.Error(t, err)

	var decoded types.Address
	require.NoError(t, decoded.UnmarshalText([]byte("00000000000000000000000000000000000000ff")))
	require.Equal(t, addr, decoded)
	require.False(t, addr.IsZero())
	require.True(t, types.ZeroAddress.IsZero())
}

func TestHashFromString(t *testing.T) {
	t.Parallel()
	h := types.HashFromString("MATCH_INPUT_0")
	require.Equal(t, "0x4d415443485f494e5055545f3000000000000000000000000000000000000000", h.Hex())

	parsed, err := types.ParseHash(h.Hex())
	require.NoError(t, err)
	require.Equal(t, h, parsed)
}

func TestAmounts(t *testing.T) {
	t.Parallel()
	t.Run("parse and format", func(t *testing.T) {
		t.Parallel()
		wei, err := types.ParseAmount("1.5")
		require.NoError(t, err)
		require.Equal(t, "1500000000000000000", wei.Dec())
		require.Equal(t, "1.5", types.FormatAmount(wei))
	})
	t.Run("too many decimals", func(t *testing.T) {
		t.Parallel()
		_, err := types.ParseAmount("0.0000000000000000001")
		require.Error(t, err)
	})
	t.Run("negative", func(t *testing.T) {
		t.Parallel()
		_, err := types.ParseAmount("-1")
		require.Error(t, err)
	})
	t.Run("to wei", func(t *testing.T) {
		t.Parallel()
		wei, err := types.ToWei(uint256.NewInt(42))
		require.NoError(t, err)
		require.Equal(t, types.Ether(42), wei)

		max := new(uint256.Int).SetAllOne()
		_, err = types.ToWei(max)
		require.ErrorIs(t, err, types.ErrValidation)
	})
}

func TestFailure(t *testing.T) {
	t.Parallel()
	errAlreadyVoted := types.NewFailure(types.ErrStateConflict, "AlreadyVoted")
	worker := types.MustAddress("0x0000000000000000000000000000000000000001")

	err := fmt.Errorf("voting: %w", errAlreadyVoted.With(worker))
	require.ErrorIs(t, err, errAlreadyVoted)
	require.ErrorIs(t, err, types.ErrStateConflict)
	require.NotErrorIs(t, err, types.ErrAuthorization)
	require.Equal(t, types.ErrStateConflict, types.ClassOf(err))
	require.Nil(t, types.ClassOf(errors.New("disk full")))

	require.Equal(t,
		`AlreadyVoted("0x0000000000000000000000000000000000000001")`,
		errAlreadyVoted.With(worker).Error(),
	)
	require.Equal(t,
		`TimeToRevokeElapsed(1, 1000, 60)`,
		types.NewFailure(types.ErrTemporal, "TimeToRevokeElapsed").With(uint64(1), int64(1000), int64(60)).Error(),
	)
}

func TestUintJSON(t *testing.T) {
	t.Parallel()
	for _, in := range []string{`"1000"`, `1000`, `"0x3e8"`} {
		var u types.Uint
		require.NoError(t, json.Unmarshal([]byte(in), &u), in)
		require.Equal(t, uint256.NewInt(1000), u.Int())
	}

	out, err := json.Marshal(struct {
		Amount types.Uint `json:"amount"`
	}{*types.NewUint(types.Ether(2))})
	require.NoError(t, err)
	require.JSONEq(t, `{"amount":"2000000000000000000"}`, string(out))

	var u types.Uint
	require.Error(t, json.Unmarshal([]byte(`"-1"`), &u))
	require.True(t, (*types.Uint)(nil).Int().IsZero())
}
