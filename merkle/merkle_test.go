package merkle_test

import (
	"fmt"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/energywebfoundation/worker-contract-sub000/hash"
	"github.com/energywebfoundation/worker-contract-sub000/merkle"
	"github.com/energywebfoundation/worker-contract-sub000/merkle/mocks"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

func leaves(n int) []types.Hash {
	out := make([]types.Hash, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, hash.Leaf(fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i)))
	}
	return out
}

func TestSingleLeafTree(t *testing.T) {
	t.Parallel()
	leaf := hash.Leaf("volume", "10")
	tree := merkle.NewTree([]types.Hash{leaf})

	require.Equal(t, leaf, tree.Root())
	proof, err := tree.Proof(leaf)
	require.NoError(t, err)
	require.Empty(t, proof)
	require.True(t, merkle.Verify(leaf, nil, leaf))
}

func TestTwoLeafRoot(t *testing.T) {
	t.Parallel()
	l := leaves(2)
	tree := merkle.NewTree(l)
	require.Equal(t, hash.Pair(l[0], l[1]), tree.Root())

	// leaf order does not matter
	require.Equal(t, tree.Root(), merkle.NewTree([]types.Hash{l[1], l[0]}).Root())
}

func TestOddLeafIsPromoted(t *testing.T) {
	t.Parallel()
	l := leaves(3)
	tree := merkle.NewTree(l)
	sorted := tree.Leaves()
	require.Equal(t, hash.Pair(hash.Pair(sorted[0], sorted[1]), sorted[2]), tree.Root())

	proof, err := tree.Proof(sorted[2])
	require.NoError(t, err)
	require.Equal(t, []types.Hash{hash.Pair(sorted[0], sorted[1])}, proof)
}

func TestProofsVerify(t *testing.T) {
	t.Parallel()
	for n := 1; n <= 9; n++ {
		n := n
		t.Run(fmt.Sprintf("%d leaves", n), func(t *testing.T) {
			t.Parallel()
			l := leaves(n)
			tree := merkle.NewTree(l)
			for _, leaf := range l {
				proof, err := tree.Proof(leaf)
				require.NoError(t, err)
				require.True(t, merkle.Verify(leaf, proof, tree.Root()))
				require.True(t, merkle.Plain.Verify(leaf, proof, tree.Root()))
			}
		})
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	t.Parallel()
	l := leaves(4)
	tree := merkle.NewTree(l)
	proof, err := tree.Proof(l[0])
	require.NoError(t, err)

	require.False(t, merkle.Verify(hash.Leaf("key0", "other"), proof, tree.Root()))
	require.False(t, merkle.Verify(l[0], proof[:1], tree.Root()))
	require.False(t, merkle.Verify(l[0], proof, l[1]))

	_, err = tree.Proof(hash.Leaf("missing", "leaf"))
	require.ErrorIs(t, err, merkle.ErrUnknownLeaf)
}

func TestEmptyTree(t *testing.T) {
	t.Parallel()
	require.Nil(t, merkle.NewTree(nil))
	_, err := merkle.PreciseProof(map[string]any{})
	require.Error(t, err)
}

func TestPreciseProof(t *testing.T) {
	t.Parallel()
	record := map[string]any{
		"consumerID":  "consumer-1",
		"generatorID": "generator-7",
		"volume":      42,
	}
	tree, err := merkle.PreciseProof(record)
	require.NoError(t, err)

	leaf := hash.Leaf("volume", "42")
	proof, err := tree.Proof(leaf)
	require.NoError(t, err)
	require.True(t, merkle.Verify(leaf, proof, tree.Root()))

	leaf = hash.Leaf("consumerID", `"consumer-1"`)
	proof, err = tree.Proof(leaf)
	require.NoError(t, err)
	require.True(t, merkle.Verify(leaf, proof, tree.Root()))

	// map iteration order never changes the root
	again, err := merkle.PreciseProof(record)
	require.NoError(t, err)
	require.Equal(t, tree.Root(), again.Root())
}

func TestCachedVerifier(t *testing.T) {
	t.Parallel()
	inner := mocks.NewMockVerifier(gomock.NewController(t))
	verifier, err := merkle.NewCachedVerifier(inner, 2)
	require.NoError(t, err)

	l := leaves(3)
	inner.EXPECT().Verify(l[0], gomock.Any(), l[1]).Return(true).Times(1)
	inner.EXPECT().Verify(l[1], gomock.Any(), l[0]).Return(false).Times(1)

	for i := 0; i < 3; i++ {
		require.True(t, verifier.Verify(l[0], []types.Hash{l[2]}, l[1]))
		require.False(t, verifier.Verify(l[1], []types.Hash{l[2]}, l[0]))
	}
	require.Equal(t, 2, verifier.Len())

	_, err = merkle.NewCachedVerifier(inner, 0)
	require.Error(t, err)
}

func TestBatch(t *testing.T) {
	t.Parallel()
	_, err := merkle.NewBatch(nil)
	require.Error(t, err)

	batch, err := merkle.NewBatch([]map[string]any{
		{"generatorID": "gen-1", "volume": 10},
		{"generatorID": "gen-2", "volume": 20},
		{"generatorID": "gen-3", "volume": 30},
	})
	require.NoError(t, err)
	require.Len(t, batch.Items, 3)

	for i, item := range batch.Items {
		require.True(t, merkle.Verify(item.DataHash, item.DataProof, batch.Root))
		leaf, proof, err := item.FieldProof("volume", (i+1)*10)
		require.NoError(t, err)
		require.Equal(t, hash.Leaf("volume", fmt.Sprint((i+1)*10)), leaf)
		require.True(t, merkle.Verify(leaf, proof, item.DataHash))
	}

	_, _, err = batch.Items[0].FieldProof("volume", 20)
	require.ErrorIs(t, err, merkle.ErrUnknownLeaf)
}
