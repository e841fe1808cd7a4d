// Package merkle verifies and builds sorted-pair merkle trees.
//
// Trees sort their leaves and hash every pair of siblings in ascending
// order. A node without a sibling is promoted to the next layer as is, so a
// single leaf tree has the leaf as its root and an empty proof.
package merkle

import (
	"bytes"
	"errors"
	"sort"

	"github.com/energywebfoundation/worker-contract-sub000/hash"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

//go:generate mockgen -package mocks -destination mocks/verifier.go . Verifier

// Verifier checks that leaf belongs to the tree committed to by root.
type Verifier interface {
	Verify(leaf types.Hash, proof []types.Hash, root types.Hash) bool
}

var ErrUnknownLeaf = errors.New("leaf is not part of the tree")

// Verify folds proof into leaf and compares the result against root.
func Verify(leaf types.Hash, proof []types.Hash, root types.Hash) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = hash.Pair(computed, sibling)
	}
	return computed == root
}

type verifierFunc func(leaf types.Hash, proof []types.Hash, root types.Hash) bool

func (f verifierFunc) Verify(leaf types.Hash, proof []types.Hash, root types.Hash) bool {
	return f(leaf, proof, root)
}

// Plain is the uncached Verifier.
var Plain Verifier = verifierFunc(Verify)

// Tree holds every layer of a built tree, leaves first.
type Tree struct {
	layers [][]types.Hash
}

// NewTree builds a tree over leaves. It returns nil for no leaves.
func NewTree(leaves []types.Hash) *Tree {
	if len(leaves) == 0 {
		return nil
	}
	layer := make([]types.Hash, len(leaves))
	copy(layer, leaves)
	sort.Slice(layer, func(i, j int) bool {
		return bytes.Compare(layer[i][:], layer[j][:]) < 0
	})

	t := &Tree{layers: [][]types.Hash{layer}}
	for len(layer) > 1 {
		next := make([]types.Hash, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			if i+1 == len(layer) {
				next = append(next, layer[i])
				continue
			}
			next = append(next, hash.Pair(layer[i], layer[i+1]))
		}
		t.layers = append(t.layers, next)
		layer = next
	}
	return t
}

func (t *Tree) Root() types.Hash {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

func (t *Tree) Leaves() []types.Hash {
	return t.layers[0]
}

// Proof returns the siblings needed to climb from leaf to the root.
func (t *Tree) Proof(leaf types.Hash) ([]types.Hash, error) {
	index := -1
	for i, l := range t.layers[0] {
		if l == leaf {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, ErrUnknownLeaf
	}

	var proof []types.Hash
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := index + 1
		if index%2 == 1 {
			sibling = index - 1
		}
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		index /= 2
	}
	return proof, nil
}

// PreciseProof builds the tree of a flat record: one leaf per field,
// hashed as hash.JSONLeaf(key, value). Individual fields can then be
// disclosed against the record root.
func PreciseProof(record map[string]any) (*Tree, error) {
	leaves := make([]types.Hash, 0, len(record))
	for key, value := range record {
		leaf, err := hash.JSONLeaf(key, value)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	if len(leaves) == 0 {
		return nil, errors.New("empty record")
	}
	return NewTree(leaves), nil
}
