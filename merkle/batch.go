package merkle

import (
	"fmt"

	"github.com/energywebfoundation/worker-contract-sub000/hash"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

// Item is one record of a batch together with the proofs needed to
// certify it.
type Item struct {
	DataHash types.Hash
	// DataProof places DataHash under the batch root.
	DataProof []types.Hash
	tree      *Tree
}

// FieldProof proves that key was committed to with value in the item.
func (it Item) FieldProof(key string, value any) (types.Hash, []types.Hash, error) {
	leaf, err := hash.JSONLeaf(key, value)
	if err != nil {
		return types.Hash{}, nil, err
	}
	proof, err := it.tree.Proof(leaf)
	if err != nil {
		return types.Hash{}, nil, fmt.Errorf("field %q: %w", key, err)
	}
	return leaf, proof, nil
}

// Batch is what workers vote on: the root over the data hashes of
// several records.
type Batch struct {
	Root  types.Hash
	Items []Item
}

// NewBatch builds the precise proof of every record and the tree over them.
func NewBatch(records []map[string]any) (*Batch, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	items := make([]Item, 0, len(records))
	hashes := make([]types.Hash, 0, len(records))
	for i, record := range records {
		tree, err := PreciseProof(record)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		items = append(items, Item{DataHash: tree.Root(), tree: tree})
		hashes = append(hashes, tree.Root())
	}
	batch := NewTree(hashes)
	for i := range items {
		proof, err := batch.Proof(items[i].DataHash)
		if err != nil {
			return nil, err
		}
		items[i].DataProof = proof
	}
	return &Batch{Root: batch.Root(), Items: items}, nil
}
