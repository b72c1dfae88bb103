package merkle

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/exp/slices"

	"github.com/base/badge-authorizer/internal/encoding"
)

const DumpFormat = "standard-v1"

var ErrInvalidDump = errors.New("invalid merkle tree dump")

type dumpValue struct {
	Value     []string `json:"value"`
	TreeIndex int      `json:"treeIndex"`
}

// dump mirrors the JSON written by OpenZeppelin's StandardMerkleTree.dump, so trees can be
// exchanged with the JavaScript tooling.
type dump struct {
	Format       string        `json:"format"`
	LeafEncoding []string      `json:"leafEncoding"`
	Tree         []common.Hash `json:"tree"`
	Values       []dumpValue   `json:"values"`
}

// Dump serialises the tree, its entries and their node positions.
func (t *Tree) Dump() ([]byte, error) {
	d := dump{
		Format:       DumpFormat,
		LeafEncoding: LeafEncoding,
		Tree:         t.nodes,
		Values:       make([]dumpValue, len(t.entries)),
	}
	for i, e := range t.entries {
		d.Values[i] = dumpValue{
			Value:     []string{e.Address.Hex(), e.TokenID.Dec(), e.Amount.Dec()},
			TreeIndex: t.leafIndex[i],
		}
	}
	return json.MarshalIndent(d, "", "  ")
}

// Load rebuilds a tree from a dump and checks every node against its children.
func Load(data []byte) (*Tree, error) {
	var d dump
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDump, err)
	}
	if d.Format != DumpFormat {
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidDump, d.Format)
	}
	if !slices.Equal(d.LeafEncoding, LeafEncoding) {
		return nil, fmt.Errorf("%w: leaf encoding %v, expected %v", ErrInvalidDump, d.LeafEncoding, LeafEncoding)
	}
	if len(d.Values) == 0 {
		return nil, ErrEmptyTree
	}
	if len(d.Tree) != 2*len(d.Values)-1 {
		return nil, fmt.Errorf("%w: %d nodes for %d values", ErrInvalidDump, len(d.Tree), len(d.Values))
	}

	t := &Tree{
		nodes:     d.Tree,
		entries:   make([]Entry, len(d.Values)),
		leafIndex: make([]int, len(d.Values)),
	}
	firstLeaf := len(d.Tree) - len(d.Values)
	used := make(map[int]bool, len(d.Values))
	for i, v := range d.Values {
		e, err := parseValue(v.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: value %d: %v", ErrInvalidDump, i, err)
		}
		if v.TreeIndex < firstLeaf || v.TreeIndex >= len(d.Tree) || used[v.TreeIndex] {
			return nil, fmt.Errorf("%w: value %d has bad tree index %d", ErrInvalidDump, i, v.TreeIndex)
		}
		used[v.TreeIndex] = true
		leaf, err := LeafHash(e)
		if err != nil {
			return nil, err
		}
		if leaf != d.Tree[v.TreeIndex] {
			return nil, fmt.Errorf("%w: value %d does not hash to node %d", ErrInvalidDump, i, v.TreeIndex)
		}
		t.entries[i] = e
		t.leafIndex[i] = v.TreeIndex
	}
	for i := firstLeaf - 1; i >= 0; i-- {
		if d.Tree[i] != hashPair(d.Tree[2*i+1], d.Tree[2*i+2]) {
			return nil, fmt.Errorf("%w: node %d does not match its children", ErrInvalidDump, i)
		}
	}
	return t, nil
}

func parseValue(v []string) (Entry, error) {
	if len(v) != len(LeafEncoding) {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", len(LeafEncoding), len(v))
	}
	if !common.IsHexAddress(v[0]) {
		return Entry{}, fmt.Errorf("bad address %q", v[0])
	}
	tokenID, err := encoding.ParseUint256(v[1])
	if err != nil {
		return Entry{}, fmt.Errorf("bad token id: %w", err)
	}
	amount, err := encoding.ParseUint256(v[2])
	if err != nil {
		return Entry{}, fmt.Errorf("bad amount: %w", err)
	}
	return Entry{Address: common.HexToAddress(v[0]), TokenID: tokenID, Amount: amount}, nil
}
