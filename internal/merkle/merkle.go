// Package merkle builds standard Merkle trees over (address, uint256, uint256) eligibility
// entries and produces the proofs checked on-chain by OpenZeppelin's MerkleProof library.
package merkle

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	ErrEmptyTree            = errors.New("merkle tree needs at least one entry")
	ErrInvalidEntry         = errors.New("invalid merkle entry")
	ErrProofNotFound        = errors.New("leaf not found")
	ErrVerificationMismatch = errors.New("merkle proof does not verify against root")
)

// LeafEncoding is the ABI tuple every leaf is encoded as.
var LeafEncoding = []string{"address", "uint256", "uint256"}

var leafArgs = mustArguments(LeafEncoding)

func mustArguments(types []string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// Entry is one eligibility triple. Its position in the input list is what a proof is
// requested by.
type Entry struct {
	Address common.Address
	TokenID *uint256.Int
	Amount  *uint256.Int
}

// LeafHash is keccak256(keccak256(abi.encode(address, tokenId, amount))).
func LeafHash(e Entry) (common.Hash, error) {
	if e.TokenID == nil || e.Amount == nil {
		return common.Hash{}, fmt.Errorf("%w: token id and amount are required", ErrInvalidEntry)
	}
	packed, err := leafArgs.Pack(e.Address, e.TokenID.ToBig(), e.Amount.ToBig())
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return crypto.Keccak256Hash(crypto.Keccak256(packed)), nil
}

// hashPair hashes two nodes in ascending byte order, as the on-chain verifier does.
func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

type options struct {
	sortLeaves bool
}

type Option func(*options)

// WithSortedLeaves orders leaves by hash before building, which reproduces the layout of
// OpenZeppelin's StandardMerkleTree.of. The root then no longer depends on input order.
func WithSortedLeaves() Option {
	return func(o *options) {
		o.sortLeaves = true
	}
}

// Tree is an array-backed complete binary tree of 2n-1 nodes with the root at index 0 and
// the leaves at the tail. It is immutable once built.
type Tree struct {
	nodes   []common.Hash
	entries []Entry
	// leafIndex maps an entry position to its node index.
	leafIndex []int
}

func New(entries []Entry, opts ...Option) (*Tree, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyTree
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	type hashed struct {
		leaf  common.Hash
		entry int
	}
	leaves := make([]hashed, len(entries))
	for i, e := range entries {
		h, err := LeafHash(e)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		leaves[i] = hashed{leaf: h, entry: i}
	}
	if o.sortLeaves {
		sort.SliceStable(leaves, func(i, j int) bool {
			return bytes.Compare(leaves[i].leaf[:], leaves[j].leaf[:]) < 0
		})
	}

	size := 2*len(leaves) - 1
	t := &Tree{
		nodes:     make([]common.Hash, size),
		entries:   append([]Entry(nil), entries...),
		leafIndex: make([]int, len(entries)),
	}
	for j, l := range leaves {
		pos := size - 1 - j
		t.nodes[pos] = l.leaf
		t.leafIndex[l.entry] = pos
	}
	for i := size - 1 - len(leaves); i >= 0; i-- {
		t.nodes[i] = hashPair(t.nodes[2*i+1], t.nodes[2*i+2])
	}
	return t, nil
}

func (t *Tree) Root() common.Hash {
	return t.nodes[0]
}

func (t *Tree) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the entries in input order.
func (t *Tree) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Proof returns the sibling path from the leaf of entry index up to the root.
func (t *Tree) Proof(index int) ([]common.Hash, error) {
	if index < 0 || index >= len(t.entries) {
		return nil, fmt.Errorf("%w: index %d out of range [0, %d)", ErrProofNotFound, index, len(t.entries))
	}
	proof := []common.Hash{}
	for i := t.leafIndex[index]; i > 0; i = (i - 1) / 2 {
		proof = append(proof, t.nodes[sibling(i)])
	}
	return proof, nil
}

func sibling(i int) int {
	if i%2 == 1 {
		return i + 1
	}
	return i - 1
}

// Verify recomputes the leaf of e and folds proof up to a root.
func Verify(root common.Hash, e Entry, proof []common.Hash) bool {
	leaf, err := LeafHash(e)
	if err != nil {
		return false
	}
	return VerifyLeaf(root, leaf, proof)
}

func VerifyLeaf(root, leaf common.Hash, proof []common.Hash) bool {
	return processProof(leaf, proof) == root
}

func processProof(leaf common.Hash, proof []common.Hash) common.Hash {
	h := leaf
	for _, p := range proof {
		h = hashPair(h, p)
	}
	return h
}
