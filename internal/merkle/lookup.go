package merkle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/exp/slices"
)

// Claim is the object submitted to the contract in place of a signature.
type Claim struct {
	To          common.Address `json:"to"`
	TokenID     *uint256.Int   `json:"tokenId"`
	Point       *uint256.Int   `json:"point"`
	MerkleProof []common.Hash  `json:"merkleProof"`
}

func sameKey(e Entry, to common.Address, tokenID *uint256.Int) bool {
	return e.Address == to && e.TokenID != nil && e.TokenID.Eq(tokenID)
}

// FindLeafIndex returns the position of the first entry for (to, tokenID). Later entries
// with the same key are never reached; see Duplicates.
func FindLeafIndex(entries []Entry, to common.Address, tokenID *uint256.Int) (int, error) {
	if tokenID == nil {
		return -1, fmt.Errorf("%w: token id is required", ErrInvalidEntry)
	}
	i := slices.IndexFunc(entries, func(e Entry) bool {
		return sameKey(e, to, tokenID)
	})
	if i < 0 {
		return -1, fmt.Errorf("%w: no entry for %s and token %s", ErrProofNotFound, to.Hex(), tokenID.Dec())
	}
	return i, nil
}

// Duplicates returns the positions of entries whose (address, tokenId) key already
// appeared earlier in the list.
func Duplicates(entries []Entry) []int {
	type key struct {
		to common.Address
		id [32]byte
	}
	seen := make(map[key]struct{}, len(entries))
	var dups []int
	for i, e := range entries {
		if e.TokenID == nil {
			continue
		}
		k := key{to: e.Address, id: e.TokenID.Bytes32()}
		if _, ok := seen[k]; ok {
			dups = append(dups, i)
			continue
		}
		seen[k] = struct{}{}
	}
	return dups
}

// Claim builds the proof for (to, tokenID) and checks it against the root before
// returning it.
func (t *Tree) Claim(to common.Address, tokenID *uint256.Int) (*Claim, error) {
	i, err := FindLeafIndex(t.entries, to, tokenID)
	if err != nil {
		return nil, err
	}
	proof, err := t.Proof(i)
	if err != nil {
		return nil, err
	}
	e := t.entries[i]
	if !Verify(t.Root(), e, proof) {
		return nil, fmt.Errorf("%w: entry %d", ErrVerificationMismatch, i)
	}
	return &Claim{
		To:          e.Address,
		TokenID:     new(uint256.Int).Set(e.TokenID),
		Point:       new(uint256.Int).Set(e.Amount),
		MerkleProof: proof,
	}, nil
}
