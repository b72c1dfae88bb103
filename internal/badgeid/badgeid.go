// Package badgeid derives token identifiers from a badge name and the issuing contract.
//
// Identifiers are pure functions of their inputs: the contract recomputes the same value from
// the same raw name, so the byte layout below is part of the wire format.
//
//	legacy point (V2):  keccak(name)[0:12] || contract[0:20]
//	point/badge (V2.2): keccak(name)[0:10] || keccak(category)[0:2] || contract[0:20]
package badgeid

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/base/badge-authorizer/internal/encoding"
)

var (
	ErrInvalidInput = errors.New("invalid derivation input")
	ErrIDCollision  = errors.New("token identifier collision")
)

const (
	legacyNameBytes = 12
	nameBytes       = 10
	tagBytes        = 2
	addressBytes    = common.AddressLength
)

// Category distinguishes point tokens from badge tokens. The numeric values match the
// badgeType field submitted with point mints.
type Category uint8

const (
	Point Category = iota
	Badge
)

func (c Category) String() string {
	switch c {
	case Point:
		return "Point"
	case Badge:
		return "Badge"
	default:
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
}

// Tag returns the 2-byte category tag as hex without prefix.
func (c Category) Tag() string {
	return encoding.TruncatedHash(c.String(), tagBytes)[2:]
}

func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "point", "0":
		return Point, nil
	case "badge", "1":
		return Badge, nil
	}
	return 0, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, s)
}

// NameHash is the full keccak256 of the badge name, the badgeNameHash of V1 mints.
func NameHash(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name))
}

// LegacyPointID derives the V2 point identifier.
func LegacyPointID(contract common.Address, name string) (*uint256.Int, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return assemble(
		encoding.TruncatedHash(name, legacyNameBytes)[2:],
		encoding.LeadingBytes(contract.Hex(), addressBytes),
	)
}

// Derive computes the category-tagged identifier used from V2.2 on.
func Derive(contract common.Address, name string, category Category) (*uint256.Int, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if category != Point && category != Badge {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, category)
	}
	return assemble(
		encoding.TruncatedHash(name, nameBytes)[2:],
		category.Tag(),
		encoding.LeadingBytes(contract.Hex(), addressBytes),
	)
}

func PointID(contract common.Address, name string) (*uint256.Int, error) {
	return Derive(contract, name, Point)
}

func BadgeID(contract common.Address, name string) (*uint256.Int, error) {
	return Derive(contract, name, Badge)
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty badge name", ErrInvalidInput)
	}
	return nil
}

func assemble(segments ...string) (*uint256.Int, error) {
	raw, err := hex.DecodeString(strings.Join(segments, ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: identifier is %d bytes", ErrInvalidInput, len(raw))
	}
	return new(uint256.Int).SetBytes32(raw), nil
}
