// Package encoding holds the hex slicing helpers used to assemble token identifiers.
package encoding

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var ErrInvalidAddress = errors.New("invalid address")

// TruncatedHash returns the first n bytes of keccak256(input) as a 0x-prefixed hex string.
// n is clamped to the 32 bytes of the digest.
func TruncatedHash(input string, n int) string {
	digest := crypto.Keccak256([]byte(input))
	n = clamp(n, len(digest))
	return "0x" + hex.EncodeToString(digest[:n])
}

// LeadingBytes returns the first n bytes of a 0x-prefixed hex string without the prefix.
// The caller must supply at least n bytes; shorter input is truncated, not rejected.
func LeadingBytes(hexStr string, n int) string {
	s := strings.TrimPrefix(strings.TrimPrefix(hexStr, "0x"), "0X")
	return s[:clamp(2*n, len(s))]
}

// ParseAddress parses a 20-byte hex address, with or without the 0x prefix.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// ParseUint256 accepts a decimal or 0x-prefixed hex unsigned integer.
func ParseUint256(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty integer")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := uint256.FromHex("0x" + s[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid hex integer %q: %w", s, err)
		}
		return v, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid integer %q: %w", s, err)
	}
	return v, nil
}

func clamp(n, limit int) int {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}
