// Package signer produces EIP-712 signatures with a local key, a hardware or keystore
// wallet, or a connected signing agent.
package signer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/base/badge-authorizer/internal/typeddata"
)

var (
	ErrSigningRejected      = errors.New("signing rejected")
	ErrVerificationMismatch = errors.New("signature does not recover to the expected signer")
	ErrInvalidSignature     = errors.New("invalid signature")
)

const signatureLength = crypto.SignatureLength

// Signer signs typed data on behalf of a single address. Signatures are 65 bytes with
// v in {27, 28}.
type Signer interface {
	Address() common.Address
	SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error)
	// Kind names the signing path for logs and metrics.
	Kind() string
}

// Recover returns the address that produced sig over td.
func Recover(td apitypes.TypedData, sig []byte) (common.Address, error) {
	if len(sig) != signatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	h, err := typeddata.Hash(td)
	if err != nil {
		return common.Address{}, err
	}
	rsv := make([]byte, signatureLength)
	copy(rsv, sig)
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}
	pub, err := crypto.SigToPub(h.Digest.Bytes(), rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify checks that sig over td recovers to expected.
func Verify(td apitypes.TypedData, sig []byte, expected common.Address) error {
	got, err := Recover(td, sig)
	if err != nil {
		return err
	}
	if got != expected {
		return fmt.Errorf("%w: recovered %s, expected %s", ErrVerificationMismatch, got.Hex(), expected.Hex())
	}
	return nil
}

// normalize returns a copy of sig with the recovery id shifted into {27, 28}.
func normalize(sig []byte) ([]byte, error) {
	if len(sig) != signatureLength {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	out := make([]byte, signatureLength)
	copy(out, sig)
	if out[64] < 27 {
		out[64] += 27
	}
	return out, nil
}
