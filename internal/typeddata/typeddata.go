// Package typeddata builds the EIP-712 payloads accepted by the badge contracts.
//
// Each mint variant has its own builder; the field order of every schema mirrors the
// struct declared by the verifying contract and is part of the type hash.
package typeddata

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
)

const (
	DomainType     = "EIP712Domain"
	MintBadgeType  = "MintBadgeData"
	MintPointType  = "MintPointData"
	typedDataBytes = 2 + 2*common.HashLength
)

var ErrIncompletePayload = errors.New("incomplete typed data payload")

var domainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// Domain is the signing domain of one deployed contract.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

func (d Domain) TypedDataDomain() apitypes.TypedDataDomain {
	chainID := d.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
		VerifyingContract: d.VerifyingContract.Hex(),
	}
}

// Separator returns the EIP-712 domain separator.
func (d Domain) Separator() (common.Hash, error) {
	td := apitypes.TypedData{
		Types:  apitypes.Types{DomainType: domainFields},
		Domain: d.TypedDataDomain(),
	}
	sep, err := td.HashStruct(DomainType, td.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	return common.BytesToHash(sep), nil
}

// BadgeV1Message is the V1 MintBadgeData struct.
type BadgeV1Message struct {
	AdminWallet   common.Address
	To            common.Address
	BadgeID       *uint256.Int
	TokenID       *uint256.Int
	BadgeNameHash common.Hash
}

// PointV2Message is the V2 MintPointData struct.
type PointV2Message struct {
	To      common.Address
	TokenID *uint256.Int
	Amount  *uint256.Int
}

// PointV22Message is the V2.2 MintPointData struct, keyed by the category-tagged point id.
type PointV22Message struct {
	To      common.Address
	PointID *uint256.Int
	Amount  *uint256.Int
}

func MintBadgeV1(d Domain, m BadgeV1Message) apitypes.TypedData {
	return build(d, MintBadgeType, []apitypes.Type{
		{Name: "adminWallet", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "badgeId", Type: "uint256"},
		{Name: "tokenId", Type: "uint256"},
		{Name: "badgeNameHash", Type: "bytes32"},
	}, apitypes.TypedDataMessage{
		"adminWallet":   m.AdminWallet.Hex(),
		"to":            m.To.Hex(),
		"badgeId":       toHexOrDecimal(m.BadgeID),
		"tokenId":       toHexOrDecimal(m.TokenID),
		"badgeNameHash": m.BadgeNameHash.Hex(),
	})
}

func MintPointV2(d Domain, m PointV2Message) apitypes.TypedData {
	return build(d, MintPointType, []apitypes.Type{
		{Name: "to", Type: "address"},
		{Name: "tokenId", Type: "uint256"},
		{Name: "amount", Type: "uint256"},
	}, apitypes.TypedDataMessage{
		"to":      m.To.Hex(),
		"tokenId": toHexOrDecimal(m.TokenID),
		"amount":  toHexOrDecimal(m.Amount),
	})
}

func MintPointV22(d Domain, m PointV22Message) apitypes.TypedData {
	return build(d, MintPointType, []apitypes.Type{
		{Name: "to", Type: "address"},
		{Name: "pointId", Type: "uint256"},
		{Name: "amount", Type: "uint256"},
	}, apitypes.TypedDataMessage{
		"to":      m.To.Hex(),
		"pointId": toHexOrDecimal(m.PointID),
		"amount":  toHexOrDecimal(m.Amount),
	})
}

func build(d Domain, primary string, fields []apitypes.Type, msg apitypes.TypedDataMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			DomainType: domainFields,
			primary:    fields,
		},
		PrimaryType: primary,
		Domain:      d.TypedDataDomain(),
		Message:     msg,
	}
}

// Validate checks that every field declared by the primary type is present in the message.
func Validate(td apitypes.TypedData) error {
	fields, ok := td.Types[td.PrimaryType]
	if !ok {
		return fmt.Errorf("%w: primary type %q not declared", ErrIncompletePayload, td.PrimaryType)
	}
	for _, f := range fields {
		if _, ok := td.Message[f.Name]; !ok {
			return fmt.Errorf("%w: %s.%s missing from message", ErrIncompletePayload, td.PrimaryType, f.Name)
		}
	}
	return nil
}

// Hashes is the split EIP-712 hash of a payload. Raw is 0x1901 || Domain || Message, the
// pre-image hardware wallets display and sign.
type Hashes struct {
	Domain  common.Hash
	Message common.Hash
	Digest  common.Hash
	Raw     []byte
}

func Hash(td apitypes.TypedData) (Hashes, error) {
	if err := Validate(td); err != nil {
		return Hashes{}, err
	}
	domainSeparator, err := td.HashStruct(DomainType, td.Domain.Map())
	if err != nil {
		return Hashes{}, fmt.Errorf("failed to hash EIP712 domain: %w", err)
	}
	messageHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return Hashes{}, fmt.Errorf("failed to hash %s: %w", td.PrimaryType, err)
	}

	raw := make([]byte, 0, typedDataBytes)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, messageHash...)

	return Hashes{
		Domain:  common.BytesToHash(domainSeparator),
		Message: common.BytesToHash(messageHash),
		Digest:  crypto.Keccak256Hash(raw),
		Raw:     raw,
	}, nil
}

func toHexOrDecimal(v *uint256.Int) *math.HexOrDecimal256 {
	if v == nil {
		return (*math.HexOrDecimal256)(new(big.Int))
	}
	return (*math.HexOrDecimal256)(v.ToBig())
}
