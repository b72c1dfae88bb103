package mint

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"

	"github.com/base/badge-authorizer/internal/badgeid"
	"github.com/base/badge-authorizer/internal/typeddata"
)

type BadgeV1Request struct {
	AdminWallet common.Address
	To          common.Address
	BadgeID     *uint256.Int
	BadgeName   string
}

// BadgeV1Authorization is the argument of the V1 mint entry point.
type BadgeV1Authorization struct {
	AdminWallet   common.Address `json:"adminWallet"`
	To            common.Address `json:"to"`
	BadgeID       *uint256.Int   `json:"badgeId"`
	TokenID       *uint256.Int   `json:"tokenId"`
	BadgeNameHash common.Hash    `json:"badgeNameHash"`
	Signature     hexutil.Bytes  `json:"signature"`

	TypedData apitypes.TypedData `json:"-"`
}

// BadgeV1 asks the contract for the name hash and token id of req.BadgeName and signs a
// MintBadgeData authorization.
func (a *Authorizer) BadgeV1(ctx context.Context, req BadgeV1Request) (auth *BadgeV1Authorization, err error) {
	defer func() { a.finish(VariantBadgeV1, req.To, err) }()

	if err := requireName(req.BadgeName); err != nil {
		return nil, err
	}
	if req.BadgeID == nil {
		return nil, fmt.Errorf("%w: badge id is required", badgeid.ErrInvalidInput)
	}
	domain, err := a.domain(ctx)
	if err != nil {
		return nil, err
	}
	var nameHash common.Hash
	if err := a.read(ctx, "hashBadgeName", func() error {
		var err error
		nameHash, err = a.reader.HashBadgeName(ctx, req.BadgeName)
		return err
	}); err != nil {
		return nil, err
	}
	var tokenID *uint256.Int
	if err := a.read(ctx, "getTokenId", func() error {
		var err error
		tokenID, err = a.reader.TokenID(ctx, nameHash)
		return err
	}); err != nil {
		return nil, err
	}

	msg := typeddata.BadgeV1Message{
		AdminWallet:   req.AdminWallet,
		To:            req.To,
		BadgeID:       req.BadgeID,
		TokenID:       tokenID,
		BadgeNameHash: nameHash,
	}
	td := typeddata.MintBadgeV1(domain, msg)
	sig, err := a.sign(ctx, td)
	if err != nil {
		return nil, err
	}
	return &BadgeV1Authorization{
		AdminWallet:   msg.AdminWallet,
		To:            msg.To,
		BadgeID:       msg.BadgeID,
		TokenID:       msg.TokenID,
		BadgeNameHash: msg.BadgeNameHash,
		Signature:     sig,
		TypedData:     td,
	}, nil
}

type PointV2Request struct {
	To        common.Address
	BadgeName string
	BadgeType uint8
	Amount    *uint256.Int
}

// PointV2Authorization is the argument of the V2 mintPoint entry point. BadgeName and
// BadgeType travel alongside the signed fields.
type PointV2Authorization struct {
	To        common.Address `json:"to"`
	TokenID   *uint256.Int   `json:"tokenId"`
	BadgeName string         `json:"badgeName"`
	BadgeType uint8          `json:"badgeType"`
	Amount    *uint256.Int   `json:"amount"`
	Signature hexutil.Bytes  `json:"signature"`

	TypedData apitypes.TypedData `json:"-"`
}

func (a *Authorizer) PointV2(ctx context.Context, req PointV2Request) (auth *PointV2Authorization, err error) {
	defer func() { a.finish(VariantPointV2, req.To, err) }()

	if req.Amount == nil {
		return nil, fmt.Errorf("%w: amount is required", badgeid.ErrInvalidInput)
	}
	tokenID, err := a.registry.Register(badgeid.SchemeLegacyPoint, req.BadgeName)
	if err != nil {
		return nil, err
	}
	domain, err := a.domain(ctx)
	if err != nil {
		return nil, err
	}
	if a.checkOnChain {
		if err := a.checkPointID(ctx, req.BadgeName, tokenID); err != nil {
			return nil, err
		}
	}

	msg := typeddata.PointV2Message{To: req.To, TokenID: tokenID, Amount: req.Amount}
	td := typeddata.MintPointV2(domain, msg)
	sig, err := a.sign(ctx, td)
	if err != nil {
		return nil, err
	}
	return &PointV2Authorization{
		To:        req.To,
		TokenID:   tokenID,
		BadgeName: req.BadgeName,
		BadgeType: req.BadgeType,
		Amount:    req.Amount,
		Signature: sig,
		TypedData: td,
	}, nil
}

func (a *Authorizer) checkPointID(ctx context.Context, name string, want *uint256.Int) error {
	var got *uint256.Int
	if err := a.read(ctx, "getPointId", func() error {
		var err error
		got, err = a.reader.PointID(ctx, name)
		return err
	}); err != nil {
		return err
	}
	if !got.Eq(want) {
		return fmt.Errorf("%w: %q derived %s, contract reports %s", ErrIDMismatch, name, want.Hex(), got.Hex())
	}
	return nil
}

type PointV22Request struct {
	To        common.Address
	BadgeName string
	Amount    *uint256.Int
}

// PointV22Authorization is the argument of the V2.2 mintPoint entry point.
type PointV22Authorization struct {
	To        common.Address `json:"to"`
	PointID   *uint256.Int   `json:"pointId"`
	Amount    *uint256.Int   `json:"amount"`
	Signature hexutil.Bytes  `json:"signature"`

	TypedData apitypes.TypedData `json:"-"`
}

func (a *Authorizer) PointV22(ctx context.Context, req PointV22Request) (auth *PointV22Authorization, err error) {
	defer func() { a.finish(VariantPointV22, req.To, err) }()

	if req.Amount == nil {
		return nil, fmt.Errorf("%w: amount is required", badgeid.ErrInvalidInput)
	}
	pointID, err := a.registry.Register(badgeid.SchemePoint, req.BadgeName)
	if err != nil {
		return nil, err
	}
	domain, err := a.domain(ctx)
	if err != nil {
		return nil, err
	}

	msg := typeddata.PointV22Message{To: req.To, PointID: pointID, Amount: req.Amount}
	td := typeddata.MintPointV22(domain, msg)
	sig, err := a.sign(ctx, td)
	if err != nil {
		return nil, err
	}
	return &PointV22Authorization{
		To:        req.To,
		PointID:   pointID,
		Amount:    req.Amount,
		Signature: sig,
		TypedData: td,
	}, nil
}

// Redemption is the unsigned V2.2 mintBadge argument that burns points for a badge.
type Redemption struct {
	To      common.Address `json:"to"`
	PointID *uint256.Int   `json:"pointId"`
	BadgeID *uint256.Int   `json:"badgeId"`
}

// Redeem derives the point and badge ids of name through the authorizer's registry. It
// needs no network access.
func (a *Authorizer) Redeem(to common.Address, name string) (*Redemption, error) {
	return Redeem(a.registry, to, name)
}

func Redeem(reg *badgeid.Registry, to common.Address, name string) (*Redemption, error) {
	pointID, err := reg.Register(badgeid.SchemePoint, name)
	if err != nil {
		return nil, err
	}
	badgeID, err := reg.Register(badgeid.SchemeBadge, name)
	if err != nil {
		return nil, err
	}
	return &Redemption{To: to, PointID: pointID, BadgeID: badgeID}, nil
}
