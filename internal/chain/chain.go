// Package chain reads the badge contract's signing domain and on-chain identifiers.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/time/rate"

	"github.com/base/badge-authorizer/internal/metrics"
	"github.com/base/badge-authorizer/internal/typeddata"
)

var ErrDomainFetch = errors.New("failed to read from contract")

// BadgeABI covers the view methods read here.
const BadgeABI = `[
	{"type":"function","name":"eip712Domain","stateMutability":"view","inputs":[],"outputs":[
		{"name":"fields","type":"bytes1"},
		{"name":"name","type":"string"},
		{"name":"version","type":"string"},
		{"name":"chainId","type":"uint256"},
		{"name":"verifyingContract","type":"address"},
		{"name":"salt","type":"bytes32"},
		{"name":"extensions","type":"uint256[]"}]},
	{"type":"function","name":"hashBadgeName","stateMutability":"pure","inputs":[{"name":"badgeName","type":"string"}],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"getTokenId","stateMutability":"view","inputs":[{"name":"badgeNameHash","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getPointId","stateMutability":"view","inputs":[{"name":"badgeName","type":"string"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var badgeABI = mustParseABI(BadgeABI)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Reader is bound to one deployed contract. Nothing it reads is cached, so a domain is
// never reused for another contract.
type Reader struct {
	caller   ethereum.ContractCaller
	contract common.Address
	chainID  *big.Int
	limiter  *rate.Limiter
	metrics  *metrics.Indicators
}

type Option func(*Reader)

// WithRateLimit bounds contract reads to perSecond calls. Zero or less disables the limit.
func WithRateLimit(perSecond float64) Option {
	return func(r *Reader) {
		if perSecond > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithChainID makes Domain reject a domain reporting a different chain.
func WithChainID(chainID *big.Int) Option {
	return func(r *Reader) {
		r.chainID = chainID
	}
}

func WithMetrics(m *metrics.Indicators) Option {
	return func(r *Reader) {
		r.metrics = m
	}
}

func NewReader(caller ethereum.ContractCaller, contract common.Address, opts ...Option) *Reader {
	r := &Reader{
		caller:   caller,
		contract: contract,
		limiter:  rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) Contract() common.Address {
	return r.contract
}

// Domain reads the EIP-5267 domain of the contract.
func (r *Reader) Domain(ctx context.Context) (typeddata.Domain, error) {
	out, err := r.call(ctx, "eip712Domain")
	if err != nil {
		return typeddata.Domain{}, err
	}
	if len(out) != 7 {
		return typeddata.Domain{}, fmt.Errorf("%w: eip712Domain returned %d values", ErrDomainFetch, len(out))
	}
	name, _ := out[1].(string)
	version, _ := out[2].(string)
	chainID, _ := out[3].(*big.Int)
	verifying, _ := out[4].(common.Address)
	if chainID == nil {
		return typeddata.Domain{}, fmt.Errorf("%w: eip712Domain returned no chain id", ErrDomainFetch)
	}
	if verifying != r.contract {
		return typeddata.Domain{}, fmt.Errorf("%w: domain verifying contract %s does not match %s", ErrDomainFetch, verifying.Hex(), r.contract.Hex())
	}
	if r.chainID != nil && r.chainID.Cmp(chainID) != 0 {
		return typeddata.Domain{}, fmt.Errorf("%w: domain chain id %s, expected %s", ErrDomainFetch, chainID, r.chainID)
	}
	return typeddata.Domain{
		Name:              name,
		Version:           version,
		ChainID:           chainID,
		VerifyingContract: verifying,
	}, nil
}

// HashBadgeName asks the contract for the hash it keys badges by.
func (r *Reader) HashBadgeName(ctx context.Context, name string) (common.Hash, error) {
	out, err := r.call(ctx, "hashBadgeName", name)
	if err != nil {
		return common.Hash{}, err
	}
	h, ok := out[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: unexpected hashBadgeName result %T", ErrDomainFetch, out[0])
	}
	return common.Hash(h), nil
}

// TokenID returns the identifier the contract assigned to a badge name hash.
func (r *Reader) TokenID(ctx context.Context, nameHash common.Hash) (*uint256.Int, error) {
	out, err := r.call(ctx, "getTokenId", [32]byte(nameHash))
	if err != nil {
		return nil, err
	}
	return toUint256("getTokenId", out[0])
}

// PointID returns the point identifier the contract computes for name.
func (r *Reader) PointID(ctx context.Context, name string) (*uint256.Int, error) {
	out, err := r.call(ctx, "getPointId", name)
	if err != nil {
		return nil, err
	}
	return toUint256("getPointId", out[0])
}

func (r *Reader) call(ctx context.Context, method string, args ...interface{}) (out []interface{}, err error) {
	defer func() {
		r.metrics.IncContractRead(method, metrics.Outcome(err))
	}()

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDomainFetch, method, err)
	}
	data, err := badgeABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	res, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDomainFetch, method, err)
	}
	out, err = badgeABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrDomainFetch, method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s returned nothing", ErrDomainFetch, method)
	}
	return out, nil
}

func toUint256(method string, v interface{}) (*uint256.Int, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected %s result %T", ErrDomainFetch, method, v)
	}
	id, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: %s result overflows uint256", ErrDomainFetch, method)
	}
	return id, nil
}
