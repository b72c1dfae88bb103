package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/base/badge-authorizer/internal/metrics"
)

var contract = common.HexToAddress("0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9")

// fakeContract answers view calls by ABI-decoding the request and encoding canned results.
type fakeContract struct {
	verifying common.Address
	chainID   *big.Int
	tokenIDs  map[common.Hash]*big.Int
	fail      error
	calls     map[string]int
}

func newFakeContract() *fakeContract {
	return &fakeContract{
		verifying: contract,
		chainID:   big.NewInt(31337),
		tokenIDs:  map[common.Hash]*big.Int{},
		calls:     map[string]int{},
	}
}

func (f *fakeContract) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeContract) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	method, err := badgeABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	f.calls[method.Name]++
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "eip712Domain":
		return method.Outputs.Pack([1]byte{0x0f}, "BadgeV1", "1", f.chainID, f.verifying, [32]byte{}, []*big.Int{})
	case "hashBadgeName":
		return method.Outputs.Pack([32]byte(crypto.Keccak256Hash([]byte(args[0].(string)))))
	case "getTokenId":
		id, ok := f.tokenIDs[common.Hash(args[0].([32]byte))]
		if !ok {
			id = new(big.Int)
		}
		return method.Outputs.Pack(id)
	case "getPointId":
		return method.Outputs.Pack(big.NewInt(4242))
	}
	return nil, errors.New("unknown method")
}

func contractReads(outcome string) string {
	return `
# HELP badgeauth_contract_reads_total Contract view calls, by method and outcome
# TYPE badgeauth_contract_reads_total counter
badgeauth_contract_reads_total{method="eip712Domain",outcome="` + outcome + `"} 1
`
}

func TestDomain(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	fake := newFakeContract()
	r := NewReader(fake, contract, WithMetrics(m), WithChainID(big.NewInt(31337)))

	d, err := r.Domain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BadgeV1", d.Name)
	assert.Equal(t, "1", d.Version)
	assert.Equal(t, int64(31337), d.ChainID.Int64())
	assert.Equal(t, contract, d.VerifyingContract)
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(contractReads("success")), "badgeauth_contract_reads_total"))
}

func TestDomainRejectsForeignContract(t *testing.T) {
	fake := newFakeContract()
	fake.verifying = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
	r := NewReader(fake, contract)

	_, err := r.Domain(context.Background())
	assert.ErrorIs(t, err, ErrDomainFetch)
}

func TestDomainRejectsWrongChain(t *testing.T) {
	fake := newFakeContract()
	fake.chainID = big.NewInt(8453)
	r := NewReader(fake, contract, WithChainID(big.NewInt(31337)))

	_, err := r.Domain(context.Background())
	assert.ErrorIs(t, err, ErrDomainFetch)
}

func TestCallFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	fake := newFakeContract()
	fake.fail = errors.New("connection refused")
	r := NewReader(fake, contract, WithMetrics(m))

	_, err := r.Domain(context.Background())
	assert.ErrorIs(t, err, ErrDomainFetch)
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(contractReads("failure")), "badgeauth_contract_reads_total"))
}

func TestBadgeLookups(t *testing.T) {
	fake := newFakeContract()
	nameHash := crypto.Keccak256Hash([]byte("Champion"))
	fake.tokenIDs[nameHash] = big.NewInt(3)
	r := NewReader(fake, contract)

	h, err := r.HashBadgeName(context.Background(), "Champion")
	require.NoError(t, err)
	assert.Equal(t, nameHash, h)

	id, err := r.TokenID(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), id.Uint64())

	point, err := r.PointID(context.Background(), "Champion")
	require.NoError(t, err)
	assert.Equal(t, uint64(4242), point.Uint64())
}

func TestRateLimitHonoursContext(t *testing.T) {
	fake := newFakeContract()
	r := NewReader(fake, contract, WithRateLimit(0.001))

	_, err := r.Domain(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Domain(ctx)
	assert.ErrorIs(t, err, ErrDomainFetch)
	assert.Equal(t, 1, fake.calls["eip712Domain"])
}
