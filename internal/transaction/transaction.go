// Package transaction sends the role-gated setters that publish eligibility state.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/base/badge-authorizer/internal/logger"
	"github.com/base/badge-authorizer/internal/metrics"
)

// DefaultGasLimit caps the adjusted gas estimate.
const DefaultGasLimit = 8000000

var (
	ErrTxFailed            = errors.New("transaction reverted")
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")
	ErrLengthMismatch      = errors.New("argument lists differ in length")
)

const SetterABI = `[
	{"type":"function","name":"setMerkleRoot","stateMutability":"nonpayable","inputs":[{"name":"root","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"setBadges","stateMutability":"nonpayable","inputs":[{"name":"badgeNames","type":"string[]"},{"name":"eligiblePoints","type":"uint256[]"}],"outputs":[]},
	{"type":"function","name":"setEligiblePointBadges","stateMutability":"nonpayable","inputs":[{"name":"badgeIds","type":"uint256[]"},{"name":"eligiblePoints","type":"uint256[]"}],"outputs":[]}
]`

var setterABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(SetterABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// Backend is the node surface a Publisher needs. *ethclient.Client implements it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TxSigner signs transactions for one account. signer.KeySigner and signer.WalletSigner
// implement it.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

type Params struct {
	GasLimit               uint64
	GasLimitAdjustmentRate float64
	GasFeeCapMultiplier    int64
	PollInterval           time.Duration
	ConfirmationTimeout    time.Duration
}

func DefaultParams() Params {
	return Params{
		GasLimit:               DefaultGasLimit,
		GasLimitAdjustmentRate: 1.2,
		GasFeeCapMultiplier:    2,
		PollInterval:           time.Second,
		ConfirmationTimeout:    2 * time.Minute,
	}
}

// Publisher sends setter transactions to one contract and waits for their receipts. A new
// root or badge set only counts as published once its receipt reports success.
type Publisher struct {
	backend  Backend
	signer   TxSigner
	contract common.Address
	params   Params
	log      logger.Logger
	metrics  *metrics.Indicators
}

func NewPublisher(backend Backend, s TxSigner, contract common.Address, params Params, log logger.Logger, m *metrics.Indicators) *Publisher {
	return &Publisher{
		backend:  backend,
		signer:   s,
		contract: contract,
		params:   params,
		log:      log,
		metrics:  m,
	}
}

func (p *Publisher) SetMerkleRoot(ctx context.Context, root common.Hash) (*types.Receipt, error) {
	return p.send(ctx, "setMerkleRoot", [32]byte(root))
}

// SetBadges registers V2 badges with the points each requires.
func (p *Publisher) SetBadges(ctx context.Context, names []string, points []*uint256.Int) (*types.Receipt, error) {
	if len(names) != len(points) {
		return nil, fmt.Errorf("%w: %d names, %d points", ErrLengthMismatch, len(names), len(points))
	}
	return p.send(ctx, "setBadges", names, toBig(points))
}

// SetEligiblePointBadges registers V2.2 badge ids with the points each requires.
func (p *Publisher) SetEligiblePointBadges(ctx context.Context, badgeIDs, points []*uint256.Int) (*types.Receipt, error) {
	if len(badgeIDs) != len(points) {
		return nil, fmt.Errorf("%w: %d badge ids, %d points", ErrLengthMismatch, len(badgeIDs), len(points))
	}
	return p.send(ctx, "setEligiblePointBadges", toBig(badgeIDs), toBig(points))
}

func (p *Publisher) send(ctx context.Context, method string, args ...interface{}) (receipt *types.Receipt, err error) {
	defer func() {
		p.metrics.IncTransaction(method, metrics.Outcome(err))
	}()

	input, err := setterABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack input: %w", err)
	}
	tx, err := p.buildAndSign(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := p.backend.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	p.log.Info("transaction sent",
		logger.WithField("method", method),
		logger.WithField("hash", tx.Hash().Hex()),
		logger.WithField("nonce", tx.Nonce()),
	)

	start := time.Now()
	receipt, err = p.waitForConfirmation(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	p.metrics.ObserveConfirmation(time.Since(start).Seconds())
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s in block %s", ErrTxFailed, tx.Hash().Hex(), receipt.BlockNumber)
	}
	p.log.Info("transaction confirmed",
		logger.WithField("method", method),
		logger.WithField("hash", tx.Hash().Hex()),
		logger.WithField("block", receipt.BlockNumber.String()),
	)
	return receipt, nil
}

func (p *Publisher) buildAndSign(ctx context.Context, input []byte) (*types.Transaction, error) {
	from := p.signer.Address()
	chainID, err := p.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	nonce, err := p.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasTipCap, gasFeeCap, err := p.suggestGasFees(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas fees: %w", err)
	}
	gas, err := p.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:      from,
		To:        &p.contract,
		GasFeeCap: gasFeeCap,
		GasTipCap: gasTipCap,
		Data:      input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}
	gas = uint64(float64(gas) * p.params.GasLimitAdjustmentRate)
	if gas > p.params.GasLimit {
		return nil, fmt.Errorf("failed to estimate gas limit (%d > %d)", gas, p.params.GasLimit)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gas,
		To:        &p.contract,
		Value:     big.NewInt(0),
		Data:      input,
	})
	signed, err := p.signer.SignTx(tx, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

func (p *Publisher) suggestGasFees(ctx context.Context) (*big.Int, *big.Int, error) {
	tip, err := p.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, err
	}
	head, err := p.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(p.params.GasFeeCapMultiplier))
	feeCap.Add(feeCap, tip)
	return tip, feeCap, nil
}

func (p *Publisher) waitForConfirmation(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	queryTicker := time.NewTicker(p.params.PollInterval)
	defer queryTicker.Stop()

	timeout := time.After(p.params.ConfirmationTimeout)

	for {
		receipt, err := p.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			p.log.Warn("failed to fetch receipt", logger.WithField("hash", hash.Hex()), logger.WithField("error", err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, fmt.Errorf("%w: %s", ErrConfirmationTimeout, hash.Hex())
		case <-queryTicker.C:
			continue
		}
	}
}

func toBig(values []*uint256.Int) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = v.ToBig()
	}
	return out
}
