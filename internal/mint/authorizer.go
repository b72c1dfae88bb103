// Package mint turns mint requests into signed authorizations the badge contract accepts.
package mint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"

	"github.com/base/badge-authorizer/internal/badgeid"
	"github.com/base/badge-authorizer/internal/logger"
	"github.com/base/badge-authorizer/internal/metrics"
	"github.com/base/badge-authorizer/internal/signer"
	"github.com/base/badge-authorizer/internal/typeddata"
)

const (
	VariantBadgeV1  = "badge-v1"
	VariantPointV2  = "point-v2"
	VariantPointV22 = "point"
)

var ErrIDMismatch = errors.New("derived identifier differs from the contract's")

// Reader is the contract surface an Authorizer reads from. *chain.Reader implements it.
type Reader interface {
	Contract() common.Address
	Domain(ctx context.Context) (typeddata.Domain, error)
	HashBadgeName(ctx context.Context, name string) (common.Hash, error)
	TokenID(ctx context.Context, nameHash common.Hash) (*uint256.Int, error)
	PointID(ctx context.Context, name string) (*uint256.Int, error)
}

// Authorizer fetches the contract's signing domain, builds the typed data of one mint
// variant and has it signed. Contract reads are retried; signing never is, since an agent
// may have prompted a human.
type Authorizer struct {
	reader   Reader
	signer   signer.Signer
	log      logger.Logger
	metrics  *metrics.Indicators
	registry *badgeid.Registry

	attempts     int
	interval     time.Duration
	checkOnChain bool
}

type Option func(*Authorizer)

// WithRetry sets how many times a contract read is attempted and the pause between tries.
// Fewer than one attempt is treated as one.
func WithRetry(attempts int, interval time.Duration) Option {
	return func(a *Authorizer) {
		if attempts < 1 {
			attempts = 1
		}
		a.attempts = attempts
		a.interval = interval
	}
}

func WithMetrics(m *metrics.Indicators) Option {
	return func(a *Authorizer) {
		a.metrics = m
	}
}

// WithOnChainCheck compares off-chain point ids with the contract's getPointId.
func WithOnChainCheck() Option {
	return func(a *Authorizer) {
		a.checkOnChain = true
	}
}

func NewAuthorizer(reader Reader, s signer.Signer, log logger.Logger, opts ...Option) *Authorizer {
	a := &Authorizer{
		reader:   reader,
		signer:   s,
		log:      log,
		registry: badgeid.NewRegistry(reader.Contract()),
		attempts: 3,
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.attempts < 1 {
		a.attempts = 1
	}
	return a
}

// Registry exposes the names derived so far, for collision checks across requests.
func (a *Authorizer) Registry() *badgeid.Registry {
	return a.registry
}

func (a *Authorizer) domain(ctx context.Context) (typeddata.Domain, error) {
	var d typeddata.Domain
	err := a.read(ctx, "eip712Domain", func() error {
		var err error
		d, err = a.reader.Domain(ctx)
		return err
	})
	return d, err
}

func (a *Authorizer) read(ctx context.Context, method string, op func() error) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.interval), uint64(a.attempts-1)),
		ctx,
	)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		a.log.Warn("contract read failed, retrying",
			logger.WithField("method", method),
			logger.WithField("error", err),
			logger.WithField("wait", wait.String()),
		)
	})
}

func (a *Authorizer) sign(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	start := time.Now()
	sig, err := a.signer.SignTypedData(ctx, td)
	a.metrics.ObserveSigning(a.signer.Kind(), time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if err := signer.Verify(td, sig, a.signer.Address()); err != nil {
		return nil, err
	}
	return sig, nil
}

func (a *Authorizer) finish(variant string, to common.Address, err error) {
	a.metrics.IncAuthorization(variant, metrics.Outcome(err))
	if err != nil {
		a.log.Error("authorization failed",
			logger.WithField("variant", variant),
			logger.WithField("to", to.Hex()),
			logger.WithField("error", err),
		)
		return
	}
	a.log.Info("authorization signed",
		logger.WithField("variant", variant),
		logger.WithField("to", to.Hex()),
		logger.WithField("signer", a.signer.Address().Hex()),
	)
}

func requireName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty badge name", badgeid.ErrInvalidInput)
	}
	return nil
}
