package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "badgeauth"

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Indicators groups the counters and histograms recorded by the authorization paths.
// A nil *Indicators records nothing.
type Indicators struct {
	authorizationsTotal     *prometheus.CounterVec
	signingDurationSeconds  *prometheus.HistogramVec
	proofsTotal             *prometheus.CounterVec
	contractReadsTotal      *prometheus.CounterVec
	transactionsTotal       *prometheus.CounterVec
	confirmationWaitSeconds prometheus.Histogram
}

func New(reg prometheus.Registerer) *Indicators {
	return &Indicators{
		authorizationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "authorizations_total",
				Help:      "Mint authorizations produced, by variant and outcome",
			},
			[]string{"variant", "outcome"},
		),
		signingDurationSeconds: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "signing_duration_seconds",
				Help:      "Time spent waiting for a typed-data signature, by signer kind",
				Buckets:   []float64{0.001, 0.01, 0.1, 1, 5, 15, 60, 300},
			},
			[]string{"signer"},
		),
		proofsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "merkle_proofs_total",
				Help:      "Merkle claims requested, by outcome",
			},
			[]string{"outcome"},
		),
		contractReadsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "contract_reads_total",
				Help:      "Contract view calls, by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		transactionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "transactions_total",
				Help:      "Role-gated transactions sent, by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		confirmationWaitSeconds: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "confirmation_wait_seconds",
				Help:      "Time between sending a transaction and its receipt",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
	}
}

func (p *Indicators) IncAuthorization(variant, outcome string) {
	if p == nil {
		return
	}
	p.authorizationsTotal.WithLabelValues(variant, outcome).Inc()
}

func (p *Indicators) ObserveSigning(signer string, seconds float64) {
	if p == nil {
		return
	}
	p.signingDurationSeconds.WithLabelValues(signer).Observe(seconds)
}

func (p *Indicators) IncProof(outcome string) {
	if p == nil {
		return
	}
	p.proofsTotal.WithLabelValues(outcome).Inc()
}

func (p *Indicators) IncContractRead(method, outcome string) {
	if p == nil {
		return
	}
	p.contractReadsTotal.WithLabelValues(method, outcome).Inc()
}

func (p *Indicators) IncTransaction(method, outcome string) {
	if p == nil {
		return
	}
	p.transactionsTotal.WithLabelValues(method, outcome).Inc()
}

func (p *Indicators) ObserveConfirmation(seconds float64) {
	if p == nil {
		return
	}
	p.confirmationWaitSeconds.Observe(seconds)
}

// WriteTextfile dumps everything gathered by g in the text exposition format, for
// node_exporter's textfile collector. An empty path is a no-op.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
