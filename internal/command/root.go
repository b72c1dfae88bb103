// Package command wires the badge authorizer packages into the badgeauth CLI.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/base/badge-authorizer/internal/chain"
	"github.com/base/badge-authorizer/internal/config"
	"github.com/base/badge-authorizer/internal/logger"
	"github.com/base/badge-authorizer/internal/metrics"
	"github.com/base/badge-authorizer/internal/signer"
	"github.com/base/badge-authorizer/internal/transaction"
)

var Version = "dev"

// ContractBackend is the node connection used for contract reads and setter transactions.
type ContractBackend interface {
	ethereum.ContractCaller
	transaction.Backend
}

type dialFunc func(ctx context.Context, url string) (ContractBackend, error)

func dialEthclient(ctx context.Context, url string) (ContractBackend, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

type app struct {
	v          *viper.Viper
	cfg        *config.Config
	log        logger.Logger
	registry   *prometheus.Registry
	metrics    *metrics.Indicators
	configPath string
	dial       dialFunc
}

func newApp() *app {
	return &app{
		v:    config.New(),
		dial: dialEthclient,
	}
}

// persistentFlags maps flag names onto config keys.
var persistentFlags = []struct {
	name, key, usage string
	kind             string
}{
	{"rpc", "rpc", "RPC URL to connect to", "string"},
	{"contract", "contract", "Badge contract address", "string"},
	{"chain-id", "chain_id", "Expected chain id of the contract domain (0 accepts any)", "int"},
	{"log-level", "log.level", "Log level: debug, info, warn or error", "string"},
	{"log-format", "log.format", "Log format: text or json", "string"},
	{"metrics-file", "metrics_file", "Write prometheus metrics to this textfile on exit", "string"},
	{"labels-file", "labels_file", "YAML file naming known contracts for reports", "string"},
	{"private-key", "signer.private_key", "Private key to use for signing", "string"},
	{"mnemonic", "signer.mnemonic", "Mnemonic to use for signing", "string"},
	{"hd-path", "signer.hd_path", "Hierarchical deterministic derivation path for mnemonic or ledger", "string"},
	{"ledger", "signer.ledger", "Use ledger device for signing", "bool"},
	{"ledger-index", "signer.ledger_index", "Index of the ledger to use", "int"},
	{"agent-url", "signer.agent_url", "URL of an external signing agent", "string"},
	{"agent-address", "signer.agent_address", "Account the signing agent signs with", "string"},
	{"rate-limit", "rate_limit", "Maximum contract reads per second (0 is unlimited)", "float"},
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "badgeauth",
		Short:         "Authorize badge and point mints",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (defaults to $"+config.EnvConfig+")")
	for _, f := range persistentFlags {
		switch f.kind {
		case "bool":
			flags.Bool(f.name, false, f.usage)
		case "int":
			flags.Int(f.name, 0, f.usage)
		case "float":
			flags.Float64(f.name, 0, f.usage)
		default:
			flags.String(f.name, "", f.usage)
		}
		if err := a.v.BindPFlag(f.key, flags.Lookup(f.name)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		newIDCmd(a),
		newDomainCmd(a),
		newHashCmd(a),
		newSignCmd(a),
		newRedeemCmd(a),
		newMerkleCmd(a),
		newBadgesCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), Version)
				return err
			},
		},
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.New(cmd.ErrOrStderr(), cfg.Log.Format, cfg.Log.Level)
	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)
	return nil
}

// execute runs root and then flushes metrics, even when the command failed.
func (a *app) execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if a.cfg != nil && a.registry != nil {
		if werr := metrics.WriteTextfile(a.cfg.MetricsFile, a.registry); werr != nil {
			a.log.Error("failed to write metrics", logger.WithField("error", werr))
		}
	}
	return err
}

func Execute() error {
	a := newApp()
	return a.execute(context.Background(), newRootCmd(a))
}

// connect dials the configured RPC. The returned func releases the connection.
func (a *app) connect(ctx context.Context) (ContractBackend, func(), error) {
	if a.cfg.RPC == "" {
		return nil, nil, fmt.Errorf("RPC URL is required")
	}
	backend, err := a.dial(ctx, a.cfg.RPC)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to the Ethereum client: %w", err)
	}
	release := func() {
		if c, ok := backend.(interface{ Close() }); ok {
			c.Close()
		}
	}
	return backend, release, nil
}

func (a *app) reader(backend ethereum.ContractCaller, contract common.Address) *chain.Reader {
	opts := []chain.Option{
		chain.WithRateLimit(a.cfg.RateLimit),
		chain.WithMetrics(a.metrics),
	}
	if a.cfg.ChainID != 0 {
		opts = append(opts, chain.WithChainID(big.NewInt(a.cfg.ChainID)))
	}
	return chain.NewReader(backend, contract, opts...)
}

func (a *app) signer(ctx context.Context) (signer.Signer, error) {
	s, err := signer.New(ctx, a.cfg.SignerOptions(), a.log)
	if err != nil {
		return nil, err
	}
	a.log.Debug("signer ready", logger.WithField("kind", s.Kind()), logger.WithField("address", s.Address().Hex()))
	return s, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// output writes data to path, or to the command's stdout when path is empty.
func output(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing to file: %w", err)
	}
	return nil
}
