// Package config loads settings from a file, BADGEAUTH_* environment variables and flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/base/badge-authorizer/internal/encoding"
	"github.com/base/badge-authorizer/internal/signer"
)

const (
	EnvPrefix = "BADGEAUTH"
	// EnvConfig names a config file when --config is not given.
	EnvConfig = "BADGEAUTH_CONFIG"
)

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Signer struct {
	PrivateKey   string `mapstructure:"private_key"`
	Mnemonic     string `mapstructure:"mnemonic"`
	HDPath       string `mapstructure:"hd_path"`
	Ledger       bool   `mapstructure:"ledger"`
	LedgerIndex  int    `mapstructure:"ledger_index"`
	AgentURL     string `mapstructure:"agent_url"`
	AgentAddress string `mapstructure:"agent_address"`
}

type Retry struct {
	Attempts int           `mapstructure:"attempts"`
	Interval time.Duration `mapstructure:"interval"`
}

type Config struct {
	RPC            string        `mapstructure:"rpc"`
	Contract       string        `mapstructure:"contract"`
	ChainID        int64         `mapstructure:"chain_id"`
	Log            Log           `mapstructure:"log"`
	Signer         Signer        `mapstructure:"signer"`
	Retry          Retry         `mapstructure:"retry"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	MetricsFile    string        `mapstructure:"metrics_file"`
	LabelsFile     string        `mapstructure:"labels_file"`
}

var defaults = map[string]interface{}{
	"rpc":                  "",
	"contract":             "",
	"chain_id":             0,
	"log.level":            "info",
	"log.format":           "text",
	"signer.private_key":   "",
	"signer.mnemonic":      "",
	"signer.hd_path":       signer.DefaultHDPath,
	"signer.ledger":        false,
	"signer.ledger_index":  0,
	"signer.agent_url":     "",
	"signer.agent_address": "",
	"retry.attempts":       3,
	"retry.interval":       time.Second,
	"rate_limit":           0,
	"confirm_timeout":      2 * time.Minute,
	"metrics_file":         "",
	"labels_file":          "",
}

// New returns a viper instance carrying the defaults and the environment binding. Flags
// are bound onto it by the command layer.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (or $BADGEAUTH_CONFIG) when set and decodes everything v knows.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config file invalid: %w", err)
	}
	return &c, nil
}

func (c *Config) ContractAddress() (common.Address, error) {
	if c.Contract == "" {
		return common.Address{}, fmt.Errorf("contract address is required")
	}
	return encoding.ParseAddress(c.Contract)
}

func (c *Config) SignerOptions() signer.Options {
	return signer.Options{
		PrivateKey:   c.Signer.PrivateKey,
		Mnemonic:     c.Signer.Mnemonic,
		HDPath:       c.Signer.HDPath,
		Ledger:       c.Signer.Ledger,
		LedgerIndex:  c.Signer.LedgerIndex,
		AgentURL:     c.Signer.AgentURL,
		AgentAddress: c.Signer.AgentAddress,
	}
}
