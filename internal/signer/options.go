package signer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/base/badge-authorizer/internal/encoding"
	"github.com/base/badge-authorizer/internal/logger"
)

var ErrSignerSource = errors.New("one (and only one) of private key, mnemonic, ledger, agent url must be set")

// Options selects a signing path. Exactly one source must be set.
type Options struct {
	PrivateKey   string
	Mnemonic     string
	HDPath       string
	Ledger       bool
	LedgerIndex  int
	AgentURL     string
	AgentAddress string
}

func (o Options) sources() int {
	n := 0
	for _, set := range []bool{o.PrivateKey != "", o.Mnemonic != "", o.Ledger, o.AgentURL != ""} {
		if set {
			n++
		}
	}
	return n
}

// New builds the Signer described by o.
func New(ctx context.Context, o Options, log logger.Logger) (Signer, error) {
	if o.sources() != 1 {
		return nil, ErrSignerSource
	}
	switch {
	case o.PrivateKey != "":
		return NewKeySigner(o.PrivateKey)
	case o.Mnemonic != "":
		return NewMnemonicSigner(o.Mnemonic, o.HDPath)
	case o.Ledger:
		return OpenLedger(o.LedgerIndex, o.HDPath, log)
	default:
		var from common.Address
		if o.AgentAddress != "" {
			addr, err := encoding.ParseAddress(o.AgentAddress)
			if err != nil {
				return nil, fmt.Errorf("agent address: %w", err)
			}
			from = addr
		}
		return DialAgent(ctx, o.AgentURL, from)
	}
}
