package signer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/usbwallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/base/badge-authorizer/internal/logger"
	"github.com/base/badge-authorizer/internal/typeddata"
)

// WalletSigner signs through an accounts.Wallet. Ledger devices receive the split domain
// and message hashes so they can be checked on the device screen.
type WalletSigner struct {
	wallet  accounts.Wallet
	account accounts.Account
}

var _ Signer = (*WalletSigner)(nil)

func NewWalletSigner(wallet accounts.Wallet, account accounts.Account) *WalletSigner {
	return &WalletSigner{wallet: wallet, account: account}
}

// OpenLedger opens the ledger at index and derives the account at hdPath.
func OpenLedger(index int, hdPath string, log logger.Logger) (*WalletSigner, error) {
	if hdPath == "" {
		hdPath = DefaultHDPath
	}
	path, err := accounts.ParseDerivationPath(hdPath)
	if err != nil {
		return nil, err
	}

	ledgerHub, err := usbwallet.NewLedgerHub()
	if err != nil {
		return nil, fmt.Errorf("error starting ledger: %w", err)
	}

	wallets := ledgerHub.Wallets()
	if len(wallets) == 0 {
		return nil, fmt.Errorf("no ledgers found, please connect your ledger")
	} else if len(wallets) > 1 {
		log.Info("multiple ledgers found", logger.WithField("count", len(wallets)), logger.WithField("index", index))
	}
	if index < 0 || index >= len(wallets) {
		return nil, fmt.Errorf("ledger index out of range")
	}

	wallet := wallets[index]
	if err := wallet.Open(""); err != nil {
		return nil, fmt.Errorf("error opening ledger: %w", err)
	}
	account, err := wallet.Derive(path, true)
	if err != nil {
		return nil, fmt.Errorf("error deriving ledger account (please unlock and open the Ethereum app): %w", err)
	}
	return NewWalletSigner(wallet, account), nil
}

func (s *WalletSigner) Address() common.Address {
	return s.account.Address
}

func (s *WalletSigner) Kind() string {
	return "wallet"
}

func (s *WalletSigner) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	h, err := typeddata.Hash(td)
	if err != nil {
		return nil, err
	}
	type result struct {
		sig []byte
		err error
	}
	// wallets block on user confirmation without a context, so the wait happens aside
	done := make(chan result, 1)
	go func() {
		sig, err := s.wallet.SignData(s.account, accounts.MimetypeTypedData, h.Raw)
		done <- result{sig: sig, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrSigningRejected, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSigningRejected, r.err)
		}
		return normalize(r.sig)
	}
}

func (s *WalletSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return s.wallet.SignTx(s.account, tx, chainID)
}
