package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/decred/dcrd/hdkeychain/v3"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/tyler-smith/go-bip39"

	"github.com/base/badge-authorizer/internal/typeddata"
)

const DefaultHDPath = "m/44'/60'/0'/0/0"

// KeySigner signs locally with an in-memory secp256k1 key.
type KeySigner struct {
	key *ecdsa.PrivateKey
}

var _ Signer = (*KeySigner)(nil)

func NewKeySigner(privateKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("error parsing private key: %w", err)
	}
	return &KeySigner{key: key}, nil
}

// NewMnemonicSigner derives the key at hdPath from a BIP-39 mnemonic.
func NewMnemonicSigner(mnemonic, hdPath string) (*KeySigner, error) {
	if hdPath == "" {
		hdPath = DefaultHDPath
	}
	path, err := accounts.ParseDerivationPath(hdPath)
	if err != nil {
		return nil, err
	}
	key, err := derivePrivateKey(mnemonic, path)
	if err != nil {
		return nil, fmt.Errorf("error deriving key from mnemonic: %w", err)
	}
	return &KeySigner{key: key}, nil
}

func (s *KeySigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *KeySigner) Kind() string {
	return "key"
}

func (s *KeySigner) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	h, err := typeddata.Hash(td)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(h.Digest.Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return normalize(sig)
}

func (s *KeySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

func derivePrivateKey(mnemonic string, path accounts.DerivationPath) (*ecdsa.PrivateKey, error) {
	// Parse the seed string into the master BIP32 key.
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, err
	}

	privKey, err := hdkeychain.NewMaster(seed, fakeNetworkParams{})
	if err != nil {
		return nil, err
	}

	for _, child := range path {
		privKey, err = privKey.Child(child)
		if err != nil {
			return nil, err
		}
	}

	rawPrivKey, err := privKey.SerializedPrivKey()
	if err != nil {
		return nil, err
	}

	return crypto.ToECDSA(rawPrivKey)
}

// fakeNetworkParams satisfies hdkeychain.NetworkParams; the version bytes only matter
// for serialising extended keys, which never happens here.
type fakeNetworkParams struct{}

func (f fakeNetworkParams) HDPrivKeyVersion() [4]byte {
	return [4]byte{}
}

func (f fakeNetworkParams) HDPubKeyVersion() [4]byte {
	return [4]byte{}
}
