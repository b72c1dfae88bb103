package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/base/badge-authorizer/internal/logger"
	"github.com/base/badge-authorizer/internal/typeddata"
)

const (
	hardhatKey      = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	hardhatAddress  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	hardhatMnemonic = "test test test test test test test test test test test junk"
)

var (
	contractA = common.HexToAddress("0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9")
	contractB = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
	recipient = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
)

func domainFor(contract common.Address) typeddata.Domain {
	return typeddata.Domain{Name: "BadgeV1", Version: "1", ChainID: big.NewInt(31337), VerifyingContract: contract}
}

func pointPayload(contract common.Address) apitypes.TypedData {
	return typeddata.MintPointV2(domainFor(contract), typeddata.PointV2Message{
		To:      recipient,
		TokenID: uint256.NewInt(1001),
		Amount:  uint256.NewInt(50),
	})
}

func TestKeySignerRecovers(t *testing.T) {
	s, err := NewKeySigner(hardhatKey)
	require.NoError(t, err)
	assert.Equal(t, hardhatAddress, s.Address().Hex())

	td := pointPayload(contractA)
	sig, err := s.SignTypedData(context.Background(), td)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	got, err := Recover(td, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)
	assert.NoError(t, Verify(td, sig, s.Address()))

	// deterministic signing
	again, err := s.SignTypedData(context.Background(), td)
	require.NoError(t, err)
	assert.Equal(t, sig, again)
}

func TestSignatureBoundToDomain(t *testing.T) {
	s, err := NewKeySigner(hardhatKey)
	require.NoError(t, err)

	sig, err := s.SignTypedData(context.Background(), pointPayload(contractA))
	require.NoError(t, err)

	err = Verify(pointPayload(contractB), sig, s.Address())
	assert.ErrorIs(t, err, ErrVerificationMismatch)
}

func TestKeySignerCancelled(t *testing.T) {
	s, err := NewKeySigner(hardhatKey)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.SignTypedData(ctx, pointPayload(contractA))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBadPrivateKey(t *testing.T) {
	_, err := NewKeySigner("0x1234")
	assert.Error(t, err)
}

func TestMnemonicSigner(t *testing.T) {
	s, err := NewMnemonicSigner(hardhatMnemonic, "")
	require.NoError(t, err)
	assert.Equal(t, hardhatAddress, s.Address().Hex())

	_, err = NewMnemonicSigner("not a mnemonic", DefaultHDPath)
	assert.Error(t, err)

	_, err = NewMnemonicSigner(hardhatMnemonic, "m/not/a/path")
	assert.Error(t, err)
}

func TestRecoverRejectsMalformed(t *testing.T) {
	_, err := Recover(pointPayload(contractA), make([]byte, 64))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = normalize([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

type fakeAgent struct {
	key     *ecdsa.PrivateKey
	reject  bool
	release chan struct{}
	seen    []string
}

func (f *fakeAgent) Accounts() []common.Address {
	return []common.Address{crypto.PubkeyToAddress(f.key.PublicKey)}
}

func (f *fakeAgent) SignTypedData_v4(ctx context.Context, from common.Address, data string) (hexutil.Bytes, error) {
	f.seen = append(f.seen, data)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
		return nil, errors.New("abandoned")
	}
	if f.reject {
		return nil, errors.New("User rejected the request.")
	}
	var td apitypes.TypedData
	if err := json.Unmarshal([]byte(data), &td); err != nil {
		return nil, err
	}
	h, err := typeddata.Hash(td)
	if err != nil {
		return nil, err
	}
	return crypto.Sign(h.Digest.Bytes(), f.key)
}

func startAgent(t *testing.T, agent *fakeAgent) *rpc.Client {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", agent))
	client := rpc.DialInProc(server)
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return client
}

func TestAgentSigner(t *testing.T) {
	key, err := crypto.HexToECDSA(hardhatKey[2:])
	require.NoError(t, err)
	agent := &fakeAgent{key: key}
	client := startAgent(t, agent)

	s, err := connectAgent(context.Background(), client, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, hardhatAddress, s.Address().Hex())
	assert.Equal(t, "agent", s.Kind())

	td := pointPayload(contractA)
	sig, err := s.SignTypedData(context.Background(), td)
	require.NoError(t, err)
	assert.Contains(t, []byte{27, 28}, sig[64])
	assert.NoError(t, Verify(td, sig, s.Address()))

	// both signing paths agree
	local, err := NewKeySigner(hardhatKey)
	require.NoError(t, err)
	localSig, err := local.SignTypedData(context.Background(), td)
	require.NoError(t, err)
	assert.Equal(t, localSig, sig)

	require.Len(t, agent.seen, 1)
	assert.Contains(t, agent.seen[0], `"primaryType":"MintPointData"`)
}

func TestAgentSignerRejected(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	client := startAgent(t, &fakeAgent{key: key, reject: true})

	s := NewAgentSigner(client, crypto.PubkeyToAddress(key.PublicKey))
	_, err = s.SignTypedData(context.Background(), pointPayload(contractA))
	assert.ErrorIs(t, err, ErrSigningRejected)
}

func TestAgentSignerTimeout(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	release := make(chan struct{})
	client := startAgent(t, &fakeAgent{key: key, release: release})
	defer close(release)

	s := NewAgentSigner(client, crypto.PubkeyToAddress(key.PublicKey))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.SignTypedData(ctx, pointPayload(contractA))
	assert.ErrorIs(t, err, ErrSigningRejected)
}

func TestAgentSignerRefusesIncompletePayload(t *testing.T) {
	td := pointPayload(contractA)
	delete(td.Message, "tokenId")
	s := NewAgentSigner(nil, recipient)
	_, err := s.SignTypedData(context.Background(), td)
	assert.ErrorIs(t, err, typeddata.ErrIncompletePayload)
}

func TestWalletSignerWithKeystore(t *testing.T) {
	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	key, err := crypto.HexToECDSA(hardhatKey[2:])
	require.NoError(t, err)
	account, err := ks.ImportECDSA(key, "secret")
	require.NoError(t, err)
	require.NoError(t, ks.Unlock(account, "secret"))

	wallets := ks.Wallets()
	require.Len(t, wallets, 1)
	s := NewWalletSigner(wallets[0], account)
	assert.Equal(t, hardhatAddress, s.Address().Hex())

	td := pointPayload(contractA)
	sig, err := s.SignTypedData(context.Background(), td)
	require.NoError(t, err)
	assert.NoError(t, Verify(td, sig, s.Address()))

	require.NoError(t, ks.Lock(account.Address))
	_, err = s.SignTypedData(context.Background(), td)
	assert.ErrorIs(t, err, ErrSigningRejected)
}

func TestNewFromOptions(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNop()

	_, err := New(ctx, Options{}, log)
	assert.ErrorIs(t, err, ErrSignerSource)

	_, err = New(ctx, Options{PrivateKey: hardhatKey, Mnemonic: hardhatMnemonic}, log)
	assert.ErrorIs(t, err, ErrSignerSource)

	s, err := New(ctx, Options{PrivateKey: hardhatKey}, log)
	require.NoError(t, err)
	assert.Equal(t, "key", s.Kind())

	s, err = New(ctx, Options{Mnemonic: hardhatMnemonic}, log)
	require.NoError(t, err)
	assert.Equal(t, hardhatAddress, s.Address().Hex())

	_, err = New(ctx, Options{AgentURL: "http://127.0.0.1:1", AgentAddress: "0x12"}, log)
	assert.Error(t, err)
}
