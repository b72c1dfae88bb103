package typeddata

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDomain = Domain{
		Name:              "BadgeV1",
		Version:           "1",
		ChainID:           big.NewInt(31337),
		VerifyingContract: common.HexToAddress("0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9"),
	}
	recipient = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
)

func TestDomainSeparator(t *testing.T) {
	sep, err := testDomain.Separator()
	require.NoError(t, err)
	assert.Equal(t, "0x991fd0d5a0e94835a4fee82041d6d1917fae8a5d3e639367670d95db9a3dcf32", sep.Hex())

	// Mail vector from EIP-712
	mail := Domain{
		Name:              "Ether Mail",
		Version:           "1",
		ChainID:           big.NewInt(1),
		VerifyingContract: common.HexToAddress("0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC"),
	}
	sep, err = mail.Separator()
	require.NoError(t, err)
	assert.Equal(t, "0xf2cee375fa42b42143804025fc449deafd50cc031ca257e0b194a650a912090f", sep.Hex())
}

func TestMintPointV2Hash(t *testing.T) {
	td := MintPointV2(testDomain, PointV2Message{
		To:      recipient,
		TokenID: uint256.NewInt(1001),
		Amount:  uint256.NewInt(50),
	})
	h, err := Hash(td)
	require.NoError(t, err)
	assert.Equal(t, "0x991fd0d5a0e94835a4fee82041d6d1917fae8a5d3e639367670d95db9a3dcf32", h.Domain.Hex())
	assert.Equal(t, "0xcdfc4104f99232fee55612f6ef8f945b33afdf013a1a553f0ade8b7ed2a89547", h.Message.Hex())
	assert.Equal(t, "0x96cf961781858c624baa2ce48ebc981fffbef7f29dfba073ffdbd787c1ff9b80", h.Digest.Hex())

	require.Len(t, h.Raw, 66)
	assert.Equal(t, []byte{0x19, 0x01}, h.Raw[:2])
	assert.Equal(t, h.Digest, crypto.Keccak256Hash(h.Raw))
}

func TestMintBadgeV1Hash(t *testing.T) {
	td := MintBadgeV1(testDomain, BadgeV1Message{
		AdminWallet:   common.HexToAddress("0xaBdE395073F20e1E928763AA09A738f09c92ED7b"),
		To:            recipient,
		BadgeID:       uint256.NewInt(7),
		TokenID:       uint256.NewInt(3),
		BadgeNameHash: crypto.Keccak256Hash([]byte("Champion")),
	})
	assert.Equal(t, MintBadgeType, td.PrimaryType)
	h, err := Hash(td)
	require.NoError(t, err)
	assert.Equal(t, "0x312af49189afca7dacdb77925f2d83fdaa8a47efdd359e743e4815b50402a064", h.Digest.Hex())
}

func TestMintPointV22Hash(t *testing.T) {
	td := MintPointV22(testDomain, PointV22Message{
		To:      recipient,
		PointID: uint256.NewInt(1001),
		Amount:  uint256.NewInt(50),
	})
	h, err := Hash(td)
	require.NoError(t, err)
	assert.Equal(t, "0xa22c3a2cc4984dc43a5404b6fa7394b52b6116a88b707b0b309a30ee14f5e3ea", h.Digest.Hex())

	// same values under the V2 schema hash differently: field names are part of the type hash
	v2, err := Hash(MintPointV2(testDomain, PointV2Message{To: recipient, TokenID: uint256.NewInt(1001), Amount: uint256.NewInt(50)}))
	require.NoError(t, err)
	assert.NotEqual(t, v2.Digest, h.Digest)
}

func TestDomainBindsContract(t *testing.T) {
	msg := PointV2Message{To: recipient, TokenID: uint256.NewInt(1), Amount: uint256.NewInt(1)}
	other := testDomain
	other.VerifyingContract = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")

	a, err := Hash(MintPointV2(testDomain, msg))
	require.NoError(t, err)
	b, err := Hash(MintPointV2(other, msg))
	require.NoError(t, err)
	assert.Equal(t, a.Message, b.Message)
	assert.NotEqual(t, a.Domain, b.Domain)
	assert.NotEqual(t, a.Digest, b.Digest)
}

func TestValidate(t *testing.T) {
	td := MintPointV2(testDomain, PointV2Message{To: recipient, TokenID: uint256.NewInt(1), Amount: uint256.NewInt(1)})
	require.NoError(t, Validate(td))

	delete(td.Message, "amount")
	err := Validate(td)
	assert.ErrorIs(t, err, ErrIncompletePayload)
	_, err = Hash(td)
	assert.ErrorIs(t, err, ErrIncompletePayload)

	td.PrimaryType = "Unknown"
	assert.ErrorIs(t, Validate(td), ErrIncompletePayload)
}

func TestPayloadJSON(t *testing.T) {
	td := MintPointV22(testDomain, PointV22Message{To: recipient, PointID: uint256.NewInt(255), Amount: uint256.NewInt(10)})
	data, err := json.Marshal(td)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "MintPointData", decoded["primaryType"])
	message := decoded["message"].(map[string]interface{})
	assert.Equal(t, recipient.Hex(), message["to"])
	assert.Equal(t, "0xff", message["pointId"])
	domain := decoded["domain"].(map[string]interface{})
	assert.Equal(t, "BadgeV1", domain["name"])
	assert.Equal(t, testDomain.VerifyingContract.Hex(), domain["verifyingContract"])
}
