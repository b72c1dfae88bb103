package report

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/base/badge-authorizer/internal/typeddata"
)

const labelsYAML = `
contracts:
  "31337":
    "0xcf7ed3acca5a467e9e704c703e8d87f634fb0fc9":
      name: BadgeV1 Proxy
    "0x90f79bf6eb2c4f870365e785982e1f101e93b906":
      name: Test Recipient
`

func testDomain() typeddata.Domain {
	return typeddata.Domain{
		Name:              "BadgeV1",
		Version:           "1",
		ChainID:           big.NewInt(31337),
		VerifyingContract: common.HexToAddress("0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9"),
	}
}

func TestBuild(t *testing.T) {
	labels, err := ParseLabels([]byte(labelsYAML))
	require.NoError(t, err)

	td := typeddata.MintPointV2(testDomain(), typeddata.PointV2Message{
		To:      common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906"),
		TokenID: uint256.NewInt(1001),
		Amount:  uint256.NewInt(50),
	})
	r, err := Build(td, labels)
	require.NoError(t, err)

	assert.Equal(t, "31337", r.ChainID)
	assert.Equal(t, "BadgeV1 Proxy", r.ContractName)
	assert.Equal(t, "0x991fd0d5a0e94835a4fee82041d6d1917fae8a5d3e639367670d95db9a3dcf32", r.DomainHash)
	assert.Equal(t, "0x96cf961781858c624baa2ce48ebc981fffbef7f29dfba073ffdbd787c1ff9b80", r.Digest)
	require.Len(t, r.Fields, 3)
	assert.Equal(t, Field{Name: "to", Type: "address", Value: "0x90F79bf6EB2c4f870365E785982E1f101E93b906", Label: "Test Recipient"}, r.Fields[0])
	assert.Equal(t, Field{Name: "tokenId", Type: "uint256", Value: "1001"}, r.Fields[1])
	assert.Equal(t, Field{Name: "amount", Type: "uint256", Value: "50"}, r.Fields[2])

	md := string(r.Markdown())
	assert.Contains(t, md, "> ### BadgeV1 Proxy: `0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9`")
	assert.Contains(t, md, "> - Domain Hash: `0x991fd0d5a0e94835a4fee82041d6d1917fae8a5d3e639367670d95db9a3dcf32`")
	assert.Contains(t, md, "The `MintPointData` message")
	assert.Contains(t, md, "1. **tokenId** (`uint256`): `1001`")
	assert.NotContains(t, md, "<<")

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"message_hash":"0x`)
}

func TestUnknownAddresses(t *testing.T) {
	td := typeddata.MintPointV22(testDomain(), typeddata.PointV22Message{
		To:      common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		PointID: uint256.NewInt(1),
		Amount:  uint256.NewInt(1),
	})
	r, err := Build(td, nil)
	require.NoError(t, err)
	assert.Equal(t, DEFAULT_CONTRACT.Name, r.ContractName)
	assert.Equal(t, DEFAULT_CONTRACT.Name, r.Fields[0].Label)
}

func TestLoadLabels(t *testing.T) {
	l, err := LoadLabels("")
	require.NoError(t, err)
	assert.Empty(t, l.Contracts)

	path := filepath.Join(t.TempDir(), "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(labelsYAML), 0644))
	l, err = LoadLabels(path)
	require.NoError(t, err)
	assert.Len(t, l.Contracts["31337"], 2)

	_, err = ParseLabels([]byte("contracts: ["))
	assert.Error(t, err)
}
