package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/base/badge-authorizer/internal/badgeid"
	"github.com/base/badge-authorizer/internal/encoding"
	"github.com/base/badge-authorizer/internal/merkle"
)

var contract = common.HexToAddress("0x1234567890123456789012345678901234567890")

const jsonDataset = `[
  {"to": "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", "point": 10, "badgeName": "Champion"},
  {"to": "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC", "point": 25, "badgeName": "Connector"}
]`

const yamlDataset = `
- to: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
  point: 10
  badgeName: Champion
- to: "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
  point: 25
  badgeName: Connector
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFormatsAgree(t *testing.T) {
	fromJSON, err := Load(writeFile(t, "points.json", jsonDataset))
	require.NoError(t, err)
	fromYAML, err := Load(writeFile(t, "points.yml", yamlDataset))
	require.NoError(t, err)

	require.Len(t, fromJSON, 2)
	assert.Equal(t, fromJSON, fromYAML)
	assert.Equal(t, Record{To: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", Point: 10, BadgeName: "Champion"}, fromJSON[0])
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "points.csv", "to,point"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "points.json", "{"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestEntries(t *testing.T) {
	records, err := Parse([]byte(jsonDataset), ".json")
	require.NoError(t, err)

	entries, err := Entries(records, badgeid.NewRegistry(contract), Options{Scheme: badgeid.SchemeLegacyPoint})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, common.HexToAddress(records[0].To), entries[0].Address)
	assert.Equal(t, "0x8e003402e9bb4fce28bdaf241234567890123456789012345678901234567890", entries[0].TokenID.Hex())
	assert.Equal(t, uint64(10), entries[0].Amount.Uint64())

	tree, err := merkle.New(entries)
	require.NoError(t, err)
	claim, err := tree.Claim(entries[1].Address, entries[1].TokenID)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), claim.Point.Uint64())
}

func TestEntriesRejectsBadRecords(t *testing.T) {
	reg := badgeid.NewRegistry(contract)

	_, err := Entries([]Record{{To: "0x1234", Point: 1, BadgeName: "Champion"}}, reg, Options{Scheme: badgeid.SchemePoint})
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.ErrorIs(t, err, encoding.ErrInvalidAddress)

	_, err = Entries([]Record{{To: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", Point: 1}}, reg, Options{Scheme: badgeid.SchemePoint})
	assert.ErrorIs(t, err, badgeid.ErrInvalidInput)
}

func TestEntriesDuplicates(t *testing.T) {
	records := []Record{
		{To: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", Point: 10, BadgeName: "Champion"},
		{To: "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", Point: 99, BadgeName: "Champion"},
	}

	_, err := Entries(records, badgeid.NewRegistry(contract), Options{Scheme: badgeid.SchemePoint})
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	entries, err := Entries(records, badgeid.NewRegistry(contract), Options{Scheme: badgeid.SchemePoint, AllowDuplicates: true})
	require.NoError(t, err)
	i, err := merkle.FindLeafIndex(entries, entries[1].Address, entries[1].TokenID)
	require.NoError(t, err)
	assert.Equal(t, 0, i)
}

func TestLoadBadges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "badges.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- badgeName: Champion\n  points: 100\n- badgeName: Rookie\n  points: 5\n"), 0o644))

	badges, err := LoadBadges(path)
	require.NoError(t, err)
	assert.Equal(t, []Badge{{BadgeName: "Champion", Points: 100}, {BadgeName: "Rookie", Points: 5}}, badges)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"badgeName":" ","points":1}]`), 0o644))
	_, err = LoadBadges(bad)
	assert.ErrorIs(t, err, ErrInvalidRecord)
}
