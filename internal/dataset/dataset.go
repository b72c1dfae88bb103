// Package dataset loads the eligibility records a Merkle snapshot is built from.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v2"

	"github.com/base/badge-authorizer/internal/badgeid"
	"github.com/base/badge-authorizer/internal/encoding"
	"github.com/base/badge-authorizer/internal/merkle"
)

var (
	ErrInvalidRecord  = errors.New("invalid eligibility record")
	ErrDuplicateEntry = errors.New("duplicate eligibility entry")
)

// Record grants Point units of the point derived from BadgeName to To.
type Record struct {
	To        string `json:"to" yaml:"to"`
	Point     uint64 `json:"point" yaml:"point"`
	BadgeName string `json:"badgeName" yaml:"badgeName"`
}

// Load reads records from a .json, .yaml or .yml file.
func Load(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading dataset: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes records in the format named by ext.
func Parse(data []byte, ext string) ([]Record, error) {
	var records []Record
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("error parsing JSON dataset: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.UnmarshalStrict(data, &records); err != nil {
			return nil, fmt.Errorf("error parsing YAML dataset: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", ext)
	}
	return records, nil
}

type Options struct {
	// Scheme derives the tokenId of each record from its badge name.
	Scheme badgeid.Scheme
	// AllowDuplicates keeps entries sharing (to, tokenId). Only the first of them can ever
	// be claimed.
	AllowDuplicates bool
}

// Entries converts records into Merkle entries, deriving identifiers through reg so that
// colliding names are refused before a root is built.
func Entries(records []Record, reg *badgeid.Registry, opts Options) ([]merkle.Entry, error) {
	entries := make([]merkle.Entry, 0, len(records))
	for i, r := range records {
		to, err := encoding.ParseAddress(r.To)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrInvalidRecord, i, err)
		}
		id, err := reg.Register(opts.Scheme, r.BadgeName)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		entries = append(entries, merkle.Entry{
			Address: to,
			TokenID: id,
			Amount:  uint256.NewInt(r.Point),
		})
	}
	if dups := merkle.Duplicates(entries); len(dups) > 0 && !opts.AllowDuplicates {
		first := entries[dups[0]]
		return nil, fmt.Errorf("%w: record %d repeats %s for %q", ErrDuplicateEntry, dups[0], first.Address.Hex(), records[dups[0]].BadgeName)
	}
	return entries, nil
}

// Badge sets the points a badge requires.
type Badge struct {
	BadgeName string `json:"badgeName" yaml:"badgeName"`
	Points    uint64 `json:"points" yaml:"points"`
}

// LoadBadges reads badge requirements from a .json, .yaml or .yml file.
func LoadBadges(path string) ([]Badge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading badges: %w", err)
	}
	var badges []Badge
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &badges)
	case ".yaml", ".yml":
		err = yaml.UnmarshalStrict(data, &badges)
	default:
		return nil, fmt.Errorf("unsupported badges format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing badges: %w", err)
	}
	for i, b := range badges {
		if strings.TrimSpace(b.BadgeName) == "" {
			return nil, fmt.Errorf("%w: badge %d has no name", ErrInvalidRecord, i)
		}
	}
	return badges, nil
}
