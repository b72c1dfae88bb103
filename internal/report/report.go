// Package report renders the validation document a signer checks a typed-data request
// against before approving it on a hardware wallet.
package report

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"gopkg.in/yaml.v2"

	"github.com/base/badge-authorizer/internal/typeddata"
)

type Contract struct {
	Name string `yaml:"name"`
}

// Labels names known addresses per chain id. Addresses are matched case-insensitively.
type Labels struct {
	Contracts map[string]map[string]Contract `yaml:"contracts"`
}

var DEFAULT_CONTRACT = Contract{Name: "<<ContractName>>"}

func LoadLabels(path string) (*Labels, error) {
	if path == "" {
		return &Labels{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading labels file: %w", err)
	}
	return ParseLabels(data)
}

func ParseLabels(data []byte) (*Labels, error) {
	var l Labels
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("error parsing labels file: %w", err)
	}
	return &l, nil
}

func (l *Labels) lookup(chainID, address string) Contract {
	if l == nil {
		return DEFAULT_CONTRACT
	}
	contract, ok := l.Contracts[chainID][strings.ToLower(address)]
	if !ok {
		return DEFAULT_CONTRACT
	}
	return contract
}

type Field struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

// Report is the JSON form of the validation document.
type Report struct {
	ChainID           string  `json:"chain_id"`
	VerifyingContract string  `json:"verifying_contract"`
	ContractName      string  `json:"contract_name"`
	DomainName        string  `json:"domain_name"`
	DomainVersion     string  `json:"domain_version"`
	PrimaryType       string  `json:"primary_type"`
	DomainHash        string  `json:"domain_hash"`
	MessageHash       string  `json:"message_hash"`
	Digest            string  `json:"digest"`
	Fields            []Field `json:"fields"`
}

func Build(td apitypes.TypedData, labels *Labels) (*Report, error) {
	h, err := typeddata.Hash(td)
	if err != nil {
		return nil, err
	}
	chainID := "0"
	if td.Domain.ChainId != nil {
		chainID = (*big.Int)(td.Domain.ChainId).String()
	}
	r := &Report{
		ChainID:           chainID,
		VerifyingContract: common.HexToAddress(td.Domain.VerifyingContract).Hex(),
		ContractName:      labels.lookup(chainID, td.Domain.VerifyingContract).Name,
		DomainName:        td.Domain.Name,
		DomainVersion:     td.Domain.Version,
		PrimaryType:       td.PrimaryType,
		DomainHash:        h.Domain.Hex(),
		MessageHash:       h.Message.Hex(),
		Digest:            h.Digest.Hex(),
	}
	for _, t := range td.Types[td.PrimaryType] {
		f := Field{Name: t.Name, Type: t.Type, Value: formatValue(t.Type, td.Message[t.Name])}
		if t.Type == "address" {
			f.Label = labels.lookup(chainID, f.Value).Name
		}
		r.Fields = append(r.Fields, f)
	}
	return r, nil
}

func formatValue(typ string, v interface{}) string {
	switch val := v.(type) {
	case *math.HexOrDecimal256:
		return (*big.Int)(val).String()
	case *big.Int:
		return val.String()
	case string:
		switch {
		case typ == "address":
			return common.HexToAddress(val).Hex()
		case strings.HasPrefix(typ, "uint"):
			if n, ok := math.ParseBig256(val); ok {
				return n.String()
			}
		}
		return val
	}
	return fmt.Sprint(v)
}

var starterTemplate = `# Validation

This document can be used to validate the typed data you are about to sign.

> [!NOTE]
>
> This document provides names for each address to add clarity to what you are seeing. These names will not be visible on your device. All that matters is that addresses and hashes match exactly what is presented in this document.

The steps are:

1. [Validate the Domain and Message Hashes](#expected-domain-and-message-hashes)
2. [Verify the message fields](#message-fields)

## Expected Domain and Message Hashes

> [!CAUTION]
>
> Before signing, ensure the below hashes match what is on your ledger.
>
<<MessageIdentifiers>>

## Message Fields

The ` + "`<<PrimaryType>>`" + ` message carries the following fields (and none others):

<<MessageFields>>
`

// Markdown renders the validation document.
func (r *Report) Markdown() []byte {
	var identifiers string
	identifiers += fmt.Sprintf("> ### %s: `%s`\n", r.ContractName, r.VerifyingContract)
	identifiers += ">\n"
	identifiers += fmt.Sprintf("> - Domain: `%s` version `%s` on chain `%s`\n", r.DomainName, r.DomainVersion, r.ChainID)
	identifiers += fmt.Sprintf("> - Domain Hash: `%s`\n", r.DomainHash)
	identifiers += fmt.Sprintf("> - Message Hash: `%s`\n", r.MessageHash)
	identifiers += fmt.Sprintf("> - Digest: `%s`", r.Digest)

	var fields string
	for i, f := range r.Fields {
		fields += fmt.Sprintf("%v. **%s** (`%s`): `%s`", i, f.Name, f.Type, f.Value)
		if f.Label != "" {
			fields += fmt.Sprintf(" <br/>\n   **Name**: %s", f.Label)
		}
		fields += "\n"
	}

	template := strings.Replace(starterTemplate, "<<MessageIdentifiers>>", identifiers, 1)
	template = strings.Replace(template, "<<PrimaryType>>", r.PrimaryType, 1)
	template = strings.Replace(template, "<<MessageFields>>", strings.TrimSuffix(fields, "\n"), 1)
	return []byte(template)
}
