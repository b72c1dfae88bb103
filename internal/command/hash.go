package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/spf13/cobra"

	"github.com/base/badge-authorizer/internal/report"
)

// preimageLength is 0x1901 || domainSeparator || structHash.
const preimageLength = 66

func newHashCmd(a *app) *cobra.Command {
	var (
		prefix  string
		suffix  string
		outFile string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "hash [file]",
		Short: "Print the hashes a hardware wallet shows for a typed data payload",
		Long: `Reads a file, or stdin when no file is given.

A JSON typed data payload is rendered as a validation report. Anything else is
searched for a hex EIP-712 pre-image between --prefix and --suffix, and its
domain and message hashes are printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			if trimmed := bytes.TrimSpace(input); len(trimmed) > 0 && trimmed[0] == '{' {
				var td apitypes.TypedData
				if err := json.Unmarshal(trimmed, &td); err != nil {
					return fmt.Errorf("error parsing typed data: %w", err)
				}
				labels, err := report.LoadLabels(a.cfg.LabelsFile)
				if err != nil {
					return err
				}
				r, err := report.Build(td, labels)
				if err != nil {
					return err
				}
				if asJSON {
					data, err := json.MarshalIndent(r, "", "  ")
					if err != nil {
						return err
					}
					return output(cmd, outFile, append(data, '\n'))
				}
				return output(cmd, outFile, r.Markdown())
			}

			domainHash, messageHash, err := splitPreimage(input, prefix, suffix)
			if err != nil {
				return err
			}
			digest := crypto.Keccak256Hash([]byte{0x19, 0x01}, domainHash[:], messageHash[:])
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Domain hash: %s\n", domainHash.Hex())
			fmt.Fprintf(out, "Message hash: %s\n", messageHash.Hex())
			fmt.Fprintf(out, "Digest: %s\n", digest.Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "vvvvvvvv", "String that prefixes the data to be signed")
	cmd.Flags().StringVar(&suffix, "suffix", "^^^^^^^^", "String that suffixes the data to be signed")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "Output file path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write the report as JSON instead of markdown")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 {
		input, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("error reading from stdin: %w", err)
		}
		return input, nil
	}
	input, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}
	return input, nil
}

// splitPreimage cuts the hex pre-image out of input and returns its two hashes.
func splitPreimage(input []byte, prefix, suffix string) (common.Hash, common.Hash, error) {
	s := string(input)
	if index := strings.Index(s, prefix); prefix != "" && index >= 0 {
		s = s[index+len(prefix):]
	}
	if index := strings.Index(s, suffix); suffix != "" && index >= 0 {
		s = s[:index]
	}

	s = strings.TrimSpace(s)
	hash := common.FromHex(s)
	if len(hash) != preimageLength {
		return common.Hash{}, common.Hash{}, fmt.Errorf("expected EIP-712 hex string with %d bytes, got %d bytes, value: %s", preimageLength, len(hash), s)
	}
	if hash[0] != 0x19 || hash[1] != 0x01 {
		return common.Hash{}, common.Hash{}, fmt.Errorf("expected EIP-712 pre-image to start with 0x1901, got 0x%x", hash[:2])
	}
	return common.BytesToHash(hash[2:34]), common.BytesToHash(hash[34:66]), nil
}
