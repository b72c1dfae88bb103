package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/base/badge-authorizer/internal/badgeid"
	"github.com/base/badge-authorizer/internal/dataset"
	"github.com/base/badge-authorizer/internal/encoding"
	"github.com/base/badge-authorizer/internal/logger"
	"github.com/base/badge-authorizer/internal/merkle"
	"github.com/base/badge-authorizer/internal/metrics"
)

type treeFlags struct {
	scheme          string
	sorted          bool
	allowDuplicates bool
}

func (f *treeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.scheme, "scheme", badgeid.SchemeLegacyPoint.String(), "Scheme deriving each record's token id from its badge name")
	cmd.Flags().BoolVar(&f.sorted, "sorted", false, "Sort leaves by hash, as OpenZeppelin's StandardMerkleTree.of does")
	cmd.Flags().BoolVar(&f.allowDuplicates, "allow-duplicates", false, "Keep records repeating an (address, token id) pair")
}

// loadTree builds a tree from a dataset, or loads it from a standard-v1 dump.
func (a *app) loadTree(path string, f treeFlags) (*merkle.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		return merkle.Load(trimmed)
	}

	records, err := dataset.Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	scheme, err := badgeid.ParseScheme(f.scheme)
	if err != nil {
		return nil, err
	}
	contract, err := a.cfg.ContractAddress()
	if err != nil {
		return nil, err
	}
	entries, err := dataset.Entries(records, badgeid.NewRegistry(contract), dataset.Options{
		Scheme:          scheme,
		AllowDuplicates: f.allowDuplicates,
	})
	if err != nil {
		return nil, err
	}
	if dups := merkle.Duplicates(entries); len(dups) > 0 {
		a.log.Warn("dataset repeats entries, only the first of each can be claimed", logger.WithField("count", len(dups)))
	}

	var opts []merkle.Option
	if f.sorted {
		opts = append(opts, merkle.WithSortedLeaves())
	}
	return merkle.New(entries, opts...)
}

type rootOutput struct {
	Root   common.Hash `json:"root"`
	Leaves int         `json:"leaves"`
}

func newMerkleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merkle",
		Short: "Build eligibility trees and their proofs",
	}

	var rootFlags treeFlags
	rootCmd := &cobra.Command{
		Use:   "root <dataset>",
		Short: "Print the root of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := a.loadTree(args[0], rootFlags)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rootOutput{Root: tree.Root(), Leaves: tree.Len()})
		},
	}
	rootFlags.register(rootCmd)

	var (
		proofFlags treeFlags
		proofTo    string
		proofName  string
		proofToken string
	)
	proofCmd := &cobra.Command{
		Use:   "proof <dataset>",
		Short: "Print the claim for an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer func() { a.metrics.IncProof(metrics.Outcome(err)) }()

			to, err := encoding.ParseAddress(proofTo)
			if err != nil {
				return err
			}
			tokenID, err := a.tokenID(proofToken, proofName, proofFlags.scheme)
			if err != nil {
				return err
			}
			tree, err := a.loadTree(args[0], proofFlags)
			if err != nil {
				return err
			}
			claim, err := tree.Claim(to, tokenID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), claim)
		},
	}
	proofFlags.register(proofCmd)
	proofCmd.Flags().StringVar(&proofTo, "to", "", "Claiming address")
	proofCmd.Flags().StringVar(&proofName, "name", "", "Badge name the token id is derived from")
	proofCmd.Flags().StringVar(&proofToken, "token-id", "", "Token id, instead of --name")
	_ = proofCmd.MarkFlagRequired("to")

	var verifyRoot string
	verifyCmd := &cobra.Command{
		Use:   "verify <claim>",
		Short: "Check a claim against a root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := parseHash(verifyRoot)
			if err != nil {
				return fmt.Errorf("root: %w", err)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("error reading claim: %w", err)
			}
			var claim merkle.Claim
			if err := json.Unmarshal(data, &claim); err != nil {
				return fmt.Errorf("error parsing claim: %w", err)
			}
			entry := merkle.Entry{Address: claim.To, TokenID: claim.TokenID, Amount: claim.Point}
			if !merkle.Verify(root, entry, claim.MerkleProof) {
				return fmt.Errorf("%w: %s", merkle.ErrVerificationMismatch, root.Hex())
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return err
		},
	}
	verifyCmd.Flags().StringVar(&verifyRoot, "root", "", "Root to verify against")
	_ = verifyCmd.MarkFlagRequired("root")

	var (
		dumpFlags treeFlags
		dumpOut   string
	)
	dumpCmd := &cobra.Command{
		Use:   "dump <dataset>",
		Short: "Write the tree in OpenZeppelin's standard-v1 format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := a.loadTree(args[0], dumpFlags)
			if err != nil {
				return err
			}
			data, err := tree.Dump()
			if err != nil {
				return err
			}
			return output(cmd, dumpOut, append(data, '\n'))
		},
	}
	dumpFlags.register(dumpCmd)
	dumpCmd.Flags().StringVarP(&dumpOut, "output", "o", "", "Output file path")

	var publishFlags treeFlags
	publishCmd := &cobra.Command{
		Use:   "publish <dataset>",
		Short: "Set the tree's root on the contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := a.loadTree(args[0], publishFlags)
			if err != nil {
				return err
			}
			p, release, err := a.publisher(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			receipt, err := p.SetMerkleRoot(cmd.Context(), tree.Root())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), publishOutput{
				Root:   tree.Root().Hex(),
				TxHash: receipt.TxHash,
				Block:  receipt.BlockNumber.String(),
			})
		},
	}
	publishFlags.register(publishCmd)

	cmd.AddCommand(rootCmd, proofCmd, verifyCmd, dumpCmd, publishCmd)
	return cmd
}

// tokenID parses an explicit id, or derives it from name under scheme.
func (a *app) tokenID(explicit, name, scheme string) (*uint256.Int, error) {
	if explicit != "" {
		return encoding.ParseUint256(explicit)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: one of --name or --token-id is required", badgeid.ErrInvalidInput)
	}
	s, err := badgeid.ParseScheme(scheme)
	if err != nil {
		return nil, err
	}
	contract, err := a.cfg.ContractAddress()
	if err != nil {
		return nil, err
	}
	return s.ID(contract, name)
}

func parseHash(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	b := common.FromHex(s)
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("expected %d bytes, got %q", common.HashLength, s)
	}
	return common.BytesToHash(b), nil
}
