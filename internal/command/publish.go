package command

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/base/badge-authorizer/internal/badgeid"
	"github.com/base/badge-authorizer/internal/dataset"
	"github.com/base/badge-authorizer/internal/encoding"
	"github.com/base/badge-authorizer/internal/mint"
	"github.com/base/badge-authorizer/internal/transaction"
)

type publishOutput struct {
	Root   string      `json:"root,omitempty"`
	TxHash common.Hash `json:"txHash"`
	Block  string      `json:"block"`
}

// publisher connects to the contract with a signer that can sign transactions.
func (a *app) publisher(ctx context.Context) (*transaction.Publisher, func(), error) {
	contract, err := a.cfg.ContractAddress()
	if err != nil {
		return nil, nil, err
	}
	s, err := a.signer(ctx)
	if err != nil {
		return nil, nil, err
	}
	txSigner, ok := s.(transaction.TxSigner)
	if !ok {
		return nil, nil, fmt.Errorf("%s signer cannot sign transactions", s.Kind())
	}
	backend, release, err := a.connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	params := transaction.DefaultParams()
	if a.cfg.ConfirmTimeout > 0 {
		params.ConfirmationTimeout = a.cfg.ConfirmTimeout
	}
	return transaction.NewPublisher(backend, txSigner, contract, params, a.log, a.metrics), release, nil
}

func newBadgesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "badges",
		Short: "Manage the badges the contract accepts",
	}

	var scheme string
	publishCmd := &cobra.Command{
		Use:   "publish <badges>",
		Short: "Register badges and the points each requires",
		Long: `With the legacy-point scheme badges are registered by name through setBadges.
With the badge scheme their category-tagged ids are registered through
setEligiblePointBadges.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := badgeid.ParseScheme(scheme)
			if err != nil {
				return err
			}
			if s == badgeid.SchemePoint {
				return fmt.Errorf("%w: badges are published under the legacy-point or badge scheme", badgeid.ErrInvalidInput)
			}
			badges, err := dataset.LoadBadges(args[0])
			if err != nil {
				return err
			}
			contract, err := a.cfg.ContractAddress()
			if err != nil {
				return err
			}

			// derive every id before sending so collisions abort the publish
			reg := badgeid.NewRegistry(contract)
			names := make([]string, len(badges))
			ids := make([]*uint256.Int, len(badges))
			points := make([]*uint256.Int, len(badges))
			for i, b := range badges {
				id, err := reg.Register(s, b.BadgeName)
				if err != nil {
					return err
				}
				names[i] = b.BadgeName
				ids[i] = id
				points[i] = uint256.NewInt(b.Points)
			}

			p, release, err := a.publisher(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			if s == badgeid.SchemeLegacyPoint {
				receipt, err := p.SetBadges(cmd.Context(), names, points)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), publishOutput{TxHash: receipt.TxHash, Block: receipt.BlockNumber.String()})
			}
			receipt, err := p.SetEligiblePointBadges(cmd.Context(), ids, points)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), publishOutput{TxHash: receipt.TxHash, Block: receipt.BlockNumber.String()})
		},
	}
	publishCmd.Flags().StringVar(&scheme, "scheme", badgeid.SchemeBadge.String(), "legacy-point (V2) or badge (V2.2)")

	cmd.AddCommand(publishCmd)
	return cmd
}

func newRedeemCmd(a *app) *cobra.Command {
	var to, name string
	cmd := &cobra.Command{
		Use:   "redeem",
		Short: "Print the mintBadge argument that redeems points for a badge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recipient, err := encoding.ParseAddress(to)
			if err != nil {
				return err
			}
			contract, err := a.cfg.ContractAddress()
			if err != nil {
				return err
			}
			r, err := mint.Redeem(badgeid.NewRegistry(contract), recipient, name)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), r)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Recipient address")
	cmd.Flags().StringVar(&name, "name", "", "Badge name")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
