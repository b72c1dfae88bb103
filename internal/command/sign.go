package command

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/base/badge-authorizer/internal/badgeid"
	"github.com/base/badge-authorizer/internal/encoding"
	"github.com/base/badge-authorizer/internal/mint"
	"github.com/base/badge-authorizer/internal/report"
)

type signFlags struct {
	to           string
	name         string
	amount       string
	timeout      time.Duration
	reportFile   string
	checkOnChain bool
}

func (f *signFlags) register(cmd *cobra.Command, withAmount bool) {
	cmd.Flags().StringVar(&f.to, "to", "", "Recipient address")
	cmd.Flags().StringVar(&f.name, "name", "", "Badge name")
	cmd.Flags().DurationVar(&f.timeout, "timeout", time.Minute, "Give up after this long, including time spent waiting on a hardware wallet")
	cmd.Flags().StringVar(&f.reportFile, "report", "", "Also write a markdown validation report of the signed payload to this file")
	if withAmount {
		cmd.Flags().StringVar(&f.amount, "amount", "", "Points to mint")
	}
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("name")
}

func newSignCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a mint authorization",
	}

	var badge signFlags
	var badgeID, admin string
	badgeCmd := &cobra.Command{
		Use:   mint.VariantBadgeV1,
		Short: "Authorize a V1 badge mint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			to, err := encoding.ParseAddress(badge.to)
			if err != nil {
				return err
			}
			adminWallet, err := encoding.ParseAddress(admin)
			if err != nil {
				return fmt.Errorf("admin: %w", err)
			}
			id, err := encoding.ParseUint256(badgeID)
			if err != nil {
				return fmt.Errorf("badge id: %w", err)
			}
			return a.sign(cmd, badge, func(ctx context.Context, auth *mint.Authorizer) (interface{}, apitypes.TypedData, error) {
				out, err := auth.BadgeV1(ctx, mint.BadgeV1Request{AdminWallet: adminWallet, To: to, BadgeID: id, BadgeName: badge.name})
				if err != nil {
					return nil, apitypes.TypedData{}, err
				}
				return out, out.TypedData, nil
			})
		},
	}
	badge.register(badgeCmd, false)
	badgeCmd.Flags().StringVar(&badgeID, "badge-id", "", "Badge id")
	badgeCmd.Flags().StringVar(&admin, "admin", "", "Admin wallet named in the authorization")
	_ = badgeCmd.MarkFlagRequired("badge-id")
	_ = badgeCmd.MarkFlagRequired("admin")

	var legacy signFlags
	var badgeType uint8
	legacyCmd := &cobra.Command{
		Use:   mint.VariantPointV2,
		Short: "Authorize a V2 point mint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			to, amount, err := legacy.recipient()
			if err != nil {
				return err
			}
			return a.sign(cmd, legacy, func(ctx context.Context, auth *mint.Authorizer) (interface{}, apitypes.TypedData, error) {
				out, err := auth.PointV2(ctx, mint.PointV2Request{To: to, BadgeName: legacy.name, BadgeType: badgeType, Amount: amount})
				if err != nil {
					return nil, apitypes.TypedData{}, err
				}
				return out, out.TypedData, nil
			})
		},
	}
	legacy.register(legacyCmd, true)
	legacyCmd.Flags().Uint8Var(&badgeType, "badge-type", 0, "Badge type passed alongside the authorization")
	legacyCmd.Flags().BoolVar(&legacy.checkOnChain, "check-onchain", false, "Compare the derived token id with the contract's getPointId")

	var point signFlags
	pointCmd := &cobra.Command{
		Use:   mint.VariantPointV22,
		Short: "Authorize a V2.2 point mint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			to, amount, err := point.recipient()
			if err != nil {
				return err
			}
			return a.sign(cmd, point, func(ctx context.Context, auth *mint.Authorizer) (interface{}, apitypes.TypedData, error) {
				out, err := auth.PointV22(ctx, mint.PointV22Request{To: to, BadgeName: point.name, Amount: amount})
				if err != nil {
					return nil, apitypes.TypedData{}, err
				}
				return out, out.TypedData, nil
			})
		},
	}
	point.register(pointCmd, true)

	cmd.AddCommand(badgeCmd, legacyCmd, pointCmd)
	return cmd
}

func (f signFlags) recipient() (common.Address, *uint256.Int, error) {
	to, err := encoding.ParseAddress(f.to)
	if err != nil {
		return common.Address{}, nil, err
	}
	if f.amount == "" {
		return common.Address{}, nil, fmt.Errorf("%w: amount is required", badgeid.ErrInvalidInput)
	}
	amount, err := encoding.ParseUint256(f.amount)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("amount: %w", err)
	}
	return to, amount, nil
}

type signFunc func(ctx context.Context, auth *mint.Authorizer) (interface{}, apitypes.TypedData, error)

// sign connects to the contract, builds an Authorizer with the configured signer and runs fn.
func (a *app) sign(cmd *cobra.Command, f signFlags, fn signFunc) error {
	ctx := cmd.Context()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	contract, err := a.cfg.ContractAddress()
	if err != nil {
		return err
	}
	s, err := a.signer(ctx)
	if err != nil {
		return err
	}
	backend, release, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer release()

	opts := []mint.Option{
		mint.WithRetry(a.cfg.Retry.Attempts, a.cfg.Retry.Interval),
		mint.WithMetrics(a.metrics),
	}
	if f.checkOnChain {
		opts = append(opts, mint.WithOnChainCheck())
	}
	auth := mint.NewAuthorizer(a.reader(backend, contract), s, a.log, opts...)

	out, td, err := fn(ctx, auth)
	if err != nil {
		return err
	}
	if f.reportFile != "" {
		labels, err := report.LoadLabels(a.cfg.LabelsFile)
		if err != nil {
			return err
		}
		r, err := report.Build(td, labels)
		if err != nil {
			return err
		}
		if err := output(cmd, f.reportFile, r.Markdown()); err != nil {
			return err
		}
	}
	return writeJSON(cmd.OutOrStdout(), out)
}
