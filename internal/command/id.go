package command

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/base/badge-authorizer/internal/badgeid"
	"github.com/base/badge-authorizer/internal/typeddata"
)

type idOutput struct {
	Contract common.Address    `json:"contract"`
	Name     string            `json:"name"`
	NameHash common.Hash       `json:"nameHash"`
	IDs      map[string]string `json:"ids"`
}

func newIDCmd(a *app) *cobra.Command {
	var schemes []string
	cmd := &cobra.Command{
		Use:   "id <badge-name>",
		Short: "Derive the identifiers of a badge name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contract, err := a.cfg.ContractAddress()
			if err != nil {
				return err
			}
			reg := badgeid.NewRegistry(contract)
			out := idOutput{
				Contract: contract,
				Name:     args[0],
				NameHash: badgeid.NameHash(args[0]),
				IDs:      make(map[string]string, len(schemes)),
			}
			for _, name := range schemes {
				s, err := badgeid.ParseScheme(name)
				if err != nil {
					return err
				}
				id, err := reg.Register(s, args[0])
				if err != nil {
					return err
				}
				out.IDs[s.String()] = common.Hash(id.Bytes32()).Hex()
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringSliceVar(&schemes, "scheme", []string{"legacy-point", "point", "badge"}, "Derivation schemes to print")
	return cmd
}

type domainOutput struct {
	Name              string         `json:"name"`
	Version           string         `json:"version"`
	ChainID           string         `json:"chainId"`
	VerifyingContract common.Address `json:"verifyingContract"`
	Separator         common.Hash    `json:"separator"`
}

func newDomainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "domain",
		Short: "Read the EIP-712 domain of the contract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			contract, err := a.cfg.ContractAddress()
			if err != nil {
				return err
			}
			backend, release, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			d, err := a.reader(backend, contract).Domain(cmd.Context())
			if err != nil {
				return err
			}
			return writeDomain(cmd, d)
		},
	}
}

func writeDomain(cmd *cobra.Command, d typeddata.Domain) error {
	sep, err := d.Separator()
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), domainOutput{
		Name:              d.Name,
		Version:           d.Version,
		ChainID:           d.ChainID.String(),
		VerifyingContract: d.VerifyingContract,
		Separator:         sep,
	})
}
