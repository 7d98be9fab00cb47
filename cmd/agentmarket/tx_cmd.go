package main

import (
	"github.com/habiliai/agentmarket/entity"
	"github.com/habiliai/agentmarket/ledger"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newTxCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Manage transactions",
	}

	cmd.AddCommand(newTxSendCmd(flags))

	return cmd
}

func newTxSendCmd(flags *rootFlags) *cobra.Command {
	var (
		caller      string
		token       string
		description string
		duration    float64
	)
	cmd := &cobra.Command{
		Use:   "send <from-agent-id> <to-agent-id> <amount>",
		Short: "Pay another agent; the transfer confirms asynchronously",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[2])
			if err != nil {
				return errors.Wrapf(err, "invalid amount %q", args[2])
			}

			m, err := openMarketplace(cmd.Context(), flags, quiet)
			if err != nil {
				return err
			}
			defer m.Close()

			req := ledger.CreateTransactionRequest{
				FromAgentID:        args[0],
				ToAgentID:          args[1],
				Amount:             amount,
				Token:              entity.Token(token),
				ServiceDescription: description,
			}
			if cmd.Flags().Changed("duration") {
				req.Duration = &duration
			}

			created, err := m.Ledger().CreateTransaction(cmd.Context(), caller, req)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), created)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&caller, "user", "u", "", "user id owning the source agent")
	f.StringVar(&token, "token", string(entity.TokenUSDC), "USDC or DAI")
	f.StringVar(&description, "description", "", "service description")
	f.Float64Var(&duration, "duration", 0, "service duration in hours")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
