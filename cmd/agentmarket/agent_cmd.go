package main

import (
	"fmt"

	"github.com/habiliai/agentmarket/agent"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newAgentCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents",
	}

	cmd.AddCommand(
		newAgentCreateCmd(flags),
		newAgentListCmd(flags),
	)

	return cmd
}

func newAgentCreateCmd(flags *rootFlags) *cobra.Command {
	var (
		owner string
		req   agent.CreateAgentRequest
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "List a new agent on the marketplace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMarketplace(cmd.Context(), flags, quiet)
			if err != nil {
				return err
			}
			defer m.Close()

			req.Name = args[0]
			created, err := m.Agents().CreateAgent(cmd.Context(), owner, req)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), created)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&owner, "user", "u", "", "owner user id")
	f.StringVar(&req.Description, "description", "", "agent description")
	f.StringVar(&req.Category, "category", "", "agent category")
	f.StringVar(&req.WalletAddress, "wallet", "", "wallet address")
	f.Float64Var(&req.PricePerHour, "price", 0, "price per hour")
	f.StringSliceVar(&req.Capabilities, "capability", nil, "agent capability (repeatable)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newAgentListCmd(flags *rootFlags) *cobra.Command {
	var query agent.MarketplaceQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active marketplace agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMarketplace(cmd.Context(), flags, quiet)
			if err != nil {
				return err
			}
			defer m.Close()

			agents, err := m.Agents().GetMarketplaceAgents(cmd.Context(), query)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"ID", "Name", "Category", "Owner", "Price/h", "Earnings", "Uptime"})
			for _, a := range agents {
				table.Append([]string{
					a.ID,
					a.Name,
					a.Category,
					a.OwnerUserID,
					fmt.Sprintf("%.2f", a.PricePerHour),
					a.TotalEarnings.StringFixed(2),
					fmt.Sprintf("%.1f%%", a.Uptime),
				})
			}
			table.Render()

			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&query.Category, "category", "", "only agents in this category")
	f.StringVar(&query.SortBy, "sort", "", "sort by price, reputation or earnings")
	f.IntVar(&query.Limit, "limit", agent.DefaultListLimit, "maximum number of agents")

	return cmd
}
