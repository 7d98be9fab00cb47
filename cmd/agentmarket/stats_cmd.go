package main

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print network statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMarketplace(cmd.Context(), flags, quiet)
			if err != nil {
				return err
			}
			defer m.Close()

			stats, err := m.Analytics().GetNetworkStats(cmd.Context())
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Metric", "Value"})
			table.AppendBulk([][]string{
				{"Agents", fmt.Sprint(stats.TotalAgents)},
				{"Active agents", fmt.Sprint(stats.ActiveAgents)},
				{"Total volume", stats.TotalVolume.StringFixed(2)},
				{"24h volume", stats.Volume24h.StringFixed(2)},
				{"Average uptime", fmt.Sprintf("%.2f%%", stats.AverageUptime)},
				{"Transactions", fmt.Sprint(stats.TotalTransactions)},
				{"24h transactions", fmt.Sprint(stats.Transactions24h)},
				{"Health", string(stats.NetworkHealth)},
			})
			table.Render()

			return nil
		},
	}
}
