package main

import (
	"fmt"

	"github.com/habiliai/agentmarket/jobs"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newJobsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run deferred and periodic jobs by hand",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "run-due",
			Short: "Run every deferred job that is due now",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := openMarketplace(cmd.Context(), flags)
				if err != nil {
					return err
				}
				defer m.Close()

				n, err := m.Queue().RunDue(cmd.Context())
				if err != nil {
					return err
				}

				_, err = fmt.Fprintf(cmd.OutOrStdout(), "ran %d job(s)\n", n)
				return err
			},
		},
		&cobra.Command{
			Use:   "run-task <name>",
			Short: "Run one periodic maintenance task immediately",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := openMarketplace(cmd.Context(), flags)
				if err != nil {
					return err
				}
				defer m.Close()

				if err := m.Scheduler().RunOnce(cmd.Context(), args[0]); err != nil {
					names := lo.Map(m.Scheduler().Tasks(), func(t jobs.Task, _ int) string { return t.Name })
					return errors.Wrapf(err, "known tasks: %v", names)
				}
				return nil
			},
		},
	)

	return cmd
}
