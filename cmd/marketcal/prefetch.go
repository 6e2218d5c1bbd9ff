package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"marketcal/internal/refresh"
)

func newPrefetchCmd(o *rootOptions) *cobra.Command {
	var ahead int
	cmd := &cobra.Command{
		Use:   "prefetch",
		Short: "Refresh the cache for the current and upcoming months",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("months") {
				ahead = a.Config.Refresh.MonthsAhead
			}
			s := refresh.New(a.Source, ahead, a.Logger)
			months := s.Months()
			if err := s.RunOnce(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refreshed %d months from %s\n", len(months), months[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&ahead, "months", 0, "months ahead of the current one (default from config)")
	return cmd
}
