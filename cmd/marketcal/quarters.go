package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"marketcal/internal/dashboard"
)

func newQuartersCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "quarters TICKER",
		Short: "Show a ticker's previous quarters against estimates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Quarters == nil {
				return errors.New("no configured source provides quarter history")
			}

			h, err := a.Quarters.PreviousQuarters(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, h.Ticker)
			if len(h.Quarters) == 0 {
				fmt.Fprintln(w, "No reported quarters.")
				return nil
			}

			t := newTable("Quarter", "Reported", "EPS", "EPS Est", "Surprise", "Revenue", "Rev Est", "Surprise")
			for _, q := range h.Quarters {
				t.Row(
					q.Label,
					q.DisplayDate,
					dashboard.FormatEPS(q.EPSActual),
					dashboard.FormatEPS(q.EPSEstimated),
					surprise(q.EPSChange, q.EPSBeat),
					dashboard.FormatRevenue(q.RevenueActual),
					dashboard.FormatRevenue(q.RevenueEstimated),
					surprise(q.RevenueChange, q.RevenueBeat),
				)
			}
			fmt.Fprintln(w, t.Render())
			if g, ok := h.RevenueGrowth(); ok {
				fmt.Fprintf(w, "Revenue growth, last quarter: %s\n", dashboard.FormatSurprise(g))
			}
			return nil
		},
	}
}

func surprise(pct float64, beat bool) string {
	s := dashboard.FormatSurprise(pct)
	if beat {
		s += " beat"
	}
	return s
}
