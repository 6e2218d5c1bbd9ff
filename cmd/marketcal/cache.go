package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"marketcal/internal/dashboard"
)

func newCacheCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cache [TICKER]",
		Short: "List cached months, or every cached event of TICKER",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			w := cmd.OutOrStdout()

			if len(args) == 0 {
				months, err := a.Cache.ListMonths(cmd.Context())
				if err != nil {
					return err
				}
				if len(months) == 0 {
					fmt.Fprintln(w, "Cache is empty.")
					return nil
				}
				t := newTable("Month", "Fetched")
				for _, m := range months {
					at, err := a.Cache.FetchedAt(cmd.Context(), m)
					if err != nil {
						return err
					}
					t.Row(m.String(), at.Local().Format("2006-01-02 15:04"))
				}
				fmt.Fprintln(w, t.Render())
				return nil
			}

			ticker := strings.ToUpper(args[0])
			evs, err := a.Cache.EventsForTicker(cmd.Context(), ticker)
			if err != nil {
				return err
			}
			if len(evs) == 0 {
				fmt.Fprintf(w, "No cached events for %s.\n", ticker)
				return nil
			}
			t := newTable("Date", "Category", "Session", "Mkt Cap", "EPS Est", "EPS")
			for _, ev := range evs {
				t.Row(ev.Date, string(ev.Category), sessionLabel(ev),
					dashboard.FormatMarketCap(ev.MarketCap),
					dashboard.FormatEPS(ev.EPSForecast),
					dashboard.FormatEPS(ev.EPSActual))
			}
			fmt.Fprintln(w, t.Render())
			return nil
		},
	}
}
