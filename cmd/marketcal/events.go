package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"marketcal/internal/calendar"
	"marketcal/internal/dashboard"
	"marketcal/internal/domain"
	"marketcal/internal/events"
	"marketcal/internal/export"
	"marketcal/internal/query"
)

type eventsOptions struct {
	search  string
	session string
	sort    string
	desc    bool
	page    int
	size    int
}

func (eo eventsOptions) state() (query.State, error) {
	s := query.NewState()
	session, err := query.ParseSessionFilter(eo.session)
	if err != nil {
		return s, err
	}
	s = s.SetSearch(eo.search).SetSession(session)
	if eo.sort != "" {
		key := query.SortKey(eo.sort)
		if !validSortKey(key) {
			return s, fmt.Errorf("unknown sort key %q", eo.sort)
		}
		s = s.ToggleSort(key)
		if eo.desc {
			s = s.ToggleSort(key)
		}
	}
	if s, err = s.SetPageSize(eo.size); err != nil {
		return s, err
	}
	return s.SetPage(eo.page), nil
}

func validSortKey(k query.SortKey) bool {
	for _, sk := range query.SortKeys {
		if sk == k {
			return true
		}
	}
	return false
}

func newEventsCmd(o *rootOptions) *cobra.Command {
	var eo eventsOptions
	cmd := &cobra.Command{
		Use:   "events [DATE]",
		Short: "Show the events of one day as a searchable, sortable table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDateArg(args, o.now())
			if err != nil {
				return err
			}
			qs, err := eo.state()
			if err != nil {
				return err
			}
			a, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			evs := load(cmd.Context(), cmd, a, []calendar.MonthKey{{Year: d.Year, Month: d.Month}})
			day := events.BuildIndex(evs).ForKey(d.Key())

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s, %s %d, %d\n", calendar.DayName(d.Weekday()), calendar.MonthName(d.Month), d.Day, d.Year)
			writeResult(w, query.Run(day, qs))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&eo.search, "search", "", "filter by ticker or company substring")
	f.StringVar(&eo.session, "session", "all", "reporting session: all, pre or post")
	f.StringVar(&eo.sort, "sort", "", "sort column: market_cap, eps_forecast, eps_actual, revenue_forecast, revenue_actual")
	f.BoolVar(&eo.desc, "desc", false, "sort descending")
	f.IntVar(&eo.page, "page", 1, "page number")
	f.IntVar(&eo.size, "size", query.DefaultPageSize, "page size: 6, 25, 50 or 100")
	return cmd
}

func writeResult(w io.Writer, res query.Result) {
	switch res.Empty {
	case query.NoEvents:
		fmt.Fprintln(w, "No events on this day.")
		return
	case query.NoMatches:
		fmt.Fprintln(w, "No events match the current filters.")
		return
	}
	t := newTable("Ticker", "Company", "Session", "Mkt Cap", "EPS Est", "EPS", "Rev Est", "Revenue")
	for _, ev := range res.Rows {
		t.Row(
			ev.Ticker,
			ev.DisplayName(),
			sessionLabel(ev),
			dashboard.FormatMarketCap(ev.MarketCap),
			dashboard.FormatEPS(ev.EPSForecast),
			dashboard.FormatEPS(ev.EPSActual),
			dashboard.FormatRevenue(ev.RevenueForecast),
			dashboard.FormatRevenue(ev.RevenueActual),
		)
	}
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "Showing %d-%d of %d (page %d/%d)\n", res.Start, res.End, res.Filtered, res.Page, res.PageCount)
}

func sessionLabel(ev domain.Event) string {
	if ev.Category != domain.CategoryEarnings {
		return string(ev.Category)
	}
	return ev.Session.String()
}

// ---------------------------------------------------------------------------
// export
// ---------------------------------------------------------------------------

func newExportCmd(o *rootOptions) *cobra.Command {
	var kind, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a month of events as CSV",
		Long:  "Write a month of events as CSV. The file is named after the kind and month unless --out is given; --out - writes to stdout.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			year, month, err := o.period()
			if err != nil {
				return err
			}
			k, err := export.ParseKind(kind)
			if err != nil {
				return err
			}
			a, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			evs := load(cmd.Context(), cmd, a, []calendar.MonthKey{{Year: year, Month: month}})
			if out == "-" {
				return export.Month(cmd.OutOrStdout(), k, evs, year, month)
			}

			path := out
			if path == "" {
				path = export.Filename(k.Domain(), year, month)
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("creating %s: %w", dir, err)
				}
			}
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := export.Month(f, k, evs, year, month); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "earnings", "column layout: earnings, events or economic")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path, or - for stdout")
	return cmd
}
