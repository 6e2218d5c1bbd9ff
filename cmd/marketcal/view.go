package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"marketcal/internal/calendar"
	"marketcal/internal/dashboard"
	"marketcal/internal/domain"
	"marketcal/internal/events"
)

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(_, _ int) lipgloss.Style { return cellStyle }).
		Headers(headers...)
}

// ---------------------------------------------------------------------------
// grid
// ---------------------------------------------------------------------------

func newGridCmd(o *rootOptions) *cobra.Command {
	var variable bool
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Show a month grid with per-day event counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			year, month, err := o.period()
			if err != nil {
				return err
			}
			a, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			evs := load(cmd.Context(), cmd, a, []calendar.MonthKey{{Year: year, Month: month}})
			now := o.now()
			st := calendar.Goto(calendar.NewState(calendar.ViewMonth, now), calendar.NewDate(year, month, 1)).State
			st.VariableGrid = variable || a.Config.Calendar.MonthGrid == "variable"
			grid := st.Grid(now)

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %d\n", calendar.MonthName(month), year)
			writeGrid(w, events.Attach(grid, events.BuildIndex(evs)))
			writeSummary(w, evs, year, month)
			return nil
		},
	}
	cmd.Flags().BoolVar(&variable, "variable", false, "show only the weeks the month touches")
	return cmd
}

// writeGrid renders each cell as its day number, the event count and a "!"
// when a high-impact event falls on it. Days outside the month are
// bracketed.
func writeGrid(w io.Writer, rows [][]events.DayEvents) {
	headers := make([]string, calendar.DaysPerWeek)
	for wd := range headers {
		headers[wd] = calendar.ShortDayName(wd)
	}
	t := newTable(headers...)
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, day := range row {
			cells[i] = gridCell(day)
		}
		t.Row(cells...)
	}
	fmt.Fprintln(w, t.Render())
}

func gridCell(day events.DayEvents) string {
	label := fmt.Sprintf("%2d", day.Day)
	if !day.IsCurrentMonth {
		label = "(" + label + ")"
	}
	if day.IsToday {
		label += "*"
	}
	if len(day.Events) == 0 {
		return label
	}
	label += fmt.Sprintf(" %d", len(day.Events))
	for _, ev := range day.Events {
		if ev.Impact == domain.ImpactHigh {
			return label + "!"
		}
	}
	return label
}

func writeSummary(w io.Writer, evs []domain.Event, year, month int) {
	st := events.Statistics(evs, year, month)
	fmt.Fprintf(w, "%s events, %s earnings, %d high impact\n",
		dashboard.FormatInt(st.Total), dashboard.FormatInt(st.Earnings), st.HighImpact)
	fmt.Fprintf(w, "Earnings wave: %s\n", events.WaveLabel(evs, year, month))
}

// ---------------------------------------------------------------------------
// week
// ---------------------------------------------------------------------------

func newWeekCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "week [DATE]",
		Short: "List the events of the week containing DATE (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := o.now()
			d, err := parseDateArg(args, now)
			if err != nil {
				return err
			}
			a, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			st := calendar.Goto(calendar.NewState(calendar.ViewWeek, now), d).State
			evs := load(cmd.Context(), cmd, a, st.Months())

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s  %d events\n", st.Label(), len(events.ForWeek(evs, st.WeekStart)))
			idx := events.BuildIndex(evs)
			for _, day := range events.AttachRow(calendar.WeekGrid(st.WeekStart, now), idx) {
				writeAgendaDay(w, day)
			}
			return nil
		},
	}
}

func writeAgendaDay(w io.Writer, day events.DayEvents) {
	d := day.Date()
	fmt.Fprintf(w, "\n%s %s", calendar.ShortDayName(d.Weekday()), d.ShortLabel())
	if day.IsToday {
		fmt.Fprint(w, " (today)")
	}
	if len(day.Events) == 0 {
		fmt.Fprintln(w, "  no events")
		return
	}
	fmt.Fprintf(w, "  %d events\n", len(day.Events))
	for _, ev := range events.SortByMarketCapDesc(day.Events) {
		fmt.Fprintf(w, "  %-6s %-32s %s\n", ev.Ticker, ev.DisplayName(), agendaDetail(ev))
	}
}

func agendaDetail(ev domain.Event) string {
	switch ev.Category {
	case domain.CategoryEarnings:
		return ev.Session.String() + " " + dashboard.FormatMarketCap(ev.MarketCap)
	case domain.CategoryHoliday:
		if ev.Closed {
			return "market closed"
		}
		return "holiday"
	case domain.CategoryEconomic:
		parts := []string{string(ev.Impact)}
		if ev.Time != "" {
			parts = append(parts, ev.Time)
		}
		if ev.Country != "" {
			parts = append(parts, ev.Country)
		}
		parts = append(parts,
			"actual "+dashboard.FormatIndicator(ev.Actual, ev.Unit),
			"forecast "+dashboard.FormatIndicator(ev.Forecast, ev.Unit))
		return strings.Join(parts, " ")
	}
	return string(ev.Category)
}

// ---------------------------------------------------------------------------
// wave
// ---------------------------------------------------------------------------

func newWaveCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "wave",
		Short: "Show the earnings wave and statistics of a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			year, month, err := o.period()
			if err != nil {
				return err
			}
			a, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			evs := load(cmd.Context(), cmd, a, []calendar.MonthKey{{Year: year, Month: month}})
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %d\n", calendar.MonthName(month), year)

			wave, ok := events.DetectWave(evs, year, month)
			if !ok {
				fmt.Fprintln(w, events.NoActivity)
			} else {
				fmt.Fprintf(w, "Earnings wave: %s (%d days)\n", wave.Label(), wave.Days())
			}

			st := events.Statistics(evs, year, month)
			t := newTable("Total", "Earnings", "High", "Medium", "Low", "Active days")
			t.Row(
				dashboard.FormatInt(st.Total),
				dashboard.FormatInt(st.Earnings),
				dashboard.FormatInt(st.ByImpact[domain.ImpactHigh]),
				dashboard.FormatInt(st.ByImpact[domain.ImpactMedium]),
				dashboard.FormatInt(st.ByImpact[domain.ImpactLow]),
				dashboard.FormatInt(st.ActiveDays),
			)
			fmt.Fprintln(w, t.Render())

			ov := events.SplitOverview(evs, year, month, o.now())
			if ov.FocusDate != "" && len(ov.Focus) > 0 {
				tickers := make([]string, 0, len(ov.Focus))
				for _, ev := range ov.Focus {
					tickers = append(tickers, ev.DisplayName())
				}
				fmt.Fprintf(w, "Focus %s: %s\n", ov.FocusDate, strings.Join(tickers, ", "))
			}
			return nil
		},
	}
}
