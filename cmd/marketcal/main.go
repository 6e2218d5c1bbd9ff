// Command marketcal prints the market calendar from the terminal: month
// grids, week agendas, per-day event tables and CSV exports.
//
// Usage:
//
//	marketcal grid --year 2025 --month 1
//	marketcal events 2025-01-08 --session post --sort market_cap
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"marketcal/internal/app"
	"marketcal/internal/calendar"
	"marketcal/internal/config"
	"marketcal/internal/domain"
	"marketcal/internal/source"
	"marketcal/internal/util"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd(time.Now).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	year       int
	month      int
	verbose    bool

	now func() time.Time
}

func newRootCmd(now func() time.Time) *cobra.Command {
	o := &rootOptions{now: now}

	root := &cobra.Command{
		Use:           "marketcal",
		Short:         "Market calendar of earnings, holidays and economic events",
		Long:          "Browse earnings releases, market holidays and economic indicators by month and week.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("marketcal {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "config file (default $"+config.EnvPath+")")
	pf.IntVar(&o.year, "year", 0, "year to show (default current)")
	pf.IntVar(&o.month, "month", 0, "month to show, 1-12 (default current)")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newGridCmd(o),
		newWeekCmd(o),
		newWaveCmd(o),
		newEventsCmd(o),
		newExportCmd(o),
		newQuartersCmd(o),
		newCacheCmd(o),
		newPrefetchCmd(o),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of marketcal",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "marketcal %s\n", version)
		},
	}
}

// open loads the configuration and assembles the event pipeline. Logs go to
// stderr so command output stays clean.
func (o *rootOptions) open(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	logger := util.NewLoggerTo(cmd.ErrOrStderr(), level, "text")
	return app.New(cfg, logger)
}

// period returns the --year/--month flags, defaulting each to the current
// month.
func (o *rootOptions) period() (int, int, error) {
	today := calendar.FromTime(o.now())
	year, month := o.year, o.month
	if year == 0 {
		year = today.Year
	}
	if month == 0 {
		month = today.Month
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("--month %d: must be between 1 and 12", month)
	}
	return year, month, nil
}

// load fetches months through the pipeline, warning about months that could
// not be loaded.
func load(ctx context.Context, cmd *cobra.Command, a *app.App, months []calendar.MonthKey) []domain.Event {
	res := a.Loader().Load(ctx, months)
	if len(res.Failed) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not load %s\n", source.PeriodKey(res.Failed))
	}
	if len(res.Incomplete) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s may be missing events\n", source.PeriodKey(res.Incomplete))
	}
	return res.Events
}

func parseDateArg(args []string, now time.Time) (calendar.Date, error) {
	if len(args) == 0 {
		return calendar.FromTime(now), nil
	}
	d, err := calendar.ParseDateKey(args[0])
	if err != nil {
		return calendar.Date{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", args[0])
	}
	return d, nil
}
