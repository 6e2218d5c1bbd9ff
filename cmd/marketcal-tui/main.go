package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"marketcal/internal/app"
	"marketcal/internal/calendar"
	"marketcal/internal/config"
	"marketcal/internal/tui"
	"marketcal/internal/util"
)

func main() {
	cfgPath := flag.String("config", "", "config file (default $"+config.EnvPath+")")
	view := flag.String("view", "", "initial view: week or month (default from config)")
	exportDir := flag.String("export-dir", ".", "directory CSV exports are written to")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	// The screen belongs to the UI; logs go to a file.
	logPath := fmt.Sprintf("/tmp/marketcal-tui-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := util.NewLoggerTo(logFile, cfg.Logging.Level, "text")

	mode := cfg.Calendar.DefaultView
	if *view != "" {
		mode = *view
	}
	vm, err := calendar.ParseViewMode(mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building event pipeline: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := tui.New(ctx, a.Loader(), tui.Options{
		View:         vm,
		PageSize:     cfg.Calendar.PageSize,
		VariableGrid: cfg.Calendar.MonthGrid == "variable",
		ExportDir:    *exportDir,
	}, logger)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
