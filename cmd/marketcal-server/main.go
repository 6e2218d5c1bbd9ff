package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"marketcal/internal/api"
	"marketcal/internal/app"
	"marketcal/internal/config"
	"marketcal/internal/refresh"
	"marketcal/internal/util"
)

func main() {
	cfgPath := flag.String("config", "", "config file (default $"+config.EnvPath+")")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	a, err := app.New(cfg, logger)
	if err != nil {
		log.Fatalf("building event pipeline: %v", err)
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Refresh.Enabled {
		s := refresh.New(a.Source, cfg.Refresh.MonthsAhead, logger)
		go func() {
			if err := s.RunOnce(ctx); err != nil {
				logger.Warn("initial prefetch incomplete", "error", err)
			}
		}()
		if err := s.Start(ctx, cfg.Refresh.Schedule); err != nil {
			log.Fatalf("starting refresh: %v", err)
		}
		logger.Info("next refresh", "at", s.Next())
	}

	srv := api.NewServer(cfg, a.Handler(), logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		return
	}
	logger.Info("server stopped")
}
