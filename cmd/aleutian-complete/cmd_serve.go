// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianComplete/services/completions/api"
	"github.com/AleutianAI/AleutianComplete/services/completions/config"
	"github.com/AleutianAI/AleutianComplete/services/completions/manager"
	"github.com/AleutianAI/AleutianComplete/services/completions/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var apiAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the completion host until interrupted",
		Long: `serve starts one language client per configured language plus the
snippet and buffer-token providers, the workspace watcher and the status
API. SIGHUP reloads the config file; the change is applied after the
configured debounce.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			if apiAddr != "" {
				cfg.API.Enabled = true
				cfg.API.Addr = apiAddr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&apiAddr, "api-addr", "", "status API address, enables the API")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.FromConfig("aleutian-complete", version, cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	m := manager.New(manager.Options{Config: cfg, Logger: logger.Slog()})
	if err := m.Start(ctx); err != nil {
		return err
	}
	logger.Info("completion host running", "workspace", cfg.Workspace, "providers", len(m.Providers()))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.API.Enabled {
		srv := api.NewServer(api.Options{
			Backend: m,
			Addr:    cfg.API.Addr,
			Version: version,
			Tracing: cfg.Telemetry.Enabled,
			Logger:  logger.Slog(),
		})
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error {
		reloadOnHangup(gctx, m, resolvedConfigPath(), logger.Slog())
		return nil
	})
	runErr := g.Wait()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := m.Shutdown(sctx); err != nil {
		logger.Warn("manager shutdown", "error", err)
	}
	logger.Info("completion host stopped")
	return runErr
}

// reloadOnHangup re-reads path on every SIGHUP until ctx ends. Overrides
// given on the command line are re-applied to the fresh file.
func reloadOnHangup(ctx context.Context, m *manager.Manager, path string, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}
		next, err := loadConfig(false)
		if err != nil {
			logger.Warn("config reload failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		logger.Info("config reloaded", slog.String("path", path))
		m.UpdateConfig(next)
	}
}
