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
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianComplete/services/completions/config"
	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
	"github.com/AleutianAI/AleutianComplete/services/completions/manager"
	"github.com/AleutianAI/AleutianComplete/services/completions/telemetry"
)

const (
	methodComplete   = lsp.MethodCompletion
	methodHover      = lsp.MethodHover
	methodDefinition = lsp.MethodDefinition
)

func newRequestCmd(name, short, method string) *cobra.Command {
	var readyTimeout time.Duration
	cmd := &cobra.Command{
		Use:   name + " FILE LINE COL",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, line, col, err := position(args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			res, err := query(cmd.Context(), cfg, manager.Request{Method: method, Path: path, Line: line, Column: col}, readyTimeout)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().DurationVar(&readyTimeout, "ready-timeout", 30*time.Second, "how long to wait for the language server")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the merged result as JSON")
	return cmd
}

// query runs a private manager for one request on one file.
//
// Description:
//
//	Reads the file, starts every provider without the workspace watcher,
//	waits for the file's language server, sends the request and shuts the
//	manager down again.
func query(ctx context.Context, cfg *config.Config, req manager.Request, readyTimeout time.Duration) (res *manager.Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "query", attribute.String("method", req.Method))
	defer func() {
		telemetry.RecordError(ctx, err)
		span.End()
	}()

	text, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.Path, err)
	}
	if cfg.Workspace == "" {
		cfg.Workspace, _ = os.Getwd()
	}
	cfg.Watcher.Enabled = false

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	defer logger.Close()

	m := manager.New(manager.Options{Config: cfg, Logger: logger.Slog()})
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = m.Shutdown(sctx)
	}()
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	if err := m.Open(req.Path, "", 1, string(text), quietEditor{}); err != nil {
		return nil, err
	}

	lang := cfg.LanguageForPath(req.Path)
	wctx, cancel := context.WithTimeout(ctx, readyTimeout)
	err = waitLanguage(wctx, m.Client(lang))
	cancel()
	if err != nil {
		logger.Warn("language server not ready, answering from local providers", slog.String("language", lang))
	}
	return m.Request(ctx, req)
}

func printResult(w io.Writer, res *manager.Result) error {
	if jsonOutput {
		return writeJSON(w, res)
	}
	switch res.Method {
	case lsp.MethodCompletion:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, item := range res.Items {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", item.Label, item.Detail, item.Provider)
		}
		return tw.Flush()
	case lsp.MethodHover:
		if res.Hover != "" {
			fmt.Fprintln(w, res.Hover)
		}
	case lsp.MethodDefinition:
		if res.Definition != nil {
			d := res.Definition
			where := d.Path
			if where == "" {
				where = d.URI
			}
			fmt.Fprintf(w, "%s:%d:%d\n", where, d.Range.Start.Line+1, d.Range.Start.Character+1)
		}
	}
	return nil
}
