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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/AleutianAI/AleutianComplete/pkg/logging"
	"github.com/AleutianAI/AleutianComplete/services/completions/config"
	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
)

func defaultConfigHint() string {
	return config.DefaultPath()
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

// loadConfig reads the config file. A missing default file yields the
// defaults; a missing explicit file is an error. create writes the
// defaults when the default file is missing.
func loadConfig(create bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case configPath != "":
		cfg, err = config.Load(configPath)
	case create:
		cfg, err = config.LoadOrCreate(config.DefaultPath())
	default:
		cfg, err = config.Load(config.DefaultPath())
		if errors.Is(err, config.ErrNotFound) {
			cfg, err = config.Default(), nil
		}
	}
	if err != nil {
		return nil, err
	}
	if workspace != "" {
		abs, err := filepath.Abs(workspace)
		if err != nil {
			return nil, fmt.Errorf("resolve workspace: %w", err)
		}
		cfg.Workspace = abs
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if jsonLogs {
		cfg.Logging.JSON = true
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.LogDir,
		JSON:    cfg.Logging.JSON,
		Service: "aleutian-complete",
	}), nil
}

// position parses FILE LINE COL with one-based LINE and COL into an
// absolute path and zero-based coordinates.
func position(args []string) (string, int, int, error) {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return "", 0, 0, err
	}
	line, err := strconv.Atoi(args[1])
	if err != nil || line < 1 {
		return "", 0, 0, fmt.Errorf("invalid line %q", args[1])
	}
	col, err := strconv.Atoi(args[2])
	if err != nil || col < 1 {
		return "", 0, 0, fmt.Errorf("invalid column %q", args[2])
	}
	return path, line - 1, col - 1, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// quietEditor receives diagnostics for one-shot queries and drops them.
type quietEditor struct{}

func (quietEditor) HandleDiagnostics(string, lsp.PublishDiagnosticsParams) {}

// waitLanguage blocks until the client of lang is running, it stopped, or
// ctx ends.
func waitLanguage(ctx context.Context, c *lsp.Client) error {
	if c == nil || c.State() == lsp.StateStopped {
		return nil
	}
	return c.WaitReady(ctx)
}
