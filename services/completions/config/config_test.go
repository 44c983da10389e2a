// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2*time.Second, cfg.ConfigDebounce)
	assert.Equal(t, 20*time.Second, cfg.Transport.ProbeTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Transport.ProbeInterval)
	assert.Equal(t, 200*time.Millisecond, cfg.Watcher.Throttle)
	assert.Equal(t, "polling", cfg.Watcher.Backend)
	require.Contains(t, cfg.Languages, "python")
	assert.True(t, cfg.Languages["python"].Server.Stdio)
}

func TestParse_OverridesDefaults(t *testing.T) {
	data := []byte(`
request_timeout: 500ms
workspace: /tmp/project
languages:
  python:
    extensions: [".py"]
    server:
      command: jedi-language-server
      stdio: true
    settings:
      line_length: 100
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, "/tmp/project", cfg.Workspace)
	assert.Equal(t, "jedi-language-server", cfg.Languages["python"].Server.Command)
	assert.Equal(t, 100, cfg.Languages["python"].Settings.LineLength)
	// untouched sections keep their defaults
	assert.Equal(t, 2*time.Second, cfg.ConfigDebounce)
	assert.Contains(t, cfg.Languages, "go")
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("request_timeout: [1, 2"))
	assert.True(t, errors.Is(err, ErrInvalid))

	_, err = Parse([]byte("request_timeout: 0s"))
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadOrCreate_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Languages["python"].Server, again.Languages["python"].Server)
}

func TestLanguageForPath(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "python", cfg.LanguageForPath("/a/b/test.py"))
	assert.Equal(t, "go", cfg.LanguageForPath("main.go"))
	assert.Equal(t, "", cfg.LanguageForPath("README"))
	assert.Equal(t, "", cfg.LanguageForPath("data.unknownext"))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate("python"))

	assert.True(t, errors.Is(cfg.Validate("cobol"), ErrUnknownLanguage))

	cfg.Languages["broken"] = LanguageConfig{Server: ServerSettings{Stdio: true}}
	assert.True(t, errors.Is(cfg.Validate("broken"), ErrMissingCommand))

	cfg.Languages["tcp"] = LanguageConfig{Server: ServerSettings{Command: "srv"}}
	assert.True(t, errors.Is(cfg.Validate("tcp"), ErrMissingPort))

	cfg.Languages["external"] = LanguageConfig{Server: ServerSettings{External: true, Host: "127.0.0.1", Port: 2087}}
	assert.NoError(t, cfg.Validate("external"))
}

func TestConfigurations(t *testing.T) {
	s := LanguageSettings{
		Formatter:  "black",
		Linters:    []string{"flake8"},
		LineLength: 88,
		Extra:      map[string]any{"pylsp": map[string]any{"plugins": map[string]any{}}},
	}
	got := s.Configurations("python")

	own, ok := got["python"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "black", own["formatter"])
	assert.Equal(t, 88, own["lineLength"])
	assert.Equal(t, []any{"flake8"}, own["linters"])
	assert.Contains(t, got, "pylsp")
}

func TestServerLogFile(t *testing.T) {
	cfg := &Config{ConfigDir: "/cfg"}
	assert.Equal(t, filepath.Join("/cfg", "lsp_logs", "python.log"), cfg.ServerLogFile("python"))
}
