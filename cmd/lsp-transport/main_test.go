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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianComplete/services/completions/transport"
)

func parse(t *testing.T, args ...string) (transport.ProxyConfig, error) {
	t.Helper()
	var got transport.ProxyConfig
	cmd := newRootCmd(func(cfg transport.ProxyConfig) error {
		got = cfg
		return nil
	})
	cmd.SetArgs(args)
	cmd.SilenceErrors = true
	err := cmd.Execute()
	return got, err
}

func TestFlags_Stdio(t *testing.T) {
	cfg, err := parse(t,
		"--zmq-in-port", "4001", "--zmq-out-port", "4002",
		"--stdio-server", "--folder", "/w", "--transport-debug", "3",
		"pylsp", "-v", "--check-parent-process",
	)
	require.NoError(t, err)
	assert.Equal(t, 4001, cfg.InPort)
	assert.Equal(t, 4002, cfg.OutPort)
	assert.True(t, cfg.Stdio)
	assert.Equal(t, "/w", cfg.Folder)
	assert.Equal(t, 3, cfg.Debug)
	assert.Equal(t, []string{"pylsp", "-v", "--check-parent-process"}, cfg.Command)
	assert.NotNil(t, cfg.Logger)
}

func TestFlags_RoundTripsServerSpecArgs(t *testing.T) {
	spec := transport.ServerSpec{
		Command: []string{"gopls", "-listen", "127.0.0.1:5000"},
		Host:    "127.0.0.1",
		Port:    5000,
		LogFile: "/tmp/gopls.log",
		Folder:  "/w",
		Debug:   2,
	}
	cfg, err := parse(t, spec.Args(7001, 7002)...)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.InPort)
	assert.Equal(t, 7002, cfg.OutPort)
	assert.Equal(t, spec, cfg.ServerSpec)
}

func TestFlags_External(t *testing.T) {
	cfg, err := parse(t, "--zmq-in-port", "1", "--zmq-out-port", "2",
		"--external-server", "--server-port", "2087")
	require.NoError(t, err)
	assert.True(t, cfg.External)
	assert.Empty(t, cfg.Command)
	assert.Equal(t, 2087, cfg.Port)
}

func TestFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing ports", []string{"--stdio-server", "pylsp"}},
		{"no command", []string{"--zmq-in-port", "1", "--zmq-out-port", "2", "--stdio-server"}},
		{"tcp without port", []string{"--zmq-in-port", "1", "--zmq-out-port", "2", "pylsp"}},
		{"external stdio", []string{"--zmq-in-port", "1", "--zmq-out-port", "2", "--external-server", "--stdio-server"}},
		{"debug out of range", []string{"--zmq-in-port", "1", "--zmq-out-port", "2", "--transport-debug", "7", "--stdio-server", "pylsp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.args...)
			assert.Error(t, err)
		})
	}
}
