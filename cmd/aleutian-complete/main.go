// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command aleutian-complete runs the completion host and offers one-shot
// queries against it.
//
//	aleutian-complete serve                      run the host and its status API
//	aleutian-complete complete FILE LINE COL     merged completions at a position
//	aleutian-complete hover FILE LINE COL        hover text at a position
//	aleutian-complete definition FILE LINE COL   definition location
//	aleutian-complete snippet LANG [PREFIX]      list or expand snippets
//	aleutian-complete config path|show|init|validate
//
// LINE and COL are one-based.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// --- Global flags ---
var (
	configPath string
	workspace  string
	logLevel   string
	jsonLogs   bool
	jsonOutput bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "aleutian-complete",
		Short:        "Completion host aggregating language servers, snippets and buffer tokens",
		Version:      version,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default "+defaultConfigHint()+")")
	pf.StringVar(&workspace, "workspace", "", "workspace folder, overrides the config")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error, overrides the config")
	pf.BoolVar(&jsonLogs, "json-logs", false, "write logs to stderr as JSON")

	root.AddCommand(
		newServeCmd(),
		newRequestCmd("complete", "Print merged completions at a position", methodComplete),
		newRequestCmd("hover", "Print hover text at a position", methodHover),
		newRequestCmd("definition", "Print the definition location of a symbol", methodDefinition),
		newSnippetCmd(),
		newConfigCmd(),
	)
	return root
}
