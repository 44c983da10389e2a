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
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianComplete/services/completions/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), resolvedConfigPath())
				return err
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration as YAML",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(false)
				if err != nil {
					return err
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return err
				}
				return enc.Close()
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write the default configuration unless the file exists",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path := resolvedConfigPath()
				_, err := config.Load(path)
				switch {
				case err == nil:
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", path)
					return err
				case !errors.Is(err, config.ErrNotFound):
					return err
				}
				if err := config.Save(path, config.Default()); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
				return err
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check every language's server settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(false)
				if err != nil {
					return err
				}
				return validateLanguages(cmd, cfg)
			},
		},
	)
	return cmd
}

func validateLanguages(cmd *cobra.Command, cfg *config.Config) error {
	langs := make([]string, 0, len(cfg.Languages))
	for lang := range cfg.Languages {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	var failed int
	for _, lang := range langs {
		if err := cfg.Validate(lang); err != nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s %v\n", lang, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-12s ok\n", lang)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d languages invalid", failed, len(langs))
	}
	return nil
}
