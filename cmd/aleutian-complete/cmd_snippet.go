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
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
	"github.com/AleutianAI/AleutianComplete/services/completions/snippets"
)

func newSnippetCmd() *cobra.Command {
	var (
		expand      bool
		description string
		file        string
	)
	cmd := &cobra.Command{
		Use:   "snippet LANG [PREFIX]",
		Short: "List the snippets of a language, or expand one",
		Long: `Without --expand, lists the triggers of LANG starting with PREFIX (all
triggers when PREFIX is empty). With --expand, PREFIX is a trigger and its
body is printed with variables resolved against --file.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			lib := snippets.Library(cfg.Snippets.Languages)
			lang := args[0]
			prefix := ""
			if len(args) == 2 {
				prefix = args[1]
			}
			if !expand {
				return listSnippets(cmd.OutOrStdout(), lib, lang, prefix)
			}
			if prefix == "" {
				return fmt.Errorf("--expand needs a trigger")
			}
			return expandSnippet(cmd.OutOrStdout(), lib, lang, prefix, description, file)
		},
	}
	cmd.Flags().BoolVar(&expand, "expand", false, "print the expanded body of a trigger")
	cmd.Flags().StringVar(&description, "description", "", "which body of the trigger to expand (default the first)")
	cmd.Flags().StringVar(&file, "file", "", "file used to resolve TM_* variables")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print completion items as JSON")
	return cmd
}

func listSnippets(w io.Writer, lib snippets.Library, lang, prefix string) error {
	p := snippets.NewProvider(lib, nil)
	var items []lsp.CompletionItem
	if prefix == "" {
		for trigger := range lib[lang] {
			items = append(items, p.Complete(lang, trigger)...)
		}
		items = dedupeItems(items)
	} else {
		items = p.Complete(lang, prefix)
	}
	if jsonOutput {
		return writeJSON(w, items)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\n", item.Label, item.Detail)
	}
	return tw.Flush()
}

// dedupeItems drops repeats produced when one trigger prefixes another.
func dedupeItems(items []lsp.CompletionItem) []lsp.CompletionItem {
	seen := make(map[[2]string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		key := [2]string{it.Label, it.Detail}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].Detail < out[j].Detail
	})
	return out
}

func expandSnippet(w io.Writer, lib snippets.Library, lang, trigger, description, file string) error {
	bodies := lib[lang][trigger]
	if len(bodies) == 0 {
		return fmt.Errorf("%w: %s/%s", snippets.ErrUnknownTrigger, lang, trigger)
	}
	if description == "" {
		descs := make([]string, 0, len(bodies))
		for d := range bodies {
			descs = append(descs, d)
		}
		sort.Strings(descs)
		description = descs[0]
	}
	body, err := snippets.NewProvider(lib, nil).Body(lang, trigger, description)
	if err != nil {
		return err
	}

	vars := &snippets.Context{Word: trigger}
	if file != "" {
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		vars.FilePath = abs
	}
	root, err := snippets.Expand(body, vars)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, root.Text())
	return err
}
