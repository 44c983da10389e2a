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
	"reflect"
	"sort"
)

// Changes classifies languages between two configurations.
type Changes struct {
	// Added languages exist only in the new configuration.
	Added []string

	// Removed languages exist only in the old configuration.
	Removed []string

	// Restart languages changed a restart-significant server field.
	Restart []string

	// Reconfigure languages only changed their settings.
	Reconfigure []string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Restart) == 0 && len(c.Reconfigure) == 0
}

// Diff compares two configurations language by language.
//
// Description:
//
//	A language whose ServerSettings differ in any of command, args, host,
//	port, stdio, or external lands in Restart. A language whose derived
//	Configurations() differ (and needs no restart) lands in Reconfigure.
//	All slices are sorted.
//
// Inputs:
//
//	prev - Configuration last applied. May be nil.
//	next - Configuration to apply.
//
// Outputs:
//
//	Changes - The classification.
func Diff(prev, next *Config) Changes {
	var ch Changes
	oldLangs := map[string]LanguageConfig{}
	if prev != nil {
		oldLangs = prev.Languages
	}

	for name, nl := range next.Languages {
		ol, ok := oldLangs[name]
		switch {
		case !ok:
			ch.Added = append(ch.Added, name)
		case !ol.Server.SameProcess(nl.Server):
			ch.Restart = append(ch.Restart, name)
		case !reflect.DeepEqual(ol.Settings.Configurations(name), nl.Settings.Configurations(name)):
			ch.Reconfigure = append(ch.Reconfigure, name)
		}
	}
	for name := range oldLangs {
		if _, ok := next.Languages[name]; !ok {
			ch.Removed = append(ch.Removed, name)
		}
	}

	sort.Strings(ch.Added)
	sort.Strings(ch.Removed)
	sort.Strings(ch.Restart)
	sort.Strings(ch.Reconfigure)
	return ch
}
