// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snippets

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VariableResolver supplies values for $NAME references. ok is false for
// names it does not know; those expand to the name itself.
type VariableResolver interface {
	Resolve(name string) (value string, ok bool)
}

// MapResolver resolves from a fixed map.
type MapResolver map[string]string

// Resolve implements VariableResolver.
func (m MapResolver) Resolve(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Context is the editor state that the built-in variables read.
type Context struct {
	// FilePath is the absolute path of the buffer's file.
	FilePath string

	// Line is the zero-based cursor line and CurrentLine its text.
	Line        int
	CurrentLine string

	// Word is the word under the cursor.
	Word string

	// Selection is the selected text, if any.
	Selection string

	// Now overrides the clock, for tests.
	Now func() time.Time

	// Extra holds additional user variables. They shadow built-ins.
	Extra map[string]string
}

// Resolve implements VariableResolver.
func (c *Context) Resolve(name string) (string, bool) {
	if v, ok := c.Extra[name]; ok {
		return v, true
	}
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}

	switch name {
	case "TM_FILENAME":
		return filepath.Base(c.FilePath), c.FilePath != ""
	case "TM_FILENAME_BASE":
		base := filepath.Base(c.FilePath)
		return strings.TrimSuffix(base, filepath.Ext(base)), c.FilePath != ""
	case "TM_DIRECTORY":
		return filepath.Dir(c.FilePath), c.FilePath != ""
	case "TM_FILEPATH":
		return c.FilePath, c.FilePath != ""
	case "TM_LINE_INDEX":
		return strconv.Itoa(c.Line), true
	case "TM_LINE_NUMBER":
		return strconv.Itoa(c.Line + 1), true
	case "TM_CURRENT_LINE":
		return c.CurrentLine, true
	case "TM_CURRENT_WORD":
		return c.Word, true
	case "TM_SELECTED_TEXT":
		return c.Selection, true

	case "CURRENT_YEAR":
		return strconv.Itoa(now.Year()), true
	case "CURRENT_YEAR_SHORT":
		return fmt.Sprintf("%02d", now.Year()%100), true
	case "CURRENT_MONTH":
		return fmt.Sprintf("%02d", int(now.Month())), true
	case "CURRENT_MONTH_NAME":
		return now.Month().String(), true
	case "CURRENT_MONTH_NAME_SHORT":
		return now.Month().String()[:3], true
	case "CURRENT_DATE":
		return fmt.Sprintf("%02d", now.Day()), true
	case "CURRENT_DAY_NAME":
		return now.Weekday().String(), true
	case "CURRENT_DAY_NAME_SHORT":
		return now.Weekday().String()[:3], true
	case "CURRENT_HOUR":
		return fmt.Sprintf("%02d", now.Hour()), true
	case "CURRENT_MINUTE":
		return fmt.Sprintf("%02d", now.Minute()), true
	case "CURRENT_SECOND":
		return fmt.Sprintf("%02d", now.Second()), true
	case "CURRENT_SECONDS_UNIX":
		return strconv.FormatInt(now.Unix(), 10), true

	case "UUID":
		return uuid.NewString(), true
	case "RANDOM":
		n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
		if err != nil {
			return "", false
		}
		return fmt.Sprintf("%06d", n.Int64()), true
	case "RANDOM_HEX":
		buf := make([]byte, 3)
		if _, err := rand.Read(buf); err != nil {
			return "", false
		}
		return hex.EncodeToString(buf), true
	}
	return "", false
}
