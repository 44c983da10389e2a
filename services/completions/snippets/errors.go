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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotActive is returned when no snippet is being edited.
	ErrNotActive = errors.New("no active snippet")

	// ErrUnknownTrigger is returned for a trigger with no snippet body.
	ErrUnknownTrigger = errors.New("unknown snippet trigger")
)

// SyntaxError reports an invalid snippet. It is the one error the
// completion core hands back to an editor.
type SyntaxError struct {
	// Offset is the byte offset of the offending token in the source.
	Offset int

	// Line and Column locate the token, zero-based.
	Line   int
	Column int

	// Found is the offending token text, empty at end of input.
	Found string

	// Expected lists the terminals the parser could accept.
	Expected []string
}

// Error implements error.
func (e *SyntaxError) Error() string {
	found := e.Found
	if found == "" {
		found = "end of snippet"
	} else {
		found = fmt.Sprintf("%q", found)
	}
	return fmt.Sprintf("snippet syntax error at %d:%d: unexpected %s, expected one of %s",
		e.Line, e.Column, found, strings.Join(e.Expected, ", "))
}
