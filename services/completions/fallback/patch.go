// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fallback

import (
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// MakePatch returns the diff-match-patch text that turns prev into next.
func MakePatch(prev, next string) string {
	dmp := diffmatchpatch.New()
	return dmp.PatchToText(dmp.PatchMake(prev, next))
}

// ApplyPatch applies patch text to base.
//
// Outputs:
//
//	string - the patched text
//	int - number of hunks that did not apply cleanly
//	error - ErrBadPatch when the patch text cannot be parsed
func ApplyPatch(base, patch string) (string, int, error) {
	if patch == "" {
		return base, 0, nil
	}
	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patch)
	if err != nil {
		return base, 0, fmt.Errorf("%w: %v", ErrBadPatch, err)
	}
	text, applied := dmp.PatchApply(patches, base)
	failed := 0
	for _, ok := range applied {
		if !ok {
			failed++
		}
	}
	return text, failed, nil
}
