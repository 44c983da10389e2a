// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manager

import "errors"

var (
	// ErrClosed indicates the manager was shut down.
	ErrClosed = errors.New("completion manager closed")

	// ErrDocumentNotOpen indicates a lifecycle event or request for a
	// document the editor never opened.
	ErrDocumentNotOpen = errors.New("document not open")

	// ErrStaleVersion indicates a change whose version does not increase.
	ErrStaleVersion = errors.New("document version not increasing")

	// ErrNoLanguage indicates a path that maps to no configured language.
	ErrNoLanguage = errors.New("no language for document")

	// ErrUnknownProvider indicates a provider name that is not registered.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrUnknownMethod indicates a request method the manager cannot route.
	ErrUnknownMethod = errors.New("unknown request method")
)
