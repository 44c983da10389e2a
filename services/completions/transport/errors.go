// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"errors"
)

// Sentinel errors for the transport layer.
var (
	// ErrServerExited indicates the language server process terminated.
	ErrServerExited = errors.New("language server exited")

	// ErrProbeTimeout indicates the server never became reachable.
	ErrProbeTimeout = errors.New("language server liveness probe timed out")

	// ErrFraming indicates a malformed Content-Length frame or JSON body.
	ErrFraming = errors.New("lsp framing error")

	// ErrLinkClosed indicates a host link is closed.
	ErrLinkClosed = errors.New("transport link closed")

	// ErrNotStarted indicates Send was called before Start.
	ErrNotStarted = errors.New("transport not started")

	// ErrInvalidSpec indicates an unusable server spec.
	ErrInvalidSpec = errors.New("invalid server spec")

	// ErrBinaryNotFound indicates no lsp-transport executable was found.
	ErrBinaryNotFound = errors.New("lsp-transport binary not found")
)

// Process exit statuses of the lsp-transport binary.
const (
	// ExitOK is a clean stop (signal or host link closed).
	ExitOK = 0

	// ExitFailure is a startup or configuration failure.
	ExitFailure = 1

	// ExitServerDied is returned when the language server exited.
	ExitServerDied = 3
)

// ExitCode maps the error returned by Proxy.Run to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrServerExited):
		return ExitServerDied
	default:
		return ExitFailure
	}
}
