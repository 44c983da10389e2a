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

import "errors"

var (
	// ErrNotFound is returned when the config file does not exist.
	ErrNotFound = errors.New("config file not found")

	// ErrInvalid is returned when the config file cannot be decoded.
	ErrInvalid = errors.New("invalid config")

	// ErrUnknownLanguage is returned for a language with no entry.
	ErrUnknownLanguage = errors.New("unknown language")

	// ErrMissingCommand is returned when a spawned server has no command.
	ErrMissingCommand = errors.New("missing server command")

	// ErrMissingPort is returned when a TCP server has no port.
	ErrMissingPort = errors.New("missing server port")
)
