// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lsp implements the LSP client used by the completion manager.
//
// One Client runs per language. It owns a Transport (normally the
// lsp-transport proxy), assigns request ids, keeps the pending-request
// table, tracks open documents and their versions, and turns the
// polymorphic results servers return into the small set of types editors
// consume.
//
// # Lifecycle
//
//	STOPPED ──Start──▶ STARTING ──server_ready/initialize──▶ RUNNING
//	   ▲                                                   │
//	   └──────── transport killed ◀── SHUTTING_DOWN ◀─Stop─┘
//
// Feature requests issued while STARTING are queued and flushed right
// after the initialized notification. Open documents are (re)announced
// with didOpen on every successful initialize, which is also how a
// restarted client restores server state.
//
// # Response Routing
//
// Every request carries a ResponseTarget. The normalized result is handed
// to target.HandleResponse. Server errors are logged and delivered as a
// nil result so the target can stop waiting; they never surface as errors.
//
// Diagnostics are routed to the targets registered for the document URI.
package lsp
