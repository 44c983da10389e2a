// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manager aggregates completion providers behind one editor-facing
// API.
//
// A Manager owns one LSP client per configured language, the fallback
// token worker, and the snippets provider. It keeps the registry of open
// documents and broadcasts their lifecycle (didOpen, didChange, willSave,
// didSave, didClose) to every provider tracking the document's language.
//
// Feature requests fan out to every running provider that supports the
// method. Replies arrive asynchronously on a ticket and are merged when all
// candidates answered or the request deadline fired, whichever comes
// first:
//
//	Request ─► ticket ─┬─► lsp:<language> ──┐
//	                   ├─► snippets ────────┼─► replies ─► merge ─► Result
//	                   └─► fallback ────────┘      ▲
//	                                     deadline ─┘
//
// Completion results are the union of all replies. Every other method takes
// the first non-empty reply in provider priority order. A newer request for
// the same (file, method) supersedes the outstanding one, which then cancels
// its remaining provider requests.
//
// Configuration changes are debounced and diffed per language: changed
// server settings restart that language's client, changed editor settings
// are pushed with workspace/didChangeConfiguration.
package manager
