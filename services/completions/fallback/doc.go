// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fallback serves lexical completions when no language server
// can answer.
//
// A single worker goroutine owns a mirror of every open file. Editors
// send diff-match-patch patches instead of full text; the worker applies
// them in arrival order and tokenizes the mirror on request:
//
//	Update(file, lang, patch) ─┐
//	Close(file)               ─┼─► queue (FIFO) ─► worker ─► files[file]
//	Retrieve(file, receiver)  ─┘                      │
//	                                                  └─► receiver.ReceiveTextTokens
//
// Tokens are the language's keywords, taken from the tree-sitter grammar
// where one is available, plus the identifier-like words of the text.
package fallback
