// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snippets parses TextMate-style snippet templates and keeps the
// inserted result navigable.
//
// Parsing is a predictive LL(1) parse over a small context-free grammar.
// The table is built once from FIRST/FOLLOW sets; AST nodes are created
// by a static table keyed by grammar rule.
//
//	source ─► Lex ─► tokens ─► Parse (LL(1) table + rule builders) ─► AST
//	                                                                   │
//	              editor ◄── text + selection ◄── Engine ◄── positions + rtree
//
// After insertion every positional node is placed in an R-tree keyed by
// (line, column) so that a cursor position resolves to the deepest node
// containing it. Edits inside the snippet update the AST in place and the
// index is rebuilt.
//
// Supported syntax:
//
//	$1  ${1}  ${1:placeholder}  ${1|one,two|}
//	$NAME  ${NAME}  ${NAME:default}  ${NAME/regex/format/options}
//	format: $1  ${1}  ${1:/upcase}  ${1:+if}  ${1:?if:else}  ${1:-else}  ${1:else}
//	escapes: \$  \}  \\  \,  \|  \/  \:
package snippets
