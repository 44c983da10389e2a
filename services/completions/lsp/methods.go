// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import "sort"

// LSP methods the client sends.
const (
	MethodInitialize        = "initialize"
	MethodInitialized       = "initialized"
	MethodShutdown          = "shutdown"
	MethodExit              = "exit"
	MethodCancelRequest     = "$/cancelRequest"
	MethodDidOpen           = "textDocument/didOpen"
	MethodDidChange         = "textDocument/didChange"
	MethodWillSave          = "textDocument/willSave"
	MethodDidSave           = "textDocument/didSave"
	MethodDidClose          = "textDocument/didClose"
	MethodCompletion        = "textDocument/completion"
	MethodSignatureHelp     = "textDocument/signatureHelp"
	MethodHover             = "textDocument/hover"
	MethodDefinition        = "textDocument/definition"
	MethodReferences        = "textDocument/references"
	MethodDocumentSymbol    = "textDocument/documentSymbol"
	MethodFormatting        = "textDocument/formatting"
	MethodRangeFormatting   = "textDocument/rangeFormatting"
	MethodRename            = "textDocument/rename"
	MethodDidChangeConfig   = "workspace/didChangeConfiguration"
	MethodDidChangeWatched  = "workspace/didChangeWatchedFiles"
	MethodDidChangeFolders  = "workspace/didChangeWorkspaceFolders"
	MethodPublishDiagnostic = "textDocument/publishDiagnostics"
)

// methodSpec is the static description of one outbound method.
type methodSpec struct {
	// requiresResponse puts the request in the pending table.
	requiresResponse bool

	// capability is the server capability gating the method, "" if none.
	capability string

	// normalize turns a raw result into the type handed to targets. A nil
	// return means "empty". uri is the request's document.
	normalize func(raw []byte, uri string) any
}

// methodTable lists every method the client may send. Whether a response
// is expected is decided here, never inferred from the method name.
var methodTable = map[string]methodSpec{
	MethodInitialize:       {requiresResponse: true},
	MethodShutdown:         {requiresResponse: true},
	MethodInitialized:      {},
	MethodExit:             {},
	MethodCancelRequest:    {},
	MethodDidOpen:          {},
	MethodDidChange:        {},
	MethodWillSave:         {},
	MethodDidSave:          {},
	MethodDidClose:         {},
	MethodDidChangeConfig:  {},
	MethodDidChangeWatched: {},
	MethodDidChangeFolders: {},

	MethodCompletion: {
		requiresResponse: true,
		capability:       "completionProvider",
		normalize: func(raw []byte, _ string) any {
			if items := NormalizeCompletion(raw); len(items) > 0 {
				return items
			}
			return nil
		},
	},
	MethodSignatureHelp: {
		requiresResponse: true,
		capability:       "signatureHelpProvider",
		normalize: func(raw []byte, _ string) any {
			if sig := NormalizeSignatureHelp(raw); sig != nil {
				return sig
			}
			return nil
		},
	},
	MethodHover: {
		requiresResponse: true,
		capability:       "hoverProvider",
		normalize: func(raw []byte, _ string) any {
			if s := NormalizeHover(raw); s != "" {
				return s
			}
			return nil
		},
	},
	MethodDefinition: {
		requiresResponse: true,
		capability:       "definitionProvider",
		normalize: func(raw []byte, _ string) any {
			if loc := NormalizeDefinition(raw); loc != nil {
				return loc
			}
			return nil
		},
	},
	MethodReferences: {
		requiresResponse: true,
		capability:       "referencesProvider",
		normalize: func(raw []byte, _ string) any {
			if locs := NormalizeLocations(raw); len(locs) > 0 {
				return locs
			}
			return nil
		},
	},
	MethodDocumentSymbol: {
		requiresResponse: true,
		capability:       "documentSymbolProvider",
		normalize: func(raw []byte, uri string) any {
			if syms := NormalizeSymbols(raw, uri); len(syms) > 0 {
				return syms
			}
			return nil
		},
	},
	MethodFormatting: {
		requiresResponse: true,
		capability:       "documentFormattingProvider",
		normalize:        normalizeEdits,
	},
	MethodRangeFormatting: {
		requiresResponse: true,
		capability:       "documentRangeFormattingProvider",
		normalize:        normalizeEdits,
	},
	MethodRename: {
		requiresResponse: true,
		capability:       "renameProvider",
		normalize: func(raw []byte, _ string) any {
			if edit := NormalizeWorkspaceEdit(raw); edit != nil {
				return edit
			}
			return nil
		},
	},
}

func normalizeEdits(raw []byte, _ string) any {
	if edits := NormalizeTextEdits(raw); len(edits) > 0 {
		return edits
	}
	return nil
}

// RequiresResponse reports whether method expects a response.
func RequiresResponse(method string) bool {
	return methodTable[method].requiresResponse
}

// FeatureMethods lists the request methods gated by a server capability.
func FeatureMethods() []string {
	var out []string
	for m, spec := range methodTable {
		if spec.capability != "" {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// resultCount sizes a normalized result for metrics.
func resultCount(v any) int {
	switch r := v.(type) {
	case nil:
		return 0
	case []CompletionItem:
		return len(r)
	case []Location:
		return len(r)
	case []Symbol:
		return len(r)
	case []TextEdit:
		return len(r)
	case *WorkspaceEdit:
		return len(r.Changes)
	default:
		return 1
	}
}
