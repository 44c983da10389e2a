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

// =============================================================================
// POSITIONS
// =============================================================================

// Position is a zero-based line and UTF-16 character offset.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location is a range in a document. Path is the filesystem form of URI.
type Location struct {
	URI   string `json:"uri"`
	Path  string `json:"path"`
	Range Range  `json:"range"`
}

// TextEdit replaces Range with NewText.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// WorkspaceEdit groups text edits by document path.
type WorkspaceEdit struct {
	Changes map[string][]TextEdit `json:"changes"`
}

// =============================================================================
// COMPLETION
// =============================================================================

// CompletionItemKind is the LSP completion item kind.
type CompletionItemKind int

// Completion item kinds.
const (
	KindText          CompletionItemKind = 1
	KindMethod        CompletionItemKind = 2
	KindFunction      CompletionItemKind = 3
	KindConstructor   CompletionItemKind = 4
	KindField         CompletionItemKind = 5
	KindVariable      CompletionItemKind = 6
	KindClass         CompletionItemKind = 7
	KindInterface     CompletionItemKind = 8
	KindModule        CompletionItemKind = 9
	KindProperty      CompletionItemKind = 10
	KindUnit          CompletionItemKind = 11
	KindValue         CompletionItemKind = 12
	KindEnum          CompletionItemKind = 13
	KindKeyword       CompletionItemKind = 14
	KindSnippet       CompletionItemKind = 15
	KindColor         CompletionItemKind = 16
	KindFile          CompletionItemKind = 17
	KindReference     CompletionItemKind = 18
	KindFolder        CompletionItemKind = 19
	KindEnumMember    CompletionItemKind = 20
	KindConstant      CompletionItemKind = 21
	KindStruct        CompletionItemKind = 22
	KindEvent         CompletionItemKind = 23
	KindOperator      CompletionItemKind = 24
	KindTypeParameter CompletionItemKind = 25
)

// InsertTextFormat says how InsertText is interpreted.
type InsertTextFormat int

const (
	// InsertPlainText inserts the text as is.
	InsertPlainText InsertTextFormat = 1

	// InsertSnippet parses the text as a snippet.
	InsertSnippet InsertTextFormat = 2
)

// CompletionItem is a normalized completion. All eight core fields are
// always populated.
type CompletionItem struct {
	Label            string             `json:"label"`
	Kind             CompletionItemKind `json:"kind"`
	Detail           string             `json:"detail"`
	Documentation    string             `json:"documentation"`
	SortText         string             `json:"sortText"`
	FilterText       string             `json:"filterText"`
	InsertText       string             `json:"insertText"`
	InsertTextFormat InsertTextFormat   `json:"insertTextFormat"`

	// TextEdit is kept when the server supplied one.
	TextEdit *TextEdit `json:"textEdit,omitempty"`

	// Provider names the source that produced the item. Set by the manager.
	Provider string `json:"provider,omitempty"`
}

// WithDefaults fills every missing core field.
func (c CompletionItem) WithDefaults() CompletionItem {
	if c.Kind == 0 {
		c.Kind = KindText
	}
	if c.SortText == "" {
		c.SortText = c.Label
	}
	if c.FilterText == "" {
		c.FilterText = c.Label
	}
	if c.InsertText == "" {
		c.InsertText = c.Label
	}
	if c.InsertTextFormat == 0 {
		c.InsertTextFormat = InsertPlainText
	}
	return c
}

// =============================================================================
// SIGNATURES, SYMBOLS, DIAGNOSTICS
// =============================================================================

// ParameterInformation is one parameter of a signature.
type ParameterInformation struct {
	Label         string `json:"label"`
	Documentation string `json:"documentation"`
}

// SignatureInformation is the active signature of a signatureHelp result.
type SignatureInformation struct {
	Label           string                 `json:"label"`
	Documentation   string                 `json:"documentation"`
	Parameters      []ParameterInformation `json:"parameters"`
	ActiveParameter int                    `json:"activeParameter"`
}

// Symbol is a flattened document symbol.
type Symbol struct {
	Name          string   `json:"name"`
	Kind          int      `json:"kind"`
	ContainerName string   `json:"containerName,omitempty"`
	Location      Location `json:"location"`
}

// DiagnosticSeverity ranks a diagnostic.
type DiagnosticSeverity int

// Diagnostic severities.
const (
	SeverityError       DiagnosticSeverity = 1
	SeverityWarning     DiagnosticSeverity = 2
	SeverityInformation DiagnosticSeverity = 3
	SeverityHint        DiagnosticSeverity = 4
)

// Diagnostic is one server-reported problem.
type Diagnostic struct {
	Range    Range              `json:"range"`
	Severity DiagnosticSeverity `json:"severity,omitempty"`
	Code     any                `json:"code,omitempty"`
	Source   string             `json:"source,omitempty"`
	Message  string             `json:"message"`
}

// PublishDiagnosticsParams is the publishDiagnostics payload.
type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Version     *int         `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// =============================================================================
// DOCUMENT SYNC AND WORKSPACE
// =============================================================================

// TextDocumentSyncKind is how document changes are sent.
type TextDocumentSyncKind int

// Sync kinds.
const (
	SyncNone        TextDocumentSyncKind = 0
	SyncFull        TextDocumentSyncKind = 1
	SyncIncremental TextDocumentSyncKind = 2
)

// TextDocumentContentChangeEvent is one didChange entry. A nil Range
// replaces the whole document.
type TextDocumentContentChangeEvent struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

// TextDocumentSaveReason is the willSave reason.
type TextDocumentSaveReason int

// Save reasons.
const (
	SaveManual     TextDocumentSaveReason = 1
	SaveAfterDelay TextDocumentSaveReason = 2
	SaveFocusOut   TextDocumentSaveReason = 3
)

// FileChangeType is the didChangeWatchedFiles kind.
type FileChangeType int

// File change kinds.
const (
	FileCreated FileChangeType = 1
	FileChanged FileChangeType = 2
	FileDeleted FileChangeType = 3
)

// FileEvent is one watched-file change.
type FileEvent struct {
	URI  string         `json:"uri"`
	Type FileChangeType `json:"type"`
}

// WorkspaceFolder is a project root.
type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// FormattingOptions are the formatting request options.
type FormattingOptions struct {
	TabSize      int  `json:"tabSize"`
	InsertSpaces bool `json:"insertSpaces"`
}

// Registration is a dynamic capability registration from the server.
type Registration struct {
	ID              string `json:"id"`
	Method          string `json:"method"`
	RegisterOptions any    `json:"registerOptions,omitempty"`
}
