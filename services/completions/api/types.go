// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"

	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
	"github.com/AleutianAI/AleutianComplete/services/completions/manager"
)

// Backend is the part of the completion manager the API drives.
type Backend interface {
	Providers() []manager.ProviderInfo
	StartProvider(ctx context.Context, name string) error
	StopProvider(name string) error

	Documents() []manager.Document
	Open(path, language string, version int, text string, editor manager.Editor) error
	Change(path string, version int, text string) error
	Close(path string, editor manager.Editor) error
	Diagnostics(path string) map[string][]lsp.Diagnostic

	Request(ctx context.Context, req manager.Request) (*manager.Result, error)
	Done() <-chan struct{}
}

// remoteEditor stands for every document opened over HTTP. Diagnostics
// stay in the manager and are read back with GET /v1/diagnostics.
type remoteEditor struct{}

func (remoteEditor) HandleDiagnostics(string, lsp.PublishDiagnosticsParams) {}

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Providers int    `json:"providers"`
	Running   int    `json:"running"`
	Documents int    `json:"documents"`
}

// OpenRequest is the body of POST /v1/documents.
type OpenRequest struct {
	Path     string `json:"path" binding:"required"`
	Language string `json:"language"`
	Version  int    `json:"version"`
	Text     string `json:"text"`
}

// ChangeRequest is the body of PUT /v1/documents.
type ChangeRequest struct {
	Path    string `json:"path" binding:"required"`
	Version int    `json:"version" binding:"required"`
	Text    string `json:"text"`
}

// FeatureRequest is the body of POST /v1/request. Line and Column are
// zero-based.
type FeatureRequest struct {
	Method             string `json:"method" binding:"required"`
	Path               string `json:"path" binding:"required"`
	Line               int    `json:"line"`
	Column             int    `json:"column"`
	IncludeDeclaration bool   `json:"includeDeclaration,omitempty"`
	NewName            string `json:"newName,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}
