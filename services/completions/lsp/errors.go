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

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianComplete/services/completions/transport"
)

// Sentinel errors for client operations.
var (
	// ErrNotRunning indicates the client is stopped or shutting down.
	ErrNotRunning = errors.New("lsp client not running")

	// ErrAlreadyStarted indicates Start was called on a live client.
	ErrAlreadyStarted = errors.New("lsp client already started")

	// ErrDocumentNotOpen indicates a request for a document without didOpen.
	ErrDocumentNotOpen = errors.New("document not open")

	// ErrStaleVersion indicates a didChange whose version does not increase.
	ErrStaleVersion = errors.New("document version not increasing")

	// ErrUnsupported indicates the server did not advertise the feature.
	ErrUnsupported = errors.New("feature not supported by server")

	// ErrUnknownMethod indicates a method missing from the method table.
	ErrUnknownMethod = errors.New("unknown lsp method")

	// ErrExpectsResponse indicates a request method sent as a notification.
	ErrExpectsResponse = errors.New("lsp method expects a response")

	// ErrInitializeTimeout indicates the server never answered initialize.
	ErrInitializeTimeout = errors.New("lsp initialize timed out")

	// ErrNoTransport indicates the client was built without a transport factory.
	ErrNoTransport = errors.New("no transport configured")
)

// ResponseError is a JSON-RPC error returned by the server for a method.
type ResponseError struct {
	// Method is the request method the error answers.
	Method string

	// Code is the JSON-RPC error code.
	Code int

	// Message is the server's description.
	Message string

	// Data is optional extra information, undecoded.
	Data []byte
}

func newResponseError(method string, e *transport.ResponseError) *ResponseError {
	return &ResponseError{Method: method, Code: e.Code, Message: e.Message, Data: e.Data}
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("%s: LSP error %d: %s (data: %s)", e.Method, e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("%s: LSP error %d: %s", e.Method, e.Code, e.Message)
}

// IsParseError reports -32700.
func (e *ResponseError) IsParseError() bool { return e.Code == transport.CodeParseError }

// IsMethodNotFound reports -32601.
func (e *ResponseError) IsMethodNotFound() bool { return e.Code == transport.CodeMethodNotFound }

// IsInvalidParams reports -32602.
func (e *ResponseError) IsInvalidParams() bool { return e.Code == transport.CodeInvalidParams }

// IsServerNotInitialized reports -32002.
func (e *ResponseError) IsServerNotInitialized() bool {
	return e.Code == transport.CodeServerNotInitialized
}

// IsRequestCancelled reports -32800.
func (e *ResponseError) IsRequestCancelled() bool { return e.Code == transport.CodeRequestCancelled }

// IsContentModified reports -32801.
func (e *ResponseError) IsContentModified() bool { return e.Code == transport.CodeContentModified }
