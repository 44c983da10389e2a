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
	"encoding/json"
	"fmt"
	"strconv"
)

// JSONRPCVersion is fixed by LSP.
const JSONRPCVersion = "2.0"

// ServerReadyMethod is the method of the proxy's liveness sentinel.
const ServerReadyMethod = "server_ready"

// JSON-RPC and LSP error codes.
const (
	CodeParseError           = -32700
	CodeInvalidRequest       = -32600
	CodeMethodNotFound       = -32601
	CodeInvalidParams        = -32602
	CodeInternalError        = -32603
	CodeServerNotInitialized = -32002
	CodeUnknownError         = -32001
	CodeRequestCancelled     = -32800
	CodeContentModified      = -32801
)

// Message is one JSON-RPC object as exchanged over the host links.
//
// The same shape carries requests, notifications and responses. ID stays
// raw because servers may use string ids for their own requests.
type Message struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is the JSON-RPC error object.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// HasID reports whether the message carries a non-null id.
func (m Message) HasID() bool {
	return len(m.ID) > 0 && string(m.ID) != "null"
}

// IsNotification reports a method call without id.
func (m Message) IsNotification() bool {
	return m.Method != "" && !m.HasID()
}

// IsRequest reports a method call with an id.
func (m Message) IsRequest() bool {
	return m.Method != "" && m.HasID()
}

// IsResponse reports a result or error for an id.
func (m Message) IsResponse() bool {
	return m.Method == "" && m.HasID() && (len(m.Result) > 0 || m.Error != nil)
}

// IsServerReady reports the proxy's liveness sentinel.
func (m Message) IsServerReady() bool {
	return m.Method == ServerReadyMethod && string(m.ID) == "-1"
}

// IntID returns the id as an integer when it is one.
func (m Message) IntID() (int64, bool) {
	if !m.HasID() {
		return 0, false
	}
	id, err := strconv.ParseInt(string(m.ID), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// IntID encodes an integer id.
func IntID(id int64) json.RawMessage {
	return json.RawMessage(strconv.FormatInt(id, 10))
}

// ServerReady builds the liveness sentinel.
func ServerReady() Message {
	return Message{ID: IntID(-1), Method: ServerReadyMethod, Params: json.RawMessage(`{}`)}
}

// NewRequest builds a request with an integer id.
func NewRequest(id int64, method string, params any) (Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s params: %w", method, err)
	}
	return Message{ID: IntID(id), Method: method, Params: raw}, nil
}

// NewNotification builds a notification.
func NewNotification(method string, params any) (Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s params: %w", method, err)
	}
	return Message{Method: method, Params: raw}, nil
}

// NewResult builds a successful response to id. A nil result is sent as null.
func NewResult(id json.RawMessage, result any) (Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Message{}, fmt.Errorf("marshal result: %w", err)
	}
	return Message{ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response to id.
func NewErrorResponse(id json.RawMessage, code int, message string) Message {
	return Message{ID: id, Error: &ResponseError{Code: code, Message: message}}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(params)
}
