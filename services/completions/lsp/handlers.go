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
	"encoding/json"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/AleutianAI/AleutianComplete/services/completions/transport"
)

// Server-initiated request and notification methods.
const (
	MethodWorkspaceConfiguration = "workspace/configuration"
	MethodWorkspaceFolders       = "workspace/workspaceFolders"
	MethodRegisterCapability     = "client/registerCapability"
	MethodUnregisterCapability   = "client/unregisterCapability"
	MethodWorkDoneProgressCreate = "window/workDoneProgress/create"
	MethodApplyEdit              = "workspace/applyEdit"
	MethodShowMessage            = "window/showMessage"
	MethodLogMessage             = "window/logMessage"
	MethodProgress               = "$/progress"
	MethodTelemetryEvent         = "telemetry/event"
)

// onServerRequest answers a request the server sent to the client.
// Every request gets exactly one reply; unknown methods get -32601.
func (c *Client) onServerRequest(t Transport, msg transport.Message) {
	var (
		result any
		rerr   *transport.ResponseError
	)

	switch msg.Method {
	case MethodWorkspaceConfiguration:
		result = c.configurationItems(msg.Params)
	case MethodWorkspaceFolders:
		result = c.Folders()
	case MethodRegisterCapability:
		c.mu.Lock()
		for _, r := range gjson.GetBytes(msg.Params, "registrations").Array() {
			reg := Registration{ID: r.Get("id").String(), Method: r.Get("method").String()}
			if opts := r.Get("registerOptions"); opts.Exists() {
				reg.RegisterOptions = opts.Value()
			}
			c.registrations[reg.ID] = reg
		}
		c.mu.Unlock()
	case MethodUnregisterCapability:
		c.mu.Lock()
		// the protocol misspells this key
		for _, r := range gjson.GetBytes(msg.Params, "unregisterations").Array() {
			delete(c.registrations, r.Get("id").String())
		}
		c.mu.Unlock()
	case MethodWorkDoneProgressCreate:
	case MethodApplyEdit:
		applied := false
		if h := c.opts.Hooks.ApplyEdit; h != nil {
			edit := NormalizeWorkspaceEdit([]byte(gjson.GetBytes(msg.Params, "edit").Raw))
			if edit != nil {
				applied = h(c.opts.Language, *edit)
			}
		}
		result = map[string]any{"applied": applied}
	default:
		rerr = &transport.ResponseError{Code: transport.CodeMethodNotFound, Message: "method not found: " + msg.Method}
	}

	var reply transport.Message
	if rerr != nil {
		c.logger.Debug("refusing server request", slog.String("method", msg.Method))
		reply = transport.NewErrorResponse(msg.ID, rerr.Code, rerr.Message)
	} else {
		var err error
		reply, err = transport.NewResult(msg.ID, result)
		if err != nil {
			reply = transport.NewErrorResponse(msg.ID, transport.CodeInternalError, err.Error())
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport != t {
		return
	}
	if err := c.writeLocked(reply); err != nil {
		c.logger.Warn("cannot answer server request", slog.String("method", msg.Method), slog.String("error", err.Error()))
	}
}

// configurationItems resolves each requested section against the
// current settings. Missing sections resolve to null.
func (c *Client) configurationItems(params json.RawMessage) []any {
	c.mu.Lock()
	settings := c.settings
	c.mu.Unlock()

	raw, err := json.Marshal(settings)
	if err != nil || settings == nil {
		raw = []byte("{}")
	}

	items := gjson.GetBytes(params, "items").Array()
	out := make([]any, 0, len(items))
	for _, item := range items {
		section := item.Get("section").String()
		if section == "" {
			out = append(out, gjson.ParseBytes(raw).Value())
			continue
		}
		v := gjson.GetBytes(raw, section)
		if !v.Exists() {
			out = append(out, nil)
			continue
		}
		out = append(out, v.Value())
	}
	return out
}

// onNotification handles a server notification.
func (c *Client) onNotification(msg transport.Message) {
	lang := c.opts.Language
	hooks := c.opts.Hooks

	switch msg.Method {
	case MethodPublishDiagnostic:
		c.publishDiagnostics(msg.Params)
	case MethodShowMessage:
		kind, text := messageParams(msg.Params)
		if hooks.ShowMessage != nil {
			hooks.ShowMessage(lang, kind, text)
		}
	case MethodLogMessage:
		kind, text := messageParams(msg.Params)
		c.logger.Debug("server log", slog.Int("type", kind), slog.String("message", text))
		if hooks.LogMessage != nil {
			hooks.LogMessage(lang, kind, text)
		}
	case MethodProgress:
		if hooks.Progress != nil {
			hooks.Progress(lang,
				json.RawMessage(gjson.GetBytes(msg.Params, "token").Raw),
				json.RawMessage(gjson.GetBytes(msg.Params, "value").Raw))
		}
	case MethodTelemetryEvent:
		if hooks.Telemetry != nil {
			hooks.Telemetry(lang, msg.Params)
		}
	default:
		c.drop("unhandled notification", slog.String("method", msg.Method))
	}
}

func messageParams(params json.RawMessage) (int, string) {
	return int(gjson.GetBytes(params, "type").Int()), gjson.GetBytes(params, "message").String()
}

// publishDiagnostics routes diagnostics to every target registered for
// the document. Diagnostics for unknown documents are dropped.
func (c *Client) publishDiagnostics(params json.RawMessage) {
	diag := NormalizeDiagnostics(params)

	c.mu.Lock()
	doc, ok := c.docs[PathToURI(URIToPath(diag.URI))]
	var targets []ResponseTarget
	if ok {
		targets = append(targets, doc.targets...)
	}
	c.mu.Unlock()

	if !ok {
		c.drop("diagnostics for unknown document", slog.String("uri", diag.URI))
		return
	}
	for _, t := range targets {
		t.HandleResponse(MethodPublishDiagnostic, 0, diag)
	}
}
