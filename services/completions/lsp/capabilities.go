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
	"fmt"

	"github.com/tidwall/gjson"
)

// TextDocumentSyncOptions is the struct form of textDocumentSync.
type TextDocumentSyncOptions struct {
	OpenClose   bool                 `json:"openClose"`
	Change      TextDocumentSyncKind `json:"change"`
	WillSave    bool                 `json:"willSave"`
	SaveEnabled bool                 `json:"-"`
	IncludeText bool                 `json:"-"`
}

// Capabilities is the client's view of what the server supports: the
// last server-reported record merged over the client defaults.
type Capabilities struct {
	// Raw is the merged record as JSON.
	Raw json.RawMessage

	// Sync is the normalized textDocumentSync.
	Sync TextDocumentSyncOptions
}

// defaultServerCapabilities apply where the server is silent.
var defaultServerCapabilities = map[string]any{
	"textDocumentSync": map[string]any{
		"openClose": true,
		"change":    int(SyncFull),
		"willSave":  false,
		"save":      map[string]any{"includeText": true},
	},
}

// NormalizeCapabilities merges a server capability record over the
// defaults. An integer textDocumentSync N becomes {"change": N} before
// merging. A record that is not a JSON object is reported in the error and
// the defaults alone are returned.
func NormalizeCapabilities(raw []byte) (Capabilities, error) {
	server := map[string]any{}
	var decodeErr error
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &server); err != nil {
			decodeErr = fmt.Errorf("decode server capabilities: %w", err)
			server = map[string]any{}
		}
	}
	if n, ok := server["textDocumentSync"].(float64); ok {
		server["textDocumentSync"] = map[string]any{"change": n}
	}

	merged := deepMerge(cloneMap(defaultServerCapabilities), server)
	data, _ := json.Marshal(merged)

	caps := Capabilities{Raw: data}
	sync := gjson.GetBytes(data, "textDocumentSync")
	caps.Sync = TextDocumentSyncOptions{
		OpenClose: sync.Get("openClose").Bool(),
		Change:    TextDocumentSyncKind(sync.Get("change").Int()),
		WillSave:  sync.Get("willSave").Bool(),
	}
	switch save := sync.Get("save"); {
	case save.IsObject():
		caps.Sync.SaveEnabled = true
		caps.Sync.IncludeText = save.Get("includeText").Bool()
	default:
		caps.Sync.SaveEnabled = save.Bool()
	}
	if caps.Sync.Change < SyncNone || caps.Sync.Change > SyncIncremental {
		caps.Sync.Change = SyncFull
	}
	return caps, decodeErr
}

// Get returns a capability by gjson path, e.g. "completionProvider.triggerCharacters".
func (c Capabilities) Get(path string) gjson.Result {
	return gjson.GetBytes(c.Raw, path)
}

// Has reports a provider capability that is present and not false.
func (c Capabilities) Has(provider string) bool {
	if provider == "" {
		return true
	}
	v := c.Get(provider)
	if !v.Exists() || v.Type == gjson.Null {
		return false
	}
	if v.Type == gjson.False {
		return false
	}
	return true
}

// Supports reports whether method may be sent to the server.
func (c Capabilities) Supports(method string) bool {
	spec, ok := methodTable[method]
	if !ok {
		return false
	}
	return c.Has(spec.capability)
}

// TriggerCharacters returns completionProvider.triggerCharacters.
func (c Capabilities) TriggerCharacters() []string {
	var out []string
	for _, v := range c.Get("completionProvider.triggerCharacters").Array() {
		out = append(out, v.String())
	}
	return out
}

func deepMerge(dst, src map[string]any) map[string]any {
	for k, v := range src {
		sm, srcIsMap := v.(map[string]any)
		dm, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[k] = deepMerge(dm, sm)
			continue
		}
		dst[k] = v
	}
	return dst
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = cloneMap(sub)
		} else {
			out[k] = v
		}
	}
	return out
}

// clientCapabilities is what the client announces in initialize.
func clientCapabilities() map[string]any {
	return map[string]any{
		"textDocument": map[string]any{
			"synchronization": map[string]any{
				"dynamicRegistration": false,
				"willSave":            true,
				"willSaveWaitUntil":   false,
				"didSave":             true,
			},
			"completion": map[string]any{
				"dynamicRegistration": false,
				"completionItem": map[string]any{
					"snippetSupport":          true,
					"documentationFormat":     []string{"markdown", "plaintext"},
					"deprecatedSupport":       false,
					"commitCharactersSupport": false,
				},
				"completionItemKind": map[string]any{"valueSet": completionKindValueSet()},
				"contextSupport":     false,
			},
			"hover": map[string]any{
				"contentFormat": []string{"markdown", "plaintext"},
			},
			"signatureHelp": map[string]any{
				"signatureInformation": map[string]any{
					"documentationFormat":  []string{"markdown", "plaintext"},
					"parameterInformation": map[string]any{"labelOffsetSupport": true},
				},
			},
			"definition":         map[string]any{"linkSupport": false},
			"references":         map[string]any{},
			"documentSymbol":     map[string]any{"hierarchicalDocumentSymbolSupport": true},
			"formatting":         map[string]any{},
			"rangeFormatting":    map[string]any{},
			"rename":             map[string]any{"prepareSupport": false},
			"publishDiagnostics": map[string]any{"relatedInformation": false},
		},
		"workspace": map[string]any{
			"applyEdit":              true,
			"workspaceEdit":          map[string]any{"documentChanges": true},
			"didChangeConfiguration": map[string]any{"dynamicRegistration": true},
			"didChangeWatchedFiles":  map[string]any{"dynamicRegistration": true},
			"workspaceFolders":       true,
			"configuration":          true,
		},
		"window": map[string]any{
			"workDoneProgress": true,
		},
	}
}

func completionKindValueSet() []int {
	out := make([]int, 0, int(KindTypeParameter))
	for k := KindText; k <= KindTypeParameter; k++ {
		out = append(out, int(k))
	}
	return out
}
