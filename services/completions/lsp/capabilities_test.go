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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCapabilities_Defaults(t *testing.T) {
	caps, err := NormalizeCapabilities(nil)
	require.NoError(t, err)
	assert.True(t, caps.Sync.OpenClose)
	assert.Equal(t, SyncFull, caps.Sync.Change)
	assert.True(t, caps.Sync.SaveEnabled)
	assert.True(t, caps.Sync.IncludeText)
	assert.False(t, caps.Has("completionProvider"))
	assert.False(t, caps.Supports(MethodHover))
}

func TestNormalizeCapabilities_IntegerSync(t *testing.T) {
	caps, err := NormalizeCapabilities([]byte(`{"textDocumentSync":2,"hoverProvider":true}`))
	require.NoError(t, err)
	assert.Equal(t, SyncIncremental, caps.Sync.Change)
	assert.True(t, caps.Sync.OpenClose, "defaults survive an integer sync")
	assert.True(t, caps.Supports(MethodHover))
}

func TestNormalizeCapabilities_StructSync(t *testing.T) {
	caps, err := NormalizeCapabilities([]byte(`{"textDocumentSync":{"openClose":false,"change":0,"willSave":true,"save":false}}`))
	require.NoError(t, err)
	assert.False(t, caps.Sync.OpenClose)
	assert.Equal(t, SyncNone, caps.Sync.Change)
	assert.True(t, caps.Sync.WillSave)
	assert.False(t, caps.Sync.SaveEnabled)
}

func TestNormalizeCapabilities_Malformed(t *testing.T) {
	for _, raw := range []string{`"hoverProvider"`, `[1,2]`, `{"textDocumentSync":`} {
		caps, err := NormalizeCapabilities([]byte(raw))
		assert.Error(t, err, raw)
		assert.Equal(t, SyncFull, caps.Sync.Change, raw)
		assert.True(t, caps.Sync.OpenClose, raw)
		assert.False(t, caps.Supports(MethodHover), raw)
	}
}

func TestCapabilities_Has(t *testing.T) {
	caps, err := NormalizeCapabilities([]byte(`{
		"completionProvider":{"triggerCharacters":[".",":"]},
		"definitionProvider":false,
		"referencesProvider":null,
		"renameProvider":{"prepareProvider":true}
	}`))
	require.NoError(t, err)
	assert.True(t, caps.Supports(MethodCompletion))
	assert.False(t, caps.Supports(MethodDefinition))
	assert.False(t, caps.Supports(MethodReferences))
	assert.True(t, caps.Supports(MethodRename))
	assert.True(t, caps.Supports(MethodDidOpen), "ungated methods are always allowed")
	assert.False(t, caps.Supports("custom/unknown"))
	assert.Equal(t, []string{".", ":"}, caps.TriggerCharacters())
}

func TestClientState_String(t *testing.T) {
	assert.Equal(t, "STOPPED", StateStopped.String())
	assert.Equal(t, "STARTING", StateStarting.String())
	assert.Equal(t, "RUNNING", StateRunning.String())
	assert.Equal(t, "SHUTTING_DOWN", StateShuttingDown.String())
	assert.Equal(t, "UNKNOWN", ClientState(42).String())
}
