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
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_WriteRead(t *testing.T) {
	var buf bytes.Buffer
	w := NewCodec(nil, &buf)

	msg, err := NewRequest(7, "textDocument/hover", map[string]any{"x": 1})
	require.NoError(t, err)
	require.NoError(t, w.WriteMessage(msg))

	assert.True(t, strings.HasPrefix(buf.String(), "Content-Length: "))
	assert.Contains(t, buf.String(), "\r\n\r\n{")
	assert.Contains(t, buf.String(), `"jsonrpc":"2.0"`)

	r := NewCodec(&buf, nil)
	got, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "textDocument/hover", got.Method)
	id, ok := got.IntID()
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)

	_, err = r.Read()
	assert.Equal(t, io.EOF, err)
}

func TestCodec_ExactLength(t *testing.T) {
	body := `{"id":1,"result":"héllo"}`
	stream := "Content-Length: " + itoa(len(body)) + "\r\nContent-Type: application/vscode-jsonrpc; charset=utf-8\r\n\r\n" + body + body

	r := NewCodec(strings.NewReader(stream), nil)
	got, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestCodec_FramingErrors(t *testing.T) {
	tests := []struct {
		name   string
		stream string
	}{
		{"missing length", "Content-Type: x\r\n\r\n{}"},
		{"bad length", "Content-Length: abc\r\n\r\n"},
		{"negative length", "Content-Length: -4\r\n\r\n"},
		{"no colon", "garbage\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCodec(strings.NewReader(tt.stream), nil).Read()
			assert.True(t, errors.Is(err, ErrFraming), "got %v", err)
		})
	}
}

func TestCodec_RecoversAfterBadFrame(t *testing.T) {
	good := `{"method":"ok"}`
	stream := "Content-Length: zz\r\n\r\n" + "Content-Length: " + itoa(len(good)) + "\r\n\r\n" + good

	r := NewCodec(strings.NewReader(stream), nil)
	_, err := r.Read()
	require.True(t, errors.Is(err, ErrFraming))

	msg, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Method)
}

func TestCodec_InvalidJSONBody(t *testing.T) {
	stream := "Content-Length: 3\r\n\r\n{x}"
	_, err := NewCodec(strings.NewReader(stream), nil).ReadMessage()
	assert.True(t, errors.Is(err, ErrFraming))
}

func TestCodec_TruncatedBody(t *testing.T) {
	_, err := NewCodec(strings.NewReader("Content-Length: 10\r\n\r\n{}"), nil).Read()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrFraming))
}

func TestMessage_Classification(t *testing.T) {
	notif, err := NewNotification("textDocument/publishDiagnostics", map[string]any{})
	require.NoError(t, err)
	assert.True(t, notif.IsNotification())
	assert.False(t, notif.IsRequest())

	req, err := NewRequest(3, "workspace/configuration", nil)
	require.NoError(t, err)
	assert.True(t, req.IsRequest())
	assert.Nil(t, req.Params)

	res, err := NewResult(IntID(3), nil)
	require.NoError(t, err)
	assert.True(t, res.IsResponse())
	assert.Equal(t, "null", string(res.Result))

	errResp := NewErrorResponse(json.RawMessage(`"abc"`), CodeMethodNotFound, "nope")
	assert.True(t, errResp.IsResponse())
	_, ok := errResp.IntID()
	assert.False(t, ok)

	ready := ServerReady()
	assert.True(t, ready.IsServerReady())
	assert.Equal(t, `{}`, string(ready.Params))
}

func TestMessage_NullResultSurvivesDecode(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":4,"result":null}`), &msg))
	assert.True(t, msg.IsResponse())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitServerDied, ExitCode(ErrServerExited))
	assert.Equal(t, ExitServerDied, ExitCode(errors.Join(errors.New("x"), ErrServerExited)))
	assert.Equal(t, ExitFailure, ExitCode(ErrProbeTimeout))
}

func TestServerSpec_Validate(t *testing.T) {
	assert.NoError(t, ServerSpec{Command: []string{"pylsp"}, Stdio: true}.Validate())
	assert.NoError(t, ServerSpec{External: true, Port: 2087}.Validate())
	assert.True(t, errors.Is(ServerSpec{External: true, Stdio: true}.Validate(), ErrInvalidSpec))
	assert.True(t, errors.Is(ServerSpec{Stdio: true}.Validate(), ErrInvalidSpec))
	assert.True(t, errors.Is(ServerSpec{Command: []string{"srv"}}.Validate(), ErrInvalidSpec))
}

func TestServerSpec_Args(t *testing.T) {
	spec := ServerSpec{
		Command: []string{"pylsp", "-v"},
		Stdio:   true,
		LogFile: "/tmp/python.log",
		Folder:  "/work",
		Debug:   2,
	}
	args := spec.Args(5001, 5002)

	assert.Equal(t, []string{
		"--zmq-in-port", "5001",
		"--zmq-out-port", "5002",
		"--transport-debug", "2",
		"--server-log-file", "/tmp/python.log",
		"--folder", "/work",
		"--stdio-server",
		"--", "pylsp", "-v",
	}, args)
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
