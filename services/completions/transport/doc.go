// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transport isolates a language server behind a proxy process.
//
// The proxy sits between two wires:
//
//	host ──(in link: requests)──────▶ proxy ──(Content-Length framing)──▶ server
//	host ◀─(out link: responses)──── proxy ◀─(Content-Length framing)─── server
//
// The host binds two loopback ports and the proxy dials both. Each link is a
// message-framed websocket carrying one JSON object per frame, so the host
// never parses LSP framing. Once the server is confirmed alive the proxy
// posts a {"id":-1,"method":"server_ready"} sentinel on the out link.
//
// The proxy never retries. Framing errors are logged and the message is
// discarded. When the server exits the proxy exits with ExitServerDied so
// the host can restart it.
//
// Host side, a Transport runs the proxy either as the lsp-transport binary
// (Process) or on a goroutine (Local). Both satisfy the same contract used
// by the LSP client.
package transport
