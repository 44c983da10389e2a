// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves the completion host's status and request surface
// over HTTP with gin.
//
// Routes:
//
//	GET    /v1/health                      liveness and provider counts
//	GET    /v1/providers                   providers in priority order
//	POST   /v1/providers/:name/start       start a provider
//	POST   /v1/providers/:name/stop        stop a provider
//	GET    /v1/documents                   open documents with versions
//	POST   /v1/documents                   open a document
//	PUT    /v1/documents                   change a document
//	DELETE /v1/documents?path=...          close a document
//	GET    /v1/diagnostics?path=...        diagnostics per provider
//	POST   /v1/request                     fan out one feature request
//	GET    /metrics                        Prometheus registry
//
// Every response carries an X-Request-ID header.
package api
