// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry configures OpenTelemetry for the completion host.
//
// Init installs a TracerProvider and a MeterProvider whose exporters are
// chosen by configuration. The LSP client records one span and one latency
// sample per request through the global providers, so nothing else has to
// be wired once Init returned.
//
// # Exporters
//
//   - prometheus: metrics on the default Prometheus registry, traces off
//   - otlp: traces over OTLP gRPC, metrics on the Prometheus registry
//   - stdout: traces and metrics pretty-printed to stdout
//   - none: both off
//
// The manager and watcher register their counters with promauto, so the
// Prometheus registry always carries them; /metrics serves that registry.
//
// # Thread Safety
//
// Init is called once at startup. Middleware and the span helpers are safe
// for concurrent use.
package telemetry
