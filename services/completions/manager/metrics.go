// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// fanoutsTotal counts fan-outs by method
	fanoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aleutian_completions_fanouts_total",
		Help: "Requests fanned out to providers by method",
	}, []string{"method"})

	// fanoutDuration tracks fan-out latency by method and outcome
	fanoutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aleutian_completions_fanout_duration_seconds",
		Help:    "Time from fan-out to merged result",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
	}, []string{"method", "outcome"})

	// timeoutsTotal counts fan-outs cut short by the deadline
	timeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aleutian_completions_timeouts_total",
		Help: "Fan-outs that hit the request deadline",
	}, []string{"method"})

	// supersededTotal counts requests replaced by a newer one
	supersededTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aleutian_completions_superseded_total",
		Help: "Requests superseded for the same file and method",
	}, []string{"method"})

	// lateReplies counts replies dropped after their ticket closed
	lateReplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aleutian_completions_late_replies_total",
		Help: "Provider replies discarded after the request finished",
	}, []string{"provider"})

	// providerStarts counts provider starts by result
	providerStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aleutian_completions_provider_starts_total",
		Help: "Provider start attempts",
	}, []string{"provider", "result"})

	// restartsTotal counts crash restarts by language
	restartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aleutian_completions_restarts_total",
		Help: "Language clients restarted after a crash",
	}, []string{"language"})

	// configChanges counts applied configuration changes by kind
	configChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aleutian_completions_config_changes_total",
		Help: "Per-language configuration changes applied",
	}, []string{"kind"})

	// openDocuments tracks documents open in the registry
	openDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aleutian_completions_open_documents",
		Help: "Documents currently open",
	})

	// diagnosticsForwarded counts diagnostics pushed to editors
	diagnosticsForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aleutian_completions_diagnostics_forwarded_total",
		Help: "publishDiagnostics forwarded to editors by provider",
	}, []string{"provider"})

	// watchedFileEvents counts file events sent to clients
	watchedFileEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aleutian_completions_watched_file_events_total",
		Help: "workspace/didChangeWatchedFiles events by change type",
	}, []string{"type"})
)
