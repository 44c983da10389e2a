// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// eventsTotal counts accepted events by kind
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aleutian_completions_watcher_events_total",
		Help: "File events accepted by the workspace watcher",
	}, []string{"kind"})

	// batchesTotal counts delivered batches by kind
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aleutian_completions_watcher_batches_total",
		Help: "Throttled event batches delivered",
	}, []string{"kind"})

	// scanDuration tracks polling scans
	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aleutian_completions_watcher_scan_duration_seconds",
		Help:    "Duration of one polling scan of the workspace",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	// backendErrors counts errors reported by the fsnotify backend
	backendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aleutian_completions_watcher_errors_total",
		Help: "Errors reported by the watcher backend",
	})
)
