// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fallback

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// messagesTotal counts processed worker messages by type
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aleutian_completions_fallback_messages_total",
		Help: "Fallback worker messages processed by type",
	}, []string{"type"})

	// patchFailures counts patch hunks that did not apply
	patchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aleutian_completions_fallback_patch_failures_total",
		Help: "Patch hunks that failed to apply to the mirror",
	})

	// mirroredFiles tracks files held by the worker
	mirroredFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aleutian_completions_fallback_files",
		Help: "Files currently mirrored by the fallback worker",
	})

	// tokensReturned tracks tokens per retrieve
	tokensReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aleutian_completions_fallback_tokens",
		Help:    "Tokens returned per retrieve",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 5000},
	})
)
