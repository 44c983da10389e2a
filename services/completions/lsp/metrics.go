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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for LSP client operations.
var (
	tracer = otel.Tracer("aleutian.completions.lsp")
	meter  = otel.Meter("aleutian.completions.lsp")
)

// Metrics for LSP client operations.
var (
	requestLatency metric.Float64Histogram
	requestTotal   metric.Int64Counter
	serverStarts   metric.Int64Counter
	resultSize     metric.Int64Histogram
	droppedTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		requestLatency, err = meter.Float64Histogram(
			"lsp_client_request_duration_seconds",
			metric.WithDescription("Round-trip time of LSP requests"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestTotal, err = meter.Int64Counter(
			"lsp_client_requests_total",
			metric.WithDescription("LSP requests answered, by method and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		serverStarts, err = meter.Int64Counter(
			"lsp_client_server_starts_total",
			metric.WithDescription("Transport starts, by language and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resultSize, err = meter.Int64Histogram(
			"lsp_client_result_count",
			metric.WithDescription("Number of results in normalized responses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		droppedTotal, err = meter.Int64Counter(
			"lsp_client_dropped_messages_total",
			metric.WithDescription("Server messages dropped (unknown id, unknown uri, cancelled)"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

// startRequestSpan creates a span covering one request round trip.
func startRequestSpan(ctx context.Context, method, language, uri string) trace.Span {
	_, span := tracer.Start(ctx, "lsp.Client."+method,
		trace.WithAttributes(
			attribute.String("lsp.method", method),
			attribute.String("lsp.language", language),
			attribute.String("lsp.uri", uri),
		),
	)
	return span
}

// endRequestSpan finishes a request span.
func endRequestSpan(span trace.Span, count int, err error) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.Int("lsp.result_count", count))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// recordRequestMetrics records one answered request.
func recordRequestMetrics(ctx context.Context, method, language string, duration time.Duration, count int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("language", language),
		attribute.Bool("success", success),
	)
	requestLatency.Record(ctx, duration.Seconds(), attrs)
	requestTotal.Add(ctx, 1, attrs)
	if success {
		resultSize.Record(ctx, int64(count), metric.WithAttributes(attribute.String("method", method)))
	}
}

// recordServerStart records a transport start attempt.
func recordServerStart(ctx context.Context, language string, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	serverStarts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", success),
	))
}

// recordDropped records a dropped server message.
func recordDropped(ctx context.Context, language, reason string) {
	if err := initMetrics(); err != nil {
		return
	}
	droppedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("reason", reason),
	))
}
