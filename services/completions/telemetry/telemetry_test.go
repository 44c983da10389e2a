// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/AleutianComplete/services/completions/config"
)

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		in      config.TelemetryConfig
		traces  string
		metrics string
	}{
		{"disabled", config.TelemetryConfig{Exporter: "otlp"}, ExporterNone, ExporterNone},
		{"prometheus", config.TelemetryConfig{Enabled: true, Exporter: "prometheus"}, ExporterNone, ExporterPrometheus},
		{"default", config.TelemetryConfig{Enabled: true}, ExporterNone, ExporterPrometheus},
		{"otlp", config.TelemetryConfig{Enabled: true, Exporter: "otlp"}, ExporterOTLP, ExporterPrometheus},
		{"stdout", config.TelemetryConfig{Enabled: true, Exporter: "stdout"}, ExporterStdout, ExporterStdout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromConfig("svc", "v1", tt.in)
			assert.Equal(t, tt.traces, got.TraceExporter)
			assert.Equal(t, tt.metrics, got.MetricExporter)
			assert.Equal(t, "svc", got.ServiceName)
		})
	}
}

func TestFromConfig_DefaultEndpoint(t *testing.T) {
	got := FromConfig("svc", "v1", config.TelemetryConfig{Enabled: true, Exporter: "otlp"})
	assert.Equal(t, "localhost:4317", got.OTLPEndpoint)

	got = FromConfig("svc", "v1", config.TelemetryConfig{Enabled: true, Exporter: "otlp", Endpoint: "collector:4317"})
	assert.Equal(t, "collector:4317", got.OTLPEndpoint)
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := Init(nil, Config{})
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_None(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{TraceExporter: ExporterNone, MetricExporter: ExporterNone})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_Stdout(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{
		ServiceName:    "test",
		TraceExporter:  ExporterStdout,
		MetricExporter: ExporterStdout,
	})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: "zipkin"})
	assert.ErrorIs(t, err, ErrUnknownExporter)

	_, err = Init(context.Background(), Config{MetricExporter: "statsd"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestMiddleware_RecordsSpans(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := gin.New()
	r.Use(Middleware("test"))
	r.GET("/ok/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) {
		RecordError(c.Request.Context(), errors.New("boom"))
		c.Status(http.StatusInternalServerError)
	})

	r.GET("/v1/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/ok/7", "/fail", "/v1/health"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Contains(t, spans[0].Name(), "/ok/:id")
	assert.Contains(t, spans[1].Name(), "/fail")
	assert.Equal(t, "Error", spans[1].Status().Code.String())
	assert.NotEmpty(t, spans[1].Events())
}

func TestRecordError_Nil(t *testing.T) {
	assert.NotPanics(t, func() { RecordError(context.Background(), nil) })
}
