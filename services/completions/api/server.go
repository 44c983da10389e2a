// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianComplete/services/completions/manager"
	"github.com/AleutianAI/AleutianComplete/services/completions/telemetry"
)

const requestIDHeader = "X-Request-ID"

// Options configure a Server.
type Options struct {
	Backend Backend

	// Addr is the listen address, e.g. "127.0.0.1:12390".
	Addr string

	// Version is reported by /v1/health.
	Version string

	// Tracing adds a span per request.
	Tracing bool

	Logger *slog.Logger
}

// Server is the HTTP status API.
type Server struct {
	backend Backend
	addr    string
	version string
	engine  *gin.Engine
	logger  *slog.Logger
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		backend: opts.Backend,
		addr:    opts.Addr,
		version: opts.Version,
		logger:  logger.With(slog.String("component", "api")),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.accessLog())
	if opts.Tracing {
		r.Use(telemetry.Middleware("aleutian-complete"))
	}

	r.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	v1 := r.Group("/v1")
	v1.GET("/health", s.handleHealth)
	v1.GET("/providers", s.handleProviders)
	v1.POST("/providers/:name/start", s.handleStartProvider)
	v1.POST("/providers/:name/stop", s.handleStopProvider)
	v1.GET("/documents", s.handleDocuments)
	v1.POST("/documents", s.handleOpen)
	v1.PUT("/documents", s.handleChange)
	v1.DELETE("/documents", s.handleClose)
	v1.GET("/diagnostics", s.handleDiagnostics)
	v1.POST("/request", s.handleRequest)

	s.engine = r
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
//
// Errors:
//
//	listen errors; http.ErrServerClosed is not returned
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("status api listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown status api: %w", err)
	}
	return nil
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", c.GetString(requestIDHeader)),
		)
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		telemetry.RecordError(c.Request.Context(), err)
		s.logger.Warn("request failed", slog.String("path", c.Request.URL.Path), slog.String("error", err.Error()))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), RequestID: c.GetString(requestIDHeader)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, manager.ErrUnknownProvider), errors.Is(err, manager.ErrDocumentNotOpen):
		return http.StatusNotFound
	case errors.Is(err, manager.ErrUnknownMethod), errors.Is(err, manager.ErrNoLanguage):
		return http.StatusBadRequest
	case errors.Is(err, manager.ErrStaleVersion):
		return http.StatusConflict
	case errors.Is(err, manager.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
