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
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianComplete/services/completions/manager"
)

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{Status: "ok", Version: s.version}
	select {
	case <-s.backend.Done():
		resp.Status = "shutting_down"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	default:
	}

	providers := s.backend.Providers()
	resp.Providers = len(providers)
	for _, p := range providers {
		if p.Status == manager.StatusRunning.String() {
			resp.Running++
		}
	}
	resp.Documents = len(s.backend.Documents())
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": s.backend.Providers()})
}

func (s *Server) handleStartProvider(c *gin.Context) {
	if err := s.backend.StartProvider(c.Request.Context(), c.Param("name")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStopProvider(c *gin.Context) {
	if err := s.backend.StopProvider(c.Param("name")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDocuments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"documents": s.backend.Documents()})
}

func (s *Server) handleOpen(c *gin.Context) {
	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", RequestID: c.GetString(requestIDHeader)})
		return
	}
	if err := s.backend.Open(req.Path, req.Language, req.Version, req.Text, remoteEditor{}); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleChange(c *gin.Context) {
	var req ChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", RequestID: c.GetString(requestIDHeader)})
		return
	}
	if err := s.backend.Change(req.Path, req.Version, req.Text); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClose(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "path is required", RequestID: c.GetString(requestIDHeader)})
		return
	}
	if err := s.backend.Close(path, remoteEditor{}); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDiagnostics(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "path is required", RequestID: c.GetString(requestIDHeader)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "diagnostics": s.backend.Diagnostics(path)})
}

func (s *Server) handleRequest(c *gin.Context) {
	var req FeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", RequestID: c.GetString(requestIDHeader)})
		return
	}
	if req.Line < 0 || req.Column < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     fmt.Sprintf("invalid position %d:%d", req.Line, req.Column),
			RequestID: c.GetString(requestIDHeader),
		})
		return
	}

	res, err := s.backend.Request(c.Request.Context(), manager.Request{
		Method:             req.Method,
		Path:               req.Path,
		Line:               req.Line,
		Column:             req.Column,
		IncludeDeclaration: req.IncludeDeclaration,
		NewName:            req.NewName,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
