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
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
)

// responseFunc adapts a function to lsp.ResponseTarget for one request.
type responseFunc func(method string, id int64, result any)

// HandleResponse calls f.
func (f responseFunc) HandleResponse(method string, id int64, result any) { f(method, id, result) }

// languageProvider serves one language through an LSP client.
type languageProvider struct {
	language string
	client   *lsp.Client

	// diagnostics is registered on every document this provider opens.
	diagnostics lsp.ResponseTarget
}

func providerName(language string) string { return "lsp:" + language }

func (p *languageProvider) Name() string  { return providerName(p.language) }
func (p *languageProvider) Priority() int { return PriorityLSP }

func (p *languageProvider) Status() Status {
	switch p.client.State() {
	case lsp.StateRunning:
		return StatusRunning
	case lsp.StateStarting:
		return StatusStarting
	default:
		return StatusStopped
	}
}

func (p *languageProvider) Tracks(language string) bool { return language == p.language }

func (p *languageProvider) Supports(language, method string) bool {
	return language == p.language && p.client.Supports(method)
}

func (p *languageProvider) Start(ctx context.Context) error {
	if err := p.client.Start(ctx); err != nil && !errors.Is(err, lsp.ErrAlreadyStarted) {
		return err
	}
	return nil
}

func (p *languageProvider) Stop() error { return p.client.Stop() }

func (p *languageProvider) Sync(ev DocumentEvent) error {
	d := ev.Document
	switch ev.Kind {
	case EventOpen:
		return p.client.DocumentOpen(d.Path, d.Language, d.Version, d.Text, p.diagnostics)
	case EventChange:
		return p.client.DocumentChanged(d.Path, d.Version, d.Text)
	case EventWillSave:
		return p.client.DocumentWillSave(d.Path, ev.Reason)
	case EventDidSave:
		return p.client.DocumentDidSave(d.Path, d.Text)
	case EventClose:
		return p.client.DocumentDidClose(d.Path, p.diagnostics)
	}
	return nil
}

func (p *languageProvider) Send(ctx context.Context, req Request, reply func(any)) (func(), error) {
	target := responseFunc(func(_ string, _ int64, result any) { reply(result) })

	var (
		id  int64
		err error
	)
	switch req.Method {
	case lsp.MethodCompletion:
		id, err = p.client.Completion(ctx, req.Path, req.Line, req.Column, target)
	case lsp.MethodSignatureHelp:
		id, err = p.client.SignatureHelp(ctx, req.Path, req.Line, req.Column, target)
	case lsp.MethodHover:
		id, err = p.client.Hover(ctx, req.Path, req.Line, req.Column, target)
	case lsp.MethodDefinition:
		id, err = p.client.Definition(ctx, req.Path, req.Line, req.Column, target)
	case lsp.MethodReferences:
		id, err = p.client.References(ctx, req.Path, req.Line, req.Column, req.IncludeDeclaration, target)
	case lsp.MethodDocumentSymbol:
		id, err = p.client.DocumentSymbol(ctx, req.Path, target)
	case lsp.MethodFormatting:
		id, err = p.client.Formatting(ctx, req.Path, req.Formatting, target)
	case lsp.MethodRangeFormatting:
		id, err = p.client.RangeFormatting(ctx, req.Path, req.Range, req.Formatting, target)
	case lsp.MethodRename:
		id, err = p.client.Rename(ctx, req.Path, req.Line, req.Column, req.NewName, target)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, req.Method)
	}
	if err != nil {
		return nil, err
	}
	return func() { p.client.Cancel(id) }, nil
}
