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
	"strings"

	"github.com/tidwall/gjson"
)

// Normalizers turn the many shapes a server may return into one Go type.
// They never fail: an unexpected shape yields the empty value.

// NormalizeCompletion accepts a CompletionItem[] or a CompletionList and
// returns items with every core field populated.
func NormalizeCompletion(raw []byte) []CompletionItem {
	r := gjson.ParseBytes(raw)
	if !r.IsArray() {
		r = r.Get("items")
	}
	if !r.IsArray() {
		return nil
	}

	items := make([]CompletionItem, 0, len(r.Array()))
	r.ForEach(func(_, v gjson.Result) bool {
		label := v.Get("label").String()
		if label == "" {
			return true
		}
		item := CompletionItem{
			Label:            label,
			Kind:             CompletionItemKind(v.Get("kind").Int()),
			Detail:           v.Get("detail").String(),
			Documentation:    markupText(v.Get("documentation")),
			SortText:         v.Get("sortText").String(),
			FilterText:       v.Get("filterText").String(),
			InsertText:       v.Get("insertText").String(),
			InsertTextFormat: InsertTextFormat(v.Get("insertTextFormat").Int()),
		}
		if te := v.Get("textEdit"); te.Exists() {
			edit := TextEdit{NewText: te.Get("newText").String()}
			rng := te.Get("range")
			if !rng.Exists() {
				rng = te.Get("replace")
			}
			edit.Range = parseRange(rng)
			item.TextEdit = &edit
			if item.InsertText == "" {
				item.InsertText = edit.NewText
			}
		}
		items = append(items, item.WithDefaults())
		return true
	})
	return items
}

// NormalizeSignatureHelp collapses a SignatureHelp to its active signature.
// Returns nil when there are no signatures.
func NormalizeSignatureHelp(raw []byte) *SignatureInformation {
	r := gjson.ParseBytes(raw)
	sigs := r.Get("signatures").Array()
	if len(sigs) == 0 {
		return nil
	}

	active := int(r.Get("activeSignature").Int())
	if active < 0 || active >= len(sigs) {
		active = 0
	}
	sig := sigs[active]

	info := &SignatureInformation{
		Label:           sig.Get("label").String(),
		Documentation:   markupText(sig.Get("documentation")),
		ActiveParameter: int(r.Get("activeParameter").Int()),
	}
	if ap := sig.Get("activeParameter"); ap.Exists() {
		info.ActiveParameter = int(ap.Int())
	}
	for _, p := range sig.Get("parameters").Array() {
		info.Parameters = append(info.Parameters, ParameterInformation{
			Label:         parameterLabel(info.Label, p.Get("label")),
			Documentation: markupText(p.Get("documentation")),
		})
	}
	return info
}

// parameterLabel resolves a label that is either a string or [start, end]
// UTF-16 offsets into the signature label.
func parameterLabel(signature string, label gjson.Result) string {
	if !label.IsArray() {
		return label.String()
	}
	bounds := label.Array()
	if len(bounds) != 2 {
		return ""
	}
	start, end := utf16ToByte(signature, int(bounds[0].Int())), utf16ToByte(signature, int(bounds[1].Int()))
	if start > end {
		return ""
	}
	return signature[start:end]
}

func utf16ToByte(s string, units int) int {
	n := 0
	for i, r := range s {
		if n >= units {
			return i
		}
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return len(s)
}

// NormalizeHover extracts the readable text of a Hover.
func NormalizeHover(raw []byte) string {
	return strings.TrimSpace(markupText(gjson.ParseBytes(raw).Get("contents")))
}

// markupText flattens string | MarkedString | MarkupContent | list thereof.
func markupText(v gjson.Result) string {
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return ""
	case v.Type == gjson.String:
		return v.String()
	case v.IsArray():
		var parts []string
		for _, e := range v.Array() {
			if s := markupText(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n\n")
	case v.IsObject():
		return v.Get("value").String()
	default:
		return v.String()
	}
}

// NormalizeDefinition picks the first Location or LocationLink.
func NormalizeDefinition(raw []byte) *Location {
	locs := NormalizeLocations(raw)
	if len(locs) == 0 {
		return nil
	}
	return &locs[0]
}

// NormalizeLocations accepts Location, Location[] or LocationLink[].
func NormalizeLocations(raw []byte) []Location {
	r := gjson.ParseBytes(raw)
	var entries []gjson.Result
	switch {
	case r.IsArray():
		entries = r.Array()
	case r.IsObject():
		entries = []gjson.Result{r}
	default:
		return nil
	}

	out := make([]Location, 0, len(entries))
	for _, e := range entries {
		uri := e.Get("uri").String()
		rng := e.Get("range")
		if uri == "" {
			uri = e.Get("targetUri").String()
			rng = e.Get("targetSelectionRange")
			if !rng.Exists() {
				rng = e.Get("targetRange")
			}
		}
		if uri == "" {
			continue
		}
		out = append(out, Location{URI: uri, Path: URIToPath(uri), Range: parseRange(rng)})
	}
	return out
}

// NormalizeSymbols flattens SymbolInformation[] or DocumentSymbol[].
func NormalizeSymbols(raw []byte, uri string) []Symbol {
	var out []Symbol
	var walk func(v gjson.Result, container string)
	walk = func(v gjson.Result, container string) {
		v.ForEach(func(_, s gjson.Result) bool {
			sym := Symbol{
				Name:          s.Get("name").String(),
				Kind:          int(s.Get("kind").Int()),
				ContainerName: s.Get("containerName").String(),
			}
			if loc := s.Get("location"); loc.Exists() {
				u := loc.Get("uri").String()
				sym.Location = Location{URI: u, Path: URIToPath(u), Range: parseRange(loc.Get("range"))}
			} else {
				sym.ContainerName = container
				sym.Location = Location{URI: uri, Path: URIToPath(uri), Range: parseRange(s.Get("range"))}
			}
			out = append(out, sym)
			if children := s.Get("children"); children.IsArray() {
				walk(children, sym.Name)
			}
			return true
		})
	}
	walk(gjson.ParseBytes(raw), "")
	return out
}

// NormalizeTextEdits decodes a TextEdit[].
func NormalizeTextEdits(raw []byte) []TextEdit {
	return parseEdits(gjson.ParseBytes(raw))
}

// NormalizeWorkspaceEdit merges changes and documentChanges keyed by path.
// Returns nil for a null edit.
func NormalizeWorkspaceEdit(raw []byte) *WorkspaceEdit {
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return nil
	}
	edit := &WorkspaceEdit{Changes: map[string][]TextEdit{}}
	r.Get("changes").ForEach(func(k, v gjson.Result) bool {
		path := URIToPath(k.String())
		edit.Changes[path] = append(edit.Changes[path], parseEdits(v)...)
		return true
	})
	r.Get("documentChanges").ForEach(func(_, v gjson.Result) bool {
		uri := v.Get("textDocument.uri").String()
		if uri == "" {
			// create/rename/delete file operations are not applied here
			return true
		}
		path := URIToPath(uri)
		edit.Changes[path] = append(edit.Changes[path], parseEdits(v.Get("edits"))...)
		return true
	})
	return edit
}

func parseEdits(v gjson.Result) []TextEdit {
	if !v.IsArray() {
		return nil
	}
	out := make([]TextEdit, 0, len(v.Array()))
	v.ForEach(func(_, e gjson.Result) bool {
		out = append(out, TextEdit{Range: parseRange(e.Get("range")), NewText: e.Get("newText").String()})
		return true
	})
	return out
}

func parseRange(v gjson.Result) Range {
	return Range{
		Start: Position{Line: int(v.Get("start.line").Int()), Character: int(v.Get("start.character").Int())},
		End:   Position{Line: int(v.Get("end.line").Int()), Character: int(v.Get("end.character").Int())},
	}
}

// NormalizeDiagnostics decodes a publishDiagnostics payload.
func NormalizeDiagnostics(raw []byte) PublishDiagnosticsParams {
	r := gjson.ParseBytes(raw)
	p := PublishDiagnosticsParams{URI: r.Get("uri").String(), Diagnostics: []Diagnostic{}}
	if v := r.Get("version"); v.Exists() && v.Type == gjson.Number {
		n := int(v.Int())
		p.Version = &n
	}
	r.Get("diagnostics").ForEach(func(_, d gjson.Result) bool {
		diag := Diagnostic{
			Range:    parseRange(d.Get("range")),
			Severity: DiagnosticSeverity(d.Get("severity").Int()),
			Source:   d.Get("source").String(),
			Message:  d.Get("message").String(),
		}
		if c := d.Get("code"); c.Exists() {
			diag.Code = c.Value()
		}
		p.Diagnostics = append(p.Diagnostics, diag)
		return true
	})
	return p
}
