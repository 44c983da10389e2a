// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snippets

import (
	"fmt"
	"sync"
)

// Editor is the buffer a snippet session writes into.
type Editor interface {
	// InsertText writes text at a position.
	InsertText(at Point, text string) error

	// SetSelection highlights the given ranges. An empty segment is a
	// cursor.
	SetSelection(segs []Segment)
}

// TextBuffer is an in-memory Editor. It is safe for concurrent use.
type TextBuffer struct {
	mu        sync.Mutex
	text      string
	selection []Segment
}

// NewTextBuffer returns a buffer holding text.
func NewTextBuffer(text string) *TextBuffer {
	return &TextBuffer{text: text}
}

// Text returns the buffer contents.
func (b *TextBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Selection returns the last selection set.
func (b *TextBuffer) Selection() []Segment {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Segment(nil), b.selection...)
}

// SelectedText returns the text covered by each selected segment.
func (b *TextBuffer) SelectedText() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.selection))
	for _, seg := range b.selection {
		start, err1 := offsetOf(b.text, seg.Start)
		end, err2 := offsetOf(b.text, seg.End)
		if err1 != nil || err2 != nil {
			out = append(out, "")
			continue
		}
		out = append(out, b.text[start:end])
	}
	return out
}

// InsertText implements Editor.
func (b *TextBuffer) InsertText(at Point, text string) error {
	return b.Replace(at, at, text)
}

// SetSelection implements Editor.
func (b *TextBuffer) SetSelection(segs []Segment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selection = append([]Segment(nil), segs...)
}

// Replace swaps the range [start, end) for text.
func (b *TextBuffer) Replace(start, end Point, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	from, err := offsetOf(b.text, start)
	if err != nil {
		return err
	}
	to, err := offsetOf(b.text, end)
	if err != nil {
		return err
	}
	if to < from {
		return fmt.Errorf("replace: end %s before start %s", end, start)
	}
	b.text = b.text[:from] + text + b.text[to:]
	return nil
}

// offsetOf maps a point to a byte offset in text. A carriage return takes
// no columns, so the end of a CRLF line maps to the offset before "\r\n".
func offsetOf(text string, p Point) (int, error) {
	line, col := 0, 0
	for i, r := range text {
		if line == p.Line && col == p.Column {
			return i, nil
		}
		switch r {
		case '\n':
			if line == p.Line {
				return 0, fmt.Errorf("column %d past end of line %d", p.Column, p.Line)
			}
			line++
			col = 0
		case '\r':
		default:
			col++
		}
	}
	if line == p.Line && col == p.Column {
		return len(text), nil
	}
	return 0, fmt.Errorf("position %s outside buffer", p)
}
