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

import "fmt"

// Point is a zero-based buffer position. Columns count runes.
type Point struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Before reports whether p sorts strictly before q.
func (p Point) Before(q Point) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Column < q.Column
}

// Compare returns -1, 0 or 1.
func (p Point) Compare(q Point) int {
	switch {
	case p.Before(q):
		return -1
	case q.Before(p):
		return 1
	}
	return 0
}

func (p Point) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Column) }

// Advance returns the position after writing text at p. A line feed starts
// a new line; a carriage return takes no columns.
func (p Point) Advance(text string) Point {
	for _, r := range text {
		switch r {
		case '\n':
			p.Line++
			p.Column = 0
		case '\r':
		default:
			p.Column++
		}
	}
	return p
}

// Segment is a half-open range [Start, End) on a single line, or a point
// when Start equals End.
type Segment struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// Empty reports whether the segment covers no columns.
func (s Segment) Empty() bool { return s.Start == s.End }

// Contains reports whether p lies in s, treating the end as inclusive so a
// cursor right after the text still belongs to it.
func (s Segment) Contains(p Point) bool {
	return !p.Before(s.Start) && !s.End.Before(p)
}

// layout assigns positions and byte offsets to every node, starting at
// origin. It returns the end position.
func (n *Node) layout(origin Point) Point {
	off := 0
	return n.layoutFrom(origin, &off)
}

func (n *Node) layoutFrom(cur Point, off *int) Point {
	n.Start = cur
	n.startOff = *off
	n.Segments = n.Segments[:0]

	if n.Kind == NodeLeaf {
		n.End = cur.Advance(n.Value)
		*off += len(n.Value)
		n.endOff = *off
		n.indexable = n.Token != TokNewline
		if n.indexable {
			n.Segments = append(n.Segments, Segment{Start: n.Start, End: n.End})
		}
		return n.End
	}

	for _, c := range n.Children {
		cur = c.layoutFrom(cur, off)
		for _, seg := range c.Segments {
			n.addSegment(seg)
		}
	}
	n.End = cur
	n.endOff = *off
	if len(n.Segments) == 0 {
		n.Segments = append(n.Segments, Segment{Start: n.Start, End: n.Start})
	}
	n.indexable = true
	return n.End
}

// addSegment appends seg, extending the last segment when they touch on
// the same line.
func (n *Node) addSegment(seg Segment) {
	if k := len(n.Segments); k > 0 {
		last := &n.Segments[k-1]
		if last.End == seg.Start {
			last.End = seg.End
			return
		}
		if seg.Empty() && last.Start.Line == seg.Start.Line && !seg.Start.Before(last.Start) && !last.End.Before(seg.Start) {
			return
		}
	}
	n.Segments = append(n.Segments, seg)
}

// Contains reports whether p lies inside any segment of n.
func (n *Node) Contains(p Point) bool {
	for _, seg := range n.Segments {
		if seg.Contains(p) {
			return true
		}
	}
	return false
}
