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

import "github.com/tidwall/rtree"

// spatialIndex answers "which node is at this position" for a laid out
// snippet. Every segment is stored as a flat rectangle with the column on
// the x axis and the line on the y axis.
type spatialIndex struct {
	tree  rtree.RTreeG[int]
	nodes []*Node
}

func rect(seg Segment) (min, max [2]float64) {
	min = [2]float64{float64(seg.Start.Column), float64(seg.Start.Line)}
	max = [2]float64{float64(seg.End.Column), float64(seg.End.Line)}
	return min, max
}

// rebuild indexes root and everything below it.
func (ix *spatialIndex) rebuild(root *Node) {
	ix.tree = rtree.RTreeG[int]{}
	ix.nodes = ix.nodes[:0]
	root.Walk(func(n *Node) bool {
		if !n.indexable {
			return true
		}
		id := len(ix.nodes)
		ix.nodes = append(ix.nodes, n)
		for _, seg := range n.Segments {
			min, max := rect(seg)
			ix.tree.Insert(min, max, id)
		}
		return true
	})
}

// lookup returns the deepest node containing p. When two nodes at the same
// depth touch at p the one further left wins.
func (ix *spatialIndex) lookup(p Point) *Node {
	return ix.lookupFunc(p, func(*Node) bool { return true })
}

// lookupFunc is lookup restricted to nodes accepted by keep.
func (ix *spatialIndex) lookupFunc(p Point, keep func(*Node) bool) *Node {
	at := [2]float64{float64(p.Column), float64(p.Line)}
	best := -1
	ix.tree.Search(at, at, func(_, _ [2]float64, id int) bool {
		if !keep(ix.nodes[id]) {
			return true
		}
		if best < 0 || ix.nodes[id].depth > ix.nodes[best].depth ||
			(ix.nodes[id].depth == ix.nodes[best].depth && id < best) {
			best = id
		}
		return true
	})
	if best < 0 {
		return nil
	}
	return ix.nodes[best]
}

func (ix *spatialIndex) size() int { return len(ix.nodes) }
