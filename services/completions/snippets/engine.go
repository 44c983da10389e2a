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
	"log/slog"
	"sync"
	"sync/atomic"
)

// Edit is a buffer change reported by the editor: the range [Start, End)
// as it was before the change was replaced with Text.
type Edit struct {
	Start Point
	End   Point
	Text  string
}

// EngineOptions configure an Engine.
type EngineOptions struct {
	// Editor receives inserted text and selections. Required.
	Editor Editor

	// Variables resolves $NAME references. Nil leaves every variable
	// unknown.
	Variables VariableResolver

	Logger *slog.Logger
}

// Engine runs interactive snippet sessions on one editor buffer.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Editor callbacks made while
//	the engine is writing to the buffer must not call back into HandleEdit
//	or CursorMoved; such calls are ignored.
type Engine struct {
	editor Editor
	vars   VariableResolver
	logger *slog.Logger

	// mod guards the session. inEdit is set while the engine itself
	// changes the buffer or processes an edit.
	mod    sync.Mutex
	inEdit atomic.Bool

	root   *Node
	origin Point
	index  spatialIndex
	active int
}

// NewEngine creates an engine with no active snippet.
func NewEngine(opts EngineOptions) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		editor: opts.Editor,
		vars:   opts.Variables,
		logger: opts.Logger.With(slog.String("component", "snippets")),
	}
}

// Active reports whether a snippet session is running.
func (e *Engine) Active() bool {
	e.mod.Lock()
	defer e.mod.Unlock()
	return e.root != nil
}

// Root returns the AST of the active snippet, nil when inactive. The tree
// must not be modified.
func (e *Engine) Root() *Node {
	e.mod.Lock()
	defer e.mod.Unlock()
	return e.root
}

// ActiveNumber returns the tabstop number being edited.
func (e *Engine) ActiveNumber() (int, bool) {
	e.mod.Lock()
	defer e.mod.Unlock()
	return e.activeNumber()
}

func (e *Engine) activeNumber() (int, bool) {
	if e.root == nil {
		return 0, false
	}
	nums := e.root.Numbers()
	if len(nums) == 0 {
		return 0, false
	}
	return nums[e.active%len(nums)], true
}

// NodeAt returns the deepest snippet node at p.
func (e *Engine) NodeAt(p Point) *Node {
	e.mod.Lock()
	defer e.mod.Unlock()
	if e.root == nil {
		return nil
	}
	return e.index.lookup(p)
}

// Insert expands src and writes it into the buffer at at, then selects the
// first tabstop. Inserting inside the active snippet nests the new one.
//
// Errors:
//
//	*SyntaxError - src does not parse; nothing is inserted
//	editor errors are returned unchanged
func (e *Engine) Insert(src string, at Point) error {
	e.mod.Lock()
	defer e.mod.Unlock()

	snippet, err := Expand(src, e.vars)
	if err != nil {
		return err
	}

	e.inEdit.Store(true)
	err = e.editor.InsertText(at, snippet.Text())
	e.inEdit.Store(false)
	if err != nil {
		return err
	}

	if e.root != nil && e.root.Contains(at) {
		e.nest(snippet, at)
	} else {
		e.root = snippet
		e.origin = at
		e.active = 0
		e.refresh()
	}
	e.logger.Debug("snippet inserted",
		slog.String("at", at.String()),
		slog.Int("tabstops", len(e.root.Numbers())))
	e.redraw()
	return nil
}

// nest splices snippet into the active session at at. The new tabstops
// follow the enclosing one; later tabstops move up to make room.
func (e *Engine) nest(snippet *Node, at Point) {
	off, ok := e.offsetAt(at)
	if !ok {
		return
	}
	container := e.containerFor(off, off)

	k := 0
	if owner := container.parent; owner != nil && owner.Numbered() {
		k = owner.Number
	} else if num, ok := e.activeNumber(); ok {
		k = num
	}
	if k == 0 {
		k = maxNumber(e.root)
	}

	m := maxNumber(snippet)
	hasExit := len(snippet.Tabstops(0)) > 0
	shift := m
	if hasExit {
		shift++
	}
	e.root.renumber(func(num int) int {
		if num > k {
			return num + shift
		}
		return num
	})
	snippet.renumber(func(num int) int {
		if num == 0 {
			return k + m + 1
		}
		return num + k
	})

	splice(container, off, off, snippet.Children)
	e.refresh()
	if shift > 0 {
		e.selectNumber(k + 1)
	}
}

// Next moves to the following tabstop, wrapping after the last.
func (e *Engine) Next() error {
	return e.step(1)
}

// Prev moves to the preceding tabstop, wrapping before the first.
func (e *Engine) Prev() error {
	return e.step(-1)
}

func (e *Engine) step(delta int) error {
	e.mod.Lock()
	defer e.mod.Unlock()
	if e.root == nil {
		return ErrNotActive
	}
	n := len(e.root.Numbers())
	if n == 0 {
		return nil
	}
	e.active = ((e.active+delta)%n + n) % n
	e.redraw()
	return nil
}

// Exit ends the session and releases the index.
func (e *Engine) Exit() {
	e.mod.Lock()
	defer e.mod.Unlock()
	e.exit()
}

func (e *Engine) exit() {
	if e.root == nil {
		return
	}
	e.root = nil
	e.index = spatialIndex{}
	e.active = 0
	e.logger.Debug("snippet session ended")
}

// Selection returns the segments of the active tabstop.
func (e *Engine) Selection() []Segment {
	e.mod.Lock()
	defer e.mod.Unlock()
	return e.selection()
}

func (e *Engine) selection() []Segment {
	num, ok := e.activeNumber()
	if !ok {
		return nil
	}
	var segs []Segment
	for _, node := range e.root.Tabstops(num) {
		segs = append(segs, node.Segments...)
	}
	return segs
}

// HandleEdit updates the session after the editor changed the buffer.
// Edits before the snippet move it, edits after it are ignored and edits
// that cross its boundary end the session.
func (e *Engine) HandleEdit(ed Edit) {
	if !e.inEdit.CompareAndSwap(false, true) {
		return
	}
	defer e.inEdit.Store(false)

	e.mod.Lock()
	defer e.mod.Unlock()
	if e.root == nil {
		return
	}

	start, end := e.root.Start, e.root.End
	switch {
	case ed.Start.Before(start):
		if !start.Before(ed.End) {
			e.origin = shiftPoint(e.origin, ed)
			e.refresh()
			return
		}
		e.exit()
		return
	case end.Before(ed.Start):
		return
	case end.Before(ed.End):
		e.exit()
		return
	}

	from, ok1 := e.offsetAt(ed.Start)
	to, ok2 := e.offsetAt(ed.End)
	if !ok1 || !ok2 || to < from {
		e.exit()
		return
	}

	prev, _ := e.activeNumber()
	container := e.containerFor(from, to)
	dissolved := dissolveOverlaps(container, from, to)
	splice(container, from, to, leavesOf(ed.Text))

	if dissolved {
		e.root.link()
		mapping := e.root.compactNumbers()
		e.refresh()
		e.selectNumber(mapping[prev])
	} else {
		e.refresh()
	}
	e.redraw()
}

// CursorMoved follows the editor cursor: leaving the snippet ends the
// session and entering a tabstop makes it active.
func (e *Engine) CursorMoved(p Point) {
	if e.inEdit.Load() {
		return
	}
	e.mod.Lock()
	defer e.mod.Unlock()
	if e.root == nil {
		return
	}
	if !e.root.Contains(p) {
		e.exit()
		return
	}
	if node := e.index.lookupFunc(p, (*Node).Numbered); node != nil {
		e.selectNumber(node.Number)
	}
}

// refresh relinks and lays out the tree and rebuilds the index.
func (e *Engine) refresh() {
	e.root.link()
	e.root.layout(e.origin)
	e.index.rebuild(e.root)
}

func (e *Engine) selectNumber(num int) {
	for i, n := range e.root.Numbers() {
		if n == num {
			e.active = i
			return
		}
	}
}

func (e *Engine) redraw() {
	segs := e.selection()
	e.inEdit.Store(true)
	e.editor.SetSelection(segs)
	e.inEdit.Store(false)
}

// offsetAt converts a buffer position into a byte offset in the snippet
// text.
func (e *Engine) offsetAt(p Point) (int, bool) {
	rel := Point{Line: p.Line - e.origin.Line, Column: p.Column}
	if rel.Line == 0 {
		rel.Column -= e.origin.Column
	}
	if rel.Line < 0 || rel.Column < 0 {
		return 0, false
	}
	off, err := offsetOf(e.root.Text(), rel)
	return off, err == nil
}

// containerFor finds the innermost text sequence that holds [from, to].
// At a boundary the snippet holding the active tabstop wins.
func (e *Engine) containerFor(from, to int) *Node {
	active, hasActive := e.activeNumber()
	cur := e.root
	for {
		var next *Node
		for _, c := range cur.Children {
			if !c.IsSnippet() || from < c.startOff || to > c.endOff {
				continue
			}
			strict := from > c.startOff && to < c.endOff
			if strict || (hasActive && holdsNumber(c, active)) {
				next = c.Content()
				break
			}
		}
		if next == nil {
			return cur
		}
		cur = next
	}
}

func holdsNumber(n *Node, num int) bool {
	found := false
	n.Walk(func(c *Node) bool {
		if c.Numbered() && c.Number == num {
			found = true
		}
		return !found
	})
	return found
}

func maxNumber(n *Node) int {
	top := 0
	for _, num := range n.Numbers() {
		if num > top {
			top = num
		}
	}
	return top
}

// dissolveOverlaps replaces child snippets that the range [from, to) cuts
// through, or that a deletion ending at their first position precedes, by
// their content. It reports whether anything was dissolved.
func dissolveOverlaps(container *Node, from, to int) bool {
	dissolved := false
	for changed := true; changed; {
		changed = false
		for i, c := range container.Children {
			if !c.IsSnippet() {
				continue
			}
			s, t := c.startOff, c.endOff
			cutsStart := from < s && to > s && to < t
			cutsEnd := from > s && from < t && to > t
			precedes := from < s && to == s
			if !cutsStart && !cutsEnd && !precedes {
				continue
			}
			var inner []*Node
			if content := c.Content(); content != nil {
				inner = content.Children
			}
			children := append([]*Node{}, container.Children[:i]...)
			children = append(children, inner...)
			children = append(children, container.Children[i+1:]...)
			container.Children = children
			dissolved, changed = true, true
			break
		}
	}
	return dissolved
}

// splice replaces the bytes [from, to) of container's text with nodes.
// Leaves cut by the range are split; snippets inside it are dropped.
func splice(container *Node, from, to int, nodes []*Node) {
	var before, after []*Node
	for _, c := range container.Children {
		switch {
		case c.endOff <= from:
			before = append(before, c)
		case c.startOff >= to:
			after = append(after, c)
		case c.Kind == NodeLeaf:
			if from > c.startOff {
				before = append(before, &Node{Kind: NodeLeaf, Token: c.Token, Value: c.Value[:from-c.startOff]})
			}
			if to < c.endOff {
				after = append(after, &Node{Kind: NodeLeaf, Token: c.Token, Value: c.Value[to-c.startOff:]})
			}
		}
	}
	children := make([]*Node, 0, len(before)+len(nodes)+len(after))
	children = append(children, before...)
	children = append(children, nodes...)
	children = append(children, after...)
	container.Children = mergeLeaves(children)
}

// shiftPoint moves p, which lies after the edited range, by the edit.
func shiftPoint(p Point, ed Edit) Point {
	newEnd := ed.Start.Advance(ed.Text)
	if p.Line == ed.End.Line {
		return Point{Line: newEnd.Line, Column: newEnd.Column + p.Column - ed.End.Column}
	}
	return Point{Line: p.Line + newEnd.Line - ed.End.Line, Column: p.Column}
}
