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
	"sort"
	"strings"
)

// NodeKind tags a Node.
type NodeKind int

const (
	// NodeText is a sequence of leaves and snippet nodes.
	NodeText NodeKind = iota

	// NodeLeaf is one token of literal text.
	NodeLeaf

	// NodeTabstop is $1 or ${1}.
	NodeTabstop

	// NodePlaceholder is ${1:content}.
	NodePlaceholder

	// NodeChoice is ${1|a,b|}.
	NodeChoice

	// NodeVariable is $NAME or ${NAME}.
	NodeVariable

	// NodeVariablePlaceholder is ${NAME:default}.
	NodeVariablePlaceholder

	// NodeRegex is ${NAME/regex/format/options}.
	NodeRegex

	// NodeFormatSequence is the format part of a regex node.
	NodeFormatSequence

	// NodeFormatSimple is $1, ${1} or ${1:/upcase}.
	NodeFormatSimple

	// NodeFormatIf is ${1:+text}.
	NodeFormatIf

	// NodeFormatIfElse is ${1:?text:else}.
	NodeFormatIfElse

	// NodeFormatElse is ${1:-else} or ${1:else}.
	NodeFormatElse
)

var nodeKindNames = [...]string{
	NodeText:                "Text",
	NodeLeaf:                "Leaf",
	NodeTabstop:             "Tabstop",
	NodePlaceholder:         "Placeholder",
	NodeChoice:              "Choice",
	NodeVariable:            "Variable",
	NodeVariablePlaceholder: "VariablePlaceholder",
	NodeRegex:               "Regex",
	NodeFormatSequence:      "FormatSequence",
	NodeFormatSimple:        "Simple",
	NodeFormatIf:            "If",
	NodeFormatIfElse:        "IfElse",
	NodeFormatElse:          "Else",
}

// String returns the kind name.
func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return "Unknown"
}

// Node is a snippet AST node. Which fields are meaningful depends on Kind.
//
// Snippet nodes (tabstops, placeholders, choices, variables and regex
// nodes) hold their visible text in a single NodeText child, so every
// edit happens inside some NodeText.
type Node struct {
	Kind NodeKind

	// Token is the lexical kind of a leaf.
	Token TokenKind

	// Value is a leaf's text or a variable's name.
	Value string

	// Number is the tabstop number, or the group of a format node.
	Number int

	// Choices are the options of a choice node.
	Choices []string

	// Regex, Format and Options describe a regex node.
	Regex   string
	Format  *Node
	Options string

	// Case is the transform of a simple format node (upcase, ...).
	Case string

	// IfText and ElseText belong to conditional format nodes.
	IfText   string
	ElseText string

	Children []*Node

	// Navigation. parent is non-owning and refreshed by link.
	parent *Node
	index  int
	depth  int

	// Positions, filled by layout.
	Start    Point
	End      Point
	Segments []Segment

	startOff  int
	endOff    int
	indexable bool
}

func newLeaf(tok Token) *Node {
	return &Node{Kind: NodeLeaf, Token: tok.Kind, Value: tok.Text()}
}

func newText(children ...*Node) *Node {
	return &Node{Kind: NodeText, Children: children}
}

// leavesOf turns plain text into leaves.
func leavesOf(text string) []*Node {
	toks := plainTokens(text)
	out := make([]*Node, len(toks))
	for i, tok := range toks {
		out[i] = newLeaf(tok)
	}
	return out
}

// Parent returns the enclosing node, nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Index is the position of n in its parent's Children.
func (n *Node) Index() int { return n.index }

// Depth is the distance from the root.
func (n *Node) Depth() int { return n.depth }

// IsSnippet reports whether n is a tabstop, placeholder, choice,
// variable or regex node.
func (n *Node) IsSnippet() bool {
	switch n.Kind {
	case NodeTabstop, NodePlaceholder, NodeChoice, NodeVariable, NodeVariablePlaceholder, NodeRegex:
		return true
	}
	return false
}

// Numbered reports whether n takes part in tab navigation.
func (n *Node) Numbered() bool {
	return n.Kind == NodeTabstop || n.Kind == NodePlaceholder || n.Kind == NodeChoice
}

// Content returns the NodeText child of a snippet node.
func (n *Node) Content() *Node {
	if !n.IsSnippet() || len(n.Children) == 0 {
		return nil
	}
	return n.Children[0]
}

// Text is the text the node contributes to the buffer.
func (n *Node) Text() string {
	if n.Kind == NodeLeaf {
		return n.Value
	}
	var sb strings.Builder
	n.writeText(&sb)
	return sb.String()
}

func (n *Node) writeText(sb *strings.Builder) {
	if n.Kind == NodeLeaf {
		sb.WriteString(n.Value)
		return
	}
	for _, c := range n.Children {
		c.writeText(sb)
	}
}

// Walk visits n and its descendants depth-first, left to right. Returning
// false from fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// link refreshes parent, index and depth below n.
func (n *Node) link() {
	for i, c := range n.Children {
		c.parent = n
		c.index = i
		c.depth = n.depth + 1
		c.link()
	}
}

// EnclosingSnippet returns the nearest snippet ancestor of n, or n itself.
func (n *Node) EnclosingSnippet() *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.IsSnippet() {
			return cur
		}
	}
	return nil
}

// EnclosingText returns the nearest NodeText ancestor of n, or n itself.
func (n *Node) EnclosingText() *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.Kind == NodeText {
			return cur
		}
	}
	return nil
}

// Numbers returns the distinct tabstop numbers in navigation order:
// ascending, with 0 last.
func (n *Node) Numbers() []int {
	seen := map[int]bool{}
	n.Walk(func(c *Node) bool {
		if c.Numbered() {
			seen[c.Number] = true
		}
		return true
	})
	out := make([]int, 0, len(seen))
	for num := range seen {
		out = append(out, num)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a == 0 || b == 0 {
			return b == 0 && a != 0
		}
		return a < b
	})
	return out
}

// Tabstops returns the nodes numbered num in document order.
func (n *Node) Tabstops(num int) []*Node {
	var out []*Node
	n.Walk(func(c *Node) bool {
		if c.Numbered() && c.Number == num {
			out = append(out, c)
		}
		return true
	})
	return out
}

// renumber applies fn to every tabstop number.
func (n *Node) renumber(fn func(int) int) {
	n.Walk(func(c *Node) bool {
		if c.Numbered() {
			c.Number = fn(c.Number)
		}
		return true
	})
}

// compactNumbers renumbers tabstops 1..k keeping their order; 0 stays 0.
// It returns the old to new mapping.
func (n *Node) compactNumbers() map[int]int {
	mapping := map[int]int{0: 0}
	next := 1
	for _, num := range n.Numbers() {
		if num == 0 {
			continue
		}
		mapping[num] = next
		next++
	}
	n.renumber(func(num int) int {
		if num == 0 {
			return 0
		}
		return mapping[num]
	})
	return mapping
}

// mergeLeaves joins neighbouring leaves of the same mergeable kind and
// drops empty leaves.
func mergeLeaves(children []*Node) []*Node {
	out := children[:0]
	for _, c := range children {
		if c.Kind == NodeLeaf && c.Value == "" {
			continue
		}
		if len(out) > 0 {
			prev := out[len(out)-1]
			if prev.Kind == NodeLeaf && c.Kind == NodeLeaf && prev.Token == c.Token && c.Token.mergeable() {
				prev.Value += c.Value
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// =============================================================================
// MATERIALIZE
// =============================================================================

// materialize fills the visible text of snippet nodes: choices show their
// first option, variables their value, regex nodes the transformed value.
func (n *Node) materialize(vars VariableResolver) {
	n.Walk(func(c *Node) bool {
		switch c.Kind {
		case NodeTabstop:
			if len(c.Children) == 0 {
				c.Children = []*Node{newText()}
			}
		case NodeChoice:
			first := ""
			if len(c.Choices) > 0 {
				first = c.Choices[0]
			}
			c.Children = []*Node{newText(leavesOf(first)...)}
		case NodeVariable:
			value, ok := resolve(vars, c.Value)
			if !ok {
				value = c.Value
			}
			c.Children = []*Node{newText(leavesOf(value)...)}
		case NodeVariablePlaceholder:
			if value, ok := resolve(vars, c.Value); ok {
				c.Children = []*Node{newText(leavesOf(value)...)}
			}
		case NodeRegex:
			value, _ := resolve(vars, c.Value)
			c.Children = []*Node{newText(leavesOf(c.transform(value))...)}
			return false
		}
		return true
	})
	n.link()
}

func resolve(vars VariableResolver, name string) (string, bool) {
	if vars == nil {
		return "", false
	}
	return vars.Resolve(name)
}
