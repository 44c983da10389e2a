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
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// transform applies a regex node to value. An invalid pattern leaves the
// value unchanged.
func (n *Node) transform(value string) string {
	var flags string
	global := false
	for _, o := range n.Options {
		switch o {
		case 'g':
			global = true
		case 'i':
			flags += "i"
		case 'm':
			flags += "m"
		}
	}
	pattern := n.Regex
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return value
	}

	limit := 1
	if global {
		limit = -1
	}
	matches := re.FindAllStringSubmatchIndex(value, limit)
	if len(matches) == 0 {
		return value
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		sb.WriteString(value[last:m[0]])
		groups := make([]string, len(m)/2)
		for i := range groups {
			if m[2*i] >= 0 {
				groups[i] = value[m[2*i]:m[2*i+1]]
			}
		}
		n.Format.writeFormat(&sb, groups)
		last = m[1]
	}
	sb.WriteString(value[last:])
	return sb.String()
}

// writeFormat renders a format sequence for one match.
func (n *Node) writeFormat(sb *strings.Builder, groups []string) {
	if n == nil {
		return
	}
	group := func(i int) string {
		if i < len(groups) {
			return groups[i]
		}
		return ""
	}
	for _, c := range n.Children {
		switch c.Kind {
		case NodeLeaf:
			sb.WriteString(c.Value)
		case NodeFormatSimple:
			sb.WriteString(applyCase(c.Case, group(c.Number)))
		case NodeFormatIf:
			if group(c.Number) != "" {
				sb.WriteString(c.IfText)
			}
		case NodeFormatIfElse:
			if group(c.Number) != "" {
				sb.WriteString(c.IfText)
			} else {
				sb.WriteString(c.ElseText)
			}
		case NodeFormatElse:
			if g := group(c.Number); g != "" {
				sb.WriteString(g)
			} else {
				sb.WriteString(c.ElseText)
			}
		}
	}
}

func applyCase(name, s string) string {
	switch name {
	case "upcase":
		return strings.ToUpper(s)
	case "downcase":
		return strings.ToLower(s)
	case "capitalize":
		return capitalize(s)
	case "camelcase":
		words := splitWords(s)
		for i, w := range words {
			if i == 0 {
				words[i] = strings.ToLower(w)
			} else {
				words[i] = capitalize(strings.ToLower(w))
			}
		}
		return strings.Join(words, "")
	case "pascalcase":
		words := splitWords(s)
		for i, w := range words {
			words[i] = capitalize(strings.ToLower(w))
		}
		return strings.Join(words, "")
	}
	return s
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
