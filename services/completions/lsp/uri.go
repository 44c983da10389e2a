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
	"net/url"
	"path/filepath"
	"strings"
)

// PathToURI converts an absolute path to a file:// URI.
//
// Description:
//
//	Windows drive paths (C:\a\b) become file:///C:/a/b and UNC paths
//	(\\server\share\f) put the server in the URI authority
//	(file://server/share/f). Both forms are recognized on every OS so
//	that URIs from a Windows server can be handled anywhere. Other
//	relative paths are made absolute first.
func PathToURI(path string) string {
	switch {
	case isUNCPath(path):
		rest := strings.ReplaceAll(path[2:], `\`, "/")
		host, p, _ := strings.Cut(rest, "/")
		u := url.URL{Scheme: "file", Host: host, Path: "/" + p}
		return u.String()
	case isDrivePath(path):
		u := url.URL{Scheme: "file", Path: "/" + strings.ReplaceAll(path, `\`, "/")}
		return u.String()
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// URIToPath converts a file:// URI back to a path.
//
// Description:
//
//	The inverse of PathToURI up to NormalizePath: a non-empty authority
//	is re-attached as a UNC prefix, and /C:/... paths lose the leading
//	slash and use backslashes, so C:/a and C:\a both come back as C:\a.
//	Non-file URIs are returned unchanged.
func URIToPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}

	if u.Host != "" && u.Host != "localhost" {
		return `\\` + u.Host + strings.ReplaceAll(u.Path, "/", `\`)
	}
	p := u.Path
	if len(p) >= 3 && p[0] == '/' && isDriveLetter(p[1]) && p[2] == ':' {
		return strings.ReplaceAll(p[1:], "/", `\`)
	}
	return filepath.FromSlash(p)
}

// NormalizePath returns path in the form URIToPath produces, so that
// URIToPath(PathToURI(p)) == NormalizePath(p). Drive and UNC paths use
// backslashes on every OS; other paths are made absolute and cleaned.
func NormalizePath(path string) string {
	if isUNCPath(path) || isDrivePath(path) {
		return strings.ReplaceAll(path, "/", `\`)
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func isUNCPath(p string) bool {
	return len(p) > 2 && p[0] == '\\' && p[1] == '\\'
}

func isDrivePath(p string) bool {
	return len(p) >= 3 && isDriveLetter(p[0]) && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}

func isDriveLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
