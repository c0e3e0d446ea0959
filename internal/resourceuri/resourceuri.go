// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package resourceuri parses the two resource URI families the workflow
// engine exposes to clients: changes://active and change://<slug>/<path>.
// It never touches the filesystem; it only classifies and flags input for
// the lifecycle and streaming layers to act on.
package resourceuri

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kraklabs/changesd/internal/pathvalidate"
	"github.com/kraklabs/changesd/internal/wfserr"
)

const (
	SchemeChanges = "changes"
	SchemeChange  = "change"
)

// Security flags set when a URI's decoded form is suspicious. The parser
// never refuses on these alone; it is the caller's job to enforce policy.
type Security struct {
	HasPathTraversal      bool
	HasInvalidSlug        bool
	HasInvalidQueryParams bool
	Warnings              []string
}

// URI is the parsed form of a changes:// or change:// identifier.
type URI struct {
	Scheme   string
	Host     string
	Segments []string
	Query    map[string]string
	Fragment string
	MIME     string
	Security Security
}

// mimeBySuffix is the fixed, extensible MIME inference table. Executable
// suffixes are forced to application/octet-stream regardless of this table.
var mimeBySuffix = map[string]string{
	".md":   "text/markdown",
	".txt":  "text/plain",
	".json": "application/json",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".go":   "text/x-go",
	".ts":   "application/typescript",
	".csv":  "text/csv",
	".xml":  "application/xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".pdf":  "application/pdf",
}

var forcedOctetStreamSuffixes = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".com": true, ".scr": true,
}

const defaultMIME = "application/octet-stream"

// Parse parses raw into a URI. A missing "://", an unknown scheme, an
// oversize query, or too many segments is a hard failure, and all of them
// carry the single code INVALID_INPUT; the cases differ only in the error's
// title and detail. Traversal/invalid-slug/invalid-query conditions are
// recorded as warnings rather than refused here; resources/read enforces
// policy using the Security block.
func Parse(raw string) (*URI, error) {
	idx := strings.Index(raw, "://")
	if idx < 0 {
		return nil, wfserr.New(wfserr.EInvalidInput, "invalid resource URI", "missing :// scheme separator", "", nil)
	}
	scheme := raw[:idx]
	rest := raw[idx+3:]

	if scheme != SchemeChanges && scheme != SchemeChange {
		return nil, wfserr.New(wfserr.EInvalidInput, "invalid resource URI scheme", fmt.Sprintf("scheme %q is not changes or change", scheme), "", nil)
	}

	fragment := ""
	if hashIdx := strings.IndexByte(rest, '#'); hashIdx >= 0 {
		fragment = rest[hashIdx+1:]
		rest = rest[:hashIdx]
	}

	query := ""
	if qIdx := strings.IndexByte(rest, '?'); qIdx >= 0 {
		query = rest[qIdx+1:]
		rest = rest[:qIdx]
	}

	if len(query) > pathvalidate.MaxQueryLen {
		return nil, wfserr.New(wfserr.EInvalidInput, "query string too large", fmt.Sprintf("query exceeds %d bytes", pathvalidate.MaxQueryLen), "", nil)
	}

	sec := Security{}

	rawSegments := strings.Split(rest, "/")
	var segments []string
	for _, seg := range rawSegments {
		if seg == "" {
			continue
		}
		if pathvalidate.HasTraversalMarker(seg) {
			sec.HasPathTraversal = true
			sec.Warnings = append(sec.Warnings, fmt.Sprintf("segment %q contains a traversal marker", seg))
		}
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			decoded = seg
		}
		segments = append(segments, decoded)
	}
	if len(segments) > pathvalidate.MaxSegments {
		return nil, wfserr.New(wfserr.EInvalidInput, "too many path segments", fmt.Sprintf("exceeds max of %d", pathvalidate.MaxSegments), "", nil)
	}

	host := ""
	if len(segments) > 0 {
		host = segments[0]
	}

	queryMap, qWarnings, qInvalid := parseQuery(query)
	sec.Warnings = append(sec.Warnings, qWarnings...)
	sec.HasInvalidQueryParams = qInvalid

	if scheme == SchemeChange {
		slug := host
		if err := pathvalidate.ValidateSlug(slug); err != nil {
			sec.HasInvalidSlug = true
			sec.Warnings = append(sec.Warnings, fmt.Sprintf("slug %q fails validation", slug))
		}
	}

	if pathvalidate.HasTraversalMarker(raw) {
		sec.HasPathTraversal = true
	}

	mime := defaultMIME
	if len(segments) > 0 {
		last := segments[len(segments)-1]
		if dot := strings.LastIndexByte(last, '.'); dot >= 0 {
			suffix := strings.ToLower(last[dot:])
			if forcedOctetStreamSuffixes[suffix] {
				mime = defaultMIME
			} else if m, ok := mimeBySuffix[suffix]; ok {
				mime = m
			}
		}
	}

	return &URI{
		Scheme:   scheme,
		Host:     host,
		Segments: segments,
		Query:    queryMap,
		Fragment: fragment,
		MIME:     mime,
		Security: sec,
	}, nil
}

func parseQuery(raw string) (map[string]string, []string, bool) {
	result := make(map[string]string)
	if raw == "" {
		return result, nil, false
	}
	var warnings []string
	invalid := false
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key, kErr := url.QueryUnescape(key)
		value, vErr := url.QueryUnescape(value)
		if kErr != nil || vErr != nil {
			invalid = true
			warnings = append(warnings, fmt.Sprintf("query pair %q failed to decode", pair))
			continue
		}
		if len(value) > pathvalidate.MaxQueryValueLen {
			invalid = true
			warnings = append(warnings, fmt.Sprintf("query value for %q exceeds %d bytes", key, pathvalidate.MaxQueryValueLen))
			continue
		}
		if pathvalidate.HasTraversalMarker(value) {
			invalid = true
			warnings = append(warnings, fmt.Sprintf("query value for %q contains a traversal marker", key))
		}
		result[key] = value
	}
	return result, warnings, invalid
}

// Slug returns the slug named by a change:// URI. Only meaningful when
// Scheme == SchemeChange.
func (u *URI) Slug() string {
	return u.Host
}

// ArtifactPath returns the path segments after the slug, joined with "/",
// for a change:// URI (e.g. "delta/x.yaml").
func (u *URI) ArtifactPath() string {
	if len(u.Segments) <= 1 {
		return ""
	}
	return strings.Join(u.Segments[1:], "/")
}
