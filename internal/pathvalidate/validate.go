// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pathvalidate canonicalizes and validates the slugs and filesystem
// paths that cross the trust boundary from clients into the workflow engine.
// It is the only package that touches raw user input before it reaches a
// filesystem call.
package pathvalidate

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kraklabs/changesd/internal/wfserr"
)

// slugPattern is the normative slug grammar: 3-64 chars, lowercase
// alphanumerics and internal hyphens only, no leading/trailing hyphen.
var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

const (
	// MaxSegments bounds the number of path segments a resource URI may carry.
	MaxSegments = 10
	// MaxQueryValueLen bounds a single query parameter value.
	MaxQueryValueLen = 1024
	// MaxQueryLen bounds the entire query string.
	MaxQueryLen = 8192
)

// ValidateSlug returns nil if s matches the slug grammar, else EBADSLUG.
// No case folding is performed: the input is accepted as-is or rejected.
func ValidateSlug(s string) error {
	if s == "" {
		return wfserr.BadSlug("slug is empty")
	}
	if !slugPattern.MatchString(s) {
		return wfserr.BadSlug(fmt.Sprintf("slug %q does not match ^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$", s))
	}
	return nil
}

// Canonicalize resolves "." and ".." segments and consolidates redundant
// separators without following symlinks, returning a lexically normalized
// absolute path.
func Canonicalize(path string) string {
	if !filepath.IsAbs(path) {
		path = "/" + path
	}
	return filepath.Clean(path)
}

// IsWithinRoot reports whether the canonicalized candidate has root as a
// prefix on segment boundaries.
func IsWithinRoot(root, candidate string) bool {
	cleanRoot := filepath.Clean(root)
	cleanCandidate := Canonicalize(candidate)
	if cleanCandidate == cleanRoot {
		return true
	}
	return strings.HasPrefix(cleanCandidate, cleanRoot+string(filepath.Separator))
}

// traversalMarkers lists the raw and percent-encoded spellings of traversal
// and home-expansion sequences, checked case-insensitively both before and
// after decoding so double-encoded attacks are caught.
var traversalMarkers = []string{
	"..", "~",
	"%2e%2e", "%2e.", ".%2e",
	"%7e",
}

// HasTraversalMarker reports whether raw (un-decoded) or decoded contains a
// path-traversal sequence, home-expansion sequence, or a null byte.
func HasTraversalMarker(raw string) bool {
	if strings.ContainsRune(raw, 0) {
		return true
	}
	lower := strings.ToLower(raw)
	for _, marker := range traversalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	decoded, err := url.PathUnescape(raw)
	if err == nil && decoded != raw {
		if strings.ContainsRune(decoded, 0) {
			return true
		}
		decodedLower := strings.ToLower(decoded)
		for _, marker := range traversalMarkers {
			if strings.Contains(decodedLower, marker) {
				return true
			}
		}
	}
	return false
}

// JoinSlugPath joins a validated slug and a relative artifact path under root,
// refusing to return a path that would escape root.
func JoinSlugPath(root, slug, rel string) (string, error) {
	if err := ValidateSlug(slug); err != nil {
		return "", err
	}
	if HasTraversalMarker(rel) {
		return "", wfserr.PathEscape("relative path contains a traversal marker")
	}
	candidate := filepath.Join(root, slug, rel)
	if !IsWithinRoot(filepath.Join(root, slug), candidate) {
		return "", wfserr.PathEscape("resolved path escapes the change directory")
	}
	return candidate, nil
}
