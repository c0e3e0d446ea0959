// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pathvalidate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateSlug(t *testing.T) {
	cases := []struct {
		name  string
		slug  string
		valid bool
	}{
		{"minimal valid", "abc", true},
		{"with hyphens", "add-auth-flow", true},
		{"with digits", "feature-123", true},
		{"too short", "ab", false},
		{"empty", "", false},
		{"uppercase rejected", "Add-Auth", false},
		{"leading hyphen", "-add-auth", false},
		{"trailing hyphen", "add-auth-", false},
		{"underscore rejected", "add_auth", false},
		{"traversal", "../../etc/passwd", false},
		{"exactly 64 chars", "axxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxz", true},
		{"65 chars too long", "axxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxz", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSlug(tc.slug)
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestIsWithinRoot(t *testing.T) {
	root := "/repo/changes"
	require.True(t, IsWithinRoot(root, "/repo/changes/add-auth"))
	require.True(t, IsWithinRoot(root, root))
	require.False(t, IsWithinRoot(root, "/repo/changesx/add-auth"))
	require.False(t, IsWithinRoot(root, "/etc/passwd"))
}

func TestHasTraversalMarker(t *testing.T) {
	cases := map[string]bool{
		"proposal":        false,
		"delta/x.yaml":    false,
		"../../etc":       true,
		"~/secrets":       true,
		"%2e%2e/etc":      true,
		"%2e%2e%2fetc":    true,
		"%7e/secrets":     true,
		"a\x00b":          true,
		"delta/normal.md": false,
	}
	for input, want := range cases {
		got := HasTraversalMarker(input)
		if got != want {
			t.Errorf("HasTraversalMarker(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestJoinSlugPath(t *testing.T) {
	root := "/repo/changes"
	p, err := JoinSlugPath(root, "add-auth", "delta/x.yaml")
	require.NoError(t, err)
	require.Equal(t, "/repo/changes/add-auth/delta/x.yaml", p)

	_, err = JoinSlugPath(root, "add-auth", "../../../etc/passwd")
	require.Error(t, err)

	_, err = JoinSlugPath(root, "../escape", "proposal.md")
	require.Error(t, err)
}
