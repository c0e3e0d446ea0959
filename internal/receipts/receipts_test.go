// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package receipts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeGitRunner struct {
	output string
	err    error
}

func (f *fakeGitRunner) Run(ctx context.Context, args ...string) (string, error) {
	return f.output, f.err
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "receipt.json")

	r := &Receipt{
		APIVersion:   "1.0",
		ArchivedAt:   "2026-07-31T00:00:00Z",
		Actor:        Actor{Type: "server", Name: "changesd"},
		Commits:      []string{"abc123"},
		FilesTouched: []string{"proposal.md", "tasks.md"},
		Slug:         "add-auth",
		Tests:        TestSummary{Added: 2, Updated: 1, Passed: true},
		Title:        "Add auth",
	}

	require.NoError(t, Write(path, r))

	got, err := Read(path)
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestWriteEmitsKeysInAlphabeticalOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "receipt.json")

	require.NoError(t, Write(path, &Receipt{Slug: "add-auth", Title: "Add auth"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	keys := []string{`"actor"`, `"apiVersion"`, `"archivedAt"`, `"commits"`, `"filesTouched"`, `"slug"`, `"tests"`, `"title"`}
	last := -1
	for _, key := range keys {
		idx := strings.Index(string(raw), key)
		require.Greater(t, idx, last, "key %s out of order", key)
		last = idx
	}
}

func TestGitCommitLookupParsesLines(t *testing.T) {
	lookup := &GitCommitLookup{Runner: &fakeGitRunner{output: "abc123\ndef456\n\n"}}
	commits, err := lookup.CommitsTouching("/repo/changes/add-auth")
	require.NoError(t, err)
	require.Equal(t, []string{"abc123", "def456"}, commits)
}

func TestGitCommitLookupEmptyOutput(t *testing.T) {
	lookup := &GitCommitLookup{Runner: &fakeGitRunner{output: ""}}
	commits, err := lookup.CommitsTouching("/repo/changes/add-auth")
	require.NoError(t, err)
	require.Empty(t, commits)
}
