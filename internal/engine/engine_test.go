// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/changesd/internal/lifecycle"
	"github.com/kraklabs/changesd/internal/lockmgr"
	"github.com/kraklabs/changesd/internal/pagination"
	"github.com/kraklabs/changesd/internal/wfserr"
)

type fakeRenderer struct{}

func (fakeRenderer) Render(kind, slug, title, rationale string) (map[string][]byte, error) {
	return map[string][]byte{
		"proposal.md": []byte("# " + title + "\n\n" + rationale + "\n"),
		"tasks.md":    []byte("- [ ] write proposal\n"),
	}, nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	root := filepath.Join(t.TempDir(), "changes")
	require.NoError(t, os.MkdirAll(root, 0o750))
	lc := &lifecycle.Engine{
		Root:       root,
		Locks:      lockmgr.NewManager(),
		Templates:  fakeRenderer{},
		APIVersion: "1.0",
	}
	return New(lc, &pagination.Engine{}, nil)
}

func TestHandleChangeOpenAndReadResource(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	result, err := e.handleChangeOpen(ctx, map[string]any{
		"title": "Add auth",
		"slug":  "add-auth",
		"owner": "alice",
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	var opened OpenResponse
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &opened))
	require.True(t, opened.Created)
	require.True(t, opened.Locked)
	require.Equal(t, "add-auth", opened.Slug)
	require.Equal(t, "1.0", opened.APIVersion)

	read, err := e.ReadResource(ctx, "change://add-auth/proposal")
	require.NoError(t, err)
	require.Len(t, read.Contents, 1)
	require.Contains(t, read.Contents[0].Text, "Add auth")
}

func TestHandleChangesActiveListsOpenedChange(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.handleChangeOpen(ctx, map[string]any{
		"title": "Add auth",
		"slug":  "add-auth",
		"owner": "alice",
	})
	require.NoError(t, err)

	result, err := e.handleChangesActive(ctx, map[string]any{})
	require.NoError(t, err)

	var page ActiveResponse
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &page))
	require.Len(t, page.Items, 1)
	require.Equal(t, "add-auth", page.Items[0].Slug)

	resourceRead, err := e.ReadResource(ctx, "changes://active")
	require.NoError(t, err)
	require.Contains(t, resourceRead.Contents[0].Text, "add-auth")
}

func TestHandleChangeArchive(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.handleChangeOpen(ctx, map[string]any{
		"title": "Add auth",
		"slug":  "add-auth",
		"owner": "alice",
	})
	require.NoError(t, err)

	result, err := e.handleChangeArchive(ctx, map[string]any{"slug": "add-auth"})
	require.NoError(t, err)
	require.False(t, result.IsError)

	var archived ArchiveResponse
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &archived))
	require.True(t, archived.Archived)
	require.Equal(t, "add-auth", archived.Slug)

	// Reading the proposal after archival still works via the archived-dir fallback.
	read, err := e.ReadResource(ctx, "change://add-auth/proposal")
	require.NoError(t, err)
	require.Contains(t, read.Contents[0].Text, "Add auth")
}

func TestReadResourceRejectsTraversal(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.ReadResource(ctx, "change://../../etc/passwd/proposal")
	require.Error(t, err)
	we := wfserr.AsError(err)
	require.NotNil(t, we)
}
