// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package lifecycle

import (
	"os"
	"path/filepath"
	"time"

	"github.com/kraklabs/changesd/internal/pagination"
)

// ActivePage is the changes.active result: a page of ActiveItem plus the
// pagination engine's bookkeeping fields.
type ActivePage struct {
	Page                int
	PageSize            int
	TotalItems          int
	HasMore             bool
	NextPageToken       string
	ModificationWarning bool
	Items               []ActiveItem
}

// ListActive implements changes.active: it scans e.Root for non-archived
// change directories and delegates sorting/cursoring to the pagination
// engine. The archive subdirectory itself is skipped so archived changes
// never appear, matching the "archived changes never appear in active
// listings" invariant without per-item flag bookkeeping.
func (e *Engine) ListActive(pager *pagination.Engine, page int, pageSize int, cursorToken string) (*ActivePage, error) {
	entries, err := os.ReadDir(e.Root)
	if err != nil {
		if os.IsNotExist(err) {
			entries = nil
		} else {
			return nil, err
		}
	}

	byPath := make(map[string]ActiveItem, len(entries))
	items := make([]pagination.Item, 0, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() || ent.Name() == archiveDir {
			continue
		}
		slug := ent.Name()
		dir := e.changeDir(slug)
		info, statErr := os.Stat(dir)
		if statErr != nil {
			continue
		}
		active := e.describeActive(slug, dir, info.ModTime())
		byPath[dir] = active
		items = append(items, pagination.Item{Slug: slug, MTime: info.ModTime(), Path: dir})
	}

	result, err := pager.List(items, pageSize, cursorToken)
	if err != nil {
		return nil, err
	}

	out := make([]ActiveItem, 0, len(result.Items))
	for _, it := range result.Items {
		out = append(out, byPath[it.Path])
	}

	return &ActivePage{
		Page:                result.Page,
		PageSize:            result.PageSize,
		TotalItems:          result.TotalItems,
		HasMore:             result.HasMore,
		NextPageToken:       result.NextPageToken,
		ModificationWarning: result.ModificationWarning,
		Items:               out,
	}, nil
}

// describeActive builds the ActiveItem view for one change directory,
// reading the proposal's title heading and lock owner opportunistically —
// absence of either is not an error, matching the tolerate-absence
// discipline used throughout the engine.
func (e *Engine) describeActive(slug, dir string, mtime time.Time) ActiveItem {
	paths := e.pathsOf(slug)
	title := readTitle(paths.Proposal)

	owner := ""
	if info, err := e.Locks.Inspect(filepath.Join(dir, lockFile)); err == nil && info != nil {
		owner = info.Owner
	}

	// The filesystem has no portable creation time; proposal.md's mtime is
	// the closest proxy, since Open writes it once at creation and the
	// lifecycle never rewrites it afterward.
	created := mtime
	if fi, err := os.Stat(paths.Proposal); err == nil {
		created = fi.ModTime()
	}

	return ActiveItem{
		Slug:      slug,
		Title:     title,
		Status:    "draft",
		Owner:     owner,
		CreatedAt: created,
		UpdatedAt: mtime,
		Paths:     Paths{Root: paths.Root, Proposal: paths.Proposal, Tasks: paths.Tasks},
	}
}
