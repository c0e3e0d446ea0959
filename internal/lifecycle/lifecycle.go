// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package lifecycle implements the change-directory state machine: open,
// archive, and active-listing. A change is a directory under
// <root>/changes/<slug> holding a proposal, a task list, and an optional
// delta subtree, guarded by the lock manager and transitioned atomically.
package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kraklabs/changesd/internal/lockmgr"
	"github.com/kraklabs/changesd/internal/pathvalidate"
	"github.com/kraklabs/changesd/internal/receipts"
	"github.com/kraklabs/changesd/internal/wfserr"
)

const (
	// KindFeature, KindBugfix, and KindChore are the recognized template kinds.
	KindFeature = "feature"
	KindBugfix  = "bugfix"
	KindChore   = "chore"

	DefaultTTL = 3600
	MinTTL     = 60
	MaxTTL     = 86400

	proposalFile = "proposal.md"
	tasksFile    = "tasks.md"
	deltaDir     = "delta"
	lockFile     = ".lock"
	archiveDir   = "archive"
)

// TemplateRenderer is the external collaborator that turns a change's
// metadata into the initial set of files. It is deliberately out of scope
// for this module; a default implementation lives in internal/templates.
type TemplateRenderer interface {
	Render(kind, slug, title, rationale string) (map[string][]byte, error)
}

// OpenRequest is the input to Open.
type OpenRequest struct {
	Title     string
	Slug      string
	Rationale string
	Owner     string
	TTL       int
	Template  string
}

// OpenResult mirrors the change.open tool output shape.
type OpenResult struct {
	Slug    string
	Created bool
	Locked  bool
	Status  string
	Paths   Paths
	URIs    ResourceURIs
}

// Paths lists the on-disk locations belonging to a change.
type Paths struct {
	Root     string
	Proposal string
	Tasks    string
	Delta    string
}

// ResourceURIs lists the change:// URIs pointing at a change's artifacts.
type ResourceURIs struct {
	Proposal string
	Tasks    string
	Delta    string
}

// ActiveItem is a single entry in a changes.active listing.
type ActiveItem struct {
	Slug      string
	Title     string
	Status    string
	Template  string
	Owner     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Paths     Paths
}

// ArchiveResult mirrors the change.archive tool output shape.
type ArchiveResult struct {
	Slug        string
	Archived    bool
	ReceiptPath string
	Receipt     receipts.Receipt
}

// Engine implements change.open, change.archive, and changes.active. It
// holds no mutable state of its own beyond the lock manager: every other
// fact about a change is derived by statting the filesystem, which keeps
// the engine safe for concurrent calls.
type Engine struct {
	Root      string // <root>/changes
	Locks     *lockmgr.Manager
	Templates TemplateRenderer
	Git       receipts.GitCollaborator
	Tests     receipts.TestCollaborator
	Clock     func() time.Time
	APIVersion string
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *Engine) changeDir(slug string) string {
	return filepath.Join(e.Root, slug)
}

func (e *Engine) archivedDir(slug string) string {
	return filepath.Join(e.Root, archiveDir, slug)
}

// metaPath returns where a change's lock file lives.
func (e *Engine) metaPath(slug string) string {
	return filepath.Join(e.changeDir(slug), lockFile)
}

func (e *Engine) resourceURIs(slug string) ResourceURIs {
	return ResourceURIs{
		Proposal: fmt.Sprintf("change://%s/proposal", slug),
		Tasks:    fmt.Sprintf("change://%s/tasks", slug),
		Delta:    fmt.Sprintf("change://%s/delta", slug),
	}
}

func (e *Engine) pathsOf(slug string) Paths {
	dir := e.changeDir(slug)
	return Paths{
		Root:     dir,
		Proposal: filepath.Join(dir, proposalFile),
		Tasks:    filepath.Join(dir, tasksFile),
		Delta:    filepath.Join(dir, deltaDir),
	}
}

// isArchived reports whether slug already has an archived directory.
func (e *Engine) isArchived(slug string) bool {
	fi, err := os.Stat(e.archivedDir(slug))
	return err == nil && fi.IsDir()
}

// Open implements change.open: create, resume (same owner), reacquire
// (no lock present), or fail with ELOCKED / EARCHIVED.
func (e *Engine) Open(req OpenRequest) (*OpenResult, error) {
	if err := pathvalidate.ValidateSlug(req.Slug); err != nil {
		return nil, err
	}
	if req.Title == "" {
		return nil, wfserr.InvalidInput("title must not be empty")
	}
	owner := req.Owner
	if owner == "" {
		owner = "default"
	}
	ttl := req.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if ttl < MinTTL || ttl > MaxTTL {
		return nil, wfserr.InvalidInput(fmt.Sprintf("ttl must be between %d and %d seconds", MinTTL, MaxTTL))
	}
	kind := req.Template
	if kind == "" {
		kind = KindFeature
	}
	if kind != KindFeature && kind != KindBugfix && kind != KindChore {
		return nil, wfserr.InvalidInput(fmt.Sprintf("template %q is not one of feature, bugfix, chore", kind))
	}

	if e.isArchived(req.Slug) {
		return nil, wfserr.Archived(req.Slug)
	}

	dir := e.changeDir(req.Slug)
	lockPath := e.metaPath(req.Slug)
	_, statErr := os.Stat(dir)
	exists := statErr == nil

	if exists {
		// Resume or hard conflict: acquiring the lock resolves which.
		if _, err := e.Locks.Acquire(lockPath, owner, ttl); err != nil {
			return nil, err
		}
		return &OpenResult{
			Slug:    req.Slug,
			Created: false,
			Locked:  true,
			Status:  "draft",
			Paths:   e.pathsOf(req.Slug),
			URIs:    e.resourceURIs(req.Slug),
		}, nil
	}

	// Fresh change: render templates, write files atomically, then lock.
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, wfserr.IO("cannot create change directory", err)
	}
	if e.Templates != nil {
		files, err := e.Templates.Render(kind, req.Slug, req.Title, req.Rationale)
		if err != nil {
			return nil, wfserr.IO("template rendering failed", err)
		}
		for rel, data := range files {
			target := filepath.Join(dir, rel)
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return nil, wfserr.IO("cannot create artifact directory", err)
			}
			if err := writeFileAtomic(target, data, 0o644); err != nil {
				return nil, wfserr.IO("cannot write templated artifact", err)
			}
		}
	}

	if _, err := e.Locks.Acquire(lockPath, owner, ttl); err != nil {
		return nil, err
	}

	return &OpenResult{
		Slug:    req.Slug,
		Created: true,
		Locked:  true,
		Status:  "draft",
		Paths:   e.pathsOf(req.Slug),
		URIs:    e.resourceURIs(req.Slug),
	}, nil
}

// Archive implements change.archive.
func (e *Engine) Archive(slug string) (*ArchiveResult, error) {
	if err := pathvalidate.ValidateSlug(slug); err != nil {
		return nil, err
	}
	if e.isArchived(slug) {
		return nil, wfserr.Archived(slug)
	}
	dir := e.changeDir(slug)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil, wfserr.NoChange(slug)
	}

	paths := e.pathsOf(slug)
	if err := requireNonEmptyFile(paths.Proposal); err != nil {
		return nil, wfserr.BadShapeMissingProposal(slug)
	}
	if err := requireNonEmptyFile(paths.Tasks); err != nil {
		return nil, wfserr.BadShapeMissingTasks(slug)
	}

	title := readTitle(paths.Proposal)

	var commits []string
	if e.Git != nil {
		c, err := e.Git.CommitsTouching(dir)
		if err == nil {
			commits = c
		}
	}

	var filesTouched []string
	_ = filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, p)
		if relErr == nil && rel != lockFile {
			filesTouched = append(filesTouched, rel)
		}
		return nil
	})

	var tests receipts.TestSummary
	if e.Tests != nil {
		if ts, err := e.Tests.Summarize(dir); err == nil {
			tests = ts
		}
	}

	receipt := receipts.Receipt{
		Slug:         slug,
		Title:        title,
		APIVersion:   e.APIVersion,
		Commits:      commits,
		FilesTouched: filesTouched,
		Tests:        tests,
		ArchivedAt:   e.now().UTC().Format(time.RFC3339),
		Actor:        receipts.Actor{Type: "server", Name: "changesd"},
	}

	receiptPath := filepath.Join(dir, "receipt.json")
	if err := receipts.Write(receiptPath, &receipt); err != nil {
		return nil, wfserr.IO("cannot write receipt", err)
	}

	archivedDir := e.archivedDir(slug)
	if err := os.MkdirAll(filepath.Dir(archivedDir), 0o750); err != nil {
		return nil, wfserr.IO("cannot create archive parent directory", err)
	}
	if err := os.Rename(dir, archivedDir); err != nil {
		return nil, wfserr.IO("cannot move change into archive", err)
	}

	_ = e.Locks.Release(filepath.Join(archivedDir, lockFile), "")

	return &ArchiveResult{
		Slug:        slug,
		Archived:    true,
		ReceiptPath: filepath.Join(archivedDir, "receipt.json"),
		Receipt:     receipt,
	}, nil
}

// requireNonEmptyFile returns an error if path does not exist or is empty.
func requireNonEmptyFile(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	return nil
}

func readTitle(proposalPath string) string {
	data, err := os.ReadFile(proposalPath)
	if err != nil {
		return ""
	}
	for _, line := range splitLines(string(data)) {
		if len(line) > 0 && line[0] == '#' {
			return trimHeading(line)
		}
	}
	return ""
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func trimHeading(line string) string {
	i := 0
	for i < len(line) && (line[i] == '#' || line[i] == ' ') {
		i++
	}
	return line[i:]
}

// writeFileAtomic writes data to path via a temp sibling plus rename.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
