// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"os"

	"github.com/kraklabs/changesd/internal/lifecycle"
	"github.com/kraklabs/changesd/internal/pathvalidate"
	"github.com/kraklabs/changesd/internal/receipts"
	"github.com/kraklabs/changesd/internal/wfserr"
)

// OpenResponse is the change.open wire shape.
type OpenResponse struct {
	APIVersion   string               `json:"apiVersion"`
	Slug         string               `json:"slug"`
	Created      bool                 `json:"created"`
	Locked       bool                 `json:"locked"`
	Status       string               `json:"status"`
	Paths        lifecycle.Paths      `json:"paths"`
	ResourceURIs lifecycle.ResourceURIs `json:"resourceUris"`
}

func openResponse(lc *lifecycle.Engine, r *lifecycle.OpenResult) OpenResponse {
	return OpenResponse{
		APIVersion:   lc.APIVersion,
		Slug:         r.Slug,
		Created:      r.Created,
		Locked:       r.Locked,
		Status:       r.Status,
		Paths:        r.Paths,
		ResourceURIs: r.URIs,
	}
}

// ArchiveResponse is the change.archive wire shape.
type ArchiveResponse struct {
	APIVersion  string           `json:"apiVersion"`
	Slug        string           `json:"slug"`
	Archived    bool             `json:"archived"`
	ReceiptPath string           `json:"receiptPath"`
	Receipt     receipts.Receipt `json:"receipt"`
}

func archiveResponse(lc *lifecycle.Engine, r *lifecycle.ArchiveResult) ArchiveResponse {
	return ArchiveResponse{
		APIVersion:  lc.APIVersion,
		Slug:        r.Slug,
		Archived:    r.Archived,
		ReceiptPath: r.ReceiptPath,
		Receipt:     r.Receipt,
	}
}

// artifactPath resolves slug/rel to an on-disk path, trying the active
// change directory first and falling back to the archived one so
// resources/read keeps working for a change after change.archive moves it.
func (e *Engine) artifactPath(slug, rel string) (string, error) {
	if active, err := pathvalidate.JoinSlugPath(e.Lifecycle.Root, slug, rel); err == nil {
		if _, statErr := os.Stat(active); statErr == nil {
			return active, nil
		}
	} else {
		return "", err
	}

	archiveRoot := e.Lifecycle.Root + string(os.PathSeparator) + "archive"
	archived, err := pathvalidate.JoinSlugPath(archiveRoot, slug, rel)
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(archived); statErr != nil {
		return "", wfserr.NoChange(slug)
	}
	return archived, nil
}

// statSize returns path's size in bytes.
func statSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
