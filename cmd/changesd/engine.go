// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/kraklabs/changesd/internal/config"
	"github.com/kraklabs/changesd/internal/engine"
	"github.com/kraklabs/changesd/internal/lifecycle"
	"github.com/kraklabs/changesd/internal/lockmgr"
	"github.com/kraklabs/changesd/internal/pagination"
	"github.com/kraklabs/changesd/internal/receipts"
	"github.com/kraklabs/changesd/internal/streamreader"
	"github.com/kraklabs/changesd/internal/templates"
	"github.com/kraklabs/changesd/internal/wfserr"
)

const apiVersion = "1.0"

const (
	monitorInterval    = 5 * time.Second
	heapWarningPct     = 70
	heapCriticalPct    = 85
)

// loadServerConfig loads configuration relative to the current working
// directory, falling back to defaults when no file exists anywhere up the
// tree. Every command and transport goes through this one path so a
// repository behaves identically no matter how it is driven.
func loadServerConfig(configPath string) (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, wfserr.IO("cannot determine working directory", err)
	}
	cfg, err := config.Load(configPath, wd)
	if err != nil {
		return nil, err
	}
	if cfg.WorkingDirectory == "" {
		cfg.WorkingDirectory = wd
	}
	return cfg, nil
}

// buildEngine constructs the full workflow engine for a configuration:
// lock manager, template renderer, git collaborator, pagination engine,
// and memory monitor. The returned cleanup stops the monitor's sampler
// goroutine and must be called before process exit.
func buildEngine(cfg *config.Config) (*engine.Engine, func()) {
	root := filepath.Join(cfg.WorkingDirectory, "changes")

	lc := &lifecycle.Engine{
		Root:       root,
		Locks:      lockmgr.NewManager(),
		Templates:  &templates.Renderer{},
		Git:        receipts.NewGitCommitLookup(cfg.WorkingDirectory),
		APIVersion: apiVersion,
	}

	pager := &pagination.Engine{
		TokenTTL: cfg.TokenTTL(),
	}
	if cfg.Pagination.SigningKey != "" {
		pager.SigningKey = []byte(cfg.Pagination.SigningKey)
	}

	monitor := streamreader.NewMonitor(monitorInterval, heapWarningPct, heapCriticalPct)

	return engine.New(lc, pager, monitor), monitor.Stop
}
