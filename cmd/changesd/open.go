// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/changesd/internal/lifecycle"
	"github.com/kraklabs/changesd/internal/ui"
	"github.com/kraklabs/changesd/internal/wfserr"
)

// openResult is the CLI's JSON output for "open", mirroring the
// change.open tool output shape.
type openResult struct {
	APIVersion   string                 `json:"apiVersion"`
	Slug         string                 `json:"slug"`
	Created      bool                   `json:"created"`
	Locked       bool                   `json:"locked"`
	Status       string                 `json:"status"`
	Paths        lifecycle.Paths        `json:"paths"`
	ResourceURIs lifecycle.ResourceURIs `json:"resourceUris"`
}

// runOpen executes the 'open' CLI command: open (or resume) a change and
// acquire its lock, exactly as the change.open MCP tool does.
//
// Examples:
//
//	changesd open add-auth --title "Add auth"
//	changesd open fix-crash --title "Fix crash" --template bugfix --owner ci
func runOpen(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	title := fs.StringP("title", "t", "", "Change title (required)")
	rationale := fs.String("rationale", "", "Why this change is needed")
	owner := fs.String("owner", "", "Lock owner identity (default: $USER)")
	ttl := fs.Int("ttl", 0, "Lock TTL in seconds (60-86400, default 3600)")
	template := fs.String("template", "", "Template kind: feature|bugfix|chore (default feature)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: changesd open <slug> [options]

Description:
  Open a new change directory under changes/<slug>, render its proposal
  and task templates, and acquire its lock. Re-opening a change you
  already hold the lock on refreshes the lock instead of re-rendering;
  a live lock held by someone else fails with ELOCKED.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  changesd open add-auth --title "Add auth"
  changesd open fix-crash --title "Fix crash" --template bugfix
  changesd open add-auth --title "Add auth" --json

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: slug argument is required")
		fs.Usage()
		os.Exit(1)
	}
	slug := fs.Arg(0)

	if *owner == "" {
		*owner = os.Getenv("USER")
	}

	cfg, err := loadServerConfig(configPath)
	if err != nil {
		wfserr.FatalError(err, !globals.NoColor)
	}
	eng, cleanup := buildEngine(cfg)
	defer cleanup()

	logInfo(globals, "opening change %q in %s", slug, eng.Lifecycle.Root)

	res, err := eng.Lifecycle.Open(lifecycle.OpenRequest{
		Title:     *title,
		Slug:      slug,
		Rationale: *rationale,
		Owner:     *owner,
		TTL:       *ttl,
		Template:  *template,
	})
	if err != nil {
		wfserr.FatalError(err, !globals.NoColor)
	}

	if globals.JSON {
		out, _ := json.MarshalIndent(openResult{
			APIVersion:   apiVersion,
			Slug:         res.Slug,
			Created:      res.Created,
			Locked:       res.Locked,
			Status:       res.Status,
			Paths:        res.Paths,
			ResourceURIs: res.URIs,
		}, "", "  ")
		fmt.Println(string(out))
		return
	}

	if res.Created {
		ui.Successf("opened change %s", ui.Cyan.Sprint(res.Slug))
	} else {
		ui.Successf("resumed change %s (lock refreshed)", ui.Cyan.Sprint(res.Slug))
	}
	ui.Infof("  proposal: %s", res.Paths.Proposal)
	ui.Infof("  tasks:    %s", res.Paths.Tasks)
	ui.Infof("  delta:    %s", res.Paths.Delta)
}
