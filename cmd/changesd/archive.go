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

	"github.com/kraklabs/changesd/internal/receipts"
	"github.com/kraklabs/changesd/internal/ui"
	"github.com/kraklabs/changesd/internal/wfserr"
)

// archiveResult is the CLI's JSON output for "archive", mirroring the
// change.archive tool output shape.
type archiveResult struct {
	APIVersion  string           `json:"apiVersion"`
	Slug        string           `json:"slug"`
	Archived    bool             `json:"archived"`
	ReceiptPath string           `json:"receiptPath"`
	Receipt     receipts.Receipt `json:"receipt"`
}

// runArchive executes the 'archive' CLI command: write the change's
// receipt and move its directory under changes/archive/, exactly as the
// change.archive MCP tool does.
func runArchive(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: changesd archive <slug> [options]

Description:
  Archive a change: verify its proposal and task list are present and
  non-empty, collect touched commits and files, write an immutable
  receipt.json, and move the directory under changes/archive/<slug>.

  Archival is terminal: an archived change never reappears in active
  listings and cannot be re-opened under the same slug.

Examples:
  changesd archive add-auth
  changesd archive add-auth --json | jq '.receipt.commits'

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

	cfg, err := loadServerConfig(configPath)
	if err != nil {
		wfserr.FatalError(err, !globals.NoColor)
	}
	eng, cleanup := buildEngine(cfg)
	defer cleanup()

	res, err := eng.Lifecycle.Archive(slug)
	if err != nil {
		wfserr.FatalError(err, !globals.NoColor)
	}

	if globals.JSON {
		out, _ := json.MarshalIndent(archiveResult{
			APIVersion:  apiVersion,
			Slug:        res.Slug,
			Archived:    res.Archived,
			ReceiptPath: res.ReceiptPath,
			Receipt:     res.Receipt,
		}, "", "  ")
		fmt.Println(string(out))
		return
	}

	ui.Successf("archived change %s", ui.Cyan.Sprint(res.Slug))
	ui.Infof("  receipt:  %s", res.ReceiptPath)
	ui.Infof("  commits:  %s", ui.CountText(len(res.Receipt.Commits)))
	ui.Infof("  files:    %s", ui.CountText(len(res.Receipt.FilesTouched)))
}
