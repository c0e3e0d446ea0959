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

	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/changesd/internal/engine"
	"github.com/kraklabs/changesd/internal/ui"
	"github.com/kraklabs/changesd/internal/wfserr"
)

// runList executes the 'list' CLI command: a paginated listing of active
// changes, the same payload changes.active and changes://active return.
//
// With --all the command follows nextPageToken until the listing is
// exhausted, showing a progress bar on large repositories.
func runList(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	pageSize := fs.Int("page-size", 0, "Items per page (1-200, default 50)")
	token := fs.String("token", "", "Continue from a previous page's nextPageToken")
	all := fs.Bool("all", false, "Follow pagination until all items are listed")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: changesd list [options]

Description:
  List active (non-archived) changes, newest first. Listings are
  cursor-paginated: under concurrent mutation no surviving change is
  ever duplicated across pages.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  changesd list
  changesd list --all
  changesd list --json | jq '.items[].slug'

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadServerConfig(configPath)
	if err != nil {
		wfserr.FatalError(err, !globals.NoColor)
	}
	eng, cleanup := buildEngine(cfg)
	defer cleanup()

	page, err := eng.ChangesActive(1, *pageSize, *token)
	if err != nil {
		wfserr.FatalError(err, !globals.NoColor)
	}

	items := page.Items
	if *all && page.HasMore {
		var bar *progressbar.ProgressBar
		if !globals.Quiet {
			bar = progressbar.NewOptions(page.TotalItems,
				progressbar.OptionSetDescription("scanning changes"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionClearOnFinish(),
			)
			_ = bar.Add(len(items))
		}
		for page.HasMore {
			page, err = eng.ChangesActive(page.Page+1, *pageSize, page.NextPageToken)
			if err != nil {
				wfserr.FatalError(err, !globals.NoColor)
			}
			items = append(items, page.Items...)
			if bar != nil {
				_ = bar.Add(len(page.Items))
			}
		}
		if bar != nil {
			_ = bar.Finish()
		}
	}

	if globals.JSON {
		out := *page
		out.Items = items
		data, _ := json.MarshalIndent(&out, "", "  ")
		fmt.Println(string(data))
		return
	}

	printListing(items, page)
}

func printListing(items []engine.ActiveResponseItem, page *engine.ActiveResponse) {
	if len(items) == 0 {
		ui.Info("no active changes")
		return
	}

	ui.Header(fmt.Sprintf("Active changes (%d total)", page.TotalItems))
	for _, it := range items {
		line := fmt.Sprintf("  %s  %s", ui.Cyan.Sprint(it.Slug), it.Title)
		if it.Owner != "" {
			line += "  " + ui.DimText("locked by "+it.Owner)
		}
		ui.Info(line)
		ui.Info("    " + ui.DimText(fmt.Sprintf("updated %s  %s", it.UpdatedAt, it.Paths.Root)))
	}
	if page.HasMore {
		ui.Info("")
		ui.Infof("more items available; continue with --token %s", page.NextPageToken)
	}
	if page.ModificationWarning {
		ui.Warning("the repository changed while listing; counts may be approximate")
	}
}
