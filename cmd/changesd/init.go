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
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/changesd/internal/config"
	"github.com/kraklabs/changesd/internal/ui"
	"github.com/kraklabs/changesd/internal/wfserr"
)

// runInit executes the 'init' CLI command: write a default
// .changes/server.yaml into the current directory so serve/open/list have
// an explicit repository root to work against.
func runInit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.BoolP("force", "f", false, "Overwrite an existing configuration file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: changesd init [options]

Description:
  Create .changes/server.yaml with default settings in the current
  directory. The directory containing .changes/ becomes the repository
  root: changes live under <root>/changes/<slug>.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  changesd init
  changesd init --force

`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	wd, err := os.Getwd()
	if err != nil {
		wfserr.FatalError(wfserr.IO("cannot determine working directory", err), !globals.NoColor)
	}

	path := config.ConfigPath(wd)
	if _, err := os.Stat(path); err == nil && !*force {
		ue := wfserr.New(wfserr.EInvalidInput,
			"configuration already exists",
			path,
			"use --force to overwrite it",
			nil,
		)
		wfserr.FatalError(ue, !globals.NoColor)
	}

	cfg := config.DefaultConfig(wd)
	if err := config.Save(cfg, path); err != nil {
		wfserr.FatalError(err, !globals.NoColor)
	}

	ui.Successf("wrote %s", path)
	ui.Info("")
	ui.Info("Next steps:")
	ui.Infof("  1. Open your first change:  %s", ui.Cyan.Sprint("changesd open my-change --title \"My change\""))
	ui.Infof("  2. Inspect active changes:  %s", ui.Cyan.Sprint("changesd list"))
	ui.Infof("  3. Run as MCP server:       %s", ui.Cyan.Sprint("changesd --mcp"))
}
