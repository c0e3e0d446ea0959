// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later
// Package main implements the changesd CLI for serving and operating a
// filesystem-rooted change workflow repository.
//
// Usage:
//
//	changesd init                 Create .changes/server.yaml configuration
//	changesd open <slug>          Open (or resume) a change
//	changesd archive <slug>       Archive a change and write its receipt
//	changesd list                 List active changes
//	changesd serve                Start the HTTP transport (SSE/NDJSON)
//	changesd --mcp                Start as MCP server (JSON-RPC over stdio)
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/changesd/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags holds the global CLI flags that apply to all commands.
type GlobalFlags struct {
	JSON    bool // Output in JSON format (for applicable commands)
	NoColor bool // Disable color output
	Verbose int  // Verbosity level: 0=normal, 1=-v (info), 2=-vv (debug)
	Quiet   bool // Suppress non-essential output (progress, info messages)
}

// logInfo outputs an informational message to stderr if verbose mode is enabled.
// Messages are suppressed if quiet mode is active.
func logInfo(globals GlobalFlags, format string, args ...interface{}) {
	if !globals.Quiet && globals.Verbose >= 1 {
		fmt.Fprintf(os.Stderr, "[INFO] "+format+"\n", args...)
	}
}

// logDebug outputs a debug message to stderr if debug verbosity is enabled (-vv).
// Debug messages are shown regardless of quiet mode for troubleshooting.
func logDebug(globals GlobalFlags, format string, args ...interface{}) { //nolint:unused // Reserved for future use
	if globals.Verbose >= 2 {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

func main() {
	// Global flags with short forms
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		mcpMode     = flag.Bool("mcp", false, "Start as MCP server (JSON-RPC over stdio)")
		configPath  = flag.StringP("config", "c", "", "Path to .changes/server.yaml (default: discovered upward from cwd)")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output (progress, info messages)")
	)

	// Stop parsing at the first non-flag argument (the command name).
	// This allows subcommand-specific flags like "open --ttl 600" to be
	// passed through to subcommand handlers instead of being rejected by
	// the global flag parser.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `changesd - change workflow server

changesd mediates access to a filesystem-rooted change repository:
each proposed change is a directory with a proposal, a task list, and
optional deltas. Interactive AI assistants, IDEs, and CI pipelines
open, inspect, and archive changes through MCP tools or HTTP, with
locking and auditable archive receipts.

Usage:
  changesd <command> [options]

Commands:
  init          Create .changes/server.yaml configuration
  open          Open (or resume) a change and acquire its lock
  archive       Archive a change and write its receipt
  list          List active (non-archived) changes
  serve         Start the HTTP transport (SSE and NDJSON endpoints)
  completion    Generate shell completion script (bash|zsh|fish)

Global Options:
  --json            Output in JSON format (for applicable commands)
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output (progress, info messages)
  --mcp             Start as MCP server (JSON-RPC over stdio)
  -c, --config      Path to .changes/server.yaml
  -V, --version     Show version and exit

Examples:
  changesd init                              Create configuration
  changesd open add-auth --title "Add auth"  Open a feature change
  changesd list --json                       List active changes as JSON
  changesd archive add-auth                  Archive with a receipt
  changesd serve --port 8080                 Serve HTTP transport
  changesd --mcp                             Start as MCP server

Getting Started:
  1. Initialize configuration:  changesd init
  2. Open your first change:    changesd open my-change --title "My change"
  3. Inspect active changes:    changesd list
  4. Run MCP server:            changesd --mcp

Data Storage:
  Changes live under <working directory>/changes/<slug>/; archived
  changes move to changes/archive/<slug>/ with an immutable receipt.

Environment Variables:
  AUTH_TOKENS        Comma-separated bearer tokens for the HTTP transport
  PORT, HOST         HTTP listen address
  RATE_LIMIT         Requests per minute per client

For detailed command help: changesd <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("changesd version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	// Check NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	// Validate conflicting flags
	if *quiet && *verbose > 0 {
		fmt.Fprintf(os.Stderr, "Error: cannot use --quiet and --verbose together\n")
		os.Exit(1)
	}

	// JSON mode auto-enables quiet to prevent progress bars corrupting JSON output
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{
		JSON:    *jsonOutput,
		NoColor: *noColor,
		Verbose: *verbose,
		Quiet:   *quiet,
	}

	ui.InitColors(globals.NoColor)

	// MCP mode takes precedence
	if *mcpMode {
		runStdioServer(*configPath)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "open":
		runOpen(cmdArgs, *configPath, globals)
	case "archive":
		runArchive(cmdArgs, *configPath, globals)
	case "list":
		runList(cmdArgs, *configPath, globals)
	case "serve":
		os.Exit(runServe(cmdArgs, *configPath, globals))
	case "completion":
		runCompletion(cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
