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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kraklabs/changesd/internal/rpc"
	"github.com/kraklabs/changesd/internal/wfserr"
)

// runStdioServer starts the stdio transport: line-framed JSON-RPC over
// stdin/stdout, one request at a time, in request order. All diagnostics
// go to stderr because stdout carries the JSON-RPC frames.
//
// MCP Protocol Flow:
//  1. Client sends initialize request
//  2. Server responds with capabilities and server info
//  3. Client sends tools/list to discover available tools
//  4. Client sends tools/call requests to invoke specific tools
//  5. Server executes tool and returns results as content blocks
//
// Available tools: change.open, change.archive, changes.active.
// Resources: changes://active listings and change://<slug>/... artifacts.
func runStdioServer(configPath string) {
	cwd, _ := os.Getwd()
	fmt.Fprintf(os.Stderr, "MCP Server CWD: %s\n", cwd)
	fmt.Fprintf(os.Stderr, "Config path arg: %q\n", configPath)

	cfg, err := loadServerConfig(configPath)
	if err != nil {
		ue := wfserr.AsError(err)
		fmt.Fprintf(os.Stderr, "%s\n", ue.Format(false))
		os.Exit(1)
	}

	eng, cleanup := buildEngine(cfg)
	defer cleanup()

	disp := rpc.NewDispatcher(
		rpc.ServerInfo{Name: "changesd", Version: version},
		"changesd mediates a filesystem-rooted change workflow: open, archive, and list changes.",
		eng.Tools(),
		eng.Resources(),
		eng.ReadResource,
	)
	disp.SetRequireInitialize(true)

	fmt.Fprintf(os.Stderr, "changesd MCP server v%s starting...\n", version)
	fmt.Fprintf(os.Stderr, "  Repository: %s\n", cfg.WorkingDirectory)

	serveStdioLoop(disp, os.Stdin, os.Stdout)
}

// serveStdioLoop reads JSON-RPC requests from in and writes responses to
// out, one line each way. Processing is serial, so response order equals
// request order. EOF on in ends the loop cleanly; there is no mid-request
// cancellation channel on this transport.
func serveStdioLoop(disp *rpc.Dispatcher, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var req rpc.Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			ue := wfserr.New(wfserr.EInvalidInput,
				"invalid JSON in MCP request",
				"the request does not conform to JSON-RPC 2.0 framing",
				"check your MCP client configuration",
				err,
			)
			fmt.Fprintf(os.Stderr, "%s\n", ue.Format(false))
			continue
		}

		fmt.Fprintf(os.Stderr, "-> %s\n", req.Method)

		resp := disp.Handle(context.Background(), req)

		// Notifications produce no response frame.
		if resp.ID == nil && resp.Result == nil && resp.Error == nil {
			continue
		}

		respBytes, err := json.Marshal(resp)
		if err != nil {
			ue := wfserr.Internal("cannot encode MCP response", err)
			fmt.Fprintf(os.Stderr, "%s\n", ue.Format(false))
			continue
		}

		_, _ = fmt.Fprintf(out, "%s\n", respBytes)
		if f, ok := out.(*os.File); ok {
			_ = f.Sync()
		}

		fmt.Fprintf(os.Stderr, "<- response sent for %s\n", req.Method)
	}

	if err := scanner.Err(); err != nil {
		ue := wfserr.New(wfserr.EIO,
			"MCP server input error",
			"failed to read from stdin",
			"check if stdin is closed or if there's a pipe issue",
			err,
		)
		fmt.Fprintf(os.Stderr, "%s\n", ue.Format(false))
		os.Exit(1)
	}

	fmt.Fprintln(os.Stderr, "MCP server: stdin closed, exiting")
}
