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
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/changesd/internal/httptransport"
	"github.com/kraklabs/changesd/internal/wfserr"
)

// runServe starts the HTTP transport: POST /sse and /mcp executing one
// tool call each, plus health probes and /metrics. Returns the process
// exit code so main can propagate fatal startup errors (misconfiguration,
// unbindable port) as non-zero exits.
func runServe(args []string, configPath string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.StringP("port", "p", "", "Listen port (overrides config and PORT)")
	host := fs.String("host", "", "Listen host (overrides config and HOST)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: changesd serve [options]

Description:
  Start the HTTP transport. POST /sse streams a single tool result as
  Server-Sent Events with periodic keepalive comments; POST /mcp emits
  start/result/end lines as newline-delimited JSON. Health probes
  (/healthz, /readyz) and Prometheus metrics (/metrics) are served
  without authentication.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Serve on the configured (or default) address
  changesd serve

  # Serve on a specific port with bearer auth
  AUTH_TOKENS=secret changesd serve --port 9090

Environment Variables:
  AUTH_TOKENS, PORT, HOST, TLS_CERT, TLS_KEY, ALLOWED_ORIGINS,
  RATE_LIMIT, RATE_LIMIT_BURST, RATE_LIMIT_WINDOW_MS,
  MAX_RESPONSE_SIZE_KB, REQUEST_TIMEOUT_MS, SECURITY_HEADERS_ENABLED

`)
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadServerConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", wfserr.AsError(err).Format(!globals.NoColor))
		return 1
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *host != "" {
		cfg.Host = *host
	}

	eng, cleanup := buildEngine(cfg)
	defer cleanup()

	srv := httptransport.NewServer(cfg, eng)

	server := &http.Server{
		Addr:              cfg.Host + ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down changesd server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	log.Printf("changesd server starting on http://%s:%s", cfg.Host, cfg.Port)
	log.Printf("Repository: %s", cfg.WorkingDirectory)
	if len(cfg.AuthTokens) == 0 {
		log.Println("Warning: no AUTH_TOKENS configured, authentication is disabled")
	}
	log.Println("")
	log.Println("API Endpoints:")
	log.Println("  GET  /healthz    - Liveness probe")
	log.Println("  GET  /readyz     - Readiness probe")
	log.Println("  GET  /metrics    - Prometheus metrics")
	log.Println("  POST /sse        - Execute a tool, stream result as SSE")
	log.Println("  POST /mcp        - Execute a tool, stream result as NDJSON")
	log.Println("")

	if cfg.HasTLS() {
		err = server.ListenAndServeTLS(cfg.TLS.CertPath, cfg.TLS.KeyPath)
	} else {
		err = server.ListenAndServe()
	}
	if err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}

	return 0
}
