// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package httptransport

import (
	"encoding/json"
	"net/http"
	"time"
)

// ndjsonFrame is the line shape for /mcp responses: start, result,
// error, and end frames all share {type, ts, ...}.
type ndjsonFrame struct {
	Type       string          `json:"type"`
	TS         string          `json:"ts"`
	Tool       string          `json:"tool,omitempty"`
	APIVersion string          `json:"apiVersion,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *ErrorPayload   `json:"error,omitempty"`
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// handleNDJSON executes one tool call and streams start/result-or-error/end
// frames, newline-delimited, over a single response body.
func (s *Server) handleNDJSON(w http.ResponseWriter, r *http.Request) {
	body, err := decodeToolRequest(r)
	if err != nil {
		s.writeJSONError(w, r, err)
		return
	}

	ctx, cancel := withTimeout(r, s.cfg.RequestTimeout())
	defer cancel()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	s.metrics.observeRequest("/mcp", http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	enc := json.NewEncoder(w)

	_ = enc.Encode(ndjsonFrame{Type: "start", TS: nowStamp(), Tool: body.Tool, APIVersion: apiVersion})
	if canFlush {
		flusher.Flush()
	}

	data, toolErr := s.callTool(ctx, body.Tool, body.Input)
	switch {
	case toolErr != nil:
		s.metrics.observeError(string(toolErr.Code))
		payload := errorPayload(toolErr)
		_ = enc.Encode(ndjsonFrame{Type: "error", TS: nowStamp(), Error: &payload})
	case s.checkResponseSize(data) != nil:
		tooLarge := s.checkResponseSize(data)
		s.metrics.observeError(string(tooLarge.Code))
		payload := errorPayload(tooLarge)
		_ = enc.Encode(ndjsonFrame{Type: "error", TS: nowStamp(), Error: &payload})
	default:
		_ = enc.Encode(ndjsonFrame{Type: "result", TS: nowStamp(), Result: data})
	}
	if canFlush {
		flusher.Flush()
	}

	_ = enc.Encode(ndjsonFrame{Type: "end", TS: nowStamp()})
	if canFlush {
		flusher.Flush()
	}
}
