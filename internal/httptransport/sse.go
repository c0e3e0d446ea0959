// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package httptransport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kraklabs/changesd/internal/wfserr"
)

// sseResultPayload is the data: line body for event: result.
type sseResultPayload struct {
	APIVersion string          `json:"apiVersion"`
	Tool       string          `json:"tool"`
	StartedAt  string          `json:"startedAt"`
	Result     json.RawMessage `json:"result"`
	DurationMS int64           `json:"duration"`
}

// handleSSE executes one tool call, emitting periodic keepalive comments
// while it runs and exactly one terminal event, then closes the
// connection. This is a single-request stream, not a long-lived
// broadcast hub.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSONError(w, r, wfserr.Internal("response writer does not support streaming", nil))
		return
	}

	body, err := decodeToolRequest(r)
	if err != nil {
		s.writeJSONError(w, r, err)
		return
	}

	ctx, cancel := withTimeout(r, s.cfg.RequestTimeout())
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	s.metrics.observeRequest("/sse", http.StatusOK)

	started := time.Now()
	resultCh := make(chan json.RawMessage, 1)
	errCh := make(chan *wfserr.Error, 1)
	go func() {
		data, toolErr := s.callTool(ctx, body.Tool, body.Input)
		if toolErr != nil {
			errCh <- toolErr
			return
		}
		resultCh <- data
	}()

	heartbeat := s.cfg.HeartbeatInterval()
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.writeSSEError(w, flusher, wfserr.New(wfserr.ERequestTimeout, "request timed out", "", "", nil))
			return
		case <-r.Context().Done():
			// Client disconnected: the in-flight goroutine's filesystem
			// mutation is allowed to run to completion so lock and receipt
			// invariants hold; we simply stop writing to it.
			return
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive %d\n\n", time.Now().Unix())
			flusher.Flush()
		case toolErr := <-errCh:
			s.metrics.observeError(string(toolErr.Code))
			s.writeSSEError(w, flusher, toolErr)
			return
		case data := <-resultCh:
			if tooLarge := s.checkResponseSize(data); tooLarge != nil {
				s.writeSSEError(w, flusher, tooLarge)
				return
			}
			s.writeSSEResult(w, flusher, body.Tool, data, started)
			return
		}
	}
}

func (s *Server) writeSSEResult(w http.ResponseWriter, flusher http.Flusher, tool string, data json.RawMessage, started time.Time) {
	payload := sseResultPayload{
		APIVersion: apiVersion,
		Tool:       tool,
		StartedAt:  started.UTC().Format(time.RFC3339),
		Result:     data,
		DurationMS: time.Since(started).Milliseconds(),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		s.writeSSEError(w, flusher, wfserr.Internal("cannot encode result", err))
		return
	}
	fmt.Fprintf(w, "event: result\ndata: %s\n\n", encoded)
	flusher.Flush()
}

func (s *Server) writeSSEError(w http.ResponseWriter, flusher http.Flusher, err *wfserr.Error) {
	encoded, marshalErr := json.Marshal(errorPayload(err))
	if marshalErr != nil {
		encoded = []byte(`{"code":"EINTERNAL","message":"cannot encode error"}`)
	}
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", encoded)
	flusher.Flush()
}

// checkResponseSize enforces the configured response-size cap.
func (s *Server) checkResponseSize(data json.RawMessage) *wfserr.Error {
	max := s.cfg.MaxResponseBytes()
	if max > 0 && len(data) > max {
		return wfserr.New(wfserr.EResponseTooLarge, "response exceeds the configured size cap", fmt.Sprintf("%d bytes > %d byte limit", len(data), max), "narrow the request (smaller pageSize, a specific artifact path)", nil)
	}
	return nil
}
