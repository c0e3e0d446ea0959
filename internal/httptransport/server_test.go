// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package httptransport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/changesd/internal/config"
	"github.com/kraklabs/changesd/internal/engine"
	"github.com/kraklabs/changesd/internal/lifecycle"
	"github.com/kraklabs/changesd/internal/lockmgr"
	"github.com/kraklabs/changesd/internal/pagination"
	"github.com/kraklabs/changesd/internal/wfserr"
)

type fakeRenderer struct{}

func (fakeRenderer) Render(kind, slug, title, rationale string) (map[string][]byte, error) {
	return map[string][]byte{
		"proposal.md": []byte("# " + title + "\n\n" + rationale + "\n"),
		"tasks.md":    []byte("- [ ] write proposal\n"),
	}, nil
}

func newTestServer(t *testing.T, configure func(*config.Config)) *Server {
	t.Helper()
	root := filepath.Join(t.TempDir(), "changes")
	require.NoError(t, os.MkdirAll(root, 0o750))

	lc := &lifecycle.Engine{
		Root:       root,
		Locks:      lockmgr.NewManager(),
		Templates:  fakeRenderer{},
		APIVersion: apiVersion,
	}
	eng := engine.New(lc, &pagination.Engine{}, nil)

	cfg := config.DefaultConfig(root)
	cfg.Timeouts.RequestMs = 2000
	cfg.Timeouts.HeartbeatMs = 50
	if configure != nil {
		configure(cfg)
	}
	return NewServer(cfg, eng)
}

func postJSON(t *testing.T, h http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleNDJSONRoundTrip(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rec := postJSON(t, h, "/mcp", toolRequestBody{Tool: "change.open", Input: map[string]any{"title": "Add auth", "slug": "add-auth"}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	var frames []ndjsonFrame
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var f ndjsonFrame
		require.NoError(t, json.Unmarshal([]byte(line), &f))
		frames = append(frames, f)
	}
	require.Len(t, frames, 3)
	require.Equal(t, "start", frames[0].Type)
	require.Equal(t, "result", frames[1].Type)
	require.Equal(t, "end", frames[2].Type)
	require.Contains(t, string(frames[1].Result), "add-auth")
}

func TestHandleNDJSONUnknownSlugMapsToChangeNotFound(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rec := postJSON(t, h, "/mcp", toolRequestBody{Tool: "change.archive", Input: map[string]any{"slug": "does-not-exist"}}, nil)
	require.Equal(t, http.StatusOK, rec.Code) // NDJSON always answers 200; the failure is in the error frame

	var frames []ndjsonFrame
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var f ndjsonFrame
		require.NoError(t, json.Unmarshal([]byte(line), &f))
		frames = append(frames, f)
	}
	require.Len(t, frames, 3)
	require.Equal(t, "error", frames[1].Type)
	require.NotNil(t, frames[1].Error)
	require.Equal(t, "CHANGE_NOT_FOUND", frames[1].Error.Code)
}

func TestHandleSSERoundTrip(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	rec := postJSON(t, h, "/sse", toolRequestBody{Tool: "change.open", Input: map[string]any{"title": "Add auth", "slug": "add-auth"}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "event: result")
	require.Contains(t, rec.Body.String(), "add-auth")
}

func TestAuthenticationRejectsMissingToken(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.AuthTokens = []string{"secret-token"}
	})
	h := s.Handler()

	rec := postJSON(t, h, "/mcp", toolRequestBody{Tool: "changes.active"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var env envelopeError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "AUTHENTICATION_FAILED", env.Error.Code)

	rec = postJSON(t, h, "/mcp", toolRequestBody{Tool: "changes.active"}, map[string]string{"Authorization": "Bearer secret-token"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitExceeded(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.RateLimit.RPM = 1
		c.RateLimit.Burst = 0
		c.RateLimit.WindowMs = 60_000
	})
	h := s.Handler()

	rec := postJSON(t, h, "/mcp", toolRequestBody{Tool: "changes.active"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h, "/mcp", toolRequestBody{Tool: "changes.active"}, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-RateLimit-Retry-After"))

	var env envelopeError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error.Code)
}

func TestHealthzAndReadyz(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestTimeoutMapsTo408(t *testing.T) {
	// A one-second timeout lets the fast, local tool call finish, so the
	// request itself answers 200; a real timeout is classified 408 by
	// statusForCode.
	s := newTestServer(t, func(c *config.Config) {
		c.Timeouts.RequestMs = int(time.Second.Milliseconds())
	})
	h := s.Handler()

	rec := postJSON(t, h, "/mcp", toolRequestBody{Tool: "changes.active"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, http.StatusRequestTimeout, statusForCode(wfserr.ERequestTimeout))
}
