// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package httptransport implements the HTTP+SSE/NDJSON front end:
// POST /sse and POST /mcp both execute one tool call against the shared
// engine and stream back exactly one terminal event, plus GET /healthz,
// /readyz, /, and /metrics.
package httptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kraklabs/changesd/internal/config"
	"github.com/kraklabs/changesd/internal/engine"
	"github.com/kraklabs/changesd/internal/rpc"
	"github.com/kraklabs/changesd/internal/wfserr"
)

const apiVersion = "1.0"

// Server wires the workflow engine's tool registry to the HTTP surface.
// One Server instance is shared by every connection; it holds no
// per-request mutable state beyond the rate limiter's bucket map.
type Server struct {
	cfg     *config.Config
	engine  *engine.Engine
	disp    *rpc.Dispatcher
	limiter *rateLimiter
	metrics *Metrics
	started time.Time
}

// NewServer builds the dispatcher (with stdio's "must call initialize
// first" gate disabled, per rpc.Dispatcher.SetRequireInitialize's HTTP
// contract) and the Server around it.
func NewServer(cfg *config.Config, eng *engine.Engine) *Server {
	disp := rpc.NewDispatcher(
		rpc.ServerInfo{Name: "changesd", Version: apiVersion},
		"changesd mediates a filesystem-rooted change workflow: open, archive, and list changes.",
		eng.Tools(),
		eng.Resources(),
		eng.ReadResource,
	)
	disp.SetRequireInitialize(false)

	return &Server{
		cfg:     cfg,
		engine:  eng,
		disp:    disp,
		limiter: newRateLimiter(cfg.RateLimit.RPM, cfg.RateLimit.Burst, cfg.RateLimitWindow()),
		metrics: NewMetrics(eng.Monitor),
		started: time.Now(),
	}
}

// Handler returns the fully wired http.Handler: security headers and CORS
// apply to every route; auth and rate limiting apply to every route except
// the health probes and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.guard(s.handleRoot))
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/sse", s.guard(s.handleSSE))
	mux.HandleFunc("/mcp", s.guard(s.handleNDJSON))
	return s.withRequestID(s.withCommon(mux))
}

// withCommon applies security headers and CORS to every request,
// including the unauthenticated health probes.
func (s *Server) withCommon(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.applySecurityHeaders(w)
		if !s.applyCORS(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) applySecurityHeaders(w http.ResponseWriter) {
	if !s.cfg.SecurityHeadersEnabled {
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
}

// applyCORS reflects Origin when it is on the allowlist, answers preflight
// OPTIONS requests, and reports whether the caller should continue serving
// the request.
func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin != "" && s.originAllowed(origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	return true
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// guard wraps a handler with authentication and rate limiting, applied to
// every endpoint except the health probes and /metrics.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientKey, err := s.authenticate(r)
		if err != nil {
			s.writeJSONError(w, r, err)
			return
		}

		if allowed, retryAfter := s.limiter.limitFor(clientKey); !allowed {
			rlErr := wfserr.New(wfserr.ERateLimitExceeded, "rate limit exceeded", "", "slow down and retry after the indicated delay", nil)
			rlErr.RetryAfterS = int(retryAfter.Seconds()) + 1
			w.Header().Set("X-RateLimit-Retry-After", strconv.Itoa(rlErr.RetryAfterS))
			s.writeJSONError(w, r, rlErr)
			return
		}

		next(w, r)
	}
}

// authenticate checks the bearer token against the configured allowlist.
// An empty AuthTokens list disables enforcement entirely so local/CI use
// without a token store works out of the box.
func (s *Server) authenticate(r *http.Request) (string, error) {
	if len(s.cfg.AuthTokens) == 0 {
		return r.RemoteAddr, nil
	}
	authz := r.Header.Get("Authorization")
	token := strings.TrimPrefix(authz, "Bearer ")
	if token == "" || token == authz {
		return "", wfserr.New(wfserr.EAuthenticationFailed, "missing bearer token", "", "set the Authorization: Bearer <token> header", nil)
	}
	for _, accepted := range s.cfg.AuthTokens {
		if token == accepted {
			return token, nil
		}
	}
	return "", wfserr.New(wfserr.EAuthenticationFailed, "invalid bearer token", "", "", nil)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      "changesd",
		"version":   apiVersion,
		"endpoints": []string{"/sse", "/mcp", "/healthz", "/readyz", "/metrics"},
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).String(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if s.engine == nil || s.engine.Lifecycle == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "reason": "engine not initialized"})
		return
	}
	if _, err := s.engine.ChangesActive(1, 1, ""); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "reason": "filesystem inaccessible"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "tools": len(s.disp.Tools())})
}

// toolRequestBody is the shared body shape for both /sse and /mcp.
type toolRequestBody struct {
	Tool       string         `json:"tool"`
	Input      map[string]any `json:"input"`
	APIVersion string         `json:"apiVersion,omitempty"`
}

func decodeToolRequest(r *http.Request) (*toolRequestBody, error) {
	var body toolRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, wfserr.InvalidInput("request body is not valid JSON")
	}
	if body.Tool == "" {
		return nil, wfserr.New(wfserr.EInvalidToolName, "tool name is required", "", "", nil)
	}
	return &body, nil
}

// callTool invokes the dispatcher's tools/call path directly, reusing the
// same registry and validation the stdio transport uses, and returns the
// raw tool-result JSON (already marshaled by internal/engine) plus any
// dispatcher-level error.
func (s *Server) callTool(ctx context.Context, tool string, input map[string]any) (json.RawMessage, *wfserr.Error) {
	params, _ := json.Marshal(rpc.ToolCallParams{Name: tool, Arguments: input})
	resp := s.disp.Handle(ctx, rpc.Request{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})

	if resp.Error != nil {
		// Dispatcher-level failure: malformed body or schema-invalid
		// arguments, both wire as INVALID_INPUT over HTTP.
		return nil, wfserr.New(wfserr.EInvalidInput, resp.Error.Message, fmt.Sprint(resp.Error.Data), "", nil)
	}
	result, ok := resp.Result.(*rpc.ToolResult)
	if !ok {
		return nil, wfserr.Internal("unexpected tool result shape", nil)
	}
	if result.IsError {
		code := wfserr.Code(result.Code)
		if code == "" {
			// Only the "unknown tool" branch leaves Code unset.
			code = wfserr.EToolNotFound
		}
		msg := ""
		if len(result.Content) > 0 {
			msg = result.Content[0].Text
		}
		return nil, wfserr.New(code, msg, "", "", nil)
	}
	if len(result.Content) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(result.Content[0].Text), nil
}

func withTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 30 * time.Second
	}
	return context.WithTimeout(r.Context(), d)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// envelopeError is the HTTP error envelope shape.
type envelopeError struct {
	APIVersion string       `json:"apiVersion"`
	Error      ErrorPayload `json:"error"`
	Timestamp  string       `json:"timestamp"`
	RequestID  string       `json:"requestId,omitempty"`
}

func (s *Server) writeJSONError(w http.ResponseWriter, r *http.Request, err error) {
	we := wfserr.AsError(err)
	s.metrics.observeError(string(we.Code))
	status := statusForCode(we.Code)
	s.metrics.observeRequest("error", status)
	writeJSON(w, status, envelopeError{
		APIVersion: apiVersion,
		Error:      errorPayload(we),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		RequestID:  requestIDFrom(r.Context()),
	})
}

// Log is the HTTP transport's request logger. It uses the standard log
// package rather than the stdio transport's stderr-tagged diagnostics:
// HTTP responses never share a stream with log output.
func (s *Server) Log(format string, args ...any) {
	log.Printf(format, args...)
}
