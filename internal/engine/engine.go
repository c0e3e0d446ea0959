// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine binds the workflow engine (lifecycle, pagination,
// resource URIs, streaming reads) to the tagged tool registry and
// resource reader shape internal/rpc expects. It is the one place both
// transports (stdio and HTTP) get their tool handlers from: a single
// {name -> {inputSchema, invoke}} registry, constructed once.
package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kraklabs/changesd/internal/lifecycle"
	"github.com/kraklabs/changesd/internal/pagination"
	"github.com/kraklabs/changesd/internal/resourceuri"
	"github.com/kraklabs/changesd/internal/rpc"
	"github.com/kraklabs/changesd/internal/streamreader"
	"github.com/kraklabs/changesd/internal/wfserr"
)

const (
	ToolChangeOpen    = "change.open"
	ToolChangeArchive = "change.archive"
	ToolChangesActive = "changes.active"
)

// Engine composes the lifecycle state machine, the pagination engine, and
// the streaming reader into the handlers the JSON-RPC dispatcher calls by
// name. It holds no mutable state beyond what its components already own,
// so it is safe for the concurrent HTTP transport to share one instance
// across connections.
type Engine struct {
	Lifecycle *lifecycle.Engine
	Pager     *pagination.Engine
	Monitor   *streamreader.Monitor
}

func New(lc *lifecycle.Engine, pager *pagination.Engine, monitor *streamreader.Monitor) *Engine {
	return &Engine{Lifecycle: lc, Pager: pager, Monitor: monitor}
}

// Tools returns the static {name -> {schema, handler}} registry for
// tools/list and tools/call.
func (e *Engine) Tools() []rpc.ToolEntry {
	return []rpc.ToolEntry{
		{Tool: changeOpenSchema(), Handler: e.handleChangeOpen},
		{Tool: changeArchiveSchema(), Handler: e.handleChangeArchive},
		{Tool: changesActiveSchema(), Handler: e.handleChangesActive},
	}
}

// Resources returns the registered resource URI schemes and example URIs
// for resources/list.
func (e *Engine) Resources() []rpc.ResourceDescriptor {
	return []rpc.ResourceDescriptor{
		{URIScheme: "changes", Example: "changes://active?page=1&pageSize=50", MIMEHint: "application/json"},
		{URIScheme: "change", Example: "change://add-auth/proposal", MIMEHint: "text/markdown"},
	}
}

func getString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func getInt(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func textResult(text string) *rpc.ToolResult {
	return &rpc.ToolResult{Content: []rpc.Content{{Type: "text", Text: text}}}
}

func jsonResult(v any) (*rpc.ToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, wfserr.Internal("cannot marshal tool result", err)
	}
	return textResult(string(data)), nil
}

func (e *Engine) handleChangeOpen(_ context.Context, args map[string]any) (*rpc.ToolResult, error) {
	req := lifecycle.OpenRequest{
		Title:     getString(args, "title"),
		Slug:      getString(args, "slug"),
		Rationale: getString(args, "rationale"),
		Owner:     getString(args, "owner"),
		TTL:       getInt(args, "ttl", 0),
		Template:  getString(args, "template"),
	}
	res, err := e.Lifecycle.Open(req)
	if err != nil {
		return nil, err
	}
	return jsonResult(openResponse(e.Lifecycle, res))
}

func (e *Engine) handleChangeArchive(_ context.Context, args map[string]any) (*rpc.ToolResult, error) {
	slug := getString(args, "slug")
	res, err := e.Lifecycle.Archive(slug)
	if err != nil {
		return nil, err
	}
	return jsonResult(archiveResponse(e.Lifecycle, res))
}

func (e *Engine) handleChangesActive(_ context.Context, args map[string]any) (*rpc.ToolResult, error) {
	page, err := e.ChangesActive(getInt(args, "page", 1), getInt(args, "pageSize", 0), getString(args, "nextPageToken"))
	if err != nil {
		return nil, err
	}
	return jsonResult(page)
}

// ActiveResponse is the wire shape of changes.active's output and the
// changes://active resource payload, identical either way.
type ActiveResponse struct {
	Page                int                    `json:"page"`
	PageSize            int                    `json:"pageSize"`
	TotalItems          int                    `json:"totalItems"`
	HasMore             bool                   `json:"hasMore"`
	NextPageToken       string                 `json:"nextPageToken,omitempty"`
	ModificationWarning bool                   `json:"modificationWarning,omitempty"`
	Items               []ActiveResponseItem   `json:"items"`
}

type ActiveResponseItem struct {
	Slug      string           `json:"slug"`
	Title     string           `json:"title"`
	Status    string           `json:"status"`
	Template  string           `json:"template,omitempty"`
	Owner     string           `json:"owner,omitempty"`
	CreatedAt string           `json:"createdAt"`
	UpdatedAt string           `json:"updatedAt"`
	Paths     lifecycle.Paths  `json:"paths"`
}

// ChangesActive is the shared implementation behind the changes.active
// tool and the changes://active resource: both transports and both
// addressing schemes produce this same payload.
func (e *Engine) ChangesActive(page, pageSize int, token string) (*ActiveResponse, error) {
	result, err := e.Lifecycle.ListActive(e.Pager, page, pageSize, token)
	if err != nil {
		return nil, err
	}
	items := make([]ActiveResponseItem, 0, len(result.Items))
	for _, it := range result.Items {
		items = append(items, ActiveResponseItem{
			Slug:      it.Slug,
			Title:     it.Title,
			Status:    it.Status,
			Template:  it.Template,
			Owner:     it.Owner,
			CreatedAt: it.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			UpdatedAt: it.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Paths:     it.Paths,
		})
	}
	return &ActiveResponse{
		Page:                result.Page,
		PageSize:            result.PageSize,
		TotalItems:          result.TotalItems,
		HasMore:             result.HasMore,
		NextPageToken:       result.NextPageToken,
		ModificationWarning: result.ModificationWarning,
		Items:               items,
	}, nil
}

// ReadResource implements rpc.ResourceReader: it parses uri, refuses
// traversal per the URI-safety invariant, and reads either a listing
// (changes://active) or an artifact (change://<slug>/<path>) via the
// streaming reader when the file is large enough to warrant it.
func (e *Engine) ReadResource(ctx context.Context, raw string) (*rpc.ResourcesReadResult, error) {
	u, err := resourceuri.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Security.HasPathTraversal || u.Security.HasInvalidSlug {
		return nil, wfserr.PathEscape(fmt.Sprintf("resource URI %q failed safety checks", raw))
	}

	switch u.Scheme {
	case resourceuri.SchemeChanges:
		return e.readChangesActive(u)
	case resourceuri.SchemeChange:
		return e.readArtifact(ctx, u)
	default:
		return nil, wfserr.New(wfserr.EInvalidInput, "unsupported resource scheme", u.Scheme, "", nil)
	}
}

func (e *Engine) readChangesActive(u *resourceuri.URI) (*rpc.ResourcesReadResult, error) {
	page := 1
	pageSize := 0
	token := u.Query["nextPageToken"]
	if v, ok := u.Query["page"]; ok {
		fmt.Sscanf(v, "%d", &page)
	}
	if v, ok := u.Query["pageSize"]; ok {
		fmt.Sscanf(v, "%d", &pageSize)
	}

	resp, err := e.ChangesActive(page, pageSize, token)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, wfserr.Internal("cannot marshal listing", err)
	}
	return &rpc.ResourcesReadResult{Contents: []rpc.ResourceContent{{
		URI: "changes://active", MIME: "application/json", Text: string(data),
	}}}, nil
}

func (e *Engine) readArtifact(ctx context.Context, u *resourceuri.URI) (*rpc.ResourcesReadResult, error) {
	slug := u.Slug()
	rel := u.ArtifactPath()
	mime := u.MIME
	switch rel {
	case "", "proposal":
		rel = "proposal.md"
		mime = "text/markdown"
	case "tasks":
		rel = "tasks.md"
		mime = "text/markdown"
	default:
		rel = strings.TrimPrefix(rel, "delta/")
		rel = "delta/" + rel
	}

	path, err := e.artifactPath(slug, rel)
	if err != nil {
		return nil, err
	}

	level := streamreader.PressureNormal
	var size int64
	if info, statErr := statSize(path); statErr == nil {
		size = info
	} else {
		return nil, wfserr.NoChange(slug)
	}
	if e.Monitor != nil {
		level = e.Monitor.Level()
	}

	var data []byte
	if streamreader.ShouldStream(size, level) {
		data, err = drainStreamed(ctx, path, e.Monitor)
	} else {
		data, err = streamreader.ReadAll(path)
	}
	if err != nil {
		return nil, err
	}

	content := rpc.ResourceContent{URI: fmt.Sprintf("change://%s/%s", slug, rel), MIME: mime}
	if strings.HasPrefix(mime, "text/") || mime == "application/json" || mime == "application/yaml" || mime == "application/xml" || mime == "application/javascript" || mime == "application/typescript" {
		content.Text = string(data)
	} else {
		content.Blob = base64.StdEncoding.EncodeToString(data)
	}
	return &rpc.ResourcesReadResult{Contents: []rpc.ResourceContent{content}}, nil
}

func drainStreamed(ctx context.Context, path string, monitor *streamreader.Monitor) ([]byte, error) {
	r, err := streamreader.Open(path, monitor)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var buf []byte
	for {
		chunk, err := r.Next(ctx)
		if err != nil {
			return nil, err
		}
		buf = append(buf, chunk.Data...)
		if chunk.Final {
			break
		}
	}
	return buf, nil
}
