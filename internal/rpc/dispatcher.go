// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kraklabs/changesd/internal/wfserr"
)

const ProtocolVersion = "2024-11-05"

// ToolHandler invokes the workflow engine for one tool. It returns a
// *ToolResult on success (possibly IsError=true for a tool-result-level
// failure) or a dispatcher-level error for malformed input.
type ToolHandler func(ctx context.Context, args map[string]any) (*ToolResult, error)

// ToolEntry binds a tool's schema to its handler: one entry per name in
// the registry, {name -> {inputSchema, invoke}}.
type ToolEntry struct {
	Tool    Tool
	Handler ToolHandler
}

// ResourceReader resolves a parsed resource URI into its content.
type ResourceReader func(ctx context.Context, uri string) (*ResourcesReadResult, error)

// Dispatcher routes JSON-RPC requests to the tool registry and the
// resource reader. It is safe for concurrent use once constructed: the
// registry is frozen after NewDispatcher returns.
type Dispatcher struct {
	info         ServerInfo
	instructions string
	tools        map[string]ToolEntry
	resources    []ResourceDescriptor
	readResource ResourceReader

	initialized bool // stdio-only gate; HTTP treats every call as initialized
}

func NewDispatcher(info ServerInfo, instructions string, tools []ToolEntry, resources []ResourceDescriptor, reader ResourceReader) *Dispatcher {
	registry := make(map[string]ToolEntry, len(tools))
	for _, t := range tools {
		registry[t.Tool.Name] = t
	}
	return &Dispatcher{
		info:         info,
		instructions: instructions,
		tools:        registry,
		resources:    resources,
		readResource: reader,
		initialized:  true,
	}
}

// Tools returns the static registry for tools/list.
func (d *Dispatcher) Tools() []Tool {
	out := make([]Tool, 0, len(d.tools))
	for _, entry := range d.tools {
		out = append(out, entry.Tool)
	}
	return out
}

// SetRequireInitialize controls whether Handle enforces the stdio "must
// call initialize first" rule. Pass true for the stdio transport; HTTP
// transports should pass false so every connection is treated as ready.
func (d *Dispatcher) SetRequireInitialize(required bool) {
	d.initialized = !required
}

// Handle routes one request to its method implementation.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	if req.Method != "initialize" && req.Method != "notifications/initialized" && !d.initialized {
		return errorResponse(req.ID, CodeNotInitialized, "server not initialized", nil)
	}

	switch req.Method {
	case "initialize":
		d.initialized = true
		return Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: InitializeResult{
				ProtocolVersion: ProtocolVersion,
				Capabilities: Capabilities{
					Tools:     map[string]any{"listChanged": false},
					Resources: map[string]any{"listChanged": false},
				},
				ServerInfo:   d.info,
				Instructions: d.instructions,
			},
		}

	case "notifications/initialized":
		return Response{}

	case "tools/list":
		return Response{JSONRPC: "2.0", ID: req.ID, Result: ToolsListResult{Tools: d.Tools()}}

	case "tools/call":
		return d.handleToolsCall(ctx, req)

	case "resources/list":
		return Response{JSONRPC: "2.0", ID: req.ID, Result: ResourcesListResult{Resources: d.resources}}

	case "resources/read":
		return d.handleResourcesRead(ctx, req)

	default:
		return errorResponse(req.ID, CodeMethodNotFound, "method not found", req.Method)
	}
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req Request) Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params", err.Error())
	}

	entry, ok := d.tools[params.Name]
	if !ok {
		return toolResultResponse(req.ID, &ToolResult{
			Content: []Content{{Type: "text", Text: fmt.Sprintf("unknown tool: %s", params.Name)}},
			IsError: true,
		})
	}

	if err := ValidateArguments(entry.Tool.InputSchema, params.Arguments); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid arguments", err.Error())
	}

	result, err := entry.Handler(ctx, params.Arguments)
	if err != nil {
		return toolResultResponse(req.ID, formatToolError(err))
	}
	return toolResultResponse(req.ID, result)
}

func (d *Dispatcher) handleResourcesRead(ctx context.Context, req Request) Response {
	var params ResourcesReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params", err.Error())
	}
	if d.readResource == nil {
		return errorResponse(req.ID, CodeInternalError, "no resource reader configured", nil)
	}
	result, err := d.readResource(ctx, params.URI)
	if err != nil {
		we := wfserr.AsError(err)
		code := CodeInvalidParams
		if we.Code == wfserr.EIO || we.Code == wfserr.EInternal {
			code = CodeInternalError
		}
		return errorResponse(req.ID, code, we.Title, we.Code)
	}
	return Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func formatToolError(err error) *ToolResult {
	we := wfserr.AsError(err)
	return &ToolResult{
		Content: []Content{{Type: "text", Text: we.Format(false)}},
		IsError: true,
		Code:    string(we.Code),
	}
}

func toolResultResponse(id any, result *ToolResult) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id any, code int, message string, data any) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message, Data: data}}
}
