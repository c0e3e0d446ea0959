// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func echoHandler(ctx context.Context, args map[string]any) (*ToolResult, error) {
	data, _ := json.Marshal(args)
	return &ToolResult{Content: []Content{{Type: "text", Text: string(data)}}}, nil
}

func testDispatcher() *Dispatcher {
	tools := []ToolEntry{
		{
			Tool: Tool{
				Name:        "change.open",
				Description: "open a change",
				InputSchema: map[string]any{
					"properties": map[string]any{
						"title": map[string]any{"type": "string", "minLength": 1},
						"slug":  map[string]any{"type": "string"},
					},
					"required": []string{"title", "slug"},
				},
			},
			Handler: echoHandler,
		},
	}
	return NewDispatcher(ServerInfo{Name: "changesd", Version: "1.0"}, "instructions", tools, nil, nil)
}

func TestInitializeUnlocksStdioGate(t *testing.T) {
	d := testDispatcher()
	d.SetRequireInitialize(true)

	resp := d.Handle(context.Background(), Request{JSONRPC: "2.0", ID: 1, Method: "tools/list"})
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeNotInitialized, resp.Error.Code)

	resp = d.Handle(context.Background(), Request{JSONRPC: "2.0", ID: 1, Method: "initialize"})
	require.Nil(t, resp.Error)

	resp = d.Handle(context.Background(), Request{JSONRPC: "2.0", ID: 2, Method: "tools/list"})
	require.Nil(t, resp.Error)
}

func TestToolsListReturnsRegistry(t *testing.T) {
	d := testDispatcher()
	resp := d.Handle(context.Background(), Request{JSONRPC: "2.0", ID: 1, Method: "tools/list"})
	result, ok := resp.Result.(ToolsListResult)
	require.True(t, ok)
	require.Len(t, result.Tools, 1)
	require.Equal(t, "change.open", result.Tools[0].Name)
}

func TestToolsCallValidatesRequiredFields(t *testing.T) {
	d := testDispatcher()
	params, _ := json.Marshal(ToolCallParams{Name: "change.open", Arguments: map[string]any{"title": "x"}})
	resp := d.Handle(context.Background(), Request{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestToolsCallInvokesHandler(t *testing.T) {
	d := testDispatcher()
	params, _ := json.Marshal(ToolCallParams{Name: "change.open", Arguments: map[string]any{"title": "x", "slug": "add-auth"}})
	resp := d.Handle(context.Background(), Request{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(*ToolResult)
	require.True(t, ok)
	require.False(t, result.IsError)
}

func TestToolsCallUnknownToolIsToolResultError(t *testing.T) {
	d := testDispatcher()
	params, _ := json.Marshal(ToolCallParams{Name: "bogus.tool", Arguments: map[string]any{}})
	resp := d.Handle(context.Background(), Request{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(*ToolResult)
	require.True(t, ok)
	require.True(t, result.IsError)
}

func TestUnknownMethod(t *testing.T) {
	d := testDispatcher()
	resp := d.Handle(context.Background(), Request{JSONRPC: "2.0", ID: 1, Method: "bogus/method"})
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeMethodNotFound, resp.Error.Code)
}
