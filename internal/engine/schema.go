// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import "github.com/kraklabs/changesd/internal/rpc"

// Tool input schemas, expressed in the narrow JSON-Schema subset
// internal/rpc.ValidateArguments understands.

func changeOpenSchema() rpc.Tool {
	return rpc.Tool{
		Name:        ToolChangeOpen,
		Description: "Open (or resume) a change: create its directory, render templates, and acquire its lock.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":     map[string]any{"type": "string", "minLength": 1},
				"slug":      map[string]any{"type": "string", "minLength": 3},
				"rationale": map[string]any{"type": "string"},
				"owner":     map[string]any{"type": "string"},
				"ttl":       map[string]any{"type": "integer", "minimum": 60, "maximum": 86400},
				"template":  map[string]any{"type": "string", "enum": []string{"feature", "bugfix", "chore"}},
			},
			"required": []string{"title", "slug"},
		},
	}
}

func changeArchiveSchema() rpc.Tool {
	return rpc.Tool{
		Name:        ToolChangeArchive,
		Description: "Archive a change: write its receipt and retire the directory from active listings.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"slug": map[string]any{"type": "string", "minLength": 3},
			},
			"required": []string{"slug"},
		},
	}
}

func changesActiveSchema() rpc.Tool {
	return rpc.Tool{
		Name:        ToolChangesActive,
		Description: "List active (non-archived) changes, paginated with a stable cursor.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"page":          map[string]any{"type": "integer", "minimum": 1},
				"pageSize":      map[string]any{"type": "integer", "minimum": 1, "maximum": 200},
				"nextPageToken": map[string]any{"type": "string"},
			},
		},
	}
}
