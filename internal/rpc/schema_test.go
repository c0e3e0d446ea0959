// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateArgumentsMissingRequired(t *testing.T) {
	schema := map[string]any{
		"properties": map[string]any{"title": map[string]any{"type": "string"}},
		"required":   []string{"title"},
	}
	err := ValidateArguments(schema, map[string]any{})
	require.Error(t, err)
}

func TestValidateArgumentsTypeMismatch(t *testing.T) {
	schema := map[string]any{
		"properties": map[string]any{"ttl": map[string]any{"type": "integer"}},
	}
	err := ValidateArguments(schema, map[string]any{"ttl": "not-a-number"})
	require.Error(t, err)
}

func TestValidateArgumentsEnum(t *testing.T) {
	schema := map[string]any{
		"properties": map[string]any{
			"template": map[string]any{"type": "string", "enum": []string{"feature", "bugfix", "chore"}},
		},
	}
	require.NoError(t, ValidateArguments(schema, map[string]any{"template": "feature"}))
	require.Error(t, ValidateArguments(schema, map[string]any{"template": "nonsense"}))
}

func TestValidateArgumentsIntegerRange(t *testing.T) {
	schema := map[string]any{
		"properties": map[string]any{
			"ttl": map[string]any{"type": "integer", "minimum": 60, "maximum": 86400},
		},
	}
	require.NoError(t, ValidateArguments(schema, map[string]any{"ttl": float64(3600)}))
	require.Error(t, ValidateArguments(schema, map[string]any{"ttl": float64(10)}))
	require.Error(t, ValidateArguments(schema, map[string]any{"ttl": float64(999999)}))
}
