// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/repo")
	require.Equal(t, DefaultPort, cfg.Port)
	require.Equal(t, DefaultHost, cfg.Host)
	require.True(t, cfg.SecurityHeadersEnabled)
	require.Equal(t, 24, cfg.Pagination.TokenTTLHours)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.Port = "9090"
	cfg.AuthTokens = []string{"abc", "def"}

	path := ConfigPath(dir)
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path, dir)
	require.NoError(t, err)
	require.Equal(t, "9090", loaded.Port)
	require.Equal(t, []string{"abc", "def"}, loaded.AuthTokens)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nonexistent.yaml"), dir)
	require.NoError(t, err)
	require.Equal(t, DefaultPort, cfg.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("AUTH_TOKENS", "one, two ,three")
	t.Setenv("RATE_LIMIT", "50")

	dir := t.TempDir()
	cfg, err := Load("", dir)
	require.NoError(t, err)
	require.Equal(t, "9999", cfg.Port)
	require.Equal(t, []string{"one", "two", "three"}, cfg.AuthTokens)
	require.Equal(t, 50, cfg.RateLimit.RPM)
}
