// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package streamreader

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, size int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.bin")
	data := make([]byte, size)
	rand.New(rand.NewSource(1)).Read(data)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readAllChunks(t *testing.T, r *Reader) []byte {
	t.Helper()
	var buf bytes.Buffer
	ctx := context.Background()
	for {
		chunk, err := r.Next(ctx)
		require.NoError(t, err)
		buf.Write(chunk.Data)
		if chunk.Final {
			break
		}
	}
	return buf.Bytes()
}

func TestStreamingEquivalenceToBufferedRead(t *testing.T) {
	path := writeTempFile(t, 50*1024)

	buffered, err := ReadAll(path)
	require.NoError(t, err)

	r, err := Open(path, nil)
	require.NoError(t, err)
	defer r.Close()

	streamed := readAllChunks(t, r)
	require.True(t, bytes.Equal(buffered, streamed))
}

func TestCheckpointAndResumeSucceeds(t *testing.T) {
	path := writeTempFile(t, 400*1024)

	r, err := Open(path, nil)
	require.NoError(t, err)

	ctx := context.Background()
	var delivered bytes.Buffer
	var cp Checkpoint
	for i := 0; i < 3; i++ {
		chunk, err := r.Next(ctx)
		require.NoError(t, err)
		delivered.Write(chunk.Data)
		require.False(t, chunk.Final)
	}
	cp = r.Checkpoint()
	require.NoError(t, r.Close())

	resumed, err := Resume(path, cp, nil)
	require.NoError(t, err)
	defer resumed.Close()

	rest := readAllChunks(t, resumed)
	delivered.Write(rest)

	full, err := ReadAll(path)
	require.NoError(t, err)
	require.True(t, bytes.Equal(full, delivered.Bytes()))
}

func TestResumeRefusedWhenFileChanged(t *testing.T) {
	path := writeTempFile(t, 100*1024)

	r, err := Open(path, nil)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = r.Next(ctx)
	require.NoError(t, err)
	cp := r.Checkpoint()
	require.NoError(t, r.Close())

	// Mutate the file: append a byte, changing its size.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xFF})
	require.NoError(t, f.Close())
	require.NoError(t, err)

	_, err = Resume(path, cp, nil)
	require.ErrorIs(t, err, ErrFileChanged)
}

func TestClassifyRetryable(t *testing.T) {
	require.Equal(t, ClassNonRetryable, Classify(ErrFileChanged))
	require.Equal(t, ClassNonRetryable, Classify(os.ErrPermission))
}

func TestMonitorIncDecAcrossOpenClose(t *testing.T) {
	m := NewMonitor(time.Hour, 70, 90)
	defer m.Stop()
	path := writeTempFile(t, 10*1024)

	r, err := Open(path, m)
	require.NoError(t, err)
	require.EqualValues(t, 1, m.ActiveCount())
	require.NoError(t, r.Close())
	require.EqualValues(t, 0, m.ActiveCount())
}
