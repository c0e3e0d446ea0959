// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package streamreader implements the memory-bounded, backpressure-aware,
// resumable artifact reader. It exposes a pull-style iterator of chunks:
// the transport calls Next, applies whatever inter-chunk delay the current
// backpressure band demands, and flushes.
package streamreader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"os"
	"time"

	"github.com/kraklabs/changesd/internal/wfserr"
)

// ErrFileChanged is returned by Resume when the file's size or mtime no
// longer matches the checkpoint, meaning recovery must be refused.
var ErrFileChanged = errors.New("streamreader: file changed since checkpoint, recovery refused")

// Checkpoint is the in-memory record of a suspended read. Checkpoints exist
// only for a stream's lifetime: discarded on success, cancellation, or
// invalidation.
type Checkpoint struct {
	Path          string
	Size          int64
	ModTime       time.Time
	BytesRead     int64
	ChunkIndex    int
	ContentHash   string // rolling hash of bytes delivered so far
}

// Chunk is one unit yielded by Reader.Next.
type Chunk struct {
	Data       []byte
	Index      int
	BytesSoFar int64
	Final      bool
}

// Reader is a pull-style iterator over one artifact file's contents.
type Reader struct {
	path    string
	file    *os.File
	size    int64
	modTime time.Time

	monitor *Monitor

	hasher      hash.Hash
	bytesRead   int64
	chunkIndex  int
	lastChunkMS []float64 // rolling window of the last 5 chunk durations

	throughputBytesPerSec float64
	started               time.Time
}

// Open begins a stream over path. The caller is responsible for deciding
// (via ShouldStream) whether to use a Reader at all.
func Open(path string, monitor *Monitor) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wfserr.IO("cannot open artifact for streaming", err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, wfserr.IO("cannot stat artifact", err)
	}
	r := &Reader{
		path:    path,
		file:    f,
		size:    fi.Size(),
		modTime: fi.ModTime(),
		monitor: monitor,
		hasher:  sha256.New(),
		started: time.Now(),
	}
	if monitor != nil {
		monitor.IncActive()
	}
	return r, nil
}

// Close releases the underlying file handle and decrements the active
// stream count.
func (r *Reader) Close() error {
	if r.monitor != nil {
		r.monitor.DecActive()
	}
	return r.file.Close()
}

// Checkpoint returns a snapshot suitable for later Resume.
func (r *Reader) Checkpoint() Checkpoint {
	return Checkpoint{
		Path:        r.path,
		Size:        r.size,
		ModTime:     r.modTime,
		BytesRead:   r.bytesRead,
		ChunkIndex:  r.chunkIndex,
		ContentHash: hex.EncodeToString(r.hasher.Sum(nil)),
	}
}

func (r *Reader) level() PressureLevel {
	if r.monitor == nil {
		return PressureNormal
	}
	return r.monitor.Level()
}

func (r *Reader) avgChunkMillis() float64 {
	if len(r.lastChunkMS) == 0 {
		return 0
	}
	var sum float64
	for _, ms := range r.lastChunkMS {
		sum += ms
	}
	return sum / float64(len(r.lastChunkMS))
}

func (r *Reader) recordChunkDuration(d time.Duration) {
	ms := float64(d.Milliseconds())
	r.lastChunkMS = append(r.lastChunkMS, ms)
	if len(r.lastChunkMS) > 5 {
		r.lastChunkMS = r.lastChunkMS[len(r.lastChunkMS)-5:]
	}
}

// BackpressureScore returns the current 0-100 score for this reader's
// shared monitor.
func (r *Reader) BackpressureScore() int {
	active := int64(1)
	heap := 0.0
	if r.monitor != nil {
		active = r.monitor.ActiveCount()
		heap = r.monitor.HeapPercent()
	}
	return Score(heap, active, r.avgChunkMillis())
}

// Next yields the next chunk, honoring ctx cancellation between chunks and
// applying the backpressure band's inter-chunk delay. It returns io.EOF via
// Chunk.Final=true rather than a sentinel error.
func (r *Reader) Next(ctx context.Context) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}

	score := r.BackpressureScore()
	band := Band(score)
	if band == BandCritical {
		return Chunk{}, wfserr.New(wfserr.EInternal, "stream suspended under critical memory pressure", "", "retry later", nil)
	}
	if delay := InterChunkDelay(band); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Chunk{}, ctx.Err()
		}
	}

	size := AdaptiveChunkSize(r.size, r.level(), r.throughputBytesPerSec)
	buf := make([]byte, size)

	start := time.Now()
	n, err := r.file.Read(buf)
	elapsed := time.Since(start)
	r.recordChunkDuration(elapsed)

	if n > 0 {
		r.hasher.Write(buf[:n])
		r.bytesRead += int64(n)
		r.chunkIndex++
		if elapsedSec := time.Since(r.started).Seconds(); elapsedSec > 0 {
			r.throughputBytesPerSec = float64(r.bytesRead) / elapsedSec
		}
	}

	final := errors.Is(err, io.EOF)
	if err != nil && !final {
		return Chunk{}, classifyIOError(err)
	}

	return Chunk{
		Data:       buf[:n],
		Index:      r.chunkIndex - 1,
		BytesSoFar: r.bytesRead,
		Final:      final,
	}, nil
}

// ErrorClass is the retry classification for a failure encountered during
// streaming or resumption.
type ErrorClass int

const (
	ClassRetryable ErrorClass = iota
	ClassNonRetryable
)

// classifyIOError wraps err as EIO; the class is exposed via Classify.
func classifyIOError(err error) error {
	return wfserr.IO("streaming read failed", err)
}

// Classify returns the retry class of err for the resumption policy:
// I/O and memory pressure errors are retryable with backoff; permission
// errors, file-changed errors, and validation errors are not.
func Classify(err error) ErrorClass {
	if errors.Is(err, ErrFileChanged) {
		return ClassNonRetryable
	}
	if errors.Is(err, os.ErrPermission) {
		return ClassNonRetryable
	}
	if we := wfserr.AsError(err); we != nil {
		switch we.Code {
		case wfserr.EInvalidInput, wfserr.EBadSlug, wfserr.EPathEscape:
			return ClassNonRetryable
		}
	}
	return ClassRetryable
}

// Resume re-opens path and validates a prior checkpoint before seeking to
// its byte offset. Recovery succeeds only if size/mtime are unchanged and
// the recorded content hash matches the prefix re-read.
func Resume(path string, cp Checkpoint, monitor *Monitor) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wfserr.IO("cannot reopen artifact for resume", err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, wfserr.IO("cannot stat artifact for resume", err)
	}
	if fi.Size() != cp.Size || !fi.ModTime().Equal(cp.ModTime) {
		_ = f.Close()
		return nil, ErrFileChanged
	}

	hasher := sha256.New()
	prefix := make([]byte, cp.BytesRead)
	if _, err := io.ReadFull(f, prefix); err != nil {
		_ = f.Close()
		return nil, wfserr.IO("cannot re-read checkpoint prefix", err)
	}
	hasher.Write(prefix)
	if hex.EncodeToString(hasher.Sum(nil)) != cp.ContentHash {
		_ = f.Close()
		return nil, ErrFileChanged
	}

	r := &Reader{
		path:       path,
		file:       f,
		size:       fi.Size(),
		modTime:    fi.ModTime(),
		monitor:    monitor,
		hasher:     hasher,
		bytesRead:  cp.BytesRead,
		chunkIndex: cp.ChunkIndex,
		started:    time.Now(),
	}
	if monitor != nil {
		monitor.IncActive()
	}
	return r, nil
}

// ReadAll performs a plain buffered read, used when ShouldStream reports
// false. It is provided so callers have a single entry point regardless of
// the streaming decision.
func ReadAll(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wfserr.IO("cannot read artifact", err)
	}
	return data, nil
}
