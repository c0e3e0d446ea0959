// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package streamreader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScoreBands(t *testing.T) {
	require.Equal(t, BandNone, Band(Score(0, 0, 0)))
	require.Equal(t, BandCritical, Band(Score(95, 10, 50)))
}

func TestScoreCapsEachFactor(t *testing.T) {
	// heap alone should never exceed its 40-point share even at 100%.
	require.LessOrEqual(t, Score(100, 0, 0), 40)
	// active-stream count alone caps at 30.
	require.LessOrEqual(t, Score(0, 1000, 0), 30)
	// chunk latency alone caps at 30.
	require.LessOrEqual(t, Score(0, 0, 10000), 30)
}

func TestInterChunkDelayIncreasesWithBand(t *testing.T) {
	require.Equal(t, InterChunkDelay(BandNone), InterChunkDelay(BandNone))
	require.Less(t, InterChunkDelay(BandLight), InterChunkDelay(BandModerate))
	require.Less(t, InterChunkDelay(BandModerate), InterChunkDelay(BandHeavy))
}

func TestMaxConcurrentStreamsHeavyBand(t *testing.T) {
	require.Equal(t, 1, MaxConcurrentStreams(BandHeavy))
	require.Equal(t, 0, MaxConcurrentStreams(BandModerate))
}

func TestMonitorStartsAtNormal(t *testing.T) {
	m := NewMonitor(time.Hour, 70, 90)
	defer m.Stop()
	require.GreaterOrEqual(t, m.HeapPercent(), 0.0)
}

func TestMonitorActiveCount(t *testing.T) {
	m := NewMonitor(time.Hour, 70, 90)
	defer m.Stop()
	m.IncActive()
	m.IncActive()
	require.EqualValues(t, 2, m.ActiveCount())
	m.DecActive()
	require.EqualValues(t, 1, m.ActiveCount())
}
