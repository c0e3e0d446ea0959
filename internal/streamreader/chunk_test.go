// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package streamreader

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShouldStreamBySize(t *testing.T) {
	require.False(t, ShouldStream(100, PressureNormal))
	require.True(t, ShouldStream(sizeOneMiB, PressureNormal))
}

func TestShouldStreamUnderPressureFloors(t *testing.T) {
	require.True(t, ShouldStream(300*1024, PressureCritical))
	require.False(t, ShouldStream(100*1024, PressureCritical))
	require.True(t, ShouldStream(600*1024, PressureWarning))
	require.False(t, ShouldStream(100*1024, PressureWarning))
}

func TestAdaptiveChunkSizeTable(t *testing.T) {
	require.Equal(t, chunkBaseSmall, AdaptiveChunkSize(500*1024, PressureNormal, lowThroughputBytesPerSec*10))
	require.Equal(t, chunkBaseMedium, AdaptiveChunkSize(5*sizeOneMiB, PressureNormal, lowThroughputBytesPerSec*10))
	require.Equal(t, chunkBaseLarge, AdaptiveChunkSize(50*sizeOneMiB, PressureNormal, lowThroughputBytesPerSec*10))
	require.Equal(t, chunkBaseHuge, AdaptiveChunkSize(200*sizeOneMiB, PressureNormal, lowThroughputBytesPerSec*10))
}

func TestAdaptiveChunkSizeScalesWithPressure(t *testing.T) {
	base := AdaptiveChunkSize(500*1024, PressureNormal, lowThroughputBytesPerSec*10)
	critical := AdaptiveChunkSize(500*1024, PressureCritical, lowThroughputBytesPerSec*10)
	warning := AdaptiveChunkSize(500*1024, PressureWarning, lowThroughputBytesPerSec*10)
	require.Less(t, critical, base)
	require.Less(t, warning, base)
	require.Less(t, critical, warning)
}

func TestAdaptiveChunkSizeScalesUpForLowThroughput(t *testing.T) {
	base := AdaptiveChunkSize(500*1024, PressureNormal, lowThroughputBytesPerSec*10)
	low := AdaptiveChunkSize(500*1024, PressureNormal, 1024)
	require.Greater(t, low, base)
}

func TestAdaptiveChunkSizeClamped(t *testing.T) {
	tiny := AdaptiveChunkSize(1, PressureCritical, 0)
	require.GreaterOrEqual(t, tiny, chunkFloor)

	huge := AdaptiveChunkSize(200*sizeOneMiB, PressureNormal, 1)
	require.LessOrEqual(t, huge, chunkCeil)
}
