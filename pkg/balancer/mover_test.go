package balancer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Enabled:               true,
		MaxDiskThroughputMBs:  10,
		BlockTolerancePercent: 10,
		MaxDiskErrors:         5,
		ValidPlanHours:        24,
	}
}

func newTestMover(set *fakeSet) *mover {
	return newMover(set, testConfig(), nil, "test-plan")
}

func newTestEntry(src, dst *fakeVolume, bytesToCopy int64) *workEntry {
	return &workEntry{
		source: src,
		dest:   dst,
		item:   &WorkItem{bytesToCopy: bytesToCopy},
	}
}

func TestCopyBlocksTransientPairIsNoop(t *testing.T) {
	src := newFakeVolume("v1", "/data/disk1")
	src.transient = true
	src.addBlocks("pool-1", 10, 10)
	dst := newFakeVolume("v2", "/data/disk2")
	set := newFakeSet(src, dst)

	m := newTestMover(set)
	entry := newTestEntry(src, dst, 100)
	m.copyBlocks(entry)

	assert.Empty(t, set.movedBlocks())
	assert.Zero(t, entry.item.BytesCopied())
}

func TestCopyBlocksStopsWhenCloseEnough(t *testing.T) {
	src := newFakeVolume("v1", "/data/disk1")
	src.addBlocks("pool-1", 40, 40, 30, 15)
	dst := newFakeVolume("v2", "/data/disk2")
	set := newFakeSet(src, dst)

	m := newTestMover(set)
	entry := newTestEntry(src, dst, 100)
	m.copyBlocks(entry)

	// 40 + 40 fit outright; the 30 exceeds the remaining 20 plus 10% slack
	// and is passed over; the 15 lands and pushes the inflated copied-count
	// past the target.
	assert.Equal(t, []string{"pool-1-blk-0", "pool-1-blk-1", "pool-1-blk-3"}, set.movedBlocks())
	assert.Equal(t, int64(95), entry.item.BytesCopied())
	assert.Equal(t, int64(3), entry.item.BlocksCopied())
	assert.Zero(t, entry.item.ErrorCount())
}

func TestCopyBlocksDestinationFull(t *testing.T) {
	src := newFakeVolume("v1", "/data/disk1")
	src.addBlocks("pool-1", 10, 10)
	dst := newFakeVolume("v2", "/data/disk2")
	dst.available = 50
	set := newFakeSet(src, dst)

	m := newTestMover(set)
	entry := newTestEntry(src, dst, 100)
	m.copyBlocks(entry)

	// The guard compares free space against the pair's total target, so the
	// pair is abandoned before any move and without charging an error.
	assert.Empty(t, set.movedBlocks())
	assert.Zero(t, entry.item.BytesCopied())
	assert.Zero(t, entry.item.ErrorCount())
}

func TestCopyBlocksErrorBudgetExhausted(t *testing.T) {
	src := newFakeVolume("v1", "/data/disk1")
	src.addBlocks("pool-1", 10, 10, 10, 10, 10, 10, 10, 10, 10, 10)
	dst := newFakeVolume("v2", "/data/disk2")
	set := newFakeSet(src, dst)
	for _, blocks := range src.pools {
		for _, b := range blocks {
			set.moveErr[b.BlockID] = errors.New("disk failure")
		}
	}

	m := newTestMover(set)
	entry := newTestEntry(src, dst, 1000)
	m.copyBlocks(entry)

	assert.Equal(t, int64(5), entry.item.ErrorCount())
	assert.Equal(t, "Error count exceeded.", entry.item.ErrMsg())
	assert.Zero(t, entry.item.BytesCopied())
}

func TestCopyBlocksSkipsNonFinalizedBlocks(t *testing.T) {
	src := newFakeVolume("v1", "/data/disk1")
	src.addBlocks("pool-1", 10, 10, 10)
	dst := newFakeVolume("v2", "/data/disk2")
	set := newFakeSet(src, dst)
	set.invalid["pool-1-blk-1"] = true

	m := newTestMover(set)
	entry := newTestEntry(src, dst, 20)
	m.copyBlocks(entry)

	assert.Equal(t, []string{"pool-1-blk-0", "pool-1-blk-2"}, set.movedBlocks())
	assert.Zero(t, entry.item.ErrorCount())
}

func TestGetNextBlockRoundRobinAcrossPools(t *testing.T) {
	src := newFakeVolume("v1", "/data/disk1")
	src.addBlocks("pool-a", 10, 10)
	src.addBlocks("pool-b", 10, 10)
	dst := newFakeVolume("v2", "/data/disk2")
	set := newFakeSet(src, dst)

	m := newTestMover(set)
	entry := newTestEntry(src, dst, 40)
	m.copyBlocks(entry)

	assert.Equal(t,
		[]string{"pool-a-blk-0", "pool-b-blk-0", "pool-a-blk-1", "pool-b-blk-1"},
		set.movedBlocks())
}

func TestCopyBlocksNoBlockPools(t *testing.T) {
	src := newFakeVolume("v1", "/data/disk1")
	dst := newFakeVolume("v2", "/data/disk2")
	set := newFakeSet(src, dst)

	m := newTestMover(set)
	entry := newTestEntry(src, dst, 100)
	m.copyBlocks(entry)

	assert.Empty(t, set.movedBlocks())
	assert.Zero(t, entry.item.BytesCopied())
}

func TestMoverCancellationStopsLoop(t *testing.T) {
	src := newFakeVolume("v1", "/data/disk1")
	sizes := make([]int64, 500)
	for i := range sizes {
		sizes[i] = 1
	}
	src.addBlocks("pool-1", sizes...)
	dst := newFakeVolume("v2", "/data/disk2")
	set := newFakeSet(src, dst)
	set.moveDelay = 2 * time.Millisecond

	m := newTestMover(set)
	entry := newTestEntry(src, dst, 1000)
	m.start([]*workEntry{entry})

	time.Sleep(20 * time.Millisecond)
	m.stop()

	require.Eventually(t, m.finished, time.Second, 5*time.Millisecond,
		"mover did not exit after cancellation")
	assert.Less(t, entry.item.BlocksCopied(), int64(500))
}

func TestComputeDelay(t *testing.T) {
	m := newTestMover(newFakeSet())
	item := &WorkItem{}

	tests := []struct {
		name        string
		bytesCopied int64
		timeUsed    time.Duration
		bandwidth   int64
		expected    time.Duration
	}{
		{
			name:        "zero elapsed time",
			bytesCopied: 100 * 1024 * 1024,
			timeUsed:    0,
			expected:    0,
		},
		{
			name:        "sub-second copy is not throttled",
			bytesCopied: 100 * 1024 * 1024,
			timeUsed:    500 * time.Millisecond,
			expected:    0,
		},
		{
			name:        "fast copy over slow ceiling",
			bytesCopied: 100 * 1024 * 1024,
			timeUsed:    5 * time.Second,
			bandwidth:   5,
			expected:    0, // 100/5 - 100/5 = 0
		},
		{
			name:        "copy at the ceiling sleeps",
			bytesCopied: 100 * 1024 * 1024,
			timeUsed:    20 * time.Second,
			bandwidth:   5,
			expected:    15 * time.Second, // 100/5 - 100/20 = 20 - 5
		},
		{
			name:        "copy well over the ceiling",
			bytesCopied: 100 * 1024 * 1024,
			timeUsed:    2 * time.Second,
			expected:    0, // 100/10 - 100/2 < 0
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item.bandwidthMBs = tt.bandwidth
			assert.Equal(t, tt.expected, m.computeDelay(tt.bytesCopied, tt.timeUsed, item))
		})
	}
}

func TestEffectiveParameters(t *testing.T) {
	m := newTestMover(newFakeSet())

	// Zero overrides inherit the node defaults
	item := &WorkItem{}
	assert.Equal(t, int64(10), m.effectiveBandwidth(item))
	assert.Equal(t, int64(10), m.effectiveTolerance(item))
	assert.Equal(t, int64(5), m.effectiveMaxErrors(item))

	// Positive overrides win
	item = &WorkItem{bandwidthMBs: 25, tolerancePercent: 3, maxDiskErrors: 9}
	assert.Equal(t, int64(25), m.effectiveBandwidth(item))
	assert.Equal(t, int64(3), m.effectiveTolerance(item))
	assert.Equal(t, int64(9), m.effectiveMaxErrors(item))
}

func TestIsCloseEnough(t *testing.T) {
	m := newTestMover(newFakeSet())

	item := &WorkItem{bytesToCopy: 100}
	assert.False(t, m.isCloseEnough(item), "nothing copied yet")

	item.bytesCopied.Store(95)
	assert.True(t, m.isCloseEnough(item), "95 + 9 slack crosses 100")

	item.bytesCopied.Store(90)
	assert.False(t, m.isCloseEnough(item), "90 + 9 does not cross 100")
}
