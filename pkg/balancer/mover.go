package balancer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ballast/pkg/events"
	"github.com/cuemby/ballast/pkg/log"
	"github.com/cuemby/ballast/pkg/metrics"
	"github.com/cuemby/ballast/pkg/volume"
)

// iteratorTag labels block iterators opened by the mover in diagnostics
const iteratorTag = "disk-balancer"

// mover executes one plan's work map: it drains source block pools pair by
// pair and moves blocks across volumes, shaping bandwidth after every move
// and charging I/O failures against the pair's error budget.
//
// A mover runs on a single goroutine; all work is sequential. Cancellation
// is cooperative: stop() clears the shouldRun flag, which the copy loop
// observes at the top of each iteration and again after block selection.
type mover struct {
	dataset  volume.Set
	cfg      Config
	eventLog *events.Log
	planID   string
	logger   zerolog.Logger

	shouldRun atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}

	// poolCursor is the rotating block-pool index. It persists across
	// copyBlocks calls for the lifetime of this mover.
	poolCursor int
}

func newMover(dataset volume.Set, cfg Config, eventLog *events.Log, planID string) *mover {
	m := &mover{
		dataset:  dataset,
		cfg:      cfg,
		eventLog: eventLog,
		planID:   planID,
		logger:   log.ForPlan("mover", planID),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	m.shouldRun.Store(true)
	return m
}

// start launches the mover over the work entries, in plan order
func (m *mover) start(entries []*workEntry) {
	go func() {
		defer close(m.done)
		for _, e := range entries {
			if !m.shouldRun.Load() {
				return
			}
			m.copyBlocks(e)
		}
	}()
}

// stop requests cooperative termination. Safe to call more than once.
func (m *mover) stop() {
	m.stopOnce.Do(func() {
		m.shouldRun.Store(false)
		close(m.stopCh)
	})
}

// finished reports whether the mover goroutine has exited
func (m *mover) finished() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// copyBlocks runs the inner copy loop for one volume pair.
func (m *mover) copyBlocks(entry *workEntry) {
	src, dst, item := entry.source, entry.dest, entry.item
	logger := log.ForPair(m.logger, src.BasePath(), dst.BasePath())

	// Transient tiers hold no data worth shifting
	if src.IsTransientStorage() || dst.IsTransientStorage() {
		logger.Info().Msg("skipping transient storage pair")
		return
	}

	item.startTime = time.Now()

	iters := m.openPoolIterators(src, item, logger)
	if len(iters) == 0 {
		logger.Warn().Msg("source volume has no block pools")
		return
	}
	defer func() {
		for _, it := range iters {
			if err := it.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close block iterator")
			}
		}
	}()

	for m.shouldRun.Load() {
		if item.errorCount.Load() > m.effectiveMaxErrors(item) {
			item.setErrMsg("Error count exceeded.")
			logger.Error().
				Int64("error_count", item.errorCount.Load()).
				Msg("error budget exhausted, abandoning pair")
			break
		}

		if m.isCloseEnough(item) {
			logger.Info().
				Int64("bytes_copied", item.bytesCopied.Load()).
				Msg("pair is close enough to target")
			break
		}

		block := m.getNextBlock(iters, item)
		if block == nil {
			logger.Info().Msg("no more candidate blocks on source")
			break
		}

		// Cancellation latency bound: one block
		if !m.shouldRun.Load() {
			break
		}

		avail, err := dst.Available()
		if err != nil {
			logger.Warn().Err(err).Msg("failed to read destination free space")
			item.errorCount.Add(1)
			metrics.MoveErrors.Inc()
			continue
		}
		if avail <= item.bytesToCopy {
			logger.Warn().
				Int64("available", avail).
				Int64("bytes_to_copy", item.bytesToCopy).
				Msg("destination has insufficient space, abandoning pair")
			break
		}

		begin := time.Now()
		if err := m.dataset.MoveBlockAcrossVolumes(block, dst); err != nil {
			logger.Warn().Err(err).
				Str("block", block.BlockID).
				Msg("failed to move block")
			item.errorCount.Add(1)
			metrics.MoveErrors.Inc()
			continue
		}
		timeUsed := time.Since(begin)
		if timeUsed < 0 {
			timeUsed = 0
		}

		m.throttle(m.computeDelay(block.NumBytes, timeUsed, item))

		item.bytesCopied.Add(block.NumBytes)
		item.blocksCopied.Add(1)
		item.secondsElapsed.Store(int64(time.Since(item.startTime) / time.Second))
		metrics.BytesMoved.Add(float64(block.NumBytes))
		metrics.BlocksMoved.Inc()
	}

	m.publishPairEvent(entry)
}

// openPoolIterators opens one iterator per block pool on the source volume.
// Enumeration failures are charged against the item's error budget.
func (m *mover) openPoolIterators(src volume.Volume, item *WorkItem, logger zerolog.Logger) []volume.BlockIterator {
	pools, err := src.BlockPoolIDs()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list block pools")
		item.errorCount.Add(1)
		metrics.MoveErrors.Inc()
		return nil
	}

	var iters []volume.BlockIterator
	for _, pool := range pools {
		it, err := src.NewBlockIterator(pool, iteratorTag)
		if err != nil {
			logger.Warn().Err(err).Str("pool", pool).Msg("failed to open block iterator")
			item.errorCount.Add(1)
			metrics.MoveErrors.Inc()
			continue
		}
		iters = append(iters, it)
	}
	return iters
}

// getNextBlock picks the next candidate block, round-robin across block
// pools. Each pool is tried at most once per call; the rotating cursor
// persists across calls so successive picks spread over the pools.
func (m *mover) getNextBlock(iters []volume.BlockIterator, item *WorkItem) *volume.ExtendedBlock {
	if len(iters) == 0 {
		return nil
	}

	for i := 0; i < len(iters); i++ {
		idx := m.poolCursor % len(iters)
		m.poolCursor++
		if block := m.getBlockToCopy(iters[idx], item); block != nil {
			return block
		}
	}
	return nil
}

// getBlockToCopy advances one pool iterator to the first finalized block
// that fits the remaining target, first-fit with tolerance slack. Returns
// nil when the pool is exhausted or the error budget is reached.
func (m *mover) getBlockToCopy(it volume.BlockIterator, item *WorkItem) *volume.ExtendedBlock {
	maxErrors := m.effectiveMaxErrors(item)

	for !it.AtEnd() && item.errorCount.Load() < maxErrors {
		block, err := it.NextBlock()
		if err != nil {
			m.logger.Warn().Err(err).Msg("failed to read next block")
			item.errorCount.Add(1)
			metrics.MoveErrors.Inc()
			continue
		}
		if block == nil {
			break
		}

		// Skip blocks still being written
		if !m.dataset.IsValidBlock(block) {
			continue
		}

		remaining := item.bytesToCopy - item.bytesCopied.Load()
		needed := remaining + remaining*m.effectiveTolerance(item)/100
		if block.NumBytes <= needed {
			return block
		}
	}

	if item.errorCount.Load() >= maxErrors {
		item.setErrMsg("Error count exceeded.")
	}
	return nil
}

// isCloseEnough reports whether the inflated copied-count has crossed the
// target, which ends the pair rather than chasing a last small block that
// may not exist.
func (m *mover) isCloseEnough(item *WorkItem) bool {
	copied := item.bytesCopied.Load()
	threshold := copied + copied*m.effectiveTolerance(item)/100
	return item.bytesToCopy < threshold
}

// computeDelay returns the post-move sleep: the whole seconds the block would
// take at the bandwidth ceiling minus the last copy's throughput in MB/s,
// floored at zero. All arithmetic is integer; sub-second copies produce no
// delay, and a copy that ran faster than the ceiling is not always slowed
// (100 MB in 2s against a 10 MB/s ceiling yields no delay).
func (m *mover) computeDelay(bytesCopied int64, timeUsed time.Duration, item *WorkItem) time.Duration {
	ms := timeUsed.Milliseconds()
	if ms == 0 {
		return 0
	}
	secs := ms / 1000
	if secs == 0 {
		return 0
	}

	mb := bytesCopied / (1024 * 1024)
	lastThroughput := mb / secs
	delaySecs := mb/m.effectiveBandwidth(item) - lastThroughput
	if delaySecs <= 0 {
		return 0
	}
	return time.Duration(delaySecs) * time.Second
}

// throttle sleeps for the computed delay. The sleep is interruptible by
// cancellation; the loop re-checks shouldRun right after.
func (m *mover) throttle(delay time.Duration) {
	if delay <= 0 {
		return
	}
	metrics.ThrottleSeconds.Add(delay.Seconds())
	select {
	case <-time.After(delay):
	case <-m.stopCh:
	}
}

// Effective parameters: a positive per-item override wins, else the node
// default applies.

func (m *mover) effectiveBandwidth(item *WorkItem) int64 {
	if item.bandwidthMBs > 0 {
		return item.bandwidthMBs
	}
	return m.cfg.MaxDiskThroughputMBs
}

func (m *mover) effectiveTolerance(item *WorkItem) int64 {
	if item.tolerancePercent > 0 {
		return item.tolerancePercent
	}
	return m.cfg.BlockTolerancePercent
}

func (m *mover) effectiveMaxErrors(item *WorkItem) int64 {
	if item.maxDiskErrors > 0 {
		return item.maxDiskErrors
	}
	return m.cfg.MaxDiskErrors
}

func (m *mover) publishPairEvent(entry *workEntry) {
	if m.eventLog == nil {
		return
	}

	eventType := events.PairCompleted
	message := "pair completed"
	if entry.item.ErrMsg() != "" {
		eventType = events.PairAbandoned
		message = entry.item.ErrMsg()
	}

	m.eventLog.Publish(&events.Event{
		Type:    eventType,
		PlanID:  m.planID,
		Message: message,
		Pair: &events.Pair{
			Source: entry.source.BasePath(),
			Dest:   entry.dest.BasePath(),
		},
	})
}
