package balancer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/ballast/pkg/types"
	"github.com/cuemby/ballast/pkg/volume"
)

// pairKey identifies a source→destination volume pair. Keys are derived
// from base paths, not object identity, so two distinct references to the
// same device collide in the work map.
type pairKey struct {
	src string
	dst string
}

// WorkItem is the mutable accounting record for one volume pair. The target
// and override fields are fixed at admission under the worker's lock; the
// counters are mutated only by the mover goroutine and read by status
// queries, hence the atomics.
type WorkItem struct {
	bytesToCopy int64

	bandwidthMBs     int64
	tolerancePercent int64
	maxDiskErrors    int64

	bytesCopied    atomic.Int64
	blocksCopied   atomic.Int64
	errorCount     atomic.Int64
	secondsElapsed atomic.Int64

	startTime time.Time
	errMsg    atomic.Value // string
}

// BytesToCopy returns the total byte target for this pair
func (wi *WorkItem) BytesToCopy() int64 {
	return wi.bytesToCopy
}

// BytesCopied returns the bytes moved so far
func (wi *WorkItem) BytesCopied() int64 {
	return wi.bytesCopied.Load()
}

// BlocksCopied returns the blocks moved so far
func (wi *WorkItem) BlocksCopied() int64 {
	return wi.blocksCopied.Load()
}

// ErrorCount returns the I/O failures charged against this pair
func (wi *WorkItem) ErrorCount() int64 {
	return wi.errorCount.Load()
}

// ErrMsg returns the abandonment message, if the pair was abandoned
func (wi *WorkItem) ErrMsg() string {
	if msg, ok := wi.errMsg.Load().(string); ok {
		return msg
	}
	return ""
}

func (wi *WorkItem) setErrMsg(msg string) {
	wi.errMsg.Store(msg)
}

// snapshot copies the item's current counters into the wire form
func (wi *WorkItem) snapshot() types.WorkItem {
	return types.WorkItem{
		BytesToCopy:      wi.bytesToCopy,
		BytesCopied:      wi.bytesCopied.Load(),
		BlocksCopied:     wi.blocksCopied.Load(),
		ErrorCount:       wi.errorCount.Load(),
		SecondsElapsed:   wi.secondsElapsed.Load(),
		BandwidthMBs:     wi.bandwidthMBs,
		TolerancePercent: wi.tolerancePercent,
		MaxDiskErrors:    wi.maxDiskErrors,
		ErrMsg:           wi.ErrMsg(),
	}
}

// workEntry binds a pair's volumes to its accounting record
type workEntry struct {
	source volume.Volume
	dest   volume.Volume
	item   *WorkItem
}

// workMap maps volume pairs to work entries, preserving insertion order so
// the mover processes pairs in plan order. Reads may iterate snapshots while
// the mover mutates item counters.
type workMap struct {
	mu      sync.RWMutex
	entries map[pairKey]*workEntry
	order   []pairKey
}

func newWorkMap() *workMap {
	return &workMap{entries: make(map[pairKey]*workEntry)}
}

func (m *workMap) get(key pairKey) (*workEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok
}

func (m *workMap) put(key pairKey, entry *workEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; !exists {
		m.order = append(m.order, key)
	}
	m.entries[key] = entry
}

func (m *workMap) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// ordered returns the entries in insertion order
func (m *workMap) ordered() []*workEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*workEntry, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.entries[key])
	}
	return out
}

// snapshotEntries renders every entry in wire form, insertion order
func (m *workMap) snapshotEntries() []types.WorkEntry {
	entries := m.ordered()
	out := make([]types.WorkEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.WorkEntry{
			SourcePath:      e.source.BasePath(),
			DestinationPath: e.dest.BasePath(),
			WorkItem:        e.item.snapshot(),
		})
	}
	return out
}
