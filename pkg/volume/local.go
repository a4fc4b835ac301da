package volume

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/karrick/godirwalk"
	"golang.org/x/sys/unix"
)

const (
	// currentDir is the subdirectory of a block pool holding finalized blocks
	currentDir = "current"

	// blockExt marks a finalized block file; tmpExt marks one still being written
	blockExt = ".blk"
	tmpExt   = ".tmp"
)

// LocalConfig describes one local filesystem volume.
type LocalConfig struct {
	StorageID     string `yaml:"storageId"`
	BasePath      string `yaml:"path"`
	Transient     bool   `yaml:"transient"`
	CapacityBytes int64  `yaml:"capacityBytes"` // 0 = report filesystem free space
}

// LocalVolume is a Volume backed by a directory tree:
//
//	<base>/<poolID>/current/<blockID>.blk
//
// Files with the .tmp extension are blocks still being written and are not
// considered finalized.
type LocalVolume struct {
	storageID string
	basePath  string
	transient bool
	capacity  int64
}

// NewLocalVolume creates a local volume rooted at cfg.BasePath, creating the
// directory if needed. A missing StorageID is minted.
func NewLocalVolume(cfg LocalConfig) (*LocalVolume, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("volume base path is required")
	}

	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create volume directory: %w", err)
	}

	storageID := cfg.StorageID
	if storageID == "" {
		storageID = uuid.NewString()
	}

	return &LocalVolume{
		storageID: storageID,
		basePath:  cfg.BasePath,
		transient: cfg.Transient,
		capacity:  cfg.CapacityBytes,
	}, nil
}

// StorageID returns the stable identifier of this volume
func (v *LocalVolume) StorageID() string {
	return v.storageID
}

// BasePath returns the mount path of this volume
func (v *LocalVolume) BasePath() string {
	return v.basePath
}

// IsTransientStorage reports whether this volume is a memory-backed tier
func (v *LocalVolume) IsTransientStorage() bool {
	return v.transient
}

// BlockPoolIDs lists the block pools hosted on this volume
func (v *LocalVolume) BlockPoolIDs() ([]string, error) {
	entries, err := os.ReadDir(v.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read volume directory: %w", err)
	}

	var pools []string
	for _, entry := range entries {
		if entry.IsDir() {
			pools = append(pools, entry.Name())
		}
	}
	return pools, nil
}

// Available returns the free bytes on this volume. With a configured
// capacity, that is capacity minus the bytes held in block files; otherwise
// the filesystem's free space is reported.
func (v *LocalVolume) Available() (int64, error) {
	if v.capacity > 0 {
		used, err := v.used()
		if err != nil {
			return 0, err
		}
		free := v.capacity - used
		if free < 0 {
			free = 0
		}
		return free, nil
	}

	var st unix.Statfs_t
	if err := unix.Statfs(v.basePath, &st); err != nil {
		return 0, fmt.Errorf("failed to statfs %s: %w", v.basePath, err)
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}

// used sums the sizes of all block files on the volume
func (v *LocalVolume) used() (int64, error) {
	var total int64
	err := godirwalk.Walk(v.basePath, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if !de.IsRegular() {
				return nil
			}
			if !strings.HasSuffix(path, blockExt) && !strings.HasSuffix(path, tmpExt) {
				return nil
			}
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk volume %s: %w", v.basePath, err)
	}
	return total, nil
}

// NewBlockIterator opens an iterator over one block pool. Opening a pool
// that has no block directory yields an empty iterator.
func (v *LocalVolume) NewBlockIterator(poolID, tag string) (BlockIterator, error) {
	dir := filepath.Join(v.basePath, poolID, currentDir)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &localBlockIterator{poolID: poolID, tag: tag}, nil
	}

	var paths []string
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsRegular() && strings.HasSuffix(path, blockExt) {
				paths = append(paths, path)
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan block pool %s: %w", poolID, err)
	}
	sort.Strings(paths)

	return &localBlockIterator{poolID: poolID, tag: tag, paths: paths}, nil
}

// blockPath returns the on-disk location of a finalized block
func (v *LocalVolume) blockPath(poolID, blockID string) string {
	return filepath.Join(v.basePath, poolID, currentDir, blockID+blockExt)
}

// WriteBlock creates a finalized block on this volume. Used by tooling and
// tests to seed volumes.
func (v *LocalVolume) WriteBlock(poolID, blockID string, data []byte) error {
	dir := filepath.Join(v.basePath, poolID, currentDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create block pool directory: %w", err)
	}
	if err := os.WriteFile(v.blockPath(poolID, blockID), data, 0644); err != nil {
		return fmt.Errorf("failed to write block: %w", err)
	}
	return nil
}

// WriteTempBlock creates a non-finalized block (one still being written)
func (v *LocalVolume) WriteTempBlock(poolID, blockID string, data []byte) error {
	dir := filepath.Join(v.basePath, poolID, currentDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create block pool directory: %w", err)
	}
	path := filepath.Join(dir, blockID+tmpExt)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write block: %w", err)
	}
	return nil
}

// localBlockIterator iterates a snapshot of the block files taken when the
// iterator was opened
type localBlockIterator struct {
	poolID string
	tag    string
	paths  []string
	idx    int
	closed bool
}

func (it *localBlockIterator) AtEnd() bool {
	return it.closed || it.idx >= len(it.paths)
}

func (it *localBlockIterator) NextBlock() (*ExtendedBlock, error) {
	if it.AtEnd() {
		return nil, nil
	}

	path := it.paths[it.idx]
	it.idx++

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat block %s: %w", path, err)
	}

	blockID := strings.TrimSuffix(filepath.Base(path), blockExt)
	return &ExtendedBlock{
		PoolID:   it.poolID,
		BlockID:  blockID,
		NumBytes: info.Size(),
	}, nil
}

func (it *localBlockIterator) Close() error {
	it.closed = true
	return nil
}

// LocalSet is a Set over local filesystem volumes.
type LocalSet struct {
	mu      sync.RWMutex
	volumes []*LocalVolume

	// activeRefs counts outstanding References for diagnostics
	activeRefs atomic.Int64
}

// NewLocalSet creates a volume set over the given volumes
func NewLocalSet(vols ...*LocalVolume) *LocalSet {
	return &LocalSet{volumes: vols}
}

// AddVolume attaches a volume to the set
func (s *LocalSet) AddVolume(v *LocalVolume) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes = append(s.volumes, v)
}

// AcquireVolumes takes a scoped reference to the current volume list
func (s *LocalSet) AcquireVolumes() (References, error) {
	s.mu.RLock()
	vols := make([]Volume, len(s.volumes))
	for i, v := range s.volumes {
		vols[i] = v
	}
	s.mu.RUnlock()

	s.activeRefs.Add(1)
	return &localReferences{set: s, vols: vols}, nil
}

// IsValidBlock reports whether the block exists as a finalized file on some
// volume in the set
func (s *LocalSet) IsValidBlock(block *ExtendedBlock) bool {
	if block == nil {
		return false
	}
	_, err := s.findBlock(block)
	return err == nil
}

// findBlock locates the volume currently hosting a block
func (s *LocalSet) findBlock(block *ExtendedBlock) (*LocalVolume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.volumes {
		if _, err := os.Stat(v.blockPath(block.PoolID, block.BlockID)); err == nil {
			return v, nil
		}
	}
	return nil, fmt.Errorf("block %s/%s not found on any volume", block.PoolID, block.BlockID)
}

// MoveBlockAcrossVolumes copies a block onto dest and removes it from its
// current volume. The copy lands as a temp file and is renamed into place
// only after a successful sync, so a crash mid-copy never yields a
// half-written finalized block.
func (s *LocalSet) MoveBlockAcrossVolumes(block *ExtendedBlock, dest Volume) error {
	destVol, ok := dest.(*LocalVolume)
	if !ok {
		return fmt.Errorf("unsupported destination volume type %T", dest)
	}

	srcVol, err := s.findBlock(block)
	if err != nil {
		return err
	}
	if srcVol == destVol {
		return fmt.Errorf("block %s/%s already on volume %s", block.PoolID, block.BlockID, destVol.BasePath())
	}

	srcPath := srcVol.blockPath(block.PoolID, block.BlockID)
	destDir := filepath.Join(destVol.basePath, block.PoolID, currentDir)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create destination pool directory: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source block: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(destDir, block.BlockID+tmpExt+".*")
	if err != nil {
		return fmt.Errorf("failed to create destination block: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy block data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync destination block: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close destination block: %w", err)
	}

	if err := os.Rename(tmpPath, destVol.blockPath(block.PoolID, block.BlockID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize destination block: %w", err)
	}

	if err := os.Remove(srcPath); err != nil {
		return fmt.Errorf("failed to remove source block: %w", err)
	}

	return nil
}

// localReferences is a snapshot of the volume list at acquisition time
type localReferences struct {
	set    *LocalSet
	vols   []Volume
	closed sync.Once
}

func (r *localReferences) List() []Volume {
	return r.vols
}

func (r *localReferences) Close() error {
	r.closed.Do(func() {
		r.set.activeRefs.Add(-1)
	})
	return nil
}
