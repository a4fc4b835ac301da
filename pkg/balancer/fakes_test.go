package balancer

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/ballast/pkg/volume"
)

// fakeVolume is an in-memory Volume for mover and worker tests
type fakeVolume struct {
	storageID string
	basePath  string
	transient bool
	available int64
	poolOrder []string
	pools     map[string][]*volume.ExtendedBlock
	iterErr   error
}

func newFakeVolume(storageID, basePath string) *fakeVolume {
	return &fakeVolume{
		storageID: storageID,
		basePath:  basePath,
		available: 1 << 40,
		pools:     make(map[string][]*volume.ExtendedBlock),
	}
}

func (v *fakeVolume) addBlocks(poolID string, sizes ...int64) {
	if _, ok := v.pools[poolID]; !ok {
		v.poolOrder = append(v.poolOrder, poolID)
	}
	for _, size := range sizes {
		id := fmt.Sprintf("%s-blk-%d", poolID, len(v.pools[poolID]))
		v.pools[poolID] = append(v.pools[poolID], &volume.ExtendedBlock{
			PoolID:   poolID,
			BlockID:  id,
			NumBytes: size,
		})
	}
}

func (v *fakeVolume) StorageID() string        { return v.storageID }
func (v *fakeVolume) BasePath() string         { return v.basePath }
func (v *fakeVolume) IsTransientStorage() bool { return v.transient }

func (v *fakeVolume) BlockPoolIDs() ([]string, error) {
	return v.poolOrder, nil
}

func (v *fakeVolume) Available() (int64, error) {
	return v.available, nil
}

func (v *fakeVolume) NewBlockIterator(poolID, tag string) (volume.BlockIterator, error) {
	if v.iterErr != nil {
		return nil, v.iterErr
	}
	return &fakeIterator{blocks: v.pools[poolID]}, nil
}

type fakeIterator struct {
	blocks []*volume.ExtendedBlock
	idx    int
}

func (it *fakeIterator) AtEnd() bool {
	return it.idx >= len(it.blocks)
}

func (it *fakeIterator) NextBlock() (*volume.ExtendedBlock, error) {
	if it.AtEnd() {
		return nil, nil
	}
	block := it.blocks[it.idx]
	it.idx++
	return block, nil
}

func (it *fakeIterator) Close() error { return nil }

// fakeSet is an in-memory volume.Set. Moves can be failed per block or
// slowed down to exercise cancellation.
type fakeSet struct {
	mu      sync.Mutex
	volumes []volume.Volume

	invalid   map[string]bool  // blockID → not finalized
	moveErr   map[string]error // blockID → move failure
	moveDelay time.Duration
	moved     []string

	acquireErr error
}

func newFakeSet(vols ...volume.Volume) *fakeSet {
	return &fakeSet{
		volumes: vols,
		invalid: make(map[string]bool),
		moveErr: make(map[string]error),
	}
}

func (s *fakeSet) AcquireVolumes() (volume.References, error) {
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	s.mu.Lock()
	vols := make([]volume.Volume, len(s.volumes))
	copy(vols, s.volumes)
	s.mu.Unlock()
	return &fakeRefs{vols: vols}, nil
}

func (s *fakeSet) IsValidBlock(block *volume.ExtendedBlock) bool {
	if block == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.invalid[block.BlockID]
}

func (s *fakeSet) MoveBlockAcrossVolumes(block *volume.ExtendedBlock, dest volume.Volume) error {
	if s.moveDelay > 0 {
		time.Sleep(s.moveDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.moveErr[block.BlockID]; err != nil {
		return err
	}
	s.moved = append(s.moved, block.BlockID)
	return nil
}

func (s *fakeSet) movedBlocks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.moved))
	copy(out, s.moved)
	return out
}

type fakeRefs struct {
	vols []volume.Volume
}

func (r *fakeRefs) List() []volume.Volume { return r.vols }
func (r *fakeRefs) Close() error          { return nil }
