package volume

// ExtendedBlock identifies one block and carries its byte length.
type ExtendedBlock struct {
	PoolID   string
	BlockID  string
	NumBytes int64
}

// BlockIterator walks the blocks of one block pool on one volume.
type BlockIterator interface {
	// AtEnd reports whether the iterator is exhausted
	AtEnd() bool

	// NextBlock returns the next block, or an error for a block that could
	// not be read. Returns nil when the iterator is exhausted.
	NextBlock() (*ExtendedBlock, error)

	// Close releases the iterator's resources
	Close() error
}

// Volume is a single storage device or mount attached to the node.
type Volume interface {
	// StorageID returns the stable identifier of this volume
	StorageID() string

	// BasePath returns the mount path of this volume
	BasePath() string

	// BlockPoolIDs lists the block pools hosted on this volume
	BlockPoolIDs() ([]string, error)

	// NewBlockIterator opens an iterator over one block pool. The tag is a
	// caller label used in diagnostics.
	NewBlockIterator(poolID, tag string) (BlockIterator, error)

	// IsTransientStorage reports whether this volume is a memory-backed tier
	IsTransientStorage() bool

	// Available returns the free bytes on this volume
	Available() (int64, error)
}

// References is a scoped acquisition of the node's volume list. Callers must
// Close it promptly once done enumerating.
type References interface {
	// List returns the acquired volumes
	List() []Volume

	// Close releases the acquisition
	Close() error
}

// Set is the node's storage abstraction: the volume collection plus the
// block-level primitives the balancer programs against.
type Set interface {
	// AcquireVolumes takes a scoped reference to the current volume list
	AcquireVolumes() (References, error)

	// IsValidBlock reports whether the block is finalized and movable
	IsValidBlock(block *ExtendedBlock) bool

	// MoveBlockAcrossVolumes copies the block onto dest and removes it from
	// its current volume. Blocks for the duration of the copy.
	MoveBlockAcrossVolumes(block *ExtendedBlock, dest Volume) error
}
