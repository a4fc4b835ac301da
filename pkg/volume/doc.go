/*
Package volume defines the node's storage abstraction and a local filesystem
implementation of it.

The balancer programs against three interfaces:

  - Volume: one storage device; exposes its storage ID, base path, block
    pools, iterators, transience, and free space.
  - Set: the node's volume collection plus the block primitives — validity
    checks and the cross-volume move.
  - References: a scoped acquisition of the volume list, closed promptly
    after enumeration.

LocalVolume / LocalSet implement these over a directory tree where each
block pool is a subdirectory and finalized blocks are .blk files under its
current/ directory. Cross-volume moves copy to a temp file, sync, rename,
then remove the source, so a finalized block file is always complete.
*/
package volume
