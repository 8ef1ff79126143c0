package ext2

// BlockAlloc allocates one free data block, or returns 0 if the
// volume is full (§4.4). The scan holds the block-allocation lock for
// its entire duration, serializing all block allocation/deallocation
// system-wide (§5.2): two concurrent BlockAlloc calls are guaranteed
// to return distinct blocks.
func (fsys *FileSystem) BlockAlloc(t *Thread) uint32 {
	fsys.balloc.Lock(t)
	defer fsys.balloc.Unlock()

	sb := fsys.superblock()

	for g := uint32(0); g < fsys.groupCount; g++ {
		bgd := fsys.readBGD(g)
		count := fsys.groupBlockCount(g)

		bitmap := make([]byte, fsys.blockSize)
		fsys.im.blockRead(bgd.BlockBitmap, bitmap, 0, fsys.blockSize)

		idx := bitmapFirstZero(bitmap, count)
		if idx < 0 {
			continue
		}

		first, last := fsys.groupBlockRange(g)
		block := first + uint32(idx)
		if block < first || block >= last {
			fatal("block_alloc: computed block %d outside group %d range [%d,%d)", block, g, first, last)
		}

		bitmapSet(bitmap, uint32(idx), count)
		fsys.im.blockWrite(bgd.BlockBitmap, bitmap, 0, fsys.blockSize)

		bgd.FreeBlocksCount--
		fsys.writeBGD(g, bgd)

		sb.FreeBlocksCountLo--
		fsys.writeSuperblock(sb)

		return block
	}

	if sb.FreeBlocksCountLo != 0 {
		fatal("block_alloc: no free block found but superblock reports %d free", sb.FreeBlocksCountLo)
	}
	return 0
}

// BlockDealloc returns block to its group's free pool (§4.4). Freeing
// a block that was already free is fatal: it means a bookkeeping
// invariant (§8: "every bit set in a block bitmap corresponds to a
// block referenced by some live inode, and vice versa") has already
// been violated somewhere upstream.
func (fsys *FileSystem) BlockDealloc(t *Thread, block uint32) {
	fsys.balloc.Lock(t)
	defer fsys.balloc.Unlock()

	sb := fsys.superblock()
	if block < sb.FirstDataBlock || block >= fsys.im.totalBlocks() {
		fatal("block_dealloc: block %d out of volume range", block)
	}

	group := (block - sb.FirstDataBlock) / sb.BlocksPerGroup
	first, _ := fsys.groupBlockRange(group)
	index := block - first
	count := fsys.groupBlockCount(group)

	bgd := fsys.readBGD(group)
	bitmap := make([]byte, fsys.blockSize)
	fsys.im.blockRead(bgd.BlockBitmap, bitmap, 0, fsys.blockSize)

	if !bitmapTest(bitmap, index, count) {
		fatal("block_dealloc: block %d (group %d index %d) already free", block, group, index)
	}
	bitmapClear(bitmap, index, count)
	fsys.im.blockWrite(bgd.BlockBitmap, bitmap, 0, fsys.blockSize)

	bgd.FreeBlocksCount++
	fsys.writeBGD(group, bgd)

	sb.FreeBlocksCountLo++
	fsys.writeSuperblock(sb)
}
