package ext2

import "encoding/binary"

// DirectBlocks is the number of direct block pointers in an inode
// (§3: "blocks[15] (12 direct, 1 single-indirect, 1 double, 1
// triple)"). Read/write only ever address the direct region (§6:
// "Maximum file size supported by read/write: 12 * block_size").
const DirectBlocks = 12

const (
	idxSingleIndirect = 12
	idxDoubleIndirect = 13
	idxTripleIndirect = 14
)

// MaxDirectFileSize is 12*block_size, the largest offset this driver's
// read/write path will address (§6).
func (fsys *FileSystem) MaxDirectFileSize() uint64 {
	return uint64(DirectBlocks) * uint64(fsys.blockSize)
}

// FileRead copies up to len(buf) bytes starting at offset from inum's
// data into buf, returning the number of bytes actually read (§4.6
// `file_read`). Reading past EOF, or a non-regular/non-directory
// inode, returns 0 without error — the source treats both as "nothing
// to read" rather than failures.
func (fsys *FileSystem) FileRead(inum uint32, buf []byte, offset uint64) int {
	ino := fsys.GetInode(inum)
	if ino.Type() != TypeRegular && !ino.IsDir() {
		return 0
	}
	size := ino.Size()
	if offset >= size {
		return 0
	}
	if offset >= fsys.MaxDirectFileSize() {
		return 0
	}

	remaining := uint64(len(buf))
	if offset+remaining > size {
		remaining = size - offset
	}
	if offset+remaining > fsys.MaxDirectFileSize() {
		remaining = fsys.MaxDirectFileSize() - offset
	}

	total := 0
	for remaining > 0 {
		blockIdx := offset / uint64(fsys.blockSize)
		blockOff := uint32(offset % uint64(fsys.blockSize))
		if blockIdx >= DirectBlocks {
			fatal("file_read: block index %d outside direct region", blockIdx)
		}

		chunk := fsys.blockSize - blockOff
		if uint64(chunk) > remaining {
			chunk = uint32(remaining)
		}

		block := ino.Block[blockIdx]
		dst := buf[total : total+int(chunk)]
		if block == 0 {
			clear(dst) // unallocated direct block reads as zero
		} else {
			fsys.im.blockRead(block, dst, blockOff, chunk)
		}

		total += int(chunk)
		offset += uint64(chunk)
		remaining -= uint64(chunk)
	}
	return total
}

// FileWrite writes len(buf) bytes to inum's data starting at offset,
// allocating direct blocks on demand, and returns the number of bytes
// written or a negative Errno (§4.6 `file_write`). No inode state is
// mutated before every check for the in-range chunk currently being
// written has passed — a failed allocation mid-write still leaves the
// inode's size/block map consistent with the bytes actually committed.
func (fsys *FileSystem) FileWrite(t *Thread, inum uint32, buf []byte, offset uint64) (int, error) {
	ino := fsys.GetInode(inum)
	if ino.Type() != TypeRegular && !ino.IsDir() {
		return 0, ErrBadF
	}
	if offset >= fsys.MaxDirectFileSize() || offset >= 0xFFFFFFFF {
		return 0, ErrFBig
	}

	remaining := uint64(len(buf))
	if offset+remaining > fsys.MaxDirectFileSize() {
		remaining = fsys.MaxDirectFileSize() - offset
	}

	total := 0
	for remaining > 0 {
		blockIdx := offset / uint64(fsys.blockSize)
		blockOff := uint32(offset % uint64(fsys.blockSize))
		if blockIdx >= DirectBlocks {
			break
		}

		chunk := fsys.blockSize - blockOff
		if uint64(chunk) > remaining {
			chunk = uint32(remaining)
		}

		if ino.Block[blockIdx] == 0 {
			block := fsys.BlockAlloc(t)
			if block == 0 {
				if total == 0 {
					return 0, ErrNoSpc
				}
				break
			}
			fsys.im.blockZero(block)
			ino.Block[blockIdx] = block
		}

		fsys.im.blockWrite(ino.Block[blockIdx], buf[total:total+int(chunk)], blockOff, chunk)

		total += int(chunk)
		offset += uint64(chunk)
		remaining -= uint64(chunk)

		if offset > ino.Size() {
			ino.setSize(offset)
			ino.BlocksLo = blocks512(ino.Size())
		}
	}

	fsys.PutInode(inum, ino)

	if total == 0 && len(buf) > 0 {
		return 0, ErrNoSpc
	}
	return total, nil
}

func blocks512(size uint64) uint32 {
	return uint32((size + 511) / 512)
}

// FileTruncate frees every block reachable from a regular file's
// inode — direct and all three indirection levels — and zeroes its
// size and block list (§4.6 `file_truncate`). Truncating twice is a
// no-op the second time: every pointer is already zero.
func (fsys *FileSystem) FileTruncate(t *Thread, inum uint32) {
	ino := fsys.GetInode(inum)
	if !ino.IsRegular() {
		fatal("file_truncate: inode %d is not a regular file", inum)
	}

	for i := 0; i < DirectBlocks; i++ {
		if ino.Block[i] != 0 {
			fsys.BlockDealloc(t, ino.Block[i])
			ino.Block[i] = 0
		}
	}
	fsys.dispose(t, ino.Block[idxSingleIndirect], 1)
	fsys.dispose(t, ino.Block[idxDoubleIndirect], 2)
	fsys.dispose(t, ino.Block[idxTripleIndirect], 3)
	ino.Block[idxSingleIndirect] = 0
	ino.Block[idxDoubleIndirect] = 0
	ino.Block[idxTripleIndirect] = 0

	ino.setSize(0)
	ino.BlocksLo = 0
	fsys.PutInode(inum, ino)
}

// dispose recursively frees an indirection tree (§4.6.1). level 0
// means block itself is a data block; level N>0 means block is an
// array of pointers one level shallower. Read/write never populate
// these trees, but truncate/delete must still walk them to tolerate
// volumes written by other Ext2 implementations.
func (fsys *FileSystem) dispose(t *Thread, block uint32, level int) {
	if block == 0 {
		return
	}
	if level == 0 {
		fsys.BlockDealloc(t, block)
		return
	}

	ptrsPerBlock := fsys.blockSize / 4
	raw := make([]byte, fsys.blockSize)
	fsys.im.blockRead(block, raw, 0, fsys.blockSize)

	for i := uint32(0); i < ptrsPerBlock; i++ {
		entry := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		if entry != 0 {
			fsys.dispose(t, entry, level-1)
		}
	}

	fsys.BlockDealloc(t, block)
}
