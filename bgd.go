package ext2

import (
	"bytes"
	"encoding/binary"
)

// BlockGroupDescriptorSize is the on-disk size of one descriptor
// (§3: "32 bytes, packed").
const BlockGroupDescriptorSize = 32

// BlockGroupDescriptor mirrors one 32-byte entry of the block-group
// descriptor table (§3).
type BlockGroupDescriptor struct {
	BlockBitmap     uint32
	InodeBitmap     uint32
	InodeTable      uint32
	FreeBlocksCount uint16
	FreeInodesCount uint16
	UsedDirsCount   uint16
	Pad             uint16
	Reserved        [12]byte
}

func (fsys *FileSystem) bgdOffsetFor(group uint32) uint32 {
	return fsys.bgdOffset + group*BlockGroupDescriptorSize
}

func (fsys *FileSystem) readBGD(group uint32) *BlockGroupDescriptor {
	if group >= fsys.groupCount {
		fatal("bgd: group %d out of range (count=%d)", group, fsys.groupCount)
	}
	off := fsys.bgdOffsetFor(group)
	bgd := new(BlockGroupDescriptor)
	r := bytes.NewReader(fsys.im.buf[off : off+BlockGroupDescriptorSize])
	if err := binary.Read(r, binary.LittleEndian, bgd); err != nil {
		fatal("bgd: group %d unreadable: %s", group, err)
	}
	return bgd
}

func (fsys *FileSystem) writeBGD(group uint32, bgd *BlockGroupDescriptor) {
	off := fsys.bgdOffsetFor(group)
	var out bytes.Buffer
	out.Grow(BlockGroupDescriptorSize)
	if err := binary.Write(&out, binary.LittleEndian, bgd); err != nil {
		fatal("bgd: group %d failed to serialize: %s", group, err)
	}
	copy(fsys.im.buf[off:off+BlockGroupDescriptorSize], out.Bytes())
}

// groupBlockRange returns the half-open [first, last) block range
// owned by a group, accounting for a short last group (§3).
func (fsys *FileSystem) groupBlockRange(group uint32) (first, last uint32) {
	sb := fsys.superblock()
	first = group*sb.BlocksPerGroup + sb.FirstDataBlock
	last = first + sb.BlocksPerGroup
	total := fsys.im.totalBlocks()
	if last > total {
		last = total
	}
	return first, last
}

func (fsys *FileSystem) groupBlockCount(group uint32) uint32 {
	first, last := fsys.groupBlockRange(group)
	return last - first
}

// validateGroup checks every §3 per-group invariant. A violation is
// fatal per §7 tier 1, the same as readBGD/writeBGD above.
func (fsys *FileSystem) validateGroup(group uint32) {
	sb := fsys.superblock()
	bgd := fsys.readBGD(group)

	first, last := fsys.groupBlockRange(group)
	blockCount := last - first

	inRange := func(b uint32) bool { return b >= first && b < last }
	if !inRange(bgd.BlockBitmap) {
		fatal("group %d: block bitmap block %d out of group range [%d,%d)", group, bgd.BlockBitmap, first, last)
	}
	if !inRange(bgd.InodeBitmap) {
		fatal("group %d: inode bitmap block %d out of group range [%d,%d)", group, bgd.InodeBitmap, first, last)
	}
	if !inRange(bgd.InodeTable) {
		fatal("group %d: inode table block %d out of group range [%d,%d)", group, bgd.InodeTable, first, last)
	}
	if uint32(bgd.FreeBlocksCount) > blockCount {
		fatal("group %d: free blocks %d exceeds group size %d", group, bgd.FreeBlocksCount, blockCount)
	}
	if uint32(bgd.FreeInodesCount) > sb.InodesPerGroup {
		fatal("group %d: free inodes %d exceeds inodes/group %d", group, bgd.FreeInodesCount, sb.InodesPerGroup)
	}
	if uint32(bgd.UsedDirsCount) > sb.InodesPerGroup {
		fatal("group %d: used dirs %d exceeds inodes/group %d", group, bgd.UsedDirsCount, sb.InodesPerGroup)
	}
}
