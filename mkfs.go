package ext2

import "fmt"

// mkfsConfig accumulates MkfsOption settings before Mkfs lays out the
// volume. Defaults describe a small, single/few-group volume: enough
// to exercise the full driver without requiring a huge backing image.
type mkfsConfig struct {
	blockSize      uint32
	blocksPerGroup uint32
	inodesPerGroup uint32
	volumeName     string
}

// MkfsOption configures Mkfs, the same functional-options shape the
// teacher package uses for its own Option type (options.go).
type MkfsOption func(*mkfsConfig) error

// WithBlockSize overrides the default 1024-byte block size. Must be a
// power of two in {1024, 2048, 4096} (§3).
func WithBlockSize(size uint32) MkfsOption {
	return func(c *mkfsConfig) error {
		switch size {
		case 1024, 2048, 4096:
			c.blockSize = size
			return nil
		default:
			return fmt.Errorf("ext2: unsupported block size %d", size)
		}
	}
}

// WithVolumeName sets the 16-byte volume label.
func WithVolumeName(name string) MkfsOption {
	return func(c *mkfsConfig) error {
		if len(name) > 16 {
			return fmt.Errorf("ext2: volume name %q exceeds 16 bytes", name)
		}
		c.volumeName = name
		return nil
	}
}

// WithBlocksPerGroup overrides how many blocks one group descriptor
// covers; mainly useful to force multiple groups in a small test
// image that would otherwise fit in one.
func WithBlocksPerGroup(n uint32) MkfsOption {
	return func(c *mkfsConfig) error {
		if n == 0 {
			return fmt.Errorf("ext2: blocks per group must be nonzero")
		}
		c.blocksPerGroup = n
		return nil
	}
}

// WithInodesPerGroup overrides how many inodes one group owns.
func WithInodesPerGroup(n uint32) MkfsOption {
	return func(c *mkfsConfig) error {
		if n == 0 {
			return fmt.Errorf("ext2: inodes per group must be nonzero")
		}
		c.inodesPerGroup = n
		return nil
	}
}

// groupLayout records the three metadata block numbers mkfs assigns
// to one group, before any BlockGroupDescriptor exists to hold them.
type groupLayout struct {
	blockBitmap, inodeBitmap, inodeTable uint32
}

// Mkfs lays out a fresh Ext2 dynamic-revision volume directly into
// buf and mounts it (§4.10). buf's length determines the volume
// size; it must be large enough to hold the superblock, at least one
// block group's metadata, and the reserved inodes.
func Mkfs(buf []byte, opts ...MkfsOption) (*FileSystem, error) {
	cfg := mkfsConfig{
		blockSize:      1024,
		blocksPerGroup: 8192,
		inodesPerGroup: 2048,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	bs := cfg.blockSize
	totalBlocks := uint32(len(buf)) / bs
	if totalBlocks < 16 {
		return nil, errInvalidImage("image too small to hold a minimal Ext2 volume (%d blocks)", totalBlocks)
	}

	blocksPerGroup := cfg.blocksPerGroup
	if blocksPerGroup > bs*8 {
		blocksPerGroup = bs * 8 // one bitmap block addresses at most bs*8 bits
	}
	inodesPerGroup := cfg.inodesPerGroup
	if inodesPerGroup > bs*8 {
		inodesPerGroup = bs * 8
	}

	firstDataBlock := uint32(1)
	if bs > 1024 {
		firstDataBlock = 0
	}

	groupCount := ceilDiv(totalBlocks-firstDataBlock, blocksPerGroup)
	if groupCount == 0 {
		groupCount = 1
	}

	const inodeSize = 128
	inodesPerBlock := bs / inodeSize
	inodeTableBlocksPerGroup := ceilDiv(inodesPerGroup, inodesPerBlock)

	bgdOffset := roundUp(SuperblockOffset+SuperblockSize, bs)
	bgdBlocks := ceilDiv(groupCount*BlockGroupDescriptorSize, bs)
	metaStart := bgdOffset/bs + bgdBlocks

	clear(buf)

	sb := &Superblock{
		InodesCount:    inodesPerGroup * groupCount,
		BlocksCountLo:  totalBlocks,
		FirstDataBlock: firstDataBlock,
		LogBlockSize:   log2(bs / 1024),
		LogFragSize:    log2(bs / 1024),
		BlocksPerGroup: blocksPerGroup,
		FragsPerGroup:  blocksPerGroup,
		InodesPerGroup: inodesPerGroup,
		Magic:          Ext2Magic,
		State:          sbStateValid,
		RevLevel:       sbRevDynamic,
		FirstIno:       11,
		InodeSize:      inodeSize,
	}
	copy(sb.VolumeName[:], cfg.volumeName)
	sb.writeTo(buf) // written early: PutInode/writeBGD below need a readable superblock

	im := &image{buf: buf, blockSize: bs}
	fsys := &FileSystem{
		im:         im,
		sbOffset:   SuperblockOffset,
		bgdOffset:  bgdOffset,
		blockSize:  bs,
		groupCount: groupCount,
		lastGroup:  groupCount - 1,
	}

	var freeBlocksTotal, freeInodesTotal uint32

	for g := uint32(0); g < groupCount; g++ {
		first, last := fsys.groupBlockRange(g)
		groupBlocks := last - first

		// Group 0's metadata sits after the shared BGD table; every
		// other group's metadata starts at the very beginning of its
		// own block range (no backup superblock/GDT copies kept).
		base := first
		if g == 0 {
			base = metaStart
		}
		l := groupLayout{blockBitmap: base, inodeBitmap: base + 1, inodeTable: base + 2}
		if l.inodeTable+inodeTableBlocksPerGroup > last {
			return nil, errInvalidImage("group %d: metadata (ending at block %d) overruns group end %d", g, l.inodeTable+inodeTableBlocksPerGroup, last)
		}

		blockBitmap := make([]byte, bs)
		inodeBitmap := make([]byte, bs)

		// Everything from the group's first block through the end of its
		// inode table is metadata; for group 0 that includes the
		// superblock and BGD table blocks ahead of the bitmaps.
		metaBlocksUsed := uint32(0)
		for b := first; b < l.inodeTable+inodeTableBlocksPerGroup; b++ {
			bitmapSet(blockBitmap, b-first, groupBlocks)
			metaBlocksUsed++
		}
		freeBlocksThisGroup := groupBlocks - metaBlocksUsed

		var usedDirs, reservedInodes uint32
		if g == 0 {
			reservedInodes = sb.FirstIno - 1 // inodes [1, firstIno) reserved, root (#2) among them
			for i := uint32(0); i < reservedInodes; i++ {
				bitmapSet(inodeBitmap, i, inodesPerGroup)
			}
			usedDirs = 1
		}

		im.blockWrite(l.blockBitmap, blockBitmap, 0, bs)
		im.blockWrite(l.inodeBitmap, inodeBitmap, 0, bs)

		bgd := &BlockGroupDescriptor{
			BlockBitmap:     l.blockBitmap,
			InodeBitmap:     l.inodeBitmap,
			InodeTable:      l.inodeTable,
			FreeBlocksCount: uint16(freeBlocksThisGroup),
			FreeInodesCount: uint16(inodesPerGroup - reservedInodes),
			UsedDirsCount:   uint16(usedDirs),
		}
		fsys.writeBGD(g, bgd)

		if g == 0 {
			rootBlock := fsys.BlockAlloc(NewThread(RootInode))
			if rootBlock == 0 {
				return nil, errInvalidImage("mkfs: no free block for root directory")
			}

			root := new(Inode)
			root.Mode = TypeDirectory.bits() | initialPermissions(TypeDirectory)
			root.LinksCount = 2
			root.Block[0] = rootBlock
			root.setSize(uint64(bs))
			root.BlocksLo = blocks512(uint64(bs))
			fsys.PutInode(RootInode, root)

			rootData := make([]byte, bs)
			writeDirEntry(rootData, 0, dirEntry{Inode: RootInode, RecLen: 12, NameLen: 1, FileType: dtDir, Name: "."})
			writeDirEntry(rootData, 12, dirEntry{Inode: RootInode, RecLen: uint16(bs) - 12, NameLen: 2, FileType: dtDir, Name: ".."})
			im.blockWrite(rootBlock, rootData, 0, bs)

			// BlockAlloc above already debited the superblock/BGD free
			// counters; re-read so the totals below don't double-count.
			bgd = fsys.readBGD(0)
		}

		freeBlocksTotal += uint32(bgd.FreeBlocksCount)
		freeInodesTotal += uint32(bgd.FreeInodesCount)
	}

	sbFinal := fsys.superblock()
	sbFinal.FreeBlocksCountLo = freeBlocksTotal
	sbFinal.FreeInodesCount = freeInodesTotal
	fsys.writeSuperblock(sbFinal)

	return Mount(buf)
}

func log2(n uint32) uint32 {
	var l uint32
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}
