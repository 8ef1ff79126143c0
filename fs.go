package ext2

// FileSystem is the mount state (§3 "Mount state"): one per mounted
// volume, holding the backing image and the byte offsets of its
// superblock and BGD table (both decoded from the image afresh on every
// access), plus cached geometry and the two volume-scoped allocation
// locks (§5).
//
// Per §9's "Global mutable state" note, there is no package-level
// singleton: every operation takes a *FileSystem explicitly, the same
// way every squashfs operation in the teacher package takes a
// *Superblock receiver.
type FileSystem struct {
	im *image

	sbOffset  uint32 // byte offset of the superblock within im.buf (always 1024)
	bgdOffset uint32 // byte offset of the BGD table within im.buf

	blockSize   uint32
	groupCount  uint32
	lastGroup   uint32 // index of the last (possibly short) group

	balloc Spinlock // block-allocation lock (§5.2)
	ialloc Spinlock // inode-allocation lock (§5.1)
}

// Thread is the per-thread context a kernel would expose as `current`
// (§3.9, §4.9): a working directory and a file-descriptor table. The
// driver never constructs one on its own; callers own the value, the
// way kernel code owns `current`.
type Thread struct {
	WorkingDir uint32 // inode number
	Files      *FDTable
}

// NewThread returns a Thread rooted at the given working-directory
// inode with a fresh, empty descriptor table.
func NewThread(workingDir uint32) *Thread {
	return &Thread{WorkingDir: workingDir, Files: NewFDTable()}
}

// Mount parses an existing Ext2 image (§4.2 `init()`): locates the
// superblock, validates every invariant in §3, derives the
// block-group count and reads + sanity-checks the root inode.
func Mount(buf []byte) (*FileSystem, error) {
	if len(buf) < 2048 {
		return nil, errInvalidImage("image too small")
	}

	sb, err := readSuperblock(buf)
	if err != nil {
		return nil, err
	}
	sb.validate(uint32(len(buf)))

	blockSize := sb.BlockSize()
	im := &image{buf: buf, blockSize: blockSize}

	bgdOffset := roundUp(SuperblockOffset+SuperblockSize, blockSize)
	totalBlocks := im.totalBlocks()
	groupCount := ceilDiv(totalBlocks-sb.FirstDataBlock, sb.BlocksPerGroup)
	if groupCount == 0 {
		return nil, errInvalidImage("zero block groups")
	}

	fsys := &FileSystem{
		im:         im,
		sbOffset:   SuperblockOffset,
		bgdOffset:  bgdOffset,
		blockSize:  blockSize,
		groupCount: groupCount,
		lastGroup:  groupCount - 1,
	}

	for g := uint32(0); g < groupCount; g++ {
		fsys.validateGroup(g)
	}

	fsys.validateRoot()

	return fsys, nil
}

func (fsys *FileSystem) superblock() *Superblock {
	sb, err := readSuperblock(fsys.im.buf)
	if err != nil {
		fatal("superblock became unreadable: %s", err)
	}
	return sb
}

// writeSuperblock persists a mutated in-memory Superblock view back to
// the image. Superblock fields are small and rewritten wholesale on
// every counter change, matching how rarely it's touched (only by the
// allocators).
func (fsys *FileSystem) writeSuperblock(sb *Superblock) {
	sb.writeTo(fsys.im.buf)
}

func (fsys *FileSystem) blockSizeOf() uint32 { return fsys.blockSize }

// VolumeInfo summarizes a mounted volume's geometry and free-space
// counters, the data cmd/ext2tool's "info" subcommand reports.
type VolumeInfo struct {
	BlockSize      uint32
	TotalBlocks    uint32
	FreeBlocks     uint32
	TotalInodes    uint32
	FreeInodes     uint32
	GroupCount     uint32
	BlocksPerGroup uint32
	InodesPerGroup uint32
	VolumeName     string
}

// Info reports the mounted volume's geometry (§3).
func (fsys *FileSystem) Info() VolumeInfo {
	sb := fsys.superblock()
	name := sb.VolumeName[:]
	if i := indexZero(name); i >= 0 {
		name = name[:i]
	}
	return VolumeInfo{
		BlockSize:      fsys.blockSize,
		TotalBlocks:    sb.BlocksCountLo,
		FreeBlocks:     sb.FreeBlocksCountLo,
		TotalInodes:    sb.InodesCount,
		FreeInodes:     sb.FreeInodesCount,
		GroupCount:     fsys.groupCount,
		BlocksPerGroup: sb.BlocksPerGroup,
		InodesPerGroup: sb.InodesPerGroup,
		VolumeName:     string(name),
	}
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

func roundUp(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	return ((v + align - 1) / align) * align
}

func ceilDiv(a, b uint32) uint32 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
