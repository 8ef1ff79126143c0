package ext2

import (
	"encoding/binary"
	"errors"
)

// Directory entry file-type byte (§3); distinct from the inode's own
// mode nibble so a directory listing can tell a file's type without
// following the inode pointer.
const (
	dtUnknown = 0
	dtReg     = 1
	dtDir     = 2
	dtChr     = 3
	dtBlk     = 4
	dtFifo    = 5
	dtSock    = 6
	dtSymlink = 7
)

func dirFileType(t FileType) uint8 {
	switch t {
	case TypeDirectory:
		return dtDir
	case TypeSymlink:
		return dtSymlink
	case TypeSocket:
		return dtSock
	case TypeFifo:
		return dtFifo
	case TypeBlockDev:
		return dtBlk
	case TypeCharDev:
		return dtChr
	default:
		return dtReg
	}
}

// dirEntHeaderSize is the fixed portion of a directory record before
// its variable-length name (§3: "inode, rec_len, name_len, file_type").
const dirEntHeaderSize = 8

// dirEntry is the in-memory view of one variable-length directory
// record (§3, §9 — modeled as a reader/writer over a byte buffer, not
// a fixed-size struct, since its 255-byte name field is a worst-case
// bound, not a fixed width).
type dirEntry struct {
	Inode    uint32
	RecLen   uint16
	NameLen  uint8
	FileType uint8
	Name     string
}

func minRecLen(nameLen int) uint16 {
	n := nameLen
	if n < 1 {
		n = 1
	}
	return uint16(roundUp(uint32(dirEntHeaderSize+n), 4))
}

func parseDirEntry(block []byte, off uint32) dirEntry {
	nameLen := block[off+6]
	return dirEntry{
		Inode:    binary.LittleEndian.Uint32(block[off:]),
		RecLen:   binary.LittleEndian.Uint16(block[off+4:]),
		NameLen:  nameLen,
		FileType: block[off+7],
		Name:     string(block[off+8 : off+8+uint32(nameLen)]),
	}
}

func writeDirEntry(block []byte, off uint32, e dirEntry) {
	binary.LittleEndian.PutUint32(block[off:], e.Inode)
	binary.LittleEndian.PutUint16(block[off+4:], e.RecLen)
	block[off+6] = e.NameLen
	block[off+7] = e.FileType
	copy(block[off+8:off+8+uint32(e.NameLen)], e.Name)
}

// errEntryNotFound is the internal "not found" sentinel scans return;
// callers (NameI, FindEntry's own public callers) translate it to
// ErrNoEnt at the syscall boundary.
var errEntryNotFound = errors.New("ext2: directory entry not found")

// dirEntryValid reports whether entry, found at fileOffset with
// bytesAvailable bytes left in the directory file, obeys every §4.7
// validity rule. An invalid entry ends a scan (treated as EOF) rather
// than being fatal — a corrupted directory degrades gracefully (§7).
func (fsys *FileSystem) dirEntryValid(dir *Inode, entry dirEntry, fileOffset, bytesAvailable uint32, totalInodes uint32) bool {
	if bytesAvailable < dirEntHeaderSize {
		return false
	}
	if fileOffset%4 != 0 || uint32(entry.RecLen)%4 != 0 {
		return false
	}
	if entry.RecLen < minRecLen(int(entry.NameLen)) {
		return false
	}
	if uint32(entry.RecLen)+(fileOffset%fsys.blockSize) > fsys.blockSize {
		return false
	}
	if uint64(fileOffset)+uint64(entry.RecLen) > dir.Size() {
		return false
	}
	if entry.Inode > totalInodes {
		return false
	}
	return true
}

// readDirBlock returns the raw bytes of the block holding byte offset
// blockIdx*blockSize of dirInum's data, or nil if that direct slot is
// unallocated.
func (fsys *FileSystem) readDirBlock(dir *Inode, blockIdx uint32) []byte {
	if blockIdx >= DirectBlocks {
		fatal("dir: block index %d outside direct region", blockIdx)
	}
	block := dir.Block[blockIdx]
	if block == 0 {
		return nil
	}
	buf := make([]byte, fsys.blockSize)
	fsys.im.blockRead(block, buf, 0, fsys.blockSize)
	return buf
}

// FindEntry scans dirInum's records for name, returning the inode it
// references (§4.7 `find_entry`). It returns errEntryNotFound on EOF
// or on the first invalid record.
func (fsys *FileSystem) FindEntry(dirInum uint32, name string) (uint32, error) {
	dir := fsys.GetInode(dirInum)
	sb := fsys.superblock()
	size := dir.Size()

	var offset uint32
	for uint64(offset) < size {
		blockIdx := offset / fsys.blockSize
		block := fsys.readDirBlock(dir, blockIdx)
		blockStart := blockIdx * fsys.blockSize
		inBlock := offset - blockStart

		for inBlock < fsys.blockSize && uint64(blockStart+inBlock) < size {
			bytesAvailable := fsys.blockSize - inBlock
			if block == nil || bytesAvailable < dirEntHeaderSize {
				return 0, errEntryNotFound
			}
			entry := parseDirEntry(block, inBlock)
			fileOffset := blockStart + inBlock
			if !fsys.dirEntryValid(dir, entry, fileOffset, bytesAvailable, sb.InodesCount) {
				return 0, errEntryNotFound
			}
			if entry.Inode != 0 && int(entry.NameLen) == len(name) && entry.Name == name {
				return entry.Inode, nil
			}
			inBlock += uint32(entry.RecLen)
		}
		offset = blockStart + fsys.blockSize
	}
	return 0, errEntryNotFound
}

// DirEnt is one listed directory entry, as returned by ReadDir.
type DirEnt struct {
	Inode uint32
	Name  string
	Type  FileType
}

// dirFileTypeToType inverts dirFileType for the on-disk file-type byte,
// used by ReadDir to report each entry's type without a second inode
// lookup.
func dirFileTypeToType(dt uint8) FileType {
	switch dt {
	case dtDir:
		return TypeDirectory
	case dtSymlink:
		return TypeSymlink
	case dtSock:
		return TypeSocket
	case dtFifo:
		return TypeFifo
	case dtBlk:
		return TypeBlockDev
	case dtChr:
		return TypeCharDev
	default:
		return TypeRegular
	}
}

// ReadDir lists every live entry of the directory named by dirInum
// (§4.7), in on-disk order. Holes (Inode == 0) are skipped.
func (fsys *FileSystem) ReadDir(dirInum uint32) ([]DirEnt, error) {
	dir := fsys.GetInode(dirInum)
	if !dir.IsDir() {
		return nil, ErrNotDir
	}
	sb := fsys.superblock()
	size := dir.Size()

	var entries []DirEnt
	var offset uint32
	for uint64(offset) < size {
		blockIdx := offset / fsys.blockSize
		block := fsys.readDirBlock(dir, blockIdx)
		blockStart := blockIdx * fsys.blockSize
		inBlock := offset - blockStart

		for inBlock < fsys.blockSize && uint64(blockStart+inBlock) < size {
			bytesAvailable := fsys.blockSize - inBlock
			if block == nil || bytesAvailable < dirEntHeaderSize {
				return entries, nil
			}
			entry := parseDirEntry(block, inBlock)
			fileOffset := blockStart + inBlock
			if !fsys.dirEntryValid(dir, entry, fileOffset, bytesAvailable, sb.InodesCount) {
				return entries, nil
			}
			if entry.Inode != 0 {
				entries = append(entries, DirEnt{Inode: entry.Inode, Name: entry.Name, Type: dirFileTypeToType(entry.FileType)})
			}
			inBlock += uint32(entry.RecLen)
		}
		offset = blockStart + fsys.blockSize
	}
	return entries, nil
}

// lastRecordLocation locates the final directory record, which lives
// in the directory's last block, returning that block's direct-slot
// index, the record's byte offset within the block, and the block's
// raw bytes, needed by insertEntry to decide whether to grow in place
// or start a new block.
func (fsys *FileSystem) lastRecordLocation(dir *Inode) (blockIdx, inBlock uint32, block []byte) {
	size := dir.Size()
	if size == 0 {
		fatal("dir: empty directory file has no last record")
	}
	blockIdx = uint32((size - 1) / uint64(fsys.blockSize))
	block = fsys.readDirBlock(dir, blockIdx)
	if block == nil {
		fatal("dir: last block of directory is unallocated")
	}
	blockStart := uint64(blockIdx) * uint64(fsys.blockSize)
	limit := uint32(size - blockStart)

	var off uint32
	for {
		e := parseDirEntry(block, off)
		if e.RecLen == 0 {
			fatal("dir: zero-length record at offset %d of block %d", off, blockIdx)
		}
		next := off + uint32(e.RecLen)
		if next >= limit {
			return blockIdx, off, block
		}
		off = next
	}
}

// FileNew creates a new directory entry named name in parentDir
// pointing at a freshly allocated inode of type typ (§4.7 `file_new`).
// It implements the fresh-directory special case (`.`/`..`) itself
// when typ is TypeDirectory.
func (fsys *FileSystem) FileNew(t *Thread, parentDirInum uint32, name string, typ FileType) (uint32, error) {
	if len(name) == 0 {
		return 0, ErrNoEnt
	}
	if len(name) >= 255 {
		return 0, ErrNameTooLong
	}
	if _, err := fsys.FindEntry(parentDirInum, name); err == nil {
		return 0, ErrExist
	}

	inum := fsys.InodeAlloc(t, typ)
	if inum == 0 {
		return 0, ErrNoSpc
	}

	if err := fsys.insertEntry(t, parentDirInum, inum, name, typ); err != nil {
		fsys.InodeDealloc(t, inum, typ == TypeDirectory)
		return 0, err
	}

	if typ == TypeDirectory {
		if err := fsys.insertEntry(t, inum, inum, ".", TypeDirectory); err != nil {
			return 0, err
		}
		if err := fsys.insertEntry(t, inum, parentDirInum, "..", TypeDirectory); err != nil {
			return 0, err
		}
	}

	return inum, nil
}

// insertEntry appends one directory record for (name -> targetInum)
// into dirInum, per §4.7 steps 3-6, and bumps targetInum's link count
// under the inode-allocation lock.
func (fsys *FileSystem) insertEntry(t *Thread, dirInum, targetInum uint32, name string, typ FileType) error {
	dir := fsys.GetInode(dirInum)
	need := minRecLen(len(name))

	if dir.Size() == 0 {
		if !dir.IsDir() {
			fatal("dir: insertEntry on a non-directory with zero size")
		}
		if err := fsys.appendNewBlock(t, dirInum, dir, name, targetInum, typ); err != nil {
			return err
		}
		fsys.bumpLinks(t, targetInum, 1)
		return nil
	}

	blockIdx, inBlock, block := fsys.lastRecordLocation(dir)
	last := parseDirEntry(block, inBlock)
	blockStart := blockIdx * fsys.blockSize

	if last.Inode == 0 {
		// Overwrite the trailing hole in place.
		if last.RecLen < need {
			fatal("dir: trailing hole too small to satisfy a record that must fit (shouldn't happen: holes are always extended to block end)")
		}
		writeDirEntry(block, inBlock, dirEntry{Inode: targetInum, RecLen: last.RecLen, NameLen: uint8(len(name)), FileType: dirFileType(typ), Name: name})
		zeroTail(block, inBlock+8+uint32(len(name)), inBlock+uint32(last.RecLen))
		fsys.writeDirBlockRaw(dir, blockIdx, block)
		fsys.bumpLinks(t, targetInum, 1)
		return nil
	}

	minLast := minRecLen(int(last.NameLen))
	freeInBlock := last.RecLen - minLast

	if uint32(freeInBlock) >= uint32(need) {
		// Shrink the last record, then place the new one right after it
		// in the same block.
		writeDirEntry(block, inBlock, dirEntry{Inode: last.Inode, RecLen: minLast, NameLen: last.NameLen, FileType: last.FileType, Name: last.Name})
		newOff := inBlock + uint32(minLast)
		newRecLen := last.RecLen - minLast
		writeDirEntry(block, newOff, dirEntry{Inode: targetInum, RecLen: newRecLen, NameLen: uint8(len(name)), FileType: dirFileType(typ), Name: name})
		zeroTail(block, newOff+8+uint32(len(name)), newOff+uint32(newRecLen))
		fsys.writeDirBlockRaw(dir, blockIdx, block)

		newSize := uint64(blockStart) + uint64(newOff) + uint64(newRecLen)
		if newSize > dir.Size() {
			dir.setSize(newSize)
		}
		fsys.PutInode(dirInum, dir)
		fsys.bumpLinks(t, targetInum, 1)
		return nil
	}

	// Doesn't fit: stretch the last record to the block boundary, then
	// start the new record in a fresh block.
	stretched := fsys.blockSize - inBlock
	writeDirEntry(block, inBlock, dirEntry{Inode: last.Inode, RecLen: uint16(stretched), NameLen: last.NameLen, FileType: last.FileType, Name: last.Name})
	fsys.writeDirBlockRaw(dir, blockIdx, block)
	dir.setSize(uint64(blockStart) + uint64(fsys.blockSize))
	fsys.PutInode(dirInum, dir)

	if err := fsys.appendNewBlock(t, dirInum, dir, name, targetInum, typ); err != nil {
		return err
	}
	fsys.bumpLinks(t, targetInum, 1)
	return nil
}

// appendNewBlock allocates a fresh direct block for dirInum, writes
// one record stretching to the block's end, and extends dir.Size().
func (fsys *FileSystem) appendNewBlock(t *Thread, dirInum uint32, dir *Inode, name string, targetInum uint32, typ FileType) error {
	blockIdx := uint32(dir.Size() / uint64(fsys.blockSize))
	if blockIdx >= DirectBlocks {
		return ErrNoSpc
	}
	if dir.Block[blockIdx] != 0 {
		fatal("dir: appendNewBlock found an already-allocated block at index %d", blockIdx)
	}

	block := fsys.BlockAlloc(t)
	if block == 0 {
		return ErrNoSpc
	}
	dir.Block[blockIdx] = block

	buf := make([]byte, fsys.blockSize)
	writeDirEntry(buf, 0, dirEntry{Inode: targetInum, RecLen: uint16(fsys.blockSize), NameLen: uint8(len(name)), FileType: dirFileType(typ), Name: name})
	zeroTail(buf, 8+uint32(len(name)), fsys.blockSize)
	fsys.im.blockWrite(block, buf, 0, fsys.blockSize)

	newSize := uint64(blockIdx)*uint64(fsys.blockSize) + uint64(fsys.blockSize)
	dir.setSize(newSize)
	dir.BlocksLo = blocks512(dir.Size())
	fsys.PutInode(dirInum, dir)
	return nil
}

func (fsys *FileSystem) writeDirBlockRaw(dir *Inode, blockIdx uint32, buf []byte) {
	fsys.im.blockWrite(dir.Block[blockIdx], buf, 0, fsys.blockSize)
}

func zeroTail(buf []byte, from, to uint32) {
	if to > uint32(len(buf)) {
		to = uint32(len(buf))
	}
	if from < to {
		clear(buf[from:to])
	}
}

func (fsys *FileSystem) bumpLinks(t *Thread, inum uint32, delta int) {
	fsys.ialloc.Lock(t)
	defer fsys.ialloc.Unlock()
	ino := fsys.GetInode(inum)
	ino.LinksCount = uint16(int(ino.LinksCount) + delta)
	fsys.PutInode(inum, ino)
}

// FileDelete removes name from parentDir, coalescing its record into
// its predecessor, and decrements the target inode's link count,
// truncating and freeing the inode once it reaches zero (§4.7
// `file_delete`).
func (fsys *FileSystem) FileDelete(t *Thread, parentDirInum uint32, name string) error {
	dir := fsys.GetInode(parentDirInum)
	sb := fsys.superblock()
	size := dir.Size()

	var offset uint32
	for uint64(offset) < size {
		blockIdx := offset / fsys.blockSize
		block := fsys.readDirBlock(dir, blockIdx)
		blockStart := blockIdx * fsys.blockSize
		inBlock := offset - blockStart

		var predOff uint32
		havePred := false

		for inBlock < fsys.blockSize && uint64(blockStart+inBlock) < size {
			bytesAvailable := fsys.blockSize - inBlock
			if block == nil || bytesAvailable < dirEntHeaderSize {
				return ErrNoEnt
			}
			entry := parseDirEntry(block, inBlock)
			fileOffset := blockStart + inBlock
			if !fsys.dirEntryValid(dir, entry, fileOffset, bytesAvailable, sb.InodesCount) {
				return ErrNoEnt
			}

			if entry.Inode != 0 && int(entry.NameLen) == len(name) && entry.Name == name {
				victimInum := entry.Inode
				if havePred {
					pred := parseDirEntry(block, predOff)
					pred.RecLen += entry.RecLen
					writeDirEntry(block, predOff, pred)
				} else {
					entry.Inode = 0
					writeDirEntry(block, inBlock, entry)
				}
				fsys.writeDirBlockRaw(dir, blockIdx, block)

				fsys.bumpLinks(t, victimInum, -1)
				target := fsys.GetInode(victimInum)
				if target.LinksCount == 0 {
					if target.IsRegular() {
						fsys.FileTruncate(t, victimInum)
					}
					fsys.InodeDealloc(t, victimInum, target.IsDir())
				}
				return nil
			}

			predOff = inBlock
			havePred = true
			inBlock += uint32(entry.RecLen)
		}
		offset = blockStart + fsys.blockSize
	}
	return ErrNoEnt
}
