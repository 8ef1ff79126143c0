package ext2

import "errors"

// Open flags (§6): a 2-bit access-mode bitmask (read = bit 0, write =
// bit 1, so O_RDWR is both) plus independent option bits. The values
// are this driver's own and differ from POSIX's fcntl.h.
const (
	O_RDONLY = 0x1
	O_WRONLY = 0x2
	O_RDWR   = 0x3
	O_CREAT  = 0x4
	O_EXCL   = 0x8
	O_TRUNC  = 0x10
	O_APPEND = 0x20

	oAccessMask = O_RDONLY | O_WRONLY
)

// lseek whence codes (§6).
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

// fdEntry is one open-file-description (§4.9): the inode it refers to,
// the flags it was opened with, its own seek offset, and a reference
// count for the "Open/Closing/Freed" descriptor state machine. Each
// entry carries its own Spinlock (§5.3's per-descriptor lock), so
// concurrent read/write/lseek on the SAME fd serialize while calls on
// different fds never contend.
type fdEntry struct {
	Inode    uint32
	Flags    int
	Offset   uint64
	Refcount int
	lock     Spinlock
}

// FDTable is a per-thread descriptor table. New descriptors fill the
// lowest free slot, matching the classical POSIX requirement that a
// later dup2-style caller can predict which index becomes free next
// (§4.9).
type FDTable struct {
	slots []*fdEntry
}

// NewFDTable returns an empty descriptor table.
func NewFDTable() *FDTable {
	return &FDTable{}
}

func (tbl *FDTable) alloc(e *fdEntry) int {
	for i, s := range tbl.slots {
		if s == nil {
			tbl.slots[i] = e
			return i
		}
	}
	tbl.slots = append(tbl.slots, e)
	return len(tbl.slots) - 1
}

func (tbl *FDTable) get(fd int) *fdEntry {
	if fd < 0 || fd >= len(tbl.slots) {
		return nil
	}
	return tbl.slots[fd]
}

func (tbl *FDTable) free(fd int) {
	tbl.slots[fd] = nil
}

// Open resolves path and installs a descriptor for it in t.Files
// (§4.9 `open`). O_CREAT creates a new regular file in the parent
// directory when path doesn't already exist.
func (fsys *FileSystem) Open(t *Thread, path string, flags int) (int, error) {
	if flags&oAccessMask == 0 {
		return 0, ErrInval
	}

	inum, err := fsys.NameI(t.WorkingDir, path)
	switch {
	case err == nil && inum == 0:
		return 0, ErrNoEnt
	case err != nil && errors.Is(err, ErrNoEnt) && flags&O_CREAT != 0:
		parentPath, leaf := splitParentLeaf(path)
		parentInum, perr := fsys.NameI(t.WorkingDir, parentPath)
		if perr != nil {
			return 0, perr
		}
		newInum, cerr := fsys.FileNew(t, parentInum, leaf, TypeRegular)
		if cerr != nil {
			return 0, cerr
		}
		inum = newInum
	case err != nil:
		return 0, err
	default:
		if flags&(O_CREAT|O_EXCL) == O_CREAT|O_EXCL {
			return 0, ErrExist
		}
	}

	return fsys.OpenInode(t, inum, flags)
}

// OpenInode installs a descriptor for an already-resolved inode
// (§4.9 `open`, path resolution factored out). Exposed so a caller
// that already has an inode number in hand — a FUSE bridge resolving
// through its own Lookup, for instance — doesn't need to round-trip
// the inode back through a path.
func (fsys *FileSystem) OpenInode(t *Thread, inum uint32, flags int) (int, error) {
	if flags&oAccessMask == 0 {
		return 0, ErrInval
	}

	ino := fsys.GetInode(inum)
	if flags&O_WRONLY != 0 && ino.IsDir() {
		return 0, ErrIsDir
	}
	if flags&O_TRUNC != 0 && flags&O_WRONLY != 0 && ino.IsRegular() {
		fsys.FileTruncate(t, inum)
	}

	fd := t.Files.alloc(&fdEntry{Inode: inum, Flags: flags, Refcount: 1})

	if flags&O_APPEND != 0 {
		if _, err := fsys.Lseek(t, fd, 0, SeekEnd); err != nil {
			return 0, err
		}
	}
	return fd, nil
}

// Close releases one reference to fd's descriptor (§4.9 `close`). The
// table slot is always freed; Refcount exists for parity with a
// kernel where multiple fds could share one open-file-description —
// this driver has no dup()-equivalent syscall, so it's always 1.
func (fsys *FileSystem) Close(t *Thread, fd int) error {
	e := t.Files.get(fd)
	if e == nil {
		return ErrBadF
	}
	e.lock.Lock(t)
	e.Refcount--
	e.lock.Unlock()
	t.Files.free(fd)
	return nil
}

// Read reads up to len(buf) bytes from fd at its current offset,
// advancing the offset by the amount actually read (§4.9 `read`).
func (fsys *FileSystem) Read(t *Thread, fd int, buf []byte) (int, error) {
	e := t.Files.get(fd)
	if e == nil {
		return 0, ErrBadF
	}
	e.lock.Lock(t)
	defer e.lock.Unlock()

	if e.Flags&O_RDONLY == 0 {
		return 0, ErrBadF
	}
	ino := fsys.GetInode(e.Inode)
	if ino.IsDir() {
		return 0, ErrIsDir
	}
	if !ino.IsRegular() {
		return 0, ErrBadF
	}

	n := fsys.FileRead(e.Inode, buf, e.Offset)
	e.Offset += uint64(n)
	return n, nil
}

// Write writes len(buf) bytes to fd at its current offset, advancing
// the offset by the amount actually written (§4.9 `write`).
func (fsys *FileSystem) Write(t *Thread, fd int, buf []byte) (int, error) {
	e := t.Files.get(fd)
	if e == nil {
		return 0, ErrBadF
	}
	e.lock.Lock(t)
	defer e.lock.Unlock()

	if e.Flags&O_WRONLY == 0 {
		return 0, ErrBadF
	}
	ino := fsys.GetInode(e.Inode)
	if ino.IsDir() {
		return 0, ErrIsDir
	}
	if !ino.IsRegular() {
		return 0, ErrBadF
	}

	n, err := fsys.FileWrite(t, e.Inode, buf, e.Offset)
	if err != nil {
		return 0, err
	}
	e.Offset += uint64(n)
	return n, nil
}

// Lseek repositions fd's offset per whence (§4.9 `lseek`). Arithmetic
// is done in uint64 exactly as the underlying offset is stored, so a
// wraparound past 2^64-1 is detected and reported as −EOVERFLOW rather
// than silently truncated.
func (fsys *FileSystem) Lseek(t *Thread, fd int, offset uint64, whence int) (uint64, error) {
	e := t.Files.get(fd)
	if e == nil {
		return 0, ErrBadF
	}
	e.lock.Lock(t)
	defer e.lock.Unlock()

	ino := fsys.GetInode(e.Inode)
	if ino.Type() == TypeFifo || ino.Type() == TypeSocket {
		return 0, ErrSPipe
	}

	var base uint64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = e.Offset
	case SeekEnd:
		base = ino.Size()
	default:
		return 0, ErrInval
	}

	sum := base + offset
	if sum < base {
		return 0, ErrOverflow
	}
	e.Offset = sum
	return sum, nil
}

// Chdir resolves path and, if it names a directory, makes it t's new
// working directory (§4.9 `chdir`).
func (fsys *FileSystem) Chdir(t *Thread, path string) error {
	inum, err := fsys.NameI(t.WorkingDir, path)
	if err != nil {
		return err
	}
	if inum == 0 {
		return ErrNoEnt
	}
	ino := fsys.GetInode(inum)
	if !ino.IsDir() {
		return ErrNotDir
	}
	t.WorkingDir = inum
	return nil
}

// Unlink removes path's directory entry, deallocating its inode once
// its link count reaches zero (§4.9 `unlink`).
func (fsys *FileSystem) Unlink(t *Thread, path string) error {
	parentPath, leaf := splitParentLeaf(path)
	parentInum, err := fsys.NameI(t.WorkingDir, parentPath)
	if err != nil {
		return err
	}
	return fsys.FileDelete(t, parentInum, leaf)
}

// Link creates newpath as a second directory entry referencing
// oldpath's inode, incrementing its link count (§4.9 `link`).
func (fsys *FileSystem) Link(t *Thread, oldpath, newpath string) error {
	oldInum, err := fsys.NameI(t.WorkingDir, oldpath)
	if err != nil {
		return err
	}
	if oldInum == 0 {
		return ErrNoEnt
	}

	parentPath, leaf := splitParentLeaf(newpath)
	parentInum, err := fsys.NameI(t.WorkingDir, parentPath)
	if err != nil {
		return err
	}
	if _, err := fsys.FindEntry(parentInum, leaf); err == nil {
		return ErrExist
	}

	return fsys.LinkInode(t, oldInum, parentInum, leaf)
}

// LinkInode inserts name in parentDirInum referencing an
// already-resolved inode, the path-free half of Link — useful to a
// caller (a FUSE bridge) that already holds both inode numbers.
func (fsys *FileSystem) LinkInode(t *Thread, oldInum, parentDirInum uint32, name string) error {
	if _, err := fsys.FindEntry(parentDirInum, name); err == nil {
		return ErrExist
	}
	oldIno := fsys.GetInode(oldInum)
	return fsys.insertEntry(t, parentDirInum, oldInum, name, oldIno.Type())
}
