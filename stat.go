package ext2

import "golang.org/x/sys/unix"

// Stat populates st from path's inode (§4.9 `stat`). Unpopulated
// fields (st_dev, st_rdev, st_blksize, ...) are left zero.
func (fsys *FileSystem) Stat(t *Thread, path string, st *unix.Stat_t) error {
	inum, err := fsys.NameI(t.WorkingDir, path)
	if err != nil {
		return err
	}
	if inum == 0 {
		return ErrNoEnt
	}
	fillStat(fsys.GetInode(inum), inum, st)
	return nil
}

// Fstat populates st from an already-open descriptor's inode (§4.9
// `fstat`).
func (fsys *FileSystem) Fstat(t *Thread, fd int, st *unix.Stat_t) error {
	e := t.Files.get(fd)
	if e == nil {
		return ErrBadF
	}
	fillStat(fsys.GetInode(e.Inode), e.Inode, st)
	return nil
}

// statMode reassembles a full POSIX mode (type nibble already present
// in ino.Mode, permission bits also already present) for st_mode.
func statMode(ino *Inode) uint32 {
	return uint32(ino.Mode)
}
