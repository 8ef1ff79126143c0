package ext2

import "golang.org/x/sys/unix"

// fillStat fills a Darwin unix.Stat_t — field names here (Atimespec
// etc., 16-bit Mode/Nlink) differ from linux's Stat_t, hence the
// separate _linux/_darwin files.
func fillStat(ino *Inode, inum uint32, st *unix.Stat_t) {
	*st = unix.Stat_t{}
	st.Ino = uint64(inum)
	st.Mode = uint16(statMode(ino))
	st.Nlink = uint16(ino.LinksCount)
	st.Uid = uint32(ino.UID)
	st.Gid = uint32(ino.GID)
	st.Size = int64(ino.Size())
	st.Atimespec.Sec = int64(ino.ATime)
	st.Mtimespec.Sec = int64(ino.MTime)
	st.Ctimespec.Sec = int64(ino.CTime)
}
