package ext2

import "golang.org/x/sys/unix"

// fillStat fills a Linux unix.Stat_t — the field names/types here
// (Atim/Mtim/Ctim as unix.Timespec, 64-bit Nlink) are specific to
// linux's generated Stat_t, hence the separate _linux/_darwin files.
func fillStat(ino *Inode, inum uint32, st *unix.Stat_t) {
	*st = unix.Stat_t{}
	st.Ino = uint64(inum)
	st.Mode = statMode(ino)
	st.Nlink = uint64(ino.LinksCount)
	st.Uid = uint32(ino.UID)
	st.Gid = uint32(ino.GID)
	st.Size = int64(ino.Size())
	st.Atim.Sec = int64(ino.ATime)
	st.Mtim.Sec = int64(ino.MTime)
	st.Ctim.Sec = int64(ino.CTime)
}
