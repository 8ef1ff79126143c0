package ext2_test

import (
	"bytes"
	"testing"

	"github.com/cuteos/ext2"
)

// TestScenarioWriteReadRoundTrip is end-to-end scenario 1 from spec.md
// §8: a 4096-byte write/read round trip with free-counter bookkeeping.
func TestScenarioWriteReadRoundTrip(t *testing.T) {
	fsys := mustMkfs(t, 2*1024*1024)
	th := ext2.NewThread(ext2.RootInode)

	before := fsys.Info()

	fd, err := fsys.Open(th, "/a", ext2.O_WRONLY|ext2.O_CREAT)
	if err != nil {
		t.Fatalf("Open(/a, O_CREAT): %s", err)
	}
	data := bytes.Repeat([]byte{0xAA}, 4096)
	if _, err := fsys.Write(th, fd, data); err != nil {
		t.Fatalf("Write: %s", err)
	}
	if err := fsys.Close(th, fd); err != nil {
		t.Fatalf("Close: %s", err)
	}

	fd, err = fsys.Open(th, "/a", ext2.O_RDONLY)
	if err != nil {
		t.Fatalf("Open(/a, O_RDONLY): %s", err)
	}
	out := make([]byte, 4096)
	n, err := fsys.Read(th, fd, out)
	if err != nil {
		t.Fatalf("Read: %s", err)
	}
	if n != 4096 || !bytes.Equal(out, data) {
		t.Fatalf("read back %d bytes not all 0xAA", n)
	}
	fsys.Close(th, fd)

	inum, err := fsys.FindEntry(ext2.RootInode, "a")
	if err != nil {
		t.Fatalf("FindEntry(a): %s", err)
	}
	ino := fsys.GetInode(inum)
	if ino.Size() != 4096 {
		t.Fatalf("/a.size = %d, want 4096", ino.Size())
	}

	after := fsys.Info()
	if before.FreeBlocks-after.FreeBlocks != 4 {
		t.Fatalf("free_blocks dropped by %d, want 4", before.FreeBlocks-after.FreeBlocks)
	}
	if before.FreeInodes-after.FreeInodes != 1 {
		t.Fatalf("free_inodes dropped by %d, want 1", before.FreeInodes-after.FreeInodes)
	}
}

// TestScenarioDirectoryDotDotAndLink is scenario 2: a new directory's
// ./.. resolve correctly, and link() makes two names share one inode.
func TestScenarioDirectoryDotDotAndLink(t *testing.T) {
	fsys := mustMkfs(t, 2*1024*1024)
	th := ext2.NewThread(ext2.RootInode)

	fd, err := fsys.Open(th, "/a", ext2.O_WRONLY|ext2.O_CREAT)
	if err != nil {
		t.Fatalf("Open(/a, O_CREAT): %s", err)
	}
	fsys.Close(th, fd)

	dirInum, err := fsys.FileNew(th, ext2.RootInode, "dir", ext2.TypeDirectory)
	if err != nil {
		t.Fatalf("FileNew(/dir): %s", err)
	}

	got, err := fsys.NameI(ext2.RootInode, "/dir/.")
	if err != nil || got != dirInum {
		t.Fatalf("NameI(/dir/.) = (%d, %v), want (%d, nil)", got, err, dirInum)
	}
	got, err = fsys.NameI(ext2.RootInode, "/dir/..")
	if err != nil || got != ext2.RootInode {
		t.Fatalf("NameI(/dir/..) = (%d, %v), want (%d, nil)", got, err, ext2.RootInode)
	}

	if err := fsys.Link(th, "/a", "/dir/b"); err != nil {
		t.Fatalf("Link(/a, /dir/b): %s", err)
	}

	aInum, _ := fsys.NameI(ext2.RootInode, "/a")
	bInum, _ := fsys.NameI(ext2.RootInode, "/dir/b")
	if aInum != bInum {
		t.Fatalf("/a and /dir/b reference different inodes: %d vs %d", aInum, bInum)
	}
	if links := fsys.GetInode(aInum).LinksCount; links != 2 {
		t.Fatalf("links_count = %d, want 2", links)
	}
}

// TestScenarioUnlinkDropsLinkCountThenFrees is scenario 3: unlinking
// one of two names drops the link count; unlinking the last one frees
// the inode and returns free counters to their pre-link-target value.
func TestScenarioUnlinkDropsLinkCountThenFrees(t *testing.T) {
	fsys := mustMkfs(t, 2*1024*1024)
	th := ext2.NewThread(ext2.RootInode)

	if _, err := fsys.FileNew(th, ext2.RootInode, "dir", ext2.TypeDirectory); err != nil {
		t.Fatalf("FileNew(/dir): %s", err)
	}
	baseline := fsys.Info()

	fd, err := fsys.Open(th, "/a", ext2.O_WRONLY|ext2.O_CREAT)
	if err != nil {
		t.Fatalf("Open(/a, O_CREAT): %s", err)
	}
	fsys.Close(th, fd)
	if err := fsys.Link(th, "/a", "/dir/b"); err != nil {
		t.Fatalf("Link: %s", err)
	}

	if err := fsys.Unlink(th, "/a"); err != nil {
		t.Fatalf("Unlink(/a): %s", err)
	}
	bInum, err := fsys.NameI(ext2.RootInode, "/dir/b")
	if err != nil {
		t.Fatalf("/dir/b should still resolve: %s", err)
	}
	if links := fsys.GetInode(bInum).LinksCount; links != 1 {
		t.Fatalf("links_count after unlinking /a = %d, want 1", links)
	}

	if err := fsys.Unlink(th, "/dir/b"); err != nil {
		t.Fatalf("Unlink(/dir/b): %s", err)
	}
	after := fsys.Info()
	if after.FreeBlocks != baseline.FreeBlocks || after.FreeInodes != baseline.FreeInodes {
		t.Fatalf("free counters after deleting both names = (%d,%d), want (%d,%d)",
			after.FreeBlocks, after.FreeInodes, baseline.FreeBlocks, baseline.FreeInodes)
	}
}

// TestScenarioLseekOnDirectory is scenario 4: lseek SET/CUR/END on a
// descriptor opened on the root directory itself.
func TestScenarioLseekOnDirectory(t *testing.T) {
	fsys := mustMkfs(t, 2*1024*1024)
	th := ext2.NewThread(ext2.RootInode)

	fd, err := fsys.Open(th, "/", ext2.O_RDONLY)
	if err != nil {
		t.Fatalf("Open(/): %s", err)
	}
	defer fsys.Close(th, fd)

	if off, err := fsys.Lseek(th, fd, 10, ext2.SeekSet); err != nil || off != 10 {
		t.Fatalf("Lseek(SET,10) = (%d,%v), want (10,nil)", off, err)
	}
	if off, err := fsys.Lseek(th, fd, 5, ext2.SeekCur); err != nil || off != 15 {
		t.Fatalf("Lseek(CUR,5) = (%d,%v), want (15,nil)", off, err)
	}
	dirSize := fsys.GetInode(ext2.RootInode).Size()
	if off, err := fsys.Lseek(th, fd, 0, ext2.SeekEnd); err != nil || off != dirSize {
		t.Fatalf("Lseek(END,0) = (%d,%v), want (%d,nil)", off, err, dirSize)
	}
}

// TestScenarioBulkCreateExclThenDelete is scenario 5, scaled down from
// 10,000 to keep the test fast: create many files, recreating each
// with O_EXCL returns -EEXIST, deleting all returns free counters to
// their starting values.
func TestScenarioBulkCreateExclThenDelete(t *testing.T) {
	fsys := mustMkfs(t, 16*1024*1024, ext2.WithInodesPerGroup(4096))
	th := ext2.NewThread(ext2.RootInode)

	before := fsys.Info()

	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	var names []string
	for _, hi := range alphabet {
		for _, lo := range alphabet {
			names = append(names, string(hi)+string(lo))
		}
	}

	for _, name := range names {
		fd, err := fsys.Open(th, name, ext2.O_WRONLY|ext2.O_CREAT|ext2.O_EXCL)
		if err != nil {
			t.Fatalf("Open(%q, O_CREAT|O_EXCL): %s", name, err)
		}
		fsys.Close(th, fd)
	}

	for _, name := range names {
		if _, err := fsys.Open(th, name, ext2.O_WRONLY|ext2.O_CREAT|ext2.O_EXCL); err != ext2.ErrExist {
			t.Fatalf("re-Open(%q, O_CREAT|O_EXCL) = %v, want ErrExist", name, err)
		}
	}

	for _, name := range names {
		if err := fsys.Unlink(th, name); err != nil {
			t.Fatalf("Unlink(%q): %s", name, err)
		}
	}

	after := fsys.Info()
	if after.FreeBlocks != before.FreeBlocks || after.FreeInodes != before.FreeInodes {
		t.Fatalf("free counters after bulk create/delete = (%d,%d), want (%d,%d)",
			after.FreeBlocks, after.FreeInodes, before.FreeBlocks, before.FreeInodes)
	}
}

// TestScenarioFillUntilENOSPC is scenario 6: writing successively into
// new files until a write returns -ENOSPC leaves the partially written
// file with the size of bytes actually committed, and a further write
// still returns -ENOSPC with no state change.
func TestScenarioFillUntilENOSPC(t *testing.T) {
	fsys := mustMkfs(t, 512*1024)
	th := ext2.NewThread(ext2.RootInode)

	chunk := bytes.Repeat([]byte{0x42}, 1024)

	for i := 0; ; i++ {
		name := "w" + itoa(i)
		fd, err := fsys.Open(th, name, ext2.O_WRONLY|ext2.O_CREAT)
		if err != nil {
			t.Fatalf("Open(%q): %s", name, err)
		}
		inum, ferr := fsys.FindEntry(ext2.RootInode, name)
		if ferr != nil {
			t.Fatalf("FindEntry(%q): %s", name, ferr)
		}

		n, werr := fsys.Write(th, fd, chunk)
		if werr == ext2.ErrNoSpc {
			sizeBefore := fsys.GetInode(inum).Size()
			if uint64(n) != sizeBefore {
				t.Fatalf("partial write committed %d bytes but inode size is %d", n, sizeBefore)
			}
			if _, err := fsys.Write(th, fd, chunk); err != ext2.ErrNoSpc {
				t.Fatalf("repeated write after ENOSPC = %v, want ErrNoSpc", err)
			}
			sizeAfter := fsys.GetInode(inum).Size()
			if sizeAfter != sizeBefore {
				t.Fatalf("size changed after a failed write: %d -> %d", sizeBefore, sizeAfter)
			}
			fsys.Close(th, fd)
			return
		}
		if werr != nil {
			t.Fatalf("Write(%q): %s", name, werr)
		}
		fsys.Close(th, fd)

		if i > 5000 {
			t.Fatal("volume never reported ENOSPC after 5000 files")
		}
	}
}
