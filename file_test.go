package ext2

import "testing"

// TestFileReadBeyondDirectRegionIsBounded exercises a foreign-written
// volume whose regular file legitimately reports a size past
// MaxDirectFileSize() — something dispose already tolerates on
// truncate/delete. FileRead must return a bounded result (0, since
// this driver's own read path never populates the indirect blocks
// such a size implies) rather than underflow offset arithmetic and hit
// the direct-region fatal check.
func TestFileReadBeyondDirectRegionIsBounded(t *testing.T) {
	buf := make([]byte, 1*1024*1024)
	fsys, err := Mkfs(buf)
	if err != nil {
		t.Fatalf("Mkfs: %s", err)
	}
	th := NewThread(RootInode)

	inum, err := fsys.FileNew(th, RootInode, "big", TypeRegular)
	if err != nil {
		t.Fatalf("FileNew: %s", err)
	}

	ino := fsys.GetInode(inum)
	ino.setSize(fsys.MaxDirectFileSize() + 4096)
	fsys.PutInode(inum, ino)

	dst := make([]byte, 16)
	n := fsys.FileRead(inum, dst, fsys.MaxDirectFileSize()+100)
	if n != 0 {
		t.Fatalf("FileRead at offset past MaxDirectFileSize() = %d, want 0", n)
	}
}
