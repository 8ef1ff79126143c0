package ext2_test

import (
	"testing"

	"github.com/cuteos/ext2"
)

func TestNameIRootAndEmpty(t *testing.T) {
	fsys := mustMkfs(t, 1024*1024)

	inum, err := fsys.NameI(ext2.RootInode, "/")
	if err != nil || inum != ext2.RootInode {
		t.Fatalf("NameI(\"/\") = (%d, %v), want (%d, nil)", inum, err, ext2.RootInode)
	}

	inum, err = fsys.NameI(ext2.RootInode, "")
	if err != nil || inum != 0 {
		t.Fatalf("NameI(\"\") = (%d, %v), want (0, nil)", inum, err)
	}
}

func TestNameIResolvesNestedPath(t *testing.T) {
	fsys := mustMkfs(t, 1024*1024)
	th := ext2.NewThread(ext2.RootInode)

	subInum, err := fsys.FileNew(th, ext2.RootInode, "sub", ext2.TypeDirectory)
	if err != nil {
		t.Fatalf("FileNew(sub): %s", err)
	}
	leafInum, err := fsys.FileNew(th, subInum, "leaf", ext2.TypeRegular)
	if err != nil {
		t.Fatalf("FileNew(sub/leaf): %s", err)
	}

	got, err := fsys.NameI(ext2.RootInode, "/sub/leaf")
	if err != nil || got != leafInum {
		t.Fatalf("NameI(/sub/leaf) = (%d, %v), want (%d, nil)", got, err, leafInum)
	}

	got, err = fsys.NameI(ext2.RootInode, "sub/leaf")
	if err != nil || got != leafInum {
		t.Fatalf("NameI(sub/leaf) relative to root = (%d, %v), want (%d, nil)", got, err, leafInum)
	}
}

func TestNameIDotAndDotDot(t *testing.T) {
	fsys := mustMkfs(t, 1024*1024)
	th := ext2.NewThread(ext2.RootInode)

	subInum, err := fsys.FileNew(th, ext2.RootInode, "sub", ext2.TypeDirectory)
	if err != nil {
		t.Fatalf("FileNew(sub): %s", err)
	}

	got, err := fsys.NameI(ext2.RootInode, "/sub/../sub/.")
	if err != nil || got != subInum {
		t.Fatalf("NameI(/sub/../sub/.) = (%d, %v), want (%d, nil)", got, err, subInum)
	}
}

func TestNameINoEntAndNotDir(t *testing.T) {
	fsys := mustMkfs(t, 1024*1024)
	th := ext2.NewThread(ext2.RootInode)

	if _, err := fsys.NameI(ext2.RootInode, "/missing"); err != ext2.ErrNoEnt {
		t.Fatalf("NameI(/missing) = %v, want ErrNoEnt", err)
	}

	if _, err := fsys.FileNew(th, ext2.RootInode, "plain", ext2.TypeRegular); err != nil {
		t.Fatalf("FileNew(plain): %s", err)
	}
	if _, err := fsys.NameI(ext2.RootInode, "/plain/whatever"); err != ext2.ErrNotDir {
		t.Fatalf("NameI(/plain/whatever) = %v, want ErrNotDir", err)
	}
}

func TestNameINameTooLong(t *testing.T) {
	fsys := mustMkfs(t, 1024*1024)

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := fsys.NameI(ext2.RootInode, "/"+string(long)); err != ext2.ErrNameTooLong {
		t.Fatalf("NameI with a 300-byte component = %v, want ErrNameTooLong", err)
	}
}

// TestNameINotDirBeatsNameTooLong exercises both conditions at once: a
// too-long component under a non-directory parent. §4.8 orders the
// not-a-directory check before the name-length check, so ErrNotDir must
// win even though the component would also trip ErrNameTooLong.
func TestNameINotDirBeatsNameTooLong(t *testing.T) {
	fsys := mustMkfs(t, 1024*1024)
	th := ext2.NewThread(ext2.RootInode)

	if _, err := fsys.FileNew(th, ext2.RootInode, "plain", ext2.TypeRegular); err != nil {
		t.Fatalf("FileNew(plain): %s", err)
	}

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := fsys.NameI(ext2.RootInode, "/plain/"+string(long)); err != ext2.ErrNotDir {
		t.Fatalf("NameI(/plain/<300-byte name>) = %v, want ErrNotDir", err)
	}
}
