package ext2

import "testing"

// These exercise §7 tier 1: a corrupt superblock, BGD, or root
// directory aborts via fatal rather than returning an ordinary error.
// Mount itself never recovers — production callers are expected to let
// this crash the thread — so each test supplies its own recover(), the
// only place in this tree besides image_test.go's block-range check
// that catches a fatal panic.

func corruptedImage(t *testing.T) ([]byte, *FileSystem) {
	t.Helper()
	buf := make([]byte, 1*1024*1024)
	fsys, err := Mkfs(buf)
	if err != nil {
		t.Fatalf("Mkfs: %s", err)
	}
	return buf, fsys
}

func TestMountCorruptSuperblockIsFatal(t *testing.T) {
	buf, fsys := corruptedImage(t)

	sb := fsys.superblock()
	sb.Magic = 0
	fsys.writeSuperblock(sb)

	defer func() {
		if recover() == nil {
			t.Fatal("expected Mount to panic via fatal on a bad superblock magic")
		}
	}()
	Mount(buf)
}

func TestMountCorruptBGDIsFatal(t *testing.T) {
	buf, fsys := corruptedImage(t)

	bgd := fsys.readBGD(0)
	bgd.BlockBitmap = 0 // block 0 lies outside every group's valid range
	fsys.writeBGD(0, bgd)

	defer func() {
		if recover() == nil {
			t.Fatal("expected Mount to panic via fatal on an out-of-range BGD block pointer")
		}
	}()
	Mount(buf)
}

func TestMountCorruptRootIsFatal(t *testing.T) {
	buf, fsys := corruptedImage(t)

	root := fsys.GetInode(RootInode)
	root.Mode = 0 // no longer a directory
	fsys.PutInode(RootInode, root)

	defer func() {
		if recover() == nil {
			t.Fatal("expected Mount to panic via fatal on a non-directory root inode")
		}
	}()
	Mount(buf)
}
