package ext2_test

import (
	"testing"

	"github.com/cuteos/ext2"
)

func mustMkfs(t *testing.T, size int, opts ...ext2.MkfsOption) *ext2.FileSystem {
	t.Helper()
	buf := make([]byte, size)
	fsys, err := ext2.Mkfs(buf, opts...)
	if err != nil {
		t.Fatalf("Mkfs: %s", err)
	}
	return fsys
}

func TestMkfsProducesMountableVolume(t *testing.T) {
	fsys := mustMkfs(t, 1*1024*1024)

	entries, err := fsys.ReadDir(ext2.RootInode)
	if err != nil {
		t.Fatalf("ReadDir(root): %s", err)
	}

	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	if !names["."] || !names[".."] {
		t.Fatalf("root directory missing . or .. entries: %+v", entries)
	}
}

func TestMkfsMultiGroup(t *testing.T) {
	// Force a small blocksPerGroup so an otherwise modest image spans
	// several block groups, exercising mkfs's per-group metadata
	// placement against Mount's own validateGroup checks.
	fsys := mustMkfs(t, 4*1024*1024, ext2.WithBlocksPerGroup(512), ext2.WithInodesPerGroup(256))

	info := fsys.Info()
	if info.GroupCount < 2 {
		t.Fatalf("expected multiple block groups, got %d", info.GroupCount)
	}

	// Root directory must still resolve cleanly on a multi-group volume.
	if _, err := fsys.ReadDir(ext2.RootInode); err != nil {
		t.Fatalf("ReadDir(root) on multi-group volume: %s", err)
	}
}

func TestMkfsRejectsTinyImage(t *testing.T) {
	buf := make([]byte, 100)
	if _, err := ext2.Mkfs(buf); err == nil {
		t.Fatal("expected Mkfs to reject an image too small to hold a volume")
	}
}

func TestMkfsRejectsBadBlockSize(t *testing.T) {
	buf := make([]byte, 1024*1024)
	if _, err := ext2.Mkfs(buf, ext2.WithBlockSize(777)); err == nil {
		t.Fatal("expected Mkfs to reject a non-power-of-two block size")
	}
}

func TestMkfsVolumeName(t *testing.T) {
	fsys := mustMkfs(t, 1024*1024, ext2.WithVolumeName("mydisk"))
	if got := fsys.Info().VolumeName; got != "mydisk" {
		t.Fatalf("VolumeName = %q, want %q", got, "mydisk")
	}
}
