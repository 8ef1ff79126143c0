//go:build fuse

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"syscall"

	"github.com/cuteos/ext2"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

const usage = `ext2fuse - mount an Ext2 image over FUSE (read/write)

Usage:
  ext2fuse <image> <mountpoint>

The image is loaded into memory and mounted read-write; changes stay in
that in-memory copy and are not written back to <image>. Unmount with
fusermount -u <mountpoint> (Linux) or umount <mountpoint> (Darwin).
`

func main() {
	if len(os.Args) != 3 {
		fmt.Println(usage)
		os.Exit(1)
	}
	imagePath, mountpoint := os.Args[1], os.Args[2]

	buf, err := os.ReadFile(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: reading image %q: %s\n", imagePath, err)
		os.Exit(1)
	}
	fsys, err := ext2.Mount(buf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: mounting %q: %s\n", imagePath, err)
		os.Exit(1)
	}

	thread := ext2.NewThread(ext2.RootInode)
	root := &node{fsys: fsys, thread: thread, inum: ext2.RootInode}

	server, err := fs.Mount(mountpoint, root, &fs.Options{
		MountOptions: fuse.MountOptions{FsName: "ext2", Name: "ext2"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: mounting FUSE at %q: %s\n", mountpoint, err)
		os.Exit(1)
	}

	log.Printf("ext2fuse: serving %s at %s", imagePath, mountpoint)
	server.Wait()
}

// node is one fs.InodeEmbedder per ext2 inode, resolved lazily from
// FindEntry rather than pre-populated — the way a kernel filesystem's
// dentry cache is filled on demand (§4.12).
type node struct {
	fs.Inode

	fsys   *ext2.FileSystem
	thread *ext2.Thread
	inum   uint32
}

var _ fs.InodeEmbedder = (*node)(nil)
var _ fs.NodeLookuper = (*node)(nil)
var _ fs.NodeGetattrer = (*node)(nil)
var _ fs.NodeSetattrer = (*node)(nil)
var _ fs.NodeOpener = (*node)(nil)
var _ fs.NodeReader = (*node)(nil)
var _ fs.NodeWriter = (*node)(nil)
var _ fs.NodeCreater = (*node)(nil)
var _ fs.NodeMkdirer = (*node)(nil)
var _ fs.NodeUnlinker = (*node)(nil)
var _ fs.NodeLinker = (*node)(nil)
var _ fs.NodeReaddirer = (*node)(nil)

// errnoOf translates an ext2.Errno (or a wrapped one) to the
// syscall.Errno FUSE expects at its boundary.
func errnoOf(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch {
	case errIs(err, ext2.ErrNoEnt):
		return syscall.ENOENT
	case errIs(err, ext2.ErrExist):
		return syscall.EEXIST
	case errIs(err, ext2.ErrNotDir):
		return syscall.ENOTDIR
	case errIs(err, ext2.ErrIsDir):
		return syscall.EISDIR
	case errIs(err, ext2.ErrNoSpc):
		return syscall.ENOSPC
	case errIs(err, ext2.ErrBadF):
		return syscall.EBADF
	case errIs(err, ext2.ErrNameTooLong):
		return syscall.ENAMETOOLONG
	case errIs(err, ext2.ErrFBig):
		return syscall.EFBIG
	case errIs(err, ext2.ErrInval):
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}

func errIs(err error, target ext2.Errno) bool {
	return errors.Is(err, target)
}

func (n *node) child(inum uint32) *node {
	return &node{fsys: n.fsys, thread: n.thread, inum: inum}
}

func stableAttr(inum uint32, ino *ext2.Inode) fs.StableAttr {
	mode := uint32(syscall.S_IFREG)
	if ino.IsDir() {
		mode = syscall.S_IFDIR
	}
	return fs.StableAttr{Mode: mode, Ino: uint64(inum)}
}

func fillAttr(inum uint32, ino *ext2.Inode, out *fuse.Attr) {
	out.Ino = uint64(inum)
	out.Mode = uint32(0)
	out.Size = ino.Size()
	out.Nlink = uint32(ino.LinksCount)
	out.Uid = uint32(ino.UID)
	out.Gid = uint32(ino.GID)
	out.Atime = uint64(ino.ATime)
	out.Mtime = uint64(ino.MTime)
	out.Ctime = uint64(ino.CTime)
	if ino.IsDir() {
		out.Mode = syscall.S_IFDIR | 0755
	} else {
		out.Mode = syscall.S_IFREG | 0644
	}
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childInum, err := n.fsys.FindEntry(n.inum, name)
	if err != nil {
		return nil, syscall.ENOENT
	}
	ino := n.fsys.GetInode(childInum)
	fillAttr(childInum, ino, &out.Attr)

	child := n.child(childInum)
	return n.NewInode(ctx, child, stableAttr(childInum, ino)), 0
}

func (n *node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	ino := n.fsys.GetInode(n.inum)
	fillAttr(n.inum, ino, &out.Attr)
	return 0
}

func (n *node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok && size == 0 {
		ino := n.fsys.GetInode(n.inum)
		if ino.IsRegular() {
			n.fsys.FileTruncate(n.thread, n.inum)
		}
	}
	ino := n.fsys.GetInode(n.inum)
	fillAttr(n.inum, ino, &out.Attr)
	return 0
}

// fdHandle is the fs.FileHandle backing an open ext2 descriptor.
type fdHandle struct {
	fd int
}

func openFlags(flags uint32) int {
	switch flags & syscall.O_ACCMODE {
	case syscall.O_WRONLY:
		return ext2.O_WRONLY
	case syscall.O_RDWR:
		return ext2.O_RDWR
	default:
		return ext2.O_RDONLY
	}
}

func (n *node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	fd, err := n.fsys.OpenInode(n.thread, n.inum, openFlags(flags)|ext2.O_RDWR)
	if err != nil {
		return nil, 0, errnoOf(err)
	}
	return &fdHandle{fd: fd}, 0, 0
}

func (n *node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h, ok := f.(*fdHandle)
	if !ok {
		return nil, syscall.EBADF
	}
	if _, err := n.fsys.Lseek(n.thread, h.fd, uint64(off), ext2.SeekSet); err != nil {
		return nil, errnoOf(err)
	}
	nread, err := n.fsys.Read(n.thread, h.fd, dest)
	if err != nil {
		return nil, errnoOf(err)
	}
	return fuse.ReadResultData(dest[:nread]), 0
}

func (n *node) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	h, ok := f.(*fdHandle)
	if !ok {
		return 0, syscall.EBADF
	}
	if _, err := n.fsys.Lseek(n.thread, h.fd, uint64(off), ext2.SeekSet); err != nil {
		return 0, errnoOf(err)
	}
	nwrote, err := n.fsys.Write(n.thread, h.fd, data)
	if err != nil {
		return 0, errnoOf(err)
	}
	return uint32(nwrote), 0
}

func (n *node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	childInum, err := n.fsys.FileNew(n.thread, n.inum, name, ext2.TypeRegular)
	if err != nil {
		return nil, nil, 0, errnoOf(err)
	}
	fd, err := n.fsys.OpenInode(n.thread, childInum, ext2.O_RDWR)
	if err != nil {
		return nil, nil, 0, errnoOf(err)
	}

	ino := n.fsys.GetInode(childInum)
	fillAttr(childInum, ino, &out.Attr)
	child := n.child(childInum)
	return n.NewInode(ctx, child, stableAttr(childInum, ino)), &fdHandle{fd: fd}, 0, 0
}

func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childInum, err := n.fsys.FileNew(n.thread, n.inum, name, ext2.TypeDirectory)
	if err != nil {
		return nil, errnoOf(err)
	}
	ino := n.fsys.GetInode(childInum)
	fillAttr(childInum, ino, &out.Attr)
	child := n.child(childInum)
	return n.NewInode(ctx, child, stableAttr(childInum, ino)), 0
}

func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	return errnoOf(n.fsys.FileDelete(n.thread, n.inum, name))
}

func (n *node) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	src, ok := target.(*node)
	if !ok {
		return nil, syscall.EINVAL
	}
	if err := n.fsys.LinkInode(n.thread, src.inum, n.inum, name); err != nil {
		return nil, errnoOf(err)
	}
	ino := n.fsys.GetInode(src.inum)
	fillAttr(src.inum, ino, &out.Attr)
	return src.EmbeddedInode(), 0
}

// dirStream adapts ext2.ReadDir's slice into fs.DirStream.
type dirStream struct {
	entries []ext2.DirEnt
	pos     int
}

func (d *dirStream) HasNext() bool { return d.pos < len(d.entries) }

func (d *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := d.entries[d.pos]
	d.pos++
	mode := uint32(syscall.S_IFREG)
	if e.Type == ext2.TypeDirectory {
		mode = syscall.S_IFDIR
	}
	return fuse.DirEntry{Name: e.Name, Ino: uint64(e.Inode), Mode: mode}, 0
}

func (d *dirStream) Close() {}

func (n *node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.fsys.ReadDir(n.inum)
	if err != nil {
		return nil, errnoOf(err)
	}
	return &dirStream{entries: entries}, 0
}
