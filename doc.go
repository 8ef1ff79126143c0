// Package ext2 implements Cute's Ext2 read/write driver: an in-memory
// mount of a RAM-backed block image, with inode and block allocation,
// direct-block file I/O (indirect trees are only walked to free them on
// truncate), directory-entry management, UNIX path resolution and a
// POSIX-style file-descriptor layer.
//
// Everything here operates on a plain []byte image; the block device,
// memory allocator, spinlock primitive and per-thread context that a
// real kernel would supply are collaborators reached through narrow,
// explicit parameters ([FileSystem] and [Thread]) rather than package
// globals.
package ext2
