package ext2

import "strings"

// RootInode is the well-known inode number of the filesystem root
// (§4.8: "Leading `/` -> start at root inode (#2)").
const RootInode = 2

// maxPathComponent is the longest single path component the resolver
// will accumulate before failing with ErrNameTooLong (§4.8).
const maxPathComponent = 254

// NameI translates a UNIX path string to an inode number (§4.8
// `name_i`). An empty path resolves to inode 0; a leading slash starts
// from the root inode, otherwise resolution starts from wd.
func (fsys *FileSystem) NameI(wd uint32, path string) (uint32, error) {
	if path == "" {
		return 0, nil
	}

	var cur uint32
	if strings.HasPrefix(path, "/") {
		cur = RootInode
	} else {
		cur = wd
	}

	rest := path
	for {
		// Skip any run of slashes (also handles a lone leading "/" and
		// trailing slashes on directories, per §4.8).
		for strings.HasPrefix(rest, "/") {
			rest = rest[1:]
		}
		if rest == "" {
			return cur, nil
		}

		component := rest
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			component = rest[:idx]
			rest = rest[idx:]
		} else {
			rest = ""
		}

		curIno := fsys.GetInode(cur)
		if !curIno.IsDir() {
			return 0, ErrNotDir
		}

		if len(component) > maxPathComponent {
			return 0, ErrNameTooLong
		}

		next, err := fsys.FindEntry(cur, component)
		if err != nil {
			return 0, ErrNoEnt
		}
		cur = next
	}
}

// splitParentLeaf splits a path into its parent directory path and its
// final component, used by unlink/link (§4.9).
func splitParentLeaf(path string) (parent, leaf string) {
	trimmed := strings.TrimRight(path, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 {
		return ".", trimmed
	}
	if idx == 0 {
		return "/", trimmed[1:]
	}
	return trimmed[:idx], trimmed[idx+1:]
}
