package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/cuteos/ext2"
)

const usage = `ext2tool - Ext2 filesystem CLI tool

Usage:
  ext2tool mkfs <image> <size> [blocksize]            Create a fresh Ext2 image of <size> bytes
  ext2tool ls <image> <path>                          List directory entries at <path>
  ext2tool cat <image> <path>                          Print a regular file's contents to stdout
  ext2tool info <image>                                Show superblock/BGD summary
  ext2tool export <image> <snapshot> [--gzip|--xz|--zstd]  Save a snapshot of <image> (uncompressed without a flag)
  ext2tool import <snapshot> <image>                   Restore <image> from a snapshot
  ext2tool help                                        Show this help message

Examples:
  ext2tool mkfs disk.img 4194304               Create a 4MiB image
  ext2tool ls disk.img /                        List the root directory
  ext2tool cat disk.img /etc/motd               Dump a file's contents
  ext2tool info disk.img                        Show volume geometry
  ext2tool export disk.img disk.snap --zstd     Save a zstd-compressed snapshot
  ext2tool export disk.img disk.snap --gzip     Save a gzip-compressed snapshot
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "mkfs":
		if len(os.Args) < 4 {
			fmt.Println("Error: Missing image path or size")
			fmt.Println(usage)
			os.Exit(1)
		}
		blockSize := uint32(1024)
		if len(os.Args) > 4 {
			n, err := strconv.ParseUint(os.Args[4], 10, 32)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: bad block size %q: %s\n", os.Args[4], err)
				os.Exit(1)
			}
			blockSize = uint32(n)
		}
		if err := doMkfs(os.Args[2], os.Args[3], blockSize); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

	case "ls":
		if len(os.Args) < 4 {
			fmt.Println("Error: Missing image path or directory path")
			fmt.Println(usage)
			os.Exit(1)
		}
		if err := listFiles(os.Args[2], os.Args[3]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

	case "cat":
		if len(os.Args) < 4 {
			fmt.Println("Error: Missing image path or target file")
			fmt.Println(usage)
			os.Exit(1)
		}
		if err := catFile(os.Args[2], os.Args[3]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

	case "info":
		if len(os.Args) < 3 {
			fmt.Println("Error: Missing image path")
			fmt.Println(usage)
			os.Exit(1)
		}
		if err := showInfo(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

	case "export":
		if len(os.Args) < 4 {
			fmt.Println("Error: Missing image path or snapshot path")
			fmt.Println(usage)
			os.Exit(1)
		}
		codec := ext2.CodecNone
		if len(os.Args) > 4 {
			switch os.Args[4] {
			case "--gzip":
				codec = ext2.CodecGzip
			case "--xz":
				codec = ext2.CodecXZ
			case "--zstd":
				codec = ext2.CodecZstd
			default:
				fmt.Fprintf(os.Stderr, "Error: unknown codec flag %q\n", os.Args[4])
				os.Exit(1)
			}
		}
		if err := exportSnapshot(os.Args[2], os.Args[3], codec); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

	case "import":
		if len(os.Args) < 4 {
			fmt.Println("Error: Missing snapshot path or image path")
			fmt.Println(usage)
			os.Exit(1)
		}
		if err := importSnapshot(os.Args[2], os.Args[3]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

	case "help":
		fmt.Println(usage)

	default:
		fmt.Printf("Error: Unknown command '%s'\n", cmd)
		fmt.Println(usage)
		os.Exit(1)
	}
}

// doMkfs creates a fresh image file of the given size and formats it.
func doMkfs(imagePath, sizeArg string, blockSize uint32) error {
	size, err := strconv.ParseUint(sizeArg, 10, 64)
	if err != nil {
		return fmt.Errorf("bad size %q: %w", sizeArg, err)
	}

	buf := make([]byte, size)
	opts := []ext2.MkfsOption{ext2.WithBlockSize(blockSize)}
	if _, err := ext2.Mkfs(buf, opts...); err != nil {
		return fmt.Errorf("mkfs failed: %w", err)
	}

	if err := os.WriteFile(imagePath, buf, 0644); err != nil {
		return fmt.Errorf("writing image %q: %w", imagePath, err)
	}
	return nil
}

func openImage(imagePath string) (*ext2.FileSystem, *ext2.Thread, error) {
	buf, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading image %q: %w", imagePath, err)
	}
	fsys, err := ext2.Mount(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("mounting %q: %w", imagePath, err)
	}
	return fsys, ext2.NewThread(ext2.RootInode), nil
}

// listFiles lists the directory entries at path.
func listFiles(imagePath, path string) error {
	fsys, t, err := openImage(imagePath)
	if err != nil {
		return err
	}

	dirInum, err := fsys.NameI(t.WorkingDir, path)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", path, err)
	}

	entries, err := fsys.ReadDir(dirInum)
	if err != nil {
		return fmt.Errorf("reading directory %q: %w", path, err)
	}

	for _, e := range entries {
		var size string
		if e.Type == ext2.TypeDirectory {
			size = "       -"
		} else {
			size = fmt.Sprintf("%8d", fsys.GetInode(e.Inode).Size())
		}
		fmt.Printf("%s %8d %s %s\n", typeChar(e.Type), e.Inode, size, e.Name)
	}
	return nil
}

func typeChar(t ext2.FileType) string {
	switch t {
	case ext2.TypeDirectory:
		return "d"
	case ext2.TypeSymlink:
		return "l"
	case ext2.TypeCharDev:
		return "c"
	case ext2.TypeBlockDev:
		return "b"
	case ext2.TypeFifo:
		return "p"
	case ext2.TypeSocket:
		return "s"
	default:
		return "-"
	}
}

// catFile prints a regular file's contents to stdout.
func catFile(imagePath, path string) error {
	fsys, t, err := openImage(imagePath)
	if err != nil {
		return err
	}

	fd, err := fsys.Open(t, path, ext2.O_RDONLY)
	if err != nil {
		return fmt.Errorf("opening %q: %w", path, err)
	}
	defer fsys.Close(t, fd)

	buf := make([]byte, 4096)
	for {
		n, err := fsys.Read(t, fd, buf)
		if n > 0 {
			if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
				return fmt.Errorf("writing to stdout: %w", werr)
			}
		}
		if err != nil {
			return fmt.Errorf("reading %q: %w", path, err)
		}
		if n == 0 {
			return nil
		}
	}
}

// showInfo prints superblock/BGD geometry.
func showInfo(imagePath string) error {
	fsys, _, err := openImage(imagePath)
	if err != nil {
		return err
	}

	info := fsys.Info()

	fmt.Println("Ext2 Volume Information")
	fmt.Println("=======================")
	fmt.Printf("Image:            %s\n", imagePath)
	fmt.Printf("Volume name:      %s\n", info.VolumeName)
	fmt.Printf("Block size:       %d bytes\n", info.BlockSize)
	fmt.Printf("Block groups:     %d\n", info.GroupCount)
	fmt.Printf("Blocks:           %d total, %d free\n", info.TotalBlocks, info.FreeBlocks)
	fmt.Printf("Inodes:           %d total, %d free\n", info.TotalInodes, info.FreeInodes)
	fmt.Printf("Blocks/group:     %d\n", info.BlocksPerGroup)
	fmt.Printf("Inodes/group:     %d\n", info.InodesPerGroup)
	return nil
}

// exportSnapshot saves a (possibly compressed) snapshot of imagePath.
func exportSnapshot(imagePath, snapshotPath string, codec ext2.SnapshotCodec) error {
	fsys, _, err := openImage(imagePath)
	if err != nil {
		return err
	}

	out, err := os.Create(snapshotPath)
	if err != nil {
		return fmt.Errorf("creating snapshot %q: %w", snapshotPath, err)
	}
	defer out.Close()

	if err := ext2.SaveSnapshot(fsys, out, codec); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// importSnapshot restores imagePath from a snapshot produced by export.
func importSnapshot(snapshotPath, imagePath string) error {
	in, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("opening snapshot %q: %w", snapshotPath, err)
	}
	defer in.Close()

	buf, _, err := ext2.LoadSnapshot(in)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}

	if err := os.WriteFile(imagePath, buf, 0644); err != nil {
		return fmt.Errorf("writing image %q: %w", imagePath, err)
	}
	return nil
}
