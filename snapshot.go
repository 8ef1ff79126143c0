package ext2

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// SnapshotCodec selects how SaveSnapshot/LoadSnapshot compress the raw
// image bytes (§4.11). CodecNone and CodecGzip are always built in
// (compress/gzip is standard library); xz/zstd are wired in through
// build-tag-gated files (snapshot_xz.go, snapshot_zstd.go) so a binary
// built without those tags doesn't pull in the compression libraries
// at all.
type SnapshotCodec byte

const (
	CodecNone SnapshotCodec = iota
	CodecXZ
	CodecZstd
	CodecGzip
)

const snapshotMagic = "E2SN"

// snapshotCodecs is populated by snapshot_xz.go/snapshot_zstd.go's
// init() when built with the matching tag; CodecNone and CodecGzip
// are always present.
var snapshotCodecs = map[SnapshotCodec]struct {
	compress   func(io.Writer) (io.WriteCloser, error)
	decompress func(io.Reader) (io.Reader, error)
}{
	CodecNone: {
		compress:   func(w io.Writer) (io.WriteCloser, error) { return nopWriteCloser{w}, nil },
		decompress: func(r io.Reader) (io.Reader, error) { return r, nil },
	},
	CodecGzip: {
		compress: func(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriter(w), nil },
		decompress: func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		},
	},
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// SaveSnapshot writes fs's raw backing image to w, framed by a 14-byte
// header: 4-byte magic "E2SN", 1-byte codec, 1-byte reserved, 8-byte
// little-endian uncompressed length — then the (optionally
// compressed) image bytes (§4.11).
func SaveSnapshot(fs *FileSystem, w io.Writer, codec SnapshotCodec) error {
	c, ok := snapshotCodecs[codec]
	if !ok {
		return fmt.Errorf("ext2: snapshot codec %d not built into this binary", codec)
	}

	header := make([]byte, 14)
	copy(header[0:4], snapshotMagic)
	header[4] = byte(codec)
	binary.LittleEndian.PutUint64(header[6:14], uint64(len(fs.im.buf)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("ext2: writing snapshot header: %w", err)
	}

	cw, err := c.compress(w)
	if err != nil {
		return fmt.Errorf("ext2: opening %v compressor: %w", codec, err)
	}
	if _, err := cw.Write(fs.im.buf); err != nil {
		return fmt.Errorf("ext2: writing snapshot body: %w", err)
	}
	return cw.Close()
}

// LoadSnapshot reads a snapshot produced by SaveSnapshot back into a
// raw image byte slice, along with the codec it was written with.
func LoadSnapshot(r io.Reader) ([]byte, SnapshotCodec, error) {
	header := make([]byte, 14)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, 0, fmt.Errorf("ext2: reading snapshot header: %w", err)
	}
	if string(header[0:4]) != snapshotMagic {
		return nil, 0, fmt.Errorf("ext2: bad snapshot magic %q", header[0:4])
	}
	codec := SnapshotCodec(header[4])
	length := binary.LittleEndian.Uint64(header[6:14])

	c, ok := snapshotCodecs[codec]
	if !ok {
		return nil, 0, fmt.Errorf("ext2: snapshot codec %d not built into this binary", codec)
	}
	dr, err := c.decompress(r)
	if err != nil {
		return nil, 0, fmt.Errorf("ext2: opening %v decompressor: %w", codec, err)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(dr, buf); err != nil {
		return nil, 0, fmt.Errorf("ext2: reading snapshot body: %w", err)
	}
	return buf, codec, nil
}

func (c SnapshotCodec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecXZ:
		return "xz"
	case CodecZstd:
		return "zstd"
	case CodecGzip:
		return "gzip"
	default:
		return "unknown"
	}
}
