//go:build zstd

package ext2

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

func init() {
	snapshotCodecs[CodecZstd] = struct {
		compress   func(io.Writer) (io.WriteCloser, error)
		decompress func(io.Reader) (io.Reader, error)
	}{
		compress: func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w)
		},
		decompress: func(r io.Reader) (io.Reader, error) {
			dec, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return dec.IOReadCloser(), nil
		},
	}
}
