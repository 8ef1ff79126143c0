//go:build xz

package ext2

import (
	"io"

	"github.com/ulikunitz/xz"
)

func init() {
	snapshotCodecs[CodecXZ] = struct {
		compress   func(io.Writer) (io.WriteCloser, error)
		decompress func(io.Reader) (io.Reader, error)
	}{
		compress: func(w io.Writer) (io.WriteCloser, error) {
			return xz.NewWriter(w)
		},
		decompress: func(r io.Reader) (io.Reader, error) {
			return xz.NewReader(r)
		},
	}
}
