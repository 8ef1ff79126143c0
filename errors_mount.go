package ext2

import "fmt"

// errInvalidImage wraps a format-validation failure raised while
// mounting or formatting an image, grounded on the teacher's own
// errors.go (sentinel-style package errors usable with errors.Is) —
// distinct from Errno, which is the POSIX syscall-surface error type.
func errInvalidImage(format string, args ...any) error {
	return fmt.Errorf("ext2: invalid image: "+format, args...)
}
