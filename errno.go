package ext2

import (
	"fmt"

	log "github.com/dsoprea/go-logging"
)

// Errno is a recoverable, user-visible error returned from the syscall
// surface (§6/§7 tier 2). Negative Errno values are exactly the return
// codes spec.md's syscall table lists; comparing against the named
// constants below (e.g. `errors.Is(err, ErrNoEnt)`) is the supported
// way to branch on them.
type Errno int

const (
	ErrInval       Errno = -22
	ErrNoEnt       Errno = -2
	ErrBadF        Errno = -9
	ErrNoSpc       Errno = -28
	ErrNotDir      Errno = -20
	ErrIsDir       Errno = -21
	ErrExist       Errno = -17
	ErrNameTooLong Errno = -36
	ErrFBig        Errno = -27
	ErrSPipe       Errno = -29
	ErrOverflow    Errno = -75
)

var errnoNames = map[Errno]string{
	ErrInval:       "EINVAL",
	ErrNoEnt:       "ENOENT",
	ErrBadF:        "EBADF",
	ErrNoSpc:       "ENOSPC",
	ErrNotDir:      "ENOTDIR",
	ErrIsDir:       "EISDIR",
	ErrExist:       "EEXIST",
	ErrNameTooLong: "ENAMETOOLONG",
	ErrFBig:        "EFBIG",
	ErrSPipe:       "ESPIPE",
	ErrOverflow:    "EOVERFLOW",
}

func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return "EUNKNOWN"
}

// Is lets `errors.Is(err, ext2.ErrNoEnt)` work when err has been
// wrapped with fmt.Errorf("...: %w", ErrNoEnt).
func (e Errno) Is(target error) bool {
	o, ok := target.(Errno)
	return ok && o == e
}

// fatal reports media corruption or a broken invariant (§7 tier 1:
// "Fatal (programmer or media corruption)") and aborts the calling
// goroutine. There is no recoverable path past this point by design —
// nothing in the package recovers it (Mkfs and Mount included); a
// caller that needs a clean failure (the tests) recover()s at its own
// boundary, the same shape
// hellin/go-ext4's ParseSuperblock uses around log.PanicIf.
func fatal(format string, args ...any) {
	err := log.Wrap(fmt.Errorf(format, args...))
	log.Panic(err)
}

// fatalIf panics via fatal when err is non-nil, mirroring go-logging's
// own log.PanicIf helper but routed through our format string so the
// invariant that failed is named in the log line.
func fatalIf(err error, format string, args ...any) {
	if err == nil {
		return
	}
	args = append(append([]any{}, args...), err)
	fatal(format+": %s", args...)
}
