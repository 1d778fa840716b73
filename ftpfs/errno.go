// Package ftpfs implements the bazil.org/fuse node/handle contract on top
// of the FTP adapter, directory cache, and handle store: the POSIX
// filesystem surface a kernel mount actually talks to.
package ftpfs

import (
	"errors"
	"os"
	"syscall"

	"bazil.org/fuse"

	"github.com/ftpmount/ftpmount/ftpadapter"
	"github.com/ftpmount/ftpmount/handles"
)

// errnoFor maps any error surfaced by the adapter or handle store to a
// fuse.Errno exactly once, at this callback boundary. Every other package
// works with plain Go errors; only this function knows about POSIX errno.
func errnoFor(err error) error {
	if err == nil {
		return nil
	}

	var adapterErr *ftpadapter.Error
	if errors.As(err, &adapterErr) {
		switch adapterErr.Kind {
		case ftpadapter.NotFound:
			return fuse.ENOENT
		case ftpadapter.Capacity:
			return fuse.Errno(syscall.EMFILE)
		case ftpadapter.BadHandle:
			return fuse.Errno(syscall.EBADF)
		case ftpadapter.LocalIO:
			return localErrno(adapterErr.Err)
		case ftpadapter.Transport, ftpadapter.Protocol:
			return fuse.EIO
		}
		return fuse.EIO
	}

	switch {
	case errors.Is(err, handles.ErrTooManyOpenFiles):
		return fuse.Errno(syscall.EMFILE)
	case errors.Is(err, handles.ErrBadFileDescriptor):
		return fuse.Errno(syscall.EBADF)
	case errors.Is(err, os.ErrNotExist):
		return fuse.ENOENT
	}

	return localErrno(err)
}

// localErrno unwraps a local I/O failure to its raw errno when possible,
// per the spec's "surfaced with the raw local errno" rule.
func localErrno(err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return fuse.Errno(errno)
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		if errors.As(pathErr.Err, &errno) {
			return fuse.Errno(errno)
		}
	}
	return fuse.EIO
}
