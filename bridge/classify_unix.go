//go:build unix

package bridge

import (
	"errors"

	"golang.org/x/sys/unix"
)

func classifyErrno(err error) (Kind, bool) {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return KindNone, false
	}
	switch errno {
	case unix.ENOENT, unix.ENOTDIR:
		return KindFileNotFound, true
	case unix.EACCES, unix.EPERM, unix.EROFS:
		return KindPermission, true
	case unix.ENOMEM, unix.ENOBUFS:
		return KindMemory, true
	case unix.ETIMEDOUT:
		return KindTimeout, true
	case unix.ECONNREFUSED, unix.ECONNRESET, unix.ECONNABORTED, unix.EPIPE,
		unix.EHOSTUNREACH, unix.ENETUNREACH, unix.EADDRINUSE, unix.EADDRNOTAVAIL:
		return KindNetwork, true
	case unix.EIO, unix.EISDIR, unix.ENOSPC, unix.EFBIG, unix.EBADF:
		return KindFileIO, true
	default:
		return KindNone, false
	}
}
