package bridge

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
)

// Classify maps err to a Kind, using fallback when no specific kind can be
// recognized. Nil maps to KindNone.
func Classify(err error, fallback Kind) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if kind, ok := classifyErrno(err); ok {
		return kind
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return KindFileNotFound
	case errors.Is(err, fs.ErrPermission):
		return KindPermission
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return fallback
}
