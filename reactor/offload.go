package reactor

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// Await runs work on a new goroutine, then runs the Task it returns on the
// loop goroutine. The loop is kept alive until the completion has run.
//
// The context passed to work is canceled when the loop terminates. If the
// loop terminates before the completion can be queued, the completion is
// discarded, and it is the caller's responsibility to release any resources
// it would have released.
func (l *Loop) Await(work func(ctx context.Context) Task) error {
	l.mu.Lock()
	if s := l.state.Load(); s == StateTerminating || s == StateTerminated {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.refs.Add(1)
	l.offloaded.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.offloaded.Done()

		var completion Task
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.panics.Add(1)
					err := fmt.Errorf("reactor: offloaded work panicked: %v", r)
					l.logger.Err().Err(err).Log(`reactor: offloaded work panicked`)
					completion = nil
				}
			}()
			completion = work(l.ctx)
		}()

		if err := l.Submit(func() {
			defer l.release()
			if completion != nil {
				completion()
			}
		}); err != nil {
			l.release()
			l.logger.Debug().Log(`reactor: completion dropped, loop terminated`)
		}
	}()

	return nil
}

func (l *Loop) release() {
	l.refs.Add(-1)
	l.signal()
}

// Read issues a single read of up to len(buf) bytes from r. The callback runs
// on the loop goroutine with the result. An [io.EOF] with n == 0 indicates the
// end of the source.
func (l *Loop) Read(r io.Reader, buf []byte, fn func(n int, err error)) error {
	return l.Await(func(context.Context) Task {
		n, err := r.Read(buf)
		return func() { fn(n, err) }
	})
}

// Write writes all of buf to w, calling fn on the loop goroutine once done.
func (l *Loop) Write(w io.Writer, buf []byte, fn func(n int, err error)) error {
	return l.Await(func(context.Context) Task {
		n, err := w.Write(buf)
		if err == nil && n < len(buf) {
			err = io.ErrShortWrite
		}
		return func() { fn(n, err) }
	})
}

// ResolveHost looks up the addresses of host, calling fn on the loop
// goroutine with the result.
func (l *Loop) ResolveHost(host string, fn func(addrs []string, err error)) error {
	return l.Await(func(ctx context.Context) Task {
		addrs, err := net.DefaultResolver.LookupHost(ctx, host)
		return func() { fn(addrs, err) }
	})
}

// Dial connects to address, calling fn on the loop goroutine with the
// connection. A timeout of zero means no timeout.
func (l *Loop) Dial(network, address string, timeout time.Duration, fn func(conn net.Conn, err error)) error {
	return l.Await(func(ctx context.Context) Task {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, network, address)
		return func() { fn(conn, err) }
	})
}
