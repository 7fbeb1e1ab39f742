package gojanet

import (
	"context"
	"errors"
	"net"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-ragtime/bridge"
)

// ListenBacklog is the backlog requested by the original runtime. Go
// listeners use the system default.
const ListenBacklog = 10

// Listener accepts TCP connections on a helper goroutine, and hands them to
// a callback on the loop goroutine. While listening, it keeps the loop
// alive. All methods must be called on the loop goroutine.
type Listener struct {
	bridge  *bridge.Bridge
	onConn  func(net.Conn)
	limiter *catrate.Limiter
	ln      net.Listener
	release func()
	closed  bool
	pending bool
}

// NewListener returns a listener that will pass accepted connections to
// onConn, which takes ownership of them.
func NewListener(b *bridge.Bridge, onConn func(net.Conn)) (*Listener, error) {
	if b == nil {
		return nil, errors.New("gojanet: bridge must not be nil")
	}
	if onConn == nil {
		return nil, errors.New("gojanet: connection handler must not be nil")
	}
	return &Listener{bridge: b, onConn: onConn}, nil
}

// LimitAccepts rejects connections from remote hosts that exceed the
// limiter's rates, closing them before they reach the handler. It must be
// called before [Listener.Listen]. A nil limiter accepts everything.
func (l *Listener) LimitAccepts(limiter *catrate.Limiter) {
	l.limiter = limiter
}

// Listen binds address asynchronously, then calls done with the outcome.
// A listener may only listen once.
func (l *Listener) Listen(address string, done func(err *bridge.Error)) {
	if l.closed || l.pending || l.ln != nil {
		done(bridge.Errorf(bridge.KindInvalidState, bridge.MsgInvalidServerState))
		return
	}
	l.pending = true
	h := l.bridge.IssueNative(bridge.OpListen, func(data any, err *bridge.Error) {
		l.pending = false
		if err != nil {
			done(err)
			return
		}
		ln := data.(net.Listener)
		if l.closed {
			_ = ln.Close()
			return
		}
		l.ln = ln
		l.release = l.bridge.Loop().Hold()
		go l.accept(ln, l.limiter)
		l.bridge.Logger().Debug().Str(`addr`, ln.Addr().String()).Log(`gojanet: listening`)
		done(nil)
	})
	_ = l.bridge.Go(h, func(ctx context.Context) (any, error) {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, `tcp`, address)
		if err != nil {
			return nil, bridge.Wrap(bridge.KindNetwork, `Cannot listen on `+address, err)
		}
		return ln, nil
	})
}

// Addr returns the bound address, or nil if not listening.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Close stops accepting connections. Connections already accepted are
// unaffected. Returns false if already closed.
func (l *Listener) Close() bool {
	if l.closed {
		return false
	}
	l.closed = true
	if l.ln != nil {
		if err := l.ln.Close(); err != nil {
			l.bridge.Logger().Warning().Err(err).Log(`gojanet: close failed`)
		}
		l.release()
	}
	return true
}

func (l *Listener) accept(ln net.Listener, limiter *catrate.Limiter) {
	loop := l.bridge.Loop()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			_ = loop.Submit(func() {
				if !l.closed {
					l.bridge.ReportUncaught(bridge.Wrap(bridge.KindNetwork, `Accept failed`, err))
					l.Close()
				}
			})
			return
		}
		if !allowed(limiter, conn.RemoteAddr()) {
			l.bridge.Logger().Debug().
				Str(`remote`, conn.RemoteAddr().String()).
				Limit().
				Log(`gojanet: connection rate exceeded`)
			_ = conn.Close()
			continue
		}
		if err := loop.Submit(func() { l.dispatch(conn) }); err != nil {
			_ = conn.Close()
			return
		}
	}
}

func (l *Listener) dispatch(conn net.Conn) {
	if l.closed {
		_ = conn.Close()
		return
	}
	l.onConn(conn)
}

// allowed registers an accept against the remote host of addr.
func allowed(limiter *catrate.Limiter, addr net.Addr) bool {
	if limiter == nil {
		return true
	}
	host := addr.String()
	if tcp, ok := addr.(*net.TCPAddr); ok {
		host = tcp.IP.String()
	}
	_, ok := limiter.Allow(host)
	return ok
}
