package gojanet

import (
	"context"
	"io"
	"net"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/joeycumines/go-ragtime/bridge"
	gojastreams "github.com/joeycumines/go-ragtime/goja-streams"
	"github.com/joeycumines/go-ragtime/streams"
)

// Socket is an accepted connection, split into a readable and a writable
// half. The connection is closed once both halves have closed. A socket
// that nothing reads from closes its readable half when the writable half
// closes.
type Socket struct {
	conn     net.Conn
	untrack  func() bool
	id       string
	readable *streams.Readable
	writable *streams.Writable
	onClose  []func()
	open     int
}

type closeReader interface{ CloseRead() error }

type closeWriter interface{ CloseWrite() error }

// readHalf shuts down the read side on close, where supported.
type readHalf struct{ net.Conn }

func (h readHalf) Close() error {
	if c, ok := h.Conn.(closeReader); ok {
		return c.CloseRead()
	}
	return nil
}

// writeHalf shuts down the write side on close, sending EOF to the peer.
type writeHalf struct{ net.Conn }

func (h writeHalf) Close() error {
	if c, ok := h.Conn.(closeWriter); ok {
		return c.CloseWrite()
	}
	return nil
}

// NewSocket takes ownership of conn. On error, conn is closed.
func NewSocket(b *bridge.Bridge, conn net.Conn, opts ...streams.Option) (*Socket, error) {
	s := &Socket{conn: conn, id: uuid.NewString(), open: 2}
	var err error
	s.readable, err = streams.NewReadable(b, func(context.Context) (io.ReadCloser, error) {
		return readHalf{conn}, nil
	}, opts...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.writable, err = streams.NewWritable(b, func(context.Context) (io.WriteCloser, error) {
		return writeHalf{conn}, nil
	}, opts...)
	if err != nil {
		s.readable.Destroy()
		_ = conn.Close()
		return nil, err
	}
	s.untrack = b.Track(conn)
	s.readable.OnClose(s.halfClosed)
	s.writable.OnClose(func() {
		if !s.readable.Consumed() {
			s.readable.Destroy()
		}
		s.halfClosed()
	})
	return s, nil
}

// ID is a random identifier, unique per socket.
func (s *Socket) ID() string { return s.id }

// Readable returns the receiving half.
func (s *Socket) Readable() *streams.Readable { return s.readable }

// Writable returns the sending half.
func (s *Socket) Writable() *streams.Writable { return s.writable }

// OnClose registers a listener called after the connection is closed.
func (s *Socket) OnClose(fn func()) { s.onClose = append(s.onClose, fn) }

// Destroy closes both halves immediately.
func (s *Socket) Destroy() {
	s.readable.Destroy()
	s.writable.Destroy()
}

func (s *Socket) halfClosed() {
	s.open--
	if s.open != 0 {
		return
	}
	if s.untrack() {
		_ = s.conn.Close()
	}
	for _, fn := range s.onClose {
		fn()
	}
}

// object builds the script representation of s.
func (s *Socket) object(b *bridge.Bridge, sm *gojastreams.Module) *goja.Object {
	obj := sm.Object(s.readable, s.writable, gojastreams.Listeners{
		`close`: func(fn goja.Callable) {
			s.OnClose(func() { b.Call(fn) })
		},
	})
	_ = obj.Set(`id`, s.id)
	if addr := s.conn.RemoteAddr(); addr != nil {
		_ = obj.Set(`remoteAddress`, addr.String())
	}
	return obj
}
