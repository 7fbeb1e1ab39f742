package gojahttp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/joeycumines/go-ragtime/bridge"
	"github.com/joeycumines/go-ragtime/reactor"
)

const msgOnlyHTTP = `Only HTTP URLs are supported`

const readChunkSize = 4096

// Target is a parsed http:// URL.
type Target struct {
	// Host is the host as written, including any port, used for the Host
	// header.
	Host     string
	Hostname string
	Port     string
	Path     string
}

// ParseURL splits an http:// URL. Only the scheme, host, optional port and
// path (with any query) are recognized.
func ParseURL(url string) (*Target, error) {
	rest, ok := strings.CutPrefix(url, `http://`)
	if !ok {
		return nil, bridge.Errorf(bridge.KindInvalidArguments, msgOnlyHTTP)
	}
	t := &Target{Path: `/`}
	if i := strings.IndexAny(rest, `/?#`); i >= 0 {
		t.Host, t.Path = rest[:i], rest[i:]
		if t.Path[0] != '/' {
			t.Path = `/` + t.Path
		}
		if i := strings.IndexByte(t.Path, '#'); i >= 0 {
			t.Path = t.Path[:i]
		}
	} else {
		t.Host = rest
	}
	if host, port, err := net.SplitHostPort(t.Host); err == nil {
		t.Hostname, t.Port = host, port
	} else {
		t.Hostname, t.Port = strings.Trim(t.Host, `[]`), DefaultPort
	}
	if t.Hostname == `` || t.Port == `` {
		return nil, bridge.Errorf(bridge.KindInvalidArguments, `Invalid URL: %s`, url)
	}
	return t, nil
}

// RequestText is the GET request sent for t.
func (t *Target) RequestText() string {
	return fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", t.Path, t.Host)
}

type stage uint8

const (
	stageResolve stage = iota
	stageConnect
	stageSend
	stageReceive
	stageDone
)

func (s stage) String() string {
	switch s {
	case stageResolve:
		return `resolve`
	case stageConnect:
		return `connect`
	case stageSend:
		return `send`
	case stageReceive:
		return `receive`
	default:
		return `done`
	}
}

// request is a single http.get, advanced one stage per loop completion.
// The handle owns the connection once established.
type request struct {
	module *Module
	handle *bridge.Handle
	target *Target
	conn   net.Conn
	buf    bytes.Buffer
	stage  stage
}

func (m *Module) loop() *reactor.Loop { return m.bridge.Loop() }

func (r *request) start() {
	r.stage = stageResolve
	if err := r.module.loop().ResolveHost(r.target.Hostname, r.resolved); err != nil {
		r.fail(err)
	}
}

func (r *request) resolved(addrs []string, err error) {
	if err == nil && len(addrs) == 0 {
		err = errors.New(`no addresses`)
	}
	if err != nil {
		r.fail(bridge.Wrap(bridge.KindNetwork, fmt.Sprintf("DNS lookup failed for '%s'", r.target.Hostname), err))
		return
	}
	r.stage = stageConnect
	address := net.JoinHostPort(addrs[0], r.target.Port)
	if err := r.module.loop().Dial(`tcp`, address, r.module.dialTimeout, r.connected); err != nil {
		r.fail(err)
	}
}

func (r *request) connected(conn net.Conn, err error) {
	if err != nil {
		r.fail(bridge.Wrap(bridge.KindNetwork, fmt.Sprintf("Cannot connect to '%s'", r.target.Host), err))
		return
	}
	r.conn = conn
	r.handle.Own(conn)
	r.stage = stageSend
	if err := r.module.loop().Write(conn, []byte(r.target.RequestText()), r.sent); err != nil {
		r.fail(err)
	}
}

func (r *request) sent(_ int, err error) {
	if err != nil {
		r.fail(bridge.Wrap(bridge.KindNetwork, `Request write failed`, err))
		return
	}
	r.stage = stageReceive
	r.receive()
}

func (r *request) receive() {
	buf := make([]byte, readChunkSize)
	if err := r.module.loop().Read(r.conn, buf, func(n int, err error) {
		r.received(buf[:n], err)
	}); err != nil {
		r.fail(err)
	}
}

func (r *request) received(chunk []byte, err error) {
	r.buf.Write(chunk)
	switch {
	case r.buf.Len() > r.module.maxResponseSize:
		r.fail(bridge.Errorf(bridge.KindNetwork, `Response exceeds %d bytes`, r.module.maxResponseSize))
	case errors.Is(err, io.EOF), err == nil && len(chunk) == 0:
		r.finish()
	case err != nil:
		r.fail(bridge.Wrap(bridge.KindNetwork, `Response read failed`, err))
	default:
		r.receive()
	}
}

func (r *request) finish() {
	resp, err := ParseResponse(r.buf.Bytes())
	if err != nil {
		r.fail(err)
		return
	}
	r.stage = stageDone
	r.module.bridge.Complete(r.handle, resp, nil)
}

func (r *request) fail(err error) {
	r.module.bridge.Logger().Debug().
		Str(`stage`, r.stage.String()).
		Str(`host`, r.target.Host).
		Err(err).
		Log(`gojahttp: request failed`)
	r.stage = stageDone
	r.module.bridge.Complete(r.handle, nil, err)
}
