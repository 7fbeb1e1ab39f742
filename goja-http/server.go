package gojahttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-ragtime/bridge"
)

// Request is the request line and headers of a request received by a
// server. Bodies are not read.
type Request struct {
	Headers map[string]string
	Method  string
	URL     string
}

// ParseRequest parses a request head.
func ParseRequest(raw []byte) (*Request, error) {
	head, _, _ := bytes.Cut(raw, headEnd)
	lines := strings.Split(string(head), "\r\n")
	fields := strings.Fields(lines[0])
	if len(fields) < 2 {
		return nil, bridge.Errorf(bridge.KindNetwork, `Malformed HTTP request`)
	}
	req := &Request{
		Method:  fields[0],
		URL:     fields[1],
		Headers: make(map[string]string, len(lines)-1),
	}
	for _, line := range lines[1:] {
		if name, value, ok := strings.Cut(line, `:`); ok {
			req.Headers[name] = strings.TrimLeft(value, ` `)
		}
	}
	return req, nil
}

// JSValue implements [bridge.Valuer].
func (r *Request) JSValue(runtime *goja.Runtime) goja.Value {
	headers := runtime.NewObject()
	for name, value := range r.Headers {
		_ = headers.Set(name, value)
	}
	obj := runtime.NewObject()
	_ = obj.Set(`method`, r.Method)
	_ = obj.Set(`url`, r.URL)
	_ = obj.Set(`headers`, headers)
	return obj
}

// FormatResponse renders a complete response. Content-Type defaults to
// text/plain, and Content-Length is always set from body.
func FormatResponse(status int, headers [][2]string, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	contentType := `text/plain`
	for _, h := range headers {
		if strings.EqualFold(h[0], `Content-Type`) {
			contentType = h[1]
		}
	}
	fmt.Fprintf(&b, "Content-Type: %s\r\nContent-Length: %d\r\n", contentType, len(body))
	for _, h := range headers {
		if strings.EqualFold(h[0], `Content-Type`) || strings.EqualFold(h[0], `Content-Length`) {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\r\n", h[0], h[1])
	}
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

// serve reads a request head from conn, then calls handler with the
// request and a response object. The connection is closed after the
// response is written, or on any failure.
func (m *Module) serve(handler goja.Callable, conn net.Conn) {
	var h *bridge.Handle
	h = m.bridge.IssueNative(bridge.OpRead, func(data any, err *bridge.Error) {
		if err != nil {
			m.bridge.Logger().Debug().Err(err).Log(`gojahttp: request read failed`)
			return
		}
		req, perr := ParseRequest(data.([]byte))
		if perr != nil {
			m.bridge.Logger().Debug().Err(perr).Log(`gojahttp: bad request`)
			return
		}
		h.Disown(conn)
		m.bridge.Call(handler, req.JSValue(m.runtime), m.responseObject(conn))
	})
	h.Own(conn)
	_ = m.bridge.Go(h, func(context.Context) (any, error) {
		return readHead(conn, m.requestTimeout, DefaultMaxRequestHead)
	})
}

func readHead(conn net.Conn, timeout time.Duration, limit int) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	var (
		buf   []byte
		chunk = make([]byte, 1024)
	)
	for {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		switch {
		case bytes.Contains(buf, headEnd):
			return buf, nil
		case len(buf) > limit:
			return nil, bridge.Errorf(bridge.KindNetwork, `Request head exceeds %d bytes`, limit)
		case err == io.EOF && len(buf) != 0:
			return buf, nil
		case err != nil:
			return nil, err
		}
	}
}

// responseObject returns the res object for a request on conn. The conn is
// owned by a pending write, which fails with a TimeoutError if end is not
// called within the response timeout.
func (m *Module) responseObject(conn net.Conn) *goja.Object {
	var (
		headers [][2]string
		ended   bool
	)
	h := m.bridge.IssueNative(bridge.OpWrite, func(_ any, err *bridge.Error) {
		if err != nil {
			m.bridge.Logger().Warning().Err(err).Log(`gojahttp: response write failed`)
		}
	})
	h.Own(conn)
	deadline, terr := m.bridge.Loop().ScheduleTimer(m.responseTimeout, func() {
		if ended {
			return
		}
		ended = true
		m.bridge.Complete(h, nil, bridge.Errorf(bridge.KindTimeout, `Response not ended within %s`, m.responseTimeout))
	})
	if terr != nil {
		m.bridge.Complete(h, nil, terr)
	}
	res := m.runtime.NewObject()
	_ = res.Set(`statusCode`, http.StatusOK)
	_ = res.Set(`setHeader`, m.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
		bridge.RequireArgs(m.runtime, call, 2, `res.setHeader`)
		headers = append(headers, [2]string{
			bridge.StringArg(m.runtime, call.Argument(0), `Header name`),
			bridge.StringArg(m.runtime, call.Argument(1), `Header value`),
		})
		return res
	}))
	_ = res.Set(`end`, m.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
		if ended {
			bridge.Throw(m.runtime, bridge.Errorf(bridge.KindInvalidState, bridge.MsgInvalidClientState))
		}
		var body string
		if v := call.Argument(0); !goja.IsUndefined(v) && !goja.IsNull(v) {
			body = bridge.StringArg(m.runtime, v, `Body`)
		}
		status := int(res.Get(`statusCode`).ToInteger())
		if status < 100 || status > 999 {
			status = http.StatusOK
		}
		ended = true
		if terr == nil {
			_ = m.bridge.Loop().CancelTimer(deadline)
		}
		payload := []byte(FormatResponse(status, headers, body))
		_ = m.bridge.Go(h, func(context.Context) (any, error) {
			_, err := conn.Write(payload)
			return nil, err
		})
		return goja.Undefined()
	}))
	return res
}
