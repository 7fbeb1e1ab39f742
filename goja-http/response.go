package gojahttp

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-ragtime/bridge"
)

// Response is the result of http.get.
type Response struct {
	Headers    map[string]string
	Body       string
	StatusCode int
}

var headEnd = []byte("\r\n\r\n")

// ParseResponse parses a complete HTTP/1.x response, read until the server
// closed the connection. The head ends at the first blank line, everything
// after it is the body. Header names keep their case, and later duplicates
// replace earlier ones. Chunked bodies are not decoded.
func ParseResponse(raw []byte) (*Response, error) {
	head, body, _ := bytes.Cut(raw, headEnd)
	lines := strings.Split(string(head), "\r\n")

	status := strings.Fields(lines[0])
	if len(status) < 2 || !strings.HasPrefix(status[0], `HTTP/`) {
		return nil, bridge.Errorf(bridge.KindNetwork, `Malformed HTTP response`)
	}
	code, err := strconv.Atoi(status[1])
	if err != nil {
		return nil, bridge.Errorf(bridge.KindNetwork, `Malformed HTTP status code: %s`, status[1])
	}

	r := &Response{
		StatusCode: code,
		Headers:    make(map[string]string, len(lines)-1),
		Body:       string(body),
	}
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, `:`)
		if !ok {
			continue
		}
		r.Headers[name] = strings.TrimLeft(value, ` `)
	}
	return r, nil
}

// JSValue implements [bridge.Valuer].
func (r *Response) JSValue(runtime *goja.Runtime) goja.Value {
	headers := runtime.NewObject()
	for name, value := range r.Headers {
		_ = headers.Set(name, value)
	}
	obj := runtime.NewObject()
	_ = obj.Set(`statusCode`, r.StatusCode)
	_ = obj.Set(`headers`, headers)
	_ = obj.Set(`body`, r.Body)
	return obj
}
