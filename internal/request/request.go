package request

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/scott-ainsworth/go-ascii"

	"github.com/xaitan80/iopnet/internal/headers"
	"github.com/xaitan80/iopnet/internal/wire"
)

var (
	ErrMalformedLine     = errors.New("invalid request line: want 3 parts")
	ErrUnsupportedMethod = errors.New("unsupported method")
	ErrInvalidTarget     = errors.New("invalid request target")
	ErrInvalidVersion    = errors.New("invalid http version")
)

// Method is one of the request methods the device speaks.
type Method int

const (
	GET Method = iota
	HEAD
	POST
	PUT
	PATCH
	DELETE
	CONNECT
	OPTIONS
)

var methodNames = [...]string{
	GET:     "GET",
	HEAD:    "HEAD",
	POST:    "POST",
	PUT:     "PUT",
	PATCH:   "PATCH",
	DELETE:  "DELETE",
	CONNECT: "CONNECT",
	OPTIONS: "OPTIONS",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return "UNKNOWN"
	}
	return methodNames[m]
}

// ParseMethod maps an exact method token to a Method.
func ParseMethod(s string) (Method, bool) {
	for i, name := range methodNames {
		if name == s {
			return Method(i), true
		}
	}
	return 0, false
}

// ServerMethods are the only methods the local configuration server accepts.
var ServerMethods = []Method{GET, POST, OPTIONS}

type Request struct {
	RequestLine RequestLine
	Headers     headers.Headers
	Body        []byte
}

type RequestLine struct {
	HttpVersion   string
	RequestTarget string
	Method        Method
}

// Path is the request target without its query string.
func (rl RequestLine) Path() string {
	if i := strings.IndexByte(rl.RequestTarget, '?'); i >= 0 {
		return rl.RequestTarget[:i]
	}
	return rl.RequestTarget
}

// Query is the raw query string of the request target, if any.
func (rl RequestLine) Query() string {
	if i := strings.IndexByte(rl.RequestTarget, '?'); i >= 0 {
		return rl.RequestTarget[i+1:]
	}
	return ""
}

// Options bound how a request is read.
type Options struct {
	// BufferSize is the capacity of the line buffer. Default 1 KiB.
	BufferSize int
	// MaxBody bounds the payload; zero means unbounded.
	MaxBody int
	// Methods restricts the accepted methods. Default ServerMethods.
	Methods []Method
	Logger  zerolog.Logger
}

const DefaultBufferSize = 1024

func (o Options) withDefaults() Options {
	if o.BufferSize < 1 {
		o.BufferSize = DefaultBufferSize
	}
	if o.Methods == nil {
		o.Methods = ServerMethods
	}
	return o
}

// RequestFromReader reads exactly one request from reader. The body is
// delimited by Content-Length; without it the request has no body.
func RequestFromReader(reader io.Reader, opts Options) (*Request, error) {
	opts = opts.withDefaults()
	r := &Request{Headers: headers.NewHeaders()}
	p := wire.NewParser(opts.BufferSize, &builder{req: r, methods: opts.Methods}, opts.Logger)
	p.SetBodyMode(wire.LengthOnly)
	p.SetMaxBody(opts.MaxBody)
	if err := p.Run(reader); err != nil {
		return nil, err
	}
	r.Body = p.Body()
	return r, nil
}

// builder feeds parser callbacks into a Request.
type builder struct {
	req     *Request
	methods []Method
}

func (b *builder) StartLine(line []byte) error {
	rl, err := parseRequestLine(line, b.methods)
	if err != nil {
		return err
	}
	b.req.RequestLine = rl
	return nil
}

func (b *builder) Header(name, value string) error {
	if err := headers.CheckValue(value); err != nil {
		return err
	}
	b.req.Headers.Add(name, value)
	return nil
}

// parseRequestLine parses "METHOD SP TARGET SP HTTP/x.y", restricted to allowed methods.
func parseRequestLine(line []byte, allowed []Method) (RequestLine, error) {
	parts := bytes.Fields(line)
	if len(parts) != 3 {
		return RequestLine{}, ErrMalformedLine
	}

	method, ok := ParseMethod(string(parts[0]))
	if !ok || !permitted(method, allowed) {
		return RequestLine{}, ErrUnsupportedMethod
	}

	target := parts[1]
	if target[0] != '/' && !(len(target) == 1 && target[0] == '*') {
		return RequestLine{}, ErrInvalidTarget
	}
	for _, c := range target {
		if !ascii.IsPrint(c) {
			return RequestLine{}, ErrInvalidTarget
		}
	}

	const prefix = "HTTP/"
	versionPart := string(parts[2])
	if !strings.HasPrefix(versionPart, prefix) {
		return RequestLine{}, ErrInvalidVersion
	}
	ver := strings.TrimPrefix(versionPart, prefix)
	if ver != "1.0" && ver != "1.1" {
		return RequestLine{}, ErrInvalidVersion
	}

	return RequestLine{
		Method:        method,
		RequestTarget: string(target),
		HttpVersion:   ver,
	}, nil
}

func permitted(m Method, allowed []Method) bool {
	for _, a := range allowed {
		if a == m {
			return true
		}
	}
	return false
}
