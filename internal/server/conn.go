package server

import (
	"bytes"
	"errors"

	"github.com/rs/zerolog"

	"github.com/xaitan80/iopnet/internal/channel"
	"github.com/xaitan80/iopnet/internal/headers"
	"github.com/xaitan80/iopnet/internal/request"
	"github.com/xaitan80/iopnet/internal/response"
)

// ErrNoClient is returned when writing to a connection that was reset.
var ErrNoClient = errors.New("server: no active client")

// Conn is the request being served and the writer for its answer.
type Conn struct {
	ch  channel.Channel
	req *request.Request

	head          []headers.Field
	contentLength int
	hasLength     bool

	log zerolog.Logger
	err error
}

func (c *Conn) Method() request.Method {
	if c.req == nil {
		return request.GET
	}
	return c.req.RequestLine.Method
}

// Path is the request target without its query string.
func (c *Conn) Path() string {
	if c.req == nil {
		return ""
	}
	return c.req.RequestLine.Path()
}

func (c *Conn) Header(name string) (string, bool) {
	if c.req == nil {
		return "", false
	}
	return c.req.Headers.Lookup(name)
}

func (c *Conn) Body() []byte {
	if c.req == nil {
		return nil
	}
	return c.req.Body
}

// Arg finds name in the form-encoded body, then in the query string, and
// percent-decodes it. A malformed escape yields no value.
func (c *Conn) Arg(name string) (string, bool) {
	if c.req == nil {
		return "", false
	}
	if v, ok := lookupArg(string(c.req.Body), name); ok {
		return v, true
	}
	if v, ok := lookupArg(c.req.RequestLine.Query(), name); ok {
		return v, true
	}
	c.log.Debug().Str("arg", name).Msg("no value")
	return "", false
}

// SendHeader queues a header for the next Send.
func (c *Conn) SendHeader(name, value string) {
	c.head = append(c.head, headers.Field{Name: name, Value: value})
}

// SetContentLength makes the next Send declare n bytes, which may be more
// than its body when the rest follows through SendData.
func (c *Conn) SetContentLength(n int) {
	c.contentLength = n
	c.hasLength = true
}

// Send writes the status line, the content type, queued headers, the content
// length if set, and body. Codes other than 200, 302 and 404 panic.
func (c *Conn) Send(code response.StatusCode, contentType string, body []byte) error {
	var b bytes.Buffer
	_ = response.WriteStatusLine(&b, code)
	_ = response.WriteContentType(&b, contentType)
	_ = response.WriteHeaders(&b, c.head)
	if c.hasLength {
		_ = response.WriteContentLength(&b, c.contentLength)
	}
	_ = response.EndHead(&b)
	b.Write(body)

	c.log.Debug().Int("code", int(code)).Int("body", len(body)).Msg("send response")
	return c.write(b.Bytes())
}

// SendData writes more body bytes after Send.
func (c *Conn) SendData(p []byte) error {
	c.log.Debug().Int("length", len(p)).Msg("send content")
	return c.write(p)
}

func (c *Conn) write(p []byte) error {
	if c.ch == nil {
		return ErrNoClient
	}
	if err := c.ch.Send(p); err != nil {
		if c.err == nil {
			c.err = err
		}
		return err
	}
	return nil
}

// Reset drops queued headers and the content length and closes the client.
func (c *Conn) Reset() {
	c.head = nil
	c.contentLength = 0
	c.hasLength = false
	if c.req != nil {
		c.req.Body = nil
	}
	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close client")
		}
		c.ch = nil
	}
}
