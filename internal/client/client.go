// Package client performs blocking HTTP/1.0 exchanges over a raw channel.
package client

import (
	"bytes"
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/xaitan80/iopnet/internal/channel"
	"github.com/xaitan80/iopnet/internal/frame"
	"github.com/xaitan80/iopnet/internal/headers"
	"github.com/xaitan80/iopnet/internal/neterr"
	"github.com/xaitan80/iopnet/internal/netstatus"
	"github.com/xaitan80/iopnet/internal/request"
	"github.com/xaitan80/iopnet/internal/wire"
)

// DefaultBufferSize is the capacity of the response line buffer.
const DefaultBufferSize = 8192

var (
	ErrLinkDown          = errors.New("link is down")
	ErrShortStatusLine   = errors.New("status line too short")
	ErrMissingStatusCode = errors.New("status line has no space after the code")
	ErrInvalidStatusCode = errors.New("status code is not a number")
)

// Link answers whether the device currently has a network link.
type Link interface {
	Connected() bool
}

// Request is what the client sends.
type Request struct {
	Method request.Method
	// Path is the request target. Do fills it from the URI.
	Path string
	// Credential, when non-empty, is sent as "Authorization: Basic <Credential>".
	Credential string
	Headers    []headers.Field
	Body       []byte
}

// Options configure a Client. The zero value is usable.
type Options struct {
	// Collect is the allow-list of response headers kept in frames.
	Collect []string
	// Table classifies status codes. Default netstatus.Default.
	Table netstatus.Table
	// BufferSize bounds the length of one response line. Default 8 KiB.
	BufferSize int
	// MaxBody bounds the response body; zero means unbounded.
	MaxBody int
	// Link is consulted before a socket is opened; nil means always up.
	Link    Link
	Channel channel.Options
	Logger  zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.Table == nil {
		o.Table = netstatus.Default
	}
	if o.BufferSize < 1 {
		o.BufferSize = DefaultBufferSize
	}
	return o
}

// Client carries configuration only; every exchange owns its own buffer.
type Client struct {
	opts  Options
	allow headers.AllowList
	log   zerolog.Logger
}

func New(opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		opts:  opts,
		allow: headers.NewAllowList(opts.Collect...),
		log:   opts.Logger,
	}
}

// Table returns the status table frames are classified with.
func (c *Client) Table() netstatus.Table { return c.opts.Table }

// Do opens a channel to uri, performs one exchange and closes the channel on
// every path. req.Path is replaced by the URI's target.
func (c *Client) Do(ctx context.Context, uri string, req Request) (*frame.Frame, error) {
	if c.opts.Link != nil && !c.opts.Link.Connected() {
		c.log.Warn().Str("uri", uri).Msg("link down, not connecting")
		return nil, neterr.New(neterr.IoError, "connect", ErrLinkDown)
	}
	ch, ep, err := channel.Dial(ctx, uri, c.opts.Channel)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ch.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close channel")
		}
	}()
	req.Path = ep.Target
	return c.Execute(ch, req)
}

// Execute writes req to an established channel and parses the response.
func (c *Client) Execute(ch channel.Channel, req Request) (*frame.Frame, error) {
	if req.Path == "" {
		req.Path = "/"
	}
	c.log.Debug().Stringer("method", req.Method).Str("path", req.Path).Int("body", len(req.Body)).Bool("authenticated", req.Credential != "").Msg("send request")

	if err := ch.Send(encodeHead(req)); err != nil {
		return nil, err
	}
	if len(req.Body) > 0 {
		if err := ch.Send(req.Body); err != nil {
			return nil, err
		}
	}

	col := &collector{allow: c.allow, headers: headers.NewHeaders()}
	p := wire.NewParser(c.opts.BufferSize, col, c.log)
	p.SetMaxBody(c.opts.MaxBody)
	if req.Method == request.HEAD {
		p.SetBodyMode(wire.NoBody)
	}
	if err := p.Run(ch); err != nil {
		c.log.Error().Err(err).Stringer("state", p.State()).Msg("read response")
		return nil, classify(err)
	}

	c.log.Debug().Int("code", col.code).Int("body", len(p.Body())).Int("headers", len(col.headers)).Msg("response complete")
	return frame.New(col.code, c.opts.Table, col.headers, p.Body()), nil
}

// encodeHead renders the request line and headers, blank line included.
func encodeHead(req Request) []byte {
	var b bytes.Buffer
	b.WriteString(req.Method.String())
	b.WriteByte(' ')
	b.WriteString(req.Path)
	b.WriteString(" HTTP/1.0\r\n")
	b.WriteString("Content-Length: ")
	b.WriteString(strconv.Itoa(len(req.Body)))
	b.WriteString("\r\n")
	if req.Credential != "" {
		b.WriteString("Authorization: Basic ")
		b.WriteString(req.Credential)
		b.WriteString("\r\n")
	}
	for _, f := range req.Headers {
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

// classify maps parser failures onto the network taxonomy. Transport errors
// arrive already classified by the channel.
func classify(err error) error {
	if _, ok := neterr.KindOf(err); ok {
		return err
	}
	if errors.Is(err, ErrInvalidStatusCode) {
		return neterr.New(neterr.BrokenServer, "parse response", err)
	}
	return neterr.New(neterr.IoError, "parse response", err)
}
