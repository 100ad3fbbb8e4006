// Package channel hides plain TCP sockets and TLS sessions behind one
// blocking send/recv abstraction.
package channel

import (
	"crypto/x509"
	"errors"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/xaitan80/iopnet/internal/neterr"
)

// Channel is an established byte stream. Read is the recv primitive: it
// returns io.EOF once the peer has closed.
type Channel interface {
	io.Reader
	// Send writes all of p within the write timeout. Runtime-polled sockets
	// absorb EAGAIN themselves, so for them the deadline is the only cap;
	// conns that surface temporary errnos are retried every RetryDelay.
	Send(p []byte) error
	// Close tears the stream down: TLS close-notify first, then the socket.
	Close() error
}

const (
	DefaultWriteTimeout = 30 * time.Second
	DefaultRetryDelay   = 50 * time.Millisecond
)

// Options configure dialing and sending.
type Options struct {
	// CABundle is a PEM file of trusted roots for https. Empty means the
	// system pool, unless RootCAs is set.
	CABundle string
	// RootCAs takes precedence over CABundle.
	RootCAs *x509.CertPool
	// WriteTimeout bounds how long Send keeps retrying.
	WriteTimeout time.Duration
	// RetryDelay is the pause between two write attempts.
	RetryDelay time.Duration
	Resolver   *net.Resolver
	Logger     zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.Resolver == nil {
		o.Resolver = net.DefaultResolver
	}
	return o
}

type conn struct {
	nc   net.Conn
	opts Options
}

// FromConn wraps an already established connection, e.g. one returned by
// a listener.
func FromConn(nc net.Conn, opts Options) Channel {
	return &conn{nc: nc, opts: opts.withDefaults()}
}

func (c *conn) Read(p []byte) (int, error) {
	n, err := c.nc.Read(p)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, io.EOF) {
		return n, io.EOF
	}
	if peerClosed(err) {
		return n, neterr.New(neterr.IoError, "recv: connection closed by peer", err)
	}
	return n, neterr.New(neterr.IoError, "recv", err)
}

func (c *conn) Send(p []byte) error {
	deadline := time.Now().Add(c.opts.WriteTimeout)
	if err := c.nc.SetWriteDeadline(deadline); err != nil {
		return neterr.New(neterr.IoError, "send", err)
	}
	attempts := 0
	for len(p) > 0 {
		n, err := c.nc.Write(p)
		p = p[n:]
		if err == nil {
			continue
		}
		attempts++
		if !temporary(err) || time.Now().After(deadline) {
			c.opts.Logger.Error().Err(err).Int("attempts", attempts).Int("pending", len(p)).Msg("send failed")
			if peerClosed(err) {
				return neterr.New(neterr.IoError, "send: connection closed by peer", err)
			}
			return neterr.New(neterr.IoError, "send", err)
		}
		time.Sleep(c.opts.RetryDelay)
	}
	return nil
}

func (c *conn) Close() error {
	if c.nc == nil {
		return nil
	}
	err := c.nc.Close()
	c.nc = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return neterr.New(neterr.IoError, "close", err)
	}
	return nil
}
