// Package server is a single-client HTTP/1.0 server driven by the caller: one
// HandleClient call accepts at most one connection and serves it to the end.
package server

import (
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/xaitan80/iopnet/internal/channel"
	"github.com/xaitan80/iopnet/internal/neterr"
	"github.com/xaitan80/iopnet/internal/request"
	"github.com/xaitan80/iopnet/internal/response"
)

var (
	ErrBusy         = errors.New("server: already handling a request")
	ErrClosed       = errors.New("server: not listening")
	ErrRouterSealed = errors.New("server: routes are fixed once listening")
	ErrRouteExists  = errors.New("server: route already registered")
)

type State int32

const (
	Closed State = iota
	Listening
	Busy
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Listening:
		return "listening"
	case Busy:
		return "busy"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Handler answers one request through c. log is the server's logger scoped to
// the request path.
type Handler func(c *Conn, log zerolog.Logger)

// DefaultAcceptWait is how long HandleClient waits for a pending connection.
const DefaultAcceptWait = 5 * time.Millisecond

type Options struct {
	// Host to bind; empty means every interface.
	Host string
	// BufferSize is the request line buffer. Default 1 KiB.
	BufferSize int
	// MaxBody bounds request payloads; zero means unbounded.
	MaxBody int
	// AcceptWait bounds the accept poll of each tick.
	AcceptWait time.Duration
	Channel    channel.Options
	Logger     zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.BufferSize < 1 {
		o.BufferSize = request.DefaultBufferSize
	}
	if o.AcceptWait <= 0 {
		o.AcceptWait = DefaultAcceptWait
	}
	return o
}

type deadlineListener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

type Server struct {
	port     uint16
	opts     Options
	ln       deadlineListener
	state    atomic.Int32
	routes   map[string]Handler
	notFound Handler
	sealed   bool
	log      zerolog.Logger
}

// New prepares a server for port. Nothing is bound until Begin; port 0 picks
// a free port.
func New(port uint16, opts Options) *Server {
	opts = opts.withDefaults()
	return &Server{
		port:     port,
		opts:     opts,
		routes:   make(map[string]Handler),
		notFound: notFound,
		log:      opts.Logger,
	}
}

func notFound(c *Conn, log zerolog.Logger) {
	if err := c.Send(response.StatusNotFound, "text/plain", []byte("Not Found")); err != nil {
		log.Warn().Err(err).Msg("send not found")
	}
}

// On registers h for an exact path, query string excluded.
func (s *Server) On(path string, h Handler) error {
	if s.sealed {
		return ErrRouterSealed
	}
	if _, ok := s.routes[path]; ok {
		return ErrRouteExists
	}
	s.routes[path] = h
	return nil
}

// OnNotFound replaces the fallback for unregistered paths.
func (s *Server) OnNotFound(h Handler) error {
	if s.sealed {
		return ErrRouterSealed
	}
	s.notFound = h
	return nil
}

// Begin binds and listens. Calling it again rebinds.
func (s *Server) Begin() error {
	if err := s.Close(); err != nil {
		return err
	}
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(int(s.port)))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error().Err(err).Str("addr", addr).Msg("unable to listen")
		return neterr.New(neterr.IoError, "listen", err)
	}
	dl, ok := ln.(deadlineListener)
	if !ok {
		_ = ln.Close()
		return neterr.New(neterr.IoError, "listen", errors.New("listener does not support deadlines"))
	}
	s.ln = dl
	s.sealed = true
	s.state.Store(int32(Listening))
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
	return nil
}

// Close releases the listener. Routes stay sealed.
func (s *Server) Close() error {
	s.state.Store(int32(Closed))
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	s.ln = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return neterr.New(neterr.IoError, "close listener", err)
	}
	return nil
}

// Addr is the bound address, nil before Begin.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) State() State { return State(s.state.Load()) }

// HandleClient serves at most one pending connection and returns. It returns
// nil when nobody was waiting. The connection is closed on every path.
func (s *Server) HandleClient() error {
	if !s.state.CompareAndSwap(int32(Listening), int32(Busy)) {
		if s.State() == Busy {
			return ErrBusy
		}
		return ErrClosed
	}
	defer s.state.CompareAndSwap(int32(Busy), int32(Listening))

	nc, err := s.accept()
	if err != nil || nc == nil {
		return err
	}
	s.log.Debug().Str("remote", nc.RemoteAddr().String()).Msg("accepted connection")

	c := &Conn{ch: channel.FromConn(nc, s.opts.Channel), log: s.log}
	defer c.Reset()

	req, err := request.RequestFromReader(c.ch, request.Options{
		BufferSize: s.opts.BufferSize,
		MaxBody:    s.opts.MaxBody,
		Logger:     s.log,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("dropping request")
		if _, ok := neterr.KindOf(err); ok {
			return err
		}
		return neterr.New(neterr.BrokenClient, "read request", err)
	}
	c.req = req

	path := req.RequestLine.Path()
	h, ok := s.routes[path]
	if !ok {
		s.log.Debug().Str("path", path).Msg("route not found")
		h = s.notFound
	}
	h(c, s.log.With().Str("path", path).Logger())
	return c.err
}

// accept polls the listener for AcceptWait. A timeout is not an error.
func (s *Server) accept() (net.Conn, error) {
	if err := s.ln.SetDeadline(time.Now().Add(s.opts.AcceptWait)); err != nil {
		return nil, neterr.New(neterr.IoError, "accept", err)
	}
	nc, err := s.ln.Accept()
	if err == nil {
		return nc, nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return nil, nil
	}
	s.log.Error().Err(err).Msg("error accepting connection")
	return nil, neterr.New(neterr.IoError, "accept", err)
}
