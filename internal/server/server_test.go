package server

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaitan80/iopnet/internal/client"
	"github.com/xaitan80/iopnet/internal/frame"
	"github.com/xaitan80/iopnet/internal/headers"
	"github.com/xaitan80/iopnet/internal/neterr"
	"github.com/xaitan80/iopnet/internal/netstatus"
	"github.com/xaitan80/iopnet/internal/request"
	"github.com/xaitan80/iopnet/internal/response"
	"github.com/xaitan80/iopnet/internal/wire"
)

func startServer(t *testing.T, routes map[string]Handler) *Server {
	t.Helper()
	s := New(0, Options{Host: "127.0.0.1"})
	for path, h := range routes {
		require.NoError(t, s.On(path, h))
	}
	require.NoError(t, s.Begin())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// exchange writes raw to the server, runs one tick and returns what came back.
func exchange(t *testing.T, s *Server, raw string) (string, error) {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)

	herr := s.HandleClient()
	out, _ := io.ReadAll(conn)
	return string(out), herr
}

func ready(c *Conn, log zerolog.Logger) {
	_ = c.Send(response.StatusOK, "text/plain", []byte("ready"))
}

func TestHandleClientWithoutPendingConnection(t *testing.T) {
	s := startServer(t, nil)
	assert.NoError(t, s.HandleClient())
	assert.Equal(t, Listening, s.State())
}

func TestHandleClientBeforeBegin(t *testing.T) {
	s := New(0, Options{})
	assert.ErrorIs(t, s.HandleClient(), ErrClosed)
	assert.Equal(t, Closed, s.State())
	assert.Nil(t, s.Addr())
}

func TestStatusRoute(t *testing.T) {
	s := startServer(t, map[string]Handler{"/status": ready})
	out, err := exchange(t, s, "GET /status HTTP/1.0\r\nHost: device\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.0 200 OK\r\nContent-Type: text/plain; charset=ISO-8859-5\r\n\r\nready", out)
	assert.Equal(t, Listening, s.State())
}

func TestRouteIgnoresQuery(t *testing.T) {
	s := startServer(t, map[string]Handler{"/status": ready})
	out, err := exchange(t, s, "GET /status?verbose=1 HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	assert.Contains(t, out, "ready")
}

func TestNotFoundFallback(t *testing.T) {
	s := startServer(t, map[string]Handler{"/status": ready})
	out, err := exchange(t, s, "GET /missing HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.0 404 Not Found\r\nContent-Type: text/plain; charset=ISO-8859-5\r\n\r\nNot Found", out)
}

func TestCustomNotFoundRedirects(t *testing.T) {
	s := New(0, Options{Host: "127.0.0.1"})
	require.NoError(t, s.OnNotFound(func(c *Conn, log zerolog.Logger) {
		c.SendHeader("Location", "http://192.168.4.1/")
		_ = c.Send(response.StatusFound, "text/html", nil)
	}))
	require.NoError(t, s.Begin())
	defer s.Close()

	out, err := exchange(t, s, "GET /generate_204 HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.0 302 Found\r\n"+
		"Content-Type: text/html; charset=ISO-8859-5\r\n"+
		"Location: http://192.168.4.1/\r\n"+
		"\r\n", out)
}

func TestRouterSealedAfterBegin(t *testing.T) {
	s := startServer(t, map[string]Handler{"/": ready})
	assert.ErrorIs(t, s.On("/late", ready), ErrRouterSealed)
	assert.ErrorIs(t, s.OnNotFound(ready), ErrRouterSealed)
}

func TestDuplicateRoute(t *testing.T) {
	s := New(0, Options{})
	require.NoError(t, s.On("/", ready))
	assert.ErrorIs(t, s.On("/", ready), ErrRouteExists)
}

func TestBusyWhileServing(t *testing.T) {
	var s *Server
	var nested error
	var during State
	s = startServer(t, map[string]Handler{"/": func(c *Conn, log zerolog.Logger) {
		during = s.State()
		nested = s.HandleClient()
		_ = c.Send(response.StatusOK, "text/plain", nil)
	}})

	_, err := exchange(t, s, "GET / HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, Busy, during)
	assert.ErrorIs(t, nested, ErrBusy)
	assert.Equal(t, Listening, s.State())
}

func TestFormArgs(t *testing.T) {
	args := map[string]string{}
	var method request.Method
	s := startServer(t, map[string]Handler{"/connect": func(c *Conn, log zerolog.Logger) {
		method = c.Method()
		for _, name := range []string{"ssid", "password", "mode", "missing"} {
			if v, ok := c.Arg(name); ok {
				args[name] = v
			}
		}
		_ = c.Send(response.StatusOK, "text/plain", nil)
	}})

	body := "ssid=my%20net&password=p%26ss+word"
	_, err := exchange(t, s, "POST /connect?mode=ap HTTP/1.0\r\nContent-Length: 34\r\n\r\n"+body)
	require.NoError(t, err)
	assert.Equal(t, request.POST, method)
	assert.Equal(t, map[string]string{"ssid": "my net", "password": "p&ss+word", "mode": "ap"}, args)
}

func TestContentLengthAndSendData(t *testing.T) {
	var afterReset error
	s := startServer(t, map[string]Handler{"/stream": func(c *Conn, log zerolog.Logger) {
		c.SetContentLength(10)
		_ = c.Send(response.StatusOK, "application/octet-stream", []byte("hello"))
		_ = c.SendData([]byte("world"))
		c.Reset()
		afterReset = c.SendData([]byte("!"))
	}})

	out, err := exchange(t, s, "GET /stream HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.0 200 OK\r\n"+
		"Content-Type: application/octet-stream; charset=ISO-8859-5\r\n"+
		"Content-Length: 10\r\n"+
		"\r\n"+
		"helloworld", out)
	assert.ErrorIs(t, afterReset, ErrNoClient)
}

func TestMalformedRequestIsDropped(t *testing.T) {
	called := false
	s := startServer(t, map[string]Handler{"/pot": func(c *Conn, log zerolog.Logger) { called = true }})

	out, err := exchange(t, s, "BREW /pot HTTP/1.0\r\n\r\n")
	assert.ErrorIs(t, err, request.ErrUnsupportedMethod)
	kind, ok := neterr.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, neterr.BrokenClient, kind)
	assert.Empty(t, out)
	assert.False(t, called)
	assert.Equal(t, Listening, s.State())
}

func TestLineBeyondBufferIsDropped(t *testing.T) {
	called := false
	s := startServer(t, map[string]Handler{"/": func(c *Conn, log zerolog.Logger) { called = true }})

	for name, raw := range map[string]string{
		"request line": "GET /" + strings.Repeat("a", 2*request.DefaultBufferSize) + " HTTP/1.0\r\n\r\n",
		"header line":  "GET / HTTP/1.0\r\nCookie: " + strings.Repeat("b", 2*request.DefaultBufferSize) + "\r\n\r\n",
	} {
		out, err := exchange(t, s, raw)
		assert.ErrorIs(t, err, wire.ErrLineTooLong, name)
		kind, _ := neterr.KindOf(err)
		assert.Equal(t, neterr.BrokenClient, kind, name)
		assert.Empty(t, out, name)
		assert.Equal(t, Listening, s.State(), name)
	}
	assert.False(t, called)

	out, err := exchange(t, s, "GET /?q="+strings.Repeat("c", 900)+" HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.True(t, called)
}

func TestSilentHandlerSendsNothing(t *testing.T) {
	s := startServer(t, map[string]Handler{"/quiet": func(c *Conn, log zerolog.Logger) {}})
	out, err := exchange(t, s, "GET /quiet HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPeerClosingMidHead(t *testing.T) {
	s := startServer(t, map[string]Handler{"/": ready})
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("GET / HTTP/1.0\r\nHost: dev"))
	require.NoError(t, err)
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = conn.Close()
	}()

	err = s.HandleClient()
	assert.Error(t, err)
	assert.Equal(t, Listening, s.State())
}

func TestUnknownCodePanics(t *testing.T) {
	assert.PanicsWithValue(t, "response: http code not known: 500", func() {
		_ = (&Conn{}).Send(500, "text/plain", nil)
	})
}

func TestClientServerRoundTrip(t *testing.T) {
	type seen struct {
		method  request.Method
		path    string
		version string
		body    string
	}
	got := make(chan seen, 1)
	s := startServer(t, map[string]Handler{
		"/status": ready,
		"/v1/event": func(c *Conn, log zerolog.Logger) {
			v, _ := c.Header("version")
			got <- seen{method: c.Method(), path: c.Path(), version: v, body: string(c.Body())}
			_ = c.Send(response.StatusOK, "application/json", []byte(`{"ok":true}`))
		},
	})
	base := "http://" + s.Addr().String()
	cl := client.New(client.Options{})

	f := drive(t, s, func() (*frame.Frame, error) {
		return cl.Do(context.Background(), base+"/status", client.Request{Method: request.GET})
	})
	assert.True(t, f.Is(netstatus.Ok))
	assert.Equal(t, "ready", string(f.Body()))

	f = drive(t, s, func() (*frame.Frame, error) {
		return cl.Do(context.Background(), base+"/v1/event", client.Request{
			Method:  request.POST,
			Headers: []headers.Field{{Name: "VERSION", Value: "abc"}},
			Body:    []byte(`{"temp":21}`),
		})
	})
	assert.Equal(t, `{"ok":true}`, string(f.Body()))
	assert.Equal(t, seen{method: request.POST, path: "/v1/event", version: "abc", body: `{"temp":21}`}, <-got)
}

// drive runs call in the background and ticks the server until it returns.
func drive(t *testing.T, s *Server, call func() (*frame.Frame, error)) *frame.Frame {
	t.Helper()
	type result struct {
		f   *frame.Frame
		err error
	}
	done := make(chan result, 1)
	go func() {
		f, err := call()
		done <- result{f, err}
	}()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case r := <-done:
			require.NoError(t, r.err)
			return r.f
		case <-timeout:
			t.Fatal("client did not finish")
		default:
			require.NoError(t, s.HandleClient())
		}
	}
}
