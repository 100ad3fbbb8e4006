package main

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaitan80/iopnet/internal/config"
	"github.com/xaitan80/iopnet/internal/logging"
	"github.com/xaitan80/iopnet/internal/server"
)

func quiet(string) zerolog.Logger { return logging.Nop() }

func servePortal(t *testing.T, p *portal, raw string) string {
	t.Helper()
	srv := server.New(0, server.Options{Host: "127.0.0.1"})
	require.NoError(t, srv.On("/", p.index))
	require.NoError(t, srv.On("/status", p.status))
	require.NoError(t, srv.On("/connect", p.connect))
	require.NoError(t, srv.OnNotFound(p.redirect))
	require.NoError(t, srv.Begin())
	defer srv.Close()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, srv.HandleClient())
	out, _ := io.ReadAll(conn)
	return string(out)
}

func TestPortalRedirectsUnknownPaths(t *testing.T) {
	out := servePortal(t, &portal{host: "192.168.4.1"}, "GET /generate_204 HTTP/1.0\r\n\r\n")
	assert.Contains(t, out, "HTTP/1.0 302 Found\r\n")
	assert.Contains(t, out, "Location: http://192.168.4.1/\r\n")
}

func TestPortalRedirectUsesHostHeader(t *testing.T) {
	out := servePortal(t, &portal{}, "GET /hotspot-detect.html HTTP/1.0\r\nHost: captive.apple.com\r\n\r\n")
	assert.Contains(t, out, "Location: http://captive.apple.com/\r\n")
}

func TestPortalConnectStoresSSID(t *testing.T) {
	p := &portal{}
	body := "ssid=home%20wifi&password=secret"
	out := servePortal(t, p, "POST /connect HTTP/1.0\r\nContent-Length: 32\r\n\r\n"+body)
	assert.Contains(t, out, "HTTP/1.0 200 OK\r\n")
	assert.Contains(t, out, "Connecting to home wifi")
	assert.Equal(t, "home wifi", p.ssid)
}

func TestPortalConnectWithoutSSID(t *testing.T) {
	p := &portal{}
	out := servePortal(t, p, "POST /connect HTTP/1.0\r\nContent-Length: 8\r\n\r\nssid=&x=")
	assert.Contains(t, out, "HTTP/1.0 302 Found\r\n")
	assert.Contains(t, out, "Location: /\r\n")
	assert.Empty(t, p.ssid)
}

func TestPortalStatus(t *testing.T) {
	out := servePortal(t, &portal{}, "GET /status HTTP/1.0\r\n\r\n")
	assert.Equal(t, "HTTP/1.0 200 OK\r\nContent-Type: text/plain; charset=ISO-8859-5\r\n\r\nready", out)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, run(ctx, cfg, quiet))
}

func TestRunFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = uint16(ln.Addr().(*net.TCPAddr).Port)
	assert.Error(t, run(context.Background(), cfg, quiet))
}
