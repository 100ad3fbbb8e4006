package channel

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	"github.com/xaitan80/iopnet/internal/neterr"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported scheme")
	ErrInvalidPort       = errors.New("invalid port")
	ErrMissingHost       = errors.New("missing host")
	ErrNoPeerCertificate = errors.New("peer presented no certificate")
	ErrUnverifiedPeer    = errors.New("peer certificate chain not verified")
	ErrEmptyBundle       = errors.New("no certificates in CA bundle")
)

// Endpoint is a URI split into the parts needed to open a channel.
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
	// Target is the request target: path plus query, never empty.
	Target string
}

// TLS reports whether the endpoint needs a TLS session.
func (e Endpoint) TLS() bool { return e.Scheme == "https" }

// Address is host:port, suitable for net.Dial.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseURI splits scheme://host[:port]/path. The port defaults to 80 for
// http and 443 for https.
func ParseURI(uri string) (Endpoint, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Endpoint{}, neterr.New(neterr.BrokenClient, "parse uri", err)
	}
	ep := Endpoint{Scheme: strings.ToLower(u.Scheme), Host: u.Hostname()}
	switch ep.Scheme {
	case "http":
		ep.Port = 80
	case "https":
		ep.Port = 443
	default:
		return Endpoint{}, neterr.New(neterr.BrokenClient, "parse uri", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme))
	}
	if ep.Host == "" {
		return Endpoint{}, neterr.New(neterr.BrokenClient, "parse uri", ErrMissingHost)
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return Endpoint{}, neterr.New(neterr.BrokenClient, "parse uri", fmt.Errorf("%w: %q", ErrInvalidPort, p))
		}
		ep.Port = port
	}
	ep.Target = u.EscapedPath()
	if ep.Target == "" {
		ep.Target = "/"
	}
	if u.RawQuery != "" {
		ep.Target += "?" + u.RawQuery
	}
	return ep, nil
}

// Dial opens a channel to uri. For https the peer must present a
// certificate that verifies against the configured roots and the host name;
// there is no fallback to an unverified session.
func Dial(ctx context.Context, uri string, opts Options) (Channel, Endpoint, error) {
	opts = opts.withDefaults()
	log := opts.Logger

	ep, err := ParseURI(uri)
	if err != nil {
		return nil, Endpoint{}, err
	}

	addrs, err := opts.Resolver.LookupHost(ctx, ep.Host)
	if err != nil || len(addrs) == 0 {
		log.Error().Err(err).Str("host", ep.Host).Msg("unable to resolve host")
		return nil, ep, neterr.New(neterr.BrokenClient, "resolve "+ep.Host, err)
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", net.JoinHostPort(addrs[0], strconv.Itoa(ep.Port)))
	if err != nil {
		log.Error().Err(err).Bool("refused", refused(err)).Str("address", ep.Address()).Msg("unable to connect")
		return nil, ep, neterr.New(neterr.IoError, "connect", err)
	}
	if tc, ok := nc.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	log.Debug().Str("address", nc.RemoteAddr().String()).Bool("tls", ep.TLS()).Msg("began connection")

	if !ep.TLS() {
		return &conn{nc: nc, opts: opts}, ep, nil
	}

	tlsConn, err := handshake(ctx, nc, ep.Host, opts)
	if err != nil {
		nc.Close()
		log.Error().Err(err).Str("host", ep.Host).Msg("tls handshake refused")
		return nil, ep, err
	}
	return &conn{nc: tlsConn, opts: opts}, ep, nil
}

func handshake(ctx context.Context, nc net.Conn, host string, opts Options) (*tls.Conn, error) {
	roots, err := rootPool(opts)
	if err != nil {
		return nil, err
	}
	serverName, err := sniName(host)
	if err != nil {
		return nil, neterr.New(neterr.BrokenClient, "tls server name", err)
	}

	tc := tls.Client(nc, &tls.Config{
		ServerName: serverName,
		RootCAs:    roots,
		MinVersion: tls.VersionTLS12,
	})
	if err := tc.HandshakeContext(ctx); err != nil {
		if verificationFailed(err) {
			return nil, neterr.New(neterr.BrokenServer, "tls verify", err)
		}
		return nil, neterr.New(neterr.IoError, "tls handshake", err)
	}

	state := tc.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		tc.Close()
		return nil, neterr.New(neterr.BrokenServer, "tls verify", ErrNoPeerCertificate)
	}
	if len(state.VerifiedChains) == 0 {
		tc.Close()
		return nil, neterr.New(neterr.BrokenServer, "tls verify", ErrUnverifiedPeer)
	}
	return tc, nil
}

// sniProfile maps names like lookups do but accepts labels outside the
// LDH set, such as plant_01.local.
var sniProfile = idna.New(idna.MapForLookup(), idna.StrictDomainName(false))

// sniName returns the ASCII server name for host. IP literals pass through
// unchanged and crypto/tls leaves them out of SNI.
func sniName(host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}
	return sniProfile.ToASCII(host)
}

func verificationFailed(err error) bool {
	var (
		cve       *tls.CertificateVerificationError
		hostErr   x509.HostnameError
		authErr   x509.UnknownAuthorityError
		invalid   x509.CertificateInvalidError
		systemErr x509.SystemRootsError
	)
	return errors.As(err, &cve) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &authErr) ||
		errors.As(err, &invalid) ||
		errors.As(err, &systemErr)
}

func rootPool(opts Options) (*x509.CertPool, error) {
	if opts.RootCAs != nil {
		return opts.RootCAs, nil
	}
	if opts.CABundle == "" {
		// nil makes crypto/tls use the system roots.
		return nil, nil
	}
	return LoadBundle(opts.CABundle)
}

// LoadBundle reads a PEM file of trusted certificates.
func LoadBundle(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, neterr.New(neterr.BrokenClient, "load ca bundle", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, neterr.New(neterr.BrokenClient, "load ca bundle", fmt.Errorf("%w: %s", ErrEmptyBundle, path))
	}
	return pool, nil
}
