// Package network is the device-facing client: it identifies the device on
// every request, watches for firmware updates and simplifies the statuses the
// engine reports.
package network

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/xaitan80/iopnet/internal/channel"
	"github.com/xaitan80/iopnet/internal/client"
	"github.com/xaitan80/iopnet/internal/frame"
	"github.com/xaitan80/iopnet/internal/headers"
	"github.com/xaitan80/iopnet/internal/netstatus"
	"github.com/xaitan80/iopnet/internal/request"
)

// LatestVersion is the response header announcing the current firmware hash.
const LatestVersion = "LATEST_VERSION"

// UpdateHook schedules a firmware update for a later loop run. It must not
// update in place.
type UpdateHook func()

type Options struct {
	// Identity supplies the identifying headers. Nil sends none.
	Identity Identity
	// Link is checked before dialing. Nil means always connected.
	Link       client.Link
	UpdateHook UpdateHook
	Table      netstatus.Table
	MaxBody    int
	Channel    channel.Options
	Logger     zerolog.Logger
}

// Network talks to one monitor server.
type Network struct {
	uri    string
	opts   Options
	client *client.Client
	log    zerolog.Logger

	mu   sync.Mutex
	hook UpdateHook
}

func New(uri string, opts Options) *Network {
	if opts.Table == nil {
		opts.Table = netstatus.Default
	}
	return &Network{
		uri:  uri,
		opts: opts,
		client: client.New(client.Options{
			Collect: []string{LatestVersion},
			Table:   opts.Table,
			MaxBody: opts.MaxBody,
			Link:    opts.Link,
			Channel: opts.Channel,
			Logger:  opts.Logger,
		}),
		log:  opts.Logger,
		hook: opts.UpdateHook,
	}
}

func (n *Network) URI() string { return n.uri }

// Endpoint is the server URI followed by path.
func (n *Network) Endpoint(path string) string { return n.uri + path }

// SetUpdateHook replaces the hook called when the server announces a
// different firmware.
func (n *Network) SetUpdateHook(h UpdateHook) {
	n.mu.Lock()
	n.hook = h
	n.mu.Unlock()
}

// TakeUpdateHook removes the current hook and returns it.
func (n *Network) TakeUpdateHook() UpdateHook {
	n.mu.Lock()
	defer n.mu.Unlock()
	h := n.hook
	n.hook = nil
	return h
}

// Connected reports the link state.
func (n *Network) Connected() bool {
	return n.opts.Link == nil || n.opts.Link.Connected()
}

// HTTPPost sends data authenticated with token.
func (n *Network) HTTPPost(ctx context.Context, token, path string, data []byte) (*frame.Frame, error) {
	return n.HTTPRequest(ctx, request.POST, token, path, data)
}

// HTTPPostAnon sends data without credentials, e.g. to authenticate.
func (n *Network) HTTPPostAnon(ctx context.Context, path string, data []byte) (*frame.Frame, error) {
	return n.HTTPRequest(ctx, request.POST, "", path, data)
}

func (n *Network) HTTPGet(ctx context.Context, path, token string, data []byte) (*frame.Frame, error) {
	return n.HTTPRequest(ctx, request.GET, token, path, data)
}

// HTTPRequest performs one exchange with the monitor server. An empty token
// sends no credentials; nil data sends no Content-Type. Only an Ok frame
// keeps its body; any other code comes back as a bare frame.
func (n *Network) HTTPRequest(ctx context.Context, method request.Method, token, path string, data []byte) (*frame.Frame, error) {
	n.log.Debug().
		Bool("authenticated", token != "").
		Stringer("method", method).
		Str("uri", n.Endpoint(path)).
		Int("data", len(data)).
		Msg("request")

	f, err := n.client.Do(ctx, n.Endpoint(path), client.Request{
		Method:     method,
		Credential: token,
		Headers:    n.identify(data != nil),
		Body:       data,
	})
	if err != nil {
		return nil, err
	}

	status, known := f.Status()
	n.log.Debug().Str("code", n.CodeToString(f.Code())).Stringer("status", status).Bool("known", known).Msg("response")
	if !known || status == netstatus.IoError {
		return frame.Raw(f.Code(), n.opts.Table), nil
	}

	if v, ok := f.Header(LatestVersion); ok && n.opts.Identity != nil && v != n.opts.Identity.FirmwareHash() {
		n.log.Info().Str("latest", v).Msg("scheduled update")
		n.mu.Lock()
		h := n.hook
		n.mu.Unlock()
		if h != nil {
			h()
		}
	}

	if status != netstatus.Ok {
		return frame.Raw(f.Code(), n.opts.Table), nil
	}
	n.log.Debug().Int("payload", len(f.Body())).Msg("payload received")
	return f.WithBody(f.Body()), nil
}

// identify builds the per-request headers.
func (n *Network) identify(json bool) []headers.Field {
	var fs []headers.Field
	if json {
		fs = append(fs, headers.Field{Name: "Content-Type", Value: "application/json"})
	}
	id := n.opts.Identity
	if id == nil {
		return fs
	}
	hash := id.FirmwareHash()
	fs = append(fs,
		headers.Field{Name: "VERSION", Value: hash},
		headers.Field{Name: "x-ESP8266-sketch-md5", Value: hash},
		headers.Field{Name: "MAC_ADDRESS", Value: id.MACAddress()},
	)

	mem := id.Memory()
	fs = append(fs, headers.Field{Name: "FREE_STACK", Value: strconv.FormatUint(mem.Stack, 10)})
	for _, name := range slices.Sorted(maps.Keys(mem.Heap)) {
		fs = append(fs, headers.Field{Name: "FREE_" + name, Value: strconv.FormatUint(mem.Heap[name], 10)})
	}
	for _, name := range slices.Sorted(maps.Keys(mem.BiggestBlock)) {
		fs = append(fs, headers.Field{Name: "BIGGEST_BLOCK_" + name, Value: strconv.FormatUint(mem.BiggestBlock[name], 10)})
	}

	return append(fs,
		headers.Field{Name: "VCC", Value: strconv.FormatUint(uint64(id.Vcc()), 10)},
		headers.Field{Name: "TIME_RUNNING", Value: strconv.FormatInt(id.Uptime().Milliseconds(), 10)},
		headers.Field{Name: "ORIGIN", Value: n.uri},
		headers.Field{Name: "DRIVER", Value: id.Platform()},
	)
}

// CodeToString names a status code for logs.
func (n *Network) CodeToString(code int) string {
	s, ok := n.opts.Table.Lookup(code)
	if !ok {
		return strconv.Itoa(code)
	}
	switch s {
	case netstatus.Ok:
		return "OK"
	case netstatus.BrokenServer:
		return "SERVER_ERROR"
	case netstatus.BrokenClient:
		return "CLIENT_ERROR"
	case netstatus.Unauthorized:
		return "UNAUTHORIZED"
	case netstatus.Forbidden:
		return "FORBIDDEN"
	}
	return strconv.Itoa(code)
}
