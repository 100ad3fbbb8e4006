package main

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/xaitan80/iopnet/internal/channel"
	"github.com/xaitan80/iopnet/internal/config"
	"github.com/xaitan80/iopnet/internal/network"
	"github.com/xaitan80/iopnet/internal/netstatus"
)

const (
	eventPath  = "/v1/event"
	updatePath = "/v1/update"
)

// telemetry posts device state to the monitor and fetches announced updates.
type telemetry struct {
	net     *network.Network
	host    *network.Host
	token   string
	portal  *portal
	pending bool
	log     zerolog.Logger
}

func newTelemetry(cfg config.Config, chOpts channel.Options, log zerolog.Logger, p *portal) (*telemetry, error) {
	host, err := network.NewHost()
	if err != nil {
		return nil, err
	}
	t := &telemetry{host: host, token: cfg.Token, portal: p, log: log}
	t.net = network.New(cfg.MonitorURI, network.Options{
		Identity:   host,
		UpdateHook: func() { t.pending = true },
		Channel:    chOpts,
		Logger:     log,
	})
	return t, nil
}

type event struct {
	UptimeMs int64  `json:"uptime_ms"`
	SSID     string `json:"ssid,omitempty"`
}

func (t *telemetry) report(ctx context.Context) {
	if t.pending {
		t.pending = false
		t.update(ctx)
	}

	data, err := json.Marshal(event{UptimeMs: t.host.Uptime().Milliseconds(), SSID: t.portal.ssid})
	if err != nil {
		t.log.Error().Err(err).Msg("encode event")
		return
	}
	f, err := t.net.HTTPPost(ctx, t.token, eventPath, data)
	if err != nil {
		t.log.Warn().Err(err).Msg("report failed")
		return
	}
	if !f.Is(netstatus.Ok) {
		t.log.Warn().Str("code", t.net.CodeToString(f.Code())).Msg("report rejected")
	}
}

func (t *telemetry) update(ctx context.Context) {
	bin, status := t.net.FetchUpdate(ctx, updatePath, t.token)
	if status != network.UpdateReady {
		t.log.Warn().Stringer("status", status).Msg("update not fetched")
		return
	}
	t.log.Info().Int("size", len(bin)).Msg("update downloaded, install it to upgrade")
}
