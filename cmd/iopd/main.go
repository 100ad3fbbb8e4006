package main

import (
	"context"
	"flag"
	"fmt"
	"html"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/xaitan80/iopnet/internal/channel"
	"github.com/xaitan80/iopnet/internal/config"
	"github.com/xaitan80/iopnet/internal/logging"
	"github.com/xaitan80/iopnet/internal/response"
	"github.com/xaitan80/iopnet/internal/server"
)

func main() {
	os.Exit(serve())
}

// serve parses the configuration, runs the portal until a signal arrives and
// returns the process exit code.
func serve() int {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}
	port := uint(cfg.Port)
	flag.StringVar(&cfg.Host, "host", cfg.Host, "address to bind the portal to")
	flag.UintVar(&port, "port", port, "portal port")
	flag.StringVar(&cfg.MonitorURI, "monitor", cfg.MonitorURI, "monitor server URI, empty disables telemetry")
	flag.StringVar(&cfg.Token, "token", cfg.Token, "telemetry credential")
	flag.StringVar(&cfg.CABundle, "ca", cfg.CABundle, "PEM bundle of trusted roots")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "trace, debug, info, warn, error or crit")
	flag.BoolVar(&cfg.LogConsole, "console", cfg.LogConsole, "human readable logs")
	flag.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "portal poll interval")
	flag.DurationVar(&cfg.ReportInterval, "report", cfg.ReportInterval, "telemetry interval")
	flag.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "how long a send keeps retrying")
	flag.Parse()
	if port > 65535 {
		fmt.Fprintln(os.Stderr, "port out of range:", port)
		return 2
	}
	cfg.Port = uint16(port)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	newLogger := logging.New
	if cfg.LogConsole {
		newLogger = logging.Console
	}
	named := func(component string) zerolog.Logger {
		return newLogger(os.Stderr, level, component)
	}
	log := named("iopd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, named); err != nil {
		log.Error().Err(err).Msg("iopd stopped")
		return 1
	}
	log.Info().Msg("portal gracefully stopped")
	return 0
}

func run(ctx context.Context, cfg config.Config, named func(component string) zerolog.Logger) error {
	log := named("iopd")
	chOpts := channel.Options{
		CABundle:     cfg.CABundle,
		WriteTimeout: cfg.WriteTimeout,
		Logger:       named("channel"),
	}
	p := &portal{host: cfg.Host}

	srv := server.New(cfg.Port, server.Options{
		Host:    cfg.Host,
		Channel: chOpts,
		Logger:  named("server"),
	})
	for path, h := range map[string]server.Handler{
		"/":        p.index,
		"/status":  p.status,
		"/connect": p.connect,
	} {
		if err := srv.On(path, h); err != nil {
			return err
		}
	}
	if err := srv.OnNotFound(p.redirect); err != nil {
		return err
	}
	if err := srv.Begin(); err != nil {
		return err
	}
	defer srv.Close()
	log.Info().Str("addr", srv.Addr().String()).Msg("portal started")

	var tel *telemetry
	if cfg.MonitorURI != "" {
		var err error
		if tel, err = newTelemetry(cfg, chOpts, named("network"), p); err != nil {
			return err
		}
	}

	tick := time.NewTicker(cfg.TickInterval)
	defer tick.Stop()
	var report <-chan time.Time
	if tel != nil {
		t := time.NewTicker(cfg.ReportInterval)
		defer t.Stop()
		report = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if err := srv.HandleClient(); err != nil {
				log.Warn().Err(err).Msg("portal request failed")
			}
		case <-report:
			tel.report(ctx)
		}
	}
}

// portal serves the captive configuration pages.
type portal struct {
	host string
	ssid string
}

const indexPage = `<html>
  <head>
    <title>Device setup</title>
  </head>
  <body>
    <h1>Connect this device</h1>
    <form method="POST" action="/connect">
      <input name="ssid" placeholder="Network">
      <input name="password" type="password" placeholder="Password">
      <button type="submit">Connect</button>
    </form>
  </body>
</html>
`

func (p *portal) index(c *server.Conn, log zerolog.Logger) {
	if err := c.Send(response.StatusOK, "text/html", []byte(indexPage)); err != nil {
		log.Warn().Err(err).Msg("send index")
	}
}

func (p *portal) status(c *server.Conn, log zerolog.Logger) {
	if err := c.Send(response.StatusOK, "text/plain", []byte("ready")); err != nil {
		log.Warn().Err(err).Msg("send status")
	}
}

func (p *portal) connect(c *server.Conn, log zerolog.Logger) {
	ssid, ok := c.Arg("ssid")
	if !ok || ssid == "" {
		c.SendHeader("Location", "/")
		_ = c.Send(response.StatusFound, "text/html", nil)
		return
	}
	if _, ok := c.Arg("password"); !ok {
		log.Debug().Msg("connecting without password")
	}
	p.ssid = ssid
	log.Info().Str("ssid", ssid).Msg("credentials received")

	body := fmt.Sprintf("<html>\n  <body>\n    <h1>Connecting to %s</h1>\n  </body>\n</html>\n", html.EscapeString(ssid))
	if err := c.Send(response.StatusOK, "text/html", []byte(body)); err != nil {
		log.Warn().Err(err).Msg("send connect")
	}
}

// redirect sends every unknown path back to the portal.
func (p *portal) redirect(c *server.Conn, log zerolog.Logger) {
	host := p.host
	if host == "" {
		host, _ = c.Header("Host")
	}
	c.SendHeader("Location", "http://"+host+"/")
	if err := c.Send(response.StatusFound, "text/html", nil); err != nil {
		log.Warn().Err(err).Msg("send redirect")
	}
}
