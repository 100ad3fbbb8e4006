// Package config gathers the daemon settings from IOP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/xaitan80/iopnet/internal/channel"
	"github.com/xaitan80/iopnet/internal/logging"
)

type Config struct {
	// Host and Port of the local configuration server.
	Host string
	Port uint16
	// MonitorURI is the remote server; empty disables telemetry.
	MonitorURI string
	// Token authenticates telemetry.
	Token        string
	CABundle     string
	LogLevel     string
	LogConsole   bool
	WriteTimeout time.Duration
	// TickInterval paces HandleClient.
	TickInterval time.Duration
	// ReportInterval paces telemetry posts.
	ReportInterval time.Duration
}

func Default() Config {
	return Config{
		Port:           8080,
		LogLevel:       "info",
		WriteTimeout:   channel.DefaultWriteTimeout,
		TickInterval:   100 * time.Millisecond,
		ReportInterval: time.Minute,
	}
}

// Load overlays the environment read through getenv on Default.
func Load(getenv func(string) string) (Config, error) {
	c := Default()
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("IOP_HOST", &c.Host)
	str("IOP_MONITOR_URI", &c.MonitorURI)
	str("IOP_TOKEN", &c.Token)
	str("IOP_CA_BUNDLE", &c.CABundle)
	str("IOP_LOG_LEVEL", &c.LogLevel)

	if v := getenv("IOP_PORT"); v != "" {
		p, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return c, fmt.Errorf("IOP_PORT: %w", err)
		}
		c.Port = uint16(p)
	}
	if v := getenv("IOP_LOG_CONSOLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c, fmt.Errorf("IOP_LOG_CONSOLE: %w", err)
		}
		c.LogConsole = b
	}
	for key, dst := range map[string]*time.Duration{
		"IOP_WRITE_TIMEOUT":   &c.WriteTimeout,
		"IOP_TICK_INTERVAL":   &c.TickInterval,
		"IOP_REPORT_INTERVAL": &c.ReportInterval,
	} {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return c, fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return c, c.Validate()
}

// Validate checks values flags or the environment may have broken.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.WriteTimeout <= 0 {
		return errors.New("write timeout must be positive")
	}
	if c.TickInterval <= 0 {
		return errors.New("tick interval must be positive")
	}
	if c.MonitorURI != "" {
		if _, err := channel.ParseURI(c.MonitorURI); err != nil {
			return fmt.Errorf("monitor uri: %w", err)
		}
		if c.ReportInterval <= 0 {
			return errors.New("report interval must be positive")
		}
	}
	return nil
}
