// Package config loads the broadcaster configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/luciancaetano/scenecast"
	"github.com/luciancaetano/scenecast/internal/protocol"
	"github.com/luciancaetano/scenecast/internal/transport"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Transport TransportConfig `toml:"transport"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Rooms     RoomsConfig     `toml:"rooms"`
	Logging   LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	TCPAddress     string   `toml:"tcp_address"`  // raw frame listener, empty disables it
	HTTPAddress    string   `toml:"http_address"` // /ws and /metrics, empty disables it
	AllowedOrigins []string `toml:"allowed_origins"`
	SendQueueSize  int      `toml:"send_queue_size"`
}

type TransportConfig struct {
	PollTimeout time.Duration `toml:"poll_timeout"`
	ReadTimeout time.Duration `toml:"read_timeout"`
	SendTimeout time.Duration `toml:"send_timeout"`
	MaxPayload  uint64        `toml:"max_payload"`
}

type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	MessagesPerSecond float64 `toml:"messages_per_second"`
	Burst             int     `toml:"burst"`
}

type RoomsConfig struct {
	KeepEmpty bool `toml:"keep_empty"` // keep rooms and their content after the last client leaves
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	policy := transport.DefaultPolicy()
	return &Config{
		Server: ServerConfig{
			TCPAddress:    scenecast.DefaultTCPAddress,
			HTTPAddress:   scenecast.DefaultHTTPAddress,
			SendQueueSize: scenecast.DefaultSendQueueSize,
		},
		Transport: TransportConfig{
			PollTimeout: scenecast.DefaultPollTimeout,
			ReadTimeout: policy.ReadTimeout,
			SendTimeout: policy.SendTimeout,
			MaxPayload:  protocol.DefaultMaxPayloadSize,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			MessagesPerSecond: 1000,
			Burst:             2000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.TCPAddress == "" && c.Server.HTTPAddress == "" {
		return errors.New("at least one of server.tcp_address and server.http_address must be set")
	}
	if c.Server.SendQueueSize <= 0 {
		return fmt.Errorf("server.send_queue_size must be positive, got %d", c.Server.SendQueueSize)
	}
	if c.Transport.PollTimeout <= 0 {
		return fmt.Errorf("transport.poll_timeout must be positive, got %s", c.Transport.PollTimeout)
	}
	if c.Transport.ReadTimeout < 0 || c.Transport.SendTimeout < 0 {
		return errors.New("transport timeouts must not be negative")
	}
	if c.Transport.MaxPayload == 0 {
		return errors.New("transport.max_payload must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.MessagesPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return errors.New("rate_limit.messages_per_second and rate_limit.burst must be positive when enabled")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"console\", got %q", c.Logging.Format)
	}
	return nil
}
