// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for minidis-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	Store   StoreSection   `koanf:"store"`
	Metrics MetricsSection `koanf:"metrics"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures the RESP listener.
type ServerSection struct {
	// Addr is the TCP listen address.
	Addr string `koanf:"addr"`

	// ReadTimeout is the per-command read timeout (slowloris protection).
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// WriteTimeout is the timeout for writing a response.
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// IdleTimeout is the timeout for idle connections between commands.
	IdleTimeout time.Duration `koanf:"idle_timeout"`

	// RateLimit is the maximum number of commands per second per client
	// IP. Zero disables rate limiting.
	RateLimit int `koanf:"rate_limit"`
}

// StoreSection configures the in-memory store.
type StoreSection struct {
	// Shards is the shard count of the key table. Must be a power of 2.
	Shards int `koanf:"shards"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
