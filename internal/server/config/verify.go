// Package config defines the server configuration structure.
package config

import "errors"

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if cfg.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if cfg.Server.RateLimit < 0 {
		return errors.New("server.rate_limit must not be negative")
	}
	if cfg.Store.Shards <= 0 || cfg.Store.Shards&(cfg.Store.Shards-1) != 0 {
		return errors.New("store.shards must be a power of 2")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.New("log.level must be one of debug, info, warn, error")
	}
	return nil
}
