// Package main provides the entry point for minidis-server, a minimal
// Redis-protocol-compatible in-memory key-value server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/okutsen/minidis/internal/infra/buildinfo"
	"github.com/okutsen/minidis/internal/infra/confloader"
	"github.com/okutsen/minidis/internal/infra/shutdown"
	"github.com/okutsen/minidis/internal/server"
	"github.com/okutsen/minidis/internal/server/config"
	"github.com/okutsen/minidis/internal/store"
	"github.com/okutsen/minidis/internal/telemetry/logger"
	"github.com/okutsen/minidis/internal/telemetry/metric"
)

func main() {
	app := &cli.App{
		Name:    "minidis-server",
		Usage:   "minimal RESP-compatible in-memory key-value server",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to YAML configuration file",
				EnvVars: []string{"MINIDIS_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "TCP listen address (overrides config)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level: debug, info, warn, error (overrides config)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Prometheus listen address; enables metrics endpoint",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return fmt.Errorf("verify config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	logger.SetDefault(log)

	log.Info("starting minidis-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"addr", cfg.Server.Addr)

	st := store.NewWithShards(cfg.Store.Shards)
	metrics := metric.New(st.Len)

	srv := server.New(&server.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		RateLimit:    cfg.Server.RateLimit,
	}, st, metrics, log)

	ctx := context.Background()
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	shutdownHandler := shutdown.NewHandler(30 * time.Second)
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down server")
		return srv.Shutdown(ctx)
	})

	if cfg.Metrics.Enabled {
		metricsSrv := &http.Server{
			Addr:    cfg.Metrics.Addr,
			Handler: metricsMux(metrics),
		}
		go func() {
			log.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server error", "error", err)
			}
		}()
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			return metricsSrv.Shutdown(ctx)
		})
	}

	if path := c.String("config"); path != "" {
		stopWatch, err := watchConfig(path, log)
		if err != nil {
			log.Warn("config watcher disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown(func(context.Context) error {
				return stopWatch()
			})
		}
	}

	log.Info("server started")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig merges defaults, the optional config file, environment
// variables and CLI flags, in ascending priority.
func loadConfig(c *cli.Context) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if path := c.String("config"); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}

	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	// Flags win over everything.
	overrides := map[string]any{}
	if addr := c.String("addr"); addr != "" {
		overrides["server.addr"] = addr
	}
	if level := c.String("log-level"); level != "" {
		overrides["log.level"] = level
	}
	if addr := c.String("metrics-addr"); addr != "" {
		overrides["metrics.enabled"] = true
		overrides["metrics.addr"] = addr
	}
	if len(overrides) > 0 {
		if err := loader.LoadMap(overrides); err != nil {
			return nil, err
		}
		if err := loader.Unmarshal(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// watchConfig reloads the log level when the config file changes.
func watchConfig(path string, log logger.Logger) (stop func() error, err error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(path); err != nil {
		_ = watcher.Stop()
		return nil, err
	}

	watcher.OnChange(func(changed string) {
		fresh := config.Default()
		loader := confloader.NewLoader(confloader.WithConfigFile(path))
		if err := loader.Load(fresh); err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		if err := config.Verify(fresh); err != nil {
			log.Warn("config reload rejected", "error", err)
			return
		}
		if fresh.Log.Level != logger.GetLevel() {
			logger.SetLevel(fresh.Log.Level)
			log.Info("log level updated", "level", fresh.Log.Level)
		}
	})

	go watcher.Start()
	return watcher.Stop, nil
}

func metricsMux(m *metric.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
