// Package server provides the TCP listener and connection loop that
// feeds client bytes to the RESP decoder and writes encoded replies
// back.
package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/okutsen/minidis/internal/command"
	"github.com/okutsen/minidis/internal/resp"
	"github.com/okutsen/minidis/internal/store"
	"github.com/okutsen/minidis/internal/telemetry/logger"
	"github.com/okutsen/minidis/internal/telemetry/metric"
)

// readChunkSize is the size of a single socket read.
const readChunkSize = 4096

// Config holds the server configuration.
type Config struct {
	// Addr is the TCP listen address.
	Addr string
	// ReadTimeout is the timeout for reading the rest of a started
	// command (default: 30s). Helps prevent slowloris attacks.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing a response (default: 30s).
	WriteTimeout time.Duration
	// IdleTimeout is the timeout for idle connections (default: 5m).
	IdleTimeout time.Duration
	// RateLimit is the maximum number of commands per second per IP
	// (default: 1000). Set to 0 to disable rate limiting.
	RateLimit int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "127.0.0.1:6379",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  5 * time.Minute,
		RateLimit:    1000,
	}
}

// Server accepts RESP connections and executes commands against a
// shared store.
type Server struct {
	cfg      *Config
	store    *store.Store
	log      logger.Logger
	metrics  *metric.Metrics
	limiters *ipLimiters

	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a new server around the given store. A nil logger falls
// back to the process default; nil metrics get a private registry.
func New(cfg *Config, st *store.Store, m *metric.Metrics, log logger.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	if m == nil {
		m = metric.New(st.Len)
	}

	s := &Server{
		cfg:     cfg,
		store:   st,
		log:     log,
		metrics: m,
	}
	if cfg.RateLimit > 0 {
		s.limiters = newIPLimiters(cfg.RateLimit)
	}
	return s
}

// Start binds the listen address and begins accepting connections in
// the background. Bind errors are reported synchronously.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.running.Store(true)
	s.log.Info("server listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(ctx, ln); err != nil && s.running.Load() {
			s.log.Error("accept loop error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown gracefully shuts down the server: the listener is closed to
// break the accept loop, then all connection goroutines are awaited.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	var firstErr error
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			firstErr = err
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return firstErr
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(c)
		}()
	}
}

// serveConn owns one client connection: it grows a receive buffer from
// socket reads, decodes as many complete frames as the buffer holds,
// and writes one reply per frame. A protocol error terminates the
// connection; a command error is replied and the session continues.
func (s *Server) serveConn(c net.Conn) {
	defer c.Close()

	connID := ulid.Make().String()
	log := s.log.With("conn", connID, "remote", c.RemoteAddr().String())
	log.Debug("connection accepted")

	s.metrics.ConnectionsTotal.Inc()
	s.metrics.ConnectionsActive.Inc()
	defer func() {
		s.metrics.ConnectionsActive.Dec()
		log.Debug("connection closed")
	}()

	limiter := s.limiterFor(c.RemoteAddr())

	buf := new(bytes.Buffer)
	chunk := make([]byte, readChunkSize)

	for {
		for buf.Len() > 0 {
			frame, err := resp.Decode(buf)
			if errors.Is(err, resp.ErrIncomplete) {
				break
			}
			if err != nil {
				s.metrics.ProtocolErrors.Inc()
				log.Warn("protocol error", "error", err)
				s.writeFrame(c, resp.SimpleError("ERR protocol error: "+err.Error()))
				return
			}
			s.metrics.FramesDecoded.Inc()

			var reply resp.Frame
			if limiter != nil && !limiter.Allow() {
				reply = resp.SimpleError("ERR rate limit exceeded")
			} else {
				reply = s.handleFrame(frame)
			}

			if !s.writeFrame(c, reply) {
				return
			}
		}

		// A partially buffered command gets the tighter read timeout;
		// between commands the connection may stay idle longer.
		timeout := s.cfg.IdleTimeout
		if buf.Len() > 0 {
			timeout = s.cfg.ReadTimeout
		}
		if err := c.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return
		}

		n, err := c.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Debug("connection timed out")
				return
			}
			log.Debug("connection read error", "error", err)
			return
		}
	}
}

// handleFrame parses and executes one decoded frame, converting command
// errors into Error frames so the session survives them.
func (s *Server) handleFrame(f resp.Frame) resp.Frame {
	cmd, err := command.Parse(f)
	if err != nil {
		s.metrics.CommandErrors.Inc()
		return resp.SimpleError("ERR " + err.Error())
	}

	start := time.Now()
	reply := cmd.Execute(s.store)
	s.metrics.CommandsTotal.WithLabelValues(cmd.Name()).Inc()
	s.metrics.CommandDuration.WithLabelValues(cmd.Name()).Observe(time.Since(start).Seconds())
	return reply
}

// writeFrame encodes and writes a reply under the write deadline. It
// reports whether the connection is still usable.
func (s *Server) writeFrame(c net.Conn, f resp.Frame) bool {
	if err := c.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return false
	}
	if _, err := c.Write(resp.Encode(f)); err != nil {
		return false
	}
	return true
}

func (s *Server) limiterFor(addr net.Addr) *limiterHandle {
	if s.limiters == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	return s.limiters.get(host)
}
