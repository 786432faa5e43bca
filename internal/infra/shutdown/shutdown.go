// Package shutdown provides graceful shutdown handling.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Handler runs registered hooks when the process receives SIGINT or
// SIGTERM, bounding the whole teardown with a timeout.
type Handler struct {
	timeout time.Duration
	hooks   []func(context.Context) error
	mu      sync.Mutex
	done    chan struct{}
	sigCh   chan os.Signal
}

// NewHandler creates a new shutdown handler.
func NewHandler(timeout time.Duration) *Handler {
	h := &Handler{
		timeout: timeout,
		hooks:   make([]func(context.Context) error, 0),
		done:    make(chan struct{}),
		sigCh:   make(chan os.Signal, 1),
	}
	signal.Notify(h.sigCh, syscall.SIGINT, syscall.SIGTERM)
	return h
}

// OnShutdown registers a shutdown hook.
// Hooks are called in reverse order of registration.
func (h *Handler) OnShutdown(hook func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// Trigger initiates shutdown without a signal. Used by tests and by
// fatal startup errors.
func (h *Handler) Trigger() {
	select {
	case h.sigCh <- syscall.SIGTERM:
	default:
	}
}

// Wait blocks until a shutdown signal arrives, then executes the hooks
// in reverse order under a timeout context and returns the last hook
// error, if any.
func (h *Handler) Wait() error {
	<-h.sigCh

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]func(context.Context) error, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	var lastErr error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			lastErr = err
		}
	}

	close(h.done)
	return lastErr
}

// Done returns a channel that closes when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
