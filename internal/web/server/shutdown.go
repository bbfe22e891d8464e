package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ShutdownHook stops one component. ctx carries the shutdown deadline.
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

// GracefulShutdown stops the components of a process once, in registration
// order, within a common timeout
type GracefulShutdown struct {
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	hooks []namedHook

	once sync.Once
	done chan struct{}
	err  error
}

// DefaultShutdownTimeout bounds the time all hooks may take together
const DefaultShutdownTimeout = 30 * time.Second

// NewGracefulShutdown creates a shutdown coordinator. A zero timeout selects
// DefaultShutdownTimeout.
func NewGracefulShutdown(timeout time.Duration, logger *zap.Logger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GracefulShutdown{timeout: timeout, logger: logger, done: make(chan struct{})}
}

// RegisterHook adds a component to stop
func (gs *GracefulShutdown) RegisterHook(name string, hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, namedHook{name: name, hook: hook})
}

// Run blocks until ctx is done or a component reports a fatal error on
// errs, then shuts everything down. The fatal error, if any, is returned
// together with hook failures.
func (gs *GracefulShutdown) Run(ctx context.Context, errs <-chan error) error {
	var cause error
	select {
	case <-ctx.Done():
		gs.logger.Info("shutdown signal received")
	case cause = <-errs:
		gs.logger.Error("component failed, shutting down", zap.Error(cause))
	}
	return errors.Join(cause, gs.Shutdown())
}

// Shutdown runs every hook once. Later calls wait for the first to finish
// and return its result.
func (gs *GracefulShutdown) Shutdown() error {
	gs.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
		defer cancel()

		gs.mu.Lock()
		hooks := append([]namedHook(nil), gs.hooks...)
		gs.mu.Unlock()

		var errs []error
		for _, h := range hooks {
			if err := h.hook(ctx); err != nil {
				gs.logger.Warn("shutdown hook failed", zap.String("component", h.name), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
				continue
			}
			gs.logger.Debug("component stopped", zap.String("component", h.name))
		}
		gs.err = errors.Join(errs...)
		close(gs.done)
	})
	<-gs.done
	return gs.err
}

// Wait blocks until Shutdown has completed
func (gs *GracefulShutdown) Wait() error {
	<-gs.done
	return gs.err
}
