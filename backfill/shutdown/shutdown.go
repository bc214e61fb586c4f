// Package shutdown carries the stop request from the process signal handler
// to the run loop. The run loop only looks at it between tables.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gear6io/scylla-backfill/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrStopRequested is the default cause recorded by Stop
var ErrStopRequested = errors.New(errors.CommonCancelled, "shutdown requested", nil)

// Controller is a cancellation token with a recorded cause
type Controller struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	logger zerolog.Logger
}

// New derives a controller from parent; cancelling parent also stops it
func New(parent context.Context, logger zerolog.Logger) *Controller {
	ctx, cancel := context.WithCancelCause(parent)
	return &Controller{
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With().Str("component", "shutdown").Logger(),
	}
}

// Context is cancelled once a stop is requested
func (c *Controller) Context() context.Context { return c.ctx }

// Stop requests a graceful stop. Only the first cause is kept.
func (c *Controller) Stop(cause error) {
	if cause == nil {
		cause = ErrStopRequested
	}
	if c.Stopping() {
		return
	}
	c.logger.Info().Err(cause).Msg("Received shutdown request, stopping after the current table")
	c.cancel(cause)
}

// Stopping reports whether a stop was requested
func (c *Controller) Stopping() bool { return c.ctx.Err() != nil }

// Cause returns why the controller stopped, or nil
func (c *Controller) Cause() error { return context.Cause(c.ctx) }

// WatchSignals calls Stop when one of sigs arrives. SIGINT and SIGTERM are
// watched when sigs is empty. The returned func stops watching.
func (c *Controller) WatchSignals(sigs ...os.Signal) func() {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-ch:
			c.Stop(errors.New(errors.CommonCancelled, "received signal", nil).AddContext("signal", sig.String()))
		case <-done:
		case <-c.ctx.Done():
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
