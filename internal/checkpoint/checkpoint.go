// Package checkpoint periodically writes resident days to the archive so a
// crash loses at most one interval of events.
package checkpoint

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Flusher writes resident state to durable storage.
type Flusher interface {
	Flush(ctx context.Context) error
}

// FlusherFunc is a function adapter for Flusher.
type FlusherFunc func(ctx context.Context) error

func (f FlusherFunc) Flush(ctx context.Context) error {
	return f(ctx)
}

// Config holds checkpointer configuration.
type Config struct {
	Interval time.Duration // time between flushes
	Timeout  time.Duration // bound on a single flush
}

// Stats contains checkpoint counters.
type Stats struct {
	Runs     int64
	Failures int64
}

// Checkpointer runs Flush on a fixed interval.
type Checkpointer struct {
	cfg     Config
	flusher Flusher
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	runs     atomic.Int64
	failures atomic.Int64
}

// New creates a Checkpointer.
func New(cfg Config, flusher Flusher, logger *slog.Logger) *Checkpointer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	return &Checkpointer{
		cfg:     cfg,
		flusher: flusher,
		logger:  logger,
	}
}

// Start begins the checkpoint loop.
func (c *Checkpointer) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.run()

	c.logger.Info("checkpointer started", "interval", c.cfg.Interval)
	return nil
}

// Stop waits for the loop to exit. A flush in progress is cancelled.
func (c *Checkpointer) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("checkpointer stopped", "runs", c.runs.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns checkpoint counters.
func (c *Checkpointer) Stats() Stats {
	return Stats{
		Runs:     c.runs.Load(),
		Failures: c.failures.Load(),
	}
}

func (c *Checkpointer) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.checkpoint()
		}
	}
}

func (c *Checkpointer) checkpoint() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.Timeout)
	defer cancel()

	c.runs.Add(1)
	if err := c.flusher.Flush(ctx); err != nil {
		c.failures.Add(1)
		c.logger.Error("checkpoint failed", "error", err)
		return
	}

	c.logger.Debug("checkpoint complete", "duration", time.Since(start))
}
