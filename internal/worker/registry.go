// Package worker hosts the time-driven loops: stale-raid cleanup, slot
// reminders, auto reminders, the integrity sweep, level persistence,
// username sync, backups, the self-test, and the log forwarder. Every loop
// funnels through the orchestrator's state mutex; the loops themselves only
// keep time.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Registry runs named singleton tasks. Starting a name that is already
// running is a no-op, so a supervisor restart cannot double-schedule a loop.
type Registry struct {
	mu      sync.Mutex
	running map[string]bool
	g       *errgroup.Group
	ctx     context.Context
	log     *slog.Logger
}

// NewRegistry binds a registry to ctx; cancelling ctx stops every loop.
func NewRegistry(ctx context.Context, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	g, gctx := errgroup.WithContext(ctx)
	return &Registry{
		running: make(map[string]bool),
		g:       g,
		ctx:     gctx,
		log:     log,
	}
}

// Start launches fn on a fixed interval under the given name. Returns false
// when a task of that name is already running. Errors from fn are logged and
// the loop keeps ticking; only context cancellation ends it.
func (r *Registry) Start(name string, interval time.Duration, fn func(context.Context) error) bool {
	if interval <= 0 {
		interval = time.Minute
	}
	r.mu.Lock()
	if r.running[name] {
		r.mu.Unlock()
		r.log.Debug("task already running", "task", name)
		return false
	}
	r.running[name] = true
	r.mu.Unlock()

	r.g.Go(func() error {
		defer func() {
			r.mu.Lock()
			delete(r.running, name)
			r.mu.Unlock()
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		r.log.Debug("task started", "task", name, "interval", interval)
		for {
			select {
			case <-r.ctx.Done():
				return nil
			case <-ticker.C:
				if err := fn(r.ctx); err != nil {
					r.log.Error("task failed", "task", name, "err", err)
				}
			}
		}
	})
	return true
}

// Running reports whether the named task is active.
func (r *Registry) Running(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[name]
}

// Wait blocks until every loop has exited.
func (r *Registry) Wait() error {
	return r.g.Wait()
}
