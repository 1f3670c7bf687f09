// Package lifecycle starts the process components in order and stops them in reverse.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type entry struct {
	name      string
	component Component
}

type Runtime struct {
	entries []entry
}

func NewRuntime() *Runtime {
	return &Runtime{}
}

func (r *Runtime) getLogEntry() *log.Entry {
	return log.WithField("context", "lifecycle")
}

// Register appends a component; nil components are ignored.
func (r *Runtime) Register(name string, component Component) *Runtime {
	if component != nil {
		r.entries = append(r.entries, entry{name: name, component: component})
	}
	return r
}

func (r *Runtime) Start(ctx context.Context) error {
	started := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		if err := e.component.Start(ctx); err != nil {
			_ = r.stop(ctx, started)
			return fmt.Errorf("start %s: %w", e.name, err)
		}
		r.getLogEntry().WithField("component", e.name).Debug("started")
		started = append(started, e)
	}
	return nil
}

func (r *Runtime) Stop(ctx context.Context) error {
	return r.stop(ctx, r.entries)
}

// Run starts every component and blocks until ctx is done or done fires, then
// stops them with stopTimeout as the shutdown budget.
func (r *Runtime) Run(ctx context.Context, done <-chan struct{}, stopTimeout time.Duration) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-done:
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	return r.Stop(stopCtx)
}

func (r *Runtime) stop(ctx context.Context, entries []entry) error {
	var stopErr error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := e.component.Stop(ctx); err != nil {
			stopErr = errors.Join(stopErr, fmt.Errorf("stop %s: %w", e.name, err))
			continue
		}
		r.getLogEntry().WithField("component", e.name).Debug("stopped")
	}
	return stopErr
}
