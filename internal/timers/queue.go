// Package timers runs deferred moderation reversals (unban, unmute) stored in the
// timers table. A single consumer sleeps until the soonest row is due, deletes it
// and dispatches it to the handler registered for its kind.
package timers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/db"
	"github.com/iamwavecut/ngmod/internal/infra"
	"github.com/iamwavecut/ngmod/internal/observability"
)

const (
	defaultWindow  = 7 * 24 * time.Hour
	defaultIdle    = 30 * time.Second
	restartBackoff = 5 * time.Second
)

type Store interface {
	ReplaceTimer(ctx context.Context, timer *db.Timer) (int64, error)
	NextTimer(ctx context.Context, before time.Time) (*db.Timer, error)
	DeleteTimer(ctx context.Context, id int64) (bool, error)
	DeleteTimers(ctx context.Context, guildID, targetID int64, kind db.TimerKind) ([]int64, error)
}

// Handler performs the deferred action. The row is already deleted when it runs.
type Handler func(ctx context.Context, timer *db.Timer) error

type Options struct {
	// Window limits how far ahead the consumer looks for the next timer.
	Window time.Duration
	// Idle is how long the consumer waits when nothing is due inside Window.
	Idle time.Duration
}

type Queue struct {
	store  Store
	window time.Duration
	idle   time.Duration
	now    func() time.Time
	// backoff is the pause before relaunching a failed consumer.
	backoff time.Duration

	handlersMu sync.RWMutex
	handlers   map[db.TimerKind]Handler

	currentMu sync.Mutex
	current   *db.Timer
	wake      chan struct{}

	runMutex  sync.Mutex
	started   bool
	runCancel context.CancelFunc
	workersWg sync.WaitGroup
}

func New(store Store, opts Options) *Queue {
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if opts.Idle <= 0 {
		opts.Idle = defaultIdle
	}
	return &Queue{
		store:    store,
		window:   opts.Window,
		idle:     opts.Idle,
		now:      time.Now,
		backoff:  restartBackoff,
		handlers: map[db.TimerKind]Handler{},
		wake:     make(chan struct{}, 1),
	}
}

func (q *Queue) getLogEntry() *log.Entry {
	return log.WithField("context", "timers")
}

// Register binds the handler invoked when a timer of kind fires.
func (q *Queue) Register(kind db.TimerKind, handler Handler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers[kind] = handler
}

// Create persists a timer, replacing any pending one for the same target and kind,
// and wakes the consumer when the new timer should run before the one it waits on.
func (q *Queue) Create(ctx context.Context, guildID, targetID int64, kind db.TimerKind, expiresAt time.Time, payload db.Payload) (int64, error) {
	timer := &db.Timer{
		GuildID:   guildID,
		TargetID:  targetID,
		Kind:      kind,
		ExpiresAt: expiresAt.UTC(),
		Payload:   payload,
	}
	id, err := q.store.ReplaceTimer(ctx, timer)
	if err != nil {
		return 0, fmt.Errorf("create %s timer: %w", kind, err)
	}

	q.currentMu.Lock()
	current := q.current
	q.currentMu.Unlock()
	if current == nil || timer.ExpiresAt.Before(current.ExpiresAt) || sameTarget(current, timer) {
		q.signal()
	}

	q.getLogEntry().
		WithField("guild_id", guildID).
		WithField("user_id", targetID).
		WithField("kind", kind).
		WithField("timer_id", id).
		Debug("timer created")
	return id, nil
}

// Cancel deletes pending timers for the target and kind and returns their ids.
func (q *Queue) Cancel(ctx context.Context, guildID, targetID int64, kind db.TimerKind) ([]int64, error) {
	ids, err := q.store.DeleteTimers(ctx, guildID, targetID, kind)
	if err != nil {
		return nil, fmt.Errorf("cancel %s timer: %w", kind, err)
	}
	q.currentMu.Lock()
	current := q.current
	q.currentMu.Unlock()
	if current != nil {
		for _, id := range ids {
			if id == current.ID {
				q.signal()
				break
			}
		}
	}
	return ids, nil
}

// CancelByID deletes one timer; used to undo a timer whose effect could not be applied.
func (q *Queue) CancelByID(ctx context.Context, id int64) error {
	if _, err := q.store.DeleteTimer(ctx, id); err != nil {
		return fmt.Errorf("cancel timer %d: %w", id, err)
	}
	q.currentMu.Lock()
	current := q.current
	q.currentMu.Unlock()
	if current != nil && current.ID == id {
		q.signal()
	}
	return nil
}

func (q *Queue) Start(ctx context.Context) error {
	q.runMutex.Lock()
	defer q.runMutex.Unlock()
	if q.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	q.runCancel = cancel

	q.workersWg.Add(1)
	go func() {
		defer q.workersWg.Done()
		q.consume(runCtx)
	}()

	q.started = true
	return nil
}

// Stop cancels the consumer. Pending rows are left untouched.
func (q *Queue) Stop(ctx context.Context) error {
	q.runMutex.Lock()
	if !q.started {
		q.runMutex.Unlock()
		return nil
	}
	q.started = false
	cancel := q.runCancel
	q.runMutex.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.workersWg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (q *Queue) consume(ctx context.Context) {
	for ctx.Err() == nil {
		err := infra.Recover("timers consumer", func() error {
			return q.runOnce(ctx)
		})
		if err == nil || errors.Is(err, context.Canceled) {
			continue
		}
		q.getLogEntry().WithError(err).Error("consumer failed, relaunching")
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.backoff):
		}
	}
}

// runOnce selects the soonest timer inside the window, waits for it and fires it.
// It returns early without firing when woken by Create or Cancel.
func (q *Queue) runOnce(ctx context.Context) error {
	timer, err := q.store.NextTimer(ctx, q.now().Add(q.window))
	if err != nil {
		return err
	}
	if timer == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		case <-time.After(q.idle):
		}
		return nil
	}

	q.setCurrent(timer)
	defer q.setCurrent(nil)

	if wait := timer.ExpiresAt.Sub(q.now()); wait > 0 {
		sleep := time.NewTimer(wait)
		defer sleep.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
			return nil
		case <-sleep.C:
		}
	}

	deleted, err := q.store.DeleteTimer(ctx, timer.ID)
	if err != nil {
		return err
	}
	if !deleted {
		// canceled while we slept
		return nil
	}
	q.dispatch(ctx, timer)
	return nil
}

func (q *Queue) dispatch(ctx context.Context, timer *db.Timer) {
	entry := q.getLogEntry().
		WithField("guild_id", timer.GuildID).
		WithField("user_id", timer.TargetID).
		WithField("kind", timer.Kind).
		WithField("timer_id", timer.ID)

	q.handlersMu.RLock()
	handler, ok := q.handlers[timer.Kind]
	q.handlersMu.RUnlock()
	if !ok {
		observability.RecordTimerFired(string(timer.Kind), "no_handler")
		entry.Error("no handler registered for timer kind")
		return
	}

	if err := handler(ctx, timer); err != nil {
		observability.RecordTimerFired(string(timer.Kind), "error")
		entry.WithError(err).Error("timer handler failed")
		return
	}
	observability.RecordTimerFired(string(timer.Kind), "ok")
	entry.Info("timer fired")
}

func (q *Queue) setCurrent(timer *db.Timer) {
	q.currentMu.Lock()
	q.current = timer
	q.currentMu.Unlock()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func sameTarget(a, b *db.Timer) bool {
	return a.GuildID == b.GuildID && a.TargetID == b.TargetID && a.Kind == b.Kind
}
