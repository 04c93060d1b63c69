package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bassista/go_coalesce/internal/logger"
	"github.com/bassista/go_coalesce/internal/snapshot"
)

// PersistFunc is the externally supplied persistence call. It may block; it
// must report failure as an error rather than panic.
type PersistFunc func(ctx context.Context, value any) error

type saveState int

const (
	saveIdle saveState = iota
	saveRunning
	saveRunningQueued
)

// SaveExecutor owns the single-flight invariant over the persist call: at most
// one persist runs at a time, and any number of requests arriving while one is
// in flight collapse into a single queued follow-up marker.
type SaveExecutor struct {
	mu          sync.Mutex
	persist     PersistFunc
	state       saveState
	lastSaved   snapshot.Snapshot
	lastSavedAt time.Time
	lastErr     error

	// onDrained is invoked (outside the lock on the async path) after a save
	// completes with the queued marker set; the scheduler uses it to re-arm
	// the inactivity window.
	onDrained func()

	now func() time.Time
	log *logrus.Entry
}

// NewSaveExecutor creates an executor around persist. lastSaved seeds the
// "nothing new to persist" guard; pass the fingerprint of the initial state so
// an unchanged value is never re-persisted. onDrained may be nil.
func NewSaveExecutor(persist PersistFunc, lastSaved snapshot.Snapshot, onDrained func()) *SaveExecutor {
	return &SaveExecutor{
		persist:   persist,
		lastSaved: lastSaved,
		onDrained: onDrained,
		now:       time.Now,
		log:       logger.WithComponent("autosave"),
	}
}

// AttemptSave runs the save decision for value/snap and, when a persist is
// warranted, launches it on its own goroutine so the caller never blocks.
// The payload is captured here, at call time: a later change cannot mutate an
// in-flight save.
func (e *SaveExecutor) AttemptSave(ctx context.Context, value any, snap snapshot.Snapshot) {
	if !e.begin(snap) {
		return
	}
	go func() {
		err := e.persist(ctx, value)
		if e.finish(snap, err) && e.onDrained != nil {
			e.onDrained()
		}
	}()
}

// FlushSync is AttemptSave with the persist call run on the caller's
// goroutine, returning its error. Used for teardown and manual flushes.
// When a save is already in flight it only sets the queued marker and
// returns nil.
func (e *SaveExecutor) FlushSync(ctx context.Context, value any, snap snapshot.Snapshot) error {
	if !e.begin(snap) {
		return nil
	}
	err := e.persist(ctx, value)
	if e.finish(snap, err) && e.onDrained != nil {
		e.onDrained()
	}
	return err
}

// MarkQueued records that a change arrived while a save is in flight. It is
// idempotent and a no-op when no save is running.
func (e *SaveExecutor) MarkQueued() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != saveIdle {
		e.state = saveRunningQueued
	}
}

// begin decides whether a persist call should start. It returns false when
// there is nothing new to persist or a save is already in flight (in which
// case the request collapses into the queued marker).
func (e *SaveExecutor) begin(snap snapshot.Snapshot) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if snapshot.Equal(snap, e.lastSaved) {
		e.log.Debugf("nothing new to persist, skipping save")
		return false
	}
	if e.state != saveIdle {
		e.state = saveRunningQueued
		e.log.Debugf("save already in flight, queued follow-up")
		return false
	}
	e.state = saveRunning
	return true
}

// finish records the outcome of a persist call and reports whether a queued
// follow-up was pending.
func (e *SaveExecutor) finish(attempt snapshot.Snapshot, err error) (queued bool) {
	e.mu.Lock()
	if err != nil {
		e.lastErr = err
		e.log.Errorf("persist failed: %v", err)
	} else {
		e.lastSaved = attempt
		e.lastSavedAt = e.now()
		e.lastErr = nil
		e.log.Debugf("persisted at %s", e.lastSavedAt.Format(time.RFC3339))
	}
	queued = e.state == saveRunningQueued
	e.state = saveIdle
	e.mu.Unlock()
	return queued
}

// IsSaving reports whether a persist call is currently in flight.
func (e *SaveExecutor) IsSaving() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state != saveIdle
}

// LastSaved returns the fingerprint confirmed durable by the most recent
// successful persist call.
func (e *SaveExecutor) LastSaved() snapshot.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSaved
}

// LastSavedAt returns the completion time of the most recent successful
// persist call, or the zero time if none succeeded yet.
func (e *SaveExecutor) LastSavedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSavedAt
}

// LastError returns the error of the most recent failed persist call. It is
// cleared by the next successful save.
func (e *SaveExecutor) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// MarkSaved force-advances the durable fingerprint without a persist call.
// Used when the backing store was replaced from an already-durable source
// (e.g. a reload from disk) that must not be re-persisted.
func (e *SaveExecutor) MarkSaved(snap snapshot.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSaved = snap
}
