// Package autosave implements a write-coalescing persistence scheduler: given
// an arbitrary stream of state values it decides when to invoke an external
// persist call so that the latest state eventually becomes durable, redundant
// persists are minimized, no two persists overlap and in-flight work is never
// lost when new edits race with it.
//
// A run of changes arriving within IdleInterval of each other forms a burst.
// A burst optionally saves immediately when it opens and always saves when it
// closes (the trailing save). Changes landing while a persist is in flight
// collapse into a single queued follow-up.
package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bassista/go_coalesce/internal/logger"
	"github.com/bassista/go_coalesce/internal/snapshot"
)

// DefaultIdleInterval is the inactivity window closing a burst.
const DefaultIdleInterval = 5 * time.Second

// Options configures a Scheduler. Use DefaultOptions as the starting point;
// the zero value disables the immediate-first save.
type Options struct {
	// IdleInterval is the inactivity window closing a burst. Values <= 0
	// fall back to DefaultIdleInterval.
	IdleInterval time.Duration
	// ImmediateFirst persists the first change of a burst right away instead
	// of waiting for the trailing save.
	ImmediateFirst bool
	// Disabled turns every scheduler operation into a no-op, including the
	// teardown flush.
	Disabled bool

	// Timer overrides the wall-clock burst timer (used by tests with a
	// manually fired timer). Nil means wall clock.
	Timer BurstTimer
	// Logger overrides the default component logger.
	Logger *logrus.Entry
}

// DefaultOptions returns the stock configuration: 5s idle window,
// immediate-first enabled.
func DefaultOptions() Options {
	return Options{
		IdleInterval:   DefaultIdleInterval,
		ImmediateFirst: true,
	}
}

type burstState int

const (
	burstIdle burstState = iota
	burstActive
)

// Scheduler orchestrates change detection, burst timing and the save
// executor for one stream of state values.
//
// OnChange calls and timer fires may come from different goroutines; one
// mutex serializes the whole critical section, so burst state, save state and
// the two snapshot fields only ever change under it.
type Scheduler struct {
	mu    sync.Mutex
	opts  Options
	timer BurstTimer
	exec  *SaveExecutor
	log   *logrus.Entry

	baseCtx context.Context

	lastSeen  snapshot.Snapshot
	lastValue any
	burst     burstState
	gen       uint64 // arm generation; stale timer fires are discarded
	closed    bool
}

// New creates a Scheduler for initial with the given persist call. The
// fingerprint of initial seeds both the last-seen and last-saved snapshots,
// so a value identical to it never triggers a save. ctx is the lifecycle
// context handed to background persist calls.
func New(ctx context.Context, initial any, persist PersistFunc, opts Options) (*Scheduler, error) {
	seed, err := snapshot.Fingerprint(initial)
	if err != nil {
		return nil, err
	}

	if opts.IdleInterval <= 0 {
		opts.IdleInterval = DefaultIdleInterval
	}
	if opts.Timer == nil {
		opts.Timer = NewWallTimer()
	}
	if opts.Logger == nil {
		opts.Logger = logger.WithComponent("autosave")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s := &Scheduler{
		opts:      opts,
		timer:     opts.Timer,
		log:       opts.Logger,
		baseCtx:   ctx,
		lastSeen:  seed,
		lastValue: initial,
	}
	s.exec = NewSaveExecutor(persist, seed, s.handleQueueDrained)
	s.exec.log = opts.Logger
	return s, nil
}

// OnChange feeds a new state value to the scheduler. Duplicate values
// (fingerprint-equal to the last seen one) are no-ops. A real change opens or
// extends a burst, optionally triggers the immediate-first save and re-arms
// the inactivity timer. The only error is a non-fingerprintable value, which
// is a caller contract violation.
//
// OnChange never blocks on the persist call.
func (s *Scheduler) OnChange(value any) error {
	if s.opts.Disabled {
		return nil
	}

	snap, err := snapshot.Fingerprint(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if snap == s.lastSeen {
		s.log.Tracef("change is a no-op, ignoring")
		return nil
	}

	s.lastSeen = snap
	s.lastValue = value

	// A change racing an in-flight save collapses into the queued marker.
	s.exec.MarkQueued()

	if s.burst == burstIdle {
		s.burst = burstActive
		s.log.Debugf("burst opened")
		if s.opts.ImmediateFirst {
			s.exec.AttemptSave(s.baseCtx, value, snap)
		}
	}

	s.armLocked()
	return nil
}

// armLocked re-arms the burst timer; the caller must hold s.mu.
func (s *Scheduler) armLocked() {
	s.gen++
	gen := s.gen
	s.timer.Arm(s.opts.IdleInterval, func() { s.onTimerFire(gen) })
}

// onTimerFire is the trailing-save handler: the inactivity window elapsed
// with no further change, so the burst closes with one save attempt carrying
// the latest observed value.
func (s *Scheduler) onTimerFire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.gen || s.burst != burstActive {
		return
	}

	s.log.Debugf("idle window elapsed, burst closed")
	s.exec.AttemptSave(s.baseCtx, s.lastValue, s.lastSeen)
	s.burst = burstIdle
}

// handleQueueDrained runs after a save completes with the queued marker set:
// edits accumulated during the in-flight call, so the burst continues and the
// inactivity window restarts. After teardown it issues the final follow-up
// directly instead.
func (s *Scheduler) handleQueueDrained() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.exec.AttemptSave(s.baseCtx, s.lastValue, s.lastSeen)
		return
	}

	s.log.Debugf("save completed with pending edits, re-arming idle window")
	s.burst = burstActive
	s.armLocked()
}

// Flush closes the current burst and synchronously persists the latest state
// if anything is pending. When a save is already in flight it only marks the
// follow-up and returns nil.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.opts.Disabled {
		s.mu.Unlock()
		return nil
	}
	s.timer.Cancel()
	s.gen++
	s.burst = burstIdle
	value, snap := s.lastValue, s.lastSeen
	s.mu.Unlock()

	return s.exec.FlushSync(ctx, value, snap)
}

// Teardown cancels the burst timer and, when unsaved changes remain, performs
// one final persist attempt whose error is returned. Repeated calls and calls
// on a disabled scheduler are no-ops. After Teardown, OnChange is a no-op.
func (s *Scheduler) Teardown() error {
	s.mu.Lock()
	if s.closed || s.opts.Disabled {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.timer.Cancel()
	value, snap := s.lastValue, s.lastSeen
	s.mu.Unlock()

	return s.exec.FlushSync(s.baseCtx, value, snap)
}

// TeardownAsync is a fire-and-forget Teardown: the final flush runs in the
// background and its error is only logged.
func (s *Scheduler) TeardownAsync() {
	go func() {
		if err := s.Teardown(); err != nil {
			s.log.Warnf("teardown flush failed: %v", err)
		}
	}()
}

// MarkSaved informs the scheduler that value is already durable (e.g. the
// store was replaced from a fresh on-disk copy); it will not be re-persisted.
func (s *Scheduler) MarkSaved(value any) error {
	snap, err := snapshot.Fingerprint(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = snap
	s.lastValue = value
	s.exec.MarkSaved(snap)
	return nil
}

// IsSaving reports whether a persist call is currently in flight.
func (s *Scheduler) IsSaving() bool {
	return s.exec.IsSaving()
}

// LastSavedAt returns the completion time of the last successful persist.
func (s *Scheduler) LastSavedAt() time.Time {
	return s.exec.LastSavedAt()
}

// LastError returns the error of the last failed persist, nil after a
// subsequent success.
func (s *Scheduler) LastError() error {
	return s.exec.LastError()
}

// Pending reports whether the latest observed state differs from the latest
// durable one.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !snapshot.Equal(s.lastSeen, s.exec.LastSaved())
}
