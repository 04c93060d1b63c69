package autosave

import (
	"sync"
	"time"
)

// BurstTimer is a single-shot, restartable deadline timer. Arm while already
// armed cancels the previous deadline (restart semantics, not stacking).
// Implementations must guarantee onFire runs at most once per Arm.
type BurstTimer interface {
	Arm(d time.Duration, onFire func())
	Cancel()
}

// wallTimer is the production BurstTimer backed by time.AfterFunc.
// A fire that already started when Cancel is called may still run; the
// scheduler discards stale fires via its arm generation counter.
type wallTimer struct {
	mu    sync.Mutex
	timer *time.Timer
}

// NewWallTimer returns a BurstTimer driven by the wall clock.
func NewWallTimer() BurstTimer {
	return &wallTimer{}
}

func (w *wallTimer) Arm(d time.Duration, onFire func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(d, onFire)
}

func (w *wallTimer) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
