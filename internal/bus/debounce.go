package bus

import (
	"context"
	"time"
)

// #region debouncer

// Debouncer coalesces cycle triggers: however many arrive within the window,
// the handler runs once. The handler runs on the Run goroutine, so cycles are
// serial by construction; a trigger arriving mid-handler is held (capacity-1
// channel) and opens a fresh window afterwards, never an interleaved cycle.
type Debouncer struct {
	window  time.Duration
	trigger chan struct{}
}

// NewDebouncer creates a debouncer with the given collapse window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		trigger: make(chan struct{}, 1),
	}
}

// Trigger requests a cycle. Safe from any goroutine; redundant triggers
// coalesce.
func (d *Debouncer) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Run dispatches debounced triggers to fn until ctx is cancelled. A single
// timer is armed on the first trigger of a window; later triggers inside the
// window are absorbed without extending it.
func (d *Debouncer) Run(ctx context.Context, fn func()) {
	timer := time.NewTimer(d.window)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.trigger:
			if !pending {
				timer.Reset(d.window)
				pending = true
			}
		case <-timer.C:
			pending = false
			fn()
		}
	}
}

// #endregion debouncer
