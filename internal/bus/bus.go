// Package bus carries the weaver lifecycle event stream. It is the only
// channel through which the cycle orchestrator and the verification runner
// communicate; they share no in-memory mutable state. The debouncer collapses
// bursts of external triggers into single cycle invocations.
package bus

import (
	"sync"
	"sync/atomic"
	"time"
)

// #region events

// Type enumerates the closed set of lifecycle events.
type Type string

const (
	CycleStarted      Type = "WEAVER_CYCLE_STARTED"
	CycleCompleted    Type = "WEAVER_CYCLE_COMPLETED"
	CycleError        Type = "CYCLE_ERROR"
	ConfigInvalid     Type = "CONFIG_INVALID"
	ActionSelected    Type = "ACTION_SELECTED"
	NoAction          Type = "NO_ACTION"
	VerifyScheduled   Type = "VERIFY_SCHEDULED"
	VerifyPassed      Type = "VERIFY_PASSED"
	VerifyFailed      Type = "VERIFY_FAILED"
	RollbackTriggered Type = "ROLLBACK_TRIGGERED"
)

// RollbackInfo is attached to ROLLBACK_TRIGGERED events.
type RollbackInfo struct {
	Type        string // action_ref | instruction
	ActionRef   string // resolved rollback action, for action_ref
	Instruction string // verbatim remediation text, for instruction
}

// Event is one lifecycle event. Fields beyond Type and Timestamp are
// populated per event kind.
type Event struct {
	Type       Type
	Timestamp  time.Time
	CycleID    string
	ActionID   string
	ConfigHash string
	Reason     string
	Errors     []string      // CONFIG_INVALID: the full validation issue list
	Rollback   *RollbackInfo // ROLLBACK_TRIGGERED only
}

// #endregion events

// #region bus

// Bus is a fan-out publish/subscribe channel. Publish never blocks: a
// subscriber that falls behind loses events (counted in Dropped) rather than
// stalling the control loop.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	dropped atomic.Uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given channel buffer and returns
// the receive channel plus an unsubscribe function. Unsubscribing closes the
// channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber, stamping the timestamp if
// unset.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many events were discarded due to slow subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// #endregion bus
