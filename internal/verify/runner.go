// Package verify implements the verification runner: for every dispatched
// action it captures a baseline, waits for the action's deadline, checks the
// observed delta against the target, and resolves the rollback spec on
// failure. The runner talks to the orchestrator only through the event bus
// and the logs.
package verify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/danielpatrickdp/state-weaver/internal/bus"
	"github.com/danielpatrickdp/state-weaver/internal/config"
	"github.com/danielpatrickdp/state-weaver/internal/journal"
)

// ReasonIncomplete marks a verification that could not be evaluated because
// the metric was unreadable at baseline or deadline time.
const ReasonIncomplete = "verification_incomplete"

// #region runner

// Config wires a Runner.
type Config struct {
	ConfigDir string
	Metrics   MetricSource
	Events    *bus.Bus
	Log       *journal.Log // verification log
}

// check is one in-flight verification, pinned at schedule time. Config
// reloads between scheduling and deadline do not change what is checked.
type check struct {
	cycleID       string
	actionID      string
	metric        string
	operator      string
	targetDelta   float64
	baseline      float64
	baselineKnown bool
	deadline      time.Time
	rollback      config.RollbackSpec
	configHash    string
}

// Runner schedules and evaluates verifications. A single goroutine owns the
// pending set and one timer armed for the earliest deadline; there is no
// per-verification goroutine and no polling.
type Runner struct {
	configDir string
	metrics   MetricSource
	events    *bus.Bus
	log       *journal.Log

	mu      sync.Mutex
	pending []check

	now func() time.Time
}

// NewRunner creates a verification runner.
func NewRunner(cfg Config) *Runner {
	return &Runner{
		configDir: cfg.ConfigDir,
		metrics:   cfg.Metrics,
		events:    cfg.Events,
		log:       cfg.Log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// #endregion runner

// #region restore

// Restore rebuilds the pending set from the verification log: every
// scheduled record without an outcome record becomes an in-flight check
// again. Deadlines that passed while the process was down are evaluated on
// the next timer fire. Call before Run.
func (r *Runner) Restore() error {
	entries, err := journal.ReadVerifications(r.log.Path())
	if err != nil {
		return fmt.Errorf("read verification log: %w", err)
	}
	open := journal.Pending(entries)
	if len(open) == 0 {
		return nil
	}

	docs, err := config.Load(r.configDir)
	if err != nil {
		return fmt.Errorf("load config for restore: %w", err)
	}
	v, issues := docs.Validate()
	if v == nil {
		return fmt.Errorf("config invalid during restore: %d issues", len(issues))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range open {
		deadline, err := time.Parse(time.RFC3339Nano, e.ScheduledDeadline)
		if err != nil {
			log.Printf("[VERIFY] restore: bad deadline on %s/%s: %v", e.CycleID, e.ActionID, err)
			continue
		}
		action, ok := v.FindAction(e.ActionID)
		if !ok {
			// The catalog no longer carries the action; the check cannot be
			// completed. Close it out rather than leaving it open forever.
			r.appendOutcomeLocked(check{
				cycleID: e.CycleID, actionID: e.ActionID, metric: e.Metric,
				baseline: e.BaselineValue, configHash: e.ConfigHash,
				rollback: config.RollbackSpec{Type: config.RollbackNone},
			}, 0, false, false, "action no longer in catalog")
			continue
		}
		r.pending = append(r.pending, check{
			cycleID:       e.CycleID,
			actionID:      e.ActionID,
			metric:        e.Metric,
			operator:      action.Verification.Operator,
			targetDelta:   action.Verification.TargetDelta,
			baseline:      e.BaselineValue,
			baselineKnown: e.Reason != ReasonIncomplete,
			deadline:      deadline,
			rollback:      action.Rollback,
			configHash:    e.ConfigHash,
		})
	}
	log.Printf("[VERIFY] restored %d pending verifications", len(r.pending))
	return nil
}

// #endregion restore

// #region run

// Run consumes ACTION_SELECTED events and fires due checks until ctx ends.
func (r *Runner) Run(ctx context.Context) {
	ch, cancel := r.events.Subscribe(64)
	defer cancel()

	for {
		var timerC <-chan time.Time
		var timer *time.Timer
		if next, ok := r.nextDeadline(); ok {
			wait := next.Sub(r.now())
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type == bus.ActionSelected {
				r.schedule(ev)
			}
		case <-timerC:
			r.runDue()
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (r *Runner) nextDeadline() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next time.Time
	for _, c := range r.pending {
		if next.IsZero() || c.deadline.Before(next) {
			next = c.deadline
		}
	}
	return next, !next.IsZero()
}

// #endregion run

// #region schedule

// schedule pins the verification spec for a freshly dispatched action,
// captures the baseline, and appends the scheduled record.
func (r *Runner) schedule(ev bus.Event) {
	docs, err := config.Load(r.configDir)
	if err != nil {
		log.Printf("[VERIFY] cannot load config for %s/%s: %v", ev.CycleID, ev.ActionID, err)
		return
	}
	v, issues := docs.Validate()
	if v == nil {
		log.Printf("[VERIFY] config invalid for %s/%s: %d issues", ev.CycleID, ev.ActionID, len(issues))
		return
	}
	action, ok := v.FindAction(ev.ActionID)
	if !ok {
		log.Printf("[VERIFY] selected action %s not in catalog", ev.ActionID)
		return
	}

	baseline, known, err := r.metrics.Latest(action.Verification.Metric)
	if err != nil {
		log.Printf("[VERIFY] baseline read for %s failed: %v", action.Verification.Metric, err)
		known = false
	}

	now := r.now()
	deadline := now.Add(config.VerificationDeadline(action))
	c := check{
		cycleID:       ev.CycleID,
		actionID:      action.ID,
		metric:        action.Verification.Metric,
		operator:      action.Verification.Operator,
		targetDelta:   action.Verification.TargetDelta,
		baseline:      baseline,
		baselineKnown: known,
		deadline:      deadline,
		rollback:      action.Rollback,
		configHash:    ev.ConfigHash,
	}

	entry := &journal.VerificationEntry{
		Timestamp:         now.Format(time.RFC3339Nano),
		Kind:              journal.VerifyScheduled,
		ActionID:          c.actionID,
		CycleID:           c.cycleID,
		Metric:            c.metric,
		BaselineValue:     c.baseline,
		ScheduledDeadline: deadline.Format(time.RFC3339Nano),
		ConfigHash:        c.configHash,
	}
	if !known {
		entry.Reason = ReasonIncomplete
	}
	if err := r.log.Append(entry); err != nil {
		log.Printf("[VERIFY] append scheduled record: %v", err)
		return
	}

	r.mu.Lock()
	r.pending = append(r.pending, c)
	r.mu.Unlock()

	log.Printf("[VERIFY] scheduled %s for cycle %s: %s %s %g by %s",
		c.actionID, c.cycleID, c.metric, c.operator, c.targetDelta,
		deadline.Format(time.RFC3339))
	r.events.Publish(bus.Event{
		Type: bus.VerifyScheduled, CycleID: c.cycleID,
		ActionID: c.actionID, ConfigHash: c.configHash,
	})
}

// #endregion schedule

// #region evaluate

// runDue evaluates every check whose deadline has arrived.
func (r *Runner) runDue() {
	now := r.now()
	r.mu.Lock()
	var due []check
	rest := r.pending[:0]
	for _, c := range r.pending {
		if !c.deadline.After(now) {
			due = append(due, c)
		} else {
			rest = append(rest, c)
		}
	}
	r.pending = rest
	r.mu.Unlock()

	for _, c := range due {
		r.evaluate(c)
	}
}

// evaluate reads the metric, applies the verification law, appends the
// outcome record, and emits the pass/fail event plus at most one rollback.
func (r *Runner) evaluate(c check) {
	observed, ok, err := r.metrics.Latest(c.metric)
	if err != nil {
		log.Printf("[VERIFY] deadline read for %s failed: %v", c.metric, err)
		ok = false
	}

	var delta float64
	var passed bool
	reason := ""
	if !ok || !c.baselineKnown {
		passed = false
		reason = ReasonIncomplete
	} else {
		delta = observed - c.baseline
		passed = holds(delta, c.operator, c.targetDelta)
	}

	rolledBack := false
	if !passed {
		rolledBack = r.triggerRollback(c)
	}

	r.mu.Lock()
	r.appendOutcomeLocked(c, observed, passed, rolledBack, reason)
	r.mu.Unlock()

	if passed {
		log.Printf("[VERIFY] %s cycle %s: PASSED (delta=%g %s %g)",
			c.actionID, c.cycleID, delta, c.operator, c.targetDelta)
		r.events.Publish(bus.Event{
			Type: bus.VerifyPassed, CycleID: c.cycleID,
			ActionID: c.actionID, ConfigHash: c.configHash,
		})
		return
	}
	log.Printf("[VERIFY] %s cycle %s: FAILED (delta=%g %s %g, reason=%q)",
		c.actionID, c.cycleID, delta, c.operator, c.targetDelta, reason)
	r.events.Publish(bus.Event{
		Type: bus.VerifyFailed, CycleID: c.cycleID,
		ActionID: c.actionID, ConfigHash: c.configHash, Reason: reason,
	})
}

// appendOutcomeLocked writes the pass/fail follow-up record. The scheduled
// record is never touched.
func (r *Runner) appendOutcomeLocked(c check, observed float64, passed, rolledBack bool, reason string) {
	kind := journal.VerifyFailed
	if passed {
		kind = journal.VerifyPassed
	}
	entry := &journal.VerificationEntry{
		Timestamp:         r.now().Format(time.RFC3339Nano),
		Kind:              kind,
		ActionID:          c.actionID,
		CycleID:           c.cycleID,
		Metric:            c.metric,
		BaselineValue:     c.baseline,
		ScheduledDeadline: c.deadline.Format(time.RFC3339Nano),
		ObservedValue:     observed,
		Delta:             observed - c.baseline,
		Passed:            passed,
		RollbackTriggered: &rolledBack,
		Reason:            reason,
		ConfigHash:        c.configHash,
	}
	if err := r.log.Append(entry); err != nil {
		log.Printf("[VERIFY] append outcome record: %v", err)
	}
}

// triggerRollback resolves the rollback spec for a failed verification.
// Emits at most one ROLLBACK_TRIGGERED event; the referenced action flows
// through the normal dispatch path on a later cycle.
func (r *Runner) triggerRollback(c check) bool {
	switch c.rollback.Type {
	case config.RollbackNone, "":
		return false
	case config.RollbackInstruction:
		r.events.Publish(bus.Event{
			Type: bus.RollbackTriggered, CycleID: c.cycleID,
			ActionID: c.actionID, ConfigHash: c.configHash,
			Rollback: &bus.RollbackInfo{
				Type:        config.RollbackInstruction,
				Instruction: c.rollback.Instruction,
			},
		})
		return true
	case config.RollbackActionRef:
		if !r.resolveRef(c.rollback.ActionRef) {
			log.Printf("[VERIFY] rollback ref %q for %s is unresolvable", c.rollback.ActionRef, c.actionID)
			return false
		}
		r.events.Publish(bus.Event{
			Type: bus.RollbackTriggered, CycleID: c.cycleID,
			ActionID: c.actionID, ConfigHash: c.configHash,
			Rollback: &bus.RollbackInfo{
				Type:      config.RollbackActionRef,
				ActionRef: c.rollback.ActionRef,
			},
		})
		return true
	default:
		log.Printf("[VERIFY] unknown rollback type %q for %s", c.rollback.Type, c.actionID)
		return false
	}
}

// resolveRef checks the rollback target against the current catalog.
func (r *Runner) resolveRef(ref string) bool {
	docs, err := config.Load(r.configDir)
	if err != nil {
		return false
	}
	v, _ := docs.Validate()
	if v == nil {
		return false
	}
	_, ok := v.FindAction(ref)
	return ok
}

// holds applies the verification comparison.
func holds(delta float64, operator string, target float64) bool {
	switch operator {
	case "<":
		return delta < target
	case "<=":
		return delta <= target
	case ">":
		return delta > target
	case ">=":
		return delta >= target
	case "==":
		return delta == target
	case "!=":
		return delta != target
	default:
		return false
	}
}

// #endregion evaluate
