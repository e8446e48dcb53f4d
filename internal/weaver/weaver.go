package weaver

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/state-weaver/internal/bus"
	"github.com/danielpatrickdp/state-weaver/internal/config"
	"github.com/danielpatrickdp/state-weaver/internal/journal"
	"github.com/danielpatrickdp/state-weaver/internal/regime"
)

// #region orchestrator

// Config wires an Orchestrator.
type Config struct {
	ConfigDir    string
	Layers       []Layer
	Dispatcher   Dispatcher
	Events       *bus.Bus
	StateLog     *journal.Log
	DecisionLog  *journal.Log
	LayerTimeout time.Duration
}

// Orchestrator runs weaver cycles. It is the single writer of the state and
// decision logs; the verification runner communicates with it only through
// the event bus and the logs.
type Orchestrator struct {
	configDir    string
	layers       []Layer
	dispatcher   Dispatcher
	events       *bus.Bus
	stateLog     *journal.Log
	decisionLog  *journal.Log
	layerTimeout time.Duration

	// Hysteresis state survives cycles under an unchanged config hash; a
	// changed document set rebuilds the per-objective state machines.
	mgr     *regime.Manager
	mgrHash string

	now func() time.Time
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	timeout := cfg.LayerTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Orchestrator{
		configDir:    cfg.ConfigDir,
		layers:       cfg.Layers,
		dispatcher:   cfg.Dispatcher,
		events:       cfg.Events,
		stateLog:     cfg.StateLog,
		decisionLog:  cfg.DecisionLog,
		layerTimeout: timeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// #endregion orchestrator

// #region run-cycle

// RunCycle executes one full cycle: validate configuration, collect state,
// resolve regimes, score, select or suppress, dispatch, and append the
// decision record. Configuration violations abort the cycle before any log
// is touched. Collection and dispatch failures degrade the cycle; nothing in
// here is allowed to crash the host process.
func (o *Orchestrator) RunCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
			log.Printf("[WEAVER] %v", err)
			o.events.Publish(bus.Event{Type: bus.CycleError, Reason: err.Error()})
		}
	}()

	// 1. Configuration gate: must not proceed on any violation.
	docs, err := config.Load(o.configDir)
	if err != nil {
		o.events.Publish(bus.Event{Type: bus.ConfigInvalid, Errors: []string{err.Error()}})
		return fmt.Errorf("load config: %w", err)
	}
	v, issues := docs.Validate()
	if v == nil {
		log.Printf("[WEAVER] config invalid: %d issues, cycle aborted", len(issues))
		o.events.Publish(bus.Event{Type: bus.ConfigInvalid, Errors: issues, ConfigHash: docs.Hash})
		return fmt.Errorf("config invalid: %d issues", len(issues))
	}
	if o.mgr == nil || o.mgrHash != v.Hash {
		o.mgr = regime.NewManager(v.Objectives)
		o.mgrHash = v.Hash
	}

	cycleID := uuid.New().String()
	now := o.now()
	o.events.Publish(bus.Event{Type: bus.CycleStarted, CycleID: cycleID, ConfigHash: v.Hash})
	defer o.events.Publish(bus.Event{Type: bus.CycleCompleted, CycleID: cycleID, ConfigHash: v.Hash})

	// 2. Collect state from all registered layers.
	snap := o.collect(ctx, now)
	for _, r := range snap.Records {
		entry := &journal.StateEntry{
			Timestamp:  r.Timestamp.Format(time.RFC3339Nano),
			Layer:      r.Layer,
			Variable:   r.Variable,
			Value:      r.Value,
			Unit:       r.Unit,
			Confidence: r.Confidence,
			Direction:  r.Direction,
		}
		if err := o.stateLog.Append(entry); err != nil {
			log.Printf("[WEAVER] state log append failed: %v", err)
		}
	}

	// 3-5. Regimes, scoring, select-or-suppress: the pure decision core.
	outcome, err := Decide(v, o.mgr, snap.Vars, now)
	if err != nil {
		o.events.Publish(bus.Event{Type: bus.CycleError, CycleID: cycleID, Reason: err.Error()})
		return err
	}

	entry := &journal.DecisionEntry{
		Timestamp:        now.Format(time.RFC3339Nano),
		CycleID:          cycleID,
		SelectedActionID: outcome.SelectedActionID(),
		ScoreBreakdown:   outcome.BreakdownJSON,
		ActiveObjectives: outcome.ActiveIDs,
		ConfigHash:       outcome.ConfigHash,
	}

	// 6. Suppression: record the null decision and stop.
	if outcome.Selection.Suppressed {
		if err := o.decisionLog.Append(entry); err != nil {
			return fmt.Errorf("append decision: %w", err)
		}
		log.Printf("[WEAVER] cycle %s: NO_ACTION (%s)", cycleID, outcome.Selection.Reason)
		o.events.Publish(bus.Event{
			Type: bus.NoAction, CycleID: cycleID,
			ConfigHash: v.Hash, Reason: outcome.Selection.Reason,
		})
		return nil
	}

	// 7. Dispatch through the adapter, then record. A rejected or failed
	// dispatch is recorded with the error so the decision never claims
	// success, and no verification is scheduled for it.
	selected, _ := v.FindAction(outcome.Selection.Selected.ActionID)
	ack, dispatchErr := o.dispatcher.Dispatch(ctx, selected)
	if dispatchErr == nil && !ack.Accepted {
		dispatchErr = fmt.Errorf("adapter rejected action: %s", ack.Detail)
	}
	if dispatchErr != nil {
		entry.DispatchError = dispatchErr.Error()
		if err := o.decisionLog.Append(entry); err != nil {
			return fmt.Errorf("append decision: %w", err)
		}
		log.Printf("[WEAVER] cycle %s: dispatch of %s failed: %v", cycleID, selected.ID, dispatchErr)
		o.events.Publish(bus.Event{
			Type: bus.CycleError, CycleID: cycleID, ActionID: selected.ID,
			ConfigHash: v.Hash, Reason: dispatchErr.Error(),
		})
		return nil
	}

	if err := o.decisionLog.Append(entry); err != nil {
		return fmt.Errorf("append decision: %w", err)
	}
	log.Printf("[WEAVER] cycle %s: selected %s (score=%.4f)",
		cycleID, selected.ID, outcome.Selection.Selected.Score)
	o.events.Publish(bus.Event{
		Type: bus.ActionSelected, CycleID: cycleID,
		ActionID: selected.ID, ConfigHash: v.Hash,
	})
	return nil
}

// #endregion run-cycle

// #region collect

// collect gathers records from every layer under the per-layer timeout. A
// failing layer degrades the snapshot instead of aborting the cycle.
func (o *Orchestrator) collect(ctx context.Context, now time.Time) Snapshot {
	vars := make(map[string]float64)
	var records []StateRecord
	for _, layer := range o.layers {
		lctx, cancel := context.WithTimeout(ctx, o.layerTimeout)
		recs, err := layer.Collect(lctx)
		cancel()
		if err != nil {
			log.Printf("[WEAVER] layer %s: collection failed, proceeding with partial state: %v",
				layer.Name(), err)
			continue
		}
		for _, r := range recs {
			if r.Timestamp.IsZero() {
				r.Timestamp = now
			}
			records = append(records, r)
			vars[r.Variable] = r.Value
		}
	}
	return Snapshot{Records: records, Vars: vars, TakenAt: now}
}

// #endregion collect
