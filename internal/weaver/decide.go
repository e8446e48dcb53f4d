package weaver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/state-weaver/internal/config"
	"github.com/danielpatrickdp/state-weaver/internal/regime"
	"github.com/danielpatrickdp/state-weaver/internal/scoring"
)

// #region outcome

// Outcome is the deterministic product of one cycle's decision stage: given
// the same variable snapshot, configuration, and timestamp, every field here
// is byte-for-byte reproducible. Runtime identity (cycle ID, wall-clock
// append time) is deliberately outside this struct.
type Outcome struct {
	Selection     scoring.Selection
	ActiveIDs     []string
	BreakdownJSON json.RawMessage
	ConfigHash    string
}

// SelectedActionID returns the chosen action ID, or nil on suppression.
// This is exactly the value recorded in the decision log.
func (o Outcome) SelectedActionID() *string {
	if o.Selection.Suppressed || o.Selection.Selected == nil {
		return nil
	}
	id := o.Selection.Selected.ActionID
	return &id
}

// #endregion outcome

// #region decide

// Decide runs the pure decision core: regime resolution, scoring, and
// select-or-suppress. It touches no clock, filesystem, or randomness beyond
// the caller-supplied now; the regime manager's hysteresis state advances as
// a deterministic function of (vars, now) sequences.
func Decide(v *config.Validated, mgr *regime.Manager, vars map[string]float64, now time.Time) (Outcome, error) {
	active := mgr.Resolve(vars, now)

	engine := scoring.NewEngine(v.Weights, v.Edges)
	sel := engine.Decide(v.Actions, active, vars)

	activeIDs := make([]string, 0, len(active))
	for _, o := range active {
		activeIDs = append(activeIDs, o.ID)
	}

	breakdown, err := json.Marshal(sel.Breakdowns)
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal score breakdown: %w", err)
	}

	return Outcome{
		Selection:     sel,
		ActiveIDs:     activeIDs,
		BreakdownJSON: breakdown,
		ConfigHash:    v.Hash,
	}, nil
}

// #endregion decide
