// Package regime tracks objective activation with hysteresis. Each objective
// is a two-state machine (INACTIVE ↔ ACTIVE) with a minimum dwell time before
// deactivation and a cooldown before reactivation, preventing flapping when a
// borderline metric crosses its threshold repeatedly.
package regime

import (
	"time"

	"github.com/danielpatrickdp/state-weaver/internal/config"
)

// #region state

// objectiveState holds the explicit hysteresis timers for one objective.
// Timers are recorded timestamps, not wall-clock polls, so replaying against
// historical snapshots reproduces identical transitions.
type objectiveState struct {
	active        bool
	everActivated bool
	activatedAt   time.Time
	deactivatedAt time.Time
}

// Manager resolves the active objective set per cycle.
type Manager struct {
	objectives []config.CompiledObjective
	states     map[string]*objectiveState
}

// NewManager creates a manager for a validated objective set. Objectives are
// expected in the sorted order produced by config.Validate.
func NewManager(objectives []config.CompiledObjective) *Manager {
	states := make(map[string]*objectiveState, len(objectives))
	for _, o := range objectives {
		states[o.ID] = &objectiveState{}
	}
	return &Manager{objectives: objectives, states: states}
}

// #endregion state

// #region resolve

// Resolve advances every objective's state machine against the variable
// snapshot at time now and returns the currently active objectives in
// ascending ID order.
//
// Transition rules:
//   - INACTIVE → ACTIVE: condition true, and never activated before or
//     cooldown elapsed since last deactivation.
//   - ACTIVE stays ACTIVE (even when the condition is false) until
//     min_duration_active has elapsed since activation.
//   - ACTIVE → INACTIVE: condition false and dwell time elapsed.
func (m *Manager) Resolve(vars map[string]float64, now time.Time) []config.CompiledObjective {
	var active []config.CompiledObjective
	for _, o := range m.objectives {
		st := m.states[o.ID]
		holds := o.Condition.Eval(vars)

		if st.active {
			dwellElapsed := now.Sub(st.activatedAt) >= o.MinActive
			if !holds && dwellElapsed {
				st.active = false
				st.deactivatedAt = now
			}
		} else if holds {
			cooledDown := !st.everActivated || now.Sub(st.deactivatedAt) >= o.Cooldown
			if cooledDown {
				st.active = true
				st.everActivated = true
				st.activatedAt = now
			}
		}

		if st.active {
			active = append(active, o)
		}
	}
	return active
}

// #endregion resolve

// #region introspection

// ActiveIDs returns the IDs of currently active objectives without advancing
// any state machine.
func (m *Manager) ActiveIDs() []string {
	var ids []string
	for _, o := range m.objectives {
		if m.states[o.ID].active {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// ActivatedAt reports when the named objective last activated; the zero time
// and false when it is not currently active.
func (m *Manager) ActivatedAt(id string) (time.Time, bool) {
	st, ok := m.states[id]
	if !ok || !st.active {
		return time.Time{}, false
	}
	return st.activatedAt, true
}

// #endregion introspection
