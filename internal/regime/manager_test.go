package regime

import (
	"testing"
	"time"

	"github.com/danielpatrickdp/state-weaver/internal/config"
	"github.com/danielpatrickdp/state-weaver/internal/expr"
)

// helper: objective with a simple threshold condition.
func objective(t *testing.T, id, cond string, minActive, cooldown time.Duration) config.CompiledObjective {
	t.Helper()
	parsed, err := expr.Parse(cond)
	if err != nil {
		t.Fatalf("parse %q: %v", cond, err)
	}
	return config.CompiledObjective{
		ID:          id,
		Condition:   parsed,
		Variable:    "money.runway_days",
		TargetRange: [2]float64{60, 120},
		Weight:      1,
		MinActive:   minActive,
		Cooldown:    cooldown,
	}
}

func activeIDs(objs []config.CompiledObjective) []string {
	ids := make([]string, 0, len(objs))
	for _, o := range objs {
		ids = append(ids, o.ID)
	}
	return ids
}

// 1. Spec scenario: condition true at cycle 1 with min_duration_active=3600s,
// condition flips false 1s later → objective remains active through cycle 2.
func TestHysteresis_DwellHoldsThroughFalseCondition(t *testing.T) {
	m := NewManager([]config.CompiledObjective{
		objective(t, "runway", "money.runway_days < 30", 3600*time.Second, 30*time.Minute),
	})
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	active := m.Resolve(map[string]float64{"money.runway_days": 25}, t0)
	if len(active) != 1 {
		t.Fatalf("cycle 1: expected activation, got %v", activeIDs(active))
	}

	// Cycle 2, one second later, condition now false: dwell keeps it active.
	active = m.Resolve(map[string]float64{"money.runway_days": 90}, t0.Add(time.Second))
	if len(active) != 1 {
		t.Fatalf("cycle 2: expected objective held active by dwell, got %v", activeIDs(active))
	}

	// After the dwell elapses with the condition still false it deactivates.
	active = m.Resolve(map[string]float64{"money.runway_days": 90}, t0.Add(3601*time.Second))
	if len(active) != 0 {
		t.Fatalf("expected deactivation after dwell, got %v", activeIDs(active))
	}
}

// 2. Cooldown: once deactivated, a true condition cannot reactivate the
// objective until cooldown_after_exit has elapsed.
func TestHysteresis_CooldownBlocksReactivation(t *testing.T) {
	m := NewManager([]config.CompiledObjective{
		objective(t, "runway", "money.runway_days < 30", time.Minute, 30*time.Minute),
	})
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	low := map[string]float64{"money.runway_days": 10}
	high := map[string]float64{"money.runway_days": 90}

	m.Resolve(low, t0)                      // activate
	m.Resolve(high, t0.Add(2*time.Minute))  // deactivate (dwell elapsed)

	if got := m.Resolve(low, t0.Add(10*time.Minute)); len(got) != 0 {
		t.Fatalf("expected cooldown to block reactivation, got %v", activeIDs(got))
	}
	if got := m.Resolve(low, t0.Add(33*time.Minute)); len(got) != 1 {
		t.Fatalf("expected reactivation after cooldown, got %v", activeIDs(got))
	}
}

// 3. First activation has no cooldown gate.
func TestHysteresis_FirstActivationImmediate(t *testing.T) {
	m := NewManager([]config.CompiledObjective{
		objective(t, "runway", "money.runway_days < 30", time.Hour, 24*time.Hour),
	})
	got := m.Resolve(map[string]float64{"money.runway_days": 5}, time.Now())
	if len(got) != 1 {
		t.Fatal("expected immediate first activation")
	}
}

// 4. A false condition on an inactive objective does nothing; unknown
// variables fail closed and never activate.
func TestHysteresis_InactiveStaysInactive(t *testing.T) {
	m := NewManager([]config.CompiledObjective{
		objective(t, "runway", "money.runway_days < 30", time.Minute, time.Minute),
	})
	if got := m.Resolve(map[string]float64{"money.runway_days": 90}, time.Now()); len(got) != 0 {
		t.Fatalf("expected inactive, got %v", activeIDs(got))
	}
	if got := m.Resolve(map[string]float64{}, time.Now()); len(got) != 0 {
		t.Fatalf("expected unknown variable to fail closed, got %v", activeIDs(got))
	}
}

// 5. Active set is returned in ascending objective ID order.
func TestResolve_DeterministicOrder(t *testing.T) {
	m := NewManager([]config.CompiledObjective{
		objective(t, "a-first", "x < 10", time.Minute, time.Minute),
		objective(t, "b-second", "x < 10", time.Minute, time.Minute),
	})
	got := m.Resolve(map[string]float64{"x": 1}, time.Now())
	if len(got) != 2 || got[0].ID != "a-first" || got[1].ID != "b-second" {
		t.Fatalf("expected [a-first b-second], got %v", activeIDs(got))
	}
}

// 6. Replaying the same snapshot/timestamp sequence on a fresh manager
// reproduces identical transitions.
func TestResolve_ReplayIdentical(t *testing.T) {
	build := func() *Manager {
		return NewManager([]config.CompiledObjective{
			objective(t, "runway", "money.runway_days < 30", time.Hour, 30*time.Minute),
		})
	}
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	snapshots := []map[string]float64{
		{"money.runway_days": 10},
		{"money.runway_days": 50},
		{"money.runway_days": 10},
		{"money.runway_days": 80},
	}

	run := func(m *Manager) []int {
		var counts []int
		for i, snap := range snapshots {
			counts = append(counts, len(m.Resolve(snap, t0.Add(time.Duration(i)*2*time.Hour))))
		}
		return counts
	}

	first := run(build())
	second := run(build())
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("replay diverged at cycle %d: %v vs %v", i, first, second)
		}
	}
}
