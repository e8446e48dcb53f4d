// Package replay re-runs recorded snapshot sequences through the pure
// decision core and compares the results against expectations. Two runs over
// the same fixture must agree on every deterministic field; drift means a
// scoring, regime, or configuration change altered decision behavior.
package replay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/state-weaver/internal/config"
	"github.com/danielpatrickdp/state-weaver/internal/journal"
	"github.com/danielpatrickdp/state-weaver/internal/regime"
	"github.com/danielpatrickdp/state-weaver/internal/weaver"
)

// #region types

// Step is one recorded cycle input: the variable snapshot and the instant
// the cycle ran. Hysteresis depends on the timestamps, so they are part of
// the recording, not the replay.
type Step struct {
	At   time.Time
	Vars map[string]float64
}

// Result captures the deterministic decision fields for one replayed step.
type Result struct {
	At               time.Time
	SelectedActionID *string
	ActiveObjectives []string
	BreakdownJSON    json.RawMessage
	ConfigHash       string
}

// Summary aggregates a replay run.
type Summary struct {
	Steps        int
	Selections   int
	Suppressions int
}

// #endregion types

// #region replay

// Replay runs every step through regime resolution and scoring with a fresh
// hysteresis state, exactly as a process started at the first step would.
// Operates entirely in-memory.
func Replay(v *config.Validated, steps []Step) ([]Result, error) {
	mgr := regime.NewManager(v.Objectives)
	results := make([]Result, 0, len(steps))
	for i, s := range steps {
		out, err := weaver.Decide(v, mgr, s.Vars, s.At)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		results = append(results, Result{
			At:               s.At,
			SelectedActionID: out.SelectedActionID(),
			ActiveObjectives: out.ActiveIDs,
			BreakdownJSON:    out.BreakdownJSON,
			ConfigHash:       out.ConfigHash,
		})
	}
	return results, nil
}

// Run replays a fixture end to end and returns the results.
func Run(f *Fixture) ([]Result, error) {
	docs, err := config.Parse(f.Documents.Objectives, f.Documents.Coupling, f.Documents.Actions)
	if err != nil {
		return nil, fmt.Errorf("fixture documents: %w", err)
	}
	v, issues := docs.Validate()
	if v == nil {
		return nil, fmt.Errorf("fixture documents invalid: %d issues, first: %s", len(issues), issues[0])
	}
	steps, err := f.Steps()
	if err != nil {
		return nil, err
	}
	return Replay(v, steps)
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{Steps: len(results)}
	for _, r := range results {
		if r.SelectedActionID != nil {
			s.Selections++
		} else {
			s.Suppressions++
		}
	}
	return s
}

// #endregion replay

// #region compare

// Diff compares replay results against the fixture's expectations and
// returns one message per divergence.
func Diff(f *Fixture, results []Result) []string {
	var diffs []string
	if len(results) != len(f.Expected) {
		diffs = append(diffs, fmt.Sprintf("expected %d results, got %d", len(f.Expected), len(results)))
		return diffs
	}
	for i, want := range f.Expected {
		got := results[i]
		if !sameID(want.SelectedActionID, got.SelectedActionID) {
			diffs = append(diffs, fmt.Sprintf("step %d (%s): selected %s, want %s",
				i, want.At, idString(got.SelectedActionID), idString(want.SelectedActionID)))
		}
		if !sameStrings(want.ActiveObjectives, got.ActiveObjectives) {
			diffs = append(diffs, fmt.Sprintf("step %d (%s): active objectives %v, want %v",
				i, want.At, got.ActiveObjectives, want.ActiveObjectives))
		}
	}
	return diffs
}

// DiffLog compares replay results against recorded decision log entries,
// field by deterministic field. Runtime identity (cycle IDs, append
// timestamps) is not compared.
func DiffLog(decisions []journal.DecisionEntry, results []Result) []string {
	var diffs []string
	if len(results) != len(decisions) {
		diffs = append(diffs, fmt.Sprintf("log has %d decisions, replay produced %d", len(decisions), len(results)))
		return diffs
	}
	for i, want := range decisions {
		got := results[i]
		if !sameID(want.SelectedActionID, got.SelectedActionID) {
			diffs = append(diffs, fmt.Sprintf("decision %d: selected %s, want %s",
				i, idString(got.SelectedActionID), idString(want.SelectedActionID)))
		}
		if !sameStrings(want.ActiveObjectives, got.ActiveObjectives) {
			diffs = append(diffs, fmt.Sprintf("decision %d: active objectives %v, want %v",
				i, got.ActiveObjectives, want.ActiveObjectives))
		}
		if want.ConfigHash != got.ConfigHash {
			diffs = append(diffs, fmt.Sprintf("decision %d: config hash %s, want %s",
				i, got.ConfigHash, want.ConfigHash))
		}
		if !bytes.Equal(want.ScoreBreakdown, got.BreakdownJSON) {
			diffs = append(diffs, fmt.Sprintf("decision %d: score breakdown diverged", i))
		}
	}
	return diffs
}

func sameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func idString(id *string) string {
	if id == nil {
		return "<none>"
	}
	return *id
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// #endregion compare
