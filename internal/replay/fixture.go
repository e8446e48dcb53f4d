package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: the three
// configuration documents embedded byte-for-byte, a sequence of variable
// snapshots, and the decisions each snapshot must produce.
type Fixture struct {
	Description string            `json:"description"`
	Documents   FixtureDocuments  `json:"documents"`
	Snapshots   []FixtureSnapshot `json:"snapshots"`
	Expected    []FixtureExpected `json:"expected"`
}

// FixtureDocuments embeds the raw configuration documents. Raw bytes matter:
// the config hash is computed over them exactly as they appear here.
type FixtureDocuments struct {
	Objectives json.RawMessage `json:"objectives"`
	Coupling   json.RawMessage `json:"coupling"`
	Actions    json.RawMessage `json:"actions"`
}

// FixtureSnapshot is one recorded cycle input.
type FixtureSnapshot struct {
	At   string             `json:"at"` // RFC3339
	Vars map[string]float64 `json:"vars"`
}

// FixtureExpected captures the decision a snapshot must reproduce.
// SelectedActionID is null for an expected suppression.
type FixtureExpected struct {
	At               string   `json:"at"`
	SelectedActionID *string  `json:"selected_action_id"`
	ActiveObjectives []string `json:"active_objectives"`
}

// #endregion fixture-types

// #region load

// LoadFixture reads and parses a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if len(f.Snapshots) == 0 {
		return nil, fmt.Errorf("fixture has no snapshots")
	}
	return &f, nil
}

// Steps converts the fixture snapshots to harness steps.
func (f *Fixture) Steps() ([]Step, error) {
	steps := make([]Step, 0, len(f.Snapshots))
	for i, s := range f.Snapshots {
		at, err := time.Parse(time.RFC3339Nano, s.At)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d: bad timestamp: %w", i, err)
		}
		steps = append(steps, Step{At: at, Vars: s.Vars})
	}
	return steps, nil
}

// #endregion load
