package replay

import (
	"path/filepath"
	"testing"
)

// #region fixture-tests

// TestFixture_CrisisWindow loads the crisis_window fixture, replays it, and
// compares every step against the expected decisions. This is the primary
// regression test: if scoring weights, benefit interpolation, or hysteresis
// timing change behavior, this catches the drift.
func TestFixture_CrisisWindow(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "crisis_window.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	results, err := Run(f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, diff := range Diff(f, results) {
		t.Error(diff)
	}

	s := Summarize(results)
	if s.Steps != 3 || s.Selections != 1 || s.Suppressions != 2 {
		t.Errorf("unexpected summary: %+v", s)
	}
}

// TestLoadFixture_Errors rejects missing and empty fixtures.
func TestLoadFixture_Errors(t *testing.T) {
	if _, err := LoadFixture(filepath.Join("testdata", "missing.json")); err == nil {
		t.Error("expected error for missing fixture")
	}
}

// #endregion fixture-tests
