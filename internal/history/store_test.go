package history

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/state-weaver/internal/journal"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func decisionEntry(seq uint64, cycle string, selected *string) journal.DecisionEntry {
	e := journal.DecisionEntry{
		Timestamp:        time.Now().UTC().Format(time.RFC3339Nano),
		CycleID:          cycle,
		SelectedActionID: selected,
		ScoreBreakdown:   json.RawMessage(`[]`),
		ActiveObjectives: []string{"runway"},
		ConfigHash:       "sha256:x",
	}
	e.Seq = seq
	return e
}

func boolPtr(b bool) *bool { return &b }

// 1. Indexing is idempotent: re-indexing the same records inserts nothing.
func TestIndexDecisions_Idempotent(t *testing.T) {
	s := openStore(t)
	id := "cut-spend"
	entries := []journal.DecisionEntry{
		decisionEntry(1, "c1", &id),
		decisionEntry(2, "c2", nil),
	}

	n, err := s.IndexDecisions(entries)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 inserts, got %d", n)
	}

	n, err = s.IndexDecisions(entries)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("re-index must insert nothing, got %d", n)
	}
}

// 2. RecentDecisions round-trips nullable selection and the objective list.
func TestRecentDecisions(t *testing.T) {
	s := openStore(t)
	id := "cut-spend"
	if _, err := s.IndexDecisions([]journal.DecisionEntry{
		decisionEntry(1, "c1", &id),
		decisionEntry(2, "c2", nil),
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.RecentDecisions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(got))
	}
	// Newest first.
	if got[0].Seq != 2 || got[0].SelectedActionID != nil {
		t.Errorf("unexpected first row: %+v", got[0])
	}
	if got[1].SelectedActionID == nil || *got[1].SelectedActionID != "cut-spend" {
		t.Errorf("unexpected second row: %+v", got[1])
	}
	if len(got[0].ActiveObjectives) != 1 || got[0].ActiveObjectives[0] != "runway" {
		t.Errorf("objective list lost: %+v", got[0].ActiveObjectives)
	}
}

// 3. Verification aggregation per action.
func TestOutcomesByAction(t *testing.T) {
	s := openStore(t)
	mk := func(seq uint64, kind, action string, rolledBack *bool) journal.VerificationEntry {
		e := journal.VerificationEntry{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Kind:      kind, ActionID: action, CycleID: "c",
			Metric: "m", ScheduledDeadline: "2026-03-01T16:00:00Z",
			RollbackTriggered: rolledBack, ConfigHash: "sha256:x",
		}
		e.Seq = seq
		return e
	}
	if _, err := s.IndexVerifications([]journal.VerificationEntry{
		mk(1, journal.VerifyScheduled, "cut-spend", nil),
		mk(2, journal.VerifyFailed, "cut-spend", boolPtr(true)),
		mk(3, journal.VerifyScheduled, "cut-spend", nil),
		mk(4, journal.VerifyPassed, "cut-spend", boolPtr(false)),
	}); err != nil {
		t.Fatal(err)
	}

	out, err := s.OutcomesByAction()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 action, got %d", len(out))
	}
	o := out[0]
	if o.Scheduled != 2 || o.Passed != 1 || o.Failed != 1 || o.Rollbacks != 1 {
		t.Errorf("unexpected outcomes: %+v", o)
	}
}

// 4. Sync reads both logs from disk and fills the index.
func TestSync(t *testing.T) {
	dir := t.TempDir()
	decPath := filepath.Join(dir, journal.DecisionLogFile)
	verPath := filepath.Join(dir, journal.VerificationLogFile)

	dlog, err := journal.Open(decPath)
	if err != nil {
		t.Fatal(err)
	}
	id := "cut-spend"
	e := decisionEntry(0, "c1", &id)
	if err := dlog.Append(&e); err != nil {
		t.Fatal(err)
	}
	dlog.Close()

	vlog, err := journal.Open(verPath)
	if err != nil {
		t.Fatal(err)
	}
	ve := journal.VerificationEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Kind:      journal.VerifyScheduled, ActionID: "cut-spend", CycleID: "c1",
		Metric: "m", ScheduledDeadline: "2026-03-01T16:00:00Z", ConfigHash: "sha256:x",
	}
	if err := vlog.Append(&ve); err != nil {
		t.Fatal(err)
	}
	vlog.Close()

	s := openStore(t)
	decisions, verifications, err := s.Sync(decPath, verPath)
	if err != nil {
		t.Fatal(err)
	}
	if decisions != 1 || verifications != 1 {
		t.Errorf("expected 1+1 indexed, got %d+%d", decisions, verifications)
	}

	sum, err := s.Summarize()
	if err != nil {
		t.Fatal(err)
	}
	if sum.Decisions != 1 || sum.Selections != 1 || sum.Suppressions != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}
