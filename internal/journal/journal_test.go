package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	return l, path
}

func testDecision(cycleID string, actionID *string) *DecisionEntry {
	return &DecisionEntry{
		Timestamp:        time.Now().UTC().Format(time.RFC3339Nano),
		CycleID:          cycleID,
		SelectedActionID: actionID,
		ScoreBreakdown:   []byte(`[]`),
		ActiveObjectives: []string{"runway"},
		ConfigHash:       "sha256:abc",
	}
}

// 1. Sequential appends produce a valid chain with monotonic sequence numbers.
func TestAppend_ValidChain(t *testing.T) {
	l, path := newTestLog(t)
	id := "cut-spend"
	for i := 0; i < 5; i++ {
		if err := l.Append(testDecision("c1", &id)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	l.Close()

	result := VerifyChain(path)
	if !result.Valid {
		t.Fatalf("expected valid chain, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 5 {
		t.Fatalf("expected 5 lines, got %d", result.Lines)
	}

	entries, err := ReadDecisions(path)
	if err != nil {
		t.Fatal(err)
	}
	for i, e := range entries {
		if e.Seq != uint64(i+1) {
			t.Errorf("entry %d: seq = %d, want %d", i, e.Seq, i+1)
		}
	}
}

// 2. Reopening a log recovers the chain tail and sequence counter.
func TestOpen_RecoversTail(t *testing.T) {
	l, path := newTestLog(t)
	id := "a"
	l.Append(testDecision("c1", &id))
	l.Append(testDecision("c2", nil))
	l.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	l2.Append(testDecision("c3", &id))
	l2.Close()

	result := VerifyChain(path)
	if !result.Valid || result.Lines != 3 {
		t.Fatalf("expected valid 3-line chain after reopen, got %+v", result)
	}
	entries, _ := ReadDecisions(path)
	if entries[2].Seq != 3 {
		t.Errorf("expected seq 3 after reopen, got %d", entries[2].Seq)
	}
}

// 3. Tampering with any line breaks the chain at the following line.
func TestVerifyChain_DetectsTampering(t *testing.T) {
	l, path := newTestLog(t)
	id := "a"
	for i := 0; i < 3; i++ {
		l.Append(testDecision("c1", &id))
	}
	l.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	lines[1] = strings.Replace(lines[1], `"c1"`, `"cx"`, 1)
	os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600)

	result := VerifyChain(path)
	if result.Valid {
		t.Fatal("expected tampered chain to be invalid")
	}
	if result.ErrorLine != 3 {
		t.Fatalf("expected break at line 3, got %d", result.ErrorLine)
	}
}

// 4. A null selected_action_id round-trips as nil (NO_ACTION record).
func TestDecision_NullActionID(t *testing.T) {
	l, path := newTestLog(t)
	l.Append(testDecision("c1", nil))
	l.Close()

	entries, err := ReadDecisions(path)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].SelectedActionID != nil {
		t.Errorf("expected nil selected_action_id, got %v", *entries[0].SelectedActionID)
	}
}

// 5. Pending: scheduled verifications without outcomes survive; resolved
// ones are filtered, matched by (cycle_id, action_id).
func TestPending(t *testing.T) {
	no := false
	entries := []VerificationEntry{
		{Kind: VerifyScheduled, CycleID: "c1", ActionID: "a"},
		{Kind: VerifyScheduled, CycleID: "c2", ActionID: "a"},
		{Kind: VerifyPassed, CycleID: "c1", ActionID: "a", Passed: true, RollbackTriggered: &no},
	}
	pending := Pending(entries)
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(pending))
	}
	if pending[0].CycleID != "c2" {
		t.Errorf("expected c2 pending, got %s", pending[0].CycleID)
	}
}

// 6. Readers treat a missing log file as empty.
func TestRead_MissingFile(t *testing.T) {
	entries, err := ReadVerifications(filepath.Join(t.TempDir(), "absent.jsonl"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if entries != nil {
		t.Errorf("expected nil entries, got %v", entries)
	}
}
