// Package journal implements the append-only JSON-lines logs: state log,
// decision log, and verification log. Every entry carries a monotonically
// increasing sequence number and the sha256 of the previous line, so each log
// is a tamper-evident chain. Entries are never rewritten; outcomes are
// recorded by appending follow-up records.
package journal

import "encoding/json"

// #region chain

// Chain is embedded by every log record. Seq and PrevHash are assigned by
// Log.Append; callers leave them zero.
type Chain struct {
	Seq      uint64 `json:"seq"`
	PrevHash string `json:"prev_hash"`
}

func (c *Chain) setChain(seq uint64, prevHash string) {
	c.Seq = seq
	c.PrevHash = prevHash
}

// chained is satisfied by any record embedding *Chain.
type chained interface {
	setChain(seq uint64, prevHash string)
}

// #endregion chain

// #region state-entry

// StateEntry is one observed reading pushed by an external layer.
// Direction values: "higher_better" | "lower_better".
type StateEntry struct {
	Chain
	Timestamp  string  `json:"ts"`
	Layer      string  `json:"layer"`
	Variable   string  `json:"variable"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit,omitempty"`
	Confidence float64 `json:"confidence"`
	Direction  string  `json:"direction"`
}

// #endregion state-entry

// #region decision-entry

// DecisionEntry is the durable audit record of one weaver cycle. All fields
// are structs and scalars (no map[string]any) so json.Marshal field order is
// deterministic for replay comparison. SelectedActionID is nil on NO_ACTION.
type DecisionEntry struct {
	Chain
	Timestamp        string          `json:"ts"`
	CycleID          string          `json:"cycle_id"`
	SelectedActionID *string         `json:"selected_action_id"`
	ScoreBreakdown   json.RawMessage `json:"score_breakdown"`
	ActiveObjectives []string        `json:"active_objectives"`
	ConfigHash       string          `json:"config_hash"`
	DispatchError    string          `json:"dispatch_error,omitempty"`
}

// #endregion decision-entry

// #region verification-entry

// Verification record kinds. A verification appears first as a scheduled
// record and later as exactly one outcome record; the schedule record is
// never mutated.
const (
	VerifyScheduled = "VERIFY_SCHEDULED"
	VerifyPassed    = "VERIFY_PASSED"
	VerifyFailed    = "VERIFY_FAILED"
)

// VerificationEntry is one verification lifecycle record.
type VerificationEntry struct {
	Chain
	Timestamp         string  `json:"ts"`
	Kind              string  `json:"kind"`
	ActionID          string  `json:"action_id"`
	CycleID           string  `json:"cycle_id"`
	Metric            string  `json:"metric"`
	BaselineValue     float64 `json:"baseline_value"`
	ScheduledDeadline string  `json:"scheduled_deadline"`
	ObservedValue     float64 `json:"observed_value,omitempty"`
	Delta             float64 `json:"delta,omitempty"`
	Passed            bool    `json:"passed,omitempty"`
	RollbackTriggered *bool   `json:"rollback_triggered,omitempty"`
	Reason            string  `json:"reason,omitempty"`
	ConfigHash        string  `json:"config_hash"`
}

// #endregion verification-entry
