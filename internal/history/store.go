// Package history maintains a queryable SQLite index over the append-only
// logs. The logs stay the source of truth; the index is derived, rebuildable
// at any time, and exists so operators can ask questions (recent decisions,
// per-action outcomes) without scanning JSONL by hand.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/state-weaver/internal/journal"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	seq                INTEGER PRIMARY KEY,
	ts                 TEXT NOT NULL,
	cycle_id           TEXT NOT NULL,
	selected_action_id TEXT,
	active_objectives  TEXT NOT NULL,
	score_breakdown    TEXT NOT NULL,
	config_hash        TEXT NOT NULL,
	dispatch_error     TEXT
);

CREATE TABLE IF NOT EXISTS verifications (
	seq                INTEGER PRIMARY KEY,
	ts                 TEXT NOT NULL,
	kind               TEXT NOT NULL,
	action_id          TEXT NOT NULL,
	cycle_id           TEXT NOT NULL,
	metric             TEXT NOT NULL,
	baseline_value     REAL NOT NULL,
	scheduled_deadline TEXT NOT NULL,
	observed_value     REAL,
	delta              REAL,
	passed             INTEGER,
	rollback_triggered INTEGER,
	reason             TEXT,
	config_hash        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_action ON decisions(selected_action_id);
CREATE INDEX IF NOT EXISTS idx_verifications_action ON verifications(action_id);
`

// #endregion schema

// #region store

// Store is the SQLite index over the decision and verification logs.
type Store struct {
	db *sql.DB
}

// NewStore opens the index database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion store

// #region index

// IndexDecisions upserts decision records by sequence number and reports how
// many were new. Re-indexing an already indexed log is a no-op.
func (s *Store) IndexDecisions(entries []journal.DecisionEntry) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, e := range entries {
		objectives, err := json.Marshal(e.ActiveObjectives)
		if err != nil {
			return 0, fmt.Errorf("marshal objectives: %w", err)
		}
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO decisions
			 (seq, ts, cycle_id, selected_action_id, active_objectives, score_breakdown, config_hash, dispatch_error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Seq, e.Timestamp, e.CycleID, e.SelectedActionID,
			string(objectives), string(e.ScoreBreakdown), e.ConfigHash, nullable(e.DispatchError),
		)
		if err != nil {
			return 0, fmt.Errorf("insert decision seq %d: %w", e.Seq, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// IndexVerifications upserts verification records by sequence number.
func (s *Store) IndexVerifications(entries []journal.VerificationEntry) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, e := range entries {
		var rolledBack interface{}
		if e.RollbackTriggered != nil {
			rolledBack = *e.RollbackTriggered
		}
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO verifications
			 (seq, ts, kind, action_id, cycle_id, metric, baseline_value, scheduled_deadline,
			  observed_value, delta, passed, rollback_triggered, reason, config_hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Seq, e.Timestamp, e.Kind, e.ActionID, e.CycleID, e.Metric,
			e.BaselineValue, e.ScheduledDeadline, e.ObservedValue, e.Delta,
			e.Passed, rolledBack, nullable(e.Reason), e.ConfigHash,
		)
		if err != nil {
			return 0, fmt.Errorf("insert verification seq %d: %w", e.Seq, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// Sync reads both logs and indexes whatever is new.
func (s *Store) Sync(decisionLogPath, verificationLogPath string) (decisions, verifications int, err error) {
	dec, err := journal.ReadDecisions(decisionLogPath)
	if err != nil {
		return 0, 0, err
	}
	decisions, err = s.IndexDecisions(dec)
	if err != nil {
		return 0, 0, err
	}
	ver, err := journal.ReadVerifications(verificationLogPath)
	if err != nil {
		return decisions, 0, err
	}
	verifications, err = s.IndexVerifications(ver)
	return decisions, verifications, err
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion index

// #region queries

// RecentDecisions returns the newest decisions, most recent first.
func (s *Store) RecentDecisions(limit int) ([]journal.DecisionEntry, error) {
	rows, err := s.db.Query(
		`SELECT seq, ts, cycle_id, selected_action_id, active_objectives, score_breakdown,
		        config_hash, COALESCE(dispatch_error, '')
		 FROM decisions ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []journal.DecisionEntry
	for rows.Next() {
		var e journal.DecisionEntry
		var objectives, breakdown string
		if err := rows.Scan(&e.Seq, &e.Timestamp, &e.CycleID, &e.SelectedActionID,
			&objectives, &breakdown, &e.ConfigHash, &e.DispatchError); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if err := json.Unmarshal([]byte(objectives), &e.ActiveObjectives); err != nil {
			return nil, fmt.Errorf("parse objectives: %w", err)
		}
		e.ScoreBreakdown = json.RawMessage(breakdown)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ActionOutcomes summarizes verification results for one action.
type ActionOutcomes struct {
	ActionID  string
	Scheduled int
	Passed    int
	Failed    int
	Rollbacks int
}

// OutcomesByAction aggregates verification history per action.
func (s *Store) OutcomesByAction() ([]ActionOutcomes, error) {
	rows, err := s.db.Query(
		`SELECT action_id,
		        SUM(CASE WHEN kind = 'VERIFY_SCHEDULED' THEN 1 ELSE 0 END),
		        SUM(CASE WHEN kind = 'VERIFY_PASSED' THEN 1 ELSE 0 END),
		        SUM(CASE WHEN kind = 'VERIFY_FAILED' THEN 1 ELSE 0 END),
		        SUM(CASE WHEN rollback_triggered = 1 THEN 1 ELSE 0 END)
		 FROM verifications GROUP BY action_id ORDER BY action_id`)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []ActionOutcomes
	for rows.Next() {
		var o ActionOutcomes
		if err := rows.Scan(&o.ActionID, &o.Scheduled, &o.Passed, &o.Failed, &o.Rollbacks); err != nil {
			return nil, fmt.Errorf("scan outcomes: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Summary is the top-level operational view.
type Summary struct {
	Decisions     int
	Selections    int
	Suppressions  int
	Verifications int
	Rollbacks     int
}

// Summarize aggregates the whole index.
func (s *Store) Summarize() (Summary, error) {
	var sum Summary
	err := s.db.QueryRow(
		`SELECT COUNT(*),
		        SUM(CASE WHEN selected_action_id IS NOT NULL THEN 1 ELSE 0 END),
		        SUM(CASE WHEN selected_action_id IS NULL THEN 1 ELSE 0 END)
		 FROM decisions`).Scan(&sum.Decisions, &nullInt{&sum.Selections}, &nullInt{&sum.Suppressions})
	if err != nil {
		return Summary{}, fmt.Errorf("summarize decisions: %w", err)
	}
	err = s.db.QueryRow(
		`SELECT COUNT(*), SUM(CASE WHEN rollback_triggered = 1 THEN 1 ELSE 0 END)
		 FROM verifications WHERE kind != 'VERIFY_SCHEDULED'`).
		Scan(&sum.Verifications, &nullInt{&sum.Rollbacks})
	if err != nil {
		return Summary{}, fmt.Errorf("summarize verifications: %w", err)
	}
	return sum, nil
}

// nullInt scans a nullable aggregate into an int, mapping NULL to zero.
type nullInt struct{ v *int }

func (n *nullInt) Scan(src interface{}) error {
	if src == nil {
		*n.v = 0
		return nil
	}
	switch x := src.(type) {
	case int64:
		*n.v = int(x)
	case float64:
		*n.v = int(x)
	default:
		return fmt.Errorf("unexpected aggregate type %T", src)
	}
	return nil
}

// #endregion queries
