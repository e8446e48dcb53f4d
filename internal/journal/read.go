package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// #region readers

// forEachLine streams the log's lines to fn. A missing file yields no lines
// and no error: an empty log and an absent log are the same thing.
func forEachLine(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		if err := fn(line); err != nil {
			return fmt.Errorf("journal: %s line %d: %w", path, lineNum, err)
		}
	}
	return scanner.Err()
}

// ReadStateEntries loads every state log record in append order.
func ReadStateEntries(path string) ([]StateEntry, error) {
	var out []StateEntry
	err := forEachLine(path, func(line []byte) error {
		var e StateEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// ReadDecisions loads every decision record in append order.
func ReadDecisions(path string) ([]DecisionEntry, error) {
	var out []DecisionEntry
	err := forEachLine(path, func(line []byte) error {
		var e DecisionEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// ReadVerifications loads every verification record in append order.
func ReadVerifications(path string) ([]VerificationEntry, error) {
	var out []VerificationEntry
	err := forEachLine(path, func(line []byte) error {
		var e VerificationEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// #endregion readers

// #region pending

// Pending returns scheduled verifications that have no outcome record yet,
// matched by (cycle_id, action_id). Used at startup to restore verifications
// that were in flight when the process stopped.
func Pending(entries []VerificationEntry) []VerificationEntry {
	type key struct{ cycle, action string }
	resolved := make(map[key]bool)
	for _, e := range entries {
		if e.Kind == VerifyPassed || e.Kind == VerifyFailed {
			resolved[key{e.CycleID, e.ActionID}] = true
		}
	}
	var pending []VerificationEntry
	for _, e := range entries {
		if e.Kind == VerifyScheduled && !resolved[key{e.CycleID, e.ActionID}] {
			pending = append(pending, e)
		}
	}
	return pending
}

// #endregion pending

// #region verify-chain

// VerifyResult holds the outcome of a hash chain validation.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// VerifyChain walks a JSONL log and validates the prev_hash chain, reporting
// the first broken link.
func VerifyChain(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	var prevLine []byte

	for scanner.Scan() {
		lineNum++
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())

		var head struct {
			PrevHash string `json:"prev_hash"`
		}
		if err := json.Unmarshal(line, &head); err != nil {
			return VerifyResult{Error: fmt.Sprintf("parse error: %v", err), ErrorLine: lineNum}
		}

		want := GenesisHash
		if prevLine != nil {
			want = HashLine(prevLine)
		}
		if head.PrevHash != want {
			return VerifyResult{
				Error:     fmt.Sprintf("hash mismatch: expected %s, got %s", want, head.PrevHash),
				ErrorLine: lineNum,
			}
		}
		prevLine = line
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{Error: fmt.Sprintf("scan: %v", err)}
	}
	return VerifyResult{Valid: true, Lines: lineNum}
}

// #endregion verify-chain
