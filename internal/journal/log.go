package journal

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// GenesisHash is the prev_hash of the first entry in a new log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// Standard log file names within a data directory.
const (
	StateLogFile        = "state.jsonl"
	DecisionLogFile     = "decisions.jsonl"
	VerificationLogFile = "verifications.jsonl"
)

// #region log

// Log is a single-writer append-only JSONL file with sha256 hash chaining.
// Appends are atomic at line granularity: the line is written and synced
// under the lock, so a reader never observes a partial record.
type Log struct {
	path     string
	file     *os.File
	prevHash string
	nextSeq  uint64
	mu       sync.Mutex
}

// Open opens (or creates) a log for appending, recovering the chain tail and
// sequence counter from the last existing line.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("journal: create directory: %w", err)
	}

	prevHash := GenesisHash
	var nextSeq uint64 = 1

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		lastLine, err := lastLine(path)
		if err != nil {
			return nil, fmt.Errorf("journal: recover tail: %w", err)
		}
		if len(lastLine) > 0 {
			prevHash = HashLine(lastLine)
			var tail struct {
				Seq uint64 `json:"seq"`
			}
			if err := json.Unmarshal(lastLine, &tail); err != nil {
				return nil, fmt.Errorf("journal: parse tail of %s: %w", path, err)
			}
			nextSeq = tail.Seq + 1
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &Log{path: path, file: file, prevHash: prevHash, nextSeq: nextSeq}, nil
}

// Append assigns the record's sequence number and prev_hash, writes one JSON
// line, and syncs to disk. Append order equals completion order: there is
// exactly one writer per log.
func (l *Log) Append(rec chained) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.setChain(l.nextSeq, l.prevHash)
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: marshal entry: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("journal: write entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync: %w", err)
	}
	l.prevHash = HashLine(line)
	l.nextSeq++
	return nil
}

// Path returns the log's file path.
func (l *Log) Path() string { return l.path }

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// #endregion log

// #region helpers

// HashLine returns "sha256:<hex>" of the given line bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}

func lastLine(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var last []byte
	for scanner.Scan() {
		last = append(last[:0], scanner.Bytes()...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return last, nil
}

// #endregion helpers
