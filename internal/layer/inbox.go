// Package layer provides state collectors for the cycle orchestrator. The
// inbox layer is the file handoff surface: external producers drop JSON
// record files into a directory and the weaver drains them on each cycle.
package layer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/danielpatrickdp/state-weaver/internal/weaver"
)

// #region record

// Record is the wire form of one state reading as written by a producer.
type Record struct {
	Layer      string  `json:"layer"`
	Variable   string  `json:"variable"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Confidence float64 `json:"confidence"`
	Direction  string  `json:"direction"`
	Timestamp  string  `json:"ts,omitempty"` // RFC3339; stamped on collect if absent
}

func (r Record) validate() error {
	if r.Layer == "" || r.Variable == "" {
		return fmt.Errorf("layer and variable are required")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %g out of [0,1]", r.Confidence)
	}
	switch r.Direction {
	case weaver.HigherBetter, weaver.LowerBetter:
	default:
		return fmt.Errorf("unknown direction %q", r.Direction)
	}
	return nil
}

// #endregion record

// #region inbox

// Inbox drains JSON record files from a directory. Producers must write
// through a temp file and rename into place; anything still carrying a .tmp
// suffix is skipped. Files that parse are consumed, files that do not are
// moved aside with a .rejected suffix so a broken producer cannot wedge the
// loop.
type Inbox struct {
	name string
	dir  string
}

// NewInbox creates an inbox layer over dir, creating it if needed.
func NewInbox(name, dir string) (*Inbox, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create inbox dir: %w", err)
	}
	return &Inbox{name: name, dir: dir}, nil
}

// Name implements weaver.Layer.
func (in *Inbox) Name() string { return in.name }

// Collect reads, validates, and consumes every ready file in the inbox.
// Files are processed in name order so a replayed inbox produces the same
// variable map.
func (in *Inbox) Collect(ctx context.Context) ([]weaver.StateRecord, error) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") ||
			strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, ".rejected") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var out []weaver.StateRecord
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		path := filepath.Join(in.dir, name)
		recs, err := in.consume(path)
		if err != nil {
			log.Printf("[LAYER] %s: rejecting %s: %v", in.name, name, err)
			if rerr := os.Rename(path, path+".rejected"); rerr != nil {
				log.Printf("[LAYER] %s: move aside %s: %v", in.name, name, rerr)
			}
			continue
		}
		out = append(out, recs...)
		if err := os.Remove(path); err != nil {
			log.Printf("[LAYER] %s: remove consumed %s: %v", in.name, name, err)
		}
	}
	return out, nil
}

// consume parses one inbox file into state records. A file holds either a
// single record object or an array of records.
func (in *Inbox) consume(path string) ([]weaver.StateRecord, error) {
	// Reject symlinks before reading: an inbox file must be a plain file
	// inside the inbox, not a pointer elsewhere on the filesystem.
	fi, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlink rejected")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		var single Record
		if serr := json.Unmarshal(data, &single); serr != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		records = []Record{single}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty record file")
	}

	out := make([]weaver.StateRecord, 0, len(records))
	for i, r := range records {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		var ts time.Time
		if r.Timestamp != "" {
			ts, err = time.Parse(time.RFC3339Nano, r.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("record %d: bad ts: %w", i, err)
			}
		}
		out = append(out, weaver.StateRecord{
			Layer:      r.Layer,
			Variable:   r.Variable,
			Value:      r.Value,
			Unit:       r.Unit,
			Confidence: r.Confidence,
			Direction:  r.Direction,
			Timestamp:  ts,
		})
	}
	return out, nil
}

// #endregion inbox

// #region write

// WriteRecords drops records into an inbox directory atomically: write to a
// temp file, then rename into place. Producers and tests share this helper so
// the rename contract stays in one spot.
func WriteRecords(dir, name string, records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}

	dst := filepath.Join(dir, name)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename into inbox: %w", err)
	}
	return nil
}

// #endregion write
