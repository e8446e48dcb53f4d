package verify

import (
	"fmt"

	"github.com/danielpatrickdp/state-weaver/internal/journal"
)

// MetricSource supplies the current value of a verification metric.
type MetricSource interface {
	// Latest returns the newest known value for metric. ok is false when the
	// metric has never been observed.
	Latest(metric string) (value float64, ok bool, err error)
}

// StateLogSource reads metric values from the tail of the state log. The
// runner shares no memory with the orchestrator; the log is the only source
// of observed state.
type StateLogSource struct {
	path string
}

// NewStateLogSource creates a source over the state log at path.
func NewStateLogSource(path string) *StateLogSource {
	return &StateLogSource{path: path}
}

// Latest implements MetricSource. The newest appended reading wins.
func (s *StateLogSource) Latest(metric string) (float64, bool, error) {
	entries, err := journal.ReadStateEntries(s.path)
	if err != nil {
		return 0, false, fmt.Errorf("read state log: %w", err)
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Variable == metric {
			return entries[i].Value, true, nil
		}
	}
	return 0, false, nil
}
