package layer

import (
	"context"

	"github.com/danielpatrickdp/state-weaver/internal/weaver"
)

// Static serves a fixed set of records on every collect. Used to pin
// constants into the variable map and as a harness piece in replay runs.
type Static struct {
	name    string
	records []weaver.StateRecord
}

// NewStatic creates a static layer.
func NewStatic(name string, records []weaver.StateRecord) *Static {
	return &Static{name: name, records: records}
}

// Name implements weaver.Layer.
func (s *Static) Name() string { return s.name }

// Collect returns a copy of the fixed records.
func (s *Static) Collect(context.Context) ([]weaver.StateRecord, error) {
	out := make([]weaver.StateRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}
