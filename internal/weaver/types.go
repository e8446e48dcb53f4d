// Package weaver implements the cycle orchestrator: observe state through
// registered layers, resolve active objectives, rank the action catalog,
// select or suppress, dispatch, and record the decision. One cycle runs at a
// time to completion; triggers arriving mid-cycle are debounced upstream.
package weaver

import (
	"context"
	"time"

	"github.com/danielpatrickdp/state-weaver/internal/config"
)

// #region state-record

// Direction values for a state reading.
const (
	HigherBetter = "higher_better"
	LowerBetter  = "lower_better"
)

// StateRecord is one reading supplied by an external layer. Records are
// append-only observations; the orchestrator never mutates them.
type StateRecord struct {
	Layer      string
	Variable   string
	Value      float64
	Unit       string
	Confidence float64 // [0,1]
	Direction  string  // higher_better | lower_better
	Timestamp  time.Time
}

// Snapshot is the per-cycle view of the world: every collected record plus
// the flat variable→value map the evaluator and scorer consume. When a
// variable is reported more than once, the latest collected value wins.
type Snapshot struct {
	Records []StateRecord
	Vars    map[string]float64
	TakenAt time.Time
}

// #endregion state-record

// #region interfaces

// Layer supplies current state readings. Implementations must honor ctx: the
// orchestrator applies a per-cycle collection timeout.
type Layer interface {
	Name() string
	Collect(ctx context.Context) ([]StateRecord, error)
}

// Acknowledgement is the adapter's opaque answer to a dispatch.
type Acknowledgement struct {
	Accepted bool
	Detail   string
}

// Dispatcher performs a selected action in the host system. The core treats
// it as opaque beyond success/failure.
type Dispatcher interface {
	Dispatch(ctx context.Context, action config.Action) (Acknowledgement, error)
}

// #endregion interfaces
