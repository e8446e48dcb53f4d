// Package config loads and validates the three decision-relevant configuration
// documents (objectives.json, coupling.json, actions.json), computes the
// content hash that ties every decision and verification record back to the
// exact configuration it was made under, and parses the daemon runtime config.
package config

// #region weights

// Weights holds the global λ penalty weights applied by the scoring engine.
type Weights struct {
	Risk            float64 `json:"risk"`
	Coupling        float64 `json:"coupling"`
	Irreversibility float64 `json:"irreversibility"`
	Uncertainty     float64 `json:"uncertainty"`
}

// DefaultWeights returns unit weights for all four penalty terms.
func DefaultWeights() Weights {
	return Weights{Risk: 1, Coupling: 1, Irreversibility: 1, Uncertainty: 1}
}

// #endregion weights

// #region objectives-doc

// Regime groups objectives sharing hysteresis timing rules.
type Regime struct {
	ID                string `json:"id"`
	MinDurationActive string `json:"min_duration_active"` // time.ParseDuration format
	CooldownAfterExit string `json:"cooldown_after_exit"`
}

// Objective is a configured demand signal: when its activation condition
// holds, the named variable should move toward the target range.
type Objective struct {
	ID          string     `json:"id"`
	Condition   string     `json:"activation_condition"`
	Regime      string     `json:"regime"`
	Variable    string     `json:"variable"`
	TargetRange [2]float64 `json:"target_range"`
	Weight      float64    `json:"weight,omitempty"` // per-objective benefit override, default 1
}

// ObjectivesDoc is the parsed objectives.json document.
type ObjectivesDoc struct {
	Weights    Weights     `json:"weights"`
	Regimes    []Regime    `json:"regimes"`
	Objectives []Objective `json:"objectives"`
}

// #endregion objectives-doc

// #region coupling-doc

// CouplingEdge is a directed collateral-damage relationship: acting on
// FromVariable degrades ToVariable in proportion to DamageCoefficient.
type CouplingEdge struct {
	FromVariable      string  `json:"from_variable"`
	ToVariable        string  `json:"to_variable"`
	DamageCoefficient float64 `json:"damage_coefficient"`
}

// CouplingDoc is the parsed coupling.json document.
type CouplingDoc struct {
	Edges []CouplingEdge `json:"edges"`
}

// #endregion coupling-doc

// #region actions-doc

// ExpectedEffect describes a predicted change to one variable.
type ExpectedEffect struct {
	Variable   string  `json:"variable"`
	Delta      float64 `json:"delta"`
	Units      string  `json:"units,omitempty"`
	Horizon    string  `json:"horizon,omitempty"` // time.ParseDuration format
	Confidence float64 `json:"confidence"`
}

// Rollback spec types.
const (
	RollbackActionRef   = "action_ref"
	RollbackInstruction = "instruction"
	RollbackNone        = "none"
)

// RollbackSpec declares the remedial step when verification fails.
type RollbackSpec struct {
	Type        string `json:"type"` // action_ref | instruction | none
	ActionRef   string `json:"action_ref,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}

// VerificationSpec declares how a dispatched action is checked.
type VerificationSpec struct {
	Metric          string  `json:"metric"`
	Operator        string  `json:"operator"` // < <= > >= == !=
	TargetDelta     float64 `json:"target_delta"`
	Deadline        string  `json:"deadline"` // time.ParseDuration format
	DataRequirement string  `json:"data_requirement,omitempty"`
}

// Action is one immutable catalog entry.
type Action struct {
	ID                  string           `json:"id"`
	TargetLayer         string           `json:"target_layer"`
	Actuator            string           `json:"actuator"`
	Magnitude           float64          `json:"magnitude"`
	Duration            string           `json:"duration,omitempty"` // time.ParseDuration format
	IrreversibilityCost float64          `json:"irreversibility_cost"`
	ExpectedEffects     []ExpectedEffect `json:"expected_effects"`
	Rollback            RollbackSpec     `json:"rollback"`
	Verification        VerificationSpec `json:"verification"`
}

// ActionsDoc is the parsed actions.json document.
type ActionsDoc struct {
	Actions []Action `json:"actions"`
}

// #endregion actions-doc
