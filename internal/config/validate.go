package config

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/danielpatrickdp/state-weaver/internal/expr"
)

// #region compiled

// CompiledObjective is an Objective with its condition parsed and its
// regime's hysteresis durations resolved.
type CompiledObjective struct {
	ID          string
	Condition   *expr.Expr
	Variable    string
	TargetRange [2]float64
	Weight      float64
	MinActive   time.Duration
	Cooldown    time.Duration
}

// Validated is the compiled, schema-checked form of the three documents.
// Objectives and Actions are sorted by ID so that every downstream iteration
// order is deterministic.
type Validated struct {
	Objectives []CompiledObjective
	Edges      []CouplingEdge
	Actions    []Action
	Weights    Weights
	Hash       string

	actionsByID map[string]Action
}

// FindAction looks up a catalog entry by ID.
func (v *Validated) FindAction(id string) (Action, bool) {
	a, ok := v.actionsByID[id]
	return a, ok
}

// #endregion compiled

// #region validate

var validOperators = map[string]bool{
	"<": true, "<=": true, ">": true, ">=": true, "==": true, "!=": true,
}

// Validate schema-checks the documents and compiles them. On any violation it
// returns the full issue list and a nil Validated: the cycle must not proceed
// on partially valid configuration.
func (d *Documents) Validate() (*Validated, []string) {
	var issues []string
	fail := func(format string, args ...interface{}) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	// Regimes: unique IDs, parseable positive durations.
	regimes := make(map[string]Regime, len(d.Objectives.Regimes))
	regimeMin := make(map[string]time.Duration)
	regimeCooldown := make(map[string]time.Duration)
	for _, r := range d.Objectives.Regimes {
		if r.ID == "" {
			fail("regime with empty id")
			continue
		}
		if _, dup := regimes[r.ID]; dup {
			fail("duplicate regime id %q", r.ID)
			continue
		}
		regimes[r.ID] = r
		minActive, err := time.ParseDuration(r.MinDurationActive)
		if err != nil || minActive < 0 {
			fail("regime %q: invalid min_duration_active %q", r.ID, r.MinDurationActive)
		}
		cooldown, err := time.ParseDuration(r.CooldownAfterExit)
		if err != nil || cooldown < 0 {
			fail("regime %q: invalid cooldown_after_exit %q", r.ID, r.CooldownAfterExit)
		}
		regimeMin[r.ID] = minActive
		regimeCooldown[r.ID] = cooldown
	}

	// Weights must be finite and non-negative.
	for name, w := range map[string]float64{
		"risk":            d.Objectives.Weights.Risk,
		"coupling":        d.Objectives.Weights.Coupling,
		"irreversibility": d.Objectives.Weights.Irreversibility,
		"uncertainty":     d.Objectives.Weights.Uncertainty,
	} {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			fail("weight %q: must be a non-negative finite number, got %v", name, w)
		}
	}

	// Objectives: unique IDs, valid condition syntax, known regime, sane range.
	seenObj := make(map[string]bool, len(d.Objectives.Objectives))
	compiled := make([]CompiledObjective, 0, len(d.Objectives.Objectives))
	for _, o := range d.Objectives.Objectives {
		if o.ID == "" {
			fail("objective with empty id")
			continue
		}
		if seenObj[o.ID] {
			fail("duplicate objective id %q", o.ID)
			continue
		}
		seenObj[o.ID] = true

		cond, err := expr.Parse(o.Condition)
		if err != nil {
			fail("objective %q: activation_condition: %v", o.ID, err)
		}
		if _, ok := regimes[o.Regime]; !ok {
			fail("objective %q: unknown regime %q", o.ID, o.Regime)
		}
		if o.Variable == "" {
			fail("objective %q: missing variable", o.ID)
		}
		if o.TargetRange[0] > o.TargetRange[1] {
			fail("objective %q: target_range lower bound %v exceeds upper bound %v",
				o.ID, o.TargetRange[0], o.TargetRange[1])
		}
		weight := o.Weight
		if weight == 0 {
			weight = 1
		}
		if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
			fail("objective %q: invalid weight %v", o.ID, o.Weight)
		}
		compiled = append(compiled, CompiledObjective{
			ID:          o.ID,
			Condition:   cond,
			Variable:    o.Variable,
			TargetRange: o.TargetRange,
			Weight:      weight,
			MinActive:   regimeMin[o.Regime],
			Cooldown:    regimeCooldown[o.Regime],
		})
	}

	// Coupling edges: named endpoints, finite coefficient.
	for i, e := range d.Coupling.Edges {
		if e.FromVariable == "" || e.ToVariable == "" {
			fail("coupling edge %d: from_variable and to_variable are required", i)
		}
		if math.IsNaN(e.DamageCoefficient) || math.IsInf(e.DamageCoefficient, 0) || e.DamageCoefficient < 0 {
			fail("coupling edge %d (%s→%s): invalid damage_coefficient %v",
				i, e.FromVariable, e.ToVariable, e.DamageCoefficient)
		}
	}

	// Actions: unique IDs, bounded costs/confidences, resolvable rollback
	// references, valid verification spec.
	seenAct := make(map[string]bool, len(d.Actions.Actions))
	for _, a := range d.Actions.Actions {
		if a.ID == "" {
			fail("action with empty id")
			continue
		}
		if seenAct[a.ID] {
			fail("duplicate action id %q", a.ID)
			continue
		}
		seenAct[a.ID] = true
	}
	for _, a := range d.Actions.Actions {
		if a.IrreversibilityCost < 0 || a.IrreversibilityCost > 1 {
			fail("action %q: irreversibility_cost %v outside [0,1]", a.ID, a.IrreversibilityCost)
		}
		if len(a.ExpectedEffects) == 0 {
			fail("action %q: at least one expected effect is required", a.ID)
		}
		for i, eff := range a.ExpectedEffects {
			if eff.Variable == "" {
				fail("action %q: effect %d: missing variable", a.ID, i)
			}
			if eff.Confidence < 0 || eff.Confidence > 1 {
				fail("action %q: effect %d: confidence %v outside [0,1]", a.ID, i, eff.Confidence)
			}
			if eff.Horizon != "" {
				if _, err := time.ParseDuration(eff.Horizon); err != nil {
					fail("action %q: effect %d: invalid horizon %q", a.ID, i, eff.Horizon)
				}
			}
		}
		if a.Duration != "" {
			if _, err := time.ParseDuration(a.Duration); err != nil {
				fail("action %q: invalid duration %q", a.ID, a.Duration)
			}
		}
		switch a.Rollback.Type {
		case RollbackActionRef:
			if a.Rollback.ActionRef == "" {
				fail("action %q: rollback type action_ref requires action_ref", a.ID)
			} else if !seenAct[a.Rollback.ActionRef] {
				fail("action %q: rollback references unknown action %q", a.ID, a.Rollback.ActionRef)
			}
		case RollbackInstruction:
			if a.Rollback.Instruction == "" {
				fail("action %q: rollback type instruction requires instruction text", a.ID)
			}
		case RollbackNone:
		default:
			fail("action %q: invalid rollback type %q", a.ID, a.Rollback.Type)
		}
		if a.Verification.Metric == "" {
			fail("action %q: verification.metric is required", a.ID)
		}
		if !validOperators[a.Verification.Operator] {
			fail("action %q: invalid verification operator %q", a.ID, a.Verification.Operator)
		}
		if dl, err := time.ParseDuration(a.Verification.Deadline); err != nil || dl <= 0 {
			fail("action %q: invalid verification deadline %q", a.ID, a.Verification.Deadline)
		}
	}

	if len(issues) > 0 {
		return nil, issues
	}

	// Deterministic ordering for all downstream consumers.
	sort.Slice(compiled, func(i, j int) bool { return compiled[i].ID < compiled[j].ID })
	actions := make([]Action, len(d.Actions.Actions))
	copy(actions, d.Actions.Actions)
	sort.Slice(actions, func(i, j int) bool { return actions[i].ID < actions[j].ID })

	byID := make(map[string]Action, len(actions))
	for _, a := range actions {
		byID[a.ID] = a
	}

	weights := d.Objectives.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}

	return &Validated{
		Objectives:  compiled,
		Edges:       append([]CouplingEdge(nil), d.Coupling.Edges...),
		Actions:     actions,
		Weights:     weights,
		Hash:        d.Hash,
		actionsByID: byID,
	}, nil
}

// #endregion validate

// #region verification-deadline

// VerificationDeadline returns the parsed deadline for an action. Deadlines
// are validated at load time, so parse errors cannot occur on a Validated
// catalog.
func VerificationDeadline(a Action) time.Duration {
	d, _ := time.ParseDuration(a.Verification.Deadline)
	return d
}

// #endregion verification-deadline
