// Package scoring ranks the action catalog against the active objective set.
// Every term is normalized to [0,1] before the λ-weighted combination so the
// operator-set weights stay interpretable and comparable across runs, and
// selection is fully deterministic: catalog order is ascending action ID and
// ties break lexicographically, never by insertion order or randomness.
package scoring

import (
	"math"

	"github.com/danielpatrickdp/state-weaver/internal/config"
)

// #region types

// Breakdown records every component of one action's score. Field order is
// fixed; the serialized breakdown is part of the decision record's
// determinism contract.
type Breakdown struct {
	ActionID        string  `json:"action_id"`
	Benefit         float64 `json:"benefit"`
	Risk            float64 `json:"risk"`
	CouplingDamage  float64 `json:"coupling_damage"`
	Irreversibility float64 `json:"irreversibility"`
	Uncertainty     float64 `json:"uncertainty"`
	Score           float64 `json:"score"`
}

// Selection is the outcome of ranking the full catalog.
type Selection struct {
	Selected   *Breakdown // nil when suppressed
	Breakdowns []Breakdown
	Suppressed bool
	Reason     string
}

// Engine scores actions using the configured weights and coupling edges.
type Engine struct {
	weights config.Weights
	edges   []config.CouplingEdge
}

// NewEngine creates a scoring engine from validated configuration.
func NewEngine(weights config.Weights, edges []config.CouplingEdge) *Engine {
	return &Engine{weights: weights, edges: edges}
}

// #endregion types

// #region decide

// Decide ranks the catalog and applies the selection/suppression rule:
// pick the maximum-score action, break ties by ascending action ID, and
// suppress when no objective is active or the maximum score is ≤ 0.
// Actions must arrive sorted by ID (config.Validate guarantees this).
func (e *Engine) Decide(actions []config.Action, active []config.CompiledObjective, vars map[string]float64) Selection {
	if len(active) == 0 {
		return Selection{Suppressed: true, Reason: "no active objectives"}
	}

	breakdowns := make([]Breakdown, 0, len(actions))
	var best *Breakdown
	for _, a := range actions {
		b := e.score(a, active, vars)
		breakdowns = append(breakdowns, b)
	}
	// Ascending ID iteration makes strict > the full tie-break rule: the
	// first of two equal scores has the smaller ID and wins.
	for i := range breakdowns {
		if best == nil || breakdowns[i].Score > best.Score {
			best = &breakdowns[i]
		}
	}

	if best == nil || best.Score <= 0 {
		return Selection{
			Breakdowns: breakdowns,
			Suppressed: true,
			Reason:     "no action with positive expected value",
		}
	}
	return Selection{Selected: best, Breakdowns: breakdowns}
}

// #endregion decide

// #region score

// score computes all five normalized terms for one action.
func (e *Engine) score(a config.Action, active []config.CompiledObjective, vars map[string]float64) Breakdown {
	benefit := e.benefit(a, active, vars)
	risk := e.risk(a)
	coupling := e.couplingDamage(a)
	irr := clamp01(a.IrreversibilityCost)
	uncertainty := e.uncertainty(a)

	score := benefit -
		(e.weights.Risk*risk +
			e.weights.Coupling*coupling +
			e.weights.Irreversibility*irr +
			e.weights.Uncertainty*uncertainty)

	return Breakdown{
		ActionID:        a.ID,
		Benefit:         benefit,
		Risk:            risk,
		CouplingDamage:  coupling,
		Irreversibility: irr,
		Uncertainty:     uncertainty,
		Score:           score,
	}
}

// benefit sums, over each active objective whose variable matches one of the
// action's expected effects, a clamped linear improvement toward the
// objective's target range, weighted by the objective's override weight. The
// sum is normalized by total active weight so the term stays in [0,1].
func (e *Engine) benefit(a config.Action, active []config.CompiledObjective, vars map[string]float64) float64 {
	var weighted, totalWeight float64
	for _, o := range active {
		totalWeight += o.Weight
		current, known := vars[o.Variable]
		if !known {
			continue
		}
		for _, eff := range a.ExpectedEffects {
			if eff.Variable != o.Variable {
				continue
			}
			weighted += o.Weight * improvement(current, current+eff.Delta, o.TargetRange)
		}
	}
	if totalWeight == 0 {
		return 0
	}
	return clamp01(weighted / totalWeight)
}

// improvement maps a projected move to [0,1]: 1 when the projection reaches
// the nearest target bound, 0 when it moves away or the variable is already
// in range, linear in between.
func improvement(current, projected float64, target [2]float64) float64 {
	lo, hi := target[0], target[1]
	switch {
	case current < lo:
		return clamp01((projected - current) / (lo - current))
	case current > hi:
		return clamp01((current - projected) / (current - hi))
	default:
		// Already inside the range: no demand to satisfy.
		return 0
	}
}

// risk is driven by the worst expected-effect confidence: the least certain
// effect dominates.
func (e *Engine) risk(a config.Action) float64 {
	if len(a.ExpectedEffects) == 0 {
		return 1
	}
	min := math.Inf(1)
	for _, eff := range a.ExpectedEffects {
		if eff.Confidence < min {
			min = eff.Confidence
		}
	}
	return clamp01(1 - min)
}

// couplingDamage sums damage coefficients of edges leaving any variable the
// action touches, clamped to the common [0,1] scale. Coefficients are
// operator-authored fractions of collateral degradation.
func (e *Engine) couplingDamage(a config.Action) float64 {
	touched := make(map[string]bool, len(a.ExpectedEffects))
	for _, eff := range a.ExpectedEffects {
		touched[eff.Variable] = true
	}
	var sum float64
	for _, edge := range e.edges {
		if touched[edge.FromVariable] {
			sum += edge.DamageCoefficient
		}
	}
	return clamp01(sum)
}

// uncertainty is 1 − mean(confidence) across expected effects.
func (e *Engine) uncertainty(a config.Action) float64 {
	if len(a.ExpectedEffects) == 0 {
		return 1
	}
	var sum float64
	for _, eff := range a.ExpectedEffects {
		sum += eff.Confidence
	}
	return clamp01(1 - sum/float64(len(a.ExpectedEffects)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion score
