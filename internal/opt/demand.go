package opt

import (
	"fmt"
	"sort"

	"breadfleet/internal/model"
	"breadfleet/internal/sat"
)

// DemandCap encodes the piecewise-constant demand multiplier as a step
// function of arrival time. Because arrival time is itself a decision, the
// cap cannot branch in host code; Apply posts one indicator per interval
// with exactly one active.
type DemandCap struct {
	steps []model.DemandStep
}

func NewDemandCap(steps []model.DemandStep) DemandCap {
	sorted := make([]model.DemandStep, len(steps))
	copy(sorted, steps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TimeLimit < sorted[j].TimeLimit })
	return DemandCap{steps: sorted}
}

// Apply returns a variable equal to floor(base * multiplier(arrival) / 100).
// Intervals are half-open [lower, limit): the previous step's limit is the
// inclusive lower bound, limit-1 the inclusive upper. The last interval
// additionally admits arrival == limit so the masking sentinel at the end
// of the horizon still lands in exactly one interval.
func (d DemandCap) Apply(m sat.Model, arrival sat.IntVar, base int64, name string) sat.IntVar {
	maxMult := int64(0)
	for _, step := range d.steps {
		if step.MultiplierX100 > maxMult {
			maxMult = step.MultiplierX100
		}
	}
	maxVol := m.NewIntVar(0, base*maxMult/100, name)

	exactlyOne := sat.NewExpr()
	lower := int64(0)
	for i, step := range d.steps {
		seg := m.NewBoolVar(fmt.Sprintf("%s_seg%d", name, i))
		exactlyOne.Add(seg)

		upper := step.TimeLimit - 1
		if i == len(d.steps)-1 {
			upper = step.TimeLimit
		}
		m.AddGe(arrival, sat.Const(lower), seg)
		m.AddLe(arrival, sat.Const(upper), seg)

		capped := base * step.MultiplierX100 / 100
		m.AddEq(maxVol, sat.Const(capped), seg)

		lower = step.TimeLimit
	}
	m.AddEq(exactlyOne, sat.Const(1))

	return maxVol
}

// Steps exposes the normalized step sequence.
func (d DemandCap) Steps() []model.DemandStep { return d.steps }
