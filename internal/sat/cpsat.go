package sat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/or-tools/ortools/sat/go/cpmodel"
	"google.golang.org/protobuf/proto"

	cmpb "github.com/google/or-tools/ortools/sat/proto/cpmodel"
	sppb "github.com/google/or-tools/ortools/sat/proto/satparameters"
)

// CpSat is the production backend over OR-Tools CP-SAT.
type CpSat struct{}

func NewCpSat() CpSat { return CpSat{} }

func (CpSat) NewModel() Model {
	return &cpsatModel{b: cpmodel.NewCpModelBuilder()}
}

type intBounds struct{ lb, ub int64 }

type cpsatModel struct {
	b      *cpmodel.Builder
	ints   []cpmodel.IntVar
	bounds []intBounds
	bools  []cpmodel.BoolVar
}

func (m *cpsatModel) NewIntVar(lb, ub int64, name string) IntVar {
	v := m.b.NewIntVar(lb, ub).WithName(name)
	m.ints = append(m.ints, v)
	m.bounds = append(m.bounds, intBounds{lb, ub})
	return IntVar{idx: int32(len(m.ints) - 1)}
}

func (m *cpsatModel) NewBoolVar(name string) BoolVar {
	v := m.b.NewBoolVar().WithName(name)
	m.bools = append(m.bools, v)
	return BoolVar{idx: int32(len(m.bools) - 1)}
}

func (m *cpsatModel) intVar(v IntVar) cpmodel.IntVar { return m.ints[v.ref().idx] }

func (m *cpsatModel) lit(b BoolVar) cpmodel.BoolVar {
	v := m.bools[b.ref().idx]
	if b.ref().neg {
		return v.Not()
	}
	return v
}

func (m *cpsatModel) lits(bs []BoolVar) []cpmodel.BoolVar {
	out := make([]cpmodel.BoolVar, len(bs))
	for i, b := range bs {
		out[i] = m.lit(b)
	}
	return out
}

func (m *cpsatModel) arg(a Arg) cpmodel.LinearArgument {
	e := AsExpr(a)
	le := cpmodel.NewLinearExpr()
	for _, t := range e.Terms {
		ref := t.Var.ref()
		switch ref.kind {
		case kindInt:
			le.AddTerm(m.ints[ref.idx], t.Coeff)
		case kindBool:
			lv := m.bools[ref.idx]
			if ref.neg {
				le.AddTerm(lv.Not(), t.Coeff)
			} else {
				le.AddTerm(lv, t.Coeff)
			}
		}
	}
	if e.Constant != 0 {
		le.Add(cpmodel.NewConstant(e.Constant))
	}
	return le
}

func (m *cpsatModel) AddEq(a, b Arg, guards ...BoolVar) {
	c := m.b.AddEquality(m.arg(a), m.arg(b))
	if len(guards) > 0 {
		c.OnlyEnforceIf(m.lits(guards)...)
	}
}

func (m *cpsatModel) AddLe(a, b Arg, guards ...BoolVar) {
	c := m.b.AddLessOrEqual(m.arg(a), m.arg(b))
	if len(guards) > 0 {
		c.OnlyEnforceIf(m.lits(guards)...)
	}
}

func (m *cpsatModel) AddGe(a, b Arg, guards ...BoolVar) {
	c := m.b.AddGreaterOrEqual(m.arg(a), m.arg(b))
	if len(guards) > 0 {
		c.OnlyEnforceIf(m.lits(guards)...)
	}
}

func (m *cpsatModel) AddBoolOr(litsIn []BoolVar, guards ...BoolVar) {
	c := m.b.AddBoolOr(m.lits(litsIn)...)
	if len(guards) > 0 {
		c.OnlyEnforceIf(m.lits(guards)...)
	}
}

func (m *cpsatModel) AddMinEquality(target IntVar, vars []IntVar) {
	args := make([]cpmodel.LinearArgument, len(vars))
	for i, v := range vars {
		args[i] = m.intVar(v)
	}
	m.b.AddMinEquality(m.intVar(target), args...)
}

func (m *cpsatModel) AddMaxEquality(target IntVar, vars []IntVar) {
	args := make([]cpmodel.LinearArgument, len(vars))
	for i, v := range vars {
		args[i] = m.intVar(v)
	}
	m.b.AddMaxEquality(m.intVar(target), args...)
}

func (m *cpsatModel) AddDivEquality(target IntVar, num Arg, denom int64) {
	m.b.AddDivisionEquality(m.intVar(target), m.arg(num), cpmodel.NewConstant(denom))
}

func (m *cpsatModel) NewOptionalInterval(start, duration, end IntVar, presence BoolVar) Interval {
	m.b.AddEquality(
		cpmodel.NewLinearExpr().Add(m.intVar(start)).Add(m.intVar(duration)),
		m.intVar(end),
	).OnlyEnforceIf(m.lit(presence))
	return Interval{Start: start, Duration: duration, End: end, Presence: presence}
}

// AddReservoir decomposes the reservoir onto pairwise "happened no later"
// literals and gated linear constraints, so only core CP-SAT constraint
// types are posted. The level is piecewise constant, so checking it at
// every present event time covers the whole timeline.
func (m *cpsatModel) AddReservoir(events []Interval, deltas []IntVar, minLevel, maxLevel, initial int64) {
	if len(events) != len(deltas) {
		panic(fmt.Sprintf("sat: reservoir got %d events but %d deltas", len(events), len(deltas)))
	}
	if initial < minLevel || initial > maxLevel {
		// The empty schedule already violates the bounds.
		m.b.AddBoolOr()
		return
	}
	n := len(events)
	for i := 0; i < n; i++ {
		level := cpmodel.NewLinearExpr().Add(cpmodel.NewConstant(initial)).Add(m.intVar(deltas[i]))
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			// before <=> events[j] starts no later than events[i].
			before := m.b.NewBoolVar()
			tj, ti := m.intVar(events[j].Start), m.intVar(events[i].Start)
			m.b.AddLessOrEqual(tj, ti).OnlyEnforceIf(before)
			m.b.AddGreaterOrEqual(tj, cpmodel.NewLinearExpr().Add(ti).Add(cpmodel.NewConstant(1))).OnlyEnforceIf(before.Not())

			db := m.bounds[deltas[j].ref().idx]
			contrib := m.b.NewIntVar(min64(db.lb, 0), max64(db.ub, 0))
			m.b.AddEquality(contrib, m.intVar(deltas[j])).OnlyEnforceIf(before, m.lit(events[j].Presence), m.lit(events[i].Presence))
			m.b.AddEquality(contrib, cpmodel.NewConstant(0)).OnlyEnforceIf(before.Not())
			m.b.AddEquality(contrib, cpmodel.NewConstant(0)).OnlyEnforceIf(m.lit(events[j].Presence).Not())
			level.Add(contrib)
		}
		m.b.AddGreaterOrEqual(level, cpmodel.NewConstant(minLevel)).OnlyEnforceIf(m.lit(events[i].Presence))
		m.b.AddLessOrEqual(level, cpmodel.NewConstant(maxLevel)).OnlyEnforceIf(m.lit(events[i].Presence))
	}
}

func (m *cpsatModel) Minimize(obj *Expr) {
	m.b.Minimize(m.arg(obj))
}

func (m *cpsatModel) Solve(ctx context.Context, p Params) (Result, error) {
	mdl, err := m.b.Model()
	if err != nil {
		return nil, fmt.Errorf("sat: building cp model: %w", err)
	}
	maxTime := p.MaxTime.Seconds()
	if dl, ok := ctx.Deadline(); ok {
		if budget := time.Until(dl).Seconds(); budget < maxTime {
			maxTime = budget
		}
	}
	params := &sppb.SatParameters{
		MaxTimeInSeconds:  proto.Float64(maxTime),
		NumWorkers:        proto.Int32(int32(p.Workers)),
		RandomSeed:        proto.Int32(int32(p.Seed)),
		LogSearchProgress: proto.Bool(p.LogProgress),
	}
	resp, err := cpmodel.SolveCpModelWithParameters(mdl, params)
	if err != nil {
		return nil, fmt.Errorf("sat: solve: %w", err)
	}
	st := StatusUnknown
	switch resp.GetStatus() {
	case cmpb.CpSolverStatus_OPTIMAL:
		st = StatusOptimal
	case cmpb.CpSolverStatus_FEASIBLE:
		st = StatusFeasible
	case cmpb.CpSolverStatus_INFEASIBLE:
		st = StatusInfeasible
	case cmpb.CpSolverStatus_MODEL_INVALID:
		return nil, fmt.Errorf("sat: solver rejected model as invalid")
	}
	if ctx.Err() != nil && !st.Feasible() {
		st = StatusAborted
	}
	return &cpsatResult{m: m, resp: resp, status: st}, nil
}

type cpsatResult struct {
	m      *cpsatModel
	resp   *cmpb.CpSolverResponse
	status Status
}

func (r *cpsatResult) Status() Status { return r.status }

func (r *cpsatResult) Value(v IntVar) int64 {
	return cpmodel.SolutionIntegerValue(r.resp, r.m.intVar(v))
}

func (r *cpsatResult) BoolValue(b BoolVar) bool {
	return cpmodel.SolutionBooleanValue(r.resp, r.m.lit(b))
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
