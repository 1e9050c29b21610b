package sat

import "context"

// Recorder is a Backend that records model structure instead of solving.
// Dry runs report its Stats; tests inspect the recorded constraints and
// script solve outcomes through the Stub.
type Recorder struct {
	Stub   Stub
	Models []*RecordedModel
}

func NewRecorder() *Recorder {
	return &Recorder{Stub: Stub{Status: StatusUnknown}}
}

func (r *Recorder) NewModel() Model {
	m := &RecordedModel{stub: r.Stub}
	r.Models = append(r.Models, m)
	return m
}

// Last returns the most recently built model.
func (r *Recorder) Last() *RecordedModel {
	if len(r.Models) == 0 {
		return nil
	}
	return r.Models[len(r.Models)-1]
}

// Stub is the scripted outcome a recorded model returns from Solve. Variable
// values are looked up by name; missing names read as zero/false.
type Stub struct {
	Status Status
	Ints   map[string]int64
	Bools  map[string]bool
}

type VarRecord struct {
	Name   string
	LB, UB int64
}

type ConstraintRecord struct {
	Kind   string // "eq", "le", "ge", "boolor", "min", "max", "div"
	Guards int
	Arity  int   // literal count for boolor, operand count for min/max
	A, B   *Expr // sides of a linear constraint, nil otherwise
}

type ReservoirRecord struct {
	Events            int
	Min, Max, Initial int64
}

type RecordedModel struct {
	stub Stub

	IntVars     []VarRecord
	BoolVars    []VarRecord
	Constraints []ConstraintRecord
	Intervals   []Interval
	Reservoirs  []ReservoirRecord
	Objective   *Expr
	Solved      bool
	SolveParams Params
}

// Stats summarizes a recorded model for dry-run reporting.
type Stats struct {
	IntVars     int `json:"intVars"`
	BoolVars    int `json:"boolVars"`
	Constraints int `json:"constraints"`
	Intervals   int `json:"intervals"`
	Reservoirs  int `json:"reservoirs"`
}

func (m *RecordedModel) Stats() Stats {
	return Stats{
		IntVars:     len(m.IntVars),
		BoolVars:    len(m.BoolVars),
		Constraints: len(m.Constraints),
		Intervals:   len(m.Intervals),
		Reservoirs:  len(m.Reservoirs),
	}
}

// CountKind returns how many recorded constraints have the given kind.
func (m *RecordedModel) CountKind(kind string) int {
	n := 0
	for _, c := range m.Constraints {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// IntVarName resolves a handle back to its declared name.
func (m *RecordedModel) IntVarName(v IntVar) string { return m.IntVars[v.ref().idx].Name }

// IntVarRecord resolves a handle back to its declaration.
func (m *RecordedModel) IntVarRecord(v IntVar) VarRecord { return m.IntVars[v.ref().idx] }

// BoolVarName resolves a handle back to its declared name.
func (m *RecordedModel) BoolVarName(b BoolVar) string { return m.BoolVars[b.ref().idx].Name }

// HasIntVar reports whether a variable with the given name was declared.
func (m *RecordedModel) HasIntVar(name string) bool {
	for _, v := range m.IntVars {
		if v.Name == name {
			return true
		}
	}
	return false
}

// HasBoolVar reports whether a literal with the given name was declared.
func (m *RecordedModel) HasBoolVar(name string) bool {
	for _, v := range m.BoolVars {
		if v.Name == name {
			return true
		}
	}
	return false
}

func (m *RecordedModel) NewIntVar(lb, ub int64, name string) IntVar {
	m.IntVars = append(m.IntVars, VarRecord{Name: name, LB: lb, UB: ub})
	return IntVar{idx: int32(len(m.IntVars) - 1)}
}

func (m *RecordedModel) NewBoolVar(name string) BoolVar {
	m.BoolVars = append(m.BoolVars, VarRecord{Name: name, UB: 1})
	return BoolVar{idx: int32(len(m.BoolVars) - 1)}
}

func (m *RecordedModel) record(kind string, guards, arity int) {
	m.Constraints = append(m.Constraints, ConstraintRecord{Kind: kind, Guards: guards, Arity: arity})
}

func (m *RecordedModel) recordLinear(kind string, a, b Arg, guards int) {
	m.Constraints = append(m.Constraints, ConstraintRecord{
		Kind: kind, Guards: guards, Arity: 2, A: AsExpr(a), B: AsExpr(b),
	})
}

func (m *RecordedModel) AddEq(a, b Arg, guards ...BoolVar) { m.recordLinear("eq", a, b, len(guards)) }
func (m *RecordedModel) AddLe(a, b Arg, guards ...BoolVar) { m.recordLinear("le", a, b, len(guards)) }
func (m *RecordedModel) AddGe(a, b Arg, guards ...BoolVar) { m.recordLinear("ge", a, b, len(guards)) }

func (m *RecordedModel) AddBoolOr(lits []BoolVar, guards ...BoolVar) {
	m.record("boolor", len(guards), len(lits))
}

func (m *RecordedModel) AddMinEquality(target IntVar, vars []IntVar) {
	m.record("min", 0, len(vars))
}

func (m *RecordedModel) AddMaxEquality(target IntVar, vars []IntVar) {
	m.record("max", 0, len(vars))
}

func (m *RecordedModel) AddDivEquality(target IntVar, num Arg, denom int64) {
	m.record("div", 0, 2)
}

func (m *RecordedModel) NewOptionalInterval(start, duration, end IntVar, presence BoolVar) Interval {
	iv := Interval{Start: start, Duration: duration, End: end, Presence: presence}
	m.Intervals = append(m.Intervals, iv)
	return iv
}

func (m *RecordedModel) AddReservoir(events []Interval, deltas []IntVar, minLevel, maxLevel, initial int64) {
	m.Reservoirs = append(m.Reservoirs, ReservoirRecord{
		Events: len(events), Min: minLevel, Max: maxLevel, Initial: initial,
	})
}

func (m *RecordedModel) Minimize(obj *Expr) { m.Objective = obj }

func (m *RecordedModel) Solve(ctx context.Context, p Params) (Result, error) {
	m.Solved = true
	m.SolveParams = p
	return &recordedResult{m: m}, nil
}

type recordedResult struct {
	m *RecordedModel
}

func (r *recordedResult) Status() Status { return r.m.stub.Status }

func (r *recordedResult) Value(v IntVar) int64 {
	return r.m.stub.Ints[r.m.IntVarName(v)]
}

func (r *recordedResult) BoolValue(b BoolVar) bool {
	val := r.m.stub.Bools[r.m.BoolVars[b.ref().idx].Name]
	if b.ref().neg {
		return !val
	}
	return val
}
