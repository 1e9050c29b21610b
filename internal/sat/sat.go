// Package sat defines the constraint-solver vocabulary the planning engine
// is written against. The engine only ever sees these handles and the Model
// interface; the production backend adapts OR-Tools CP-SAT, while the
// Recorder backend replays model structure for tests and dry runs.
package sat

import (
	"context"
	"time"
)

// Status of one solve invocation.
type Status int

const (
	StatusUnknown Status = iota
	StatusOptimal
	StatusFeasible
	StatusInfeasible
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Feasible reports whether the solve produced usable variable values.
func (s Status) Feasible() bool { return s == StatusOptimal || s == StatusFeasible }

type varKind int

const (
	kindInt varKind = iota
	kindBool
)

// IntVar is an opaque handle to an integer decision variable.
type IntVar struct {
	idx int32
}

// BoolVar is an opaque handle to a boolean literal; Not() negates it.
type BoolVar struct {
	idx int32
	neg bool
}

func (b BoolVar) Not() BoolVar { return BoolVar{idx: b.idx, neg: !b.neg} }

// Var is implemented by IntVar and BoolVar so both can appear in expressions.
type Var interface {
	ref() varRef
}

type varRef struct {
	kind varKind
	idx  int32
	neg  bool
}

func (v IntVar) ref() varRef  { return varRef{kind: kindInt, idx: v.idx} }
func (b BoolVar) ref() varRef { return varRef{kind: kindBool, idx: b.idx, neg: b.neg} }

// Term is one coefficient*variable product in an affine expression.
type Term struct {
	Var   Var
	Coeff int64
}

// Expr is an integer affine expression. The zero value is usable.
type Expr struct {
	Terms    []Term
	Constant int64
}

func NewExpr() *Expr { return &Expr{} }

func Const(v int64) *Expr { return &Expr{Constant: v} }

func (e *Expr) Add(v Var) *Expr { return e.AddTerm(v, 1) }

func (e *Expr) AddTerm(v Var, coeff int64) *Expr {
	e.Terms = append(e.Terms, Term{Var: v, Coeff: coeff})
	return e
}

func (e *Expr) AddConst(c int64) *Expr {
	e.Constant += c
	return e
}

// AddScaled appends k*o to e.
func (e *Expr) AddScaled(o *Expr, k int64) *Expr {
	for _, t := range o.Terms {
		e.Terms = append(e.Terms, Term{Var: t.Var, Coeff: t.Coeff * k})
	}
	e.Constant += o.Constant * k
	return e
}

// Arg is anything usable as a side of a linear constraint: a variable, a
// literal, or an expression.
type Arg interface {
	expr() *Expr
}

func (v IntVar) expr() *Expr  { return &Expr{Terms: []Term{{Var: v, Coeff: 1}}} }
func (b BoolVar) expr() *Expr { return &Expr{Terms: []Term{{Var: b, Coeff: 1}}} }
func (e *Expr) expr() *Expr   { return e }

// AsExpr exposes the affine form of any Arg.
func AsExpr(a Arg) *Expr { return a.expr() }

// Interval is an optional interval: start/duration/end variables plus a
// presence literal. Backends enforce start+duration=end while present.
type Interval struct {
	Start    IntVar
	Duration IntVar
	End      IntVar
	Presence BoolVar
}

// Params are per-solve settings, fixed for reproducibility.
type Params struct {
	MaxTime     time.Duration
	Workers     int
	Seed        int64
	LogProgress bool
}

// Result reads back values from a finished solve. Value accessors are only
// meaningful when Status().Feasible() holds.
type Result interface {
	Status() Status
	Value(v IntVar) int64
	BoolValue(b BoolVar) bool
}

// EvalExpr evaluates an affine expression against a result. Negated
// literals contribute 1-x.
func EvalExpr(r Result, a Arg) int64 {
	e := a.expr()
	total := e.Constant
	for _, t := range e.Terms {
		ref := t.Var.ref()
		switch ref.kind {
		case kindInt:
			total += t.Coeff * r.Value(IntVar{idx: ref.idx})
		case kindBool:
			v := int64(0)
			if r.BoolValue(BoolVar{idx: ref.idx, neg: ref.neg}) {
				v = 1
			}
			total += t.Coeff * v
		}
	}
	return total
}

// Model is the constraint-model surface. Guards are enforcement literals: a
// guarded constraint only binds when every guard literal is true.
type Model interface {
	NewIntVar(lb, ub int64, name string) IntVar
	NewBoolVar(name string) BoolVar

	AddEq(a, b Arg, guards ...BoolVar)
	AddLe(a, b Arg, guards ...BoolVar)
	AddGe(a, b Arg, guards ...BoolVar)

	AddBoolOr(lits []BoolVar, guards ...BoolVar)
	AddMinEquality(target IntVar, vars []IntVar)
	AddMaxEquality(target IntVar, vars []IntVar)
	// AddDivEquality posts target = num / denom with truncating integer
	// division; denom must be positive.
	AddDivEquality(target IntVar, num Arg, denom int64)

	NewOptionalInterval(start, duration, end IntVar, presence BoolVar) Interval
	// AddReservoir keeps initial + the sum of deltas of present events whose
	// start time has passed within [minLevel, maxLevel] at every event time.
	AddReservoir(events []Interval, deltas []IntVar, minLevel, maxLevel, initial int64)

	Minimize(obj *Expr)
	Solve(ctx context.Context, p Params) (Result, error)
}

// Backend constructs fresh models; the Dinkelbach loop builds one per
// iteration.
type Backend interface {
	NewModel() Model
}
