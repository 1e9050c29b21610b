package opt

import (
	"math"
	"strings"
	"testing"

	"breadfleet/internal/sat"
)

// buildObjectiveRecorded is buildRecorded plus the objective expressions.
func buildObjectiveRecorded(t *testing.T) (*sat.RecordedModel, objectiveExprs) {
	t.Helper()
	sc := fleetScenario()
	rec := sat.NewRecorder()
	m := rec.NewModel()
	pruner := NewPruner(sc, 70, 150, 60, DefaultDcPruning())
	vs := NewVars(m, sc, pruner.AllowedArcs())
	cb := newConstraintBuilder(m, sc, vs, NewDemandCap(sc.DemandSteps), PeakInput)
	cb.addAll()
	return rec.Last(), cb.buildObjective(1000)
}

func TestObjectiveCostVarsPerEntity(t *testing.T) {
	m, _ := buildObjectiveRecorded(t)

	for _, name := range []string{"cost_v1", "cost_v2", "cost_wh0", "cost_wh1"} {
		if !m.HasIntVar(name) {
			t.Fatalf("missing cost var %s", name)
		}
	}
}

// Cost variable domains are what the solver validates the scaled goal
// against, so each bound must survive the lambdaScale coefficient and the
// whole goal's worst-case activity must fit in int64.
func TestObjectiveBoundsSurviveLambdaScaling(t *testing.T) {
	m, obj := buildObjectiveRecorded(t)

	for _, vr := range m.IntVars {
		if !strings.HasPrefix(vr.Name, "cost_") {
			continue
		}
		if vr.UB <= 0 {
			t.Fatalf("%s has empty domain [%d,%d]", vr.Name, vr.LB, vr.UB)
		}
		if vr.UB > math.MaxInt64/lambdaScale {
			t.Fatalf("%s upper bound %d overflows int64 under coefficient %d", vr.Name, vr.UB, int64(lambdaScale))
		}
	}

	// Worst realistic lambda: the whole numerator ceiling over one
	// delivered unit of value.
	scaledLambda := int64(math.Round(1000 * lambdaScale))
	goal := sat.NewExpr().
		AddScaled(obj.Numerator, lambdaScale).
		AddScaled(obj.Denominator, -scaledLambda)

	varUB := func(v sat.Var) int64 {
		if iv, ok := v.(sat.IntVar); ok {
			return m.IntVarRecord(iv).UB
		}
		return 1
	}
	var activity int64
	for _, term := range goal.Terms {
		coeff := term.Coeff
		if coeff < 0 {
			coeff = -coeff
		}
		ub := varUB(term.Var)
		if ub != 0 && coeff > math.MaxInt64/ub {
			t.Fatalf("goal term %d*[0,%d] overflows int64", term.Coeff, ub)
		}
		product := coeff * ub
		if activity > math.MaxInt64-product {
			t.Fatalf("goal activity overflows int64 after %d terms", len(goal.Terms))
		}
		activity += product
	}
	if activity <= 0 {
		t.Fatal("goal has no activity at all")
	}
}

func TestRouteDistanceCeilingCoversLongestTour(t *testing.T) {
	sc := fleetScenario()
	cb := newConstraintBuilder(sat.NewRecorder().NewModel(), sc, nil, NewDemandCap(sc.DemandSteps), PeakInput)

	// 4 locations, longest edge 10km: a closed tour can cover at most
	// 5 arcs of 10km.
	if got := cb.routeDistanceCeiling(); got < 50 || got > 52 {
		t.Fatalf("routeDistanceCeiling = %d, want about 51", got)
	}
}
