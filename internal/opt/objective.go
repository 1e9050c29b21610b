package opt

import (
	"fmt"

	"breadfleet/internal/model"
	"breadfleet/internal/sat"
)

// objectiveExprs holds the two fixed-point-scaled integer expressions of the
// fractional objective: operating cost over delivered value.
type objectiveExprs struct {
	Numerator   *sat.Expr
	Denominator *sat.Expr
}

// costBoundCeiling caps every cost variable's declared domain. The outer
// loop multiplies the numerator by lambdaScale, and the solver validates
// coefficient*bound products against declared domains, not reachable
// values, so each bound must stay within MaxInt64/lambdaScale with room
// for the whole sum.
const costBoundCeiling = 1_000_000

// buildObjective derives both expressions from a built model. All floating
// rates are pre-scaled to integers with truncation so the inner solve stays
// purely integral. Cost variable domains are derived from the scenario
// inputs rather than a generic constant, then clamped at the ceiling.
func (cb *constraintBuilder) buildObjective(scale int64) objectiveExprs {
	scaled := func(v float64) int64 { return int64(v * float64(scale)) }
	clamp := func(ub int64) int64 {
		if ub > costBoundCeiling*scale {
			return costBoundCeiling * scale
		}
		return ub
	}

	distCeiling := cb.routeDistanceCeiling()
	numerator := sat.NewExpr()
	for _, v := range cb.sc.Vehicles {
		used := cb.vs.Used(v.ID)
		ub := clamp(scaled(v.CostDispatch) +
			scaled(v.CostPerKm)*distCeiling +
			scaled(v.CostPerHour)*model.Horizon)
		cost := cb.m.NewIntVar(0, ub, fmt.Sprintf("cost_v%d", v.ID))

		expr := sat.Const(scaled(v.CostDispatch)).
			AddTerm(cb.vs.TotalDist(v.ID), scaled(v.CostPerKm)).
			AddTerm(cb.vs.TotalTime(v.ID), scaled(v.CostPerHour))
		cb.m.AddEq(cost, expr, used)
		cb.m.AddEq(cost, sat.Const(0), used.Not())

		numerator.Add(cost)
	}

	var fleetCap int64
	for _, v := range cb.sc.Vehicles {
		fleetCap += v.Capacity
	}
	for i := range cb.sc.Warehouses {
		wh := &cb.sc.Warehouses[i]
		active := cb.vs.WarehouseActive(wh.ID)
		// Stock never exceeds what was there plus what the whole fleet
		// can haul in.
		volCeiling := wh.TotalInitialStock() + fleetCap
		ub := clamp(scaled(wh.FixedStaffCost) + scaled(wh.CostPerVolume)*volCeiling)
		cost := cb.m.NewIntVar(0, ub, fmt.Sprintf("cost_wh%d", wh.ID))

		expr := sat.Const(scaled(wh.FixedStaffCost)).
			AddTerm(cb.vs.WarehouseMaxVol(wh.ID), scaled(wh.CostPerVolume))
		cb.m.AddEq(cost, expr, active)
		cb.m.AddEq(cost, sat.Const(0), active.Not())

		numerator.Add(cost)
	}

	unitValue := scaled(cb.sc.BreadUnitCost)
	denominator := sat.NewExpr()
	for _, v := range cb.sc.Vehicles {
		for j := range cb.sc.Stores {
			store := &cb.sc.Stores[j]
			for _, b := range cb.sc.Brands {
				denominator.AddTerm(cb.vs.Delivered(v.ID, store.ID, b.ID), unitValue)
			}
		}
	}

	return objectiveExprs{Numerator: numerator, Denominator: denominator}
}

// routeDistanceCeiling bounds any single route's length: one closed tour
// touches at most every location once, so it uses at most n+1 arcs, each no
// longer than the network's longest edge.
func (cb *constraintBuilder) routeDistanceCeiling() int64 {
	var longest float64
	for _, row := range cb.sc.Network.Distance {
		for _, d := range row {
			if d > longest {
				longest = d
			}
		}
	}
	return int64(longest*float64(len(cb.locs)+1)) + 1
}
