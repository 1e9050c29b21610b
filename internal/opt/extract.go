package opt

import (
	"breadfleet/internal/model"
	"breadfleet/internal/sat"
)

// extractSolution reads solved variable values into the presentation-level
// records. Lambda and the cost/value totals are filled in by the loop.
func extractSolution(r sat.Result, sc *model.Scenario, vs *Vars) *model.Solution {
	sol := &model.Solution{
		Vehicles:   make([]model.VehicleAssignment, 0, len(sc.Vehicles)),
		Warehouses: make([]model.WarehouseAssignment, 0, len(sc.Warehouses)),
	}

	for _, v := range sc.Vehicles {
		used := r.BoolValue(vs.Used(v.ID))
		dist := r.Value(vs.TotalDist(v.ID))
		dur := r.Value(vs.TotalTime(v.ID))

		var route []int
		var cost float64
		if used {
			route = walkRoute(r, sc, vs, v.ID)
			cost = v.CostDispatch + v.CostPerKm*float64(dist) + v.CostPerHour*float64(dur)
		}
		sol.Vehicles = append(sol.Vehicles, model.VehicleAssignment{
			VehicleID:  v.ID,
			Category:   v.Category,
			Used:       used,
			Route:      route,
			DistanceKm: dist,
			TimeMin:    dur,
			Cost:       cost,
		})
	}

	for i := range sc.Warehouses {
		wh := &sc.Warehouses[i]
		active := r.BoolValue(vs.WarehouseActive(wh.ID))
		peak := r.Value(vs.WarehouseMaxVol(wh.ID))
		var cost float64
		if active {
			cost = wh.CostPerVolume*float64(peak) + wh.FixedStaffCost
		}
		sol.Warehouses = append(sol.Warehouses, model.WarehouseAssignment{
			WarehouseID: wh.ID,
			Active:      active,
			PeakVolume:  peak,
			Cost:        cost,
		})
	}

	return sol
}

// walkRoute reconstructs a vehicle's ordered visit sequence from the solved
// arc indicators, starting at the depot it departs from and stopping when
// the route closes or runs out of active arcs.
func walkRoute(r sat.Result, sc *model.Scenario, vs *Vars, vehicle int) []int {
	locs := sc.Locations()

	start := -1
	for i := range sc.Warehouses {
		wh := sc.Warehouses[i].ID
		for _, j := range locs {
			if x, ok := vs.Route(vehicle, wh, j.ID); ok && r.BoolValue(x) {
				start = wh
				break
			}
		}
		if start != -1 {
			break
		}
	}
	if start == -1 {
		return nil
	}

	route := []int{start}
	current := start
	for steps := 0; steps < len(locs)+2; steps++ {
		next := -1
		for _, j := range locs {
			if j.ID == current {
				continue
			}
			if x, ok := vs.Route(vehicle, current, j.ID); ok && r.BoolValue(x) {
				next = j.ID
				break
			}
		}
		if next == -1 {
			break
		}
		route = append(route, next)
		if next == start {
			break
		}
		current = next
	}
	return route
}
