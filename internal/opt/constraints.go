package opt

import (
	"fmt"

	"breadfleet/internal/model"
	"breadfleet/internal/sat"
)

// constraintBuilder emits the full constraint set for one iteration's model.
// The per-vehicle state machine is implicit in the constraint structure:
// routing, time propagation, load flow, demand caps, warehouse stock, and
// activity linkage. Construction never fails; an internal invariant
// violation panics through the registry accessors.
type constraintBuilder struct {
	m    sat.Model
	sc   *model.Scenario
	vs   *Vars
	cap  DemandCap
	mode WarehouseCostMode

	locs    []model.LocationRef
	locByID map[int]model.LocationRef

	service map[vlKey]sat.IntVar
	visited map[vlKey]sat.BoolVar
	startWh map[vlKey]sat.BoolVar
	endWh   map[vlKey]sat.BoolVar
}

func newConstraintBuilder(m sat.Model, sc *model.Scenario, vs *Vars, cap DemandCap, mode WarehouseCostMode) *constraintBuilder {
	return &constraintBuilder{
		m:       m,
		sc:      sc,
		vs:      vs,
		cap:     cap,
		mode:    mode,
		locs:    sc.Locations(),
		locByID: sc.LocationByID(),
		service: make(map[vlKey]sat.IntVar),
		visited: make(map[vlKey]sat.BoolVar),
		startWh: make(map[vlKey]sat.BoolVar),
		endWh:   make(map[vlKey]sat.BoolVar),
	}
}

func (cb *constraintBuilder) addAll() {
	cb.addRouting()
	cb.addTiming()
	cb.addLoadFlow()
	cb.addDemandSatisfaction()
	cb.addWarehouses()
	cb.addActivityLinkage()
}

// arcLits collects a vehicle's routing indicators for arcs matching keep.
func (cb *constraintBuilder) arcLits(v int, keep func(Arc) bool) []sat.BoolVar {
	var lits []sat.BoolVar
	for _, a := range cb.vs.Arcs() {
		if !keep(a) {
			continue
		}
		if x, ok := cb.vs.Route(v, a.From, a.To); ok {
			lits = append(lits, x)
		}
	}
	return lits
}

func sumBools(lits []sat.BoolVar) *sat.Expr {
	e := sat.NewExpr()
	for _, l := range lits {
		e.Add(l)
	}
	return e
}

// serviceTime returns the cached service-time variable for a vehicle at a
// location: total brand volume touched there divided by the applicable
// handling speed, with truncating division. Throughput below one unit per
// minute deliberately yields zero service time.
func (cb *constraintBuilder) serviceTime(v model.Vehicle, loc model.LocationRef) sat.IntVar {
	key := vlKey{v.ID, loc.ID}
	if st, ok := cb.service[key]; ok {
		return st
	}

	total := cb.m.NewIntVar(0, 2*v.Capacity, fmt.Sprintf("total_vol_v%d_l%d_service", v.ID, loc.ID))
	vol := sat.NewExpr()
	for _, b := range cb.sc.Brands {
		vol.Add(cb.vs.Delivered(v.ID, loc.ID, b.ID)).Add(cb.vs.Pickup(v.ID, loc.ID, b.ID))
	}
	cb.m.AddEq(total, vol)

	speed := v.UnloadingSpeed
	if !loc.IsStore() {
		speed = loc.Warehouse.HandlingSpeed
	}
	var st sat.IntVar
	if speed < 1 {
		st = cb.m.NewIntVar(0, 0, fmt.Sprintf("service_t_v%d_l%d", v.ID, loc.ID))
	} else {
		st = cb.m.NewIntVar(0, 2*v.Capacity, fmt.Sprintf("service_t_v%d_l%d", v.ID, loc.ID))
		cb.m.AddDivEquality(st, total, int64(speed))
	}
	cb.service[key] = st
	return st
}

// visitFlag reifies "vehicle v touches location loc": true iff at least one
// incident arc is active.
func (cb *constraintBuilder) visitFlag(v, loc int) sat.BoolVar {
	key := vlKey{v, loc}
	if f, ok := cb.visited[key]; ok {
		return f
	}
	f := cb.m.NewBoolVar(fmt.Sprintf("visited_v%d_l%d", v, loc))
	incident := cb.arcLits(v, func(a Arc) bool { return a.From == loc || a.To == loc })
	if len(incident) == 0 {
		cb.m.AddEq(f, sat.Const(0))
	} else {
		cb.m.AddBoolOr(incident, f)
		cb.m.AddEq(sumBools(incident), sat.Const(0), f.Not())
	}
	cb.visited[key] = f
	return f
}

// startFlag marks the warehouse a vehicle's route departs from. The flag
// requires an outgoing arc; exactly one flag per used vehicle is forced in
// addRouting.
func (cb *constraintBuilder) startFlag(v, wh int) sat.BoolVar {
	key := vlKey{v, wh}
	if f, ok := cb.startWh[key]; ok {
		return f
	}
	f := cb.m.NewBoolVar(fmt.Sprintf("is_start_wh_v%d_wh%d", v, wh))
	outgoing := cb.arcLits(v, func(a Arc) bool { return a.From == wh })
	if len(outgoing) == 0 {
		cb.m.AddEq(f, sat.Const(0))
	} else {
		cb.m.AddBoolOr(outgoing, f)
	}
	cb.startWh[key] = f
	return f
}

// endFlag marks the warehouse a vehicle's route returns to.
func (cb *constraintBuilder) endFlag(v, wh int) sat.BoolVar {
	key := vlKey{v, wh}
	if f, ok := cb.endWh[key]; ok {
		return f
	}
	f := cb.m.NewBoolVar(fmt.Sprintf("is_end_wh_v%d_wh%d", v, wh))
	incoming := cb.arcLits(v, func(a Arc) bool { return a.To == wh })
	if len(incoming) == 0 {
		cb.m.AddEq(f, sat.Const(0))
	} else {
		cb.m.AddBoolOr(incoming, f)
	}
	cb.endWh[key] = f
	return f
}

// addRouting posts depot start/end arc counts, store flow conservation, and
// the distance accumulator.
func (cb *constraintBuilder) addRouting() {
	for _, v := range cb.sc.Vehicles {
		used := cb.vs.Used(v.ID)

		startArcs := cb.arcLits(v.ID, func(a Arc) bool { return !cb.locByID[a.From].IsStore() })
		endArcs := cb.arcLits(v.ID, func(a Arc) bool { return !cb.locByID[a.To].IsStore() })
		cb.m.AddEq(sumBools(startArcs), used)
		cb.m.AddEq(sumBools(endArcs), used)

		startFlags := sat.NewExpr()
		endFlags := sat.NewExpr()
		for i := range cb.sc.Warehouses {
			wh := cb.sc.Warehouses[i].ID
			startFlags.Add(cb.startFlag(v.ID, wh))
			endFlags.Add(cb.endFlag(v.ID, wh))
		}
		cb.m.AddEq(startFlags, used)
		cb.m.AddEq(endFlags, used)

		for _, loc := range cb.locs {
			if !loc.IsStore() {
				continue
			}
			incoming := cb.arcLits(v.ID, func(a Arc) bool { return a.To == loc.ID })
			outgoing := cb.arcLits(v.ID, func(a Arc) bool { return a.From == loc.ID })
			cb.m.AddEq(sumBools(incoming), sumBools(outgoing))
			cb.m.AddLe(sumBools(incoming), sat.Const(1))
		}

		distScaled := cb.m.NewIntVar(0, 100_000_000, fmt.Sprintf("dist_scaled_v%d", v.ID))
		distTerms := sat.NewExpr()
		for _, a := range cb.vs.Arcs() {
			if x, ok := cb.vs.Route(v.ID, a.From, a.To); ok {
				distTerms.AddTerm(x, int64(cb.sc.Network.Distance[a.From][a.To]*100))
			}
		}
		cb.m.AddEq(distScaled, distTerms, used)

		distDiv := cb.m.NewIntVar(0, 1_000_000, fmt.Sprintf("dist_div_v%d", v.ID))
		cb.m.AddDivEquality(distDiv, distScaled, 100)
		cb.m.AddEq(cb.vs.TotalDist(v.ID), distDiv, used)
		cb.m.AddEq(cb.vs.TotalDist(v.ID), sat.Const(0), used.Not())
	}
}

// addTiming posts arrival propagation along used arcs, store time windows,
// and the shift start/end/min-max bookkeeping. Unvisited locations are
// masked to sentinel extremes so they cannot influence the min/max.
func (cb *constraintBuilder) addTiming() {
	for _, v := range cb.sc.Vehicles {
		used := cb.vs.Used(v.ID)

		for _, loc := range cb.locs {
			cb.m.AddEq(cb.vs.Arrival(v.ID, loc.ID), sat.Const(0), used.Not())
		}

		for i := range cb.sc.Warehouses {
			wh := cb.sc.Warehouses[i].ID
			cb.m.AddEq(cb.vs.Arrival(v.ID, wh), cb.vs.ShiftStart(v.ID), cb.startFlag(v.ID, wh))
		}

		for _, a := range cb.vs.Arcs() {
			x, ok := cb.vs.Route(v.ID, a.From, a.To)
			if !ok {
				continue
			}
			svc := cb.serviceTime(v, cb.locByID[a.From])
			travel := cb.sc.Network.Time[a.From][a.To]
			cb.m.AddGe(cb.vs.Arrival(v.ID, a.To),
				sat.NewExpr().Add(cb.vs.Arrival(v.ID, a.From)).Add(svc).AddConst(travel), x)

			dst := cb.locByID[a.To]
			cb.m.AddGe(cb.vs.Arrival(v.ID, a.To), sat.Const(dst.WindowOpen()), x)
			cb.m.AddLe(cb.vs.Arrival(v.ID, a.To), sat.Const(dst.WindowClose()), x)
		}

		var arrivals, departures []sat.IntVar
		for _, loc := range cb.locs {
			f := cb.visitFlag(v.ID, loc.ID)

			arrIf := cb.m.NewIntVar(0, model.Horizon, fmt.Sprintf("arr_if_visited_v%d_l%d", v.ID, loc.ID))
			cb.m.AddEq(arrIf, cb.vs.Arrival(v.ID, loc.ID), f)
			cb.m.AddEq(arrIf, sat.Const(model.Horizon), f.Not())
			arrivals = append(arrivals, arrIf)

			svc := cb.serviceTime(v, loc)
			dep := cb.m.NewIntVar(0, 2*model.Horizon, fmt.Sprintf("dep_v%d_l%d", v.ID, loc.ID))
			cb.m.AddEq(dep, sat.NewExpr().Add(cb.vs.Arrival(v.ID, loc.ID)).Add(svc))

			depIf := cb.m.NewIntVar(0, 2*model.Horizon, fmt.Sprintf("dep_if_visited_v%d_l%d", v.ID, loc.ID))
			cb.m.AddEq(depIf, dep, f)
			cb.m.AddEq(depIf, sat.Const(0), f.Not())
			departures = append(departures, depIf)
		}

		minArr := cb.m.NewIntVar(0, model.Horizon, fmt.Sprintf("min_arr_v%d", v.ID))
		cb.m.AddMinEquality(minArr, arrivals)
		cb.m.AddEq(cb.vs.ShiftStart(v.ID), minArr, used)

		maxDep := cb.m.NewIntVar(0, 2*model.Horizon, fmt.Sprintf("max_dep_v%d", v.ID))
		cb.m.AddMaxEquality(maxDep, departures)
		cb.m.AddEq(cb.vs.ShiftEnd(v.ID), maxDep, used)

		cb.m.AddEq(cb.vs.TotalTime(v.ID),
			sat.NewExpr().Add(cb.vs.ShiftEnd(v.ID)).AddTerm(cb.vs.ShiftStart(v.ID), -1), used)

		cb.m.AddEq(cb.vs.ShiftStart(v.ID), sat.Const(0), used.Not())
		cb.m.AddEq(cb.vs.ShiftEnd(v.ID), sat.Const(0), used.Not())
		cb.m.AddEq(cb.vs.TotalTime(v.ID), sat.Const(0), used.Not())
	}
}

// addLoadFlow posts the cargo balance: depots are left with exactly the
// picked-up volume, load propagates along used arcs, deliveries never
// exceed the load aboard, and the vehicle returns empty.
func (cb *constraintBuilder) addLoadFlow() {
	for _, v := range cb.sc.Vehicles {
		used := cb.vs.Used(v.ID)

		for i := range cb.sc.Warehouses {
			wh := cb.sc.Warehouses[i].ID
			f := cb.startFlag(v.ID, wh)
			cb.m.AddEq(cb.vs.LoadArriving(v.ID, wh), sat.Const(0), f)
			pickups := sat.NewExpr()
			for _, b := range cb.sc.Brands {
				pickups.Add(cb.vs.Pickup(v.ID, wh, b.ID))
			}
			cb.m.AddEq(cb.vs.LoadAtPoint(v.ID, wh), pickups, f)
		}

		for _, a := range cb.vs.Arcs() {
			if x, ok := cb.vs.Route(v.ID, a.From, a.To); ok {
				cb.m.AddEq(cb.vs.LoadArriving(v.ID, a.To), cb.vs.LoadAtPoint(v.ID, a.From), x)
			}
		}

		for _, loc := range cb.locs {
			totalDel := sat.NewExpr()
			totalPick := sat.NewExpr()
			for _, b := range cb.sc.Brands {
				totalDel.Add(cb.vs.Delivered(v.ID, loc.ID, b.ID))
				totalPick.Add(cb.vs.Pickup(v.ID, loc.ID, b.ID))
			}

			cb.m.AddEq(totalDel, sat.Const(0), used.Not())
			cb.m.AddEq(totalPick, sat.Const(0), used.Not())
			cb.m.AddEq(cb.vs.LoadArriving(v.ID, loc.ID), sat.Const(0), used.Not())
			cb.m.AddEq(cb.vs.LoadAtPoint(v.ID, loc.ID), sat.Const(0), used.Not())

			f := cb.visitFlag(v.ID, loc.ID)
			balance := sat.NewExpr().Add(cb.vs.LoadArriving(v.ID, loc.ID)).
				AddScaled(totalDel, -1).
				AddScaled(totalPick, 1)
			cb.m.AddEq(cb.vs.LoadAtPoint(v.ID, loc.ID), balance, f)
			cb.m.AddLe(totalDel, cb.vs.LoadArriving(v.ID, loc.ID), f)
			cb.m.AddLe(cb.vs.LoadAtPoint(v.ID, loc.ID), sat.Const(v.Capacity), f)

			// Volume cannot move at a location the vehicle never touches.
			cb.m.AddEq(totalDel, sat.Const(0), f.Not())
			cb.m.AddEq(totalPick, sat.Const(0), f.Not())
		}

		for i := range cb.sc.Warehouses {
			wh := cb.sc.Warehouses[i].ID
			cb.m.AddEq(cb.vs.LoadAtPoint(v.ID, wh), sat.Const(0), cb.endFlag(v.ID, wh))
		}
	}
}

// addDemandSatisfaction bounds each store/brand's net delivered quantity by
// the demand cap evaluated at the earliest arrival among delivering
// vehicles. Non-delivering vehicles are masked to the horizon sentinel,
// which lands in the final cap interval and therefore never tightens the
// minimum.
func (cb *constraintBuilder) addDemandSatisfaction() {
	var capTotal int64
	for _, v := range cb.sc.Vehicles {
		capTotal += v.Capacity
	}

	for i := range cb.sc.Stores {
		store := &cb.sc.Stores[i]
		for _, brand := range cb.sc.Brands {
			net := cb.m.NewIntVar(-capTotal, capTotal, fmt.Sprintf("total_net_del_s%d_b%s", store.ID, brand.ID))
			netExpr := sat.NewExpr()
			for _, v := range cb.sc.Vehicles {
				netExpr.Add(cb.vs.Delivered(v.ID, store.ID, brand.ID)).
					AddTerm(cb.vs.Pickup(v.ID, store.ID, brand.ID), -1)
			}
			cb.m.AddEq(net, netExpr)

			earliest := cb.m.NewIntVar(0, model.Horizon, fmt.Sprintf("earliest_arr_s%d_b%s", store.ID, brand.ID))
			isAny := cb.m.NewBoolVar(fmt.Sprintf("is_any_del_s%d_b%s", store.ID, brand.ID))

			var flags []sat.BoolVar
			var arrIfDel []sat.IntVar
			for _, v := range cb.sc.Vehicles {
				isDel := cb.m.NewBoolVar(fmt.Sprintf("is_del_v%d_s%d_b%s", v.ID, store.ID, brand.ID))
				cb.m.AddGe(cb.vs.Delivered(v.ID, store.ID, brand.ID), sat.Const(1), isDel)
				cb.m.AddEq(cb.vs.Delivered(v.ID, store.ID, brand.ID), sat.Const(0), isDel.Not())
				flags = append(flags, isDel)

				aid := cb.m.NewIntVar(0, model.Horizon, fmt.Sprintf("arr_if_del_v%d_s%d_b%s", v.ID, store.ID, brand.ID))
				cb.m.AddEq(aid, cb.vs.Arrival(v.ID, store.ID), isDel)
				cb.m.AddEq(aid, sat.Const(model.Horizon), isDel.Not())
				arrIfDel = append(arrIfDel, aid)
			}

			if len(flags) > 0 {
				cb.m.AddBoolOr(flags, isAny)
				cb.m.AddEq(sumBools(flags), sat.Const(0), isAny.Not())
				cb.m.AddMinEquality(earliest, arrIfDel)
			} else {
				cb.m.AddEq(isAny, sat.Const(0))
				cb.m.AddEq(earliest, sat.Const(0))
			}

			maxAllowed := cb.cap.Apply(cb.m, earliest, store.BaseDemand(brand.ID),
				fmt.Sprintf("max_vol_s%d_b%s", store.ID, brand.ID))

			cb.m.AddLe(net, maxAllowed, isAny)
			cb.m.AddLe(net, sat.Const(0), isAny.Not())
		}
	}
}

// addWarehouses posts visit reification, per-brand stock reservoirs, the
// cost-driver accounting for the configured mode, and the pickup ban on
// brands the warehouse does not produce.
func (cb *constraintBuilder) addWarehouses() {
	for i := range cb.sc.Warehouses {
		wh := &cb.sc.Warehouses[i]
		whLoc := cb.locByID[wh.ID]

		var visitFlags []sat.BoolVar
		for _, v := range cb.sc.Vehicles {
			visit := cb.vs.WarehouseVisit(wh.ID, v.ID)
			incident := cb.arcLits(v.ID, func(a Arc) bool { return a.From == wh.ID || a.To == wh.ID })
			if len(incident) == 0 {
				cb.m.AddEq(visit, sat.Const(0))
			} else {
				cb.m.AddGe(sumBools(incident), sat.Const(1), visit)
				cb.m.AddEq(sumBools(incident), sat.Const(0), visit.Not())
			}
			visitFlags = append(visitFlags, visit)

			iv := cb.vs.WarehouseVisitInterval(wh.ID, v.ID)
			cb.m.AddEq(iv.Start, cb.vs.Arrival(v.ID, wh.ID), visit)
			cb.m.AddEq(iv.Duration, cb.serviceTime(v, whLoc), visit)
		}

		active := cb.vs.WarehouseActive(wh.ID)
		if len(visitFlags) == 0 {
			cb.m.AddEq(active, sat.Const(0))
		} else {
			cb.m.AddGe(sumBools(visitFlags), sat.Const(1), active)
			cb.m.AddEq(sumBools(visitFlags), sat.Const(0), active.Not())
		}

		for _, b := range cb.sc.Brands {
			events := make([]sat.Interval, 0, len(cb.sc.Vehicles))
			deltas := make([]sat.IntVar, 0, len(cb.sc.Vehicles))
			for _, v := range cb.sc.Vehicles {
				change := cb.vs.WarehouseStockChange(wh.ID, b.ID, v.ID)
				cb.m.AddEq(change, sat.NewExpr().
					Add(cb.vs.Delivered(v.ID, wh.ID, b.ID)).
					AddTerm(cb.vs.Pickup(v.ID, wh.ID, b.ID), -1))
				events = append(events, cb.vs.WarehouseVisitInterval(wh.ID, v.ID))
				deltas = append(deltas, change)
			}
			cb.m.AddReservoir(events, deltas, 0, whStockCeiling, wh.InitialStock[b.ID])
		}

		switch cb.mode {
		case ExactPeak:
			cb.addExactPeakDriver(wh, active)
		default:
			cb.addPeakInputDriver(wh, active)
		}

		for _, b := range cb.sc.Brands {
			if wh.Produces(b.ID) {
				continue
			}
			for _, v := range cb.sc.Vehicles {
				cb.m.AddEq(cb.vs.Pickup(v.ID, wh.ID, b.ID), sat.Const(0))
			}
		}
	}
}

// addPeakInputDriver charges the cheap upper bound: initial stock plus every
// delivery into the warehouse, ignoring pickups.
func (cb *constraintBuilder) addPeakInputDriver(wh *model.Warehouse, active sat.BoolVar) {
	inflow := sat.Const(wh.TotalInitialStock())
	for _, v := range cb.sc.Vehicles {
		for _, b := range cb.sc.Brands {
			inflow.Add(cb.vs.Delivered(v.ID, wh.ID, b.ID))
		}
	}
	cb.m.AddEq(cb.vs.WarehouseMaxVol(wh.ID), inflow, active)
	cb.m.AddEq(cb.vs.WarehouseMaxVol(wh.ID), sat.Const(0), active.Not())
}

// addExactPeakDriver charges the true observed stock peak via an event
// chain: pairwise visit-order literals, order-and-presence gated
// contributions, and a one-directional lower bound of each post-visit stock
// into the cost driver. The solver squeezes the driver down to the peak
// while minimizing. Factories are exempt; their throughput is not charged.
// The structure is O(k^2) in the number of eligible vehicles, which is why
// eligibility is filtered on surviving candidate arcs first.
func (cb *constraintBuilder) addExactPeakDriver(wh *model.Warehouse, active sat.BoolVar) {
	maxVol := cb.vs.WarehouseMaxVol(wh.ID)
	if wh.IsFactory {
		cb.m.AddEq(maxVol, sat.Const(0))
		return
	}

	var eligible []model.Vehicle
	for _, v := range cb.sc.Vehicles {
		if len(cb.arcLits(v.ID, func(a Arc) bool { return a.From == wh.ID || a.To == wh.ID })) > 0 {
			eligible = append(eligible, v)
		}
	}

	// before[i][j] for i<j: vehicle eligible[i] arrives no later than
	// eligible[j]; ties resolve to the lower index.
	before := make(map[[2]int]sat.BoolVar)
	for i := range eligible {
		for j := i + 1; j < len(eligible); j++ {
			b := cb.m.NewBoolVar(fmt.Sprintf("before_w%d_v%d_v%d", wh.ID, eligible[i].ID, eligible[j].ID))
			ai := cb.vs.Arrival(eligible[i].ID, wh.ID)
			aj := cb.vs.Arrival(eligible[j].ID, wh.ID)
			cb.m.AddLe(ai, aj, b)
			cb.m.AddGe(ai, sat.NewExpr().Add(aj).AddConst(1), b.Not())
			before[[2]int{i, j}] = b
		}
	}
	beforeLit := func(i, j int) sat.BoolVar {
		if i < j {
			return before[[2]int{i, j}]
		}
		return before[[2]int{j, i}].Not()
	}

	totalChange := func(v int) *sat.Expr {
		e := sat.NewExpr()
		for _, b := range cb.sc.Brands {
			e.Add(cb.vs.WarehouseStockChange(wh.ID, b.ID, v))
		}
		return e
	}

	for j, vj := range eligible {
		visitJ := cb.vs.WarehouseVisit(wh.ID, vj.ID)

		stock := sat.Const(wh.TotalInitialStock()).AddScaled(totalChange(vj.ID), 1)
		for i, vi := range eligible {
			if i == j {
				continue
			}
			visitI := cb.vs.WarehouseVisit(wh.ID, vi.ID)
			lit := beforeLit(i, j)

			contrib := cb.m.NewIntVar(-vi.Capacity, vi.Capacity,
				fmt.Sprintf("peak_contrib_w%d_v%d_to_v%d", wh.ID, vi.ID, vj.ID))
			cb.m.AddEq(contrib, totalChange(vi.ID), lit, visitI, visitJ)
			cb.m.AddEq(contrib, sat.Const(0), lit.Not())
			cb.m.AddEq(contrib, sat.Const(0), visitI.Not())
			stock.Add(contrib)
		}

		post := cb.m.NewIntVar(0, whStockCeiling, fmt.Sprintf("post_stock_w%d_v%d", wh.ID, vj.ID))
		cb.m.AddEq(post, stock, visitJ)
		cb.m.AddGe(maxVol, post, visitJ)
	}

	cb.m.AddGe(maxVol, sat.Const(wh.TotalInitialStock()), active)
	cb.m.AddEq(maxVol, sat.Const(0), active.Not())
}

// addActivityLinkage ties each vehicle's used-indicator to having at least
// one active arc.
func (cb *constraintBuilder) addActivityLinkage() {
	for _, v := range cb.sc.Vehicles {
		used := cb.vs.Used(v.ID)
		all := cb.arcLits(v.ID, func(Arc) bool { return true })
		if len(all) == 0 {
			cb.m.AddEq(used, sat.Const(0))
			continue
		}
		cb.m.AddGe(sumBools(all), sat.Const(1), used)
		cb.m.AddEq(sumBools(all), sat.Const(0), used.Not())
	}
}
