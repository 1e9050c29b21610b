package opt

import (
	"fmt"

	"breadfleet/internal/model"
	"breadfleet/internal/sat"
)

// Composite registry keys. The registries are rebuilt from scratch for every
// outer iteration, so handles never leak across models.
type vlKey struct {
	V, L int
}

type vlbKey struct {
	V, L int
	B    string
}

type arcKey struct {
	V, From, To int
}

type wvKey struct {
	W, V int
}

type wbvKey struct {
	W int
	B string
	V int
}

const whStockCeiling = 10_000_000

// Vars owns every decision and auxiliary variable of one iteration's model.
// Accessors are total for registered ids and panic otherwise: a missing
// variable is a programming defect, except for routing indicators, where
// absence means the arc was pruned.
type Vars struct {
	arcs []Arc

	x            map[arcKey]sat.BoolVar
	arrival      map[vlKey]sat.IntVar
	loadArriving map[vlKey]sat.IntVar
	loadAtPoint  map[vlKey]sat.IntVar
	delivered    map[vlbKey]sat.IntVar
	pickup       map[vlbKey]sat.IntVar

	whActive      map[int]sat.BoolVar
	whMaxVol      map[int]sat.IntVar
	whStockChange map[wbvKey]sat.IntVar
	whVisit       map[wvKey]sat.BoolVar
	whInterval    map[wvKey]sat.Interval

	used       map[int]sat.BoolVar
	totalDist  map[int]sat.IntVar
	totalTime  map[int]sat.IntVar
	shiftStart map[int]sat.IntVar
	shiftEnd   map[int]sat.IntVar
}

// NewVars registers the full variable set for one model. Routing indicators
// exist only for arcs in the candidate set.
func NewVars(m sat.Model, sc *model.Scenario, arcs []Arc) *Vars {
	vs := &Vars{
		arcs:          arcs,
		x:             make(map[arcKey]sat.BoolVar),
		arrival:       make(map[vlKey]sat.IntVar),
		loadArriving:  make(map[vlKey]sat.IntVar),
		loadAtPoint:   make(map[vlKey]sat.IntVar),
		delivered:     make(map[vlbKey]sat.IntVar),
		pickup:        make(map[vlbKey]sat.IntVar),
		whActive:      make(map[int]sat.BoolVar),
		whMaxVol:      make(map[int]sat.IntVar),
		whStockChange: make(map[wbvKey]sat.IntVar),
		whVisit:       make(map[wvKey]sat.BoolVar),
		whInterval:    make(map[wvKey]sat.Interval),
		used:          make(map[int]sat.BoolVar),
		totalDist:     make(map[int]sat.IntVar),
		totalTime:     make(map[int]sat.IntVar),
		shiftStart:    make(map[int]sat.IntVar),
		shiftEnd:      make(map[int]sat.IntVar),
	}

	locs := sc.Locations()
	for _, v := range sc.Vehicles {
		vs.used[v.ID] = m.NewBoolVar(fmt.Sprintf("used_v%d", v.ID))
		vs.totalDist[v.ID] = m.NewIntVar(0, 1_000_000, fmt.Sprintf("dist_v%d", v.ID))
		vs.totalTime[v.ID] = m.NewIntVar(0, model.Horizon, fmt.Sprintf("total_t_v%d", v.ID))
		vs.shiftStart[v.ID] = m.NewIntVar(0, model.Horizon, fmt.Sprintf("start_v%d", v.ID))
		vs.shiftEnd[v.ID] = m.NewIntVar(0, model.Horizon, fmt.Sprintf("end_v%d", v.ID))

		for _, loc := range locs {
			vs.arrival[vlKey{v.ID, loc.ID}] = m.NewIntVar(0, model.Horizon, fmt.Sprintf("arr_v%d_l%d", v.ID, loc.ID))
			vs.loadArriving[vlKey{v.ID, loc.ID}] = m.NewIntVar(0, v.Capacity, fmt.Sprintf("load_arr_v%d_l%d", v.ID, loc.ID))
			vs.loadAtPoint[vlKey{v.ID, loc.ID}] = m.NewIntVar(0, v.Capacity, fmt.Sprintf("load_out_v%d_l%d", v.ID, loc.ID))
			for _, b := range sc.Brands {
				vs.delivered[vlbKey{v.ID, loc.ID, b.ID}] = m.NewIntVar(0, v.Capacity, fmt.Sprintf("del_v%d_l%d_b%s", v.ID, loc.ID, b.ID))
				vs.pickup[vlbKey{v.ID, loc.ID, b.ID}] = m.NewIntVar(0, v.Capacity, fmt.Sprintf("pick_v%d_l%d_b%s", v.ID, loc.ID, b.ID))
			}
		}

		for _, a := range arcs {
			vs.x[arcKey{v.ID, a.From, a.To}] = m.NewBoolVar(fmt.Sprintf("x_v%d_%d_%d", v.ID, a.From, a.To))
		}
	}

	for i := range sc.Warehouses {
		wh := &sc.Warehouses[i]
		vs.whActive[wh.ID] = m.NewBoolVar(fmt.Sprintf("wh_active_%d", wh.ID))
		vs.whMaxVol[wh.ID] = m.NewIntVar(0, whStockCeiling, fmt.Sprintf("wh_max_flow_w%d", wh.ID))

		for _, v := range sc.Vehicles {
			visit := m.NewBoolVar(fmt.Sprintf("wh_visit_active_w%d_v%d", wh.ID, v.ID))
			vs.whVisit[wvKey{wh.ID, v.ID}] = visit
			vs.whInterval[wvKey{wh.ID, v.ID}] = m.NewOptionalInterval(
				m.NewIntVar(0, model.Horizon, fmt.Sprintf("wh_int_start_w%d_v%d", wh.ID, v.ID)),
				m.NewIntVar(0, model.Horizon, fmt.Sprintf("wh_int_dur_w%d_v%d", wh.ID, v.ID)),
				m.NewIntVar(0, 2*model.Horizon, fmt.Sprintf("wh_int_end_w%d_v%d", wh.ID, v.ID)),
				visit,
			)
			for _, b := range sc.Brands {
				vs.whStockChange[wbvKey{wh.ID, b.ID, v.ID}] = m.NewIntVar(
					-v.Capacity, v.Capacity, fmt.Sprintf("stock_change_w%d_b%s_v%d", wh.ID, b.ID, v.ID))
			}
		}
	}

	return vs
}

// Arcs returns the candidate set this registry was built over.
func (vs *Vars) Arcs() []Arc { return vs.arcs }

// Route returns the routing indicator for an arc, reporting whether the arc
// exists in the candidate set. A false second return means "forbidden", not
// "zero".
func (vs *Vars) Route(v, from, to int) (sat.BoolVar, bool) {
	x, ok := vs.x[arcKey{v, from, to}]
	return x, ok
}

func (vs *Vars) Arrival(v, loc int) sat.IntVar {
	return mustVar(vs.arrival, vlKey{v, loc}, "arrival")
}

func (vs *Vars) LoadArriving(v, loc int) sat.IntVar {
	return mustVar(vs.loadArriving, vlKey{v, loc}, "load-arriving")
}

func (vs *Vars) LoadAtPoint(v, loc int) sat.IntVar {
	return mustVar(vs.loadAtPoint, vlKey{v, loc}, "load-at-point")
}

func (vs *Vars) Delivered(v, loc int, brand string) sat.IntVar {
	return mustVar(vs.delivered, vlbKey{v, loc, brand}, "delivered")
}

func (vs *Vars) Pickup(v, loc int, brand string) sat.IntVar {
	return mustVar(vs.pickup, vlbKey{v, loc, brand}, "pickup")
}

func (vs *Vars) WarehouseActive(wh int) sat.BoolVar {
	return mustVar(vs.whActive, wh, "warehouse-active")
}

func (vs *Vars) WarehouseMaxVol(wh int) sat.IntVar {
	return mustVar(vs.whMaxVol, wh, "warehouse-max-vol")
}

func (vs *Vars) WarehouseStockChange(wh int, brand string, v int) sat.IntVar {
	return mustVar(vs.whStockChange, wbvKey{wh, brand, v}, "warehouse-stock-change")
}

func (vs *Vars) WarehouseVisit(wh, v int) sat.BoolVar {
	return mustVar(vs.whVisit, wvKey{wh, v}, "warehouse-visit")
}

func (vs *Vars) WarehouseVisitInterval(wh, v int) sat.Interval {
	return mustVar(vs.whInterval, wvKey{wh, v}, "warehouse-visit-interval")
}

func (vs *Vars) Used(v int) sat.BoolVar {
	return mustVar(vs.used, v, "vehicle-used")
}

func (vs *Vars) TotalDist(v int) sat.IntVar {
	return mustVar(vs.totalDist, v, "total-dist")
}

func (vs *Vars) TotalTime(v int) sat.IntVar {
	return mustVar(vs.totalTime, v, "total-time")
}

func (vs *Vars) ShiftStart(v int) sat.IntVar {
	return mustVar(vs.shiftStart, v, "shift-start")
}

func (vs *Vars) ShiftEnd(v int) sat.IntVar {
	return mustVar(vs.shiftEnd, v, "shift-end")
}

func mustVar[K comparable, T any](m map[K]T, k K, what string) T {
	v, ok := m[k]
	if !ok {
		panic(fmt.Sprintf("opt: %s variable %+v was never registered", what, k))
	}
	return v
}
