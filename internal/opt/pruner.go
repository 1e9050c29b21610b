package opt

import (
	"fmt"
	"sort"
	"strings"

	"breadfleet/internal/model"
)

// Arc is a directed candidate connection between two locations.
type Arc struct {
	From int
	To   int
}

// DcPruning controls dominance-based elimination of factory to
// distribution-center arcs. Pruning is safe: only arcs that can never be
// part of an optimal plan are removed.
type DcPruning struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	SingleDominance    bool    `json:"singleDominance" yaml:"single_dominance"`
	CompositeDominance bool    `json:"compositeDominance" yaml:"composite_dominance"`
	DistanceThreshold  float64 `json:"distanceThreshold" yaml:"distance_threshold"`
}

func DefaultDcPruning() DcPruning {
	return DcPruning{
		Enabled:            true,
		SingleDominance:    true,
		CompositeDominance: true,
		DistanceThreshold:  0.25,
	}
}

// Pruner derives the reduced candidate-arc set consumed by the decision
// model. All caches are built at construction and read-only afterwards, so a
// single Pruner is shared across every outer iteration.
type Pruner struct {
	sc            *model.Scenario
	minK, maxK    int
	minTimeRadius int64
	dc            DcPruning

	locs      []model.LocationRef
	neighbors map[int]map[int]bool
	prunedDC  map[Arc]bool
	allowed   []Arc
}

func NewPruner(sc *model.Scenario, minK, maxK int, minTimeRadius int64, dc DcPruning) *Pruner {
	p := &Pruner{
		sc:            sc,
		minK:          minK,
		maxK:          maxK,
		minTimeRadius: minTimeRadius,
		dc:            dc,
		locs:          sc.Locations(),
	}
	p.neighbors = p.buildNeighborCache()
	p.prunedDC = p.computePrunedFactoryDCArcs()
	p.allowed = p.computeAllowedArcs()
	return p
}

// AllowedArcs returns the candidate arcs surviving every filter: time
// feasibility, factory-to-DC dominance, and adaptive store density. The
// slice is memoized; callers must not mutate it.
func (p *Pruner) AllowedArcs() []Arc { return p.allowed }

func (p *Pruner) computeAllowedArcs() []Arc {
	var allowed []Arc
	for _, i := range p.locs {
		for _, j := range p.locs {
			if i.ID == j.ID {
				continue
			}
			if !p.timeFeasible(i, j) {
				continue
			}
			if p.prunedDC[Arc{From: i.ID, To: j.ID}] {
				continue
			}
			if !i.IsStore() || !j.IsStore() {
				// Warehouses are hubs; never density-pruned.
				allowed = append(allowed, Arc{From: i.ID, To: j.ID})
				continue
			}
			if p.neighbors[i.ID][j.ID] {
				allowed = append(allowed, Arc{From: i.ID, To: j.ID})
			}
		}
	}
	return allowed
}

// timeFeasible discards arcs that can never be used: the earliest departure
// from i plus travel must not overshoot j's window close.
func (p *Pruner) timeFeasible(i, j model.LocationRef) bool {
	travel := p.sc.Network.Time[i.ID][j.ID]
	return i.WindowOpen()+travel <= j.WindowClose()
}

// buildNeighborCache computes the adaptive store-to-store neighbor sets:
// the minK nearest stores by travel time, extended up to maxK while the
// next candidate is still within minTimeRadius. Dense clusters get wider
// sets, sparse ones stay at minK.
func (p *Pruner) buildNeighborCache() map[int]map[int]bool {
	cache := make(map[int]map[int]bool, len(p.sc.Stores))
	tm := p.sc.Network.Time

	type cand struct {
		time int64
		id   int
	}
	for i := range p.sc.Stores {
		src := &p.sc.Stores[i]
		candidates := make([]cand, 0, len(p.sc.Stores)-1)
		for j := range p.sc.Stores {
			dst := &p.sc.Stores[j]
			if dst.ID == src.ID {
				continue
			}
			candidates = append(candidates, cand{time: tm[src.ID][dst.ID], id: dst.ID})
		}
		sort.Slice(candidates, func(a, b int) bool {
			if candidates[a].time != candidates[b].time {
				return candidates[a].time < candidates[b].time
			}
			return candidates[a].id < candidates[b].id
		})

		n := p.minK
		if n > len(candidates) {
			n = len(candidates)
		}
		selected := candidates[:n]
		if n > 0 && selected[n-1].time < p.minTimeRadius {
			for _, c := range candidates[n:] {
				if len(selected) >= p.maxK {
					break
				}
				if c.time > p.minTimeRadius {
					break
				}
				selected = append(selected, c)
			}
		}

		set := make(map[int]bool, len(selected))
		for _, c := range selected {
			set[c.id] = true
		}
		cache[src.ID] = set
	}
	return cache
}

// DcPruningReport renders the pruned factory-to-DC arcs for audit.
func (p *Pruner) DcPruningReport() string {
	if len(p.prunedDC) == 0 {
		return "DC pruning: no arcs pruned."
	}
	byID := p.sc.LocationByID()
	arcs := make([]Arc, 0, len(p.prunedDC))
	for a := range p.prunedDC {
		arcs = append(arcs, a)
	}
	sort.Slice(arcs, func(i, j int) bool {
		if arcs[i].From != arcs[j].From {
			return arcs[i].From < arcs[j].From
		}
		return arcs[i].To < arcs[j].To
	})
	var b strings.Builder
	fmt.Fprintf(&b, "DC pruning: %d arc(s) removed:", len(arcs))
	for _, a := range arcs {
		fName, dcName := fmt.Sprint(a.From), fmt.Sprint(a.To)
		if l, ok := byID[a.From]; ok {
			fName = l.Name
		}
		if l, ok := byID[a.To]; ok {
			dcName = l.Name
		}
		fmt.Fprintf(&b, "\n  %s -> %s", fName, dcName)
	}
	return b.String()
}

func (p *Pruner) computePrunedFactoryDCArcs() map[Arc]bool {
	pruned := make(map[Arc]bool)
	if !p.dc.Enabled {
		return pruned
	}
	var factories, dcs []*model.Warehouse
	for i := range p.sc.Warehouses {
		wh := &p.sc.Warehouses[i]
		if wh.IsFactory {
			factories = append(factories, wh)
		} else {
			dcs = append(dcs, wh)
		}
	}
	if len(factories) == 0 || len(dcs) == 0 {
		return pruned
	}

	brands := newBrandIndex(p.sc.Brands)
	produced := make(map[int]brandSet, len(factories))
	for _, f := range factories {
		produced[f.ID] = brands.setOf(f.ProducedBrands)
	}

	dist := p.sc.Network.Distance
	for _, dc := range dcs {
		for _, f := range factories {
			distFDC := dist[f.ID][dc.ID]
			dominated := false
			if p.dc.SingleDominance {
				dominated = p.singleDominated(f, dc, factories, produced, distFDC)
			}
			if !dominated && p.dc.CompositeDominance {
				dominated = p.compositeDominated(f, dc, factories, produced, distFDC)
			}
			if dominated {
				pruned[Arc{From: f.ID, To: dc.ID}] = true
			}
		}
	}
	return pruned
}

// singleDominated reports whether another factory covers every brand of f
// and sits at least DistanceThreshold closer to the DC.
func (p *Pruner) singleDominated(f, dc *model.Warehouse, factories []*model.Warehouse, produced map[int]brandSet, distFDC float64) bool {
	dist := p.sc.Network.Distance
	maxAltDist := distFDC * (1.0 - p.dc.DistanceThreshold)
	want := produced[f.ID]
	for _, alt := range factories {
		if alt.ID == f.ID {
			continue
		}
		if produced[alt.ID].containsAll(want) && dist[alt.ID][dc.ID] <= maxAltDist {
			return true
		}
	}
	return false
}

// compositeDominated reports whether a pair of strictly-closer factories
// jointly covers every brand of f. Requiring both to be closer keeps the
// rule conservative: no assumption is made about the cost of two trips
// versus one.
func (p *Pruner) compositeDominated(f, dc *model.Warehouse, factories []*model.Warehouse, produced map[int]brandSet, distFDC float64) bool {
	dist := p.sc.Network.Distance
	maxAltDist := distFDC * (1.0 - p.dc.DistanceThreshold)
	want := produced[f.ID]

	var closer []*model.Warehouse
	for _, alt := range factories {
		if alt.ID != f.ID && dist[alt.ID][dc.ID] <= maxAltDist {
			closer = append(closer, alt)
		}
	}
	for i, a := range closer {
		for _, b := range closer[i+1:] {
			if produced[a.ID].union(produced[b.ID]).containsAll(want) {
				return true
			}
		}
	}
	return false
}

// brandIndex maps brand ids onto a dense bit index so superset tests run on
// word operations instead of hashed sets.
type brandIndex map[string]int

func newBrandIndex(brands []model.Brand) brandIndex {
	idx := make(brandIndex, len(brands))
	for i, b := range brands {
		idx[b.ID] = i
	}
	return idx
}

func (idx brandIndex) setOf(ids []string) brandSet {
	s := make(brandSet, (len(idx)+63)/64)
	for _, id := range ids {
		if i, ok := idx[id]; ok {
			s[i/64] |= 1 << (uint(i) % 64)
		}
	}
	return s
}

type brandSet []uint64

func (s brandSet) containsAll(o brandSet) bool {
	for i, w := range o {
		if i >= len(s) {
			if w != 0 {
				return false
			}
			continue
		}
		if w&^s[i] != 0 {
			return false
		}
	}
	return true
}

func (s brandSet) union(o brandSet) brandSet {
	n := len(s)
	if len(o) > n {
		n = len(o)
	}
	out := make(brandSet, n)
	copy(out, s)
	for i, w := range o {
		out[i] |= w
	}
	return out
}
