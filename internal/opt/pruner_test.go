package opt

import (
	"strings"
	"testing"

	"breadfleet/internal/model"
)

func lineScenario(stores int, spacing int64) *model.Scenario {
	n := stores + 1
	dist := make([][]float64, n)
	tm := make([][]int64, n)
	for i := 0; i < n; i++ {
		dist[i] = make([]float64, n)
		tm[i] = make([]int64, n)
		for j := 0; j < n; j++ {
			d := i - j
			if d < 0 {
				d = -d
			}
			dist[i][j] = float64(d) * float64(spacing)
			tm[i][j] = int64(d) * spacing
		}
	}
	sc := &model.Scenario{
		Brands:        []model.Brand{{ID: "A", Name: "A"}},
		Vehicles:      []model.Vehicle{{ID: 1, Capacity: 100, UnloadingSpeed: 10}},
		Warehouses:    []model.Warehouse{{ID: 0, Name: "depot", IsFactory: true, ProducedBrands: []string{"A"}, HandlingSpeed: 10}},
		Network:       model.TransportNetwork{Distance: dist, Time: tm},
		BreadUnitCost: 1,
		DemandSteps:   []model.DemandStep{{TimeLimit: model.Horizon, MultiplierX100: 100}},
	}
	for i := 0; i < stores; i++ {
		sc.Stores = append(sc.Stores, model.ShopStore{
			ID: i + 1, Name: "store", TimeStart: 0, TimeEnd: model.Horizon,
			Demands: map[string]map[int]int64{"A": {0: 10}},
		})
	}
	return sc
}

func TestAllowedArcsTimeFeasibility(t *testing.T) {
	sc := lineScenario(3, 10)
	sc.Stores[2].TimeEnd = 15 // store id 3, 30 minutes away from the depot

	p := NewPruner(sc, 70, 150, 60, DefaultDcPruning())
	for _, a := range p.AllowedArcs() {
		from, to := sc.LocationByID()[a.From], sc.LocationByID()[a.To]
		if from.WindowOpen()+sc.Network.Time[a.From][a.To] > to.WindowClose() {
			t.Fatalf("arc %d->%d violates time feasibility", a.From, a.To)
		}
	}
	for _, a := range p.AllowedArcs() {
		if a.From == 0 && a.To == 3 {
			t.Fatalf("unreachable store kept arc %d->%d", a.From, a.To)
		}
	}
}

func TestNeighborSetBounds(t *testing.T) {
	sc := lineScenario(10, 100) // every store pair is >= 100 minutes apart
	p := NewPruner(sc, 3, 6, 60, DefaultDcPruning())

	for id, set := range p.neighbors {
		if len(set) != 3 {
			t.Fatalf("store %d: sparse layout must keep exactly min_k neighbors, got %d", id, len(set))
		}
	}
}

func TestNeighborSetAdaptiveExtension(t *testing.T) {
	sc := lineScenario(10, 5) // dense: everything within the radius
	p := NewPruner(sc, 3, 6, 60, DefaultDcPruning())

	for id, set := range p.neighbors {
		if len(set) != 6 {
			t.Fatalf("store %d: dense layout must extend to max_k, got %d", id, len(set))
		}
	}
}

func dominanceScenario() *model.Scenario {
	// f0 produces A+B, f1 produces A and is far from the DC.
	dist := [][]float64{
		{0, 10, 100, 50},
		{10, 0, 100, 50},
		{100, 100, 0, 50},
		{50, 50, 50, 0},
	}
	tm := make([][]int64, 4)
	for i := range tm {
		tm[i] = make([]int64, 4)
		for j := range tm[i] {
			tm[i][j] = int64(dist[i][j])
		}
	}
	return &model.Scenario{
		Brands:   []model.Brand{{ID: "A"}, {ID: "B"}},
		Vehicles: []model.Vehicle{{ID: 1, Capacity: 100, UnloadingSpeed: 10}},
		Warehouses: []model.Warehouse{
			{ID: 0, Name: "f-near", IsFactory: true, ProducedBrands: []string{"A", "B"}, HandlingSpeed: 10},
			{ID: 1, Name: "dc", HandlingSpeed: 10},
			{ID: 2, Name: "f-far", IsFactory: true, ProducedBrands: []string{"A"}, HandlingSpeed: 10},
		},
		Stores: []model.ShopStore{{
			ID: 3, TimeStart: 0, TimeEnd: model.Horizon,
			Demands: map[string]map[int]int64{"A": {0: 10}},
		}},
		Network:       model.TransportNetwork{Distance: dist, Time: tm},
		BreadUnitCost: 1,
		DemandSteps:   []model.DemandStep{{TimeLimit: model.Horizon, MultiplierX100: 100}},
	}
}

func TestSingleDominancePrunesFarFactory(t *testing.T) {
	sc := dominanceScenario()
	p := NewPruner(sc, 70, 150, 60, DefaultDcPruning())

	if !p.prunedDC[Arc{From: 2, To: 1}] {
		t.Fatal("f-far -> dc should be dominated by f-near")
	}
	if p.prunedDC[Arc{From: 0, To: 1}] {
		t.Fatal("f-near -> dc must not be pruned")
	}
	for _, a := range p.AllowedArcs() {
		if a.From == 2 && a.To == 1 {
			t.Fatal("pruned arc still in allowed set")
		}
	}
}

func TestDisabledDcPruningKeepsAllArcs(t *testing.T) {
	sc := dominanceScenario()
	enabled := NewPruner(sc, 70, 150, 60, DefaultDcPruning())
	disabled := NewPruner(sc, 70, 150, 60, DcPruning{Enabled: false})

	if len(disabled.prunedDC) != 0 {
		t.Fatalf("disabled pruning removed %d arcs", len(disabled.prunedDC))
	}
	have := make(map[Arc]bool)
	for _, a := range disabled.AllowedArcs() {
		have[a] = true
	}
	for _, a := range enabled.AllowedArcs() {
		if !have[a] {
			t.Fatalf("disabling pruning lost arc %d->%d", a.From, a.To)
		}
	}
	if len(disabled.AllowedArcs()) <= len(enabled.AllowedArcs()) {
		t.Fatal("expected the dominated arc back in the allowed set")
	}
}

func TestCompositeDominance(t *testing.T) {
	sc := dominanceScenario()
	// Split f-near's catalog across two close factories so only the pair
	// covers f-far... invert the roles: far factory produces both brands,
	// the two near ones produce one each.
	sc.Warehouses[0].ProducedBrands = []string{"A"}
	sc.Warehouses[2].ProducedBrands = []string{"A", "B"}
	sc.Warehouses = append(sc.Warehouses, model.Warehouse{
		ID: 4, Name: "f-near-b", IsFactory: true, ProducedBrands: []string{"B"}, HandlingSpeed: 10,
	})
	sc.Network.Distance = [][]float64{
		{0, 10, 100, 50, 10},
		{10, 0, 100, 50, 10},
		{100, 100, 0, 50, 100},
		{50, 50, 50, 0, 50},
		{10, 10, 100, 50, 0},
	}
	tm := make([][]int64, 5)
	for i := range tm {
		tm[i] = make([]int64, 5)
		for j := range tm[i] {
			tm[i][j] = int64(sc.Network.Distance[i][j])
		}
	}
	sc.Network.Time = tm

	p := NewPruner(sc, 70, 150, 60, DcPruning{
		Enabled: true, CompositeDominance: true, DistanceThreshold: 0.25,
	})
	if !p.prunedDC[Arc{From: 2, To: 1}] {
		t.Fatal("pair of closer factories should jointly dominate f-far")
	}
}

func TestDcPruningReport(t *testing.T) {
	sc := dominanceScenario()
	p := NewPruner(sc, 70, 150, 60, DefaultDcPruning())

	report := p.DcPruningReport()
	if !strings.HasPrefix(report, "DC pruning: 1 arc(s) removed:") {
		t.Fatalf("unexpected report header: %q", report)
	}
	if !strings.Contains(report, "f-far -> dc") {
		t.Fatalf("report missing pruned arc: %q", report)
	}

	empty := NewPruner(sc, 70, 150, 60, DcPruning{Enabled: false})
	if got := empty.DcPruningReport(); got != "DC pruning: no arcs pruned." {
		t.Fatalf("unexpected empty report: %q", got)
	}
}
