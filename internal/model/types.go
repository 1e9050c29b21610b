package model

// Scenario entities. All of these are read-only inputs to the planning
// engine; the index space of the network matrices is defined by the
// warehouses-then-stores concatenation order and must not change once a
// scenario has been built.

// Horizon is the planning horizon in minutes of day.
const Horizon = 1440

type Brand struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type Vehicle struct {
	ID             int     `json:"id" yaml:"id"`
	Category       string  `json:"category" yaml:"category"`
	CostDispatch   float64 `json:"costDispatch" yaml:"cost_dispatch"`
	CostPerHour    float64 `json:"costPerHour" yaml:"cost_per_hour"`
	CostPerKm      float64 `json:"costPerKm" yaml:"cost_per_km"`
	Capacity       int64   `json:"capacity" yaml:"capacity"`
	UnloadingSpeed float64 `json:"unloadingSpeed" yaml:"unloading_speed"`
}

// ShopStore is a retail endpoint with a delivery time window and per-brand,
// per-slot base demand.
type ShopStore struct {
	ID             int                      `json:"id" yaml:"id"`
	Name           string                   `json:"name" yaml:"name"`
	TimeStart      int64                    `json:"timeStart" yaml:"time_start"`
	TimeEnd        int64                    `json:"timeEnd" yaml:"time_end"`
	Demands        map[string]map[int]int64 `json:"demands,omitempty" yaml:"demands"`
	UnloadingCoeff float64                  `json:"unloadingCoeff,omitempty" yaml:"unloading_coeff"`
}

// BaseDemand returns the slot-0 base demand for a brand, or zero when the
// store does not stock it.
func (s *ShopStore) BaseDemand(brandID string) int64 {
	if s.Demands == nil {
		return 0
	}
	return s.Demands[brandID][0]
}

type Warehouse struct {
	ID             int              `json:"id" yaml:"id"`
	Name           string           `json:"name" yaml:"name"`
	CostPerVolume  float64          `json:"costPerVolume" yaml:"cost_per_volume"`
	FixedStaffCost float64          `json:"fixedStaffCost" yaml:"fixed_staff_cost"`
	HandlingSpeed  float64          `json:"handlingSpeed" yaml:"handling_speed"`
	ProducedBrands []string         `json:"producedBrands,omitempty" yaml:"produced_brands"`
	InitialStock   map[string]int64 `json:"initialStock,omitempty" yaml:"initial_stock"`
	IsFactory      bool             `json:"isFactory" yaml:"is_factory"`
}

func (w *Warehouse) Produces(brandID string) bool {
	for _, b := range w.ProducedBrands {
		if b == brandID {
			return true
		}
	}
	return false
}

// TotalInitialStock sums the initial stock over all brands.
func (w *Warehouse) TotalInitialStock() int64 {
	var total int64
	for _, v := range w.InitialStock {
		total += v
	}
	return total
}

// TransportNetwork holds the square distance and travel-time matrices indexed
// by location id. The time matrix is in minutes, the distance matrix in km.
type TransportNetwork struct {
	Distance [][]float64 `json:"distance" yaml:"distance"`
	Time     [][]int64   `json:"time" yaml:"time"`
}

// DemandStep is one interval of the piecewise demand-cap function: the
// multiplier (percent, x100) applies to arrivals before TimeLimit.
type DemandStep struct {
	TimeLimit      int64 `json:"timeLimit" yaml:"time_limit"`
	MultiplierX100 int64 `json:"multiplierX100" yaml:"multiplier_x100"`
}

type Scenario struct {
	Vehicles      []Vehicle        `json:"vehicles" yaml:"vehicles"`
	Stores        []ShopStore      `json:"stores" yaml:"stores"`
	Warehouses    []Warehouse      `json:"warehouses" yaml:"warehouses"`
	Network       TransportNetwork `json:"network" yaml:"network"`
	Brands        []Brand          `json:"brands" yaml:"brands"`
	BreadUnitCost float64          `json:"breadUnitCost" yaml:"bread_unit_cost"`
	DemandSteps   []DemandStep     `json:"demandSteps" yaml:"demand_steps"`
}

// LocationRef is one entry of the canonical warehouses-then-stores ordering.
// Exactly one of Store / Warehouse is set.
type LocationRef struct {
	ID        int
	Name      string
	Store     *ShopStore
	Warehouse *Warehouse
}

func (l LocationRef) IsStore() bool { return l.Store != nil }

// WindowOpen is the earliest minute a vehicle may depart from this location;
// warehouses are open from midnight.
func (l LocationRef) WindowOpen() int64 {
	if l.Store != nil {
		return l.Store.TimeStart
	}
	return 0
}

// WindowClose is the latest acceptable arrival minute.
func (l LocationRef) WindowClose() int64 {
	if l.Store != nil {
		return l.Store.TimeEnd
	}
	return Horizon
}

// Locations returns the canonical ordering used as the matrix index space.
func (s *Scenario) Locations() []LocationRef {
	out := make([]LocationRef, 0, len(s.Warehouses)+len(s.Stores))
	for i := range s.Warehouses {
		w := &s.Warehouses[i]
		out = append(out, LocationRef{ID: w.ID, Name: w.Name, Warehouse: w})
	}
	for i := range s.Stores {
		st := &s.Stores[i]
		out = append(out, LocationRef{ID: st.ID, Name: st.Name, Store: st})
	}
	return out
}

// LocationByID builds a lookup over the canonical ordering.
func (s *Scenario) LocationByID() map[int]LocationRef {
	locs := s.Locations()
	m := make(map[int]LocationRef, len(locs))
	for _, l := range locs {
		m[l.ID] = l
	}
	return m
}

// Solution output records. Built by the result extractor from solved variable
// values; never mutated by the engine afterwards.

type VehicleAssignment struct {
	VehicleID  int     `json:"vehicleId"`
	Category   string  `json:"category,omitempty"`
	Used       bool    `json:"used"`
	Route      []int   `json:"route,omitempty"`
	DistanceKm int64   `json:"distanceKm"`
	TimeMin    int64   `json:"timeMin"`
	Cost       float64 `json:"cost"`
}

type WarehouseAssignment struct {
	WarehouseID int     `json:"warehouseId"`
	Active      bool    `json:"active"`
	PeakVolume  int64   `json:"peakVolume"`
	Cost        float64 `json:"cost"`
}

type Solution struct {
	Vehicles   []VehicleAssignment   `json:"vehicles"`
	Warehouses []WarehouseAssignment `json:"warehouses"`
	Lambda     float64               `json:"lambda"`
	TotalCost  float64               `json:"totalCost"`
	TotalValue float64               `json:"totalValue"`
	Iterations int                   `json:"iterations"`
}
