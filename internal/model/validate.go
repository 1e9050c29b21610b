package model

import "fmt"

// Validate rejects structurally malformed scenarios before any model is
// built. Violations here are input errors, not solver outcomes.
func (s *Scenario) Validate() error {
	n := len(s.Warehouses) + len(s.Stores)
	if n == 0 {
		return fmt.Errorf("scenario has no locations")
	}
	// The warehouses-then-stores concatenation defines the matrix index
	// space, so every location must own exactly its position in that
	// order. This subsumes the duplicate and out-of-range checks.
	for i, l := range s.Locations() {
		if l.ID != i {
			return fmt.Errorf("location %q: id %d does not match its canonical position %d", l.Name, l.ID, i)
		}
	}
	if len(s.Network.Distance) != n || len(s.Network.Time) != n {
		return fmt.Errorf("network matrices must have %d rows, got %d distance and %d time",
			n, len(s.Network.Distance), len(s.Network.Time))
	}
	for i := 0; i < n; i++ {
		if len(s.Network.Distance[i]) != n {
			return fmt.Errorf("distance matrix row %d has %d entries, want %d", i, len(s.Network.Distance[i]), n)
		}
		if len(s.Network.Time[i]) != n {
			return fmt.Errorf("time matrix row %d has %d entries, want %d", i, len(s.Network.Time[i]), n)
		}
		if s.Network.Time[i][i] != 0 {
			return fmt.Errorf("time matrix diagonal [%d][%d] must be zero, got %d", i, i, s.Network.Time[i][i])
		}
		for j := 0; j < n; j++ {
			if s.Network.Time[i][j] < 0 {
				return fmt.Errorf("time matrix entry [%d][%d] is negative", i, j)
			}
			if s.Network.Distance[i][j] < 0 {
				return fmt.Errorf("distance matrix entry [%d][%d] is negative", i, j)
			}
		}
	}
	for i := range s.Stores {
		st := &s.Stores[i]
		if st.TimeStart < 0 || st.TimeEnd > Horizon || st.TimeStart > st.TimeEnd {
			return fmt.Errorf("store %q: invalid time window [%d,%d]", st.Name, st.TimeStart, st.TimeEnd)
		}
	}
	for i := range s.Vehicles {
		v := &s.Vehicles[i]
		if v.Capacity <= 0 {
			return fmt.Errorf("vehicle %d: capacity must be positive", v.ID)
		}
	}
	if err := validateDemandSteps(s.DemandSteps); err != nil {
		return err
	}
	return nil
}

// validateDemandSteps enforces the step-function invariants: ascending,
// non-overlapping time limits covering [0, Horizon].
func validateDemandSteps(steps []DemandStep) error {
	if len(steps) == 0 {
		return fmt.Errorf("scenario has no demand steps")
	}
	prev := int64(0)
	for i, st := range steps {
		if st.TimeLimit <= prev {
			return fmt.Errorf("demand step %d: time limit %d not strictly ascending", i, st.TimeLimit)
		}
		if st.MultiplierX100 < 0 {
			return fmt.Errorf("demand step %d: negative multiplier", i)
		}
		prev = st.TimeLimit
	}
	if steps[len(steps)-1].TimeLimit != Horizon {
		return fmt.Errorf("last demand step must end at the %d-minute horizon, got %d", Horizon, steps[len(steps)-1].TimeLimit)
	}
	return nil
}
