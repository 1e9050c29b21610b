package opt

import (
	"errors"
	"io"
	"log"
	"math"
	"testing"

	"breadfleet/internal/model"
	"breadfleet/internal/sat"
)

func quietEngine(cfg Config) *Engine {
	e := NewEngine(sat.NewRecorder(), cfg)
	e.SetLogger(log.New(io.Discard, "", 0))
	return e
}

func feasible(num, den int64) iterationResult {
	return iterationResult{
		status:      sat.StatusOptimal,
		numerator:   num,
		denominator: den,
		solution:    &model.Solution{},
	}
}

func TestDinkelbachConverges(t *testing.T) {
	e := quietEngine(DefaultConfig())

	var lambdas []float64
	sol, err := e.solveFractional(func(lambda float64) (iterationResult, error) {
		lambdas = append(lambdas, lambda)
		return feasible(500_000, 100_000), nil
	})
	if err != nil {
		t.Fatalf("solveFractional: %v", err)
	}
	if sol.Iterations != 2 {
		t.Fatalf("iterations = %d, want 2", sol.Iterations)
	}
	if math.Abs(sol.Lambda-5.0) > 1e-9 {
		t.Fatalf("lambda = %v, want 5", sol.Lambda)
	}
	if sol.TotalCost != 500 || sol.TotalValue != 100 {
		t.Fatalf("totals = %v/%v, want 500/100", sol.TotalCost, sol.TotalValue)
	}
	if len(lambdas) != 2 || lambdas[0] != 0 || math.Abs(lambdas[1]-5.0) > 1e-9 {
		t.Fatalf("lambda sequence = %v", lambdas)
	}
}

func TestDinkelbachInfeasibleFirstIteration(t *testing.T) {
	e := quietEngine(DefaultConfig())

	_, err := e.solveFractional(func(float64) (iterationResult, error) {
		return iterationResult{status: sat.StatusInfeasible}, nil
	})
	if !errors.Is(err, ErrNoSolution) {
		t.Fatalf("err = %v, want ErrNoSolution", err)
	}
}

func TestDinkelbachRevertsOnLateInfeasibility(t *testing.T) {
	e := quietEngine(DefaultConfig())

	calls := 0
	sol, err := e.solveFractional(func(float64) (iterationResult, error) {
		calls++
		if calls == 1 {
			return feasible(500_000, 100_000), nil
		}
		return iterationResult{status: sat.StatusInfeasible}, nil
	})
	if err != nil {
		t.Fatalf("solveFractional: %v", err)
	}
	if sol.Iterations != 1 || math.Abs(sol.Lambda-5.0) > 1e-9 {
		t.Fatalf("expected iteration-1 plan back, got iterations=%d lambda=%v", sol.Iterations, sol.Lambda)
	}
}

func TestDinkelbachZeroDenominator(t *testing.T) {
	e := quietEngine(DefaultConfig())

	// Positive cost with nothing delivered on the very first pass: no
	// cost-effective delivery exists.
	_, err := e.solveFractional(func(float64) (iterationResult, error) {
		return feasible(500_000, 0), nil
	})
	if !errors.Is(err, ErrNoSolution) {
		t.Fatalf("err = %v, want ErrNoSolution", err)
	}

	// Later iterations treat it as the feasibility frontier.
	calls := 0
	sol, err := e.solveFractional(func(float64) (iterationResult, error) {
		calls++
		if calls == 1 {
			return feasible(900_000, 100_000), nil
		}
		return feasible(100_000, 0), nil
	})
	if err != nil {
		t.Fatalf("solveFractional: %v", err)
	}
	if sol.Iterations != 1 || math.Abs(sol.Lambda-9.0) > 1e-9 {
		t.Fatalf("expected previous plan, got iterations=%d lambda=%v", sol.Iterations, sol.Lambda)
	}
}

func TestDinkelbachDegenerateZeroOverZero(t *testing.T) {
	e := quietEngine(DefaultConfig())

	sol, err := e.solveFractional(func(float64) (iterationResult, error) {
		return feasible(0, 0), nil
	})
	if err != nil {
		t.Fatalf("solveFractional: %v", err)
	}
	if sol.Lambda != 0 || sol.Iterations != 1 {
		t.Fatalf("degenerate case: lambda=%v iterations=%d", sol.Lambda, sol.Iterations)
	}
}

func TestDinkelbachAborted(t *testing.T) {
	e := quietEngine(DefaultConfig())

	_, err := e.solveFractional(func(float64) (iterationResult, error) {
		return iterationResult{status: sat.StatusAborted}, nil
	})
	if !errors.Is(err, ErrNoSolution) {
		t.Fatalf("err = %v, want ErrNoSolution", err)
	}

	calls := 0
	sol, err := e.solveFractional(func(float64) (iterationResult, error) {
		calls++
		if calls == 1 {
			return feasible(500_000, 100_000), nil
		}
		return iterationResult{status: sat.StatusAborted}, nil
	})
	if err != nil {
		t.Fatalf("solveFractional: %v", err)
	}
	if sol == nil || sol.Iterations != 1 {
		t.Fatal("expected the recorded best plan after abort")
	}
}

func TestDinkelbachIterationCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIterations = 5
	e := quietEngine(cfg)

	calls := 0
	sol, err := e.solveFractional(func(float64) (iterationResult, error) {
		calls++
		// Alternate ratios so lambda never settles.
		if calls%2 == 0 {
			return feasible(500_000, 100_000), nil
		}
		return feasible(700_000, 100_000), nil
	})
	if err != nil {
		t.Fatalf("solveFractional: %v", err)
	}
	if calls != 5 {
		t.Fatalf("calls = %d, want the configured cap", calls)
	}
	if sol.Iterations != 5 {
		t.Fatalf("iterations = %d, want 5", sol.Iterations)
	}
}

func TestDinkelbachEmitsProgress(t *testing.T) {
	e := quietEngine(DefaultConfig())

	var events []Progress
	e.OnProgress(func(p Progress) { events = append(events, p) })

	if _, err := e.solveFractional(func(float64) (iterationResult, error) {
		return feasible(500_000, 100_000), nil
	}); err != nil {
		t.Fatalf("solveFractional: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("progress events = %d, want 2", len(events))
	}
	if events[0].Iteration != 1 || events[0].Numerator != 500 || events[0].Status != "optimal" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
}

func TestParseWarehouseCostMode(t *testing.T) {
	if m, err := ParseWarehouseCostMode("exact_peak"); err != nil || m != ExactPeak {
		t.Fatalf("exact_peak: %v %v", m, err)
	}
	if m, err := ParseWarehouseCostMode(""); err != nil || m != PeakInput {
		t.Fatalf("default: %v %v", m, err)
	}
	if _, err := ParseWarehouseCostMode("bogus"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
