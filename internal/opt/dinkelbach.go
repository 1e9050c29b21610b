package opt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"breadfleet/internal/model"
	"breadfleet/internal/sat"
)

// WarehouseCostMode selects how the warehouse cost-driver variable is
// computed.
type WarehouseCostMode int

const (
	// PeakInput charges initial stock plus all deliveries: a cheap,
	// monotonically conservative upper bound on the stock peak.
	PeakInput WarehouseCostMode = iota
	// ExactPeak charges the true temporal stock peak via the pairwise
	// event-chain construction.
	ExactPeak
)

func (m WarehouseCostMode) String() string {
	if m == ExactPeak {
		return "exact_peak"
	}
	return "peak_input"
}

func ParseWarehouseCostMode(s string) (WarehouseCostMode, error) {
	switch s {
	case "", "peak_input":
		return PeakInput, nil
	case "exact_peak":
		return ExactPeak, nil
	}
	return PeakInput, fmt.Errorf("unknown warehouse cost mode %q", s)
}

// lambdaScale preserves lambda's precision when it is folded into the
// integer objective; the objective scale alone carries too few digits.
const lambdaScale = 1_000_000_000

// Config is the full tuning surface of one optimization run.
type Config struct {
	MinNeighbors      int               `json:"minNeighbors" yaml:"min_neighbors"`
	MaxNeighbors      int               `json:"maxNeighbors" yaml:"max_neighbors"`
	MinTimeRadius     int64             `json:"minTimeRadius" yaml:"min_time_radius"`
	DcPruning         DcPruning         `json:"dcPruning" yaml:"dc_pruning"`
	CostMode          WarehouseCostMode `json:"-" yaml:"-"`
	ObjectiveScale    int64             `json:"objectiveScale" yaml:"objective_scale"`
	Epsilon           float64           `json:"epsilon" yaml:"epsilon"`
	MaxIterations     int               `json:"maxIterations" yaml:"max_iterations"`
	SolveTimeout      time.Duration     `json:"solveTimeout" yaml:"solve_timeout"`
	Workers           int               `json:"workers" yaml:"workers"`
	Seed              int64             `json:"seed" yaml:"seed"`
	LogSearchProgress bool              `json:"logSearchProgress" yaml:"log_search_progress"`
}

func DefaultConfig() Config {
	return Config{
		MinNeighbors:   70,
		MaxNeighbors:   150,
		MinTimeRadius:  60,
		DcPruning:      DefaultDcPruning(),
		CostMode:       PeakInput,
		ObjectiveScale: 1000,
		Epsilon:        1e-6,
		MaxIterations:  100,
		SolveTimeout:   600 * time.Second,
		Workers:        8,
		Seed:           42,
	}
}

// Progress is emitted once per outer iteration.
type Progress struct {
	Iteration   int     `json:"iteration"`
	Lambda      float64 `json:"lambda"`
	Numerator   float64 `json:"numerator"`
	Denominator float64 `json:"denominator"`
	Status      string  `json:"status"`
}

// ErrNoSolution reports that no feasible plan exists for the scenario, or
// that no cost-effective delivery is possible. It is an outcome, not a
// fault.
var ErrNoSolution = errors.New("no feasible solution")

// Engine runs the outer fractional-programming loop: each iteration builds
// a fresh model, solves min(numerator - lambda*denominator), and feeds the
// realized ratio back as the next lambda until the estimate is stationary.
type Engine struct {
	backend    sat.Backend
	cfg        Config
	logger     *log.Logger
	onProgress func(Progress)
}

func NewEngine(backend sat.Backend, cfg Config) *Engine {
	return &Engine{backend: backend, cfg: cfg, logger: log.Default()}
}

func (e *Engine) SetLogger(l *log.Logger) { e.logger = l }

// OnProgress registers a per-iteration callback, invoked synchronously from
// the loop.
func (e *Engine) OnProgress(fn func(Progress)) { e.onProgress = fn }

func (e *Engine) emit(p Progress) {
	if e.onProgress != nil {
		e.onProgress(p)
	}
}

type iterationResult struct {
	status      sat.Status
	numerator   int64 // scaled by cfg.ObjectiveScale
	denominator int64
	solution    *model.Solution
}

// Solve validates the scenario, computes the shared pruning caches once,
// and runs the Dinkelbach loop to completion.
func (e *Engine) Solve(ctx context.Context, sc *model.Scenario) (*model.Solution, error) {
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	pruner := NewPruner(sc, e.cfg.MinNeighbors, e.cfg.MaxNeighbors, e.cfg.MinTimeRadius, e.cfg.DcPruning)
	e.logger.Printf("%s", pruner.DcPruningReport())
	arcs := pruner.AllowedArcs()
	e.logger.Printf("candidate arcs: %d", len(arcs))
	demand := NewDemandCap(sc.DemandSteps)

	solveOnce := func(lambda float64) (iterationResult, error) {
		m := e.backend.NewModel()
		vs := NewVars(m, sc, arcs)
		cb := newConstraintBuilder(m, sc, vs, demand, e.cfg.CostMode)
		cb.addAll()
		obj := cb.buildObjective(e.cfg.ObjectiveScale)

		scaledLambda := int64(math.Round(lambda * lambdaScale))
		goal := sat.NewExpr().
			AddScaled(obj.Numerator, lambdaScale).
			AddScaled(obj.Denominator, -scaledLambda)
		m.Minimize(goal)

		r, err := m.Solve(ctx, sat.Params{
			MaxTime:     e.cfg.SolveTimeout,
			Workers:     e.cfg.Workers,
			Seed:        e.cfg.Seed,
			LogProgress: e.cfg.LogSearchProgress,
		})
		if err != nil {
			return iterationResult{}, err
		}

		res := iterationResult{status: r.Status()}
		if r.Status().Feasible() {
			res.numerator = sat.EvalExpr(r, obj.Numerator)
			res.denominator = sat.EvalExpr(r, obj.Denominator)
			res.solution = extractSolution(r, sc, vs)
		}
		return res, nil
	}

	return e.solveFractional(solveOnce)
}

// solveFractional is the loop itself, separated from model construction so
// the convergence policy can be exercised against scripted iterations.
func (e *Engine) solveFractional(solveOnce func(lambda float64) (iterationResult, error)) (*model.Solution, error) {
	scale := float64(e.cfg.ObjectiveScale)
	lambda := 0.0
	var best *model.Solution

	for it := 1; it <= e.cfg.MaxIterations; it++ {
		res, err := solveOnce(lambda)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", it, err)
		}

		switch {
		case res.status.Feasible():
			num := float64(res.numerator) / scale
			den := float64(res.denominator) / scale

			var newLambda float64
			if den == 0 {
				if num == 0 {
					newLambda = 0
				} else if it == 1 {
					e.logger.Printf("dinkelbach: zero delivered value at lambda=0, no cost-effective delivery exists")
					return nil, ErrNoSolution
				} else {
					// Lambda was pushed past the point where delivering
					// pays off; the previous iteration's plan stands.
					e.logger.Printf("dinkelbach: zero denominator at iteration %d, keeping previous plan", it)
					return best, nil
				}
			} else {
				newLambda = num / den
			}

			sol := res.solution
			sol.Lambda = newLambda
			sol.TotalCost = num
			sol.TotalValue = den
			sol.Iterations = it
			best = sol

			e.emit(Progress{Iteration: it, Lambda: newLambda, Numerator: num, Denominator: den, Status: res.status.String()})
			e.logger.Printf("dinkelbach: iteration %d numerator=%.2f denominator=%.2f lambda=%.8f", it, num, den, newLambda)

			if math.Abs(newLambda-lambda) < e.cfg.Epsilon {
				e.logger.Printf("dinkelbach: converged after %d iteration(s)", it)
				return best, nil
			}
			lambda = newLambda

		case res.status == sat.StatusInfeasible:
			e.emit(Progress{Iteration: it, Lambda: lambda, Status: res.status.String()})
			if best == nil {
				return nil, ErrNoSolution
			}
			// Infeasible past the first iteration means lambda overshot
			// the feasible frontier; revert to the recorded best.
			e.logger.Printf("dinkelbach: infeasible at iteration %d, reverting to previous plan", it)
			return best, nil

		default:
			e.emit(Progress{Iteration: it, Lambda: lambda, Status: res.status.String()})
			e.logger.Printf("dinkelbach: solver returned %s at iteration %d", res.status, it)
			if best == nil {
				return nil, ErrNoSolution
			}
			return best, nil
		}
	}

	if best == nil {
		return nil, ErrNoSolution
	}
	e.logger.Printf("dinkelbach: iteration cap reached, returning best plan found")
	return best, nil
}

// ModelStats builds a single iteration's model against a recording backend
// and reports its size plus the pruning report, without solving anything.
func ModelStats(sc *model.Scenario, cfg Config) (sat.Stats, string, error) {
	if err := sc.Validate(); err != nil {
		return sat.Stats{}, "", fmt.Errorf("invalid scenario: %w", err)
	}
	pruner := NewPruner(sc, cfg.MinNeighbors, cfg.MaxNeighbors, cfg.MinTimeRadius, cfg.DcPruning)

	rec := sat.NewRecorder()
	m := rec.NewModel()
	vs := NewVars(m, sc, pruner.AllowedArcs())
	cb := newConstraintBuilder(m, sc, vs, NewDemandCap(sc.DemandSteps), cfg.CostMode)
	cb.addAll()
	obj := cb.buildObjective(cfg.ObjectiveScale)
	m.Minimize(sat.NewExpr().AddScaled(obj.Numerator, lambdaScale))

	return rec.Last().Stats(), pruner.DcPruningReport(), nil
}
