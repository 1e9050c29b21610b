// Command planner runs one optimization over a scenario file and prints the
// resulting plan as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/yaml.v3"

	"breadfleet/internal/config"
	"breadfleet/internal/model"
	"breadfleet/internal/opt"
	"breadfleet/internal/sat"
)

func main() {
	var (
		scenarioPath = flag.String("scenario", "", "scenario file (.json or .yaml)")
		configPath   = flag.String("config", os.Getenv("BREADFLEET_CONFIG"), "optional YAML config file")
		costMode     = flag.String("cost-mode", "", "warehouse cost mode: peak_input or exact_peak")
		dryRun       = flag.Bool("dry-run", false, "build the model and print its statistics without solving")
	)
	flag.Parse()

	if *scenarioPath == "" {
		log.Fatal("usage: planner -scenario FILE [-config FILE] [-cost-mode MODE] [-dry-run]")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *costMode != "" {
		mode, err := opt.ParseWarehouseCostMode(*costMode)
		if err != nil {
			log.Fatalf("cost mode: %v", err)
		}
		cfg.Engine.CostMode = mode
	}

	sc, err := loadScenario(*scenarioPath)
	if err != nil {
		log.Fatalf("scenario: %v", err)
	}

	if *dryRun {
		stats, report, err := opt.ModelStats(sc, cfg.Engine)
		if err != nil {
			log.Fatalf("dry run: %v", err)
		}
		fmt.Println(report)
		out, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(out))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := opt.NewEngine(sat.NewCpSat(), cfg.Engine)
	eng.OnProgress(func(p opt.Progress) {
		log.Printf("iteration %d: lambda=%.6f cost=%.2f value=%.2f (%s)",
			p.Iteration, p.Lambda, p.Numerator, p.Denominator, p.Status)
	})

	sol, err := eng.Solve(ctx, sc)
	if err != nil {
		if errors.Is(err, opt.ErrNoSolution) {
			log.Fatal("no feasible plan for this scenario")
		}
		log.Fatalf("solve: %v", err)
	}

	out, _ := json.MarshalIndent(sol, "", "  ")
	fmt.Println(string(out))
}

func loadScenario(path string) (*model.Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc model.Scenario
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &sc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(raw, &sc); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported scenario format %q", ext)
	}
	return &sc, nil
}
