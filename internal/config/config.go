// Package config loads engine and service settings from an optional YAML
// file, then applies environment overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"breadfleet/internal/opt"
)

// Config is everything the binaries need to start.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	Engine      opt.Config
}

// fileConfig is the YAML shape. Engine durations are given in seconds and
// the warehouse cost mode as a string; both are converted on load.
type fileConfig struct {
	Port   string     `yaml:"port"`
	Engine fileEngine `yaml:"engine"`
}

type fileEngine struct {
	MinNeighbors      *int       `yaml:"min_neighbors"`
	MaxNeighbors      *int       `yaml:"max_neighbors"`
	MinTimeRadius     *int64     `yaml:"min_time_radius"`
	DcPruning         *dcPruning `yaml:"dc_pruning"`
	WarehouseCostMode string     `yaml:"warehouse_cost_mode"`
	ObjectiveScale    *int64     `yaml:"objective_scale"`
	Epsilon           *float64   `yaml:"epsilon"`
	MaxIterations     *int       `yaml:"max_iterations"`
	SolveTimeoutSec   *int       `yaml:"solve_timeout_sec"`
	Workers           *int       `yaml:"workers"`
	Seed              *int64     `yaml:"seed"`
	LogSearchProgress *bool      `yaml:"log_search_progress"`
}

type dcPruning struct {
	Enabled            *bool    `yaml:"enabled"`
	SingleDominance    *bool    `yaml:"single_dominance"`
	CompositeDominance *bool    `yaml:"composite_dominance"`
	DistanceThreshold  *float64 `yaml:"distance_threshold"`
}

// Load reads the YAML file at path when it is non-empty, then applies env
// overrides. A missing path yields pure defaults plus env.
func Load(path string) (Config, error) {
	cfg := Config{Port: "8080", Engine: opt.DefaultConfig()}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
		if fc.Port != "" {
			cfg.Port = fc.Port
		}
		if err := fc.Engine.apply(&cfg.Engine); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (fe fileEngine) apply(e *opt.Config) error {
	setInt(&e.MinNeighbors, fe.MinNeighbors)
	setInt(&e.MaxNeighbors, fe.MaxNeighbors)
	if fe.MinTimeRadius != nil {
		e.MinTimeRadius = *fe.MinTimeRadius
	}
	if fe.DcPruning != nil {
		setBool(&e.DcPruning.Enabled, fe.DcPruning.Enabled)
		setBool(&e.DcPruning.SingleDominance, fe.DcPruning.SingleDominance)
		setBool(&e.DcPruning.CompositeDominance, fe.DcPruning.CompositeDominance)
		if fe.DcPruning.DistanceThreshold != nil {
			e.DcPruning.DistanceThreshold = *fe.DcPruning.DistanceThreshold
		}
	}
	if fe.WarehouseCostMode != "" {
		mode, err := opt.ParseWarehouseCostMode(fe.WarehouseCostMode)
		if err != nil {
			return err
		}
		e.CostMode = mode
	}
	if fe.ObjectiveScale != nil {
		e.ObjectiveScale = *fe.ObjectiveScale
	}
	if fe.Epsilon != nil {
		e.Epsilon = *fe.Epsilon
	}
	setInt(&e.MaxIterations, fe.MaxIterations)
	if fe.SolveTimeoutSec != nil {
		e.SolveTimeout = time.Duration(*fe.SolveTimeoutSec) * time.Second
	}
	setInt(&e.Workers, fe.Workers)
	if fe.Seed != nil {
		e.Seed = *fe.Seed
	}
	setBool(&e.LogSearchProgress, fe.LogSearchProgress)
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	if v := os.Getenv("BREADFLEET_COST_MODE"); v != "" {
		mode, err := opt.ParseWarehouseCostMode(v)
		if err != nil {
			return err
		}
		cfg.Engine.CostMode = mode
	}
	if v := os.Getenv("BREADFLEET_MAX_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("BREADFLEET_MAX_ITERATIONS: invalid value %q", v)
		}
		cfg.Engine.MaxIterations = n
	}
	if v := os.Getenv("BREADFLEET_SOLVE_TIMEOUT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("BREADFLEET_SOLVE_TIMEOUT_SEC: invalid value %q", v)
		}
		cfg.Engine.SolveTimeout = time.Duration(n) * time.Second
	}
	if v := os.Getenv("BREADFLEET_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("BREADFLEET_WORKERS: invalid value %q", v)
		}
		cfg.Engine.Workers = n
	}
	if v := os.Getenv("BREADFLEET_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("BREADFLEET_SEED: invalid value %q", v)
		}
		cfg.Engine.Seed = n
	}
	return nil
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
