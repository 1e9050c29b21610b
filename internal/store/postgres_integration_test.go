package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"breadfleet/internal/opt"
)

// Exercises the real Postgres store. Skips unless DATABASE_URL points at a
// reachable database.
func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	ctx := context.Background()

	rec, err := p.CreateScenario(ctx, "pg-test", testScenario())
	if err != nil {
		t.Fatalf("CreateScenario: %v", err)
	}
	got, err := p.GetScenario(ctx, rec.ID)
	if err != nil || got.Scenario == nil || len(got.Scenario.Stores) != 1 {
		t.Fatalf("GetScenario: %+v %v", got, err)
	}

	run, err := p.CreatePlanRun(ctx, rec.ID, opt.DefaultConfig())
	if err != nil {
		t.Fatalf("CreatePlanRun: %v", err)
	}
	if err := p.SetPlanRunStatus(ctx, run.ID, RunRunning); err != nil {
		t.Fatalf("SetPlanRunStatus: %v", err)
	}
	if err := p.RecordPlanProgress(ctx, run.ID, 1, 2.5); err != nil {
		t.Fatalf("RecordPlanProgress: %v", err)
	}
	if err := p.CompletePlanRun(ctx, run.ID, RunNoSolution, nil, "no feasible solution"); err != nil {
		t.Fatalf("CompletePlanRun: %v", err)
	}

	back, err := p.GetPlanRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetPlanRun: %v", err)
	}
	if back.Status != RunNoSolution || len(back.Lambdas) != 1 || back.Lambdas[0] != 2.5 {
		t.Fatalf("unexpected run: %+v", back)
	}
	if back.FinishedAt == nil {
		t.Fatal("finished_at not set")
	}

	sub, err := p.CreateSubscription(ctx, "https://example.invalid/hook", "shh", []string{"plan.failed"})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	matched, err := p.GetSubscriptionsForEvent(ctx, "plan.failed")
	if err != nil || len(matched) == 0 {
		t.Fatalf("GetSubscriptionsForEvent: %v %v", matched, err)
	}
	if err := p.DeleteSubscription(ctx, sub.ID); err != nil {
		t.Fatalf("DeleteSubscription: %v", err)
	}
	if _, err := p.GetPlanRun(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
