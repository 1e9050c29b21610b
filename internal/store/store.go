package store

import (
	"context"
	"errors"
	"time"

	"breadfleet/internal/model"
	"breadfleet/internal/opt"
)

// Run statuses.
const (
	RunQueued     = "queued"
	RunRunning    = "running"
	RunConverged  = "converged"
	RunNoSolution = "no_solution"
	RunFailed     = "failed"
)

// ScenarioRecord is a stored planning scenario.
type ScenarioRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Scenario  *model.Scenario `json:"scenario,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// PlanRun is one optimization run over a stored scenario.
type PlanRun struct {
	ID         string          `json:"id"`
	ScenarioID string          `json:"scenarioId"`
	Status     string          `json:"status"`
	Config     opt.Config      `json:"config"`
	Iterations int             `json:"iterations"`
	Lambdas    []float64       `json:"lambdas,omitempty"`
	Solution   *model.Solution `json:"solution,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"-"`
}

type WebhookDelivery struct {
	ID             string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

// Store is the persistence interface used by the API server.
type Store interface {
	// Scenarios
	CreateScenario(ctx context.Context, name string, sc *model.Scenario) (ScenarioRecord, error)
	GetScenario(ctx context.Context, id string) (ScenarioRecord, error)
	ListScenarios(ctx context.Context, limit int) ([]ScenarioRecord, error)

	// Plan runs
	CreatePlanRun(ctx context.Context, scenarioID string, cfg opt.Config) (PlanRun, error)
	SetPlanRunStatus(ctx context.Context, id, status string) error
	RecordPlanProgress(ctx context.Context, id string, iteration int, lambda float64) error
	CompletePlanRun(ctx context.Context, id, status string, sol *model.Solution, errMsg string) error
	GetPlanRun(ctx context.Context, id string) (PlanRun, error)
	ListPlanRuns(ctx context.Context, limit int) ([]PlanRun, error)

	// Webhook subscriptions
	CreateSubscription(ctx context.Context, url, secret string, events []string) (Subscription, error)
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]Subscription, error)

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error
}

var ErrNotFound = errors.New("not found")
