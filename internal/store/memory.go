package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"breadfleet/internal/model"
	"breadfleet/internal/opt"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu          sync.Mutex
	scenarios   map[string]ScenarioRecord
	scenarioIDs []string
	runs        map[string]*PlanRun
	runIDs      []string
	subs        []Subscription
	deliveries  map[string]*memDelivery
	deliveryIDs []string
}

func NewMemory() *Memory {
	return &Memory{
		scenarios:  map[string]ScenarioRecord{},
		runs:       map[string]*PlanRun{},
		deliveries: map[string]*memDelivery{},
	}
}

// memDelivery augments WebhookDelivery with scheduling state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
}

func (m *Memory) CreateScenario(ctx context.Context, name string, sc *model.Scenario) (ScenarioRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := ScenarioRecord{ID: uuid.New().String(), Name: name, Scenario: sc, CreatedAt: time.Now().UTC()}
	m.scenarios[rec.ID] = rec
	m.scenarioIDs = append(m.scenarioIDs, rec.ID)
	return rec, nil
}

func (m *Memory) GetScenario(ctx context.Context, id string) (ScenarioRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.scenarios[id]
	if !ok {
		return ScenarioRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListScenarios(ctx context.Context, limit int) ([]ScenarioRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := []ScenarioRecord{}
	for _, id := range m.scenarioIDs {
		if len(out) >= limit {
			break
		}
		rec := m.scenarios[id]
		rec.Scenario = nil // listings stay light
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) CreatePlanRun(ctx context.Context, scenarioID string, cfg opt.Config) (PlanRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scenarios[scenarioID]; !ok {
		return PlanRun{}, ErrNotFound
	}
	run := &PlanRun{
		ID:         uuid.New().String(),
		ScenarioID: scenarioID,
		Status:     RunQueued,
		Config:     cfg,
		CreatedAt:  time.Now().UTC(),
	}
	m.runs[run.ID] = run
	m.runIDs = append(m.runIDs, run.ID)
	return *run, nil
}

func (m *Memory) SetPlanRunStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.Status = status
	return nil
}

func (m *Memory) RecordPlanProgress(ctx context.Context, id string, iteration int, lambda float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.Iterations = iteration
	run.Lambdas = append(run.Lambdas, lambda)
	return nil
}

func (m *Memory) CompletePlanRun(ctx context.Context, id, status string, sol *model.Solution, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	run.Status = status
	run.Solution = sol
	run.Error = errMsg
	run.FinishedAt = &now
	if sol != nil {
		run.Iterations = sol.Iterations
	}
	return nil
}

func (m *Memory) GetPlanRun(ctx context.Context, id string) (PlanRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return PlanRun{}, ErrNotFound
	}
	return *run, nil
}

func (m *Memory) ListPlanRuns(ctx context.Context, limit int) ([]PlanRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := []PlanRun{}
	for _, id := range m.runIDs {
		if len(out) >= limit {
			break
		}
		run := *m.runs[id]
		run.Solution = nil
		out = append(out, run)
	}
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, url, secret string, events []string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Subscription{ID: uuid.New().String(), URL: url, Secret: secret, Events: events}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Subscription{}, m.subs...), nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Subscription, 0, len(m.subs))
	found := false
	for _, s := range m.subs {
		if s.ID == id {
			found = true
			continue
		}
		out = append(out, s)
	}
	if !found {
		return ErrNotFound
	}
	m.subs = out
	return nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Subscription
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID: id, SubscriptionID: subscriptionID, EventType: eventType,
			URL: url, Secret: secret, Payload: payload, Status: "pending",
		},
		NextAttemptAt: time.Now(),
	}
	m.deliveryIDs = append(m.deliveryIDs, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.deliveryIDs {
		d := m.deliveries[id]
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
	} else {
		d.Status = "retry"
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = time.Now().Add(time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}
