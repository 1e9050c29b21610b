package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"breadfleet/internal/model"
	"breadfleet/internal/opt"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	p := &Postgres{db: db}
	if err := p.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scenarios (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			body JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS plan_runs (
			id UUID PRIMARY KEY,
			scenario_id UUID NOT NULL REFERENCES scenarios(id),
			status TEXT NOT NULL,
			config JSONB NOT NULL,
			iterations INT NOT NULL DEFAULT 0,
			lambdas JSONB NOT NULL DEFAULT '[]',
			solution JSONB,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			finished_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id UUID PRIMARY KEY,
			url TEXT NOT NULL,
			secret TEXT NOT NULL DEFAULT '',
			events JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id UUID PRIMARY KEY,
			subscription_id UUID NOT NULL,
			event_type TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT NOT NULL DEFAULT '',
			payload BYTEA NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INT NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_error TEXT NOT NULL DEFAULT '',
			response_code INT NOT NULL DEFAULT 0,
			latency_ms INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func toJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func (p *Postgres) CreateScenario(ctx context.Context, name string, sc *model.Scenario) (ScenarioRecord, error) {
	rec := ScenarioRecord{ID: uuid.New().String(), Name: name, Scenario: sc, CreatedAt: time.Now().UTC()}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO scenarios (id, name, body, created_at) VALUES ($1,$2,$3,$4)`,
		rec.ID, rec.Name, toJSON(sc), rec.CreatedAt)
	if err != nil {
		return ScenarioRecord{}, err
	}
	return rec, nil
}

func (p *Postgres) GetScenario(ctx context.Context, id string) (ScenarioRecord, error) {
	var rec ScenarioRecord
	var body []byte
	row := p.db.QueryRowContext(ctx,
		`SELECT id::text, name, body, created_at FROM scenarios WHERE id=$1`, id)
	if err := row.Scan(&rec.ID, &rec.Name, &body, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, ErrNotFound
		}
		return rec, err
	}
	var sc model.Scenario
	if err := json.Unmarshal(body, &sc); err != nil {
		return rec, err
	}
	rec.Scenario = &sc
	return rec, nil
}

func (p *Postgres) ListScenarios(ctx context.Context, limit int) ([]ScenarioRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, name, created_at FROM scenarios ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ScenarioRecord{}
	for rows.Next() {
		var rec ScenarioRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) CreatePlanRun(ctx context.Context, scenarioID string, cfg opt.Config) (PlanRun, error) {
	if _, err := p.GetScenario(ctx, scenarioID); err != nil {
		return PlanRun{}, err
	}
	run := PlanRun{
		ID:         uuid.New().String(),
		ScenarioID: scenarioID,
		Status:     RunQueued,
		Config:     cfg,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO plan_runs (id, scenario_id, status, config, created_at) VALUES ($1,$2,$3,$4,$5)`,
		run.ID, run.ScenarioID, run.Status, toJSON(cfg), run.CreatedAt)
	if err != nil {
		return PlanRun{}, err
	}
	return run, nil
}

func (p *Postgres) SetPlanRunStatus(ctx context.Context, id, status string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE plan_runs SET status=$2 WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (p *Postgres) RecordPlanProgress(ctx context.Context, id string, iteration int, lambda float64) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE plan_runs SET iterations=$2, lambdas = lambdas || to_jsonb($3::float8) WHERE id=$1`,
		id, iteration, lambda)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (p *Postgres) CompletePlanRun(ctx context.Context, id, status string, sol *model.Solution, errMsg string) error {
	var body any
	iterations := sql.NullInt64{}
	if sol != nil {
		body = toJSON(sol)
		iterations = sql.NullInt64{Int64: int64(sol.Iterations), Valid: true}
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE plan_runs SET status=$2, solution=$3, error=$4, finished_at=now(),
		 iterations = COALESCE($5, iterations) WHERE id=$1`,
		id, status, body, errMsg, iterations)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (p *Postgres) GetPlanRun(ctx context.Context, id string) (PlanRun, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id::text, scenario_id::text, status, config, iterations, lambdas, solution, error, created_at, finished_at
		 FROM plan_runs WHERE id=$1`, id)
	return scanPlanRun(row.Scan)
}

func (p *Postgres) ListPlanRuns(ctx context.Context, limit int) ([]PlanRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, scenario_id::text, status, config, iterations, lambdas, solution, error, created_at, finished_at
		 FROM plan_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PlanRun{}
	for rows.Next() {
		run, err := scanPlanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		run.Solution = nil
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanPlanRun(scan func(...any) error) (PlanRun, error) {
	var run PlanRun
	var cfg, lambdas []byte
	var solution sql.Null[[]byte]
	var finished sql.NullTime
	err := scan(&run.ID, &run.ScenarioID, &run.Status, &cfg, &run.Iterations,
		&lambdas, &solution, &run.Error, &run.CreatedAt, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, ErrNotFound
		}
		return run, err
	}
	if err := json.Unmarshal(cfg, &run.Config); err != nil {
		return run, err
	}
	if len(lambdas) > 0 {
		if err := json.Unmarshal(lambdas, &run.Lambdas); err != nil {
			return run, err
		}
	}
	if solution.Valid && len(solution.V) > 0 {
		var sol model.Solution
		if err := json.Unmarshal(solution.V, &sol); err != nil {
			return run, err
		}
		run.Solution = &sol
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return run, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, url, secret string, events []string) (Subscription, error) {
	s := Subscription{ID: uuid.New().String(), URL: url, Secret: secret, Events: events}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, url, secret, events) VALUES ($1,$2,$3,$4)`,
		s.ID, s.URL, s.Secret, toJSON(events))
	if err != nil {
		return Subscription{}, err
	}
	return s, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, url, secret, events FROM subscriptions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]Subscription, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, url, secret, events FROM subscriptions WHERE events ? $1`, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSubscription(scan func(...any) error) (Subscription, error) {
	var s Subscription
	var events []byte
	if err := scan(&s.ID, &s.URL, &s.Secret, &events); err != nil {
		return s, err
	}
	if err := json.Unmarshal(events, &s.Events); err != nil {
		return s, err
	}
	return s, nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		id, subscriptionID, eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, subscription_id::text, event_type, url, secret, payload, status, attempts
		 FROM webhook_deliveries
		 WHERE status IN ('pending','retry') AND next_attempt_at <= now()
		 ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	status := "retry"
	if success {
		status = "delivered"
	}
	next := time.Now().Add(time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET status=$2, attempts=attempts+1, next_attempt_at=$3,
		 last_error=$4, response_code=$5, latency_ms=$6 WHERE id=$1`,
		id, status, next, lastError, responseCode, latencyMs)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET status='failed', last_error=$2, response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, lastError, responseCode, latencyMs)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
