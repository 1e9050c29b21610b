package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"breadfleet/internal/config"
	"breadfleet/internal/model"
	"breadfleet/internal/opt"
	"breadfleet/internal/sat"
	"breadfleet/internal/store"
	"breadfleet/internal/webhooks"
)

// newTestServer wires a server around the in-memory store and a scripted
// solver backend so plan runs finish instantly.
func newTestServer(t *testing.T, status sat.Status) *Server {
	t.Helper()
	rec := sat.NewRecorder()
	rec.Stub.Status = status
	mem := store.NewMemory()
	cfg := config.Config{Engine: opt.DefaultConfig()}
	return &Server{
		Store:     mem,
		Pub:       webhooks.NewPublisher(mem),
		Broker:    NewBroker(),
		EngineCfg: cfg,
		Backend:   rec,
	}
}

func apiScenario() *model.Scenario {
	return &model.Scenario{
		Brands:   []model.Brand{{ID: "A"}},
		Vehicles: []model.Vehicle{{ID: 1, Capacity: 100, UnloadingSpeed: 10}},
		Warehouses: []model.Warehouse{
			{ID: 0, IsFactory: true, ProducedBrands: []string{"A"}, HandlingSpeed: 10},
		},
		Stores: []model.ShopStore{
			{ID: 1, TimeStart: 540, TimeEnd: 1020, Demands: map[string]map[int]int64{"A": {0: 10}}},
		},
		Network: model.TransportNetwork{
			Distance: [][]float64{{0, 5}, {5, 0}},
			Time:     [][]int64{{0, 5}, {5, 0}},
		},
		BreadUnitCost: 1,
		DemandSteps:   []model.DemandStep{{TimeLimit: model.Horizon, MultiplierX100: 100}},
	}
}

func createScenario(t *testing.T, s *Server) string {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"name": "morning", "scenario": apiScenario()})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/scenarios", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.ScenariosHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create scenario: %d %s", rr.Code, rr.Body.String())
	}
	var rec struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.ID
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t, sat.StatusOptimal)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestScenarioCreateGetList(t *testing.T) {
	s := newTestServer(t, sat.StatusOptimal)
	id := createScenario(t, s)

	rr := httptest.NewRecorder()
	s.ScenarioByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/scenarios/"+id, nil))
	if rr.Code != 200 {
		t.Fatalf("get scenario: %d", rr.Code)
	}
	var got store.ScenarioRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil || got.Scenario == nil {
		t.Fatalf("scenario body missing: %v %s", err, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.ScenariosHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/scenarios", nil))
	if rr.Code != 200 {
		t.Fatalf("list scenarios: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.ScenarioByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/scenarios/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing scenario: %d", rr.Code)
	}
}

func TestScenarioValidationRejected(t *testing.T) {
	s := newTestServer(t, sat.StatusOptimal)
	sc := apiScenario()
	sc.DemandSteps = nil
	body, _ := json.Marshal(map[string]any{"name": "bad", "scenario": sc})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/scenarios", bytes.NewReader(body))
	s.ScenariosHandler(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid scenario: got %d", rr.Code)
	}
	var p Problem
	if err := json.NewDecoder(rr.Body).Decode(&p); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if p.Type != problemType || p.Status != http.StatusUnprocessableEntity {
		t.Fatalf("problem body %+v", p)
	}
}

func waitForRun(t *testing.T, s *Server, id string, want string) store.PlanRun {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		run, err := s.Store.GetPlanRun(context.Background(), id)
		if err != nil {
			t.Fatalf("GetPlanRun: %v", err)
		}
		if run.Status == want {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	run, _ := s.Store.GetPlanRun(context.Background(), id)
	t.Fatalf("run never reached %q, stuck at %q (error %q)", want, run.Status, run.Error)
	return store.PlanRun{}
}

func TestPlanRunConverges(t *testing.T) {
	// Scripted solver: all variables zero, optimal. The degenerate 0/0
	// ratio converges in a single iteration.
	s := newTestServer(t, sat.StatusOptimal)
	id := createScenario(t, s)

	body := []byte(`{"scenarioId":"` + id + `"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.PlansHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("launch plan: %d %s", rr.Code, rr.Body.String())
	}
	var run store.PlanRun
	if err := json.Unmarshal(rr.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Status != store.RunQueued {
		t.Fatalf("initial status = %q", run.Status)
	}

	done := waitForRun(t, s, run.ID, store.RunConverged)
	if done.Solution == nil || done.Iterations != 1 {
		t.Fatalf("unexpected finished run: %+v", done)
	}

	rr = httptest.NewRecorder()
	s.PlanByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/plans/"+run.ID, nil))
	if rr.Code != 200 {
		t.Fatalf("get plan: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.PlansHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/plans", nil))
	if rr.Code != 200 {
		t.Fatalf("list plans: %d", rr.Code)
	}
}

func TestPlanRunNoSolutionEmitsWebhook(t *testing.T) {
	s := newTestServer(t, sat.StatusInfeasible)
	id := createScenario(t, s)

	// Subscribe before launching so the failure event fans out.
	subBody := []byte(`{"url":"https://example.invalid/hook","events":["plan.failed"],"secret":"shh"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(subBody))
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create subscription: %d", rr.Code)
	}

	body := []byte(`{"scenarioId":"` + id + `"}`)
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/plans", bytes.NewReader(body))
	s.PlansHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("launch plan: %d", rr.Code)
	}
	var run store.PlanRun
	_ = json.Unmarshal(rr.Body.Bytes(), &run)

	done := waitForRun(t, s, run.ID, store.RunNoSolution)
	if done.Error == "" {
		t.Fatal("no_solution run should record the reason")
	}

	due, err := s.Store.FetchDueWebhookDeliveries(context.Background(), 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("expected one due delivery, got %v %v", due, err)
	}
	if due[0].EventType != webhooks.EventPlanFailed {
		t.Fatalf("event type = %q", due[0].EventType)
	}
}

func TestPlanLaunchRejectsUnknownScenarioAndMode(t *testing.T) {
	s := newTestServer(t, sat.StatusOptimal)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/plans", bytes.NewReader([]byte(`{"scenarioId":"nope"}`)))
	s.PlansHandler(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown scenario: %d", rr.Code)
	}

	id := createScenario(t, s)
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/plans", bytes.NewReader([]byte(`{"scenarioId":"`+id+`","costMode":"bogus"}`)))
	s.PlansHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad cost mode: %d", rr.Code)
	}
}

func TestSubscriptionDelete(t *testing.T) {
	s := newTestServer(t, sat.StatusOptimal)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader([]byte(`{"url":"https://example.invalid","events":["plan.completed"]}`)))
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d", rr.Code)
	}
	var sub store.Subscription
	_ = json.Unmarshal(rr.Body.Bytes(), &sub)

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", rr.Code)
	}
}

// sseRecorder is a minimal ResponseWriter that implements http.Flusher and
// captures writes for SSE tests.
type sseRecorder struct {
	hdr  http.Header
	buf  bytes.Buffer
	code int
}

func (r *sseRecorder) Header() http.Header {
	if r.hdr == nil {
		r.hdr = http.Header{}
	}
	return r.hdr
}
func (r *sseRecorder) WriteHeader(c int)           { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) { return r.buf.Write(p) }
func (r *sseRecorder) Flush()                      {}

func TestPlanEventsSSE(t *testing.T) {
	s := newTestServer(t, sat.StatusOptimal)
	id := createScenario(t, s)
	run, err := s.Store.CreatePlanRun(context.Background(), id, s.EngineCfg.Engine)
	if err != nil {
		t.Fatalf("CreatePlanRun: %v", err)
	}

	sseReq := httptest.NewRequest(http.MethodGet, "/v1/plans/"+run.ID+"/events/stream", nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sseReq = sseReq.WithContext(ctx)

	rec := &sseRecorder{}
	done := make(chan struct{})
	go func() {
		s.PlanByIDHandler(rec, sseReq)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	s.Broker.Publish(run.ID, SSEEvent{Type: "plan.progress", Data: map[string]any{"planId": run.ID, "iteration": 1}})

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if bytes.Contains(rec.buf.Bytes(), []byte("event: plan.progress")) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !bytes.Contains(rec.buf.Bytes(), []byte("event: plan.progress")) {
		t.Fatalf("SSE did not contain the progress event. Body: %s", rec.buf.String())
	}
	cancel()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("handler did not exit after cancel")
	}
}
