package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"breadfleet/internal/metrics"
	"breadfleet/internal/model"
	"breadfleet/internal/opt"
	"breadfleet/internal/store"
	"breadfleet/internal/webhooks"
)

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Store.ListScenarios(r.Context(), 1); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// MetricsHandler serves the dedicated Prometheus registry.
func (s *Server) MetricsHandler() http.Handler {
	metrics.RegisterDefault()
	return promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})
}

// ScenariosHandler handles POST and GET /v1/scenarios.
func (s *Server) ScenariosHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Name     string          `json:"name"`
			Scenario *model.Scenario `json:"scenario"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.Scenario == nil {
			writeProblem(w, http.StatusBadRequest, "Missing scenario", "", r.URL.Path)
			return
		}
		if err := req.Scenario.Validate(); err != nil {
			writeProblem(w, http.StatusUnprocessableEntity, "Invalid scenario", err.Error(), r.URL.Path)
			return
		}
		rec, err := s.Store.CreateScenario(r.Context(), req.Name, req.Scenario)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create scenario failed", err.Error(), r.URL.Path)
			return
		}
		rec.Scenario = nil
		writeJSON(w, http.StatusCreated, rec)
	case http.MethodGet:
		items, err := s.Store.ListScenarios(r.Context(), 100)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List scenarios failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ScenarioByIDHandler handles GET /v1/scenarios/{id}.
func (s *Server) ScenarioByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/scenarios/")
	rec, err := s.Store.GetScenario(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Scenario not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get scenario failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// PlansHandler handles POST /v1/plans (launch a run) and GET /v1/plans.
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			ScenarioID string `json:"scenarioId"`
			CostMode   string `json:"costMode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.ScenarioID == "" {
			writeProblem(w, http.StatusBadRequest, "Missing scenarioId", "", r.URL.Path)
			return
		}
		cfg := s.EngineCfg.Engine
		if req.CostMode != "" {
			mode, err := opt.ParseWarehouseCostMode(req.CostMode)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid costMode", err.Error(), r.URL.Path)
				return
			}
			cfg.CostMode = mode
		}
		rec, err := s.Store.GetScenario(r.Context(), req.ScenarioID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeProblem(w, http.StatusNotFound, "Scenario not found", "", r.URL.Path)
				return
			}
			writeProblem(w, http.StatusInternalServerError, "Get scenario failed", err.Error(), r.URL.Path)
			return
		}
		run, err := s.Store.CreatePlanRun(r.Context(), req.ScenarioID, cfg)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create plan run failed", err.Error(), r.URL.Path)
			return
		}
		go s.runPlan(run, rec.Scenario)
		writeJSON(w, http.StatusAccepted, run)
	case http.MethodGet:
		items, err := s.Store.ListPlanRuns(r.Context(), 100)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List plan runs failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// runPlan executes one optimization run to completion in the background,
// streaming iteration progress through the broker and finishing with a
// webhook event.
func (s *Server) runPlan(run store.PlanRun, sc *model.Scenario) {
	ctx := context.Background()
	start := time.Now()
	_ = s.Store.SetPlanRunStatus(ctx, run.ID, store.RunRunning)

	eng := opt.NewEngine(s.Backend, run.Config)
	eng.OnProgress(func(p opt.Progress) {
		_ = s.Store.RecordPlanProgress(ctx, run.ID, p.Iteration, p.Lambda)
		metrics.SolverStatuses.WithLabelValues(p.Status).Inc()
		s.Broker.Publish(run.ID, SSEEvent{Type: "plan.progress", Data: map[string]any{
			"planId":      run.ID,
			"iteration":   p.Iteration,
			"lambda":      p.Lambda,
			"numerator":   p.Numerator,
			"denominator": p.Denominator,
			"status":      p.Status,
		}})
	})

	sol, err := eng.Solve(ctx, sc)
	metrics.PlanDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		_ = s.Store.CompletePlanRun(ctx, run.ID, store.RunConverged, sol, "")
		metrics.PlanRuns.WithLabelValues(store.RunConverged).Inc()
		metrics.PlanIterations.Observe(float64(sol.Iterations))
		data := map[string]any{"planId": run.ID, "lambda": sol.Lambda, "iterations": sol.Iterations}
		s.Broker.Publish(run.ID, SSEEvent{Type: webhooks.EventPlanCompleted, Data: data})
		s.Pub.Emit(ctx, webhooks.EventPlanCompleted, data)
	case errors.Is(err, opt.ErrNoSolution):
		_ = s.Store.CompletePlanRun(ctx, run.ID, store.RunNoSolution, nil, err.Error())
		metrics.PlanRuns.WithLabelValues(store.RunNoSolution).Inc()
		data := map[string]any{"planId": run.ID, "reason": err.Error()}
		s.Broker.Publish(run.ID, SSEEvent{Type: webhooks.EventPlanFailed, Data: data})
		s.Pub.Emit(ctx, webhooks.EventPlanFailed, data)
	default:
		_ = s.Store.CompletePlanRun(ctx, run.ID, store.RunFailed, nil, err.Error())
		metrics.PlanRuns.WithLabelValues(store.RunFailed).Inc()
		data := map[string]any{"planId": run.ID, "reason": err.Error()}
		s.Broker.Publish(run.ID, SSEEvent{Type: webhooks.EventPlanFailed, Data: data})
		s.Pub.Emit(ctx, webhooks.EventPlanFailed, data)
	}
}

// PlanByIDHandler handles GET /v1/plans/{id} and the streaming variants
// /v1/plans/{id}/events/stream (SSE) and /v1/plans/{id}/progress/ws.
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}

	if len(parts) > 2 && parts[1] == "events" && parts[2] == "stream" {
		s.streamPlanEvents(w, r, id)
		return
	}
	if len(parts) > 2 && parts[1] == "progress" && parts[2] == "ws" {
		s.PlanProgressWS(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	run, err := s.Store.GetPlanRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Plan not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get plan failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) streamPlanEvents(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.Store.GetPlanRun(r.Context(), id); err != nil {
		writeProblem(w, http.StatusNotFound, "Plan not found", "", r.URL.Path)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"planId\":%q,\"ts\":%q}\n\n", id, time.Now().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()

	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			heartbeat()
		}
	}
}

// SubscriptionsHandler handles POST and GET /v1/subscriptions.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			URL    string   `json:"url"`
			Secret string   `json:"secret"`
			Events []string `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Missing url or events", "", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req.URL, req.Secret, req.Events)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		items, err := s.Store.ListSubscriptions(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
