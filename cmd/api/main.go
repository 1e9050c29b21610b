package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"breadfleet/internal/api"
	"breadfleet/internal/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("BREADFLEET_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	srv, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	mux := http.NewServeMux()

	// Scenarios
	mux.HandleFunc("/v1/scenarios", srv.ScenariosHandler)
	mux.HandleFunc("/v1/scenarios/", srv.ScenarioByIDHandler)

	// Plan runs
	mux.HandleFunc("/v1/plans", srv.PlansHandler)
	mux.HandleFunc("/v1/plans/", srv.PlanByIDHandler) // includes /events/stream, /progress/ws

	// Webhook subscriptions
	mux.HandleFunc("/v1/subscriptions", srv.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srv.SubscriptionByIDHandler)

	// Health & metrics
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.HandleFunc("/readyz", srv.ReadyHandler)
	mux.Handle("/metrics", srv.MetricsHandler())

	addr := ":" + cfg.Port

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(api.RateLimitMiddleware(api.MetricsMiddleware(mux))),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("planner API listening on %s", addr)
	worker := srv.NewWebhookWorker()
	worker.Start()
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}
