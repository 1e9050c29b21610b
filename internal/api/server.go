package api

import (
	"log"

	"breadfleet/internal/config"
	"breadfleet/internal/sat"
	"breadfleet/internal/store"
	"breadfleet/internal/webhooks"
)

type Server struct {
	Store     store.Store
	Pub       *webhooks.Publisher
	Broker    EventBroker
	EngineCfg config.Config

	// Backend builds solver models; tests swap in a recorder.
	Backend sat.Backend
}

// NewServer wires the server. Without DATABASE_URL the in-memory store is
// used; without REDIS_URL events stay in-process.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if cfg.DatabaseURL == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s = sp
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			log.Printf("redis broker unavailable, falling back to in-process: %v", err)
			broker = NewBroker()
		} else {
			broker = rb
		}
	} else {
		broker = NewBroker()
	}

	return &Server{
		Store:     s,
		Pub:       webhooks.NewPublisher(s),
		Broker:    broker,
		EngineCfg: cfg,
		Backend:   sat.NewCpSat(),
	}, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
