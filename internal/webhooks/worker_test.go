package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"breadfleet/internal/store"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	sig := SignHMAC("secret", body)
	if !VerifyHMAC("secret", body, sig) {
		t.Fatal("signature should verify")
	}
	if VerifyHMAC("wrong", body, sig) {
		t.Fatal("wrong secret should not verify")
	}
	if VerifyHMAC("secret", body, "zz") {
		t.Fatal("non-hex signature should not verify")
	}
}

func TestPublisherEnqueuesForMatchingSubscriptions(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	_, _ = s.CreateSubscription(ctx, "https://example.invalid/a", "k1", []string{EventPlanCompleted})
	_, _ = s.CreateSubscription(ctx, "https://example.invalid/b", "k2", []string{EventPlanFailed})

	NewPublisher(s).Emit(ctx, EventPlanCompleted, map[string]any{"planId": "p1"})

	due, err := s.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil {
		t.Fatalf("FetchDueWebhookDeliveries: %v", err)
	}
	if len(due) != 1 || due[0].EventType != EventPlanCompleted {
		t.Fatalf("deliveries = %+v", due)
	}
	var payload struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(due[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Type != EventPlanCompleted || payload.Data["planId"] != "p1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestWorkerDeliversWithSignature(t *testing.T) {
	received := make(chan *http.Request, 1)
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		received <- r
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := store.NewMemory()
	ctx := context.Background()
	sub, _ := s.CreateSubscription(ctx, srv.URL, "topsecret", []string{EventPlanCompleted})
	_, _ = s.EnqueueWebhook(ctx, sub.ID, EventPlanCompleted, sub.URL, sub.Secret, []byte(`{"ok":true}`))

	w := NewWorker(s)
	w.processOnce()

	select {
	case r := <-received:
		if r.Header.Get("X-Event-Type") != EventPlanCompleted {
			t.Fatalf("event type header = %q", r.Header.Get("X-Event-Type"))
		}
		if !VerifyHMAC("topsecret", gotBody, r.Header.Get("X-Signature")) {
			t.Fatal("delivery signature does not verify")
		}
	case <-time.After(time.Second):
		t.Fatal("webhook never arrived")
	}

	// Delivered items must not be re-fetched.
	if due, _ := s.FetchDueWebhookDeliveries(ctx, 10); len(due) != 0 {
		t.Fatalf("delivered item still due: %+v", due)
	}
}

func TestWorkerFailsAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := store.NewMemory()
	ctx := context.Background()
	sub, _ := s.CreateSubscription(ctx, srv.URL, "", []string{EventPlanFailed})
	id, _ := s.EnqueueWebhook(ctx, sub.ID, EventPlanFailed, sub.URL, "", []byte(`{}`))

	w := NewWorker(s)
	w.MaxAttempts = 1
	w.processOnce()

	// A single allowed attempt means immediate dead-lettering.
	if due, _ := s.FetchDueWebhookDeliveries(ctx, 10); len(due) != 0 {
		t.Fatalf("failed delivery %s should not be due again: %+v", id, due)
	}
}

func TestNextBackoffGrowsAndCaps(t *testing.T) {
	if nextBackoff(0) != time.Second {
		t.Fatalf("backoff(0) = %v", nextBackoff(0))
	}
	if nextBackoff(3) != 8*time.Second {
		t.Fatalf("backoff(3) = %v", nextBackoff(3))
	}
	// The exponent clamps at 10, so the schedule tops out at 1024s.
	if nextBackoff(30) != 1024*time.Second {
		t.Fatalf("backoff(30) = %v", nextBackoff(30))
	}
}
