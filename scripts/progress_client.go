// Package main runs a demo WebSocket client that follows a plan run's
// progress events.
package main

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: progress_client PLAN_ID")
	}
	planID := os.Args[1]
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: fmt.Sprintf("/v1/plans/%s/progress/ws", planID)}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), http.Header{})
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()
	log.Printf("following plan %s", planID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var evt struct {
				Type string         `json:"type"`
				Data map[string]any `json:"data"`
			}
			if err := c.ReadJSON(&evt); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %v", evt.Type, evt.Data)
			if evt.Type == "plan.completed" || evt.Type == "plan.failed" {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Minute):
		log.Print("timed out waiting for plan to finish")
	}
}
