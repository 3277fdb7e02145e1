package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

func TestEventsFeed(t *testing.T) {
	server := newTestServer()
	ts := httptest.NewServer(server)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.CloseNow()

	// The subscription is registered by the handler goroutine; give it a
	// moment before producing the first event.
	waitForSubscriber(t, server.hub)

	body, _ := json.Marshal(map[string]string{"name": "Milk"})
	resp, err := http.Post(ts.URL+"/items", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("creating item: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	_, msg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("reading event: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if ev.Type != EventItemAdded {
		t.Fatalf("expected %s event, got %s", EventItemAdded, ev.Type)
	}
	if ev.Item == nil || ev.Item.Name != "Milk" {
		t.Fatalf("expected event to carry the item, got %+v", ev.Item)
	}
}

func TestEventsBroadcastDropsSlowConsumers(t *testing.T) {
	hub := newEventHub(zap.NewNop())
	ch := hub.subscribe()
	defer hub.unsubscribe(ch)

	// Overfill the buffer; broadcast must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.broadcast(Event{Type: EventItemUpdated})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("broadcast blocked on a slow consumer")
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected full buffer of %d, got %d", cap(ch), len(ch))
	}
}

func waitForSubscriber(t *testing.T, hub *eventHub) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.Lock()
		n := len(hub.subscribers)
		hub.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no websocket subscriber registered in time")
}
