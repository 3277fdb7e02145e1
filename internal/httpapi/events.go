package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/weeklist/weeklist/internal/weeklist"
)

const (
	EventItemAdded   = "item_added"
	EventItemUpdated = "item_updated"
	EventItemDeleted = "item_deleted"
	EventListCleared = "list_cleared"
)

// Event is one change notification on the /events feed.
type Event struct {
	Type string         `json:"type"`
	Item *weeklist.Item `json:"item,omitempty"`
	ID   string         `json:"id,omitempty"`
}

const eventWriteTimeout = 5 * time.Second

// eventHub fans change events out to connected WebSocket clients. Slow
// consumers drop events rather than stall the handlers.
type eventHub struct {
	logger      *zap.Logger
	mu          sync.Mutex
	subscribers map[chan []byte]struct{}
}

func newEventHub(logger *zap.Logger) *eventHub {
	return &eventHub{
		logger:      logger,
		subscribers: map[chan []byte]struct{}{},
	}
}

func (h *eventHub) subscribe() chan []byte {
	ch := make(chan []byte, 16)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[ch] = struct{}{}
	return ch
}

func (h *eventHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, ch)
}

func (h *eventHub) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encoding change event", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- data:
		default:
		}
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	// The feed is one-way; CloseRead discards inbound frames and cancels
	// the context when the client goes away.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
