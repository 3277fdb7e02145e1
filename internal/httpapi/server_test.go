package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/weeklist/weeklist/internal/weeklist"
)

type apiRequest struct {
	method string
	path   string
	body   any
}

func doRequest(t *testing.T, server *Server, req apiRequest, out any) *httptest.ResponseRecorder {
	t.Helper()
	var bodyReader *bytes.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}
	httpReq := httptest.NewRequest(req.method, req.path, bodyReader)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httpReq)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decoding %s %s response: %v (body %s)", req.method, req.path, err, rec.Body.String())
		}
	}
	return rec
}

func newTestServer() *Server {
	return NewServer(weeklist.NewMemoryStore())
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, newTestServer(), apiRequest{method: http.MethodGet, path: "/health"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestItemLifecycle(t *testing.T) {
	server := newTestServer()

	var created weeklist.Item
	rec := doRequest(t, server, apiRequest{
		method: http.MethodPost,
		path:   "/items",
		body:   map[string]string{"name": "Milk", "category": "Dairy"},
	}, &created)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if created.ID == "" || created.Name != "Milk" || created.Quantity != "1" {
		t.Fatalf("unexpected created item: %+v", created)
	}

	var items []weeklist.Item
	rec = doRequest(t, server, apiRequest{method: http.MethodGet, path: "/items"}, &items)
	if rec.Code != http.StatusOK || len(items) != 1 {
		t.Fatalf("expected 1 item, got %d (status %d)", len(items), rec.Code)
	}

	var updated weeklist.Item
	rec = doRequest(t, server, apiRequest{
		method: http.MethodPut,
		path:   "/items/" + created.ID,
		body:   map[string]any{"completed": true, "quantity": "2"},
	}, &updated)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !updated.Completed || updated.Quantity != "2" || updated.Category != "Dairy" {
		t.Fatalf("unexpected updated item: %+v", updated)
	}

	rec = doRequest(t, server, apiRequest{method: http.MethodDelete, path: "/items/" + created.ID}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = doRequest(t, server, apiRequest{method: http.MethodGet, path: "/items"}, &items)
	if rec.Code != http.StatusOK || len(items) != 0 {
		t.Fatalf("expected empty list, got %d items", len(items))
	}
}

func TestCreateItemValidation(t *testing.T) {
	server := newTestServer()
	for _, body := range []any{
		map[string]string{},
		map[string]string{"name": ""},
		map[string]any{"name": 42},
	} {
		rec := doRequest(t, server, apiRequest{method: http.MethodPost, path: "/items", body: body}, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %v: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestUpdateItemNotFound(t *testing.T) {
	rec := doRequest(t, newTestServer(), apiRequest{
		method: http.MethodPut,
		path:   "/items/does-not-exist",
		body:   map[string]bool{"completed": true},
	}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestClearItems(t *testing.T) {
	server := newTestServer()
	for _, name := range []string{"Milk", "Bread"} {
		rec := doRequest(t, server, apiRequest{method: http.MethodPost, path: "/items", body: map[string]string{"name": name}}, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %s: expected 201, got %d", name, rec.Code)
		}
	}
	rec := doRequest(t, server, apiRequest{method: http.MethodDelete, path: "/items"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []weeklist.Item
	doRequest(t, server, apiRequest{method: http.MethodGet, path: "/items"}, &items)
	if len(items) != 0 {
		t.Fatalf("expected empty list after clear, got %d", len(items))
	}
}

func TestHistoryEndpoints(t *testing.T) {
	server := newTestServer()

	rec := doRequest(t, server, apiRequest{
		method: http.MethodPost,
		path:   "/history",
		body:   map[string]string{"name": "Milk", "category": "Dairy"},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var entries []weeklist.HistoryEntry
	doRequest(t, server, apiRequest{method: http.MethodGet, path: "/history"}, &entries)
	if len(entries) != 1 || entries[0].Category != "Dairy" {
		t.Fatalf("unexpected history: %+v", entries)
	}

	var renamed weeklist.HistoryEntry
	rec = doRequest(t, server, apiRequest{
		method: http.MethodPut,
		path:   "/history/Milk",
		body:   map[string]string{"newName": "Oat Milk", "category": "Alternatives"},
	}, &renamed)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if renamed.Name != "Oat Milk" || renamed.Category != "Alternatives" {
		t.Fatalf("unexpected renamed entry: %+v", renamed)
	}

	rec = doRequest(t, server, apiRequest{
		method: http.MethodPut,
		path:   "/history/Ghost",
		body:   map[string]string{"newName": "Whatever"},
	}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown history name, got %d", rec.Code)
	}

	rec = doRequest(t, server, apiRequest{method: http.MethodDelete, path: "/history/Oat%20Milk"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	doRequest(t, server, apiRequest{method: http.MethodGet, path: "/history"}, &entries)
	if len(entries) != 0 {
		t.Fatalf("expected empty history, got %+v", entries)
	}
}

func TestCategoryEndpoints(t *testing.T) {
	server := newTestServer()

	var dairy weeklist.Category
	rec := doRequest(t, server, apiRequest{
		method: http.MethodPost,
		path:   "/categories",
		body:   map[string]any{"name": "Dairy", "order": 1},
	}, &dairy)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, server, apiRequest{
		method: http.MethodPost,
		path:   "/categories",
		body:   map[string]any{"name": "Dairy", "order": 2},
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate category, got %d", rec.Code)
	}

	var updated weeklist.Category
	rec = doRequest(t, server, apiRequest{
		method: http.MethodPut,
		path:   "/categories/" + dairy.ID,
		body:   map[string]any{"order": 7},
	}, &updated)
	if rec.Code != http.StatusOK || updated.Order != 7 {
		t.Fatalf("expected order 7, got %+v (status %d)", updated, rec.Code)
	}

	rec = doRequest(t, server, apiRequest{method: http.MethodDelete, path: "/categories/" + dairy.ID}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var categories []weeklist.Category
	doRequest(t, server, apiRequest{method: http.MethodGet, path: "/categories"}, &categories)
	if len(categories) != 0 {
		t.Fatalf("expected no categories, got %+v", categories)
	}
}

func TestMetaUnsetReadsAsNull(t *testing.T) {
	server := newTestServer()

	rec := doRequest(t, server, apiRequest{method: http.MethodGet, path: "/meta?key=weekStartDate"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding meta response: %v", err)
	}
	if string(resp.Value) != "null" {
		t.Fatalf("expected null value for unset key, got %s", resp.Value)
	}

	rec = doRequest(t, server, apiRequest{
		method: http.MethodPost,
		path:   "/meta",
		body:   map[string]any{"key": "weekStartDate", "value": 1700000000000},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	doRequest(t, server, apiRequest{method: http.MethodGet, path: "/meta?key=weekStartDate"}, &resp)
	if string(resp.Value) != "1700000000000" {
		t.Fatalf("expected stored value, got %s", resp.Value)
	}
}

func TestMetaMissingKeyQuery(t *testing.T) {
	rec := doRequest(t, newTestServer(), apiRequest{method: http.MethodGet, path: "/meta"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPushSubscribeValidation(t *testing.T) {
	server := newTestServer()

	rec := doRequest(t, server, apiRequest{
		method: http.MethodPost,
		path:   "/push/subscribe",
		body:   map[string]any{"endpoint": "https://push.example.com/x"},
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing keys, got %d", rec.Code)
	}

	rec = doRequest(t, server, apiRequest{
		method: http.MethodPost,
		path:   "/push/subscribe",
		body: map[string]any{
			"endpoint":       "https://push.example.com/x",
			"expirationTime": nil,
			"keys":           map[string]string{"p256dh": "p", "auth": "a"},
		},
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []weeklist.Item
	done  chan struct{}
}

func (n *recordingNotifier) ItemAdded(_ context.Context, item weeklist.Item) {
	n.mu.Lock()
	n.items = append(n.items, item)
	n.mu.Unlock()
	n.done <- struct{}{}
}

func TestCreateItemNotifies(t *testing.T) {
	notifier := &recordingNotifier{done: make(chan struct{}, 1)}
	server := NewServerWithConfig(weeklist.NewMemoryStore(), ServerConfig{Notifier: notifier})

	rec := doRequest(t, server, apiRequest{
		method: http.MethodPost,
		path:   "/items",
		body:   map[string]string{"name": "Milk"},
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	<-notifier.done
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.items) != 1 || notifier.items[0].Name != "Milk" {
		t.Fatalf("expected notification for Milk, got %+v", notifier.items)
	}
}
