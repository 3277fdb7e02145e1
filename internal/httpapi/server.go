package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/weeklist/weeklist/internal/weeklist"
)

// Notifier receives item-creation events for push fan-out. Dispatch happens
// in its own goroutine and must never block or fail the creation response.
type Notifier interface {
	ItemAdded(ctx context.Context, item weeklist.Item)
}

type ServerConfig struct {
	Logger       *zap.Logger
	Notifier     Notifier
	MaxBodyBytes int64
}

// Server exposes the shopping-list resource API over JSON.
type Server struct {
	store    weeklist.Store
	cfg      ServerConfig
	logger   *zap.Logger
	notifier Notifier
	hub      *eventHub
	schemas  *requestSchemas
	router   *mux.Router
}

func NewServer(store weeklist.Store) *Server {
	return NewServerWithConfig(store, ServerConfig{})
}

func NewServerWithConfig(store weeklist.Store, cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:    store,
		cfg:      cfg,
		logger:   logger,
		notifier: cfg.Notifier,
		hub:      newEventHub(logger),
		schemas:  mustCompileSchemas(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/items", s.handleListItems).Methods(http.MethodGet)
	r.HandleFunc("/items", s.handleCreateItem).Methods(http.MethodPost)
	r.HandleFunc("/items", s.handleClearItems).Methods(http.MethodDelete)
	r.HandleFunc("/items/{id}", s.handleUpdateItem).Methods(http.MethodPut)
	r.HandleFunc("/items/{id}", s.handleDeleteItem).Methods(http.MethodDelete)

	r.HandleFunc("/history", s.handleListHistory).Methods(http.MethodGet)
	r.HandleFunc("/history", s.handleUpsertHistory).Methods(http.MethodPost)
	r.HandleFunc("/history/{name}", s.handleRenameHistory).Methods(http.MethodPut)
	r.HandleFunc("/history/{name}", s.handleDeleteHistory).Methods(http.MethodDelete)

	r.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	r.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	r.HandleFunc("/categories/{id}", s.handleUpdateCategory).Methods(http.MethodPut)
	r.HandleFunc("/categories/{id}", s.handleDeleteCategory).Methods(http.MethodDelete)

	r.HandleFunc("/meta", s.handleGetMeta).Methods(http.MethodGet)
	r.HandleFunc("/meta", s.handleSetMeta).Methods(http.MethodPost)

	r.HandleFunc("/push/subscribe", s.handlePushSubscribe).Methods(http.MethodPost)

	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readRequestBody enforces the body size limit and reports malformed reads
// as a 400. The bool result signals whether the handler may continue.
func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "unable to read request body")
		return nil, false
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
		return nil, false
	}
	return body, true
}

// decodeValidated validates body against the named schema and decodes it
// into out. Validation failures surface as 400s with the schema's message.
func (s *Server) decodeValidated(w http.ResponseWriter, body []byte, schema string, out any) bool {
	if err := s.schemas.validate(schema, body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return false
	}
	return true
}

// storeError maps store failures onto the API error taxonomy. Internal
// failures are logged with detail but reported generically.
func (s *Server) storeError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, weeklist.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", action+": not found")
	case errors.Is(err, weeklist.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", action+": invalid input")
	case errors.Is(err, weeklist.ErrDuplicate):
		writeError(w, http.StatusConflict, "conflict", action+": already exists")
	default:
		s.logger.Error("store operation failed", zap.String("action", action), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
