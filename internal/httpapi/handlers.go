package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/weeklist/weeklist/internal/weeklist"
)

type successResponse struct {
	Success bool `json:"success"`
}

// --- Items ---

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListItems(r.Context())
	if err != nil {
		s.storeError(w, err, "list items")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	var in weeklist.NewItem
	if !s.decodeValidated(w, body, schemaItemCreate, &in) {
		return
	}
	item, err := s.store.CreateItem(r.Context(), in)
	if err != nil {
		s.storeError(w, err, "create item")
		return
	}
	// Fire-and-forget: push dispatch must not block or fail the response.
	if s.notifier != nil {
		go s.notifier.ItemAdded(context.Background(), item)
	}
	s.hub.broadcast(Event{Type: EventItemAdded, Item: &item})
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	var upd weeklist.ItemUpdate
	if err := json.Unmarshal(body, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	item, err := s.store.UpdateItem(r.Context(), mux.Vars(r)["id"], upd)
	if err != nil {
		s.storeError(w, err, "update item")
		return
	}
	s.hub.broadcast(Event{Type: EventItemUpdated, Item: &item})
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.DeleteItem(r.Context(), id); err != nil {
		s.storeError(w, err, "delete item")
		return
	}
	s.hub.broadcast(Event{Type: EventItemDeleted, ID: id})
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleClearItems(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAllItems(r.Context()); err != nil {
		s.storeError(w, err, "clear items")
		return
	}
	s.hub.broadcast(Event{Type: EventListCleared})
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// --- History ---

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListHistory(r.Context())
	if err != nil {
		s.storeError(w, err, "list history")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleUpsertHistory(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	var entry weeklist.HistoryEntry
	if !s.decodeValidated(w, body, schemaHistoryUpsert, &entry) {
		return
	}
	if err := s.store.UpsertHistory(r.Context(), entry); err != nil {
		s.storeError(w, err, "save history")
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleRenameHistory(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	var req struct {
		NewName  string `json:"newName"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	entry, err := s.store.RenameHistory(r.Context(), mux.Vars(r)["name"], req.NewName, req.Category)
	if err != nil {
		s.storeError(w, err, "update history")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteHistory(r.Context(), mux.Vars(r)["name"]); err != nil {
		s.storeError(w, err, "delete history")
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// --- Categories ---

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.ListCategories(r.Context())
	if err != nil {
		s.storeError(w, err, "list categories")
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	var req struct {
		Name  string `json:"name"`
		Order int    `json:"order"`
	}
	if !s.decodeValidated(w, body, schemaCategoryCreate, &req) {
		return
	}
	category, err := s.store.CreateCategory(r.Context(), req.Name, req.Order)
	if err != nil {
		s.storeError(w, err, "create category")
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	var upd weeklist.CategoryUpdate
	if err := json.Unmarshal(body, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	category, err := s.store.UpdateCategory(r.Context(), mux.Vars(r)["id"], upd)
	if err != nil {
		s.storeError(w, err, "update category")
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCategory(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.storeError(w, err, "delete category")
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// --- Meta ---

type metaResponse struct {
	Value json.RawMessage `json:"value"`
}

func (s *Server) handleGetMeta(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing key query")
		return
	}
	value, err := s.store.GetMeta(r.Context(), key)
	if err != nil {
		if err == weeklist.ErrNotFound {
			// An unset key reads as null, matching client expectations.
			writeJSON(w, http.StatusOK, metaResponse{Value: nil})
			return
		}
		s.storeError(w, err, "get meta")
		return
	}
	writeJSON(w, http.StatusOK, metaResponse{Value: value})
}

func (s *Server) handleSetMeta(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	var req struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}
	if !s.decodeValidated(w, body, schemaMetaSet, &req) {
		return
	}
	if err := s.store.SetMeta(r.Context(), req.Key, req.Value); err != nil {
		s.storeError(w, err, "set meta")
		return
	}
	writeJSON(w, http.StatusOK, metaResponse{Value: req.Value})
}

// --- Push subscriptions ---

func (s *Server) handlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	var sub weeklist.PushSubscription
	if !s.decodeValidated(w, body, schemaPushSubscribe, &sub) {
		return
	}
	if err := s.store.UpsertSubscription(r.Context(), sub); err != nil {
		s.storeError(w, err, "save subscription")
		return
	}
	writeJSON(w, http.StatusCreated, successResponse{Success: true})
}
