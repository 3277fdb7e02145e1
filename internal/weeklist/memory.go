package weeklist

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is the default Store: mutex-guarded maps, no durability.
// It backs local development and every non-integration test.
type MemoryStore struct {
	mu            sync.Mutex
	items         map[string]Item
	itemSeq       map[string]int64
	seq           int64
	history       map[string]HistoryEntry
	categories    map[string]Category
	meta          map[string]json.RawMessage
	subscriptions map[string]PushSubscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:         map[string]Item{},
		itemSeq:       map[string]int64{},
		history:       map[string]HistoryEntry{},
		categories:    map[string]Category{},
		meta:          map[string]json.RawMessage{},
		subscriptions: map[string]PushSubscription{},
	}
}

func (s *MemoryStore) ListItems(_ context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	// Newest first; the insertion sequence breaks same-millisecond ties.
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt > items[j].CreatedAt
		}
		return s.itemSeq[items[i].ID] > s.itemSeq[items[j].ID]
	})
	return items, nil
}

func (s *MemoryStore) CreateItem(_ context.Context, in NewItem) (Item, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Item{}, ErrInvalidInput
	}
	quantity := in.Quantity
	if quantity == "" {
		quantity = "1"
	}
	item := Item{
		ID:        uuid.NewString(),
		Name:      name,
		Completed: false,
		Category:  in.Category,
		Quantity:  quantity,
		CreatedAt: nowMillis(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.items[item.ID] = item
	s.itemSeq[item.ID] = s.seq
	return item, nil
}

func (s *MemoryStore) UpdateItem(_ context.Context, id string, upd ItemUpdate) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	if upd.Name != nil {
		item.Name = *upd.Name
	}
	if upd.Completed != nil {
		item.Completed = *upd.Completed
	}
	if upd.Category != nil {
		item.Category = *upd.Category
	}
	if upd.Quantity != nil {
		item.Quantity = *upd.Quantity
	}
	s.items[id] = item
	return item, nil
}

func (s *MemoryStore) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	delete(s.itemSeq, id)
	return nil
}

func (s *MemoryStore) DeleteAllItems(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = map[string]Item{}
	s.itemSeq = map[string]int64{}
	return nil
}

func (s *MemoryStore) ListHistory(_ context.Context) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]HistoryEntry, 0, len(s.history))
	for _, entry := range s.history {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *MemoryStore) UpsertHistory(_ context.Context, entry HistoryEntry) error {
	if strings.TrimSpace(entry.Name) == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[entry.Name] = entry
	return nil
}

func (s *MemoryStore) RenameHistory(_ context.Context, name, newName, category string) (HistoryEntry, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return HistoryEntry{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.history[name]; !ok {
		return HistoryEntry{}, ErrNotFound
	}
	if newName != name {
		if _, taken := s.history[newName]; taken {
			return HistoryEntry{}, ErrDuplicate
		}
	}
	delete(s.history, name)
	entry := HistoryEntry{Name: newName, Category: category}
	s.history[newName] = entry
	return entry, nil
}

func (s *MemoryStore) DeleteHistory(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, name)
	return nil
}

func (s *MemoryStore) ListCategories(_ context.Context) ([]Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	categories := make([]Category, 0, len(s.categories))
	for _, category := range s.categories {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Order != categories[j].Order {
			return categories[i].Order < categories[j].Order
		}
		return categories[i].Name < categories[j].Name
	})
	return categories, nil
}

func (s *MemoryStore) CreateCategory(_ context.Context, name string, order int) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.categories {
		if existing.Name == name {
			return Category{}, ErrDuplicate
		}
	}
	category := Category{ID: uuid.NewString(), Name: name, Order: order}
	s.categories[category.ID] = category
	return category, nil
}

func (s *MemoryStore) UpdateCategory(_ context.Context, id string, upd CategoryUpdate) (Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	category, ok := s.categories[id]
	if !ok {
		return Category{}, ErrNotFound
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Category{}, ErrInvalidInput
		}
		for otherID, existing := range s.categories {
			if otherID != id && existing.Name == name {
				return Category{}, ErrDuplicate
			}
		}
		category.Name = name
	}
	if upd.Order != nil {
		category.Order = *upd.Order
	}
	s.categories[id] = category
	return category, nil
}

func (s *MemoryStore) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.categories, id)
	return nil
}

func (s *MemoryStore) GetMeta(_ context.Context, key string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.meta[key]
	if !ok {
		return nil, ErrNotFound
	}
	return value, nil
}

func (s *MemoryStore) SetMeta(_ context.Context, key string, value json.RawMessage) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[key] = value
	return nil
}

func (s *MemoryStore) ListSubscriptions(_ context.Context) ([]PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := make([]PushSubscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Endpoint < subs[j].Endpoint })
	return subs, nil
}

func (s *MemoryStore) UpsertSubscription(_ context.Context, sub PushSubscription) error {
	if strings.TrimSpace(sub.Endpoint) == "" {
		return ErrInvalidInput
	}
	if sub.CreatedAt == 0 {
		sub.CreatedAt = nowMillis()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.Endpoint] = sub
	return nil
}

func (s *MemoryStore) DeleteSubscription(_ context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, endpoint)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
