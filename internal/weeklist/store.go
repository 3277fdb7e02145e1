package weeklist

import (
	"context"
	"encoding/json"
)

// Store is the persistence boundary for the shopping list. There is one
// production implementation per backend; callers pick one via
// BuildStoreFromDSN.
//
// Uniqueness notes: category names are unique. History entries are unique by
// exact name string only — case-insensitive de-duplication is an application
// concern handled in the sync client's add path, so two entries differing
// only in case can coexist when written through the management endpoints.
type Store interface {
	// Items. ListItems returns newest first (created_at descending).
	ListItems(ctx context.Context) ([]Item, error)
	CreateItem(ctx context.Context, in NewItem) (Item, error)
	UpdateItem(ctx context.Context, id string, upd ItemUpdate) (Item, error)
	// DeleteItem is idempotent: deleting an absent id is not an error.
	DeleteItem(ctx context.Context, id string) error
	DeleteAllItems(ctx context.Context) error

	// History. UpsertHistory inserts or replaces by name (most recent
	// category wins). RenameHistory fails with ErrNotFound for an unknown
	// name and ErrDuplicate when the new name is already taken.
	ListHistory(ctx context.Context) ([]HistoryEntry, error)
	UpsertHistory(ctx context.Context, entry HistoryEntry) error
	RenameHistory(ctx context.Context, name, newName, category string) (HistoryEntry, error)
	DeleteHistory(ctx context.Context, name string) error

	// Categories, sorted by order then name.
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, name string, order int) (Category, error)
	UpdateCategory(ctx context.Context, id string, upd CategoryUpdate) (Category, error)
	DeleteCategory(ctx context.Context, id string) error

	// Meta is a generic key/value store. GetMeta returns ErrNotFound for an
	// unset key.
	GetMeta(ctx context.Context, key string) (json.RawMessage, error)
	SetMeta(ctx context.Context, key string, value json.RawMessage) error

	// Push subscriptions, upserted by endpoint.
	ListSubscriptions(ctx context.Context) ([]PushSubscription, error)
	UpsertSubscription(ctx context.Context, sub PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error

	Close() error
}
