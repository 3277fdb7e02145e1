package weeklist

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestCreateItemDefaults(t *testing.T) {
	store := NewMemoryStore()
	item, err := store.CreateItem(context.Background(), NewItem{Name: "  Milk  "})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if item.ID == "" {
		t.Fatalf("expected generated id")
	}
	if item.Name != "Milk" {
		t.Fatalf("expected trimmed name Milk, got %q", item.Name)
	}
	if item.Quantity != "1" {
		t.Fatalf("expected default quantity 1, got %q", item.Quantity)
	}
	if item.Completed {
		t.Fatalf("new items must start uncompleted")
	}
	if item.CreatedAt == 0 {
		t.Fatalf("expected CreatedAt to be set")
	}
}

func TestCreateItemRejectsEmptyName(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.CreateItem(context.Background(), NewItem{Name: "   "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestListItemsNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	names := []string{"Milk", "Bread", "Eggs"}
	for _, name := range names {
		if _, err := store.CreateItem(ctx, NewItem{Name: name}); err != nil {
			t.Fatalf("CreateItem %s failed: %v", name, err)
		}
	}
	items, err := store.ListItems(ctx)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	// Insertion order reversed, even for same-millisecond creations.
	for i, want := range []string{"Eggs", "Bread", "Milk"} {
		if items[i].Name != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, items[i].Name)
		}
	}
}

func TestUpdateItemPartial(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	item, err := store.CreateItem(ctx, NewItem{Name: "Milk", Category: "Dairy"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	completed := true
	updated, err := store.UpdateItem(ctx, item.ID, ItemUpdate{Completed: &completed})
	if err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}
	if !updated.Completed {
		t.Fatalf("expected completed true")
	}
	if updated.Name != "Milk" || updated.Category != "Dairy" || updated.Quantity != "1" {
		t.Fatalf("untouched fields changed: %+v", updated)
	}
}

func TestUpdateItemNotFound(t *testing.T) {
	store := NewMemoryStore()
	quantity := "2"
	if _, err := store.UpdateItem(context.Background(), "missing", ItemUpdate{Quantity: &quantity}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteItemIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	item, err := store.CreateItem(ctx, NewItem{Name: "Milk"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if err := store.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	if err := store.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("second DeleteItem should be a no-op, got %v", err)
	}
	items, err := store.ListItems(ctx)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty list, got %d items", len(items))
	}
}

func TestDeleteAllItems(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, name := range []string{"Milk", "Bread"} {
		if _, err := store.CreateItem(ctx, NewItem{Name: name}); err != nil {
			t.Fatalf("CreateItem failed: %v", err)
		}
	}
	if err := store.DeleteAllItems(ctx); err != nil {
		t.Fatalf("DeleteAllItems failed: %v", err)
	}
	items, err := store.ListItems(ctx)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty list after clear, got %d", len(items))
	}
}

func TestUpsertHistoryLatestCategoryWins(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.UpsertHistory(ctx, HistoryEntry{Name: "Milk", Category: "Dairy"}); err != nil {
		t.Fatalf("UpsertHistory failed: %v", err)
	}
	if err := store.UpsertHistory(ctx, HistoryEntry{Name: "Milk", Category: "Breakfast"}); err != nil {
		t.Fatalf("second UpsertHistory failed: %v", err)
	}
	entries, err := store.ListHistory(ctx)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(entries))
	}
	if entries[0].Category != "Breakfast" {
		t.Fatalf("expected most recent category Breakfast, got %q", entries[0].Category)
	}
}

func TestRenameHistory(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.UpsertHistory(ctx, HistoryEntry{Name: "Milk", Category: "Dairy"}); err != nil {
		t.Fatalf("UpsertHistory failed: %v", err)
	}
	if err := store.UpsertHistory(ctx, HistoryEntry{Name: "Bread", Category: "Bakery"}); err != nil {
		t.Fatalf("UpsertHistory failed: %v", err)
	}

	if _, err := store.RenameHistory(ctx, "Cheese", "Gouda", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown name, got %v", err)
	}
	if _, err := store.RenameHistory(ctx, "Milk", "Bread", "Bakery"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for taken name, got %v", err)
	}

	entry, err := store.RenameHistory(ctx, "Milk", "Oat Milk", "Alternatives")
	if err != nil {
		t.Fatalf("RenameHistory failed: %v", err)
	}
	if entry.Name != "Oat Milk" || entry.Category != "Alternatives" {
		t.Fatalf("unexpected renamed entry: %+v", entry)
	}
	entries, err := store.ListHistory(ctx)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after rename, got %d", len(entries))
	}
}

func TestCreateCategoryDuplicate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.CreateCategory(ctx, "Dairy", 0); err != nil {
		t.Fatalf("CreateCategory failed: %v", err)
	}
	if _, err := store.CreateCategory(ctx, "Dairy", 1); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestListCategoriesOrdering(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, c := range []struct {
		name  string
		order int
	}{
		{"Pantry", 2},
		{"Dairy", 1},
		{"Bakery", 1},
	} {
		if _, err := store.CreateCategory(ctx, c.name, c.order); err != nil {
			t.Fatalf("CreateCategory %s failed: %v", c.name, err)
		}
	}
	categories, err := store.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories failed: %v", err)
	}
	got := make([]string, len(categories))
	for i, category := range categories {
		got[i] = category.Name
	}
	want := []string{"Bakery", "Dairy", "Pantry"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestUpdateCategoryRenameCollision(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	dairy, err := store.CreateCategory(ctx, "Dairy", 0)
	if err != nil {
		t.Fatalf("CreateCategory failed: %v", err)
	}
	if _, err := store.CreateCategory(ctx, "Bakery", 1); err != nil {
		t.Fatalf("CreateCategory failed: %v", err)
	}
	taken := "Bakery"
	if _, err := store.UpdateCategory(ctx, dairy.ID, CategoryUpdate{Name: &taken}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	order := 5
	updated, err := store.UpdateCategory(ctx, dairy.ID, CategoryUpdate{Order: &order})
	if err != nil {
		t.Fatalf("UpdateCategory failed: %v", err)
	}
	if updated.Order != 5 || updated.Name != "Dairy" {
		t.Fatalf("unexpected category after update: %+v", updated)
	}
}

func TestMetaUnsetAndSet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.GetMeta(ctx, MetaKeyWeekStart); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unset key, got %v", err)
	}
	if err := store.SetMeta(ctx, MetaKeyWeekStart, json.RawMessage(`1700000000000`)); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}
	value, err := store.GetMeta(ctx, MetaKeyWeekStart)
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if string(value) != "1700000000000" {
		t.Fatalf("unexpected meta value %s", value)
	}
}

func TestUpsertSubscriptionByEndpoint(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sub := PushSubscription{
		Endpoint: "https://push.example.com/abc",
		Keys:     SubscriptionKeys{P256dh: "p", Auth: "a"},
	}
	if err := store.UpsertSubscription(ctx, sub); err != nil {
		t.Fatalf("UpsertSubscription failed: %v", err)
	}
	sub.Keys.Auth = "rotated"
	if err := store.UpsertSubscription(ctx, sub); err != nil {
		t.Fatalf("second UpsertSubscription failed: %v", err)
	}
	subs, err := store.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("ListSubscriptions failed: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(subs))
	}
	if subs[0].Keys.Auth != "rotated" {
		t.Fatalf("expected upsert to replace keys, got %+v", subs[0].Keys)
	}
	if subs[0].CreatedAt == 0 {
		t.Fatalf("expected CreatedAt to be stamped")
	}
	if err := store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
		t.Fatalf("DeleteSubscription failed: %v", err)
	}
	subs, err = store.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("ListSubscriptions failed: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected no subscriptions after delete, got %d", len(subs))
	}
}
