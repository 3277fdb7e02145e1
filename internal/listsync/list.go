package listsync

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/weeklist/weeklist/internal/weeklist"
)

// ErrNotLoaded is returned by mutations attempted before the first Refresh
// has completed.
var ErrNotLoaded = errors.New("list not loaded")

// Options configures a List.
type Options struct {
	Logger *zap.Logger
	// StrictSync surfaces failures from the common add/toggle/delete flows
	// instead of logging them and keeping the optimistic local state. The
	// default (false) matches the tolerance for transient inconsistency the
	// application is designed around: local state stands until the next
	// Refresh reconciles it.
	StrictSync bool
}

// List is the single source of truth for a shopping-list client. It mirrors
// items, history, categories, and the week-start date from the server and
// applies mutations optimistically.
//
// The list has two externally visible states, loading and loaded. Mutations
// are only valid once loaded; Refresh is the only operation that transitions
// back to loading. Operations serialize on an internal mutex, so the hook is
// safe to share between goroutines but processes one intent at a time.
type List struct {
	remote Remote
	logger *zap.Logger
	strict bool

	mu         sync.Mutex
	items      []weeklist.Item
	history    []weeklist.HistoryEntry
	categories []weeklist.Category
	weekStart  int64
	loaded     bool
}

func New(remote Remote, opts Options) *List {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &List{
		remote: remote,
		logger: logger,
		strict: opts.StrictSync,
	}
}

// Refresh fetches items, history, categories, and the week-start date
// concurrently and replaces all in-memory state. The list reads as
// not-loaded for the duration. Fetch failures are logged and whatever
// arrived is kept; there is no retry beyond the client's own.
func (l *List) Refresh(ctx context.Context) error {
	l.mu.Lock()
	l.loaded = false
	l.mu.Unlock()

	var (
		items      []weeklist.Item
		history    []weeklist.HistoryEntry
		categories []weeklist.Category
		weekStart  int64
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		items, err = l.remote.ListItems(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = l.remote.ListHistory(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = l.remote.ListCategories(ctx)
		return err
	})
	g.Go(func() error {
		raw, err := l.remote.GetMeta(ctx, weeklist.MetaKeyWeekStart)
		if err != nil {
			return err
		}
		weekStart = parseEpochMillis(raw)
		return nil
	})
	err := g.Wait()

	if weekStart == 0 {
		// No reset has happened yet; treat now as the cycle start.
		weekStart = time.Now().UnixMilli()
	}
	l.mu.Lock()
	l.items = items
	l.history = history
	l.categories = categories
	l.weekStart = weekStart
	l.loaded = true
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn("refresh incomplete, keeping partial state", zap.Error(err))
	}
	return err
}

// AddItem adds a (trimmed) item by name. A completed item with the same
// name, compared case-insensitively, is reactivated instead of duplicated;
// an active one makes this a no-op. The category comes from history when the
// name is known, otherwise "Uncategorized", and unknown names are persisted
// to history for next time.
func (l *List) AddItem(ctx context.Context, name string) (weeklist.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return weeklist.Item{}, ErrNotLoaded
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return weeklist.Item{}, weeklist.ErrInvalidInput
	}
	lower := strings.ToLower(name)

	for i, item := range l.items {
		if strings.ToLower(item.Name) != lower {
			continue
		}
		if !item.Completed {
			return item, nil
		}
		l.items[i].Completed = false
		completed := false
		_, err := l.remote.UpdateItem(ctx, item.ID, weeklist.ItemUpdate{Completed: &completed})
		return l.items[i], l.syncFailure("reactivate item", err)
	}

	category := weeklist.DefaultCategory
	known := false
	for _, entry := range l.history {
		if strings.ToLower(entry.Name) == lower {
			known = true
			if entry.Category != "" {
				category = entry.Category
			}
			break
		}
	}

	item, err := l.remote.CreateItem(ctx, weeklist.NewItem{
		Name:     name,
		Category: category,
		Quantity: "1",
	})
	if err != nil {
		return weeklist.Item{}, err
	}
	l.items = append([]weeklist.Item{item}, l.items...)

	if !known {
		entry := weeklist.HistoryEntry{Name: name, Category: category}
		if err := l.remote.UpsertHistory(ctx, entry); err != nil {
			if failErr := l.syncFailure("save history", err); failErr != nil {
				return item, failErr
			}
		} else {
			l.history = append(l.history, entry)
		}
	}
	return item, nil
}

// ToggleItem flips an item's completed flag locally first, then mirrors the
// change to the server. There is no rollback on failure.
func (l *List) ToggleItem(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return ErrNotLoaded
	}
	for i, item := range l.items {
		if item.ID != id {
			continue
		}
		l.items[i].Completed = !item.Completed
		completed := l.items[i].Completed
		_, err := l.remote.UpdateItem(ctx, id, weeklist.ItemUpdate{Completed: &completed})
		return l.syncFailure("toggle item", err)
	}
	return weeklist.ErrNotFound
}

// DeleteItem removes an item locally first, then issues the delete.
func (l *List) DeleteItem(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return ErrNotLoaded
	}
	kept := l.items[:0]
	for _, item := range l.items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	l.items = kept
	return l.syncFailure("delete item", l.remote.DeleteItem(ctx, id))
}

// UpdateItem optimistically applies a partial update. When the category
// changes, the history entry for the item's name is upserted as well so
// future additions auto-categorize.
func (l *List) UpdateItem(ctx context.Context, id string, upd weeklist.ItemUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return ErrNotLoaded
	}
	for i, item := range l.items {
		if item.ID != id {
			continue
		}
		if upd.Name != nil {
			l.items[i].Name = *upd.Name
		}
		if upd.Completed != nil {
			l.items[i].Completed = *upd.Completed
		}
		if upd.Category != nil {
			l.items[i].Category = *upd.Category
		}
		if upd.Quantity != nil {
			l.items[i].Quantity = *upd.Quantity
		}
		_, err := l.remote.UpdateItem(ctx, id, upd)
		if upd.Category != nil {
			entry := weeklist.HistoryEntry{Name: l.items[i].Name, Category: *upd.Category}
			histErr := l.remote.UpsertHistory(ctx, entry)
			if histErr == nil {
				l.upsertHistoryLocal(entry)
			}
			err = errors.Join(err, histErr)
		}
		return l.syncFailure("update item", err)
	}
	return weeklist.ErrNotFound
}

// UpdateCategory re-files an item under a new category.
func (l *List) UpdateCategory(ctx context.Context, id, category string) error {
	return l.UpdateItem(ctx, id, weeklist.ItemUpdate{Category: &category})
}

// ClearCompleted removes all completed items locally, then deletes each on
// the server concurrently. A failed individual delete leaves local and
// remote state diverged until the next Refresh.
func (l *List) ClearCompleted(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return ErrNotLoaded
	}
	var completedIDs []string
	kept := l.items[:0]
	for _, item := range l.items {
		if item.Completed {
			completedIDs = append(completedIDs, item.ID)
		} else {
			kept = append(kept, item)
		}
	}
	l.items = kept

	var g errgroup.Group
	for _, id := range completedIDs {
		id := id
		g.Go(func() error {
			return l.remote.DeleteItem(ctx, id)
		})
	}
	return l.syncFailure("clear completed", g.Wait())
}

// ResetList starts a new week: all items are cleared and the week-start
// timestamp advances. Both halves are always attempted and any failure is
// surfaced, so one half never silently applies without the other being
// reported. Confirmation is the caller's responsibility.
func (l *List) ResetList(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return ErrNotLoaded
	}
	clearErr := l.remote.ClearItems(ctx)
	if clearErr == nil {
		l.items = nil
	}
	newStart := time.Now().UnixMilli()
	value, _ := json.Marshal(newStart)
	metaErr := l.remote.SetMeta(ctx, weeklist.MetaKeyWeekStart, value)
	if metaErr == nil {
		l.weekStart = newStart
	}
	return errors.Join(clearErr, metaErr)
}

// AddCategory creates a category and appends it locally.
func (l *List) AddCategory(ctx context.Context, name string, order int) (weeklist.Category, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return weeklist.Category{}, ErrNotLoaded
	}
	category, err := l.remote.CreateCategory(ctx, name, order)
	if err != nil {
		return weeklist.Category{}, err
	}
	l.categories = append(l.categories, category)
	return category, nil
}

// DeleteCategory removes a category locally and on the server. Items
// referencing the deleted category keep the orphaned name string. Failures
// are surfaced; local state may desync until the next Refresh.
func (l *List) DeleteCategory(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return ErrNotLoaded
	}
	kept := l.categories[:0]
	for _, category := range l.categories {
		if category.ID != id {
			kept = append(kept, category)
		}
	}
	l.categories = kept
	return l.remote.DeleteCategory(ctx, id)
}

// AddHistoryItem upserts a history entry directly (items-manager view).
func (l *List) AddHistoryItem(ctx context.Context, name, category string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return ErrNotLoaded
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return weeklist.ErrInvalidInput
	}
	entry := weeklist.HistoryEntry{Name: name, Category: category}
	l.upsertHistoryLocal(entry)
	return l.remote.UpsertHistory(ctx, entry)
}

// DeleteHistoryItem forgets a learned name. Failures are surfaced.
func (l *List) DeleteHistoryItem(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return ErrNotLoaded
	}
	kept := l.history[:0]
	for _, entry := range l.history {
		if entry.Name != name {
			kept = append(kept, entry)
		}
	}
	l.history = kept
	return l.remote.DeleteHistory(ctx, name)
}

// RenameHistoryItem renames a history entry and updates its learned
// category.
func (l *List) RenameHistoryItem(ctx context.Context, name, newName, category string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return ErrNotLoaded
	}
	for i, entry := range l.history {
		if entry.Name == name {
			l.history[i] = weeklist.HistoryEntry{Name: newName, Category: category}
			break
		}
	}
	_, err := l.remote.RenameHistory(ctx, name, newName, category)
	return err
}

// Items returns a copy of the current list, newest first.
func (l *List) Items() []weeklist.Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]weeklist.Item, len(l.items))
	copy(out, l.items)
	return out
}

// History returns a copy of the learned name/category entries.
func (l *List) History() []weeklist.HistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]weeklist.HistoryEntry, len(l.history))
	copy(out, l.history)
	return out
}

// Categories returns a copy of the user-managed categories.
func (l *List) Categories() []weeklist.Category {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]weeklist.Category, len(l.categories))
	copy(out, l.categories)
	return out
}

// WeekStart returns the epoch-millisecond start of the current cycle.
func (l *List) WeekStart() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.weekStart
}

// Loaded reports whether the initial (or latest) Refresh has completed.
func (l *List) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// syncFailure implements the fire-and-forget policy for the common flows:
// log and keep the optimistic local state, unless StrictSync is set.
func (l *List) syncFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if l.strict {
		return err
	}
	l.logger.Warn("sync failed, local state kept until next refresh",
		zap.String("op", op), zap.Error(err))
	return nil
}

// upsertHistoryLocal mirrors the server's exact-name upsert semantics.
func (l *List) upsertHistoryLocal(entry weeklist.HistoryEntry) {
	for i, existing := range l.history {
		if existing.Name == entry.Name {
			l.history[i] = entry
			return
		}
	}
	l.history = append(l.history, entry)
}

func parseEpochMillis(raw json.RawMessage) int64 {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var millis int64
	if err := json.Unmarshal(raw, &millis); err != nil {
		return 0
	}
	return millis
}
