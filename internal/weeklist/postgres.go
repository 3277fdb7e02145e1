package weeklist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const postgresOperationTimeout = 5 * time.Second

const postgresSchema = `
CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	category TEXT NOT NULL DEFAULT '',
	quantity TEXT NOT NULL DEFAULT '1',
	created_at BIGINT NOT NULL,
	seq BIGSERIAL
);
CREATE TABLE IF NOT EXISTS history (
	name TEXT PRIMARY KEY,
	category TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	sort_order INT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS push_subscriptions (
	endpoint TEXT PRIMARY KEY,
	p256dh TEXT NOT NULL,
	auth TEXT NOT NULL,
	created_at BIGINT NOT NULL
)`

type sqlxOpenFunc func(driverName, dsn string) (*sqlx.DB, error)

// PostgresStore persists the list in Postgres. The connection is opened and
// the schema bootstrapped lazily on first use, once.
type PostgresStore struct {
	dsn    string
	openDB sqlxOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sqlx.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresStore{dsn: dsn, openDB: sqlx.Open}, nil
}

func (s *PostgresStore) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()
		if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

func (s *PostgresStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, postgresOperationTimeout)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *PostgresStore) ListItems(ctx context.Context) ([]Item, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	items := []Item{}
	err := s.db.SelectContext(ctx, &items,
		"SELECT id, name, completed, category, quantity, created_at FROM items ORDER BY created_at DESC, seq DESC")
	return items, err
}

func (s *PostgresStore) CreateItem(ctx context.Context, in NewItem) (Item, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Item{}, ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return Item{}, err
	}
	quantity := in.Quantity
	if quantity == "" {
		quantity = "1"
	}
	item := Item{
		ID:        uuid.NewString(),
		Name:      name,
		Category:  in.Category,
		Quantity:  quantity,
		CreatedAt: nowMillis(),
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO items (id, name, completed, category, quantity, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		item.ID, item.Name, item.Completed, item.Category, item.Quantity, item.CreatedAt)
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateItem(ctx context.Context, id string, upd ItemUpdate) (Item, error) {
	if err := s.ensureReady(); err != nil {
		return Item{}, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	var item Item
	err := s.db.QueryRowxContext(ctx, `
		UPDATE items SET
			name = COALESCE($2, name),
			completed = COALESCE($3, completed),
			category = COALESCE($4, category),
			quantity = COALESCE($5, quantity)
		WHERE id = $1
		RETURNING id, name, completed, category, quantity, created_at`,
		id, upd.Name, upd.Completed, upd.Category, upd.Quantity).StructScan(&item)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteItem(ctx context.Context, id string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = $1", id)
	return err
}

func (s *PostgresStore) DeleteAllItems(ctx context.Context) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, "DELETE FROM items")
	return err
}

func (s *PostgresStore) ListHistory(ctx context.Context) ([]HistoryEntry, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	entries := []HistoryEntry{}
	err := s.db.SelectContext(ctx, &entries, "SELECT name, category FROM history ORDER BY name ASC")
	return entries, err
}

func (s *PostgresStore) UpsertHistory(ctx context.Context, entry HistoryEntry) error {
	if strings.TrimSpace(entry.Name) == "" {
		return ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (name, category) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET category = EXCLUDED.category`,
		entry.Name, entry.Category)
	return err
}

func (s *PostgresStore) RenameHistory(ctx context.Context, name, newName, category string) (HistoryEntry, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return HistoryEntry{}, ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return HistoryEntry{}, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	result, err := s.db.ExecContext(ctx,
		"UPDATE history SET name = $2, category = $3 WHERE name = $1",
		name, newName, category)
	if isUniqueViolation(err) {
		return HistoryEntry{}, ErrDuplicate
	}
	if err != nil {
		return HistoryEntry{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return HistoryEntry{}, err
	}
	if affected == 0 {
		return HistoryEntry{}, ErrNotFound
	}
	return HistoryEntry{Name: newName, Category: category}, nil
}

func (s *PostgresStore) DeleteHistory(ctx context.Context, name string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, "DELETE FROM history WHERE name = $1", name)
	return err
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]Category, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	categories := []Category{}
	err := s.db.SelectContext(ctx, &categories,
		"SELECT id, name, sort_order FROM categories ORDER BY sort_order ASC, name ASC")
	return categories, err
}

func (s *PostgresStore) CreateCategory(ctx context.Context, name string, order int) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return Category{}, err
	}
	category := Category{ID: uuid.NewString(), Name: name, Order: order}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO categories (id, name, sort_order) VALUES ($1, $2, $3)",
		category.ID, category.Name, category.Order)
	if isUniqueViolation(err) {
		return Category{}, ErrDuplicate
	}
	if err != nil {
		return Category{}, err
	}
	return category, nil
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, id string, upd CategoryUpdate) (Category, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return Category{}, ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return Category{}, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	var category Category
	err := s.db.QueryRowxContext(ctx, `
		UPDATE categories SET
			name = COALESCE($2, name),
			sort_order = COALESCE($3, sort_order)
		WHERE id = $1
		RETURNING id, name, sort_order`,
		id, upd.Name, upd.Order).StructScan(&category)
	if errors.Is(err, sql.ErrNoRows) {
		return Category{}, ErrNotFound
	}
	if isUniqueViolation(err) {
		return Category{}, ErrDuplicate
	}
	if err != nil {
		return Category{}, err
	}
	return category, nil
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, id string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, "DELETE FROM categories WHERE id = $1", id)
	return err
}

func (s *PostgresStore) GetMeta(ctx context.Context, key string) (json.RawMessage, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = $1", key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(payload), nil
}

func (s *PostgresStore) SetMeta(ctx context.Context, key string, value json.RawMessage) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, string(value))
	return err
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context) ([]PushSubscription, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	rows, err := s.db.QueryxContext(ctx,
		"SELECT endpoint, p256dh, auth, created_at FROM push_subscriptions ORDER BY endpoint ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	subs := []PushSubscription{}
	for rows.Next() {
		var sub PushSubscription
		if err := rows.Scan(&sub.Endpoint, &sub.Keys.P256dh, &sub.Keys.Auth, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub PushSubscription) error {
	if strings.TrimSpace(sub.Endpoint) == "" {
		return ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	if sub.CreatedAt == 0 {
		sub.CreatedAt = nowMillis()
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (endpoint, p256dh, auth, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (endpoint) DO UPDATE SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth`,
		sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth, sub.CreatedAt)
	return err
}

func (s *PostgresStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, "DELETE FROM push_subscriptions WHERE endpoint = $1", endpoint)
	return err
}

func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
