package weeklist

import "time"

// DefaultCategory is the bucket items fall into when no category is known.
// Storage keeps whatever string the caller supplied (including empty);
// normalization to this value happens in consumers, never in the store.
const DefaultCategory = "Uncategorized"

// MetaKeyWeekStart is the meta key holding the epoch-millisecond timestamp
// of the current list cycle's start.
const MetaKeyWeekStart = "weekStartDate"

// Item is one entry on the current week's shopping list.
type Item struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	Completed bool   `json:"completed" db:"completed"`
	Category  string `json:"category" db:"category"`
	Quantity  string `json:"quantity" db:"quantity"`
	CreatedAt int64  `json:"createdAt" db:"created_at"`
}

// NewItem carries the caller-supplied fields for item creation. The store
// assigns the id and creation timestamp and defaults Quantity to "1".
type NewItem struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Quantity string `json:"quantity"`
}

// ItemUpdate is a partial item update; nil fields are left unchanged.
type ItemUpdate struct {
	Name      *string `json:"name,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	Category  *string `json:"category,omitempty"`
	Quantity  *string `json:"quantity,omitempty"`
}

// HistoryEntry remembers an item name and the category it was most recently
// filed under, so re-added items auto-categorize.
type HistoryEntry struct {
	Name     string `json:"name" db:"name"`
	Category string `json:"category" db:"category"`
}

// Category is a user-managed grouping with a manual sort order.
type Category struct {
	ID    string `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Order int    `json:"order" db:"sort_order"`
}

// CategoryUpdate is a partial category update; nil fields are left unchanged.
type CategoryUpdate struct {
	Name  *string `json:"name,omitempty"`
	Order *int    `json:"order,omitempty"`
}

// SubscriptionKeys are the encryption keys a browser hands out with a push
// subscription.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is a stored Web Push endpoint. Subscriptions are keyed by
// endpoint and pruned when the push provider reports the endpoint gone.
type PushSubscription struct {
	Endpoint  string           `json:"endpoint" db:"endpoint"`
	Keys      SubscriptionKeys `json:"keys"`
	CreatedAt int64            `json:"createdAt,omitempty" db:"created_at"`
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
