package model

import "time"

// Wallet holds a user's coin balance. One wallet per user, created lazily
// on first credit. The balance is only ever mutated by atomic increments
// paired with a WalletTransaction, never overwritten.
type Wallet struct {
	ID        string // UUID
	UserID    string // UUID, unique
	Balance   int64  // non-negative coin count
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
)

type TransactionSource string

const (
	SourceOneTimePurchase TransactionSource = "one_time_purchase"
	SourceSubscription    TransactionSource = "subscription"
)

// WalletTransaction is an immutable ledger entry. For a given payment id at
// most one transaction may exist; that check is what prevents double-crediting.
type WalletTransaction struct {
	ID          string // ULID, lexically time-sortable
	WalletID    string
	UserID      string
	Amount      int64 // signed; this core only writes positive credit entries
	Type        TransactionType
	Source      TransactionSource
	Description string
	// Meta carries payment_id, idempotency_key (providerRef), provider and
	// processed_at so the balance is reconstructible from the log alone.
	Meta      map[string]interface{}
	CreatedAt time.Time
}
