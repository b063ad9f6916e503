package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"    // created at initiation; awaiting provider confirmation
	PaymentStatusProcessing PaymentStatus = "processing" // a reconciliation attempt holds the row
	PaymentStatusSuccess    PaymentStatus = "success"    // verified OK; wallet credited
	PaymentStatusFailed     PaymentStatus = "failed"     // provider reported a definitive failure
)

// Terminal reports whether a status can never change again.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed
}

// Payment records one attempt to pay for coins or a subscription.
type Payment struct {
	ID          string // UUID
	UserID      string // UUID (internal user id)
	Provider    string // e.g. "paystack", "flutterwave"
	ProviderRef string // opaque reference assigned by the gateway; unique per provider
	AmountMinor int64  // integer minor units (cents/kobo), to avoid float errors
	Currency    string // ISO code, e.g. "USD", "NGN"
	Status      PaymentStatus
	// CoinsGranted is set exactly once, when the payment reaches success.
	CoinsGranted *int64
	// SubscriptionID links a subscription purchase to its pending subscription.
	// Nil for one-time coin purchases.
	SubscriptionID *string
	Meta           map[string]interface{} // request context + provider response snapshots (JSONB)
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsSubscription reports whether this payment purchases a subscription
// rather than a one-time coin top-up.
func (p *Payment) IsSubscription() bool {
	return p.SubscriptionID != nil && *p.SubscriptionID != ""
}
