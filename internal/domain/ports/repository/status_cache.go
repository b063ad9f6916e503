package repository

import (
	"context"

	"wallet-settlement/internal/domain/model"
)

// PaymentStatusCache is a best-effort cache of terminal payment statuses
// keyed by provider reference. It only ever serves the lock-free fast path
// of reconciliation; correctness never depends on it. The payments row in
// the database remains the single durable source of truth.
type PaymentStatusCache interface {
	GetTerminal(ctx context.Context, provider, providerRef string) (model.PaymentStatus, bool)
	SetTerminal(ctx context.Context, provider, providerRef string, status model.PaymentStatus)
}
