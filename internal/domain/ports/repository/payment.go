package repository

import (
	"context"
	"time"

	"wallet-settlement/internal/domain/model"
)

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	// FindByProviderRef locates the payment correlated to a gateway's own
	// record. Inside a transaction the row is locked FOR UPDATE.
	FindByProviderRef(ctx context.Context, tx Tx, provider, providerRef string) (*model.Payment, error)
	ListByUser(ctx context.Context, tx Tx, userID string, offset, limit int) ([]*model.Payment, error)

	// ClaimProcessing atomically moves a payment from pending to processing.
	// Returns false when another reconciliation attempt already holds the row.
	ClaimProcessing(ctx context.Context, tx Tx, id string) (bool, error)
	// ReleaseProcessing undoes a processing claim when the provider still
	// reports pending, so a later attempt is not stuck behind a stale marker.
	ReleaseProcessing(ctx context.Context, tx Tx, id string) error
	MarkSuccess(ctx context.Context, tx Tx, id string, coinsGranted int64, meta map[string]interface{}, at time.Time) error
	MarkFailed(ctx context.Context, tx Tx, id string, meta map[string]interface{}, at time.Time) error

	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
}
