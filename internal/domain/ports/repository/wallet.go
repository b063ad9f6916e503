package repository

import (
	"context"

	"wallet-settlement/internal/domain/model"
)

type WalletRepository interface {
	FindByUser(ctx context.Context, tx Tx, userID string) (*model.Wallet, error)
	// CreditUpsert atomically increments the user's balance, creating the
	// wallet on first credit. Returns the wallet after the increment.
	CreditUpsert(ctx context.Context, tx Tx, userID string, amount int64) (*model.Wallet, error)
}

type WalletTransactionRepository interface {
	Insert(ctx context.Context, tx Tx, t *model.WalletTransaction) error
	// CountByPaymentID counts ledger entries whose meta references the given
	// payment. The double-credit guard calls this inside the same transaction
	// that flips the payment to success.
	CountByPaymentID(ctx context.Context, tx Tx, paymentID string) (int, error)
	ListByUser(ctx context.Context, tx Tx, userID string, offset, limit int) ([]*model.WalletTransaction, error)
	SumByUser(ctx context.Context, tx Tx, userID string) (int64, error)
}
