package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"wallet-settlement/internal/domain"
	"wallet-settlement/internal/domain/model"
	"wallet-settlement/internal/domain/ports/repository"
)

var (
	_ repository.WalletRepository            = (*walletRepo)(nil)
	_ repository.WalletTransactionRepository = (*walletTransactionRepo)(nil)
)

type walletRepo struct{ pool *pgxpool.Pool }

func NewWalletRepo(pool *pgxpool.Pool) *walletRepo {
	return &walletRepo{pool: pool}
}

func (r *walletRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Wallet, error) {
	q := `SELECT id, user_id, balance, created_at, updated_at FROM wallets WHERE user_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", userID)
	if err != nil {
		return nil, err
	}
	return scanWallet(row)
}

// CreditUpsert creates the wallet on first credit. The addition happens in
// SQL so concurrent credits to the same wallet serialize on the row lock.
func (r *walletRepo) CreditUpsert(ctx context.Context, tx repository.Tx, userID string, amount int64) (*model.Wallet, error) {
	const q = `
INSERT INTO wallets (user_id, balance, created_at, updated_at)
VALUES ($1, $2, NOW(), NOW())
ON CONFLICT (user_id) DO UPDATE SET
  balance = wallets.balance + EXCLUDED.balance,
  updated_at = NOW()
RETURNING id, user_id, balance, created_at, updated_at;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, amount)
	if err != nil {
		return nil, err
	}
	return scanWallet(row)
}

func scanWallet(row pgx.Row) (*model.Wallet, error) {
	w := &model.Wallet{}
	if err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return w, nil
}

type walletTransactionRepo struct{ pool *pgxpool.Pool }

func NewWalletTransactionRepo(pool *pgxpool.Pool) *walletTransactionRepo {
	return &walletTransactionRepo{pool: pool}
}

const walletTxColumns = `id, wallet_id, user_id, amount, type, source, description, meta, created_at`

func (r *walletTransactionRepo) Insert(ctx context.Context, tx repository.Tx, wt *model.WalletTransaction) error {
	const q = `
INSERT INTO wallet_transactions (id, wallet_id, user_id, amount, type, source, description, meta, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	_, err := execSQL(ctx, r.pool, tx, q, wt.ID, wt.WalletID, wt.UserID, wt.Amount, wt.Type, wt.Source, wt.Description, wt.Meta, wt.CreatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// CountByPaymentID is the double-credit guard. It must be called inside the
// same transaction that inserts the ledger entry.
func (r *walletTransactionRepo) CountByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (int, error) {
	const q = `SELECT COUNT(*) FROM wallet_transactions WHERE meta->>'payment_id' = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, paymentID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *walletTransactionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.WalletTransaction, error) {
	const q = `SELECT ` + walletTxColumns + ` FROM wallet_transactions WHERE user_id=$1 ORDER BY created_at DESC OFFSET $2 LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.WalletTransaction
	for rows.Next() {
		wt := &model.WalletTransaction{}
		if err := rows.Scan(&wt.ID, &wt.WalletID, &wt.UserID, &wt.Amount, &wt.Type, &wt.Source, &wt.Description, &wt.Meta, &wt.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, wt)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *walletTransactionRepo) SumByUser(ctx context.Context, tx repository.Tx, userID string) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions WHERE user_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}
