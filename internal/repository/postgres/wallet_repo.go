package postgres

import (
	"context"

	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// WalletRepo implements WalletRepository using PostgreSQL.
type WalletRepo struct{ db *DB }

// NewWalletRepo constructs a wallet ledger repository.
func NewWalletRepo(db *DB) *WalletRepo { return &WalletRepo{db: db} }

// Append writes one ledger row within the tx that changed the balance.
func (r *WalletRepo) Append(ctx context.Context, tx repository.Tx, wt *model.WalletTransaction) error {
	const q = `
INSERT INTO wallet_transactions (user_id, kind, amount, balance_before, balance_after, ref_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`
	return txq(tx).QueryRow(ctx, q, wt.UserID, string(wt.Kind), wt.Amount,
		wt.BalanceBefore, wt.BalanceAfter, wt.RefID).Scan(&wt.ID, &wt.CreatedAt)
}

// ListByUser pages a user's ledger, newest first; page is 1-based.
func (r *WalletRepo) ListByUser(ctx context.Context, userID int64, page, size int) ([]model.WalletTransaction, error) {
	const q = `
SELECT id, user_id, kind, amount, balance_before, balance_after, ref_id, created_at
FROM wallet_transactions
WHERE user_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, q, userID, size, (page-1)*size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WalletTransaction
	for rows.Next() {
		var wt model.WalletTransaction
		var kind string
		if err := rows.Scan(&wt.ID, &wt.UserID, &kind, &wt.Amount, &wt.BalanceBefore,
			&wt.BalanceAfter, &wt.RefID, &wt.CreatedAt); err != nil {
			return nil, err
		}
		wt.Kind = model.TxKind(kind)
		out = append(out, wt)
	}
	return out, rows.Err()
}
