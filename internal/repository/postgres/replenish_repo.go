package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// ReplenishRepo implements ReplenishmentRepository using PostgreSQL.
type ReplenishRepo struct{ db *DB }

// NewReplenishRepo constructs a replenishment repository.
func NewReplenishRepo(db *DB) *ReplenishRepo { return &ReplenishRepo{db: db} }

const replenishColumns = `id, user_id, payment_system_id, origin_amount, amount, status, invoice_url, expires_at, created_at`

func scanReplenishment(row pgx.Row) (*model.Replenishment, error) {
	var rp model.Replenishment
	var status string
	err := row.Scan(&rp.ID, &rp.UserID, &rp.PaymentSystemID, &rp.OriginAmount, &rp.Amount,
		&status, &rp.InvoiceURL, &rp.ExpiresAt, &rp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	rp.Status = model.ReplenishmentStatus(status)
	return &rp, nil
}

// Create inserts a PROCESSING row and fills in its id.
func (r *ReplenishRepo) Create(ctx context.Context, rp *model.Replenishment) error {
	const q = `
INSERT INTO replenishments (user_id, payment_system_id, origin_amount, amount, status, invoice_url, expires_at)
VALUES ($1, $2, $3, $4, 'PROCESSING', $5, $6)
RETURNING id, created_at`
	return r.db.Pool.QueryRow(ctx, q, rp.UserID, rp.PaymentSystemID, rp.OriginAmount,
		rp.Amount, rp.InvoiceURL, rp.ExpiresAt).Scan(&rp.ID, &rp.CreatedAt)
}

// Get loads a replenishment by id.
func (r *ReplenishRepo) Get(ctx context.Context, id int64) (*model.Replenishment, error) {
	const q = `SELECT ` + replenishColumns + ` FROM replenishments WHERE id=$1`
	return scanReplenishment(r.db.Pool.QueryRow(ctx, q, id))
}

// GetForUpdate loads a replenishment under a row lock within the tx.
func (r *ReplenishRepo) GetForUpdate(ctx context.Context, tx repository.Tx, id int64) (*model.Replenishment, error) {
	const q = `SELECT ` + replenishColumns + ` FROM replenishments WHERE id=$1 FOR UPDATE`
	return scanReplenishment(txq(tx).QueryRow(ctx, q, id))
}

// SetStatus performs the one-shot PROCESSING -> final transition in the tx.
func (r *ReplenishRepo) SetStatus(ctx context.Context, tx repository.Tx, id int64, status model.ReplenishmentStatus) error {
	const q = `UPDATE replenishments SET status=$2 WHERE id=$1 AND status='PROCESSING'`
	tag, err := txq(tx).Exec(ctx, q, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// MarkError flips a PROCESSING row to ERROR outside any tx.
func (r *ReplenishRepo) MarkError(ctx context.Context, id int64) error {
	const q = `UPDATE replenishments SET status='ERROR' WHERE id=$1 AND status='PROCESSING'`
	_, err := r.db.Pool.Exec(ctx, q, id)
	return err
}

// ExpireStale flips PROCESSING rows whose invoice expired to ERROR.
func (r *ReplenishRepo) ExpireStale(ctx context.Context) (int64, error) {
	const q = `UPDATE replenishments SET status='ERROR' WHERE status='PROCESSING' AND expires_at IS NOT NULL AND expires_at < now()`
	tag, err := r.db.Pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
