package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// PromoRepo implements PromoRepository using PostgreSQL.
type PromoRepo struct{ db *DB }

// NewPromoRepo constructs a promo repository.
func NewPromoRepo(db *DB) *PromoRepo { return &PromoRepo{db: db} }

const promoColumns = `id, activation_code, amount, discount_percentage, min_order_amount, number_of_activations, activated_counter, is_valid, valid_until`

func scanPromo(row pgx.Row) (*model.PromoCode, error) {
	var p model.PromoCode
	err := row.Scan(&p.ID, &p.ActivationCode, &p.Amount, &p.DiscountPercentage, &p.MinOrderAmount,
		&p.NumberOfActivations, &p.ActivatedCounter, &p.IsValid, &p.ValidUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a promo code and fills in its id.
func (r *PromoRepo) Create(ctx context.Context, p *model.PromoCode) error {
	const q = `
INSERT INTO promo_codes (activation_code, amount, discount_percentage, min_order_amount, number_of_activations, is_valid, valid_until)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	err := r.db.Pool.QueryRow(ctx, q, p.ActivationCode, p.Amount, p.DiscountPercentage,
		p.MinOrderAmount, p.NumberOfActivations, p.IsValid, p.ValidUntil).Scan(&p.ID)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByCode loads a promo by its case-sensitive activation code.
func (r *PromoRepo) GetByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	const q = `SELECT ` + promoColumns + ` FROM promo_codes WHERE activation_code=$1`
	return scanPromo(r.db.Pool.QueryRow(ctx, q, code))
}

// GetForUpdate re-reads a promo under a row lock within the tx.
func (r *PromoRepo) GetForUpdate(ctx context.Context, tx repository.Tx, id int64) (*model.PromoCode, error) {
	const q = `SELECT ` + promoColumns + ` FROM promo_codes WHERE id=$1 FOR UPDATE`
	return scanPromo(txq(tx).QueryRow(ctx, q, id))
}

// AlreadyActivated reports whether the user has an activation row.
func (r *PromoRepo) AlreadyActivated(ctx context.Context, promoID, userID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM promo_activations WHERE promo_code_id=$1 AND user_id=$2)`
	var exists bool
	if err := r.db.Pool.QueryRow(ctx, q, promoID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// RegisterActivation inserts the (promo, user) row and bumps the counter.
// The primary key on promo_activations is the final backstop against a
// concurrent double activation.
func (r *PromoRepo) RegisterActivation(ctx context.Context, tx repository.Tx, promoID, userID int64) error {
	q := txq(tx)
	const ins = `INSERT INTO promo_activations (promo_code_id, user_id) VALUES ($1, $2)`
	if _, err := q.Exec(ctx, ins, promoID, userID); err != nil {
		if isUniqueViolation(err) {
			return errs.ErrPromoAlreadyActivated
		}
		return err
	}
	const bump = `
UPDATE promo_codes
SET activated_counter = activated_counter + 1,
    is_valid = CASE
        WHEN number_of_activations > 0 AND activated_counter + 1 >= number_of_activations THEN false
        ELSE is_valid
    END
WHERE id=$1`
	tag, err := q.Exec(ctx, bump, promoID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Invalidate flips is_valid off.
func (r *PromoRepo) Invalidate(ctx context.Context, id int64) error {
	const q = `UPDATE promo_codes SET is_valid=false WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
