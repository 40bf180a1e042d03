package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `user_id, username, language, balance, total_replenished, is_blocked, referrer_id, referral_code, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Language, &u.Balance, &u.TotalReplenished,
		&u.IsBlocked, &u.ReferrerID, &u.ReferralCode, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (user_id, username, language, balance, total_replenished, is_blocked, referrer_id, referral_code)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Pool.Exec(ctx, q, u.ID, u.Username, u.Language, u.Balance,
		u.TotalReplenished, u.IsBlocked, u.ReferrerID, u.ReferralCode)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by chat id.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE user_id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByReferralCode resolves a referral token to its owner.
func (r *UserRepo) GetByReferralCode(ctx context.Context, code string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE referral_code=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, code))
}

// UpdateLanguage sets the user's interface language.
func (r *UserRepo) UpdateLanguage(ctx context.Context, id int64, lang string) error {
	const q = `UPDATE users SET language=$2 WHERE user_id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, lang)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetBlocked flips the block flag.
func (r *UserRepo) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	const q = `UPDATE users SET is_blocked=$2 WHERE user_id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, blocked)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// LockForUpdate locks the user row for the remainder of the tx.
func (r *UserRepo) LockForUpdate(ctx context.Context, tx repository.Tx, id int64) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE user_id=$1 FOR UPDATE`
	return scanUser(txq(tx).QueryRow(ctx, q, id))
}

// SetBalance writes a new balance for a row locked in the same tx.
func (r *UserRepo) SetBalance(ctx context.Context, tx repository.Tx, id int64, balance int64) error {
	const q = `UPDATE users SET balance=$2 WHERE user_id=$1`
	tag, err := txq(tx).Exec(ctx, q, id, balance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// AddTotalReplenished bumps the lifetime top-up counter within the tx.
func (r *UserRepo) AddTotalReplenished(ctx context.Context, tx repository.Tx, id int64, delta int64) error {
	const q = `UPDATE users SET total_replenished=total_replenished+$2 WHERE user_id=$1`
	tag, err := txq(tx).Exec(ctx, q, id, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
