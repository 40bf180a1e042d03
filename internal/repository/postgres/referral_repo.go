package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// ReferralRepo implements ReferralRepository using PostgreSQL.
type ReferralRepo struct{ db *DB }

// NewReferralRepo constructs a referral repository.
func NewReferralRepo(db *DB) *ReferralRepo { return &ReferralRepo{db: db} }

// ListLevels returns all levels ordered ascending.
func (r *ReferralRepo) ListLevels(ctx context.Context) ([]model.ReferralLevel, error) {
	const q = `SELECT level, amount_of_achievement, percent FROM referral_levels ORDER BY level`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ReferralLevel
	for rows.Next() {
		var l model.ReferralLevel
		if err := rows.Scan(&l.Level, &l.AmountOfAchievement, &l.Percent); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LevelFor returns the highest level whose threshold is at most total.
func (r *ReferralRepo) LevelFor(ctx context.Context, totalReplenished int64) (*model.ReferralLevel, error) {
	const q = `
SELECT level, amount_of_achievement, percent
FROM referral_levels
WHERE amount_of_achievement <= $1
ORDER BY level DESC
LIMIT 1`
	var l model.ReferralLevel
	err := r.db.Pool.QueryRow(ctx, q, totalReplenished).Scan(&l.Level, &l.AmountOfAchievement, &l.Percent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

// InsertAccrual records one commission within the tx that credited it.
func (r *ReferralRepo) InsertAccrual(ctx context.Context, tx repository.Tx, a *model.ReferralAccrual) error {
	const q = `
INSERT INTO referral_accruals (child_id, parent_id, amount, level)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`
	return txq(tx).QueryRow(ctx, q, a.ChildID, a.ParentID, a.Amount, a.Level).Scan(&a.ID, &a.CreatedAt)
}
