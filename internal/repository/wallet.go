package repository

import (
	"context"

	"github.com/avkuzmin/teleshop/internal/model"
)

// WalletRepository persists the append-only balance ledger.
type WalletRepository interface {
	// Append writes one ledger row within the tx that changed the balance.
	Append(ctx context.Context, tx Tx, wt *model.WalletTransaction) error

	// ListByUser pages a user's ledger, newest first; page is 1-based.
	ListByUser(ctx context.Context, userID int64, page, size int) ([]model.WalletTransaction, error)
}

// ReplenishmentRepository persists top-up lifecycle records.
type ReplenishmentRepository interface {
	// Create inserts a PROCESSING row and fills in its id.
	Create(ctx context.Context, r *model.Replenishment) error

	// Get loads a replenishment by id.
	Get(ctx context.Context, id int64) (*model.Replenishment, error)

	// GetForUpdate loads a replenishment under a row lock within the tx.
	GetForUpdate(ctx context.Context, tx Tx, id int64) (*model.Replenishment, error)

	// SetStatus performs the one-shot PROCESSING -> final transition in the tx.
	SetStatus(ctx context.Context, tx Tx, id int64, status model.ReplenishmentStatus) error

	// MarkError flips a PROCESSING row to ERROR outside any tx.
	MarkError(ctx context.Context, id int64) error

	// ExpireStale flips PROCESSING rows whose invoice expired to ERROR and
	// returns how many were swept.
	ExpireStale(ctx context.Context) (int64, error)
}

// ReferralRepository persists commission levels and accruals.
type ReferralRepository interface {
	// ListLevels returns all levels ordered ascending.
	ListLevels(ctx context.Context) ([]model.ReferralLevel, error)

	// LevelFor returns the highest level whose threshold is at most total,
	// or ErrNotFound if no level is reached.
	LevelFor(ctx context.Context, totalReplenished int64) (*model.ReferralLevel, error)

	// InsertAccrual records one commission within the tx that credited it.
	InsertAccrual(ctx context.Context, tx Tx, a *model.ReferralAccrual) error
}
