package repository

import (
	"context"

	"github.com/avkuzmin/teleshop/internal/model"
)

// UserRepository provides access to shop customers and their balances.
type UserRepository interface {
	// Create inserts a new user row.
	Create(ctx context.Context, u *model.User) error

	// GetByID loads a user by chat id.
	GetByID(ctx context.Context, id int64) (*model.User, error)

	// GetByReferralCode resolves a referral token to its owner.
	GetByReferralCode(ctx context.Context, code string) (*model.User, error)

	// UpdateLanguage sets the user's interface language.
	UpdateLanguage(ctx context.Context, id int64, lang string) error

	// SetBlocked flips the block flag.
	SetBlocked(ctx context.Context, id int64, blocked bool) error

	// LockForUpdate locks the user row and returns the current state.
	LockForUpdate(ctx context.Context, tx Tx, id int64) (*model.User, error)

	// SetBalance writes a new balance for a row locked in the same tx.
	SetBalance(ctx context.Context, tx Tx, id int64, balance int64) error

	// AddTotalReplenished bumps the lifetime top-up counter within the tx.
	AddTotalReplenished(ctx context.Context, tx Tx, id int64, delta int64) error
}
