package repository

import (
	"context"

	"github.com/avkuzmin/teleshop/internal/model"
)

// PromoRepository persists promo codes and their activations.
type PromoRepository interface {
	// Create inserts a promo code and fills in its id.
	Create(ctx context.Context, p *model.PromoCode) error

	// GetByCode loads a promo by its case-sensitive activation code.
	GetByCode(ctx context.Context, code string) (*model.PromoCode, error)

	// GetForUpdate re-reads a promo under a row lock within the tx.
	GetForUpdate(ctx context.Context, tx Tx, id int64) (*model.PromoCode, error)

	// AlreadyActivated reports whether the user has an activation row.
	AlreadyActivated(ctx context.Context, promoID, userID int64) (bool, error)

	// RegisterActivation inserts the (promo, user) row and bumps the counter;
	// when the activation budget is exhausted the promo is invalidated. A
	// duplicate maps to errs.ErrPromoAlreadyActivated.
	RegisterActivation(ctx context.Context, tx Tx, promoID, userID int64) error

	// Invalidate flips is_valid off.
	Invalidate(ctx context.Context, id int64) error
}
