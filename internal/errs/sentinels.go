// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUserBlocked indicates the acting user is blocked from purchases.
	ErrUserBlocked = errors.New("user blocked")
)

// Catalog sentinels.
var (
	// ErrCategoryIsStorage indicates an attempt to attach children to a storage node.
	ErrCategoryIsStorage = errors.New("category is a product storage")

	// ErrCategoryHasSubcategories indicates an operation that requires a leaf node.
	ErrCategoryHasSubcategories = errors.New("category has subcategories")

	// ErrCategoryNotStorage indicates the category does not hold inventory.
	ErrCategoryNotStorage = errors.New("category is not a product storage")

	// ErrCategoryStoresProduct indicates the storage category still owns items.
	ErrCategoryStoresProduct = errors.New("category stores product items")

	// ErrLastTranslation indicates deletion of the only remaining translation.
	ErrLastTranslation = errors.New("last translation cannot be deleted")

	// ErrKindMismatch indicates the inventory kind does not match the category.
	ErrKindMismatch = errors.New("product kind mismatch")
)

// Purchase/wallet sentinels.
var (
	// ErrNotEnoughInventory indicates the category cannot satisfy the requested quantity.
	ErrNotEnoughInventory = errors.New("not enough inventory")

	// ErrNotEnoughMoney is matched by NotEnoughMoneyError via Is.
	ErrNotEnoughMoney = errors.New("not enough money")

	// ErrPromoInvalid indicates the promo code is missing or not applicable.
	ErrPromoInvalid = errors.New("invalid promo code")

	// ErrPromoAlreadyActivated indicates a second activation by the same user.
	ErrPromoAlreadyActivated = errors.New("promo code already activated")

	// ErrPromoMinNotReached indicates the discounted total is below the promo minimum.
	ErrPromoMinNotReached = errors.New("promo minimum order amount not reached")
)

// NotEnoughMoneyError reports how much the balance falls short.
type NotEnoughMoneyError struct {
	Need int64
}

func (e *NotEnoughMoneyError) Error() string {
	return fmt.Sprintf("not enough money: need %d more", e.Need)
}

// Is makes the typed error match the ErrNotEnoughMoney sentinel.
func (e *NotEnoughMoneyError) Is(target error) bool { return target == ErrNotEnoughMoney }
