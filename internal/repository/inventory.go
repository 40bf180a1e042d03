package repository

import (
	"context"

	"github.com/avkuzmin/teleshop/internal/model"
)

// AccountRepository persists credentialed inventory and its sale lifecycle.
type AccountRepository interface {
	// ExistsActive reports whether a phone number (or external id when the
	// phone is empty) is already present in the FOR_SALE/BOUGHT set for the
	// service type.
	ExistsActive(ctx context.Context, serviceType, phoneNumber string, externalID *string) (bool, error)

	// InsertForSale inserts a storage row as FOR_SALE and links it to the
	// category within the tx; returns the storage id.
	InsertForSale(ctx context.Context, tx Tx, categoryID int64, rec *model.AccountRecord) (int64, error)

	// CountForSale returns the number of sellable items in a category.
	CountForSale(ctx context.Context, categoryID int64) (int64, error)

	// CountForSaleTx is CountForSale inside an open tx (fresh read).
	CountForSaleTx(ctx context.Context, tx Tx, categoryID int64) (int64, error)

	// ListForSale returns sellable storage rows of a category ordered by id.
	ListForSale(ctx context.Context, categoryID int64) ([]model.AccountStorage, error)

	// ClaimForSale locks and returns up to qty FOR_SALE items of the category
	// in ascending storage id order. When reuse is false the items transition
	// to BOUGHT and their product rows are removed; when reuse is true the
	// rows are left untouched.
	ClaimForSale(ctx context.Context, tx Tx, categoryID int64, qty int, reuse bool) ([]model.AccountStorage, error)

	// InsertSold records a completed sale with its translation snapshot.
	InsertSold(ctx context.Context, tx Tx, storageID, ownerID int64, trs []model.CategoryTranslation) (int64, error)

	// MarkInvalid clears is_valid/is_active on a storage row within the tx.
	MarkInvalid(ctx context.Context, tx Tx, storageID int64) error

	// SetValidity updates the validity flags and check timestamp.
	SetValidity(ctx context.Context, storageID int64, valid bool) error

	// ListSoldByOwner pages a user's purchases, newest first; page is 1-based.
	ListSoldByOwner(ctx context.Context, ownerID int64, lang string, page, size int) ([]model.SoldAccount, error)

	// CountSoldByOwner returns the user's total purchase count.
	CountSoldByOwner(ctx context.Context, ownerID int64) (int64, error)

	// GetSold loads one sold item with its best-matching translation.
	GetSold(ctx context.Context, soldID int64, lang string) (*model.SoldAccount, error)

	// DeleteSold moves a BOUGHT item to DELETED preserving the storage row and
	// the denormalized category name/description.
	DeleteSold(ctx context.Context, soldID int64) error

	// PurgeCategory hard-removes every FOR_SALE item of a storage category;
	// returns the removed file paths so the caller can unlink blobs.
	PurgeCategory(ctx context.Context, categoryID int64) ([]string, error)
}

// UniversalRepository persists media inventory and its sale lifecycle.
type UniversalRepository interface {
	// InsertForSale inserts a storage row with its translations and links it
	// to the category within the tx; returns the storage id.
	InsertForSale(ctx context.Context, tx Tx, categoryID int64, rec *model.UniversalRecord) (int64, error)

	// CountForSale returns the number of sellable items in a category.
	CountForSale(ctx context.Context, categoryID int64) (int64, error)

	// CountForSaleTx is CountForSale inside an open tx (fresh read).
	CountForSaleTx(ctx context.Context, tx Tx, categoryID int64) (int64, error)

	// ClaimForSale locks and returns up to qty items in ascending storage id
	// order, removing product rows unless reuse is true.
	ClaimForSale(ctx context.Context, tx Tx, categoryID int64, qty int, reuse bool) ([]model.UniversalStorage, error)

	// InsertSold records a completed sale.
	InsertSold(ctx context.Context, tx Tx, storageID, ownerID int64) (int64, error)

	// ListSoldByOwner pages a user's purchases, newest first; page is 1-based.
	ListSoldByOwner(ctx context.Context, ownerID int64, page, size int) ([]model.SoldUniversal, error)

	// CountSoldByOwner returns the user's total purchase count.
	CountSoldByOwner(ctx context.Context, ownerID int64) (int64, error)

	// GetSold loads one sold item.
	GetSold(ctx context.Context, soldID int64) (*model.SoldUniversal, error)

	// GetStorage loads a storage row for re-delivery.
	GetStorage(ctx context.Context, storageID int64) (*model.UniversalStorage, error)

	// PurgeCategory hard-removes every FOR_SALE item of a storage category.
	PurgeCategory(ctx context.Context, categoryID int64) ([]string, error)
}
