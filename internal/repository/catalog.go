package repository

import (
	"context"

	"github.com/avkuzmin/teleshop/internal/model"
)

// CatalogRepository persists the category tree and its translations.
type CatalogRepository interface {
	// Get loads a category by id.
	Get(ctx context.Context, id int64) (*model.Category, error)

	// GetForUpdate loads a category under a row lock within the tx.
	GetForUpdate(ctx context.Context, tx Tx, id int64) (*model.Category, error)

	// ListSiblings returns the children of parent (nil = roots) ordered by index.
	ListSiblings(ctx context.Context, parentID *int64) ([]model.Category, error)

	// HasChildren reports whether the node hosts subcategories.
	HasChildren(ctx context.Context, id int64) (bool, error)

	// MaxSiblingIndex returns the highest sibling ordinal under parent within
	// the tx, or -1 when parent has no children.
	MaxSiblingIndex(ctx context.Context, tx Tx, parentID *int64) (int, error)

	// Insert appends c as the last sibling and fills in its id and index.
	Insert(ctx context.Context, tx Tx, c *model.Category) error

	// ApplyUpdate writes the non-nil fields of upd to the row.
	ApplyUpdate(ctx context.Context, tx Tx, id int64, upd model.CategoryUpdate) error

	// ShiftIndexRange adds delta to the index of every sibling of parent whose
	// index lies in [from, to].
	ShiftIndexRange(ctx context.Context, tx Tx, parentID *int64, from, to, delta int) error

	// SetIndex moves a single node to the given sibling ordinal.
	SetIndex(ctx context.Context, tx Tx, id int64, index int) error

	// Delete removes the category row.
	Delete(ctx context.Context, tx Tx, id int64) error

	// AddTranslation inserts one localized row; duplicates map to ErrAlreadyExists.
	AddTranslation(ctx context.Context, tx Tx, tr *model.CategoryTranslation) error

	// UpdateTranslation rewrites name/description of one localized row.
	UpdateTranslation(ctx context.Context, tx Tx, tr *model.CategoryTranslation) error

	// DeleteTranslation removes one localized row.
	DeleteTranslation(ctx context.Context, tx Tx, categoryID int64, lang string) error

	// CountTranslations returns the number of localized rows within the tx.
	CountTranslations(ctx context.Context, tx Tx, categoryID int64) (int, error)

	// BestTranslation returns the exact-language row, else the first existing one.
	BestTranslation(ctx context.Context, categoryID int64, lang string) (*model.CategoryTranslation, error)

	// ListTranslations returns every localized row of a category.
	ListTranslations(ctx context.Context, categoryID int64) ([]model.CategoryTranslation, error)

	// HasSellableInVisibleSubtree reports whether the node or any descendant
	// reachable through show=true nodes is a storage with at least one item
	// for sale (or a reuse-product storage holding any item).
	HasSellableInVisibleSubtree(ctx context.Context, id int64) (bool, error)

	// AncestorIDs returns the ids of every ancestor of the node, nearest first.
	AncestorIDs(ctx context.Context, id int64) ([]int64, error)
}
