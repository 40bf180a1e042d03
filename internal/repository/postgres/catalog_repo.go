package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// CatalogRepo implements CatalogRepository using PostgreSQL.
type CatalogRepo struct{ db *DB }

// NewCatalogRepo constructs a catalog repository.
func NewCatalogRepo(db *DB) *CatalogRepo { return &CatalogRepo{db: db} }

const categoryColumns = `id, parent_id, idx, is_product_storage, COALESCE(product_kind,''), price, cost_price, reuse_product, allow_multiple_purchase, number_buttons_in_row, show, image_key`

func scanCategory(row pgx.Row) (*model.Category, error) {
	var c model.Category
	var kind string
	err := row.Scan(&c.ID, &c.ParentID, &c.Index, &c.IsProductStorage, &kind,
		&c.Price, &c.CostPrice, &c.ReuseProduct, &c.AllowMultiplePurchase,
		&c.NumberButtonsInRow, &c.Show, &c.ImageKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	c.ProductKind = model.ProductKind(kind)
	return &c, nil
}

// Get loads a category by id.
func (r *CatalogRepo) Get(ctx context.Context, id int64) (*model.Category, error) {
	const q = `SELECT ` + categoryColumns + ` FROM categories WHERE id=$1`
	return scanCategory(r.db.Pool.QueryRow(ctx, q, id))
}

// GetForUpdate loads a category under a row lock within the tx.
func (r *CatalogRepo) GetForUpdate(ctx context.Context, tx repository.Tx, id int64) (*model.Category, error) {
	const q = `SELECT ` + categoryColumns + ` FROM categories WHERE id=$1 FOR UPDATE`
	return scanCategory(txq(tx).QueryRow(ctx, q, id))
}

// ListSiblings returns the children of parent (nil = roots) ordered by index.
func (r *CatalogRepo) ListSiblings(ctx context.Context, parentID *int64) ([]model.Category, error) {
	const q = `SELECT ` + categoryColumns + ` FROM categories WHERE parent_id IS NOT DISTINCT FROM $1 ORDER BY idx`
	rows, err := r.db.Pool.Query(ctx, q, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// HasChildren reports whether the node hosts subcategories.
func (r *CatalogRepo) HasChildren(ctx context.Context, id int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM categories WHERE parent_id=$1)`
	var has bool
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&has); err != nil {
		return false, err
	}
	return has, nil
}

// MaxSiblingIndex returns the highest sibling ordinal under parent, -1 when none.
func (r *CatalogRepo) MaxSiblingIndex(ctx context.Context, tx repository.Tx, parentID *int64) (int, error) {
	const q = `SELECT COALESCE(MAX(idx), -1) FROM categories WHERE parent_id IS NOT DISTINCT FROM $1`
	var max int
	if err := txq(tx).QueryRow(ctx, q, parentID).Scan(&max); err != nil {
		return 0, err
	}
	return max, nil
}

// Insert appends c as the last sibling and fills in its id and index.
func (r *CatalogRepo) Insert(ctx context.Context, tx repository.Tx, c *model.Category) error {
	const q = `
INSERT INTO categories (parent_id, idx, is_product_storage, product_kind, price, cost_price,
                        reuse_product, allow_multiple_purchase, number_buttons_in_row, show, image_key)
VALUES ($1,
        (SELECT COALESCE(MAX(idx)+1, 0) FROM categories WHERE parent_id IS NOT DISTINCT FROM $1),
        $2, NULLIF($3,''), $4, $5, $6, $7, $8, $9, $10)
RETURNING id, idx`
	return txErrWrap(txq(tx).QueryRow(ctx, q, c.ParentID, c.IsProductStorage, string(c.ProductKind),
		c.Price, c.CostPrice, c.ReuseProduct, c.AllowMultiplePurchase,
		c.NumberButtonsInRow, c.Show, c.ImageKey).Scan(&c.ID, &c.Index))
}

// ApplyUpdate writes the non-nil fields of upd to the row.
func (r *CatalogRepo) ApplyUpdate(ctx context.Context, tx repository.Tx, id int64, upd model.CategoryUpdate) error {
	set := make([]string, 0, 8)
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if upd.IsProductStorage != nil {
		add("is_product_storage", *upd.IsProductStorage)
	}
	if upd.ProductKind != nil {
		add("product_kind", string(*upd.ProductKind))
	}
	if upd.Price != nil {
		add("price", *upd.Price)
	}
	if upd.CostPrice != nil {
		add("cost_price", *upd.CostPrice)
	}
	if upd.ReuseProduct != nil {
		add("reuse_product", *upd.ReuseProduct)
	}
	if upd.AllowMultiplePurchase != nil {
		add("allow_multiple_purchase", *upd.AllowMultiplePurchase)
	}
	if upd.NumberButtonsInRow != nil {
		add("number_buttons_in_row", *upd.NumberButtonsInRow)
	}
	if upd.Show != nil {
		add("show", *upd.Show)
	}
	if upd.ImageKey != nil {
		add("image_key", *upd.ImageKey)
	}
	if len(set) == 0 {
		return nil
	}
	q := fmt.Sprintf("UPDATE categories SET %s WHERE id=$1", strings.Join(set, ", "))
	tag, err := txq(tx).Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ShiftIndexRange adds delta to the index of siblings in [from, to].
func (r *CatalogRepo) ShiftIndexRange(ctx context.Context, tx repository.Tx, parentID *int64, from, to, delta int) error {
	const q = `
UPDATE categories SET idx = idx + $4
WHERE parent_id IS NOT DISTINCT FROM $1 AND idx BETWEEN $2 AND $3`
	_, err := txq(tx).Exec(ctx, q, parentID, from, to, delta)
	return err
}

// SetIndex moves a single node to the given sibling ordinal.
func (r *CatalogRepo) SetIndex(ctx context.Context, tx repository.Tx, id int64, index int) error {
	const q = `UPDATE categories SET idx=$2 WHERE id=$1`
	tag, err := txq(tx).Exec(ctx, q, id, index)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes the category row.
func (r *CatalogRepo) Delete(ctx context.Context, tx repository.Tx, id int64) error {
	const q = `DELETE FROM categories WHERE id=$1`
	tag, err := txq(tx).Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// AddTranslation inserts one localized row.
func (r *CatalogRepo) AddTranslation(ctx context.Context, tx repository.Tx, tr *model.CategoryTranslation) error {
	const q = `INSERT INTO category_translations (category_id, lang, name, description) VALUES ($1,$2,$3,$4)`
	_, err := txq(tx).Exec(ctx, q, tr.CategoryID, tr.Lang, tr.Name, tr.Description)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// UpdateTranslation rewrites name/description of one localized row.
func (r *CatalogRepo) UpdateTranslation(ctx context.Context, tx repository.Tx, tr *model.CategoryTranslation) error {
	const q = `UPDATE category_translations SET name=$3, description=$4 WHERE category_id=$1 AND lang=$2`
	tag, err := txq(tx).Exec(ctx, q, tr.CategoryID, tr.Lang, tr.Name, tr.Description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteTranslation removes one localized row.
func (r *CatalogRepo) DeleteTranslation(ctx context.Context, tx repository.Tx, categoryID int64, lang string) error {
	const q = `DELETE FROM category_translations WHERE category_id=$1 AND lang=$2`
	tag, err := txq(tx).Exec(ctx, q, categoryID, lang)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// CountTranslations returns the number of localized rows within the tx.
func (r *CatalogRepo) CountTranslations(ctx context.Context, tx repository.Tx, categoryID int64) (int, error) {
	const q = `SELECT COUNT(*) FROM category_translations WHERE category_id=$1`
	var n int
	if err := txq(tx).QueryRow(ctx, q, categoryID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// BestTranslation returns the exact-language row, else the first existing one.
func (r *CatalogRepo) BestTranslation(ctx context.Context, categoryID int64, lang string) (*model.CategoryTranslation, error) {
	const q = `
SELECT category_id, lang, name, description
FROM category_translations
WHERE category_id=$1
ORDER BY (lang=$2) DESC, lang
LIMIT 1`
	var tr model.CategoryTranslation
	err := r.db.Pool.QueryRow(ctx, q, categoryID, lang).Scan(&tr.CategoryID, &tr.Lang, &tr.Name, &tr.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &tr, nil
}

// ListTranslations returns every localized row of a category.
func (r *CatalogRepo) ListTranslations(ctx context.Context, categoryID int64) ([]model.CategoryTranslation, error) {
	const q = `SELECT category_id, lang, name, description FROM category_translations WHERE category_id=$1 ORDER BY lang`
	rows, err := r.db.Pool.Query(ctx, q, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CategoryTranslation
	for rows.Next() {
		var tr model.CategoryTranslation
		if err := rows.Scan(&tr.CategoryID, &tr.Lang, &tr.Name, &tr.Description); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// HasSellableInVisibleSubtree walks show=true descendants looking for a storage
// node with at least one linked item.
func (r *CatalogRepo) HasSellableInVisibleSubtree(ctx context.Context, id int64) (bool, error) {
	const q = `
WITH RECURSIVE subtree AS (
    SELECT id, is_product_storage, product_kind FROM categories WHERE id=$1 AND show
    UNION ALL
    SELECT c.id, c.is_product_storage, c.product_kind
    FROM categories c
    JOIN subtree s ON c.parent_id = s.id
    WHERE c.show
)
SELECT EXISTS (
    SELECT 1 FROM subtree s
    WHERE s.is_product_storage AND (
        (s.product_kind='ACCOUNT' AND EXISTS (SELECT 1 FROM product_accounts pa WHERE pa.category_id=s.id))
        OR (s.product_kind='UNIVERSAL' AND EXISTS (SELECT 1 FROM product_universals pu WHERE pu.category_id=s.id))
    )
)`
	var has bool
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&has); err != nil {
		return false, err
	}
	return has, nil
}

// AncestorIDs returns the ids of every ancestor of the node, nearest first.
func (r *CatalogRepo) AncestorIDs(ctx context.Context, id int64) ([]int64, error) {
	const q = `
WITH RECURSIVE anc AS (
    SELECT parent_id, 1 AS depth FROM categories WHERE id=$1
    UNION ALL
    SELECT c.parent_id, a.depth+1 FROM categories c JOIN anc a ON c.id = a.parent_id
)
SELECT parent_id FROM anc WHERE parent_id IS NOT NULL ORDER BY depth`
	rows, err := r.db.Pool.Query(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func txErrWrap(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrNotFound
	}
	return err
}
