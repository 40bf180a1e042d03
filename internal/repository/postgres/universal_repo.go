package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// UniversalRepo implements UniversalRepository using PostgreSQL.
type UniversalRepo struct{ db *DB }

// NewUniversalRepo constructs a universal inventory repository.
func NewUniversalRepo(db *DB) *UniversalRepo { return &UniversalRepo{db: db} }

const universalColumns = `s.id, s.media_type, s.external_media_id, s.file_path, s.checksum, s.wrapped_dek, s.wrapped_dek_nonce`

func scanUniversal(row pgx.Row) (*model.UniversalStorage, error) {
	var s model.UniversalStorage
	var mt string
	err := row.Scan(&s.ID, &mt, &s.ExternalMediaID, &s.FilePath, &s.Checksum, &s.WrappedDEK, &s.WrappedDEKNonce)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	s.MediaType = model.MediaType(mt)
	return &s, nil
}

// InsertForSale inserts a storage row with translations and links it to the category.
func (r *UniversalRepo) InsertForSale(ctx context.Context, tx repository.Tx, categoryID int64, rec *model.UniversalRecord) (int64, error) {
	const ins = `
INSERT INTO universal_storage (media_type, external_media_id, file_path, checksum, wrapped_dek, wrapped_dek_nonce)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
	q := txq(tx)
	var id int64
	err := q.QueryRow(ctx, ins, string(rec.MediaType), rec.ExternalMediaID, rec.FilePath,
		rec.Checksum, rec.WrappedDEK, rec.WrappedDEKNonce).Scan(&id)
	if err != nil {
		return 0, err
	}
	const tr = `
INSERT INTO universal_translations (universal_storage_id, lang, name_ct, name_nonce, description_ct, description_nonce)
VALUES ($1, $2, $3, $4, $5, $6)`
	for i := range rec.Translations {
		t := &rec.Translations[i]
		if _, err := q.Exec(ctx, tr, id, t.Lang, t.NameCT, t.NameNonce, t.DescriptionCT, t.DescriptionNonce); err != nil {
			return 0, err
		}
	}
	const link = `INSERT INTO product_universals (category_id, universal_storage_id) VALUES ($1, $2)`
	if _, err := q.Exec(ctx, link, categoryID, id); err != nil {
		return 0, err
	}
	return id, nil
}

// CountForSale returns the number of sellable items in a category.
func (r *UniversalRepo) CountForSale(ctx context.Context, categoryID int64) (int64, error) {
	return countForSaleUniversal(ctx, r.db.Pool, categoryID)
}

// CountForSaleTx is CountForSale inside an open tx.
func (r *UniversalRepo) CountForSaleTx(ctx context.Context, tx repository.Tx, categoryID int64) (int64, error) {
	return countForSaleUniversal(ctx, txq(tx), categoryID)
}

func countForSaleUniversal(ctx context.Context, q querier, categoryID int64) (int64, error) {
	const sql = `SELECT COUNT(*) FROM product_universals WHERE category_id=$1`
	var n int64
	if err := q.QueryRow(ctx, sql, categoryID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ClaimForSale locks and returns up to qty items in ascending storage id order.
func (r *UniversalRepo) ClaimForSale(ctx context.Context, tx repository.Tx, categoryID int64, qty int, reuse bool) ([]model.UniversalStorage, error) {
	const sel = `
SELECT ` + universalColumns + `
FROM universal_storage s
JOIN product_universals pu ON pu.universal_storage_id = s.id
WHERE pu.category_id=$1
ORDER BY s.id
LIMIT $2
FOR UPDATE OF s`
	q := txq(tx)
	rows, err := q.Query(ctx, sel, categoryID, qty)
	if err != nil {
		return nil, err
	}
	var items []model.UniversalStorage
	for rows.Next() {
		s, err := scanUniversal(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, *s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if reuse || len(items) == 0 {
		return items, nil
	}

	ids := make([]int64, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	const unlink = `DELETE FROM product_universals WHERE universal_storage_id = ANY($1) AND category_id=$2`
	if _, err := q.Exec(ctx, unlink, ids, categoryID); err != nil {
		return nil, err
	}
	return items, nil
}

// InsertSold records a completed sale.
func (r *UniversalRepo) InsertSold(ctx context.Context, tx repository.Tx, storageID, ownerID int64) (int64, error) {
	const ins = `INSERT INTO sold_universals (universal_storage_id, owner_id) VALUES ($1, $2) RETURNING id`
	var soldID int64
	if err := txq(tx).QueryRow(ctx, ins, storageID, ownerID).Scan(&soldID); err != nil {
		return 0, err
	}
	return soldID, nil
}

// ListSoldByOwner pages a user's purchases, newest first; page is 1-based.
func (r *UniversalRepo) ListSoldByOwner(ctx context.Context, ownerID int64, page, size int) ([]model.SoldUniversal, error) {
	const q = `
SELECT id, universal_storage_id, owner_id, sold_at
FROM sold_universals
WHERE owner_id=$1
ORDER BY sold_at DESC, id DESC
LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, q, ownerID, size, (page-1)*size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SoldUniversal
	for rows.Next() {
		var s model.SoldUniversal
		if err := rows.Scan(&s.ID, &s.UniversalStorageID, &s.OwnerID, &s.SoldAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountSoldByOwner returns the user's total purchase count.
func (r *UniversalRepo) CountSoldByOwner(ctx context.Context, ownerID int64) (int64, error) {
	const q = `SELECT COUNT(*) FROM sold_universals WHERE owner_id=$1`
	var n int64
	if err := r.db.Pool.QueryRow(ctx, q, ownerID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// GetSold loads one sold item.
func (r *UniversalRepo) GetSold(ctx context.Context, soldID int64) (*model.SoldUniversal, error) {
	const q = `SELECT id, universal_storage_id, owner_id, sold_at FROM sold_universals WHERE id=$1`
	var s model.SoldUniversal
	err := r.db.Pool.QueryRow(ctx, q, soldID).Scan(&s.ID, &s.UniversalStorageID, &s.OwnerID, &s.SoldAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// GetStorage loads a storage row for re-delivery.
func (r *UniversalRepo) GetStorage(ctx context.Context, storageID int64) (*model.UniversalStorage, error) {
	const q = `SELECT ` + universalColumns + ` FROM universal_storage s WHERE s.id=$1`
	return scanUniversal(r.db.Pool.QueryRow(ctx, q, storageID))
}

// PurgeCategory hard-removes every unsold item of a storage category.
func (r *UniversalRepo) PurgeCategory(ctx context.Context, categoryID int64) (paths []string, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `
SELECT s.id, s.file_path
FROM universal_storage s
JOIN product_universals pu ON pu.universal_storage_id = s.id
WHERE pu.category_id=$1
FOR UPDATE OF s`
	rows, err := tx.Query(ctx, sel, categoryID)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		var fp *string
		if err = rows.Scan(&id, &fp); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
		if fp != nil {
			paths = append(paths, *fp)
		}
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	const unlink = `DELETE FROM product_universals WHERE universal_storage_id = ANY($1)`
	if _, err = tx.Exec(ctx, unlink, ids); err != nil {
		return nil, err
	}
	// Keep storage rows still referenced by sold_universals (reuse categories).
	const drop = `
DELETE FROM universal_storage
WHERE id = ANY($1)
  AND NOT EXISTS (SELECT 1 FROM sold_universals su WHERE su.universal_storage_id = universal_storage.id)`
	if _, err = tx.Exec(ctx, drop, ids); err != nil {
		return nil, err
	}
	return paths, nil
}
