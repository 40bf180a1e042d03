package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account inventory repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

const accountStorageColumns = `s.id, s.status, s.service_type, s.file_path, s.checksum, s.wrapped_dek, s.wrapped_dek_nonce,
s.key_version, s.algo, s.login_ct, s.login_nonce, s.password_ct, s.password_nonce,
s.phone_number, s.external_id, s.is_valid, s.is_active, s.last_check_at`

func scanAccountStorage(row pgx.Row) (*model.AccountStorage, error) {
	var s model.AccountStorage
	var status string
	err := row.Scan(&s.ID, &status, &s.ServiceType, &s.FilePath, &s.Checksum, &s.WrappedDEK, &s.WrappedDEKNonce,
		&s.KeyVersion, &s.Algo, &s.LoginCT, &s.LoginNonce, &s.PasswordCT, &s.PasswordNonce,
		&s.PhoneNumber, &s.ExternalID, &s.IsValid, &s.IsActive, &s.LastCheckAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	s.Status = model.AccountStatus(status)
	return &s, nil
}

// ExistsActive reports an in-DB duplicate in the FOR_SALE/BOUGHT set.
// Matching is by phone number, or by external id when the phone is empty.
func (r *AccountRepo) ExistsActive(ctx context.Context, serviceType, phoneNumber string, externalID *string) (bool, error) {
	var q string
	var arg any
	if phoneNumber != "" {
		q = `SELECT EXISTS (SELECT 1 FROM account_storage WHERE service_type=$1 AND phone_number=$2 AND status IN ('FOR_SALE','BOUGHT'))`
		arg = phoneNumber
	} else {
		if externalID == nil {
			return false, nil
		}
		q = `SELECT EXISTS (SELECT 1 FROM account_storage WHERE service_type=$1 AND external_id=$2 AND status IN ('FOR_SALE','BOUGHT'))`
		arg = *externalID
	}
	var exists bool
	if err := r.db.Pool.QueryRow(ctx, q, serviceType, arg).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// InsertForSale inserts a FOR_SALE storage row and links it to the category.
func (r *AccountRepo) InsertForSale(ctx context.Context, tx repository.Tx, categoryID int64, rec *model.AccountRecord) (int64, error) {
	const ins = `
INSERT INTO account_storage (status, service_type, file_path, checksum, wrapped_dek, wrapped_dek_nonce,
                             key_version, algo, login_ct, login_nonce, password_ct, password_nonce,
                             phone_number, external_id)
VALUES ('FOR_SALE', $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING id`
	q := txq(tx)
	var id int64
	err := q.QueryRow(ctx, ins, rec.ServiceType, rec.FilePath, rec.Checksum, rec.WrappedDEK, rec.WrappedDEKNonce,
		rec.KeyVersion, rec.Algo, rec.LoginCT, rec.LoginNonce, rec.PasswordCT, rec.PasswordNonce,
		rec.PhoneNumber, rec.ExternalID).Scan(&id)
	if err != nil {
		return 0, err
	}
	const link = `INSERT INTO product_accounts (category_id, account_storage_id) VALUES ($1, $2)`
	if _, err := q.Exec(ctx, link, categoryID, id); err != nil {
		return 0, err
	}
	return id, nil
}

// CountForSale returns the number of sellable items in a category.
func (r *AccountRepo) CountForSale(ctx context.Context, categoryID int64) (int64, error) {
	return countForSaleAccounts(ctx, r.db.Pool, categoryID)
}

// CountForSaleTx is CountForSale inside an open tx.
func (r *AccountRepo) CountForSaleTx(ctx context.Context, tx repository.Tx, categoryID int64) (int64, error) {
	return countForSaleAccounts(ctx, txq(tx), categoryID)
}

func countForSaleAccounts(ctx context.Context, q querier, categoryID int64) (int64, error) {
	const sql = `
SELECT COUNT(*)
FROM product_accounts pa
JOIN account_storage s ON s.id = pa.account_storage_id
WHERE pa.category_id=$1 AND s.status='FOR_SALE'`
	var n int64
	if err := q.QueryRow(ctx, sql, categoryID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListForSale returns sellable storage rows of a category ordered by id.
func (r *AccountRepo) ListForSale(ctx context.Context, categoryID int64) ([]model.AccountStorage, error) {
	const q = `
SELECT ` + accountStorageColumns + `
FROM account_storage s
JOIN product_accounts pa ON pa.account_storage_id = s.id
WHERE pa.category_id=$1 AND s.status='FOR_SALE'
ORDER BY s.id`
	rows, err := r.db.Pool.Query(ctx, q, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccountStorage(rows)
}

func collectAccountStorage(rows pgx.Rows) ([]model.AccountStorage, error) {
	var out []model.AccountStorage
	for rows.Next() {
		s, err := scanAccountStorage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// ClaimForSale locks and returns up to qty FOR_SALE items in ascending storage
// id order. Without reuse the items transition to BOUGHT and their product
// rows are removed; with reuse the rows stay linked for re-delivery.
func (r *AccountRepo) ClaimForSale(ctx context.Context, tx repository.Tx, categoryID int64, qty int, reuse bool) ([]model.AccountStorage, error) {
	const sel = `
SELECT ` + accountStorageColumns + `
FROM account_storage s
JOIN product_accounts pa ON pa.account_storage_id = s.id
WHERE pa.category_id=$1 AND s.status='FOR_SALE'
ORDER BY s.id
LIMIT $2
FOR UPDATE OF s`
	q := txq(tx)
	rows, err := q.Query(ctx, sel, categoryID, qty)
	if err != nil {
		return nil, err
	}
	items, err := collectAccountStorage(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if reuse {
		return items, nil
	}

	ids := make([]int64, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	const mark = `UPDATE account_storage SET status='BOUGHT' WHERE id = ANY($1)`
	if _, err := q.Exec(ctx, mark, ids); err != nil {
		return nil, err
	}
	const unlink = `DELETE FROM product_accounts WHERE account_storage_id = ANY($1)`
	if _, err := q.Exec(ctx, unlink, ids); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Status = model.StatusBought
	}
	return items, nil
}

// InsertSold records a completed sale with its translation snapshot.
func (r *AccountRepo) InsertSold(ctx context.Context, tx repository.Tx, storageID, ownerID int64, trs []model.CategoryTranslation) (int64, error) {
	const ins = `INSERT INTO sold_accounts (account_storage_id, owner_id) VALUES ($1, $2) RETURNING id`
	q := txq(tx)
	var soldID int64
	if err := q.QueryRow(ctx, ins, storageID, ownerID).Scan(&soldID); err != nil {
		return 0, err
	}
	const tr = `INSERT INTO sold_account_translations (sold_account_id, lang, name, description) VALUES ($1, $2, $3, $4)`
	for i := range trs {
		if _, err := q.Exec(ctx, tr, soldID, trs[i].Lang, trs[i].Name, trs[i].Description); err != nil {
			return 0, err
		}
	}
	return soldID, nil
}

// MarkInvalid clears validity flags on a storage row within the tx.
func (r *AccountRepo) MarkInvalid(ctx context.Context, tx repository.Tx, storageID int64) error {
	const q = `UPDATE account_storage SET is_valid=false, is_active=false, last_check_at=now() WHERE id=$1`
	tag, err := txq(tx).Exec(ctx, q, storageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetValidity updates the validity flags and check timestamp.
func (r *AccountRepo) SetValidity(ctx context.Context, storageID int64, valid bool) error {
	const q = `UPDATE account_storage SET is_valid=$2, is_active=$2, last_check_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, storageID, valid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ListSoldByOwner pages a user's purchases, newest first; page is 1-based.
func (r *AccountRepo) ListSoldByOwner(ctx context.Context, ownerID int64, lang string, page, size int) ([]model.SoldAccount, error) {
	const q = `
SELECT sa.id, sa.account_storage_id, sa.owner_id, sa.sold_at, COALESCE(t.name,''), t.description
FROM sold_accounts sa
LEFT JOIN LATERAL (
    SELECT name, description FROM sold_account_translations st
    WHERE st.sold_account_id = sa.id
    ORDER BY (st.lang=$2) DESC, st.lang
    LIMIT 1
) t ON TRUE
WHERE sa.owner_id=$1
ORDER BY sa.sold_at DESC, sa.id DESC
LIMIT $3 OFFSET $4`
	rows, err := r.db.Pool.Query(ctx, q, ownerID, lang, size, (page-1)*size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SoldAccount
	for rows.Next() {
		var s model.SoldAccount
		if err := rows.Scan(&s.ID, &s.AccountStorageID, &s.OwnerID, &s.SoldAt, &s.Name, &s.Description); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountSoldByOwner returns the user's total purchase count.
func (r *AccountRepo) CountSoldByOwner(ctx context.Context, ownerID int64) (int64, error) {
	const q = `SELECT COUNT(*) FROM sold_accounts WHERE owner_id=$1`
	var n int64
	if err := r.db.Pool.QueryRow(ctx, q, ownerID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// GetSold loads one sold item with its best-matching translation.
func (r *AccountRepo) GetSold(ctx context.Context, soldID int64, lang string) (*model.SoldAccount, error) {
	const q = `
SELECT sa.id, sa.account_storage_id, sa.owner_id, sa.sold_at, COALESCE(t.name,''), t.description
FROM sold_accounts sa
LEFT JOIN LATERAL (
    SELECT name, description FROM sold_account_translations st
    WHERE st.sold_account_id = sa.id
    ORDER BY (st.lang=$2) DESC, st.lang
    LIMIT 1
) t ON TRUE
WHERE sa.id=$1`
	var s model.SoldAccount
	err := r.db.Pool.QueryRow(ctx, q, soldID, lang).Scan(&s.ID, &s.AccountStorageID, &s.OwnerID, &s.SoldAt, &s.Name, &s.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// DeleteSold moves a BOUGHT item to DELETED preserving the storage row.
func (r *AccountRepo) DeleteSold(ctx context.Context, soldID int64) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
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
SELECT sa.account_storage_id, COALESCE(t.name,''), t.description
FROM sold_accounts sa
LEFT JOIN LATERAL (
    SELECT name, description FROM sold_account_translations st
    WHERE st.sold_account_id = sa.id ORDER BY st.lang LIMIT 1
) t ON TRUE
WHERE sa.id=$1
FOR UPDATE OF sa`
	var storageID int64
	var name string
	var desc *string
	if err = tx.QueryRow(ctx, sel, soldID).Scan(&storageID, &name, &desc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	}

	const ins = `INSERT INTO deleted_accounts (account_storage_id, category_name, description) VALUES ($1, $2, $3)`
	if _, err = tx.Exec(ctx, ins, storageID, name, desc); err != nil {
		return err
	}
	const mark = `UPDATE account_storage SET status='DELETED' WHERE id=$1`
	if _, err = tx.Exec(ctx, mark, storageID); err != nil {
		return err
	}
	const del = `DELETE FROM sold_accounts WHERE id=$1`
	if _, err = tx.Exec(ctx, del, soldID); err != nil {
		return err
	}
	return nil
}

// PurgeCategory hard-removes every FOR_SALE item of a storage category and
// returns the file paths of removed blobs.
func (r *AccountRepo) PurgeCategory(ctx context.Context, categoryID int64) (paths []string, err error) {
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
FROM account_storage s
JOIN product_accounts pa ON pa.account_storage_id = s.id
WHERE pa.category_id=$1 AND s.status='FOR_SALE'
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

	const unlink = `DELETE FROM product_accounts WHERE account_storage_id = ANY($1)`
	if _, err = tx.Exec(ctx, unlink, ids); err != nil {
		return nil, err
	}
	const drop = `DELETE FROM account_storage WHERE id = ANY($1)`
	if _, err = tx.Exec(ctx, drop, ids); err != nil {
		return nil, err
	}
	return paths, nil
}
