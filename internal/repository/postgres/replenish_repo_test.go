package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
)

func TestReplenishRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewReplenishRepo(db)
	ctx := context.Background()

	expires := time.Now().Add(20 * time.Minute)
	rp := &model.Replenishment{
		UserID:          100,
		PaymentSystemID: "pay-77",
		OriginAmount:    1000,
		Amount:          950,
		InvoiceURL:      "https://pay.example/77",
		ExpiresAt:       &expires,
	}
	mock.ExpectQuery(`INSERT INTO replenishments`).
		WithArgs(rp.UserID, rp.PaymentSystemID, rp.OriginAmount, rp.Amount, rp.InvoiceURL, rp.ExpiresAt).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), time.Now()))
	require.NoError(t, r.Create(ctx, rp))
	require.Equal(t, int64(5), rp.ID)
}

func TestReplenishRepo_SetStatus_OneShot(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewReplenishRepo(db)
	ctx := context.Background()

	tx := beginTx(t, db, mock)
	mock.ExpectExec(`UPDATE replenishments SET status=\$2 WHERE id=\$1 AND status='PROCESSING'`).
		WithArgs(int64(5), "COMPLETED").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetStatus(ctx, tx, 5, model.ReplenishCompleted))

	// Already transitioned
	mock.ExpectExec(`UPDATE replenishments SET status=\$2 WHERE id=\$1 AND status='PROCESSING'`).
		WithArgs(int64(5), "COMPLETED").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.SetStatus(ctx, tx, 5, model.ReplenishCompleted), errs.ErrNotFound)

	mock.ExpectRollback()
	require.NoError(t, tx.Rollback(ctx))
}

func TestReplenishRepo_ExpireStale(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewReplenishRepo(db)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE replenishments SET status='ERROR' WHERE status='PROCESSING'`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	n, err := r.ExpireStale(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}
