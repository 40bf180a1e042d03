package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// ReplenishService applies external payment confirmations to the wallet,
// idempotently by replenishment status, and drives referral accrual.
type ReplenishService struct {
	db              repository.TxBeginner
	replenishments  repository.ReplenishmentRepository
	users           repository.UserRepository
	wallet          *WalletService
	referrals       *ReferralService
	sink            EventSink
	paymentLifetime time.Duration
	log             *zap.Logger
}

// NewReplenishService constructs ReplenishService.
func NewReplenishService(db repository.TxBeginner, replenishments repository.ReplenishmentRepository,
	users repository.UserRepository, wallet *WalletService, referrals *ReferralService,
	sink EventSink, paymentLifetime time.Duration, log *zap.Logger) *ReplenishService {
	if sink == nil {
		sink = NopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReplenishService{db: db, replenishments: replenishments, users: users,
		wallet: wallet, referrals: referrals, sink: sink, paymentLifetime: paymentLifetime, log: log}
}

// Create opens a PROCESSING replenishment for an invoice. commissionPct is the
// payment system's cut in percent; the credited amount is what remains.
func (s *ReplenishService) Create(ctx context.Context, userID, originAmount int64, commissionPct int, paymentSystemID, invoiceURL string) (*model.Replenishment, error) {
	if originAmount <= 0 {
		return nil, fmt.Errorf("validation: non-positive amount %d", originAmount)
	}
	if commissionPct < 0 || commissionPct > 100 {
		return nil, fmt.Errorf("validation: commission %d out of [0,100]", commissionPct)
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	expires := time.Now().Add(s.paymentLifetime)
	rp := &model.Replenishment{
		UserID:          userID,
		PaymentSystemID: paymentSystemID,
		OriginAmount:    originAmount,
		Amount:          originAmount * int64(100-commissionPct) / 100,
		Status:          model.ReplenishProcessing,
		InvoiceURL:      invoiceURL,
		ExpiresAt:       &expires,
	}
	if err := s.replenishments.Create(ctx, rp); err != nil {
		return nil, err
	}
	return rp, nil
}

// Apply credits a confirmed payment. Replays are no-ops: only a PROCESSING
// row can transition, and the transition happens in the same transaction as
// the wallet credit.
func (s *ReplenishService) Apply(ctx context.Context, ev model.PaymentEvent) error {
	rp, err := s.replenishments.Get(ctx, ev.ReplenishmentID)
	if err != nil {
		return err
	}
	if rp.Status != model.ReplenishProcessing {
		return nil
	}

	credited, err := s.credit(ctx, rp)
	if err != nil {
		// Nothing was credited; the attempt is terminal.
		if markErr := s.replenishments.MarkError(ctx, rp.ID); markErr != nil {
			s.log.Error("replenishment error mark failed",
				zap.Int64("replenishment", rp.ID), zap.Error(markErr))
		}
		s.sink.ReplenishmentFailed(ctx, model.ReplenishmentFailed{
			UserID:          rp.UserID,
			ReplenishmentID: rp.ID,
			Err:             err.Error(),
		})
		return err
	}
	if !credited {
		return nil
	}

	// Post-credit work must not disturb the COMPLETED status.
	if err := s.referrals.Accrue(ctx, rp.UserID, rp.Amount, rp.ID); err != nil {
		s.log.Error("referral accrual failed",
			zap.Int64("replenishment", rp.ID), zap.Error(err))
	}

	total := rp.Amount
	if u, err := s.users.GetByID(ctx, rp.UserID); err == nil {
		total = u.TotalReplenished
	}
	s.sink.ReplenishmentCompleted(ctx, model.ReplenishmentCompleted{
		UserID:           rp.UserID,
		ReplenishmentID:  rp.ID,
		Amount:           rp.Amount,
		TotalReplenished: total,
	})
	return nil
}

// credit performs the atomic credit phase; reports false when a concurrent
// apply already completed the row.
func (s *ReplenishService) credit(ctx context.Context, rp *model.Replenishment) (credited bool, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	locked, err := s.replenishments.GetForUpdate(ctx, tx, rp.ID)
	if err != nil {
		return false, err
	}
	if locked.Status != model.ReplenishProcessing {
		return false, nil
	}

	ref := strconv.FormatInt(rp.ID, 10)
	if _, err = s.wallet.Credit(ctx, tx, rp.UserID, rp.Amount, model.TxReplenish, ref); err != nil {
		return false, err
	}
	if err = s.users.AddTotalReplenished(ctx, tx, rp.UserID, rp.Amount); err != nil {
		return false, err
	}
	if err = s.replenishments.SetStatus(ctx, tx, rp.ID, model.ReplenishCompleted); err != nil {
		return false, err
	}
	return true, nil
}

// Get loads a replenishment by id.
func (s *ReplenishService) Get(ctx context.Context, id int64) (*model.Replenishment, error) {
	return s.replenishments.Get(ctx, id)
}

// ExpireStale sweeps PROCESSING rows with lapsed invoices to ERROR.
func (s *ReplenishService) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.replenishments.ExpireStale(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired stale replenishments", zap.Int64("count", n))
	}
	return n, nil
}
