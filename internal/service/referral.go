package service

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// ReferralService accrues level-tiered commissions to the direct inviter on
// each successful top-up.
type ReferralService struct {
	db        repository.TxBeginner
	users     repository.UserRepository
	referrals repository.ReferralRepository
	wallet    *WalletService
	log       *zap.Logger
}

// NewReferralService constructs ReferralService.
func NewReferralService(db repository.TxBeginner, users repository.UserRepository,
	referrals repository.ReferralRepository, wallet *WalletService, log *zap.Logger) *ReferralService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReferralService{db: db, users: users, referrals: referrals, wallet: wallet, log: log}
}

// Accrue credits the child's direct inviter for a completed replenishment.
// Users without an inviter (or with a self-reference) accrue nothing.
func (s *ReferralService) Accrue(ctx context.Context, childID, amount, replenishmentID int64) (err error) {
	child, err := s.users.GetByID(ctx, childID)
	if err != nil {
		return err
	}
	if child.ReferrerID == nil || *child.ReferrerID == childID {
		return nil
	}
	parent, err := s.users.GetByID(ctx, *child.ReferrerID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		return err
	}

	level, err := s.referrals.LevelFor(ctx, parent.TotalReplenished)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		return err
	}
	commission := amount * int64(level.Percent) / 100
	if commission <= 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	ref := strconv.FormatInt(replenishmentID, 10)
	if _, err = s.wallet.Credit(ctx, tx, parent.ID, commission, model.TxReferral, ref); err != nil {
		return err
	}
	acc := &model.ReferralAccrual{
		ChildID:  childID,
		ParentID: parent.ID,
		Amount:   commission,
		Level:    level.Level,
	}
	if err = s.referrals.InsertAccrual(ctx, tx, acc); err != nil {
		return err
	}

	s.log.Info("referral accrued",
		zap.Int64("child", childID),
		zap.Int64("parent", parent.ID),
		zap.Int64("amount", commission),
		zap.Int("level", level.Level),
	)
	return nil
}

// Levels lists the configured commission tiers.
func (s *ReferralService) Levels(ctx context.Context) ([]model.ReferralLevel, error) {
	return s.referrals.ListLevels(ctx)
}

// LevelOf resolves a user's current tier from their lifetime top-up total.
func (s *ReferralService) LevelOf(ctx context.Context, userID int64) (*model.ReferralLevel, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.referrals.LevelFor(ctx, u.TotalReplenished)
}
