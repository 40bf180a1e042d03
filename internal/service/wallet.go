package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// WalletService maintains per-user balances and the append-only ledger.
// Credit and Debit run inside a caller-owned unit of work so orchestrators can
// combine them with inventory and promo mutations atomically.
type WalletService struct {
	db     repository.TxBeginner
	users  repository.UserRepository
	ledger repository.WalletRepository
}

// NewWalletService constructs WalletService.
func NewWalletService(db repository.TxBeginner, users repository.UserRepository, ledger repository.WalletRepository) *WalletService {
	return &WalletService{db: db, users: users, ledger: ledger}
}

// Credit adds amount to the user's balance within tx. The user row is locked
// for the remainder of the tx. amount must be positive.
func (s *WalletService) Credit(ctx context.Context, tx repository.Tx, userID, amount int64, kind model.TxKind, ref string) (*model.WalletTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("validation: non-positive credit amount %d", amount)
	}
	u, err := s.users.LockForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, tx, u, amount, kind, ref)
}

// Debit subtracts amount from the user's balance within tx. Fails with
// NotEnoughMoneyError when the balance cannot cover the amount.
func (s *WalletService) Debit(ctx context.Context, tx repository.Tx, userID, amount int64, kind model.TxKind, ref string) (*model.WalletTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("validation: non-positive debit amount %d", amount)
	}
	u, err := s.users.LockForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if u.Balance < amount {
		return nil, &errs.NotEnoughMoneyError{Need: amount - u.Balance}
	}
	return s.apply(ctx, tx, u, -amount, kind, ref)
}

// DebitLocked is Debit for a user row the caller has already locked in tx.
func (s *WalletService) DebitLocked(ctx context.Context, tx repository.Tx, u *model.User, amount int64, kind model.TxKind, ref string) (*model.WalletTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("validation: non-positive debit amount %d", amount)
	}
	if u.Balance < amount {
		return nil, &errs.NotEnoughMoneyError{Need: amount - u.Balance}
	}
	return s.apply(ctx, tx, u, -amount, kind, ref)
}

// apply writes the new balance and its ledger row for an already-locked user.
func (s *WalletService) apply(ctx context.Context, tx repository.Tx, u *model.User, delta int64, kind model.TxKind, ref string) (*model.WalletTransaction, error) {
	after := u.Balance + delta
	if after < 0 {
		return nil, &errs.NotEnoughMoneyError{Need: -after}
	}
	if err := s.users.SetBalance(ctx, tx, u.ID, after); err != nil {
		return nil, err
	}
	wt := &model.WalletTransaction{
		UserID:        u.ID,
		Kind:          kind,
		Amount:        delta,
		BalanceBefore: u.Balance,
		BalanceAfter:  after,
		RefID:         ref,
	}
	if err := s.ledger.Append(ctx, tx, wt); err != nil {
		return nil, err
	}
	u.Balance = after
	return wt, nil
}

// Transfer moves amount between two users atomically. Rows are locked in
// ascending user id order so two opposite transfers cannot deadlock.
func (s *WalletService) Transfer(ctx context.Context, fromID, toID, amount int64) (err error) {
	if amount <= 0 {
		return fmt.Errorf("validation: non-positive transfer amount %d", amount)
	}
	if fromID == toID {
		return errors.New("validation: transfer to self")
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

	first, second := fromID, toID
	if second < first {
		first, second = second, first
	}
	locked := make(map[int64]*model.User, 2)
	for _, id := range []int64{first, second} {
		u, lockErr := s.users.LockForUpdate(ctx, tx, id)
		if lockErr != nil {
			return lockErr
		}
		locked[id] = u
	}

	from, to := locked[fromID], locked[toID]
	if from.Balance < amount {
		return &errs.NotEnoughMoneyError{Need: amount - from.Balance}
	}

	ref, err := uuid.NewV4()
	if err != nil {
		return err
	}
	if _, err = s.apply(ctx, tx, from, -amount, model.TxTransferOut, ref.String()); err != nil {
		return err
	}
	if _, err = s.apply(ctx, tx, to, amount, model.TxTransferIn, ref.String()); err != nil {
		return err
	}
	return nil
}

// Adjust applies an admin balance correction in its own unit of work.
// Positive amounts credit, negative amounts debit.
func (s *WalletService) Adjust(ctx context.Context, userID, amount int64, ref string) (err error) {
	if amount == 0 {
		return errors.New("validation: zero adjustment")
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

	u, err := s.users.LockForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}
	_, err = s.apply(ctx, tx, u, amount, model.TxAdjust, ref)
	return err
}

// Refund returns a purchase amount to the user in its own unit of work.
func (s *WalletService) Refund(ctx context.Context, userID, amount int64, ref string) (err error) {
	if amount <= 0 {
		return fmt.Errorf("validation: non-positive refund amount %d", amount)
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

	u, err := s.users.LockForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}
	_, err = s.apply(ctx, tx, u, amount, model.TxRefund, ref)
	return err
}

// History pages a user's ledger, newest first; page is 1-based.
func (s *WalletService) History(ctx context.Context, userID int64, page, size int) ([]model.WalletTransaction, error) {
	if page < 1 || size < 1 {
		return nil, fmt.Errorf("validation: bad page %d/%d", page, size)
	}
	return s.ledger.ListByUser(ctx, userID, page, size)
}
