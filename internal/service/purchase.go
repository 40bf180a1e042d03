package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/avkuzmin/teleshop/internal/cache"
	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// Outcome is the closed result variant of a purchase.
type Outcome string

const (
	OutcomeOK                    Outcome = "OK"
	OutcomeNotEnoughInventory    Outcome = "NOT_ENOUGH_INVENTORY"
	OutcomeNotEnoughMoney        Outcome = "NOT_ENOUGH_MONEY"
	OutcomeCategoryGone          Outcome = "CATEGORY_GONE"
	OutcomePromoInvalid          Outcome = "PROMO_INVALID"
	OutcomePromoAlreadyActivated Outcome = "PROMO_ALREADY_ACTIVATED"
	OutcomePromoMinNotReached    Outcome = "PROMO_MIN_NOT_REACHED"
)

// PurchaseRequest is the front-end's purchase intent. Arguments are plain
// values; no chat objects cross this boundary.
type PurchaseRequest struct {
	UserID      int64
	CategoryID  int64
	Qty         int
	PromoCodeID *int64
	Language    string
}

// PurchaseResult reports what the purchase did. Items is populated only for
// OutcomeOK; Need only for OutcomeNotEnoughMoney.
type PurchaseResult struct {
	Outcome Outcome
	Items   []model.PurchasedItem
	Total   int64
	Need    int64
}

// PurchaseService coordinates catalog, inventory, promo, and wallet under a
// single serializable transaction per purchase.
type PurchaseService struct {
	db         repository.TxBeginner
	catalog    repository.CatalogRepository
	accounts   repository.AccountRepository
	universals repository.UniversalRepository
	promos     repository.PromoRepository
	users      repository.UserRepository
	wallet     *WalletService
	kvc        *cache.Quiet
	sink       EventSink
	probe      Probe
	log        *zap.Logger
}

// NewPurchaseService constructs PurchaseService. probe may be nil to skip
// pre-sale validity checks; sink may be nil to drop events.
func NewPurchaseService(db repository.TxBeginner, catalog repository.CatalogRepository,
	accounts repository.AccountRepository, universals repository.UniversalRepository,
	promos repository.PromoRepository, users repository.UserRepository,
	wallet *WalletService, kvc *cache.Quiet, sink EventSink, probe Probe, log *zap.Logger) *PurchaseService {
	if sink == nil {
		sink = NopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PurchaseService{db: db, catalog: catalog, accounts: accounts, universals: universals,
		promos: promos, users: users, wallet: wallet, kvc: kvc, sink: sink, probe: probe, log: log}
}

// Purchase executes one order. Domain failures surface as outcome variants
// with all state rolled back; only infrastructure errors return err.
func (s *PurchaseService) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	if req.Qty <= 0 {
		return nil, fmt.Errorf("validation: non-positive quantity %d", req.Qty)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}

	res, promo, runErr := s.run(ctx, tx, req)
	if runErr != nil {
		_ = tx.Rollback(ctx)
		if out, need, ok := outcomeFor(runErr); ok {
			return &PurchaseResult{Outcome: out, Need: need}, nil
		}
		return nil, runErr
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	// Invalidation is gated on the commit: a rolled-back purchase must not
	// leak partial cache drops.
	s.invalidateAfterPurchase(ctx, req, promo)
	if promo != nil {
		s.sink.PromoActivated(ctx, model.PromoActivated{PromoCodeID: promo.ID, UserID: req.UserID})
	}
	s.log.Info("purchase completed",
		zap.Int64("user", req.UserID),
		zap.Int64("category", req.CategoryID),
		zap.Int("qty", req.Qty),
		zap.Int64("total", res.Total),
	)
	return res, nil
}

// run performs every step of the purchase inside the open tx.
func (s *PurchaseService) run(ctx context.Context, tx repository.Tx, req PurchaseRequest) (*PurchaseResult, *model.PromoCode, error) {
	cat, err := s.catalog.GetForUpdate(ctx, tx, req.CategoryID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil, errs.ErrCategoryNotStorage
		}
		return nil, nil, err
	}
	if !cat.IsProductStorage {
		return nil, nil, errs.ErrCategoryNotStorage
	}
	if req.Qty > 1 && !cat.AllowMultiplePurchase {
		return nil, nil, fmt.Errorf("validation: category %d forbids multiple purchase", cat.ID)
	}

	available, err := s.countForSaleTx(ctx, tx, cat)
	if err != nil {
		return nil, nil, err
	}
	if available < int64(req.Qty) && !cat.ReuseProduct {
		return nil, nil, errs.ErrNotEnoughInventory
	}
	if cat.ReuseProduct && available == 0 {
		return nil, nil, errs.ErrNotEnoughInventory
	}

	total := int64(req.Qty) * cat.Price

	var promo *model.PromoCode
	if req.PromoCodeID != nil {
		promo, total, err = s.applyPromo(ctx, tx, *req.PromoCodeID, req.UserID, total)
		if err != nil {
			return nil, nil, err
		}
	}

	user, err := s.users.LockForUpdate(ctx, tx, req.UserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil, fmt.Errorf("purchase: unknown user %d", req.UserID)
		}
		return nil, nil, err
	}
	if user.IsBlocked {
		return nil, nil, errs.ErrUserBlocked
	}
	if user.Balance < total {
		return nil, nil, &errs.NotEnoughMoneyError{Need: total - user.Balance}
	}

	items, err := s.claim(ctx, tx, cat, req)
	if err != nil {
		return nil, nil, err
	}

	purchaseRef, err := uuid.NewV4()
	if err != nil {
		return nil, nil, err
	}
	if total > 0 {
		if _, err := s.wallet.DebitLocked(ctx, tx, user, total, model.TxPurchase, purchaseRef.String()); err != nil {
			return nil, nil, err
		}
	}

	if promo != nil {
		if err := s.promos.RegisterActivation(ctx, tx, promo.ID, req.UserID); err != nil {
			return nil, nil, err
		}
	}

	return &PurchaseResult{Outcome: OutcomeOK, Items: items, Total: total}, promo, nil
}

// applyPromo re-reads the promo under a lock and prices the discount.
func (s *PurchaseService) applyPromo(ctx context.Context, tx repository.Tx, promoID, userID, total int64) (*model.PromoCode, int64, error) {
	promo, err := s.promos.GetForUpdate(ctx, tx, promoID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, 0, errs.ErrPromoInvalid
		}
		return nil, 0, err
	}
	if !promo.Applicable(nowUTC()) {
		return nil, 0, errs.ErrPromoInvalid
	}
	activated, err := s.promos.AlreadyActivated(ctx, promoID, userID)
	if err != nil {
		return nil, 0, err
	}
	if activated {
		return nil, 0, errs.ErrPromoAlreadyActivated
	}

	discount := promo.Discount(total)
	// The minimum gate sees the raw remainder, before any clamp: a fixed
	// amount larger than the order leaves a negative remainder.
	remainder := total - discount
	if promo.Amount != nil {
		remainder = total - *promo.Amount
	}
	if promo.MinOrderAmount != nil && *promo.MinOrderAmount > remainder {
		return nil, 0, errs.ErrPromoMinNotReached
	}
	final := total - discount
	if final < 0 {
		final = 0
	}
	return promo, final, nil
}

// claim selects, locks, and transitions inventory for the order, dispatching
// on the category's product kind at this single point.
func (s *PurchaseService) claim(ctx context.Context, tx repository.Tx, cat *model.Category, req PurchaseRequest) ([]model.PurchasedItem, error) {
	trs, err := s.catalog.ListTranslations(ctx, cat.ID)
	if err != nil {
		return nil, err
	}

	switch cat.ProductKind {
	case model.KindUniversal:
		return s.claimUniversal(ctx, tx, cat, req, trs)
	default:
		return s.claimAccounts(ctx, tx, cat, req, trs)
	}
}

func (s *PurchaseService) claimAccounts(ctx context.Context, tx repository.Tx, cat *model.Category,
	req PurchaseRequest, trs []model.CategoryTranslation) ([]model.PurchasedItem, error) {
	claimed, err := s.accounts.ClaimForSale(ctx, tx, cat.ID, req.Qty, cat.ReuseProduct)
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 || (!cat.ReuseProduct && len(claimed) < req.Qty) {
		return nil, errs.ErrNotEnoughInventory
	}

	if s.probe != nil && !cat.ReuseProduct {
		claimed, err = s.probeAndReplace(ctx, tx, cat.ID, claimed)
		if err != nil {
			return nil, err
		}
	}

	out := make([]model.PurchasedItem, 0, req.Qty)
	for i := 0; i < req.Qty; i++ {
		// Reuse categories repeat the claimed pool to fill the quantity.
		item := claimed[i%len(claimed)]
		soldID, err := s.accounts.InsertSold(ctx, tx, item.ID, req.UserID, trs)
		if err != nil {
			return nil, err
		}
		out = append(out, model.PurchasedItem{Kind: model.KindAccount, StorageID: item.ID, SoldID: soldID})
	}
	return out, nil
}

// probeAndReplace runs the validity probe on telegram items, replacing each
// definitive failure from the remaining pool. A probe error is not a verdict
// and leaves the item as is.
func (s *PurchaseService) probeAndReplace(ctx context.Context, tx repository.Tx, categoryID int64,
	claimed []model.AccountStorage) ([]model.AccountStorage, error) {
	for i := 0; i < len(claimed); i++ {
		if claimed[i].ServiceType != "telegram" {
			continue
		}
		ok, err := s.probe(ctx, &claimed[i])
		if err != nil {
			s.log.Warn("validity probe inconclusive",
				zap.Int64("storage", claimed[i].ID), zap.Error(err))
			continue
		}
		if ok {
			continue
		}
		if err := s.accounts.MarkInvalid(ctx, tx, claimed[i].ID); err != nil {
			return nil, err
		}
		repl, err := s.accounts.ClaimForSale(ctx, tx, categoryID, 1, false)
		if err != nil {
			return nil, err
		}
		if len(repl) == 0 {
			return nil, errs.ErrNotEnoughInventory
		}
		claimed[i] = repl[0]
		i-- // probe the replacement too
	}
	return claimed, nil
}

func (s *PurchaseService) claimUniversal(ctx context.Context, tx repository.Tx, cat *model.Category,
	req PurchaseRequest, _ []model.CategoryTranslation) ([]model.PurchasedItem, error) {
	claimed, err := s.universals.ClaimForSale(ctx, tx, cat.ID, req.Qty, cat.ReuseProduct)
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 || (!cat.ReuseProduct && len(claimed) < req.Qty) {
		return nil, errs.ErrNotEnoughInventory
	}

	out := make([]model.PurchasedItem, 0, req.Qty)
	for i := 0; i < req.Qty; i++ {
		item := claimed[i%len(claimed)]
		soldID, err := s.universals.InsertSold(ctx, tx, item.ID, req.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, model.PurchasedItem{Kind: model.KindUniversal, StorageID: item.ID, SoldID: soldID})
	}
	return out, nil
}

func (s *PurchaseService) countForSaleTx(ctx context.Context, tx repository.Tx, cat *model.Category) (int64, error) {
	if cat.ProductKind == model.KindUniversal {
		return s.universals.CountForSaleTx(ctx, tx, cat.ID)
	}
	return s.accounts.CountForSaleTx(ctx, tx, cat.ID)
}

// invalidateAfterPurchase drops the category views up the ancestor chain, the
// buyer's sold listings, and the promo read key.
func (s *PurchaseService) invalidateAfterPurchase(ctx context.Context, req PurchaseRequest, promo *model.PromoCode) {
	s.kvc.InvalidatePrefix(ctx, cache.PrefixCategory(req.CategoryID))
	s.kvc.InvalidatePrefix(ctx, cache.PrefixMainCategories())
	if ancestors, err := s.catalog.AncestorIDs(ctx, req.CategoryID); err == nil {
		for _, anc := range ancestors {
			s.kvc.InvalidatePrefix(ctx, cache.PrefixCategory(anc))
			s.kvc.InvalidatePrefix(ctx, cache.PrefixSubcategories(anc))
		}
	}
	if cat, err := s.catalog.Get(ctx, req.CategoryID); err == nil && cat.ParentID != nil {
		s.kvc.InvalidatePrefix(ctx, cache.PrefixSubcategories(*cat.ParentID))
	}
	s.kvc.InvalidatePrefix(ctx, cache.PrefixSold(string(model.KindAccount), req.UserID))
	s.kvc.InvalidatePrefix(ctx, cache.PrefixSold(string(model.KindUniversal), req.UserID))
	if promo != nil {
		s.kvc.Invalidate(ctx, cache.KeyPromo(promo.ActivationCode))
	}
}

// outcomeFor maps domain sentinels to closed outcome variants.
func outcomeFor(err error) (Outcome, int64, bool) {
	var nem *errs.NotEnoughMoneyError
	switch {
	case errors.As(err, &nem):
		return OutcomeNotEnoughMoney, nem.Need, true
	case errors.Is(err, errs.ErrNotEnoughInventory):
		return OutcomeNotEnoughInventory, 0, true
	case errors.Is(err, errs.ErrCategoryNotStorage), errors.Is(err, errs.ErrNotFound):
		return OutcomeCategoryGone, 0, true
	case errors.Is(err, errs.ErrPromoInvalid):
		return OutcomePromoInvalid, 0, true
	case errors.Is(err, errs.ErrPromoAlreadyActivated):
		return OutcomePromoAlreadyActivated, 0, true
	case errors.Is(err, errs.ErrPromoMinNotReached):
		return OutcomePromoMinNotReached, 0, true
	}
	return "", 0, false
}
