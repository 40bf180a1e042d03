package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/avkuzmin/teleshop/internal/cache"
	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// InventoryService handles bulk import, sold-item reads, and admin lifecycle
// transitions for both inventory kinds.
type InventoryService struct {
	db         repository.TxBeginner
	catalog    repository.CatalogRepository
	accounts   repository.AccountRepository
	universals repository.UniversalRepository
	kvc        *cache.Quiet
	pageSize   int
	log        *zap.Logger
}

// NewInventoryService constructs InventoryService.
func NewInventoryService(db repository.TxBeginner, catalog repository.CatalogRepository,
	accounts repository.AccountRepository, universals repository.UniversalRepository,
	kvc *cache.Quiet, pageSize int, log *zap.Logger) *InventoryService {
	if pageSize <= 0 {
		pageSize = 6
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &InventoryService{db: db, catalog: catalog, accounts: accounts,
		universals: universals, kvc: kvc, pageSize: pageSize, log: log}
}

// validE164 accepts a canonical E.164 number: '+' then 7..15 digits.
func validE164(phone string) bool {
	if len(phone) < 8 || len(phone) > 16 || phone[0] != '+' {
		return false
	}
	for _, r := range phone[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// BulkAddAccounts imports account records into a storage category, skipping
// in-DB duplicates by phone number (or external id for file-less services).
// Survivors are inserted atomically; per-record outcomes are summarized.
func (s *InventoryService) BulkAddAccounts(ctx context.Context, categoryID int64, recs []model.AccountRecord) (rep model.BulkAddReport, err error) {
	cat, err := s.catalog.Get(ctx, categoryID)
	if err != nil {
		return rep, err
	}
	if !cat.IsProductStorage {
		return rep, errs.ErrCategoryNotStorage
	}
	if cat.ProductKind != model.KindAccount {
		return rep, errs.ErrKindMismatch
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return rep, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	seen := make(map[string]struct{}, len(recs))
	for i := range recs {
		rec := &recs[i]
		rec.PhoneNumber = strings.TrimSpace(rec.PhoneNumber)
		if rec.PhoneNumber != "" && !validE164(rec.PhoneNumber) {
			rep.Errors++
			continue
		}
		if rec.ServiceType == "" || len(rec.WrappedDEK) == 0 {
			rep.Errors++
			continue
		}

		dupKey := rec.ServiceType + "\x00" + rec.PhoneNumber
		if rec.PhoneNumber == "" && rec.ExternalID != nil {
			dupKey = rec.ServiceType + "\x00ext:" + *rec.ExternalID
		}
		if _, ok := seen[dupKey]; ok {
			rep.Duplicates++
			continue
		}
		dup, dupErr := s.accounts.ExistsActive(ctx, rec.ServiceType, rec.PhoneNumber, rec.ExternalID)
		if dupErr != nil {
			return rep, dupErr
		}
		if dup {
			rep.Duplicates++
			continue
		}

		if _, insErr := s.accounts.InsertForSale(ctx, tx, categoryID, rec); insErr != nil {
			return rep, insErr
		}
		seen[dupKey] = struct{}{}
		rep.Added++
	}
	if err = tx.Commit(ctx); err != nil {
		return rep, err
	}

	// Invalidation is gated on the commit so readers cannot re-fill the
	// cache from pre-commit state.
	s.invalidateAvailability(ctx, cat)
	return rep, nil
}

// BulkAddUniversal imports universal records into a storage category.
func (s *InventoryService) BulkAddUniversal(ctx context.Context, categoryID int64, recs []model.UniversalRecord) (rep model.BulkAddReport, err error) {
	cat, err := s.catalog.Get(ctx, categoryID)
	if err != nil {
		return rep, err
	}
	if !cat.IsProductStorage {
		return rep, errs.ErrCategoryNotStorage
	}
	if cat.ProductKind != model.KindUniversal {
		return rep, errs.ErrKindMismatch
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return rep, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for i := range recs {
		rec := &recs[i]
		if rec.ExternalMediaID == "" && rec.FilePath == nil {
			rep.Errors++
			continue
		}
		if _, insErr := s.universals.InsertForSale(ctx, tx, categoryID, rec); insErr != nil {
			return rep, insErr
		}
		rep.Added++
	}
	if err = tx.Commit(ctx); err != nil {
		return rep, err
	}

	s.invalidateAvailability(ctx, cat)
	return rep, nil
}

// ListForSale returns the sellable account items of a category.
func (s *InventoryService) ListForSale(ctx context.Context, categoryID int64) ([]model.AccountStorage, error) {
	return s.accounts.ListForSale(ctx, categoryID)
}

// CountForSale returns the sellable item count of a category, kind-dispatched.
func (s *InventoryService) CountForSale(ctx context.Context, categoryID int64) (int64, error) {
	cat, err := s.catalog.Get(ctx, categoryID)
	if err != nil {
		return 0, err
	}
	if cat.ProductKind == model.KindUniversal {
		return s.universals.CountForSale(ctx, categoryID)
	}
	return s.accounts.CountForSale(ctx, categoryID)
}

// ListSoldAccounts pages a user's purchased account items; page is 1-based.
func (s *InventoryService) ListSoldAccounts(ctx context.Context, ownerID int64, lang string, page int) ([]model.SoldAccount, error) {
	if page < 1 {
		return nil, fmt.Errorf("validation: bad page %d", page)
	}
	key := cache.KeySoldPage(string(model.KindAccount), ownerID, lang, page, s.pageSize)
	var cached []model.SoldAccount
	if s.kvc.GetInto(ctx, key, &cached) {
		return cached, nil
	}
	out, err := s.accounts.ListSoldByOwner(ctx, ownerID, lang, page, s.pageSize)
	if err != nil {
		return nil, err
	}
	s.kvc.Put(ctx, key, out)
	return out, nil
}

// CountSoldAccounts returns the user's total purchased account items.
func (s *InventoryService) CountSoldAccounts(ctx context.Context, ownerID int64) (int64, error) {
	return s.accounts.CountSoldByOwner(ctx, ownerID)
}

// GetSoldAccount loads one purchased item with its translation.
func (s *InventoryService) GetSoldAccount(ctx context.Context, soldID int64, lang string) (*model.SoldAccount, error) {
	return s.accounts.GetSold(ctx, soldID, lang)
}

// ListSoldUniversal pages a user's purchased universal items; page is 1-based.
func (s *InventoryService) ListSoldUniversal(ctx context.Context, ownerID int64, page int) ([]model.SoldUniversal, error) {
	if page < 1 {
		return nil, fmt.Errorf("validation: bad page %d", page)
	}
	key := cache.KeySoldPage(string(model.KindUniversal), ownerID, "", page, s.pageSize)
	var cached []model.SoldUniversal
	if s.kvc.GetInto(ctx, key, &cached) {
		return cached, nil
	}
	out, err := s.universals.ListSoldByOwner(ctx, ownerID, page, s.pageSize)
	if err != nil {
		return nil, err
	}
	s.kvc.Put(ctx, key, out)
	return out, nil
}

// DeleteSoldAccount moves a purchased item to the DELETED state on the owner's
// request, keeping the storage row for audit.
func (s *InventoryService) DeleteSoldAccount(ctx context.Context, soldID int64, lang string) error {
	sold, err := s.accounts.GetSold(ctx, soldID, lang)
	if err != nil {
		return err
	}
	if err := s.accounts.DeleteSold(ctx, soldID); err != nil {
		return err
	}
	s.kvc.InvalidatePrefix(ctx, cache.PrefixSold(string(model.KindAccount), sold.OwnerID))
	return nil
}

// SetValidity records a probe verdict for an account storage row.
func (s *InventoryService) SetValidity(ctx context.Context, storageID int64, valid bool) error {
	return s.accounts.SetValidity(ctx, storageID, valid)
}

// PurgeCategory hard-removes every unsold item of a storage category and
// returns the blob paths freed for the caller to unlink.
func (s *InventoryService) PurgeCategory(ctx context.Context, categoryID int64) ([]string, error) {
	cat, err := s.catalog.Get(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if !cat.IsProductStorage {
		return nil, errs.ErrCategoryNotStorage
	}

	var paths []string
	if cat.ProductKind == model.KindUniversal {
		paths, err = s.universals.PurgeCategory(ctx, categoryID)
	} else {
		paths, err = s.accounts.PurgeCategory(ctx, categoryID)
	}
	if err != nil {
		return nil, err
	}

	s.invalidateAvailability(ctx, cat)
	return paths, nil
}

// invalidateAvailability drops every cached view whose quantity annotation or
// visibility bit the inventory change may have flipped.
func (s *InventoryService) invalidateAvailability(ctx context.Context, cat *model.Category) {
	s.kvc.InvalidatePrefix(ctx, cache.PrefixCategory(cat.ID))
	if cat.ParentID == nil {
		s.kvc.InvalidatePrefix(ctx, cache.PrefixMainCategories())
	} else {
		s.kvc.InvalidatePrefix(ctx, cache.PrefixSubcategories(*cat.ParentID))
	}
	ancestors, err := s.catalog.AncestorIDs(ctx, cat.ID)
	if err != nil {
		s.log.Warn("ancestor invalidation skipped", zap.Int64("category", cat.ID), zap.Error(err))
		return
	}
	for _, anc := range ancestors {
		s.kvc.InvalidatePrefix(ctx, cache.PrefixCategory(anc))
		s.kvc.InvalidatePrefix(ctx, cache.PrefixSubcategories(anc))
	}
	s.kvc.InvalidatePrefix(ctx, cache.PrefixMainCategories())
}
