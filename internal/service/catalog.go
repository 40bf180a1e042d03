package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/avkuzmin/teleshop/internal/cache"
	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// CatalogService manages the category tree and serves its cached projections.
// Tree mutations run inside one serializable unit of work holding a row lock
// on the node (and on the parent for inserts), so sibling indices stay dense
// and every category keeps at least one translation.
type CatalogService struct {
	db         repository.TxBeginner
	catalog    repository.CatalogRepository
	accounts   repository.AccountRepository
	universals repository.UniversalRepository
	kvc        *cache.Quiet
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(db repository.TxBeginner, catalog repository.CatalogRepository,
	accounts repository.AccountRepository, universals repository.UniversalRepository,
	kvc *cache.Quiet) *CatalogService {
	return &CatalogService{db: db, catalog: catalog, accounts: accounts, universals: universals, kvc: kvc}
}

func validateStorageFields(price, costPrice int64, buttons int) error {
	if price < 0 {
		return fmt.Errorf("validation: negative price %d", price)
	}
	if costPrice < 0 {
		return fmt.Errorf("validation: negative cost price %d", costPrice)
	}
	if buttons < 1 || buttons > 8 {
		return fmt.Errorf("validation: number_buttons_in_row %d out of [1,8]", buttons)
	}
	return nil
}

// AddCategory appends a new sibling under the parent, writes its first
// translation, and materializes a placeholder image entry.
func (s *CatalogService) AddCategory(ctx context.Context, nc model.NewCategory) (*model.Category, error) {
	if nc.Name == "" || nc.Lang == "" {
		return nil, fmt.Errorf("validation: empty name/lang")
	}
	if nc.NumberButtonsInRow == 0 {
		nc.NumberButtonsInRow = 1
	}
	if err := validateStorageFields(nc.Price, nc.CostPrice, nc.NumberButtonsInRow); err != nil {
		return nil, err
	}
	if nc.IsProductStorage && nc.ProductKind != model.KindAccount && nc.ProductKind != model.KindUniversal {
		return nil, fmt.Errorf("validation: unknown product kind %q", nc.ProductKind)
	}

	imageKey, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	c := &model.Category{
		ParentID:              nc.ParentID,
		IsProductStorage:      nc.IsProductStorage,
		ProductKind:           nc.ProductKind,
		Price:                 nc.Price,
		CostPrice:             nc.CostPrice,
		ReuseProduct:          nc.ReuseProduct,
		AllowMultiplePurchase: nc.AllowMultiplePurchase,
		NumberButtonsInRow:    nc.NumberButtonsInRow,
		Show:                  nc.Show,
		ImageKey:              imageKey.String(),
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	// Locking the parent serializes sibling appends under it.
	if nc.ParentID != nil {
		parent, perr := s.catalog.GetForUpdate(ctx, tx, *nc.ParentID)
		if perr != nil {
			_ = tx.Rollback(ctx)
			return nil, perr
		}
		if parent.IsProductStorage {
			_ = tx.Rollback(ctx)
			return nil, errs.ErrCategoryIsStorage
		}
	}
	if err := s.catalog.Insert(ctx, tx, c); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	tr := &model.CategoryTranslation{CategoryID: c.ID, Lang: nc.Lang, Name: nc.Name, Description: nc.Description}
	if err := s.catalog.AddTranslation(ctx, tx, tr); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.kvc.Put(ctx, "img:"+c.ImageKey, []byte{})
	s.invalidateSiblingLists(ctx, nc.ParentID)
	return c, nil
}

// UpdateCategory applies field changes, reordering siblings when the index
// moves and guarding the storage/children exclusivity invariant.
func (s *CatalogService) UpdateCategory(ctx context.Context, id int64, upd model.CategoryUpdate) (err error) {
	if upd.Price != nil && *upd.Price < 0 {
		return fmt.Errorf("validation: negative price %d", *upd.Price)
	}
	if upd.CostPrice != nil && *upd.CostPrice < 0 {
		return fmt.Errorf("validation: negative cost price %d", *upd.CostPrice)
	}
	if upd.NumberButtonsInRow != nil && (*upd.NumberButtonsInRow < 1 || *upd.NumberButtonsInRow > 8) {
		return fmt.Errorf("validation: number_buttons_in_row %d out of [1,8]", *upd.NumberButtonsInRow)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	cur, err := s.catalog.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}

	if upd.IsProductStorage != nil && *upd.IsProductStorage != cur.IsProductStorage {
		if *upd.IsProductStorage {
			hasChildren, herr := s.catalog.HasChildren(ctx, id)
			if herr != nil {
				err = herr
				return err
			}
			if hasChildren {
				err = errs.ErrCategoryHasSubcategories
				return err
			}
		} else {
			n, cerr := s.storedItemCountTx(ctx, tx, cur)
			if cerr != nil {
				err = cerr
				return err
			}
			if n > 0 {
				err = errs.ErrCategoryStoresProduct
				return err
			}
		}
	}

	if upd.Index != nil && *upd.Index != cur.Index {
		if err = s.reorder(ctx, tx, cur, *upd.Index); err != nil {
			return err
		}
	}
	if err = s.catalog.ApplyUpdate(ctx, tx, id, upd); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return err
	}

	s.invalidateCategory(ctx, cur)
	return nil
}

// reorder moves the node to a new sibling ordinal, shifting the intermediate
// contiguous range so indices stay dense.
func (s *CatalogService) reorder(ctx context.Context, tx repository.Tx, cur *model.Category, newIndex int) error {
	max, err := s.catalog.MaxSiblingIndex(ctx, tx, cur.ParentID)
	if err != nil {
		return err
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > max {
		newIndex = max
	}
	if newIndex == cur.Index {
		return nil
	}
	if newIndex > cur.Index {
		if err := s.catalog.ShiftIndexRange(ctx, tx, cur.ParentID, cur.Index+1, newIndex, -1); err != nil {
			return err
		}
	} else {
		if err := s.catalog.ShiftIndexRange(ctx, tx, cur.ParentID, newIndex, cur.Index-1, +1); err != nil {
			return err
		}
	}
	return s.catalog.SetIndex(ctx, tx, cur.ID, newIndex)
}

// DeleteCategory removes an empty leaf and closes the sibling index gap.
func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	cur, err := s.catalog.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if cur.IsProductStorage {
		n, cerr := s.storedItemCountTx(ctx, tx, cur)
		if cerr != nil {
			err = cerr
			return err
		}
		if n > 0 {
			err = errs.ErrCategoryStoresProduct
			return err
		}
	} else {
		hasChildren, herr := s.catalog.HasChildren(ctx, id)
		if herr != nil {
			err = herr
			return err
		}
		if hasChildren {
			err = errs.ErrCategoryHasSubcategories
			return err
		}
	}

	if err = s.catalog.Delete(ctx, tx, id); err != nil {
		return err
	}
	if err = s.catalog.ShiftIndexRange(ctx, tx, cur.ParentID, cur.Index+1, 1<<30, -1); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return err
	}

	s.kvc.Invalidate(ctx, "img:"+cur.ImageKey)
	s.invalidateCategory(ctx, cur)
	return nil
}

// AddTranslation adds one localized row for a category.
func (s *CatalogService) AddTranslation(ctx context.Context, categoryID int64, lang, name string, description *string) (err error) {
	if lang == "" || name == "" {
		return fmt.Errorf("validation: empty lang/name")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = s.catalog.GetForUpdate(ctx, tx, categoryID); err != nil {
		return err
	}
	tr := &model.CategoryTranslation{CategoryID: categoryID, Lang: lang, Name: name, Description: description}
	if err = s.catalog.AddTranslation(ctx, tx, tr); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return err
	}

	s.invalidateCategoryByID(ctx, categoryID)
	return nil
}

// UpdateTranslation rewrites one localized row.
func (s *CatalogService) UpdateTranslation(ctx context.Context, categoryID int64, lang, name string, description *string) (err error) {
	if lang == "" || name == "" {
		return fmt.Errorf("validation: empty lang/name")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tr := &model.CategoryTranslation{CategoryID: categoryID, Lang: lang, Name: name, Description: description}
	if err = s.catalog.UpdateTranslation(ctx, tx, tr); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return err
	}

	s.invalidateCategoryByID(ctx, categoryID)
	return nil
}

// DeleteTranslation removes one localized row; the last one is protected.
// The category lock serializes concurrent deletes so the count guard holds.
func (s *CatalogService) DeleteTranslation(ctx context.Context, categoryID int64, lang string) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = s.catalog.GetForUpdate(ctx, tx, categoryID); err != nil {
		return err
	}
	n, err := s.catalog.CountTranslations(ctx, tx, categoryID)
	if err != nil {
		return err
	}
	if n <= 1 {
		err = errs.ErrLastTranslation
		return err
	}
	if err = s.catalog.DeleteTranslation(ctx, tx, categoryID, lang); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return err
	}

	s.invalidateCategoryByID(ctx, categoryID)
	return nil
}

// GetCategories returns visible siblings of parent ordered by index. A node is
// listed only if something in its show=true subtree is actually sellable.
func (s *CatalogService) GetCategories(ctx context.Context, parentID *int64, lang string) ([]model.CategoryView, error) {
	key := cache.KeyMainCategories(lang)
	if parentID != nil {
		key = cache.KeySubcategories(*parentID, lang)
	}
	var cached []model.CategoryView
	if s.kvc.GetInto(ctx, key, &cached) {
		return cached, nil
	}

	siblings, err := s.catalog.ListSiblings(ctx, parentID)
	if err != nil {
		return nil, err
	}
	views := make([]model.CategoryView, 0, len(siblings))
	for i := range siblings {
		c := &siblings[i]
		if !c.Show {
			continue
		}
		sellable, err := s.catalog.HasSellableInVisibleSubtree(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if !sellable {
			continue
		}
		v, err := s.view(ctx, c, lang)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}

	s.kvc.Put(ctx, key, views)
	return views, nil
}

// GetCategory returns one node with its availability annotation and the
// best-matching translation.
func (s *CatalogService) GetCategory(ctx context.Context, id int64, lang string) (*model.CategoryView, error) {
	key := cache.KeyCategory(id, lang)
	var cached model.CategoryView
	if s.kvc.GetInto(ctx, key, &cached) {
		return &cached, nil
	}

	c, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := s.view(ctx, c, lang)
	if err != nil {
		return nil, err
	}

	s.kvc.Put(ctx, key, v)
	return v, nil
}

// view projects a category row into its denormalized cached form.
func (s *CatalogService) view(ctx context.Context, c *model.Category, lang string) (*model.CategoryView, error) {
	v := &model.CategoryView{Category: *c}
	tr, err := s.catalog.BestTranslation(ctx, c.ID, lang)
	if err == nil {
		v.Name, v.Description = tr.Name, tr.Description
	} else if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	if c.IsProductStorage {
		n, err := s.storedItemCount(ctx, c)
		if err != nil {
			return nil, err
		}
		v.QuantityAvailable = n
	}
	return v, nil
}

func (s *CatalogService) storedItemCount(ctx context.Context, c *model.Category) (int64, error) {
	switch c.ProductKind {
	case model.KindUniversal:
		return s.universals.CountForSale(ctx, c.ID)
	default:
		return s.accounts.CountForSale(ctx, c.ID)
	}
}

// storedItemCountTx is storedItemCount with a fresh read inside the tx.
func (s *CatalogService) storedItemCountTx(ctx context.Context, tx repository.Tx, c *model.Category) (int64, error) {
	switch c.ProductKind {
	case model.KindUniversal:
		return s.universals.CountForSaleTx(ctx, tx, c.ID)
	default:
		return s.accounts.CountForSaleTx(ctx, tx, c.ID)
	}
}

// invalidateSiblingLists drops the sibling list the node appears in.
func (s *CatalogService) invalidateSiblingLists(ctx context.Context, parentID *int64) {
	if parentID == nil {
		s.kvc.InvalidatePrefix(ctx, cache.PrefixMainCategories())
		return
	}
	s.kvc.InvalidatePrefix(ctx, cache.PrefixSubcategories(*parentID))
}

func (s *CatalogService) invalidateCategoryByID(ctx context.Context, id int64) {
	c, err := s.catalog.Get(ctx, id)
	if err != nil {
		// The node may be gone; drop what we can address.
		s.kvc.InvalidatePrefix(ctx, cache.PrefixCategory(id))
		return
	}
	s.invalidateCategory(ctx, c)
}

// invalidateCategory drops every key that could reflect a change to the node:
// its own views, the sibling list it appears in, and every ancestor list whose
// "has sellable items" bit might have flipped.
func (s *CatalogService) invalidateCategory(ctx context.Context, c *model.Category) {
	s.kvc.InvalidatePrefix(ctx, cache.PrefixCategory(c.ID))
	s.invalidateSiblingLists(ctx, c.ParentID)

	ancestors, err := s.catalog.AncestorIDs(ctx, c.ID)
	if err != nil {
		// Ancestors unreachable; the TTL bounds staleness.
		return
	}
	for _, anc := range ancestors {
		s.kvc.InvalidatePrefix(ctx, cache.PrefixCategory(anc))
		s.kvc.InvalidatePrefix(ctx, cache.PrefixSubcategories(anc))
	}
	s.kvc.InvalidatePrefix(ctx, cache.PrefixMainCategories())
}
