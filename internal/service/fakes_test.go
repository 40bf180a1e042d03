package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avkuzmin/teleshop/internal/cache"
	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// In-memory fakes shared by the service tests.

type fakeTx struct {
	db         *fakeDB
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	if t.db != nil {
		t.db.commits++
	}
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
		if t.db != nil {
			t.db.rollbacks++
		}
	}
	return nil
}

type fakeDB struct {
	begun     int
	commits   int
	rollbacks int
	beginErr  error
}

var _ repository.TxBeginner = (*fakeDB)(nil)

func (d *fakeDB) Begin(context.Context) (repository.Tx, error) {
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	d.begun++
	return &fakeTx{db: d}, nil
}

type fakeUsers struct {
	byID map[int64]*model.User

	lockOrder []int64
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func newFakeUsers(users ...model.User) *fakeUsers {
	f := &fakeUsers{byID: map[int64]*model.User{}}
	for i := range users {
		u := users[i]
		f.byID[u.ID] = &u
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if _, ok := f.byID[u.ID]; ok {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byID[u.ID] = &cpy
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) GetByReferralCode(_ context.Context, code string) (*model.User, error) {
	for _, u := range f.byID {
		if u.ReferralCode == code {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) UpdateLanguage(_ context.Context, id int64, lang string) error {
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.Language = lang
	return nil
}

func (f *fakeUsers) SetBlocked(_ context.Context, id int64, blocked bool) error {
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.IsBlocked = blocked
	return nil
}

func (f *fakeUsers) LockForUpdate(_ context.Context, _ repository.Tx, id int64) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	f.lockOrder = append(f.lockOrder, id)
	c := *u
	return &c, nil
}

func (f *fakeUsers) SetBalance(_ context.Context, _ repository.Tx, id int64, balance int64) error {
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.Balance = balance
	return nil
}

func (f *fakeUsers) AddTotalReplenished(_ context.Context, _ repository.Tx, id int64, delta int64) error {
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.TotalReplenished += delta
	return nil
}

type fakeCatalog struct {
	cats      map[int64]*model.Category
	trs       map[int64][]model.CategoryTranslation
	sellable  map[int64]bool
	ancestors map[int64][]int64
	nextID    int64
}

var _ repository.CatalogRepository = (*fakeCatalog)(nil)

func newFakeCatalog(cats ...model.Category) *fakeCatalog {
	f := &fakeCatalog{
		cats:      map[int64]*model.Category{},
		trs:       map[int64][]model.CategoryTranslation{},
		sellable:  map[int64]bool{},
		ancestors: map[int64][]int64{},
	}
	for i := range cats {
		c := cats[i]
		f.cats[c.ID] = &c
		if c.ID >= f.nextID {
			f.nextID = c.ID + 1
		}
	}
	return f
}

func (f *fakeCatalog) Get(_ context.Context, id int64) (*model.Category, error) {
	c, ok := f.cats[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *c
	return &cpy, nil
}

func (f *fakeCatalog) GetForUpdate(ctx context.Context, _ repository.Tx, id int64) (*model.Category, error) {
	return f.Get(ctx, id)
}

func (f *fakeCatalog) ListSiblings(_ context.Context, parentID *int64) ([]model.Category, error) {
	var out []model.Category
	for _, c := range f.cats {
		switch {
		case parentID == nil && c.ParentID == nil:
			out = append(out, *c)
		case parentID != nil && c.ParentID != nil && *c.ParentID == *parentID:
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (f *fakeCatalog) HasChildren(_ context.Context, id int64) (bool, error) {
	for _, c := range f.cats {
		if c.ParentID != nil && *c.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCatalog) MaxSiblingIndex(ctx context.Context, _ repository.Tx, parentID *int64) (int, error) {
	siblings, _ := f.ListSiblings(ctx, parentID)
	return len(siblings) - 1, nil
}

func (f *fakeCatalog) Insert(ctx context.Context, _ repository.Tx, c *model.Category) error {
	if f.nextID == 0 {
		f.nextID = 1
	}
	c.ID = f.nextID
	f.nextID++
	siblings, _ := f.ListSiblings(ctx, c.ParentID)
	c.Index = len(siblings)
	cpy := *c
	f.cats[c.ID] = &cpy
	return nil
}

func (f *fakeCatalog) ApplyUpdate(_ context.Context, _ repository.Tx, id int64, upd model.CategoryUpdate) error {
	c, ok := f.cats[id]
	if !ok {
		return errs.ErrNotFound
	}
	if upd.IsProductStorage != nil {
		c.IsProductStorage = *upd.IsProductStorage
	}
	if upd.ProductKind != nil {
		c.ProductKind = *upd.ProductKind
	}
	if upd.Price != nil {
		c.Price = *upd.Price
	}
	if upd.CostPrice != nil {
		c.CostPrice = *upd.CostPrice
	}
	if upd.ReuseProduct != nil {
		c.ReuseProduct = *upd.ReuseProduct
	}
	if upd.AllowMultiplePurchase != nil {
		c.AllowMultiplePurchase = *upd.AllowMultiplePurchase
	}
	if upd.NumberButtonsInRow != nil {
		c.NumberButtonsInRow = *upd.NumberButtonsInRow
	}
	if upd.Show != nil {
		c.Show = *upd.Show
	}
	if upd.ImageKey != nil {
		c.ImageKey = *upd.ImageKey
	}
	return nil
}

func (f *fakeCatalog) ShiftIndexRange(_ context.Context, _ repository.Tx, parentID *int64, from, to, delta int) error {
	for _, c := range f.cats {
		same := (parentID == nil && c.ParentID == nil) ||
			(parentID != nil && c.ParentID != nil && *c.ParentID == *parentID)
		if same && c.Index >= from && c.Index <= to {
			c.Index += delta
		}
	}
	return nil
}

func (f *fakeCatalog) SetIndex(_ context.Context, _ repository.Tx, id int64, index int) error {
	c, ok := f.cats[id]
	if !ok {
		return errs.ErrNotFound
	}
	c.Index = index
	return nil
}

func (f *fakeCatalog) Delete(_ context.Context, _ repository.Tx, id int64) error {
	if _, ok := f.cats[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.cats, id)
	delete(f.trs, id)
	return nil
}

func (f *fakeCatalog) AddTranslation(_ context.Context, _ repository.Tx, tr *model.CategoryTranslation) error {
	for _, t := range f.trs[tr.CategoryID] {
		if t.Lang == tr.Lang {
			return errs.ErrAlreadyExists
		}
	}
	f.trs[tr.CategoryID] = append(f.trs[tr.CategoryID], *tr)
	return nil
}

func (f *fakeCatalog) UpdateTranslation(_ context.Context, _ repository.Tx, tr *model.CategoryTranslation) error {
	for i, t := range f.trs[tr.CategoryID] {
		if t.Lang == tr.Lang {
			f.trs[tr.CategoryID][i] = *tr
			return nil
		}
	}
	return errs.ErrNotFound
}

func (f *fakeCatalog) DeleteTranslation(_ context.Context, _ repository.Tx, categoryID int64, lang string) error {
	trs := f.trs[categoryID]
	for i, t := range trs {
		if t.Lang == lang {
			f.trs[categoryID] = append(trs[:i], trs[i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}

func (f *fakeCatalog) CountTranslations(_ context.Context, _ repository.Tx, categoryID int64) (int, error) {
	return len(f.trs[categoryID]), nil
}

func (f *fakeCatalog) BestTranslation(_ context.Context, categoryID int64, lang string) (*model.CategoryTranslation, error) {
	trs := f.trs[categoryID]
	if len(trs) == 0 {
		return nil, errs.ErrNotFound
	}
	for i := range trs {
		if trs[i].Lang == lang {
			c := trs[i]
			return &c, nil
		}
	}
	c := trs[0]
	return &c, nil
}

func (f *fakeCatalog) ListTranslations(_ context.Context, categoryID int64) ([]model.CategoryTranslation, error) {
	return append([]model.CategoryTranslation(nil), f.trs[categoryID]...), nil
}

func (f *fakeCatalog) HasSellableInVisibleSubtree(_ context.Context, id int64) (bool, error) {
	return f.sellable[id], nil
}

func (f *fakeCatalog) AncestorIDs(_ context.Context, id int64) ([]int64, error) {
	return f.ancestors[id], nil
}

type fakeAccounts struct {
	forSale  map[int64][]model.AccountStorage // per category, ascending id
	sold     []model.SoldAccount
	invalid  []int64
	nextSold int64
}

var _ repository.AccountRepository = (*fakeAccounts)(nil)

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{forSale: map[int64][]model.AccountStorage{}, nextSold: 1}
}

func (f *fakeAccounts) add(categoryID int64, items ...model.AccountStorage) {
	f.forSale[categoryID] = append(f.forSale[categoryID], items...)
	sort.Slice(f.forSale[categoryID], func(i, j int) bool {
		return f.forSale[categoryID][i].ID < f.forSale[categoryID][j].ID
	})
}

func (f *fakeAccounts) ExistsActive(_ context.Context, serviceType, phoneNumber string, externalID *string) (bool, error) {
	for _, items := range f.forSale {
		for _, it := range items {
			if it.ServiceType != serviceType {
				continue
			}
			if phoneNumber != "" && it.PhoneNumber == phoneNumber {
				return true, nil
			}
			if phoneNumber == "" && externalID != nil && it.ExternalID != nil && *it.ExternalID == *externalID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (f *fakeAccounts) InsertForSale(_ context.Context, _ repository.Tx, categoryID int64, rec *model.AccountRecord) (int64, error) {
	id := int64(1)
	for _, items := range f.forSale {
		for _, it := range items {
			if it.ID >= id {
				id = it.ID + 1
			}
		}
	}
	f.add(categoryID, model.AccountStorage{
		ID:          id,
		Status:      model.StatusForSale,
		ServiceType: rec.ServiceType,
		PhoneNumber: rec.PhoneNumber,
		ExternalID:  rec.ExternalID,
		IsValid:     true,
		IsActive:    true,
	})
	return id, nil
}

func (f *fakeAccounts) CountForSale(_ context.Context, categoryID int64) (int64, error) {
	return int64(len(f.forSale[categoryID])), nil
}

func (f *fakeAccounts) CountForSaleTx(ctx context.Context, _ repository.Tx, categoryID int64) (int64, error) {
	return f.CountForSale(ctx, categoryID)
}

func (f *fakeAccounts) ListForSale(_ context.Context, categoryID int64) ([]model.AccountStorage, error) {
	return append([]model.AccountStorage(nil), f.forSale[categoryID]...), nil
}

func (f *fakeAccounts) ClaimForSale(_ context.Context, _ repository.Tx, categoryID int64, qty int, reuse bool) ([]model.AccountStorage, error) {
	pool := f.forSale[categoryID]
	n := qty
	if n > len(pool) {
		n = len(pool)
	}
	claimed := append([]model.AccountStorage(nil), pool[:n]...)
	if !reuse {
		f.forSale[categoryID] = append([]model.AccountStorage(nil), pool[n:]...)
		for i := range claimed {
			claimed[i].Status = model.StatusBought
		}
	}
	return claimed, nil
}

func (f *fakeAccounts) InsertSold(_ context.Context, _ repository.Tx, storageID, ownerID int64, trs []model.CategoryTranslation) (int64, error) {
	id := f.nextSold
	f.nextSold++
	name := ""
	if len(trs) > 0 {
		name = trs[0].Name
	}
	f.sold = append(f.sold, model.SoldAccount{ID: id, AccountStorageID: storageID, OwnerID: ownerID, Name: name})
	return id, nil
}

func (f *fakeAccounts) MarkInvalid(_ context.Context, _ repository.Tx, storageID int64) error {
	f.invalid = append(f.invalid, storageID)
	return nil
}

func (f *fakeAccounts) SetValidity(context.Context, int64, bool) error { return nil }

func (f *fakeAccounts) ListSoldByOwner(_ context.Context, ownerID int64, _ string, page, size int) ([]model.SoldAccount, error) {
	var owned []model.SoldAccount
	for _, s := range f.sold {
		if s.OwnerID == ownerID {
			owned = append(owned, s)
		}
	}
	lo := (page - 1) * size
	if lo >= len(owned) {
		return nil, nil
	}
	hi := lo + size
	if hi > len(owned) {
		hi = len(owned)
	}
	return owned[lo:hi], nil
}

func (f *fakeAccounts) CountSoldByOwner(_ context.Context, ownerID int64) (int64, error) {
	var n int64
	for _, s := range f.sold {
		if s.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (f *fakeAccounts) GetSold(_ context.Context, soldID int64, _ string) (*model.SoldAccount, error) {
	for i := range f.sold {
		if f.sold[i].ID == soldID {
			c := f.sold[i]
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeAccounts) DeleteSold(_ context.Context, soldID int64) error {
	for i := range f.sold {
		if f.sold[i].ID == soldID {
			f.sold = append(f.sold[:i], f.sold[i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}

func (f *fakeAccounts) PurgeCategory(_ context.Context, categoryID int64) ([]string, error) {
	var paths []string
	for _, it := range f.forSale[categoryID] {
		if it.FilePath != nil {
			paths = append(paths, *it.FilePath)
		}
	}
	delete(f.forSale, categoryID)
	return paths, nil
}

type fakeUniversals struct {
	forSale  map[int64][]model.UniversalStorage
	sold     []model.SoldUniversal
	nextSold int64
}

var _ repository.UniversalRepository = (*fakeUniversals)(nil)

func newFakeUniversals() *fakeUniversals {
	return &fakeUniversals{forSale: map[int64][]model.UniversalStorage{}, nextSold: 1}
}

func (f *fakeUniversals) InsertForSale(_ context.Context, _ repository.Tx, categoryID int64, rec *model.UniversalRecord) (int64, error) {
	id := int64(len(f.forSale[categoryID]) + 1)
	f.forSale[categoryID] = append(f.forSale[categoryID], model.UniversalStorage{
		ID:              id,
		MediaType:       rec.MediaType,
		ExternalMediaID: rec.ExternalMediaID,
	})
	return id, nil
}

func (f *fakeUniversals) CountForSale(_ context.Context, categoryID int64) (int64, error) {
	return int64(len(f.forSale[categoryID])), nil
}

func (f *fakeUniversals) CountForSaleTx(ctx context.Context, _ repository.Tx, categoryID int64) (int64, error) {
	return f.CountForSale(ctx, categoryID)
}

func (f *fakeUniversals) ClaimForSale(_ context.Context, _ repository.Tx, categoryID int64, qty int, reuse bool) ([]model.UniversalStorage, error) {
	pool := f.forSale[categoryID]
	n := qty
	if n > len(pool) {
		n = len(pool)
	}
	claimed := append([]model.UniversalStorage(nil), pool[:n]...)
	if !reuse {
		f.forSale[categoryID] = append([]model.UniversalStorage(nil), pool[n:]...)
	}
	return claimed, nil
}

func (f *fakeUniversals) InsertSold(_ context.Context, _ repository.Tx, storageID, ownerID int64) (int64, error) {
	id := f.nextSold
	f.nextSold++
	f.sold = append(f.sold, model.SoldUniversal{ID: id, UniversalStorageID: storageID, OwnerID: ownerID})
	return id, nil
}

func (f *fakeUniversals) ListSoldByOwner(_ context.Context, ownerID int64, page, size int) ([]model.SoldUniversal, error) {
	var owned []model.SoldUniversal
	for _, s := range f.sold {
		if s.OwnerID == ownerID {
			owned = append(owned, s)
		}
	}
	lo := (page - 1) * size
	if lo >= len(owned) {
		return nil, nil
	}
	hi := lo + size
	if hi > len(owned) {
		hi = len(owned)
	}
	return owned[lo:hi], nil
}

func (f *fakeUniversals) CountSoldByOwner(_ context.Context, ownerID int64) (int64, error) {
	var n int64
	for _, s := range f.sold {
		if s.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (f *fakeUniversals) GetSold(_ context.Context, soldID int64) (*model.SoldUniversal, error) {
	for i := range f.sold {
		if f.sold[i].ID == soldID {
			c := f.sold[i]
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUniversals) GetStorage(context.Context, int64) (*model.UniversalStorage, error) {
	return nil, errs.ErrNotFound
}

func (f *fakeUniversals) PurgeCategory(_ context.Context, categoryID int64) ([]string, error) {
	delete(f.forSale, categoryID)
	return nil, nil
}

type fakePromos struct {
	mu          sync.Mutex
	byID        map[int64]*model.PromoCode
	activations map[string]bool
	nextID      int64
}

var _ repository.PromoRepository = (*fakePromos)(nil)

func newFakePromos(promos ...model.PromoCode) *fakePromos {
	f := &fakePromos{byID: map[int64]*model.PromoCode{}, activations: map[string]bool{}, nextID: 1}
	for i := range promos {
		p := promos[i]
		f.byID[p.ID] = &p
		if p.ID >= f.nextID {
			f.nextID = p.ID + 1
		}
	}
	return f
}

func (f *fakePromos) Create(_ context.Context, p *model.PromoCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = f.nextID
	f.nextID++
	cpy := *p
	f.byID[p.ID] = &cpy
	return nil
}

func (f *fakePromos) GetByCode(_ context.Context, code string) (*model.PromoCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.ActivationCode == code {
			c := *p
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakePromos) GetForUpdate(_ context.Context, _ repository.Tx, id int64) (*model.PromoCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (f *fakePromos) AlreadyActivated(_ context.Context, promoID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activations[fmt.Sprintf("%d:%d", promoID, userID)], nil
}

func (f *fakePromos) RegisterActivation(_ context.Context, _ repository.Tx, promoID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d:%d", promoID, userID)
	if f.activations[key] {
		return errs.ErrPromoAlreadyActivated
	}
	p, ok := f.byID[promoID]
	if !ok {
		return errs.ErrNotFound
	}
	f.activations[key] = true
	p.ActivatedCounter++
	if p.NumberOfActivations > 0 && p.ActivatedCounter >= p.NumberOfActivations {
		p.IsValid = false
	}
	return nil
}

func (f *fakePromos) Invalidate(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	p.IsValid = false
	return nil
}

type fakeWalletRepo struct {
	entries []model.WalletTransaction
}

var _ repository.WalletRepository = (*fakeWalletRepo)(nil)

func (f *fakeWalletRepo) Append(_ context.Context, _ repository.Tx, wt *model.WalletTransaction) error {
	wt.ID = int64(len(f.entries) + 1)
	wt.CreatedAt = time.Now()
	f.entries = append(f.entries, *wt)
	return nil
}

func (f *fakeWalletRepo) ListByUser(_ context.Context, userID int64, page, size int) ([]model.WalletTransaction, error) {
	var owned []model.WalletTransaction
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].UserID == userID {
			owned = append(owned, f.entries[i])
		}
	}
	lo := (page - 1) * size
	if lo >= len(owned) {
		return nil, nil
	}
	hi := lo + size
	if hi > len(owned) {
		hi = len(owned)
	}
	return owned[lo:hi], nil
}

type fakeReplenishments struct {
	byID   map[int64]*model.Replenishment
	nextID int64
}

var _ repository.ReplenishmentRepository = (*fakeReplenishments)(nil)

func newFakeReplenishments(rps ...model.Replenishment) *fakeReplenishments {
	f := &fakeReplenishments{byID: map[int64]*model.Replenishment{}, nextID: 1}
	for i := range rps {
		rp := rps[i]
		f.byID[rp.ID] = &rp
		if rp.ID >= f.nextID {
			f.nextID = rp.ID + 1
		}
	}
	return f
}

func (f *fakeReplenishments) Create(_ context.Context, rp *model.Replenishment) error {
	rp.ID = f.nextID
	f.nextID++
	rp.CreatedAt = time.Now()
	cpy := *rp
	f.byID[rp.ID] = &cpy
	return nil
}

func (f *fakeReplenishments) Get(_ context.Context, id int64) (*model.Replenishment, error) {
	rp, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *rp
	return &c, nil
}

func (f *fakeReplenishments) GetForUpdate(ctx context.Context, _ repository.Tx, id int64) (*model.Replenishment, error) {
	return f.Get(ctx, id)
}

func (f *fakeReplenishments) SetStatus(_ context.Context, _ repository.Tx, id int64, status model.ReplenishmentStatus) error {
	rp, ok := f.byID[id]
	if !ok || rp.Status != model.ReplenishProcessing {
		return errs.ErrNotFound
	}
	rp.Status = status
	return nil
}

func (f *fakeReplenishments) MarkError(_ context.Context, id int64) error {
	rp, ok := f.byID[id]
	if ok && rp.Status == model.ReplenishProcessing {
		rp.Status = model.ReplenishError
	}
	return nil
}

func (f *fakeReplenishments) ExpireStale(context.Context) (int64, error) {
	var n int64
	now := time.Now()
	for _, rp := range f.byID {
		if rp.Status == model.ReplenishProcessing && rp.ExpiresAt != nil && rp.ExpiresAt.Before(now) {
			rp.Status = model.ReplenishError
			n++
		}
	}
	return n, nil
}

type fakeReferrals struct {
	levels   []model.ReferralLevel
	accruals []model.ReferralAccrual
}

var _ repository.ReferralRepository = (*fakeReferrals)(nil)

func (f *fakeReferrals) ListLevels(context.Context) ([]model.ReferralLevel, error) {
	return append([]model.ReferralLevel(nil), f.levels...), nil
}

func (f *fakeReferrals) LevelFor(_ context.Context, total int64) (*model.ReferralLevel, error) {
	var best *model.ReferralLevel
	for i := range f.levels {
		if f.levels[i].AmountOfAchievement <= total {
			if best == nil || f.levels[i].Level > best.Level {
				best = &f.levels[i]
			}
		}
	}
	if best == nil {
		return nil, errs.ErrNotFound
	}
	c := *best
	return &c, nil
}

func (f *fakeReferrals) InsertAccrual(_ context.Context, _ repository.Tx, a *model.ReferralAccrual) error {
	a.ID = int64(len(f.accruals) + 1)
	f.accruals = append(f.accruals, *a)
	return nil
}

// memCache is an in-memory cache.Cache for exercising the Quiet wrapper.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ cache.Cache = (*memCache)(nil)

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return b, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memCache) DeleteByPrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.data, k)
		}
	}
	return nil
}

func newQuiet() *cache.Quiet { return cache.NewQuiet(newMemCache(), time.Minute, nil) }

// recordSink captures emitted events.
type recordSink struct {
	mu        sync.Mutex
	completed []model.ReplenishmentCompleted
	failed    []model.ReplenishmentFailed
	promos    []model.PromoActivated
}

var _ EventSink = (*recordSink)(nil)

func (s *recordSink) ReplenishmentCompleted(_ context.Context, ev model.ReplenishmentCompleted) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, ev)
}

func (s *recordSink) ReplenishmentFailed(_ context.Context, ev model.ReplenishmentFailed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, ev)
}

func (s *recordSink) PromoActivated(_ context.Context, ev model.PromoActivated) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promos = append(s.promos, ev)
}
