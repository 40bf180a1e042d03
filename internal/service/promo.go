package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avkuzmin/teleshop/internal/cache"
	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
	"github.com/avkuzmin/teleshop/internal/repository"
)

// PromoService validates and prices promo codes. Activation recording happens
// inside the purchase transaction via the repository.
type PromoService struct {
	promos repository.PromoRepository
	kvc    *cache.Quiet
	now    func() time.Time
}

// NewPromoService constructs PromoService.
func NewPromoService(promos repository.PromoRepository, kvc *cache.Quiet) *PromoService {
	return &PromoService{promos: promos, kvc: kvc, now: time.Now}
}

// Create registers a new promo code. Exactly one of Amount and
// DiscountPercentage must be set.
func (s *PromoService) Create(ctx context.Context, p *model.PromoCode) error {
	if p.ActivationCode == "" {
		return errors.New("validation: empty activation code")
	}
	if (p.Amount == nil) == (p.DiscountPercentage == nil) {
		return errors.New("validation: exactly one of amount/discount_percentage required")
	}
	if p.Amount != nil && *p.Amount <= 0 {
		return fmt.Errorf("validation: non-positive promo amount %d", *p.Amount)
	}
	if p.DiscountPercentage != nil && (*p.DiscountPercentage < 0 || *p.DiscountPercentage > 100) {
		return fmt.Errorf("validation: discount percentage %d out of [0,100]", *p.DiscountPercentage)
	}
	p.IsValid = true
	return s.promos.Create(ctx, p)
}

// GetByCode returns the promo for an exact, case-sensitive code, but only
// while it is applicable; expired or exhausted codes map to ErrPromoInvalid.
func (s *PromoService) GetByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	key := cache.KeyPromo(code)
	var p model.PromoCode
	if !s.kvc.GetInto(ctx, key, &p) {
		got, err := s.promos.GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return nil, errs.ErrPromoInvalid
			}
			return nil, err
		}
		p = *got
		s.kvc.Put(ctx, key, &p)
	}
	if !p.Applicable(s.now()) {
		return nil, errs.ErrPromoInvalid
	}
	return &p, nil
}

// AlreadyActivated reports whether the user has consumed the promo.
func (s *PromoService) AlreadyActivated(ctx context.Context, promoID, userID int64) (bool, error) {
	return s.promos.AlreadyActivated(ctx, promoID, userID)
}

// PriceAfter computes the discount a promo yields on an order total.
// Inapplicable promos fail with ErrPromoInvalid.
func (s *PromoService) PriceAfter(total int64, p *model.PromoCode) (discount, final int64, err error) {
	if p == nil || !p.Applicable(s.now()) {
		return 0, total, errs.ErrPromoInvalid
	}
	discount = p.Discount(total)
	final = total - discount
	if final < 0 {
		final = 0
	}
	return discount, final, nil
}

// Invalidate turns a promo off and drops its read key.
func (s *PromoService) Invalidate(ctx context.Context, id int64, code string) error {
	if err := s.promos.Invalidate(ctx, id); err != nil {
		return err
	}
	s.kvc.Invalidate(ctx, cache.KeyPromo(code))
	return nil
}
