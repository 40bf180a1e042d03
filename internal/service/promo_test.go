package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avkuzmin/teleshop/internal/errs"
	"github.com/avkuzmin/teleshop/internal/model"
)

func TestPromo_Create_ExactlyOneDiscountForm(t *testing.T) {
	svc := NewPromoService(newFakePromos(), newQuiet())
	ctx := context.Background()
	amount := int64(100)
	pct := 10

	require.NoError(t, svc.Create(ctx, &model.PromoCode{ActivationCode: "A", Amount: &amount}))
	require.NoError(t, svc.Create(ctx, &model.PromoCode{ActivationCode: "B", DiscountPercentage: &pct}))

	require.Error(t, svc.Create(ctx, &model.PromoCode{ActivationCode: "C"}))
	require.Error(t, svc.Create(ctx, &model.PromoCode{ActivationCode: "D", Amount: &amount, DiscountPercentage: &pct}))
	require.Error(t, svc.Create(ctx, &model.PromoCode{Amount: &amount}))
}

func TestPromo_GetByCode_CaseSensitiveAndGated(t *testing.T) {
	amount := int64(100)
	past := time.Now().Add(-time.Hour)
	promos := newFakePromos(
		model.PromoCode{ID: 1, ActivationCode: "Sale", Amount: &amount, IsValid: true},
		model.PromoCode{ID: 2, ActivationCode: "Old", Amount: &amount, IsValid: true, ValidUntil: &past},
	)
	svc := NewPromoService(promos, newQuiet())
	ctx := context.Background()

	p, err := svc.GetByCode(ctx, "Sale")
	require.NoError(t, err)
	require.Equal(t, int64(1), p.ID)

	_, err = svc.GetByCode(ctx, "SALE")
	require.ErrorIs(t, err, errs.ErrPromoInvalid)
	_, err = svc.GetByCode(ctx, "Old")
	require.ErrorIs(t, err, errs.ErrPromoInvalid)
}

func TestPromo_PriceAfter(t *testing.T) {
	svc := NewPromoService(newFakePromos(), newQuiet())
	pct := 33
	p := &model.PromoCode{ID: 1, DiscountPercentage: &pct, IsValid: true}

	discount, final, err := svc.PriceAfter(100, p)
	require.NoError(t, err)
	require.Equal(t, int64(33), discount) // floor of 33%
	require.Equal(t, int64(67), final)

	amount := int64(500)
	fixed := &model.PromoCode{ID: 2, Amount: &amount, IsValid: true}
	discount, final, err = svc.PriceAfter(300, fixed)
	require.NoError(t, err)
	require.Equal(t, int64(300), discount) // clamped to the total
	require.Equal(t, int64(0), final)

	_, _, err = svc.PriceAfter(100, &model.PromoCode{ID: 3, Amount: &amount})
	require.ErrorIs(t, err, errs.ErrPromoInvalid)
}

func TestPromo_Invalidate(t *testing.T) {
	amount := int64(100)
	promos := newFakePromos(model.PromoCode{ID: 1, ActivationCode: "X", Amount: &amount, IsValid: true})
	svc := NewPromoService(promos, newQuiet())
	ctx := context.Background()

	require.NoError(t, svc.Invalidate(ctx, 1, "X"))
	_, err := svc.GetByCode(ctx, "X")
	require.ErrorIs(t, err, errs.ErrPromoInvalid)
}
