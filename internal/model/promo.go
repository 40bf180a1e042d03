package model

import "time"

// PromoCode is a discount token. Exactly one of Amount/DiscountPercentage is set.
type PromoCode struct {
	ID                  int64
	ActivationCode      string // case-sensitive
	Amount              *int64
	DiscountPercentage  *int
	MinOrderAmount      *int64
	NumberOfActivations int // 0 = unlimited
	ActivatedCounter    int
	IsValid             bool
	ValidUntil          *time.Time
}

// Applicable reports whether the promo passes the validity, expiry, and
// activation-count gates at the given instant.
func (p *PromoCode) Applicable(now time.Time) bool {
	if !p.IsValid {
		return false
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return false
	}
	if p.NumberOfActivations > 0 && p.ActivatedCounter >= p.NumberOfActivations {
		return false
	}
	return true
}

// Discount computes the discount for an order total in minor units.
// Percent discounts floor; fixed amounts never exceed the total.
func (p *PromoCode) Discount(total int64) int64 {
	var d int64
	switch {
	case p.Amount != nil:
		d = *p.Amount
	case p.DiscountPercentage != nil:
		d = total * int64(*p.DiscountPercentage) / 100
	}
	if d > total {
		d = total
	}
	if d < 0 {
		d = 0
	}
	return d
}

// PromoActivation is the at-most-once (promo, user) activation record.
type PromoActivation struct {
	PromoCodeID int64
	UserID      int64
	CreatedAt   time.Time
}

// ReferralLevel maps a replenishment threshold to a commission percent.
type ReferralLevel struct {
	Level               int
	AmountOfAchievement int64
	Percent             int
}

// ReferralAccrual is one commission credited to an inviter.
type ReferralAccrual struct {
	ID        int64
	ChildID   int64
	ParentID  int64
	Amount    int64
	Level     int
	CreatedAt time.Time
}
