package model

// ReplenishmentCompleted is emitted after a top-up is credited and committed.
type ReplenishmentCompleted struct {
	UserID           int64
	ReplenishmentID  int64
	Amount           int64
	TotalReplenished int64
}

// ReplenishmentFailed is emitted when a top-up could not be credited.
type ReplenishmentFailed struct {
	UserID          int64
	ReplenishmentID int64
	Err             string
}

// PromoActivated is emitted after a purchase commits with a promo applied.
type PromoActivated struct {
	PromoCodeID int64
	UserID      int64
}
