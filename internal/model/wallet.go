package model

import "time"

// TxKind classifies wallet ledger rows. Amounts are signed per kind.
type TxKind string

const (
	TxReplenish   TxKind = "REPLENISH"
	TxPurchase    TxKind = "PURCHASE"
	TxTransferOut TxKind = "TRANSFER_OUT"
	TxTransferIn  TxKind = "TRANSFER_IN"
	TxReferral    TxKind = "REFERRAL"
	TxRefund      TxKind = "REFUND"
	TxAdjust      TxKind = "ADJUST"
)

// WalletTransaction is one append-only ledger row.
// Invariant: BalanceAfter = BalanceBefore + Amount.
type WalletTransaction struct {
	ID            int64
	UserID        int64
	Kind          TxKind
	Amount        int64 // signed
	BalanceBefore int64
	BalanceAfter  int64
	RefID         string // opaque pointer at the domain event
	CreatedAt     time.Time
}

// ReplenishmentStatus is the lifecycle state of a top-up attempt.
type ReplenishmentStatus string

const (
	ReplenishProcessing ReplenishmentStatus = "PROCESSING"
	ReplenishCompleted  ReplenishmentStatus = "COMPLETED"
	ReplenishError      ReplenishmentStatus = "ERROR"
)

// Replenishment tracks a single external top-up from invoice to final status.
type Replenishment struct {
	ID              int64
	UserID          int64
	PaymentSystemID string
	OriginAmount    int64
	Amount          int64 // after commission
	Status          ReplenishmentStatus
	InvoiceURL      string
	ExpiresAt       *time.Time
	CreatedAt       time.Time
}

// PaymentEvent is a confirmed top-up notification from the webhook layer.
// Signature verification happens upstream; the core trusts the payload.
type PaymentEvent struct {
	ReplenishmentID int64
	PaymentSystemID string
	UserID          int64
	Amount          int64
	OriginAmount    int64
}
