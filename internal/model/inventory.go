package model

import "time"

// AccountStatus is the lifecycle state of an account_storage row.
type AccountStatus string

const (
	StatusForSale AccountStatus = "FOR_SALE"
	StatusBought  AccountStatus = "BOUGHT"
	StatusDeleted AccountStatus = "DELETED"
)

// AccountStorage is one credentialed inventory record. Secrets arrive
// pre-encrypted; the core treats ciphertexts and wrapped keys as opaque bytes.
type AccountStorage struct {
	ID              int64
	Status          AccountStatus
	ServiceType     string // free slug, e.g. "telegram", "other"
	FilePath        *string
	Checksum        string
	WrappedDEK      []byte
	WrappedDEKNonce []byte
	KeyVersion      int
	Algo            string
	LoginCT         []byte
	LoginNonce      []byte
	PasswordCT      []byte
	PasswordNonce   []byte
	PhoneNumber     string // E.164
	ExternalID      *string
	IsValid         bool
	IsActive        bool
	LastCheckAt     *time.Time
}

// AccountRecord is one bulk-import descriptor for an account item.
type AccountRecord struct {
	ServiceType     string
	FilePath        *string
	Checksum        string
	WrappedDEK      []byte
	WrappedDEKNonce []byte
	KeyVersion      int
	Algo            string
	LoginCT         []byte
	LoginNonce      []byte
	PasswordCT      []byte
	PasswordNonce   []byte
	PhoneNumber     string
	ExternalID      *string
}

// MediaType classifies universal items for re-send through the chat API.
type MediaType string

const (
	MediaDocument  MediaType = "DOCUMENT"
	MediaPhoto     MediaType = "PHOTO"
	MediaVideo     MediaType = "VIDEO"
	MediaAnimation MediaType = "ANIMATION"
)

// UniversalStorage is one media inventory record.
type UniversalStorage struct {
	ID              int64
	MediaType       MediaType
	ExternalMediaID string
	FilePath        *string
	Checksum        string
	WrappedDEK      []byte
	WrappedDEKNonce []byte
}

// UniversalTranslation carries per-language encrypted name/description.
type UniversalTranslation struct {
	UniversalStorageID int64
	Lang               string
	NameCT             []byte
	NameNonce          []byte
	DescriptionCT      []byte
	DescriptionNonce   []byte
}

// UniversalRecord is one bulk-import descriptor for a universal item.
type UniversalRecord struct {
	MediaType       MediaType
	ExternalMediaID string
	FilePath        *string
	Checksum        string
	WrappedDEK      []byte
	WrappedDEKNonce []byte
	Translations    []UniversalTranslation
}

// BulkAddReport is the per-record outcome summary of a bulk import.
type BulkAddReport struct {
	Added      int
	Duplicates int
	Errors     int
}

// SoldAccount is a completed account sale.
type SoldAccount struct {
	ID               int64
	AccountStorageID int64
	OwnerID          int64
	SoldAt           time.Time
	Name             string // best-matching translation
	Description      *string
}

// SoldUniversal is a completed universal sale.
type SoldUniversal struct {
	ID                 int64
	UniversalStorageID int64
	OwnerID            int64
	SoldAt             time.Time
}

// DeletedAccount preserves the storage reference after owner-side removal.
type DeletedAccount struct {
	ID               int64
	AccountStorageID int64
	CategoryName     string
	Description      *string
	DeletedAt        time.Time
}

// PurchasedItem references one item handed to the buyer by a purchase.
type PurchasedItem struct {
	Kind      ProductKind
	StorageID int64
	SoldID    int64
}
