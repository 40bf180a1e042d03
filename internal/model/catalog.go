package model

// ProductKind discriminates the two inventory sub-modules sharing the catalog.
type ProductKind string

const (
	KindAccount   ProductKind = "ACCOUNT"
	KindUniversal ProductKind = "UNIVERSAL"
)

// Category is a node in the product tree. A node is either a storage leaf
// holding inventory or a parent hosting children, never both.
type Category struct {
	ID                    int64
	ParentID              *int64 // nil means root
	Index                 int    // dense 0-based ordinal among siblings
	IsProductStorage      bool
	ProductKind           ProductKind // meaningful only for storage nodes
	Price                 int64       // minor units
	CostPrice             int64
	ReuseProduct          bool // items survive sale and can be re-delivered
	AllowMultiplePurchase bool
	NumberButtonsInRow    int // 1..8
	Show                  bool
	ImageKey              string
}

// CategoryTranslation is one localized (name, description) row for a category.
type CategoryTranslation struct {
	CategoryID  int64
	Lang        string
	Name        string
	Description *string
}

// CategoryView is the denormalized projection served to the front-end and
// written through to the cache: category fields plus the best-matching
// translation and the live sellable-item count.
type CategoryView struct {
	Category
	Name              string
	Description       *string
	QuantityAvailable int64
}

// NewCategory is a creation intent handed to the catalog service.
type NewCategory struct {
	ParentID              *int64
	Lang                  string
	Name                  string
	Description           *string
	IsProductStorage      bool
	ProductKind           ProductKind
	Price                 int64
	CostPrice             int64
	ReuseProduct          bool
	AllowMultiplePurchase bool
	NumberButtonsInRow    int
	Show                  bool
}

// CategoryUpdate carries changed fields only; nil pointers leave the column as is.
type CategoryUpdate struct {
	Index                 *int
	IsProductStorage      *bool
	ProductKind           *ProductKind
	Price                 *int64
	CostPrice             *int64
	ReuseProduct          *bool
	AllowMultiplePurchase *bool
	NumberButtonsInRow    *int
	Show                  *bool
	ImageKey              *string
}
