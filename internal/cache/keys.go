package cache

import "fmt"

// Stable key builders. Every read helper writes through under one of these and
// every write path invalidates through the matching prefix, so the key space
// stays enumerable.

// KeyMainCategories is the root sibling list for a language.
func KeyMainCategories(lang string) string {
	return fmt.Sprintf("cat:main:%s", lang)
}

// KeySubcategories is the sibling list under a parent for a language.
func KeySubcategories(parentID int64, lang string) string {
	return fmt.Sprintf("cat:sub:%d:%s", parentID, lang)
}

// KeyCategory is a single category view by id and language.
func KeyCategory(id int64, lang string) string {
	return fmt.Sprintf("cat:node:%d:%s", id, lang)
}

// PrefixCategory covers every language variant of a single category view.
func PrefixCategory(id int64) string {
	return fmt.Sprintf("cat:node:%d:", id)
}

// PrefixSubcategories covers every language variant of a parent's sibling list.
func PrefixSubcategories(parentID int64) string {
	return fmt.Sprintf("cat:sub:%d:", parentID)
}

// PrefixMainCategories covers the root list in every language.
func PrefixMainCategories() string { return "cat:main:" }

// KeySoldPage is one page of a user's sold-item listing.
func KeySoldPage(kind string, userID int64, lang string, page, size int) string {
	return fmt.Sprintf("sold:%s:%d:%s:%d:%d", kind, userID, lang, page, size)
}

// PrefixSold covers every sold-item page of a user across kinds and languages.
func PrefixSold(kind string, userID int64) string {
	return fmt.Sprintf("sold:%s:%d:", kind, userID)
}

// KeyPromo is the promo read key by activation code.
func KeyPromo(code string) string {
	return fmt.Sprintf("promo:%s", code)
}
