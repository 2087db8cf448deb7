package invoice

import "strings"

// Category classifies a line item. Only the values declared below are accepted.
type Category string

const (
	CategoryBook        Category = "book"
	CategoryFood        Category = "food"
	CategoryElectronics Category = "electronics"
	CategoryOther       Category = "other"
)

// Categories lists every accepted category in declaration order.
var Categories = []Category{CategoryBook, CategoryFood, CategoryElectronics, CategoryOther}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryBook, CategoryFood, CategoryElectronics, CategoryOther:
		return true
	default:
		return false
	}
}

// LineItem is one purchasable unit within an invoice. UnitPrice is stored in minor units.
type LineItem struct {
	SKU       string
	Category  Category
	UnitPrice int64
	Qty       int
	Fragile   bool
}

// Invoice is an order to be priced.
type Invoice struct {
	InvoiceID  string
	CustomerID string
	Country    string
	Membership string
	Coupon     string
	Items      []LineItem
}

// CountryCode returns the normalised country key used for rule lookups.
func (inv *Invoice) CountryCode() string {
	return strings.ToUpper(strings.TrimSpace(inv.Country))
}

// MembershipTier returns the normalised membership tier.
func (inv *Invoice) MembershipTier() string {
	return strings.ToLower(strings.TrimSpace(inv.Membership))
}

// CouponCode returns the normalised coupon code; blank codes yield "".
func (inv *Invoice) CouponCode() string {
	return strings.ToUpper(strings.TrimSpace(inv.Coupon))
}
