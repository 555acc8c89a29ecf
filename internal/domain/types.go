// Package domain holds the canonical types shared across the storefront
// session layer. All monetary amounts are int64 Vietnamese dong.
package domain

import (
	"strings"
	"time"
)

// Product is the catalog snapshot embedded in a cart item.
type Product struct {
	ID        string
	Name      string
	Images    []string
	Price     int64
	SalePrice *int64
}

// Variant overrides product pricing when the buyer picked a specific option.
type Variant struct {
	ID        string
	Name      string
	Price     *int64
	SalePrice *int64
}

// CartItem is one line in the buyer's cart.
type CartItem struct {
	ID       string
	Quantity int
	ShopID   string
	ShopName string
	Product  Product
	Variant  *Variant
}

// EffectiveUnitPrice resolves the price fallback chain:
// variant sale price, variant price, product sale price, product price.
// The result is never negative.
func (i CartItem) EffectiveUnitPrice() int64 {
	price := i.Product.Price
	if i.Product.SalePrice != nil {
		price = *i.Product.SalePrice
	}
	if i.Variant != nil {
		if i.Variant.Price != nil {
			price = *i.Variant.Price
		}
		if i.Variant.SalePrice != nil {
			price = *i.Variant.SalePrice
		}
	}
	if price < 0 {
		return 0
	}
	return price
}

// LineSubtotal is the effective unit price multiplied by quantity.
func (i CartItem) LineSubtotal() int64 {
	if i.Quantity <= 0 {
		return 0
	}
	return i.EffectiveUnitPrice() * int64(i.Quantity)
}

// VoucherKind enumerates the supported discount kinds.
type VoucherKind string

const (
	// VoucherPercent discounts a percentage of the scope subtotal.
	VoucherPercent VoucherKind = "percent"
	// VoucherAmount discounts a fixed amount.
	VoucherAmount VoucherKind = "amount"
	// VoucherShipping waives the shipping fee for the scope.
	VoucherShipping VoucherKind = "shipping"
)

// Voucher is a discount code, either platform-wide or scoped to one shop.
type Voucher struct {
	ID        string
	Code      string
	Kind      VoucherKind
	Value     int64
	MinOrder  *int64
	ExpiresAt *time.Time
	Active    bool
	ShopID    *string
	Used      bool
}

// Platform reports whether the voucher applies platform-wide.
func (v Voucher) Platform() bool {
	return v.ShopID == nil || strings.TrimSpace(*v.ShopID) == ""
}

// Expired reports whether the voucher is past its expiry at the given time.
func (v Voucher) Expired(now time.Time) bool {
	return v.ExpiresAt != nil && now.After(*v.ExpiresAt)
}

// EligibleFor reports whether the voucher may be applied to the given scope.
// Platform vouchers are always eligible; shop vouchers only for their shop.
func (v Voucher) EligibleFor(shopID string) bool {
	if v.Platform() {
		return true
	}
	return *v.ShopID == shopID
}

// MeetsMinOrder reports whether the scope subtotal satisfies the voucher's
// minimum-order threshold.
func (v Voucher) MeetsMinOrder(subtotal int64) bool {
	return v.MinOrder == nil || subtotal >= *v.MinOrder
}
