package cart

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/viemarket/storefront/internal/domain"
)

// Scope identifies the target of an applied voucher: the whole platform
// (ScopeGlobal) or one shop.
type Scope string

// ScopeGlobal is the platform-wide voucher scope.
const ScopeGlobal Scope = ""

// ShopScope builds the scope for one shop.
func ShopScope(shopID string) Scope { return Scope(shopID) }

// Global reports whether the scope is platform-wide.
func (s Scope) Global() bool { return s == ScopeGlobal }

// ShopID returns the shop for a shop scope, empty for the global scope.
func (s Scope) ShopID() string { return string(s) }

// Override is the server-confirmed verdict for a scope. Once recorded it
// supersedes any client estimate for that scope until explicitly cleared,
// even if the underlying subtotal has since changed. That stale-discount
// acceptance is the documented contract, not an oversight; only a re-apply
// refreshes it.
type Override struct {
	Discount     int64
	FreeShipping bool
}

// ShopSummary is the derived pricing line for one shop group.
type ShopSummary struct {
	Subtotal     int64
	Discount     int64
	Shipping     int64
	LineTotal    int64
	FreeShipping bool
}

var oneHundred = decimal.NewFromInt(100)

// EstimateDiscount computes the client-side estimate for a voucher against a
// scope subtotal. Percentage discounts round down. The estimate is zero when
// the minimum-order threshold is not met. The returned flag reports free
// shipping. The result always satisfies 0 <= discount <= subtotal.
func EstimateDiscount(v domain.Voucher, subtotal int64) (int64, bool) {
	if subtotal <= 0 || !v.MeetsMinOrder(subtotal) {
		return 0, false
	}
	switch v.Kind {
	case domain.VoucherPercent:
		discount := decimal.NewFromInt(subtotal).
			Mul(decimal.NewFromInt(v.Value)).
			Div(oneHundred).
			Floor().
			IntPart()
		if discount < 0 {
			discount = 0
		}
		if discount > subtotal {
			discount = subtotal
		}
		return discount, false
	case domain.VoucherAmount:
		discount := v.Value
		if discount < 0 {
			discount = 0
		}
		if discount > subtotal {
			discount = subtotal
		}
		return discount, false
	case domain.VoucherShipping:
		return 0, true
	default:
		return 0, false
	}
}

// PriceShop derives the summary line for one shop group. The server override
// wins over the client estimate when present. The shipping fee is zeroed
// when free shipping applies at shop or global level.
func PriceShop(group ShopGroup, applied *domain.Voucher, override *Override, globalFreeShipping bool, fee int64, now time.Time) ShopSummary {
	subtotal := group.Subtotal()

	var discount int64
	freeShipping := globalFreeShipping
	switch {
	case override != nil:
		discount = override.Discount
		freeShipping = freeShipping || override.FreeShipping
	case applied != nil && applied.Active && !applied.Expired(now):
		estimate, ship := EstimateDiscount(*applied, subtotal)
		discount = estimate
		freeShipping = freeShipping || ship
	}

	shipping := fee
	if freeShipping || len(group.Items) == 0 {
		shipping = 0
	}

	net := subtotal - discount
	if net < 0 {
		net = 0
	}

	return ShopSummary{
		Subtotal:     subtotal,
		Discount:     discount,
		Shipping:     shipping,
		LineTotal:    net + shipping,
		FreeShipping: freeShipping,
	}
}

// GrandTotal applies the documented billing contract: the global discount is
// taken against the aggregate subtotal first, then shop-level discounts and
// shipping are combined additively. Global and shop discounts are computed
// independently, never nested; a global and a shop voucher covering the same
// lines therefore both count in full. Known billing behaviour, kept as is.
func GrandTotal(subtotalAll, globalDiscount int64, shops []ShopSummary) int64 {
	total := subtotalAll - globalDiscount
	if total < 0 {
		total = 0
	}
	for _, shop := range shops {
		total -= shop.Discount
		total += shop.Shipping
	}
	if total < 0 {
		total = 0
	}
	return total
}
