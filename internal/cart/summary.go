package cart

import "github.com/viemarket/storefront/internal/domain"

// ShopLine pairs a shop group with its derived summary and the voucher in
// effect for that shop, if any.
type ShopLine struct {
	ShopID      string
	ShopName    string
	Items       []domain.CartItem
	Summary     ShopSummary
	VoucherCode string
}

// Totals is the overall money summary across the whole cart.
type Totals struct {
	Subtotal int64
	Discount int64
	Shipping int64
	Total    int64
}

// PaymentSummary is the consolidated snapshot handed to the checkout
// collaborator. It is always fully derived; consumers never observe partial
// state.
type PaymentSummary struct {
	PaymentMethod      string
	Shops              []ShopLine
	GlobalDiscount     int64
	GlobalFreeShipping bool
	Overall            Totals
	VoucherCodes       []string
}
