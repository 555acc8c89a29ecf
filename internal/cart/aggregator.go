// Package cart derives per-shop and whole-cart pricing state from the
// buyer's cart, reconciling client-side estimates with server-confirmed
// voucher verdicts. Everything here is derived state: it is recomputed
// synchronously on every input change and never persisted.
package cart

import "github.com/viemarket/storefront/internal/domain"

// ShopGroup is the slice of the cart belonging to one shop, in original
// item order.
type ShopGroup struct {
	ShopID   string
	ShopName string
	Items    []domain.CartItem
}

// Subtotal sums effective unit price times quantity over the group.
func (g ShopGroup) Subtotal() int64 {
	var total int64
	for _, item := range g.Items {
		total += item.LineSubtotal()
	}
	return total
}

// GroupByShop splits a flat item list into per-shop groups, preserving
// first-seen shop order and item order within each group. When selected is
// non-nil only the listed item ids participate; a nil selection means every
// item participates. An empty cart produces no groups.
func GroupByShop(items []domain.CartItem, selected map[string]struct{}) []ShopGroup {
	var groups []ShopGroup
	index := make(map[string]int)

	for _, item := range items {
		if selected != nil {
			if _, ok := selected[item.ID]; !ok {
				continue
			}
		}
		at, ok := index[item.ShopID]
		if !ok {
			at = len(groups)
			index[item.ShopID] = at
			groups = append(groups, ShopGroup{ShopID: item.ShopID, ShopName: item.ShopName})
		}
		groups[at].Items = append(groups[at].Items, item)
	}
	return groups
}
