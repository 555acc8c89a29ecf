package cart

import (
	"sort"
	"time"

	"github.com/viemarket/storefront/internal/domain"
)

// RankVouchers orders candidate vouchers for display: platform-wide first,
// then active-and-unexpired, then free-shipping, then by percentage value,
// then by fixed value, then by most generous expiry. Ties fall back to the
// code so the order is fully deterministic.
func RankVouchers(vouchers []domain.Voucher, now time.Time) []domain.Voucher {
	ranked := make([]domain.Voucher, len(vouchers))
	copy(ranked, vouchers)
	sort.SliceStable(ranked, func(i, j int) bool {
		return voucherLess(ranked[i], ranked[j], now)
	})
	return ranked
}

func voucherLess(a, b domain.Voucher, now time.Time) bool {
	if a.Platform() != b.Platform() {
		return a.Platform()
	}
	aLive := a.Active && !a.Expired(now) && !a.Used
	bLive := b.Active && !b.Expired(now) && !b.Used
	if aLive != bLive {
		return aLive
	}
	if (a.Kind == domain.VoucherShipping) != (b.Kind == domain.VoucherShipping) {
		return a.Kind == domain.VoucherShipping
	}
	if ap, bp := percentValue(a), percentValue(b); ap != bp {
		return ap > bp
	}
	if af, bf := amountValue(a), amountValue(b); af != bf {
		return af > bf
	}
	if ae, be := expiryRank(a), expiryRank(b); ae != be {
		return ae > be
	}
	return a.Code < b.Code
}

func percentValue(v domain.Voucher) int64 {
	if v.Kind == domain.VoucherPercent {
		return v.Value
	}
	return 0
}

func amountValue(v domain.Voucher) int64 {
	if v.Kind == domain.VoucherAmount {
		return v.Value
	}
	return 0
}

// expiryRank treats no expiry as most generous, later expiries as better.
func expiryRank(v domain.Voucher) int64 {
	if v.ExpiresAt == nil {
		return 1<<63 - 1
	}
	return v.ExpiresAt.Unix()
}

// CandidatesFor filters candidates to those eligible for the scope:
// platform vouchers always qualify, shop vouchers only for their shop.
func CandidatesFor(vouchers []domain.Voucher, scope Scope, now time.Time) []domain.Voucher {
	eligible := make([]domain.Voucher, 0, len(vouchers))
	for _, v := range vouchers {
		if scope.Global() {
			if !v.Platform() {
				continue
			}
		} else if !v.EligibleFor(scope.ShopID()) {
			continue
		}
		eligible = append(eligible, v)
	}
	return RankVouchers(eligible, now)
}
