package cart

import (
	"testing"
	"time"

	"github.com/viemarket/storefront/internal/domain"
)

func TestRankVouchersOrdering(t *testing.T) {
	shop := "shop-a"
	expired := testNow.Add(-time.Hour)
	vouchers := []domain.Voucher{
		{Code: "SHOP20", Kind: domain.VoucherPercent, Value: 20, Active: true, ShopID: &shop},
		{Code: "DEAD", Kind: domain.VoucherPercent, Value: 90, Active: true, ExpiresAt: &expired},
		{Code: "SHIPFREE", Kind: domain.VoucherShipping, Active: true},
		{Code: "TENOFF", Kind: domain.VoucherPercent, Value: 10, Active: true},
		{Code: "FLAT50K", Kind: domain.VoucherAmount, Value: 50000, Active: true},
	}

	ranked := RankVouchers(vouchers, testNow)
	got := make([]string, len(ranked))
	for i, v := range ranked {
		got[i] = v.Code
	}

	want := []string{"SHIPFREE", "TENOFF", "FLAT50K", "DEAD", "SHOP20"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank order mismatch at %d: want %v, got %v", i, want, got)
		}
	}
}

func TestRankVouchersDeterministic(t *testing.T) {
	vouchers := []domain.Voucher{
		{Code: "B", Kind: domain.VoucherAmount, Value: 1000, Active: true},
		{Code: "A", Kind: domain.VoucherAmount, Value: 1000, Active: true},
	}
	for i := 0; i < 5; i++ {
		ranked := RankVouchers(vouchers, testNow)
		if ranked[0].Code != "A" || ranked[1].Code != "B" {
			t.Fatalf("ties must break by code, got %s then %s", ranked[0].Code, ranked[1].Code)
		}
	}
}

func TestCandidatesForScope(t *testing.T) {
	shopA, shopB := "shop-a", "shop-b"
	vouchers := []domain.Voucher{
		{Code: "GLOBAL", Kind: domain.VoucherAmount, Value: 1000, Active: true},
		{Code: "ONLYA", Kind: domain.VoucherAmount, Value: 1000, Active: true, ShopID: &shopA},
		{Code: "ONLYB", Kind: domain.VoucherAmount, Value: 1000, Active: true, ShopID: &shopB},
	}

	global := CandidatesFor(vouchers, ScopeGlobal, testNow)
	if len(global) != 1 || global[0].Code != "GLOBAL" {
		t.Fatalf("global scope must list only platform vouchers, got %+v", global)
	}

	forA := CandidatesFor(vouchers, ShopScope("shop-a"), testNow)
	if len(forA) != 2 {
		t.Fatalf("shop scope must list platform + own-shop vouchers, got %d", len(forA))
	}
	for _, v := range forA {
		if v.Code == "ONLYB" {
			t.Fatal("other shop's voucher leaked into scope")
		}
	}
}
