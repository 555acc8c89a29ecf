package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/viemarket/storefront/internal/domain"
	"github.com/viemarket/storefront/internal/platform/config"
	"github.com/viemarket/storefront/internal/upstream"
)

type fakeVoucherAPI struct {
	mu       sync.Mutex
	vouchers []domain.Voucher
	applyFn  func(ctx context.Context, req upstream.ApplyVoucherRequest) (upstream.ApplyVoucherResult, error)
	applies  []upstream.ApplyVoucherRequest
}

func (f *fakeVoucherAPI) Vouchers(context.Context) ([]domain.Voucher, error) {
	return f.vouchers, nil
}

func (f *fakeVoucherAPI) ApplyVoucher(ctx context.Context, req upstream.ApplyVoucherRequest) (upstream.ApplyVoucherResult, error) {
	f.mu.Lock()
	f.applies = append(f.applies, req)
	f.mu.Unlock()
	if f.applyFn != nil {
		return f.applyFn(ctx, req)
	}
	return upstream.ApplyVoucherResult{}, nil
}

func (f *fakeVoucherAPI) applyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applies)
}

func newTestSession(t *testing.T, api *fakeVoucherAPI) *Session {
	t.Helper()
	session, err := NewSession(SessionDeps{
		UserID: "user-1",
		API:    api,
		Fees:   config.PricingTable{ShopShippingFee: 20000},
		Now:    func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewSession error: %v", err)
	}
	return session
}

func shopVoucher(code, shopID string) domain.Voucher {
	return domain.Voucher{ID: "v-" + code, Code: code, Kind: domain.VoucherPercent, Value: 10, Active: true, ShopID: &shopID}
}

func platformVoucher(code string, kind domain.VoucherKind, value int64) domain.Voucher {
	return domain.Voucher{ID: "v-" + code, Code: code, Kind: kind, Value: value, Active: true}
}

func TestApplyRecordsServerVerdict(t *testing.T) {
	api := &fakeVoucherAPI{
		vouchers: []domain.Voucher{shopVoucher("SALE10", "shop-a")},
		applyFn: func(context.Context, upstream.ApplyVoucherRequest) (upstream.ApplyVoucherResult, error) {
			return upstream.ApplyVoucherResult{Discount: 50000}, nil
		},
	}
	session := newTestSession(t, api)
	session.SetItems([]domain.CartItem{item("i1", "shop-a", "Shop A", 250000, 2)})
	if err := session.RefreshVouchers(context.Background()); err != nil {
		t.Fatalf("RefreshVouchers: %v", err)
	}

	if err := session.Apply(context.Background(), ShopScope("shop-a"), "SALE10"); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	summary := session.Summary()
	if len(summary.Shops) != 1 {
		t.Fatalf("expected 1 shop line, got %d", len(summary.Shops))
	}
	line := summary.Shops[0]
	if line.Summary.Discount != 50000 {
		t.Fatalf("expected server discount 50000, got %d", line.Summary.Discount)
	}
	if line.Summary.LineTotal != 470000 {
		t.Fatalf("expected 500000-50000+20000=470000, got %d", line.Summary.LineTotal)
	}
	if line.VoucherCode != "SALE10" {
		t.Fatalf("expected voucher code on line, got %q", line.VoucherCode)
	}
	if summary.Overall.Total != 470000 {
		t.Fatalf("expected grand total 470000, got %d", summary.Overall.Total)
	}
}

func TestApplyReplacesVoucherInScope(t *testing.T) {
	api := &fakeVoucherAPI{
		vouchers: []domain.Voucher{shopVoucher("FIRST", "shop-a"), shopVoucher("SECOND", "shop-a")},
		applyFn: func(_ context.Context, req upstream.ApplyVoucherRequest) (upstream.ApplyVoucherResult, error) {
			if req.Code == "FIRST" {
				return upstream.ApplyVoucherResult{Discount: 10000}, nil
			}
			return upstream.ApplyVoucherResult{Discount: 25000}, nil
		},
	}
	session := newTestSession(t, api)
	session.SetItems([]domain.CartItem{item("i1", "shop-a", "Shop A", 250000, 2)})
	_ = session.RefreshVouchers(context.Background())

	scope := ShopScope("shop-a")
	if err := session.Apply(context.Background(), scope, "FIRST"); err != nil {
		t.Fatalf("apply FIRST: %v", err)
	}
	if err := session.Apply(context.Background(), scope, "SECOND"); err != nil {
		t.Fatalf("apply SECOND: %v", err)
	}

	applied, ok := session.Applied(scope)
	if !ok || applied.Code != "SECOND" {
		t.Fatalf("scope must hold exactly the latest voucher, got %+v ok=%v", applied, ok)
	}
	if got := session.Summary().Shops[0].Summary.Discount; got != 25000 {
		t.Fatalf("expected replacement discount 25000, got %d", got)
	}
}

func TestOverridePrecedenceSurvivesCartChanges(t *testing.T) {
	api := &fakeVoucherAPI{
		vouchers: []domain.Voucher{shopVoucher("SALE10", "shop-a")},
		applyFn: func(context.Context, upstream.ApplyVoucherRequest) (upstream.ApplyVoucherResult, error) {
			return upstream.ApplyVoucherResult{Discount: 50000}, nil
		},
	}
	session := newTestSession(t, api)
	session.SetItems([]domain.CartItem{item("i1", "shop-a", "Shop A", 250000, 2)})
	_ = session.RefreshVouchers(context.Background())
	scope := ShopScope("shop-a")
	if err := session.Apply(context.Background(), scope, "SALE10"); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// Shrink the cart: the recorded verdict is knowingly kept until re-apply.
	session.SetItems([]domain.CartItem{item("i1", "shop-a", "Shop A", 100000, 1)})
	summary := session.Summary()
	if got := summary.Shops[0].Summary.Discount; got != 50000 {
		t.Fatalf("server override must persist across cart changes, got %d", got)
	}

	session.Clear(scope)
	summary = session.Summary()
	if got := summary.Shops[0].Summary.Discount; got != 0 {
		t.Fatalf("clear must drop the override, got %d", got)
	}
	if summary.Shops[0].Summary.Shipping != 20000 {
		t.Fatalf("clear must restore paid shipping, got %d", summary.Shops[0].Summary.Shipping)
	}
}

func TestApplyRejectsAnonymous(t *testing.T) {
	api := &fakeVoucherAPI{vouchers: []domain.Voucher{platformVoucher("ANY", domain.VoucherAmount, 1000)}}
	session, err := NewSession(SessionDeps{API: api, Fees: config.DefaultPricingTable()})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	_ = session.RefreshVouchers(context.Background())

	if err := session.Apply(context.Background(), ScopeGlobal, "ANY"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("anonymous apply must fail with ErrUnauthenticated, got %v", err)
	}
	if api.applyCount() != 0 {
		t.Fatal("anonymous apply must not reach the server")
	}
}

func TestApplyMarksVoucherUsedOnServerRejection(t *testing.T) {
	api := &fakeVoucherAPI{
		vouchers: []domain.Voucher{platformVoucher("ONCE", domain.VoucherAmount, 1000)},
		applyFn: func(context.Context, upstream.ApplyVoucherRequest) (upstream.ApplyVoucherResult, error) {
			return upstream.ApplyVoucherResult{}, &upstream.APIError{Code: upstream.CodeVoucherAlreadyUsed, Message: "voucher was already used", Status: 409}
		},
	}
	session := newTestSession(t, api)
	session.SetItems([]domain.CartItem{item("i1", "shop-a", "Shop A", 100000, 1)})
	_ = session.RefreshVouchers(context.Background())

	err := session.Apply(context.Background(), ScopeGlobal, "ONCE")
	apiErr, ok := upstream.AsAPIError(err)
	if !ok || !apiErr.AlreadyUsed() {
		t.Fatalf("expected already-used APIError, got %v", err)
	}

	// The durable state change is patched locally: a second attempt fails
	// before any network call.
	before := api.applyCount()
	if err := session.Apply(context.Background(), ScopeGlobal, "ONCE"); !errors.Is(err, ErrVoucherNotEligible) {
		t.Fatalf("re-applying a used voucher must fail locally, got %v", err)
	}
	if api.applyCount() != before {
		t.Fatal("used voucher must not be re-submitted")
	}
}

func TestApplyInFlightGuard(t *testing.T) {
	release := make(chan struct{})
	api := &fakeVoucherAPI{
		vouchers: []domain.Voucher{platformVoucher("SLOW", domain.VoucherAmount, 1000)},
		applyFn: func(context.Context, upstream.ApplyVoucherRequest) (upstream.ApplyVoucherResult, error) {
			<-release
			return upstream.ApplyVoucherResult{Discount: 1000}, nil
		},
	}
	session := newTestSession(t, api)
	session.SetItems([]domain.CartItem{item("i1", "shop-a", "Shop A", 100000, 1)})
	_ = session.RefreshVouchers(context.Background())

	done := make(chan error, 1)
	go func() { done <- session.Apply(context.Background(), ScopeGlobal, "SLOW") }()

	// Wait until the first call reached the fake.
	deadline := time.After(2 * time.Second)
	for api.applyCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("first apply never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := session.Apply(context.Background(), ScopeGlobal, "SLOW"); !errors.Is(err, ErrApplyInFlight) {
		t.Fatalf("second apply must be rejected while one is pending, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
}

func TestStaleVerdictDiscardedAfterClear(t *testing.T) {
	release := make(chan struct{})
	api := &fakeVoucherAPI{
		vouchers: []domain.Voucher{platformVoucher("SLOW", domain.VoucherAmount, 1000)},
		applyFn: func(context.Context, upstream.ApplyVoucherRequest) (upstream.ApplyVoucherResult, error) {
			<-release
			return upstream.ApplyVoucherResult{Discount: 1000}, nil
		},
	}
	session := newTestSession(t, api)
	session.SetItems([]domain.CartItem{item("i1", "shop-a", "Shop A", 100000, 1)})
	_ = session.RefreshVouchers(context.Background())

	done := make(chan error, 1)
	go func() { done <- session.Apply(context.Background(), ScopeGlobal, "SLOW") }()

	deadline := time.After(2 * time.Second)
	for api.applyCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("apply never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Superseding the scope invalidates the pending verdict.
	session.Clear(ScopeGlobal)
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("stale apply must complete silently, got %v", err)
	}

	if _, ok := session.Applied(ScopeGlobal); ok {
		t.Fatal("stale verdict must not be merged after clear")
	}
	if got := session.Summary().GlobalDiscount; got != 0 {
		t.Fatalf("stale verdict leaked into totals: %d", got)
	}
}

func TestGlobalFreeShippingZeroesAllShops(t *testing.T) {
	api := &fakeVoucherAPI{
		vouchers: []domain.Voucher{platformVoucher("FREESHIP", domain.VoucherShipping, 0)},
		applyFn: func(context.Context, upstream.ApplyVoucherRequest) (upstream.ApplyVoucherResult, error) {
			return upstream.ApplyVoucherResult{Discount: 0, FreeShipping: true}, nil
		},
	}
	session := newTestSession(t, api)
	session.SetItems([]domain.CartItem{
		item("i1", "s1", "One", 100000, 1),
		item("i2", "s2", "Two", 200000, 1),
	})
	_ = session.RefreshVouchers(context.Background())

	if err := session.Apply(context.Background(), ScopeGlobal, "FREESHIP"); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	summary := session.Summary()
	if !summary.GlobalFreeShipping {
		t.Fatal("global free shipping flag must be set")
	}
	for _, shop := range summary.Shops {
		if shop.Summary.Shipping != 0 {
			t.Fatalf("shop %s shipping must be zero, got %d", shop.ShopID, shop.Summary.Shipping)
		}
	}
	if summary.Overall.Shipping != 0 {
		t.Fatalf("overall shipping must be zero, got %d", summary.Overall.Shipping)
	}
}

func TestSummaryEmittedOnEveryChange(t *testing.T) {
	api := &fakeVoucherAPI{}
	session := newTestSession(t, api)

	var emitted []PaymentSummary
	session.OnSummary(func(s PaymentSummary) { emitted = append(emitted, s) })

	session.SetItems([]domain.CartItem{item("i1", "s1", "One", 100000, 1)})
	session.SetPaymentMethod("cod")
	session.SetSelection([]string{"i1"})

	if len(emitted) != 3 {
		t.Fatalf("expected 3 emissions, got %d", len(emitted))
	}
	last := emitted[len(emitted)-1]
	if last.PaymentMethod != "cod" {
		t.Fatalf("snapshot must carry the payment method, got %q", last.PaymentMethod)
	}
	if last.Overall.Subtotal != 100000 {
		t.Fatalf("snapshot must be fully derived, got subtotal %d", last.Overall.Subtotal)
	}
}
