package domain

import (
	"testing"
	"time"
)

func int64Ptr(v int64) *int64 { return &v }

func strPtr(v string) *string { return &v }

func boolPtr(v bool) *bool { return &v }

func TestEffectiveUnitPriceFallbackChain(t *testing.T) {
	base := CartItem{
		Product: Product{Price: 100000, SalePrice: int64Ptr(80000)},
	}

	if got := base.EffectiveUnitPrice(); got != 80000 {
		t.Fatalf("product sale price should win, got %d", got)
	}

	withVariant := base
	withVariant.Variant = &Variant{Price: int64Ptr(90000)}
	if got := withVariant.EffectiveUnitPrice(); got != 90000 {
		t.Fatalf("variant price should win over product prices, got %d", got)
	}

	withVariant.Variant.SalePrice = int64Ptr(70000)
	if got := withVariant.EffectiveUnitPrice(); got != 70000 {
		t.Fatalf("variant sale price should win over everything, got %d", got)
	}

	negative := CartItem{Product: Product{Price: -500}}
	if got := negative.EffectiveUnitPrice(); got != 0 {
		t.Fatalf("effective price must be clamped to zero, got %d", got)
	}
}

func TestVoucherFromWireFieldGenerations(t *testing.T) {
	old := VoucherFromWire(WireVoucher{
		ID:           "v1",
		Code:         " sale10 ",
		DiscountType: "percentage",
		Value:        10,
		EndDate:      strPtr("2026-12-31 23:59:59"),
		IsActive:     boolPtr(true),
		ShopID:       strPtr("shop-1"),
	})
	if old.Code != "SALE10" {
		t.Fatalf("code should be trimmed and uppercased, got %q", old.Code)
	}
	if old.Kind != VoucherPercent {
		t.Fatalf("discount_type=percentage should map to percent, got %s", old.Kind)
	}
	if old.ExpiresAt == nil || old.ExpiresAt.Year() != 2026 {
		t.Fatalf("end_date should populate ExpiresAt, got %v", old.ExpiresAt)
	}
	if old.Platform() {
		t.Fatal("shop voucher must not report platform scope")
	}

	modern := VoucherFromWire(WireVoucher{
		ID:        "v2",
		Code:      "FREESHIP",
		Type:      "free_shipping",
		ExpiresAt: strPtr("2026-06-01T00:00:00Z"),
		Active:    boolPtr(false),
	})
	if modern.Kind != VoucherShipping {
		t.Fatalf("type=free_shipping should map to shipping, got %s", modern.Kind)
	}
	if modern.Active {
		t.Fatal("active=false must be honoured")
	}
	if !modern.Platform() {
		t.Fatal("nil shop id means platform scope")
	}
}

func TestVoucherExpiry(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	expired := Voucher{ExpiresAt: timePtr(now.Add(-time.Hour))}
	if !expired.Expired(now) {
		t.Fatal("voucher past expiry must report expired")
	}
	open := Voucher{}
	if open.Expired(now) {
		t.Fatal("voucher without expiry must never expire")
	}
}

func TestDedupVouchersByCodeAndScope(t *testing.T) {
	shop := "shop-1"
	vouchers := []Voucher{
		{Code: "SALE10", ShopID: &shop},
		{Code: "SALE10"},
		{Code: "SALE10", ShopID: &shop},
		{Code: "OTHER"},
	}
	out := DedupVouchers(vouchers)
	if len(out) != 3 {
		t.Fatalf("expected 3 vouchers after dedup, got %d", len(out))
	}
}

func TestMessageFromWire(t *testing.T) {
	m := MessageFromWire(WireMessage{
		ID:        "m1",
		SenderID:  "u1",
		Message:   "hello",
		CreatedAt: "2026-08-01T10:00:00Z",
		Sender:    &WireParticipant{ID: "u1", Name: "An"},
	})
	if m.State != MessageConfirmed {
		t.Fatalf("server messages must be confirmed, got %s", m.State)
	}
	if m.Body != "hello" {
		t.Fatalf("message field should populate body, got %q", m.Body)
	}
	if m.CreatedAt.IsZero() {
		t.Fatal("created_at should be parsed")
	}

	alt := MessageFromWire(WireMessage{ID: "m2", Body: "alt body"})
	if alt.Body != "alt body" {
		t.Fatalf("body field fallback failed, got %q", alt.Body)
	}
}

func TestMessageBetween(t *testing.T) {
	m := Message{SenderID: "a", ReceiverID: "b"}
	if !m.Between("a", "b") || !m.Between("b", "a") {
		t.Fatal("conversation match must work in both directions")
	}
	if m.Between("a", "c") {
		t.Fatal("unrelated counterpart must not match")
	}
}

func timePtr(ts time.Time) *time.Time { return &ts }
