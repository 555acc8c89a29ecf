package domain

import (
	"strings"
	"time"
)

// This file is the single normalization boundary for upstream API payloads.
// The remote API is not entirely consistent about field names across
// endpoints (vouchers in particular come back as discount_type/type and
// end_date/expires_at depending on the screen that created them), so each
// external shape is converted to its canonical type here and nowhere else.

// WireProduct mirrors the product snapshot nested in cart payloads.
type WireProduct struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Images    []string `json:"images"`
	Price     int64    `json:"price"`
	SalePrice *int64   `json:"sale_price"`
}

// WireVariant mirrors the optional selected variant.
type WireVariant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Price     *int64 `json:"price"`
	SalePrice *int64 `json:"sale_price"`
}

// WireCartItem mirrors one cart line as returned by the cart endpoint.
type WireCartItem struct {
	ID       string       `json:"id"`
	Quantity int          `json:"quantity"`
	ShopID   string       `json:"shop_id"`
	ShopName string       `json:"shop_name"`
	Product  WireProduct  `json:"product"`
	Variant  *WireVariant `json:"variant"`
}

// CartItemFromWire converts an upstream cart line into the canonical type.
func CartItemFromWire(w WireCartItem) CartItem {
	item := CartItem{
		ID:       strings.TrimSpace(w.ID),
		Quantity: w.Quantity,
		ShopID:   strings.TrimSpace(w.ShopID),
		ShopName: strings.TrimSpace(w.ShopName),
		Product: Product{
			ID:        strings.TrimSpace(w.Product.ID),
			Name:      w.Product.Name,
			Images:    w.Product.Images,
			Price:     w.Product.Price,
			SalePrice: w.Product.SalePrice,
		},
	}
	if w.Variant != nil {
		item.Variant = &Variant{
			ID:        strings.TrimSpace(w.Variant.ID),
			Name:      w.Variant.Name,
			Price:     w.Variant.Price,
			SalePrice: w.Variant.SalePrice,
		}
	}
	if item.Quantity < 0 {
		item.Quantity = 0
	}
	return item
}

// WireVoucher mirrors a voucher from the voucher list endpoint, tolerating
// the two field-name generations the API serves.
type WireVoucher struct {
	ID           string  `json:"id"`
	Code         string  `json:"code"`
	DiscountType string  `json:"discount_type"`
	Type         string  `json:"type"`
	Value        int64   `json:"value"`
	MinOrder     *int64  `json:"min_order"`
	EndDate      *string `json:"end_date"`
	ExpiresAt    *string `json:"expires_at"`
	Active       *bool   `json:"active"`
	IsActive     *bool   `json:"is_active"`
	ShopID       *string `json:"shop_id"`
	Used         *bool   `json:"used"`
	IsUsed       *bool   `json:"is_used"`
}

// VoucherFromWire converts an upstream voucher into the canonical shape.
// Unknown discount kinds come back as fixed amounts, which is how the
// storefront has always rendered them.
func VoucherFromWire(w WireVoucher) Voucher {
	v := Voucher{
		ID:       strings.TrimSpace(w.ID),
		Code:     strings.ToUpper(strings.TrimSpace(w.Code)),
		Kind:     normalizeVoucherKind(firstNonEmpty(w.DiscountType, w.Type)),
		Value:    w.Value,
		MinOrder: w.MinOrder,
		Active:   true,
	}
	if w.Active != nil {
		v.Active = *w.Active
	} else if w.IsActive != nil {
		v.Active = *w.IsActive
	}
	if w.Used != nil {
		v.Used = *w.Used
	} else if w.IsUsed != nil {
		v.Used = *w.IsUsed
	}
	if w.ShopID != nil && strings.TrimSpace(*w.ShopID) != "" {
		shop := strings.TrimSpace(*w.ShopID)
		v.ShopID = &shop
	}
	if ts := parseWireTime(firstNonEmptyPtr(w.EndDate, w.ExpiresAt)); ts != nil {
		v.ExpiresAt = ts
	}
	if v.Value < 0 {
		v.Value = 0
	}
	return v
}

// DedupVouchers removes duplicates by (code, shop scope), keeping the first
// occurrence. The voucher list endpoint can return the same code twice when
// a shop-scoped and a platform copy both exist; those are distinct scopes.
func DedupVouchers(vouchers []Voucher) []Voucher {
	seen := make(map[string]struct{}, len(vouchers))
	out := vouchers[:0:0]
	for _, v := range vouchers {
		scope := ""
		if v.ShopID != nil {
			scope = *v.ShopID
		}
		key := v.Code + "|" + scope
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// WireParticipant mirrors the sender/receiver snapshots on messages.
type WireParticipant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// WireMessage mirrors one chat message from the message endpoints and the
// realtime channel.
type WireMessage struct {
	ID         string           `json:"id"`
	SenderID   string           `json:"sender_id"`
	ReceiverID string           `json:"receiver_id"`
	Message    string           `json:"message"`
	Body       string           `json:"body"`
	Image      string           `json:"image"`
	CreatedAt  string           `json:"created_at"`
	Sender     *WireParticipant `json:"sender"`
	Receiver   *WireParticipant `json:"receiver"`
}

// MessageFromWire converts an upstream message into the canonical type.
// Server-delivered messages are always confirmed.
func MessageFromWire(w WireMessage) Message {
	m := Message{
		ID:         strings.TrimSpace(w.ID),
		SenderID:   strings.TrimSpace(w.SenderID),
		ReceiverID: strings.TrimSpace(w.ReceiverID),
		Body:       firstNonEmpty(w.Message, w.Body),
		ImageURL:   strings.TrimSpace(w.Image),
		State:      MessageConfirmed,
	}
	if ts := parseWireTime(&w.CreatedAt); ts != nil {
		m.CreatedAt = *ts
	}
	if w.Sender != nil {
		m.Sender = Participant{ID: w.Sender.ID, Name: w.Sender.Name, AvatarURL: w.Sender.AvatarURL}
	}
	if w.Receiver != nil {
		m.Receiver = Participant{ID: w.Receiver.ID, Name: w.Receiver.Name, AvatarURL: w.Receiver.AvatarURL}
	}
	return m
}

func normalizeVoucherKind(raw string) VoucherKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "percent", "percentage":
		return VoucherPercent
	case "shipping", "free_shipping", "freeship":
		return VoucherShipping
	default:
		return VoucherAmount
	}
}

var wireTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseWireTime(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil
	}
	for _, layout := range wireTimeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstNonEmptyPtr(values ...*string) *string {
	for _, v := range values {
		if v != nil && strings.TrimSpace(*v) != "" {
			return v
		}
	}
	return nil
}
