package handlers

import (
	"time"

	"github.com/viemarket/storefront/internal/cart"
	"github.com/viemarket/storefront/internal/chat"
	"github.com/viemarket/storefront/internal/domain"
)

type itemView struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	VariantID string `json:"variant_id,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

type shopView struct {
	ShopID       string     `json:"shop_id"`
	ShopName     string     `json:"shop_name"`
	Items        []itemView `json:"items"`
	Subtotal     int64      `json:"subtotal"`
	Discount     int64      `json:"discount"`
	Shipping     int64      `json:"shipping"`
	FreeShipping bool       `json:"free_shipping"`
	LineTotal    int64      `json:"line_total"`
	VoucherCode  string     `json:"voucher_code,omitempty"`
}

type summaryView struct {
	PaymentMethod      string     `json:"payment_method,omitempty"`
	Shops              []shopView `json:"shops"`
	GlobalDiscount     int64      `json:"global_discount"`
	GlobalFreeShipping bool       `json:"global_free_shipping"`
	Subtotal           int64      `json:"subtotal"`
	Discount           int64      `json:"discount"`
	Shipping           int64      `json:"shipping"`
	Total              int64      `json:"total"`
	VoucherCodes       []string   `json:"voucher_codes,omitempty"`
}

func newItemView(item domain.CartItem) itemView {
	image := ""
	if len(item.Product.Images) > 0 {
		image = item.Product.Images[0]
	}
	variantID := ""
	if item.Variant != nil {
		variantID = item.Variant.ID
	}
	return itemView{
		ID:        item.ID,
		ProductID: item.Product.ID,
		Name:      item.Product.Name,
		Image:     image,
		VariantID: variantID,
		UnitPrice: item.EffectiveUnitPrice(),
		Quantity:  item.Quantity,
		Subtotal:  item.LineSubtotal(),
	}
}

func newSummaryView(s cart.PaymentSummary) summaryView {
	shops := make([]shopView, 0, len(s.Shops))
	for _, line := range s.Shops {
		items := make([]itemView, 0, len(line.Items))
		for _, item := range line.Items {
			items = append(items, newItemView(item))
		}
		shops = append(shops, shopView{
			ShopID:       line.ShopID,
			ShopName:     line.ShopName,
			Items:        items,
			Subtotal:     line.Summary.Subtotal,
			Discount:     line.Summary.Discount,
			Shipping:     line.Summary.Shipping,
			FreeShipping: line.Summary.FreeShipping,
			LineTotal:    line.Summary.LineTotal,
			VoucherCode:  line.VoucherCode,
		})
	}
	return summaryView{
		PaymentMethod:      s.PaymentMethod,
		Shops:              shops,
		GlobalDiscount:     s.GlobalDiscount,
		GlobalFreeShipping: s.GlobalFreeShipping,
		Subtotal:           s.Overall.Subtotal,
		Discount:           s.Overall.Discount,
		Shipping:           s.Overall.Shipping,
		Total:              s.Overall.Total,
		VoucherCodes:       s.VoucherCodes,
	}
}

type voucherView struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	Kind      string     `json:"kind"`
	Value     int64      `json:"value"`
	MinOrder  *int64     `json:"min_order,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	ShopID    *string    `json:"shop_id,omitempty"`
	Used      bool       `json:"used"`
}

func newVoucherViews(vouchers []domain.Voucher) []voucherView {
	out := make([]voucherView, 0, len(vouchers))
	for _, v := range vouchers {
		out = append(out, voucherView{
			ID:        v.ID,
			Code:      v.Code,
			Kind:      string(v.Kind),
			Value:     v.Value,
			MinOrder:  v.MinOrder,
			ExpiresAt: v.ExpiresAt,
			ShopID:    v.ShopID,
			Used:      v.Used,
		})
	}
	return out
}

type messageView struct {
	ID         string    `json:"id,omitempty"`
	TempID     string    `json:"temp_id,omitempty"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Body       string    `json:"body"`
	ImageURL   string    `json:"image_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	State      string    `json:"state"`
	FailReason string    `json:"fail_reason,omitempty"`
}

type conversationView struct {
	State       string        `json:"state"`
	Counterpart string        `json:"counterpart_id"`
	Messages    []messageView `json:"messages"`
	HasMore     bool          `json:"has_more"`
	Typing      bool          `json:"typing"`
	Unread      int           `json:"unread"`
}

func newMessageView(m domain.Message) messageView {
	return messageView{
		ID:         m.ID,
		TempID:     m.TempID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Body:       m.Body,
		ImageURL:   m.ImageURL,
		CreatedAt:  m.CreatedAt,
		State:      string(m.State),
		FailReason: m.FailReason,
	}
}

func newConversationView(s chat.Snapshot) conversationView {
	msgs := make([]messageView, 0, len(s.Messages))
	for _, m := range s.Messages {
		msgs = append(msgs, newMessageView(m))
	}
	return conversationView{
		State:       string(s.State),
		Counterpart: s.Counterpart,
		Messages:    msgs,
		HasMore:     s.HasMore,
		Typing:      s.Typing,
		Unread:      s.Unread,
	}
}
