package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/viemarket/storefront/internal/cart"
	"github.com/viemarket/storefront/internal/platform/httpx"
	"github.com/viemarket/storefront/internal/platform/requestctx"
)

// CartHandlers exposes the cart and checkout endpoints.
type CartHandlers struct {
	sessions *SessionManager
}

// NewCartHandlers constructs the cart endpoint group.
func NewCartHandlers(sessions *SessionManager) *CartHandlers {
	return &CartHandlers{sessions: sessions}
}

// Routes mounts the cart endpoints on the given router.
func (h *CartHandlers) Routes(r chi.Router) {
	r.Get("/", h.getCart)
	r.Put("/selection", h.putSelection)
	r.Put("/payment-method", h.putPaymentMethod)
	r.Get("/vouchers", h.listVouchers)
	r.Post("/voucher", h.applyVoucher)
	r.Delete("/voucher", h.clearVoucher)
}

// RegisterCheckoutRoutes mounts the checkout summary outside the /cart group.
func (h *CartHandlers) RegisterCheckoutRoutes(r chi.Router) {
	r.Get("/checkout/summary", h.getSummary)
}

func (h *CartHandlers) session(w http.ResponseWriter, r *http.Request) (*UserSession, bool) {
	id, _ := requestctx.IdentityFrom(r.Context())
	s, err := h.sessions.Session(id)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return nil, false
	}
	return s, true
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.sessions.RefreshCart(r.Context(), s); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newSummaryView(s.Cart.Summary()))
}

func (h *CartHandlers) putSelection(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		ItemIDs []string `json:"item_ids"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "body must be {\"item_ids\": [...]}", http.StatusBadRequest))
		return
	}
	s.Cart.SetSelection(req.ItemIDs)
	httpx.WriteJSON(w, http.StatusOK, newSummaryView(s.Cart.Summary()))
}

func (h *CartHandlers) putPaymentMethod(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Method string `json:"method"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil || strings.TrimSpace(req.Method) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "body must be {\"method\": \"...\"}", http.StatusBadRequest))
		return
	}
	s.Cart.SetPaymentMethod(strings.TrimSpace(req.Method))
	httpx.WriteJSON(w, http.StatusOK, newSummaryView(s.Cart.Summary()))
}

func (h *CartHandlers) listVouchers(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Cart.RefreshVouchers(r.Context()); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	scope := scopeFromQuery(r)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"vouchers": newVoucherViews(s.Cart.Candidates(scope)),
	})
}

func (h *CartHandlers) applyVoucher(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Code   string `json:"code"`
		ShopID string `json:"shop_id"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil || strings.TrimSpace(req.Code) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "body must be {\"code\": \"...\", \"shop_id\": \"...\"}", http.StatusBadRequest))
		return
	}
	scope := cart.ScopeGlobal
	if shopID := strings.TrimSpace(req.ShopID); shopID != "" {
		scope = cart.ShopScope(shopID)
	}
	// Voucher codes are normalized to upper case everywhere.
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if err := s.Cart.RefreshVouchers(r.Context()); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if err := s.Cart.Apply(r.Context(), scope, code); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newSummaryView(s.Cart.Summary()))
}

func (h *CartHandlers) clearVoucher(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Cart.Clear(scopeFromQuery(r))
	httpx.WriteJSON(w, http.StatusOK, newSummaryView(s.Cart.Summary()))
}

func (h *CartHandlers) getSummary(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newSummaryView(s.Cart.Summary()))
}

func scopeFromQuery(r *http.Request) cart.Scope {
	if shopID := strings.TrimSpace(r.URL.Query().Get("shop_id")); shopID != "" {
		return cart.ShopScope(shopID)
	}
	return cart.ScopeGlobal
}
