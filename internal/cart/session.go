package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/viemarket/storefront/internal/domain"
	"github.com/viemarket/storefront/internal/platform/config"
	"github.com/viemarket/storefront/internal/upstream"
)

var (
	// ErrUnauthenticated blocks voucher application for anonymous sessions.
	ErrUnauthenticated = errors.New("cart: sign in to apply a voucher")
	// ErrApplyInFlight rejects a second apply for a scope that already has one pending.
	ErrApplyInFlight = errors.New("cart: a voucher is already being applied for this scope")
	// ErrVoucherNotFound means the code is not among the user's candidates.
	ErrVoucherNotFound = errors.New("cart: voucher not found")
	// ErrVoucherNotEligible means the voucher cannot serve this scope right now.
	ErrVoucherNotEligible = errors.New("cart: voucher is not eligible")
)

// VoucherAPI is the slice of the upstream client the session needs.
type VoucherAPI interface {
	Vouchers(ctx context.Context) ([]domain.Voucher, error)
	ApplyVoucher(ctx context.Context, req upstream.ApplyVoucherRequest) (upstream.ApplyVoucherResult, error)
}

// Session owns one buyer's cart state: items, selection, applied vouchers
// per scope and the server overrides that supersede client estimates. All
// derived totals are recomputed synchronously on every mutation and the
// registered summary consumer is notified with a consistent snapshot.
type Session struct {
	mu sync.Mutex

	userID string
	api    VoucherAPI
	fees   config.PricingTable
	logger *zap.Logger
	now    func() time.Time

	items         []domain.CartItem
	selected      map[string]struct{}
	candidates    []domain.Voucher
	applied       map[Scope]domain.Voucher
	overrides     map[Scope]Override
	paymentMethod string

	inflight map[Scope]context.CancelFunc
	seq      map[Scope]uint64

	onSummary func(PaymentSummary)
}

// SessionDeps bundles the collaborators a Session needs.
type SessionDeps struct {
	// UserID is empty for anonymous sessions; those may browse but not apply.
	UserID string
	API    VoucherAPI
	Fees   config.PricingTable
	Logger *zap.Logger
	Now    func() time.Time
}

// NewSession constructs a cart session.
func NewSession(deps SessionDeps) (*Session, error) {
	if deps.API == nil {
		return nil, errors.New("cart: voucher API is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		userID:    deps.UserID,
		api:       deps.API,
		fees:      deps.Fees,
		logger:    logger,
		now:       func() time.Time { return now().UTC() },
		applied:   make(map[Scope]domain.Voucher),
		overrides: make(map[Scope]Override),
		inflight:  make(map[Scope]context.CancelFunc),
		seq:       make(map[Scope]uint64),
	}, nil
}

// OnSummary registers the checkout collaborator notified after every
// recompute. The callback runs synchronously under the session lock; it must
// not call back into the session.
func (s *Session) OnSummary(fn func(PaymentSummary)) {
	s.mu.Lock()
	s.onSummary = fn
	s.mu.Unlock()
}

// SetItems replaces the cart contents and re-derives all totals.
func (s *Session) SetItems(items []domain.CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.emitLocked()
}

// SetSelection limits pricing to an explicit set of item ids. A nil set
// means every item participates.
func (s *Session) SetSelection(itemIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if itemIDs == nil {
		s.selected = nil
	} else {
		s.selected = make(map[string]struct{}, len(itemIDs))
		for _, id := range itemIDs {
			s.selected[id] = struct{}{}
		}
	}
	s.emitLocked()
}

// SetPaymentMethod records the chosen payment method.
func (s *Session) SetPaymentMethod(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paymentMethod = method
	s.emitLocked()
}

// RefreshVouchers reloads the user's candidate vouchers.
func (s *Session) RefreshVouchers(ctx context.Context) error {
	vouchers, err := s.api.Vouchers(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.candidates = vouchers
	s.mu.Unlock()
	return nil
}

// Candidates returns the ranked vouchers eligible for the scope.
func (s *Session) Candidates(scope Scope) []domain.Voucher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CandidatesFor(s.candidates, scope, s.now())
}

// Applied returns the voucher currently applied to the scope, if any.
func (s *Session) Applied(scope Scope) (domain.Voucher, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.applied[scope]
	return v, ok
}

// Apply validates the voucher with the server and, on success, records it as
// applied for the scope together with the authoritative discount. At most
// one apply per scope may be in flight; a Clear or re-Apply for the scope
// supersedes a pending call, whose late result is then discarded.
func (s *Session) Apply(ctx context.Context, scope Scope, code string) error {
	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return ErrUnauthenticated
	}
	if _, busy := s.inflight[scope]; busy {
		s.mu.Unlock()
		return ErrApplyInFlight
	}

	voucher, err := s.pickCandidateLocked(scope, code)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	req := s.applyRequestLocked(scope, voucher)

	callCtx, cancel := context.WithCancel(ctx)
	s.seq[scope]++
	mySeq := s.seq[scope]
	s.inflight[scope] = cancel
	s.mu.Unlock()

	result, applyErr := s.api.ApplyVoucher(callCtx, req)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seq[scope] != mySeq {
		// The scope changed while we were waiting; this verdict belongs to a
		// superseded request and must not be merged.
		s.logger.Debug("discarding stale voucher verdict",
			zap.String("code", voucher.Code), zap.String("scope", scope.ShopID()))
		return nil
	}
	delete(s.inflight, scope)

	if applyErr != nil {
		if apiErr, ok := upstream.AsAPIError(applyErr); ok && apiErr.AlreadyUsed() {
			s.markUsedLocked(voucher.Code)
		}
		return applyErr
	}

	s.applied[scope] = voucher
	s.overrides[scope] = Override{Discount: result.Discount, FreeShipping: result.FreeShipping}
	s.logger.Info("voucher applied",
		zap.String("code", voucher.Code),
		zap.String("scope", scope.ShopID()),
		zap.Int64("discount", result.Discount),
		zap.Bool("free_shipping", result.FreeShipping))
	s.emitLocked()
	return nil
}

// Clear removes the applied voucher and its server override for the scope,
// reverting it to zero discount and paid shipping. A pending apply for the
// scope is cancelled and its late result discarded.
func (s *Session) Clear(scope Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.inflight[scope]; ok {
		cancel()
		delete(s.inflight, scope)
	}
	s.seq[scope]++
	delete(s.applied, scope)
	delete(s.overrides, scope)
	s.emitLocked()
}

// Summary derives the current consolidated snapshot.
func (s *Session) Summary() PaymentSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

func (s *Session) pickCandidateLocked(scope Scope, code string) (domain.Voucher, error) {
	now := s.now()
	for _, v := range s.candidates {
		if v.Code != code {
			continue
		}
		if scope.Global() && !v.Platform() {
			continue
		}
		if !scope.Global() && !v.EligibleFor(scope.ShopID()) {
			continue
		}
		if v.Used || !v.Active || v.Expired(now) {
			return domain.Voucher{}, ErrVoucherNotEligible
		}
		return v, nil
	}
	return domain.Voucher{}, ErrVoucherNotFound
}

func (s *Session) applyRequestLocked(scope Scope, voucher domain.Voucher) upstream.ApplyVoucherRequest {
	req := upstream.ApplyVoucherRequest{Code: voucher.Code}
	if !scope.Global() {
		shopID := scope.ShopID()
		req.ShopID = &shopID
	}
	for _, group := range GroupByShop(s.items, s.selected) {
		if !scope.Global() && group.ShopID != scope.ShopID() {
			continue
		}
		for _, item := range group.Items {
			req.Items = append(req.Items, upstream.VoucherItem{
				ShopID:    item.ShopID,
				ProductID: item.Product.ID,
				Price:     item.EffectiveUnitPrice(),
				Quantity:  item.Quantity,
			})
		}
	}
	return req
}

func (s *Session) markUsedLocked(code string) {
	for i := range s.candidates {
		if s.candidates[i].Code == code {
			s.candidates[i].Used = true
		}
	}
}

func (s *Session) summaryLocked() PaymentSummary {
	now := s.now()
	groups := GroupByShop(s.items, s.selected)

	var subtotalAll int64
	for _, group := range groups {
		subtotalAll += group.Subtotal()
	}

	globalOverride, hasGlobalOverride := s.overrides[ScopeGlobal]
	globalVoucher, hasGlobalVoucher := s.applied[ScopeGlobal]

	var globalDiscount int64
	globalFreeShipping := false
	switch {
	case hasGlobalOverride:
		globalDiscount = globalOverride.Discount
		globalFreeShipping = globalOverride.FreeShipping
	case hasGlobalVoucher && globalVoucher.Active && !globalVoucher.Expired(now):
		globalDiscount, globalFreeShipping = EstimateDiscount(globalVoucher, subtotalAll)
	}

	shops := make([]ShopLine, 0, len(groups))
	summaries := make([]ShopSummary, 0, len(groups))
	codes := make([]string, 0, 2)
	if hasGlobalVoucher {
		codes = append(codes, globalVoucher.Code)
	}

	var totalShopDiscount, totalShipping int64
	for _, group := range groups {
		scope := ShopScope(group.ShopID)

		var appliedPtr *domain.Voucher
		code := ""
		if v, ok := s.applied[scope]; ok {
			voucher := v
			appliedPtr = &voucher
			code = v.Code
			codes = append(codes, v.Code)
		}
		var overridePtr *Override
		if o, ok := s.overrides[scope]; ok {
			override := o
			overridePtr = &override
		}

		summary := PriceShop(group, appliedPtr, overridePtr, globalFreeShipping, s.fees.FeeFor(group.ShopID), now)
		summaries = append(summaries, summary)
		totalShopDiscount += summary.Discount
		totalShipping += summary.Shipping

		shops = append(shops, ShopLine{
			ShopID:      group.ShopID,
			ShopName:    group.ShopName,
			Items:       group.Items,
			Summary:     summary,
			VoucherCode: code,
		})
	}

	total := GrandTotal(subtotalAll, globalDiscount, summaries)

	return PaymentSummary{
		PaymentMethod:      s.paymentMethod,
		Shops:              shops,
		GlobalDiscount:     globalDiscount,
		GlobalFreeShipping: globalFreeShipping,
		Overall: Totals{
			Subtotal: subtotalAll,
			Discount: globalDiscount + totalShopDiscount,
			Shipping: totalShipping,
			Total:    total,
		},
		VoucherCodes: codes,
	}
}

func (s *Session) emitLocked() {
	if s.onSummary == nil {
		return
	}
	s.onSummary(s.summaryLocked())
}
