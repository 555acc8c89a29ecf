// Package handlers exposes the gateway's JSON endpoints and owns the
// per-user sessions behind them. A session bundles the cart state, the chat
// controller and the push channel pump for one authenticated buyer.
package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/viemarket/storefront/internal/cart"
	"github.com/viemarket/storefront/internal/chat"
	"github.com/viemarket/storefront/internal/domain"
	"github.com/viemarket/storefront/internal/platform/config"
	"github.com/viemarket/storefront/internal/platform/kv"
	"github.com/viemarket/storefront/internal/platform/requestctx"
	"github.com/viemarket/storefront/internal/realtime"
	"github.com/viemarket/storefront/internal/upstream"
)

// MarketplaceAPI is the slice of the upstream client the session layer needs.
// *upstream.Client satisfies it; tests substitute fakes.
type MarketplaceAPI interface {
	Cart(ctx context.Context) ([]domain.CartItem, error)
	Vouchers(ctx context.Context) ([]domain.Voucher, error)
	ApplyVoucher(ctx context.Context, req upstream.ApplyVoucherRequest) (upstream.ApplyVoucherResult, error)
	MessagePage(ctx context.Context, counterpartID string, page, pageSize int) (upstream.MessagePage, error)
	SendMessage(ctx context.Context, req upstream.SendMessageRequest) (domain.Message, error)
}

// UserSession is one buyer's live state inside the gateway.
type UserSession struct {
	Cart *cart.Session
	Chat *chat.Controller

	channel  realtime.Channel
	pumpDone chan struct{}
}

// SessionManager hands out per-user sessions, creating them on first use.
// Sessions live for the gateway's lifetime; the backing kv store carries the
// state that must survive restarts.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*UserSession

	api         MarketplaceAPI
	dialer      realtime.Dialer
	realtimeURL string
	store       kv.Store
	fees        config.PricingTable
	chatCfg     config.ChatConfig
	logger      *zap.Logger
	now         func() time.Time
}

// SessionManagerDeps bundles the collaborators a SessionManager needs.
type SessionManagerDeps struct {
	API         MarketplaceAPI
	Dialer      realtime.Dialer
	RealtimeURL string
	Store       kv.Store
	Fees        config.PricingTable
	Chat        config.ChatConfig
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewSessionManager constructs the session registry.
func NewSessionManager(deps SessionManagerDeps) (*SessionManager, error) {
	if deps.API == nil {
		return nil, errors.New("handlers: marketplace API is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	chatCfg := deps.Chat
	if chatCfg.PageSize <= 0 {
		chatCfg.PageSize = 15
	}
	return &SessionManager{
		sessions:    make(map[string]*UserSession),
		api:         deps.API,
		dialer:      deps.Dialer,
		realtimeURL: deps.RealtimeURL,
		store:       deps.Store,
		fees:        deps.Fees,
		chatCfg:     chatCfg,
		logger:      logger,
		now:         now,
	}, nil
}

// Session returns the live session for the identity, creating it on first
// use. The push channel is dialled once per session; a failed dial degrades
// to polling-free operation rather than failing the request.
func (m *SessionManager) Session(id requestctx.Identity) (*UserSession, error) {
	if id.UserID == "" {
		return nil, cart.ErrUnauthenticated
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id.UserID]; ok {
		return s, nil
	}

	logger := m.logger.With(zap.String("user_id", id.UserID))

	cartSession, err := cart.NewSession(cart.SessionDeps{
		UserID: id.UserID,
		API:    m.api,
		Fees:   m.fees,
		Logger: logger.Named("cart"),
		Now:    m.now,
	})
	if err != nil {
		return nil, err
	}
	chatController, err := chat.NewController(chat.ControllerDeps{
		UserID:    id.UserID,
		API:       m.api,
		Store:     m.store,
		Logger:    logger.Named("chat"),
		Now:       m.now,
		PageSize:  m.chatCfg.PageSize,
		TypingTTL: m.chatCfg.TypingTTL,
	})
	if err != nil {
		return nil, err
	}

	s := &UserSession{Cart: cartSession, Chat: chatController}
	if m.dialer != nil && m.realtimeURL != "" {
		channel, err := m.dialer.Dial(m.realtimeURL, id.Token)
		if err != nil {
			logger.Warn("realtime dial failed, continuing without push", zap.Error(err))
			chatController.SetStatus(realtime.StatusError)
		} else {
			s.channel = channel
			s.pumpDone = make(chan struct{})
			go pump(channel, chatController, s.pumpDone)
		}
	}

	m.sessions[id.UserID] = s
	return s, nil
}

// RefreshCart reloads cart items from the marketplace into the session.
func (m *SessionManager) RefreshCart(ctx context.Context, s *UserSession) error {
	items, err := m.api.Cart(ctx)
	if err != nil {
		return err
	}
	s.Cart.SetItems(items)
	return nil
}

// Close tears down every session's push channel.
func (m *SessionManager) Close() {
	m.mu.Lock()
	sessions := make([]*UserSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*UserSession)
	m.mu.Unlock()

	for _, s := range sessions {
		if s.channel != nil {
			_ = s.channel.Close()
			<-s.pumpDone
		}
		s.Chat.Close()
	}
}

// pump feeds push events and status changes into the chat controller until
// the channel closes.
func pump(ch realtime.Channel, ctrl *chat.Controller, done chan<- struct{}) {
	defer close(done)
	events := ch.Events()
	statuses := ch.StatusChanges()
	for events != nil || statuses != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			ctrl.HandleEvent(ev)
		case st, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			ctrl.SetStatus(st)
		}
	}
}
