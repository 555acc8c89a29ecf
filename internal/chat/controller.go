package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/viemarket/storefront/internal/domain"
	"github.com/viemarket/storefront/internal/platform/kv"
	"github.com/viemarket/storefront/internal/realtime"
	"github.com/viemarket/storefront/internal/upstream"
)

var (
	// ErrUnauthenticated blocks sending for anonymous sessions.
	ErrUnauthenticated = errors.New("chat: sign in to send messages")
	// ErrNoConversation means no conversation is open.
	ErrNoConversation = errors.New("chat: no conversation is open")
	// ErrEmptyMessage rejects sends with neither text nor image.
	ErrEmptyMessage = errors.New("chat: message is empty")
	// ErrTimedOut marks an upstream timeout, surfaced distinctly so the
	// caller can suggest a retry.
	ErrTimedOut = errors.New("chat: request timed out, please try again")
)

const lastConversationKey = "chat:last_conversation"

// State is the conversation lifecycle the view renders against.
type State string

const (
	// StateIdle means no conversation is open.
	StateIdle State = "idle"
	// StateLoading means the first page is in flight.
	StateLoading State = "loading"
	// StateReady means the window is rendered and live.
	StateReady State = "ready"
	// StateLoadingMore means an older page is in flight behind a ready window.
	StateLoadingMore State = "loading_more"
)

// PrependAnchor tells the view how to keep its scroll position after an
// older page lands: stay pinned to AnchorKey, which sat at the top before
// Added entries were inserted above it.
type PrependAnchor struct {
	AnchorKey string
	Added     int
}

// SendInput is what the user typed; returned inside SendFailedError so a
// failed send can restore the composer.
type SendInput struct {
	Text  string
	Image *upstream.Attachment
}

// SendFailedError reports a rejected send together with the input to restore.
type SendFailedError struct {
	Input SendInput
	Err   error
}

func (e *SendFailedError) Error() string { return fmt.Sprintf("chat: send failed: %v", e.Err) }
func (e *SendFailedError) Unwrap() error { return e.Err }

// MessageAPI is the slice of the upstream client the controller needs.
type MessageAPI interface {
	MessagePage(ctx context.Context, counterpartID string, page, pageSize int) (upstream.MessagePage, error)
	SendMessage(ctx context.Context, req upstream.SendMessageRequest) (domain.Message, error)
}

// Controller owns one buyer's chat state: the open conversation window,
// pagination, optimistic sends and the push events feeding them. Every page
// fetch is keyed to (conversation, sequence); responses for a superseded key
// are discarded so a fast conversation switch never renders stale history.
type Controller struct {
	mu sync.Mutex

	userID    string
	api       MessageAPI
	store     kv.Namespaced
	sanitizer *bluemonday.Policy
	logger    *zap.Logger
	now       func() time.Time
	pageSize  int
	typingTTL time.Duration

	state        State
	counterpart  string
	window       []domain.Message
	page         int
	hasMore      bool
	loadingOlder bool

	fetchSeq    uint64
	cancelFetch context.CancelFunc

	typing      bool
	typingTimer *time.Timer

	status        realtime.Status
	notifications []domain.Message
	unread        int
}

// ControllerDeps bundles the collaborators a Controller needs.
type ControllerDeps struct {
	// UserID is empty for anonymous sessions; those may read but not send.
	UserID    string
	API       MessageAPI
	Store     kv.Store
	Logger    *zap.Logger
	Now       func() time.Time
	PageSize  int
	TypingTTL time.Duration
}

// NewController constructs a chat controller.
func NewController(deps ControllerDeps) (*Controller, error) {
	if deps.API == nil {
		return nil, errors.New("chat: message API is required")
	}
	if deps.PageSize <= 0 {
		return nil, errors.New("chat: page size must be positive")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ttl := deps.TypingTTL
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &Controller{
		userID:    deps.UserID,
		api:       deps.API,
		store:     kv.ForUser(deps.Store, deps.UserID),
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
		now:       func() time.Time { return now().UTC() },
		pageSize:  deps.PageSize,
		typingTTL: ttl,
		state:     StateIdle,
		status:    realtime.StatusConnecting,
	}, nil
}

// LastConversation returns the counterpart the user last had open, if any.
func (c *Controller) LastConversation(ctx context.Context) (string, bool) {
	id, err := c.store.Get(ctx, lastConversationKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.logger.Warn("last conversation lookup failed", zap.Error(err))
		}
		return "", false
	}
	return id, id != ""
}

// Open switches to the conversation with counterpartID, resetting the window
// and loading its first page. Unread state for that counterpart is cleared.
func (c *Controller) Open(ctx context.Context, counterpartID string) error {
	if counterpartID == "" {
		return ErrNoConversation
	}

	c.mu.Lock()
	c.resetFetchLocked()
	c.counterpart = counterpartID
	c.state = StateLoading
	c.window = nil
	c.page = 0
	c.hasMore = false
	c.loadingOlder = false
	c.typing = false
	c.clearUnreadLocked(counterpartID)
	seq := c.fetchSeq
	callCtx, cancel := context.WithCancel(ctx)
	c.cancelFetch = cancel
	c.mu.Unlock()

	page, err := c.api.MessagePage(callCtx, counterpartID, 1, c.pageSize)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchSeq != seq || c.counterpart != counterpartID {
		return nil
	}
	c.cancelFetch = nil
	if err != nil {
		c.state = StateIdle
		return c.mapUpstreamErr(err, "open conversation")
	}
	c.window = c.sanitizeAll(page.Messages)
	sortWindow(c.window)
	c.page = page.CurrentPage
	c.hasMore = page.HasMore()
	c.state = StateReady

	if c.userID != "" {
		if err := c.store.Set(ctx, lastConversationKey, counterpartID); err != nil {
			c.logger.Warn("persist last conversation failed", zap.Error(err))
		}
	}
	return nil
}

// LoadOlder fetches the next older page and prepends it. While a load is
// already pending, or when the server reported no more pages, it is a no-op.
func (c *Controller) LoadOlder(ctx context.Context) (PrependAnchor, error) {
	c.mu.Lock()
	if c.state != StateReady && c.state != StateLoadingMore {
		c.mu.Unlock()
		return PrependAnchor{}, nil
	}
	if c.loadingOlder || !c.hasMore {
		c.mu.Unlock()
		return PrependAnchor{}, nil
	}
	c.loadingOlder = true
	c.state = StateLoadingMore
	counterpart := c.counterpart
	nextPage := c.page + 1
	seq := c.fetchSeq
	callCtx, cancel := context.WithCancel(ctx)
	c.cancelFetch = cancel
	c.mu.Unlock()

	page, err := c.api.MessagePage(callCtx, counterpart, nextPage, c.pageSize)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchSeq != seq || c.counterpart != counterpart {
		return PrependAnchor{}, nil
	}
	c.cancelFetch = nil
	c.loadingOlder = false
	c.state = StateReady
	if err != nil {
		return PrependAnchor{}, c.mapUpstreamErr(err, "load older page")
	}

	anchor := ""
	if len(c.window) > 0 {
		anchor = c.window[0].Key()
	}
	var added int
	c.window, added = Prepend(c.window, c.sanitizeAll(page.Messages))
	c.page = nextPage
	c.hasMore = page.HasMore()
	return PrependAnchor{AnchorKey: anchor, Added: added}, nil
}

// Send delivers a message optimistically: the entry appears in the window
// immediately and the server echo later confirms it. On failure the entry is
// removed and the typed input comes back inside SendFailedError.
func (c *Controller) Send(ctx context.Context, text string, image *upstream.Attachment) (domain.Message, error) {
	input := SendInput{Text: text, Image: image}
	if c.userID == "" {
		return domain.Message{}, &SendFailedError{Input: input, Err: ErrUnauthenticated}
	}
	if text == "" && image == nil {
		return domain.Message{}, &SendFailedError{Input: input, Err: ErrEmptyMessage}
	}
	if err := ValidateAttachment(image); err != nil {
		return domain.Message{}, &SendFailedError{Input: input, Err: err}
	}

	c.mu.Lock()
	if c.counterpart == "" {
		c.mu.Unlock()
		return domain.Message{}, &SendFailedError{Input: input, Err: ErrNoConversation}
	}
	counterpart := c.counterpart
	temp := domain.Message{
		TempID:     ulid.Make().String(),
		SenderID:   c.userID,
		ReceiverID: counterpart,
		Body:       text,
		CreatedAt:  c.now(),
		State:      domain.MessagePending,
	}
	c.window = Merge(c.window, temp)
	c.mu.Unlock()

	_, err := c.api.SendMessage(ctx, upstream.SendMessageRequest{
		ReceiverID:     counterpart,
		Body:           text,
		Image:          image,
		IdempotencyKey: uuid.NewString(),
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.window = RemoveByKey(c.window, temp.TempID)
		return domain.Message{}, &SendFailedError{Input: input, Err: c.mapUpstreamErr(err, "send message")}
	}
	// The push echo reconciles the pending entry; until it arrives the
	// optimistic entry stands as-is.
	return temp, nil
}

// HandleEvent folds one push event into controller state.
func (c *Controller) HandleEvent(ev realtime.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case realtime.EventTyping:
		c.handleTypingLocked(ev)
	case realtime.EventMessage:
		c.handleMessageLocked(ev)
	}
}

func (c *Controller) handleTypingLocked(ev realtime.Event) {
	if ev.UserID == "" || ev.UserID == c.userID || ev.UserID != c.counterpart {
		return
	}
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.typing = ev.IsTyping
	if !ev.IsTyping {
		return
	}
	// Auto-clear when no stop event follows.
	c.typingTimer = time.AfterFunc(c.typingTTL, func() {
		c.mu.Lock()
		c.typing = false
		c.typingTimer = nil
		c.mu.Unlock()
	})
}

func (c *Controller) handleMessageLocked(ev realtime.Event) {
	if ev.Message == nil {
		return
	}
	msg := *ev.Message
	msg.Body = c.sanitizer.Sanitize(msg.Body)

	if c.counterpart != "" && msg.Between(c.userID, c.counterpart) {
		c.window = Merge(c.window, msg)
		c.typing = false
		return
	}
	if msg.ReceiverID != c.userID {
		return
	}
	for _, n := range c.notifications {
		if n.ID != "" && n.ID == msg.ID {
			return
		}
	}
	c.notifications = append(c.notifications, msg)
	c.unread++
}

// SetStatus records a push connection state change for display.
func (c *Controller) SetStatus(status realtime.Status) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

// Status returns the current push connection state.
func (c *Controller) Status() realtime.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot is a consistent view of the open conversation.
type Snapshot struct {
	State       State
	Counterpart string
	Messages    []domain.Message
	HasMore     bool
	Typing      bool
	Unread      int
}

// Snapshot returns a copy of the current conversation view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]domain.Message, len(c.window))
	copy(msgs, c.window)
	return Snapshot{
		State:       c.state,
		Counterpart: c.counterpart,
		Messages:    msgs,
		HasMore:     c.hasMore,
		Typing:      c.typing,
		Unread:      c.unread,
	}
}

// DrainNotifications returns queued messages from closed conversations and
// resets the unread counter.
func (c *Controller) DrainNotifications() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.notifications
	c.notifications = nil
	c.unread = 0
	return out
}

// Close cancels any in-flight fetch and stops timers.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetFetchLocked()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.state = StateIdle
	c.counterpart = ""
}

// resetFetchLocked invalidates any pending page fetch. Responses carrying an
// older sequence are discarded on arrival.
func (c *Controller) resetFetchLocked() {
	c.fetchSeq++
	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}
}

func (c *Controller) clearUnreadLocked(counterpartID string) {
	kept := c.notifications[:0]
	for _, n := range c.notifications {
		if n.SenderID == counterpartID {
			if c.unread > 0 {
				c.unread--
			}
			continue
		}
		kept = append(kept, n)
	}
	c.notifications = kept
}

func (c *Controller) sanitizeAll(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		out[i].Body = c.sanitizer.Sanitize(out[i].Body)
	}
	return out
}

func (c *Controller) mapUpstreamErr(err error, op string) error {
	if errors.Is(err, upstream.ErrTimeout) {
		c.logger.Warn("upstream timed out", zap.String("op", op))
		return fmt.Errorf("%w (%s)", ErrTimedOut, op)
	}
	c.logger.Warn("upstream call failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("chat: %s: %w", op, err)
}
