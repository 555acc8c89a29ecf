// Package realtime consumes the marketplace push channel. Events and the
// connection status are surfaced as-is; interpretation belongs to the chat
// controller.
package realtime

import "github.com/viemarket/storefront/internal/domain"

// Status reflects the push connection state for display.
type Status string

const (
	// StatusConnecting is set while the dial is in progress.
	StatusConnecting Status = "connecting"
	// StatusConnected is set once the channel is live.
	StatusConnected Status = "connected"
	// StatusDisconnected is set after an orderly close.
	StatusDisconnected Status = "disconnected"
	// StatusError is set when the channel failed.
	StatusError Status = "error"
)

// EventType enumerates push event kinds.
type EventType string

const (
	// EventMessage delivers a new chat message.
	EventMessage EventType = "message"
	// EventTyping delivers a typing indicator.
	EventTyping EventType = "typing"
)

// Event is one push notification from the channel.
type Event struct {
	Type     EventType
	Message  *domain.Message
	UserID   string
	IsTyping bool
}

// Channel is a live push subscription.
type Channel interface {
	// Events yields decoded push events until the channel closes.
	Events() <-chan Event
	// StatusChanges yields connection state transitions.
	StatusChanges() <-chan Status
	// Close tears the subscription down.
	Close() error
}

// Dialer opens push channels; the websocket implementation satisfies it and
// tests substitute fakes.
type Dialer interface {
	Dial(url, token string) (Channel, error)
}
