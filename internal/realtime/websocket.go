package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/viemarket/storefront/internal/domain"
)

const (
	dialTimeout    = 10 * time.Second
	statusCapacity = 8
	eventCapacity  = 64
)

// WebsocketDialer opens websocket push channels.
type WebsocketDialer struct{}

// Dial implements Dialer.
func (WebsocketDialer) Dial(url, token string) (Channel, error) {
	return DialWebsocket(url, token)
}

// WebsocketChannel is the websocket-backed push subscription.
type WebsocketChannel struct {
	conn    *websocket.Conn
	events  chan Event
	status  chan Status
	closeMu sync.Once
	done    chan struct{}
}

type wireEvent struct {
	Type     string              `json:"type"`
	Message  *domain.WireMessage `json:"message"`
	UserID   string              `json:"user_id"`
	IsTyping bool                `json:"is_typing"`
}

// DialWebsocket connects to the push endpoint and starts the read loop.
func DialWebsocket(url, token string) (*WebsocketChannel, error) {
	ch := &WebsocketChannel{
		events: make(chan Event, eventCapacity),
		status: make(chan Status, statusCapacity),
		done:   make(chan struct{}),
	}
	ch.pushStatus(StatusConnecting)

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(url, header)
	if err != nil {
		ch.pushStatus(StatusError)
		close(ch.events)
		close(ch.status)
		return nil, fmt.Errorf("realtime: dial %s: %w", url, err)
	}
	ch.conn = conn
	ch.pushStatus(StatusConnected)

	go ch.readLoop()
	return ch, nil
}

// Events implements Channel.
func (c *WebsocketChannel) Events() <-chan Event { return c.events }

// StatusChanges implements Channel.
func (c *WebsocketChannel) StatusChanges() <-chan Status { return c.status }

// Close implements Channel.
func (c *WebsocketChannel) Close() error {
	var err error
	c.closeMu.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *WebsocketChannel) readLoop() {
	defer func() {
		close(c.events)
		close(c.status)
	}()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				c.pushStatus(StatusDisconnected)
			default:
				c.pushStatus(StatusError)
			}
			return
		}

		var wire wireEvent
		if err := json.Unmarshal(raw, &wire); err != nil {
			// Malformed frames are dropped; the channel itself is healthy.
			continue
		}

		switch EventType(wire.Type) {
		case EventMessage:
			if wire.Message == nil {
				continue
			}
			msg := domain.MessageFromWire(*wire.Message)
			c.pushEvent(Event{Type: EventMessage, Message: &msg})
		case EventTyping:
			c.pushEvent(Event{Type: EventTyping, UserID: wire.UserID, IsTyping: wire.IsTyping})
		}
	}
}

func (c *WebsocketChannel) pushEvent(ev Event) {
	select {
	case c.events <- ev:
	default:
		// Consumer stalled; drop rather than block the read loop.
	}
}

func (c *WebsocketChannel) pushStatus(s Status) {
	select {
	case c.status <- s:
	default:
	}
}
