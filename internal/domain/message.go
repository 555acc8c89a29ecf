package domain

import "time"

// MessageState tags a chat entry's delivery lifecycle.
type MessageState string

const (
	// MessagePending marks an optimistic, not yet server-confirmed entry.
	MessagePending MessageState = "pending"
	// MessageConfirmed marks a server-confirmed entry.
	MessageConfirmed MessageState = "confirmed"
	// MessageFailed marks an entry whose send was rejected.
	MessageFailed MessageState = "failed"
)

// Participant is the display snapshot of a chat party.
type Participant struct {
	ID        string
	Name      string
	AvatarURL string
}

// Message is one chat entry. Pending entries carry only a TempID; confirmed
// entries carry the server ID (and the TempID they replaced, when any).
type Message struct {
	ID         string
	TempID     string
	SenderID   string
	ReceiverID string
	Body       string
	ImageURL   string
	CreatedAt  time.Time
	Sender     Participant
	Receiver   Participant
	State      MessageState
	FailReason string
}

// Key returns the identity used for deduplication: the server id when
// confirmed, the temporary id otherwise.
func (m Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.TempID
}

// Pending reports whether the message is still awaiting confirmation.
func (m Message) Pending() bool {
	return m.State == MessagePending
}

// Between reports whether the message belongs to the conversation between
// the two users, in either direction.
func (m Message) Between(userID, counterpartID string) bool {
	if m.SenderID == userID && m.ReceiverID == counterpartID {
		return true
	}
	return m.SenderID == counterpartID && m.ReceiverID == userID
}
