package chat

import (
	"sort"
	"time"

	"github.com/viemarket/storefront/internal/domain"
)

// EchoTolerance bounds how far apart an optimistic entry and its server echo
// may sit in time and still be treated as the same message.
const EchoTolerance = 30 * time.Second

// Merge folds one incoming message into the window. Messages already present
// by server id are dropped, confirmed echoes replace their pending optimistic
// entry in place, and everything else is appended in timestamp order. The
// input slice is never mutated.
func Merge(window []domain.Message, incoming domain.Message) []domain.Message {
	if incoming.ID != "" {
		for _, m := range window {
			if m.ID == incoming.ID {
				return window
			}
		}
	}
	out := make([]domain.Message, len(window))
	copy(out, window)

	if incoming.State == domain.MessageConfirmed {
		if i := echoIndex(out, incoming); i >= 0 {
			out[i] = incoming
			sortWindow(out)
			return out
		}
	}
	out = append(out, incoming)
	sortWindow(out)
	return out
}

// echoIndex finds the newest pending entry matching the confirmed echo by
// sender, body and send time within EchoTolerance.
func echoIndex(window []domain.Message, echo domain.Message) int {
	for i := len(window) - 1; i >= 0; i-- {
		m := window[i]
		if !m.Pending() || m.SenderID != echo.SenderID || m.Body != echo.Body {
			continue
		}
		delta := echo.CreatedAt.Sub(m.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= EchoTolerance {
			return i
		}
	}
	return -1
}

// Prepend inserts an older page in front of the window, dropping entries the
// window already holds by server id. It returns the new window and the count
// of messages actually added.
func Prepend(window, batch []domain.Message) ([]domain.Message, int) {
	seen := make(map[string]struct{}, len(window))
	for _, m := range window {
		if m.ID != "" {
			seen[m.ID] = struct{}{}
		}
	}
	fresh := make([]domain.Message, 0, len(batch))
	for _, m := range batch {
		if m.ID != "" {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
		}
		fresh = append(fresh, m)
	}
	sortWindow(fresh)
	out := make([]domain.Message, 0, len(fresh)+len(window))
	out = append(out, fresh...)
	out = append(out, window...)
	return out, len(fresh)
}

// RemoveByKey drops the entry whose Key matches, if any.
func RemoveByKey(window []domain.Message, key string) []domain.Message {
	out := make([]domain.Message, 0, len(window))
	for _, m := range window {
		if m.Key() == key {
			continue
		}
		out = append(out, m)
	}
	return out
}

// MarkFailed flags the entry whose Key matches as failed without removing it.
func MarkFailed(window []domain.Message, key, reason string) []domain.Message {
	out := make([]domain.Message, len(window))
	copy(out, window)
	for i := range out {
		if out[i].Key() == key {
			out[i].State = domain.MessageFailed
			out[i].FailReason = reason
		}
	}
	return out
}

func sortWindow(ms []domain.Message) {
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].CreatedAt.Before(ms[j].CreatedAt)
	})
}
