package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viemarket/storefront/internal/domain"
)

var windowBase = time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

func confirmed(id, sender, body string, at time.Time) domain.Message {
	return domain.Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: "peer",
		Body:       body,
		CreatedAt:  at,
		State:      domain.MessageConfirmed,
	}
}

func pending(tempID, sender, body string, at time.Time) domain.Message {
	return domain.Message{
		TempID:     tempID,
		SenderID:   sender,
		ReceiverID: "peer",
		Body:       body,
		CreatedAt:  at,
		State:      domain.MessagePending,
	}
}

func TestMergeDropsDuplicateByServerID(t *testing.T) {
	w := []domain.Message{confirmed("m1", "user-1", "hello", windowBase)}
	got := Merge(w, confirmed("m1", "user-1", "hello", windowBase.Add(time.Second)))
	require.Len(t, got, 1)
	assert.Equal(t, windowBase, got[0].CreatedAt)
}

func TestMergeReplacesPendingEchoInPlace(t *testing.T) {
	w := []domain.Message{
		confirmed("m1", "peer", "hi", windowBase),
		pending("tmp-1", "user-1", "on my way", windowBase.Add(time.Minute)),
	}
	echo := confirmed("m2", "user-1", "on my way", windowBase.Add(time.Minute+5*time.Second))

	got := Merge(w, echo)
	require.Len(t, got, 2)
	assert.Equal(t, "m2", got[1].ID)
	assert.Equal(t, domain.MessageConfirmed, got[1].State)
}

func TestMergeEchoOutsideToleranceAppends(t *testing.T) {
	w := []domain.Message{pending("tmp-1", "user-1", "ping", windowBase)}
	echo := confirmed("m9", "user-1", "ping", windowBase.Add(EchoTolerance+time.Second))

	got := Merge(w, echo)
	require.Len(t, got, 2)
	assert.True(t, got[0].Pending())
	assert.Equal(t, "m9", got[1].ID)
}

func TestMergeEchoMatchesNewestPending(t *testing.T) {
	w := []domain.Message{
		pending("tmp-1", "user-1", "again", windowBase),
		pending("tmp-2", "user-1", "again", windowBase.Add(2*time.Second)),
	}
	echo := confirmed("m3", "user-1", "again", windowBase.Add(3*time.Second))

	got := Merge(w, echo)
	require.Len(t, got, 2)
	assert.Equal(t, "tmp-1", got[0].TempID)
	assert.Equal(t, "m3", got[1].ID)
}

func TestMergeKeepsTimestampOrder(t *testing.T) {
	w := []domain.Message{confirmed("m2", "peer", "second", windowBase.Add(time.Minute))}
	got := Merge(w, confirmed("m1", "peer", "first", windowBase))
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m2", got[1].ID)
}

func TestPrependDropsKnownIDs(t *testing.T) {
	w := []domain.Message{
		confirmed("m10", "peer", "newest-old", windowBase),
		confirmed("m11", "user-1", "reply", windowBase.Add(time.Minute)),
	}
	batch := []domain.Message{
		confirmed("m8", "peer", "older", windowBase.Add(-2*time.Minute)),
		confirmed("m10", "peer", "newest-old", windowBase),
		confirmed("m9", "user-1", "older-reply", windowBase.Add(-time.Minute)),
	}

	got, added := Prepend(w, batch)
	assert.Equal(t, 2, added)
	require.Len(t, got, 4)
	assert.Equal(t, "m8", got[0].ID)
	assert.Equal(t, "m9", got[1].ID)
	assert.Equal(t, "m10", got[2].ID)
}

func TestRemoveByKey(t *testing.T) {
	w := []domain.Message{
		pending("tmp-1", "user-1", "oops", windowBase),
		confirmed("m1", "peer", "hi", windowBase.Add(time.Second)),
	}
	got := RemoveByKey(w, "tmp-1")
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
}
