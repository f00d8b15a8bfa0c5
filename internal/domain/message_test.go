package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTextMessage(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	msg := NewTextMessage("alice_bob", "alice", "oi", now)

	assert.Equal(t, "alice_bob", msg.ConversationID)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, MessageTypeText, msg.Type)
	assert.Equal(t, now, msg.Timestamp)
	assert.True(t, msg.Status.Sent)
	assert.False(t, msg.Status.Delivered)
	assert.False(t, msg.Status.Read)
	assert.Nil(t, msg.Status.ReadAt)
	assert.False(t, msg.Deleted)
}

func TestMarkReadImpliesDelivered(t *testing.T) {
	msg := NewTextMessage("alice_bob", "alice", "oi", time.Now())
	at := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)

	changed := msg.MarkRead(at)

	assert.True(t, changed)
	assert.True(t, msg.Status.Read)
	assert.True(t, msg.Status.Delivered)
	assert.Equal(t, at, *msg.Status.ReadAt)
}

func TestMarkReadIdempotent(t *testing.T) {
	msg := NewTextMessage("alice_bob", "alice", "oi", time.Now())
	first := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)

	assert.True(t, msg.MarkRead(first))
	assert.False(t, msg.MarkRead(first.Add(time.Hour)))
	assert.Equal(t, first, *msg.Status.ReadAt)
}
