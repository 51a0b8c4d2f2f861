package mindwell

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCache() *conversationCache {
	c := newConversationCache()
	c.SetConversations([]Conversation{{ID: "c1"}, {ID: "c2"}})
	return c
}

func TestConfirmSendSweepsEveryPendingEntry(t *testing.T) {
	c := seedCache()
	// Rapid double-submit leaves two optimistic records.
	c.AppendPending(Message{LocalID: "l1", ConversationID: "c1", Content: "hello"})
	c.AppendPending(Message{LocalID: "l2", ConversationID: "c1", Content: "hello"})
	require.Equal(t, 2, c.PendingCount("c1"))

	c.ConfirmSend("c1", Message{ID: "m1", ConversationID: "c1", Content: "hello", CreatedAt: time.Now()})

	msgs := c.Messages("c1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, StatusConfirmed, msgs[0].Status)
	assert.Equal(t, 0, c.PendingCount("c1"))
}

func TestConfirmSendSkipsDuplicateFromEventStream(t *testing.T) {
	c := seedCache()
	c.AppendPending(Message{LocalID: "l1", ConversationID: "c1", Content: "hi"})

	// The socket echo can land before the REST acknowledgment.
	c.ApplyNew(Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Content: "hi"}, "c1", "u1")
	c.ConfirmSend("c1", Message{ID: "m1", ConversationID: "c1", Content: "hi"})

	msgs := c.Messages("c1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
}

func TestDropPendingRemovesOnlyThatAttempt(t *testing.T) {
	c := seedCache()
	c.AppendPending(Message{LocalID: "l1", ConversationID: "c1", Content: "one"})
	c.AppendPending(Message{LocalID: "l2", ConversationID: "c1", Content: "two"})

	c.DropPending("c1", "l1")

	msgs := c.Messages("c1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "l2", msgs[0].LocalID)
}

func TestSetHistoryPreservesPendingEntries(t *testing.T) {
	c := seedCache()
	c.AppendPending(Message{LocalID: "l1", ConversationID: "c1", Content: "in flight"})

	c.SetHistory("c1", []Message{
		{ID: "m1", ConversationID: "c1", Content: "old"},
		{ID: "m2", ConversationID: "c1", Content: "older"},
	})

	msgs := c.Messages("c1")
	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "l1", msgs[2].LocalID, "pending entry re-appended after history")
	assert.Equal(t, StatusConfirmed, msgs[0].Status)
}

func TestApplyNewUpdatesLastMessageAndUnread(t *testing.T) {
	c := seedCache()
	now := time.Now()

	notify := c.ApplyNew(Message{ID: "m1", ConversationID: "c2", SenderID: "u2", Content: "ping", CreatedAt: now}, "c1", "u-local")
	assert.True(t, notify)

	conv, ok := c.Conversation("c2")
	require.True(t, ok)
	assert.Equal(t, 1, conv.UnreadCount)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "m1", conv.LastMessage.ID)
	assert.Empty(t, c.Messages("c2"), "closed conversation does not accumulate message bodies")
}

func TestApplyNewOwnEchoDoesNotNotify(t *testing.T) {
	c := seedCache()
	notify := c.ApplyNew(Message{ID: "m1", ConversationID: "c2", SenderID: "u-local"}, "c1", "u-local")
	assert.False(t, notify)
	conv, _ := c.Conversation("c2")
	assert.Equal(t, 0, conv.UnreadCount)
}

func TestApplyUpdatePatchesInPlace(t *testing.T) {
	c := seedCache()
	c.SetHistory("c1", []Message{{ID: "m1", ConversationID: "c1", Content: "before"}})

	updated := time.Now()
	c.ApplyUpdate(MessageUpdatedPayload{MessageID: "m1", ConversationID: "c1", Content: "after", UpdatedAt: updated})

	msgs := c.Messages("c1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "after", msgs[0].Content)
	assert.True(t, msgs[0].Edited)
	assert.Equal(t, updated, msgs[0].UpdatedAt)

	// Absent ids are a silent no-op.
	c.ApplyUpdate(MessageUpdatedPayload{MessageID: "m-gone", ConversationID: "c1", Content: "x"})
	assert.Len(t, c.Messages("c1"), 1)
}

func TestApplyUpdateRefreshesLastMessage(t *testing.T) {
	c := seedCache()
	c.ConfirmSend("c1", Message{ID: "m1", ConversationID: "c1", Content: "before"})

	c.ApplyUpdate(MessageUpdatedPayload{MessageID: "m1", ConversationID: "c1", Content: "after"})

	conv, _ := c.Conversation("c1")
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "after", conv.LastMessage.Content)
}

func TestApplyReadUpsertsPerUser(t *testing.T) {
	c := seedCache()
	c.SetHistory("c1", []Message{{ID: "m1", ConversationID: "c1"}})

	first := time.Now().Add(-time.Minute)
	second := time.Now()
	c.ApplyRead(MessageReadPayload{MessageID: "m1", ConversationID: "c1", UserID: "u2", ReadAt: first})
	c.ApplyRead(MessageReadPayload{MessageID: "m1", ConversationID: "c1", UserID: "u2", ReadAt: second})
	c.ApplyRead(MessageReadPayload{MessageID: "m1", ConversationID: "c1", UserID: "u3", ReadAt: second})

	msgs := c.Messages("c1")
	require.Len(t, msgs[0].ReadBy, 2)
	assert.Equal(t, second, msgs[0].ReadBy[0].ReadAt, "repeat receipt refreshes, not duplicates")
}

func TestApplyReactionAddIsIdempotentPerUserEmoji(t *testing.T) {
	c := seedCache()
	c.SetHistory("c1", []Message{{ID: "m1", ConversationID: "c1"}})

	c.ApplyReaction(ReactionPayload{MessageID: "m1", ConversationID: "c1", UserID: "u2", Emoji: "👍", Action: "add"})
	c.ApplyReaction(ReactionPayload{MessageID: "m1", ConversationID: "c1", UserID: "u2", Emoji: "👍", Action: "add"})
	c.ApplyReaction(ReactionPayload{MessageID: "m1", ConversationID: "c1", UserID: "u3", Emoji: "👍", Action: "add"})
	c.ApplyReaction(ReactionPayload{MessageID: "m1", ConversationID: "c1", UserID: "u2", Emoji: "❤️", Action: "add"})

	msgs := c.Messages("c1")
	assert.Len(t, msgs[0].Reactions, 3)
}

func TestApplyReactionRemove(t *testing.T) {
	c := seedCache()
	c.SetHistory("c1", []Message{{ID: "m1", ConversationID: "c1"}})
	c.ApplyReaction(ReactionPayload{MessageID: "m1", ConversationID: "c1", UserID: "u2", Emoji: "👍", Action: "add"})
	c.ApplyReaction(ReactionPayload{MessageID: "m1", ConversationID: "c1", UserID: "u3", Emoji: "👍", Action: "add"})

	c.ApplyReaction(ReactionPayload{MessageID: "m1", ConversationID: "c1", UserID: "u2", Emoji: "👍", Action: "remove"})

	msgs := c.Messages("c1")
	require.Len(t, msgs[0].Reactions, 1)
	assert.Equal(t, "u3", msgs[0].Reactions[0].UserID)
}

func TestConversationsSortedByActivity(t *testing.T) {
	c := newConversationCache()
	now := time.Now()
	c.SetConversations([]Conversation{
		{ID: "old", UpdatedAt: now.Add(-time.Hour)},
		{ID: "new", UpdatedAt: now},
		{ID: "mid", UpdatedAt: now.Add(-time.Minute)},
	})

	convs := c.Conversations()
	require.Len(t, convs, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{convs[0].ID, convs[1].ID, convs[2].ID})
}

func TestAccessorsReturnCopies(t *testing.T) {
	c := seedCache()
	c.SetHistory("c1", []Message{{ID: "m1", ConversationID: "c1", Content: "original"}})

	msgs := c.Messages("c1")
	msgs[0].Content = "mutated"

	assert.Equal(t, "original", c.Messages("c1")[0].Content)
}
