package mindwell

import (
	"sort"
	"sync"
)

// conversationCache is the session-owned store of conversations and their
// message lists. Messages are kept in append order, which is confirmation
// arrival order for sends; the UI renders straight from that order. Only the
// event router and the optimistic path of SendMessage write here, the UI only
// reads copies.
type conversationCache struct {
	mu       sync.RWMutex
	messages map[string][]*Message
	convs    map[string]*Conversation
}

func newConversationCache() *conversationCache {
	return &conversationCache{
		messages: make(map[string][]*Message),
		convs:    make(map[string]*Conversation),
	}
}

// ── Conversations ────────────────────────────────────────

// SetConversations replaces the conversation list, e.g. after the initial
// REST load.
func (c *conversationCache) SetConversations(convs []Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.convs = make(map[string]*Conversation, len(convs))
	for i := range convs {
		conv := convs[i]
		c.convs[conv.ID] = &conv
	}
}

// UpsertConversation adds or replaces a single conversation.
func (c *conversationCache) UpsertConversation(conv Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.convs[conv.ID] = &conv
}

// Conversation returns a copy of one conversation.
func (c *conversationCache) Conversation(id string) (Conversation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conv, ok := c.convs[id]
	if !ok {
		return Conversation{}, false
	}
	return *conv, true
}

// Conversations returns a copy of the conversation list, most recently
// updated first.
func (c *conversationCache) Conversations() []Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Conversation, 0, len(c.convs))
	for _, conv := range c.convs {
		result = append(result, *conv)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result
}

// ── Messages ─────────────────────────────────────────────

// SetHistory replaces a conversation's confirmed messages with the loaded
// history. Pending optimistic entries survive the reload, re-appended after
// the history.
func (c *conversationCache) SetHistory(conversationID string, msgs []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var kept []*Message
	for _, m := range c.messages[conversationID] {
		if m.Pending() {
			kept = append(kept, m)
		}
	}
	list := make([]*Message, 0, len(msgs)+len(kept))
	for i := range msgs {
		msg := msgs[i]
		if msg.Status == "" {
			msg.Status = StatusConfirmed
		}
		list = append(list, &msg)
	}
	list = append(list, kept...)
	c.messages[conversationID] = list
}

// Messages returns a copy of a conversation's messages in render order.
func (c *conversationCache) Messages(conversationID string) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := c.messages[conversationID]
	result := make([]Message, 0, len(list))
	for _, m := range list {
		result = append(result, *m)
	}
	return result
}

// PendingCount returns the number of unconfirmed optimistic entries in a
// conversation.
func (c *conversationCache) PendingCount(conversationID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, m := range c.messages[conversationID] {
		if m.Pending() {
			n++
		}
	}
	return n
}

// AppendPending appends an optimistic local record.
func (c *conversationCache) AppendPending(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg.Status = StatusPending
	c.messages[msg.ConversationID] = append(c.messages[msg.ConversationID], &msg)
}

// ConfirmSend reconciles a send acknowledgment: every pending entry in the
// conversation is swept (guards against duplicates from rapid double-submit)
// and the server-confirmed record appended, unless its id already arrived via
// the event stream. The conversation's last-message pointer follows.
func (c *conversationCache) ConfirmSend(conversationID string, confirmed Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	confirmed.Status = StatusConfirmed

	var kept []*Message
	exists := false
	for _, m := range c.messages[conversationID] {
		if m.Pending() {
			continue
		}
		if confirmed.ID != "" && m.ID == confirmed.ID {
			exists = true
		}
		kept = append(kept, m)
	}
	if !exists {
		kept = append(kept, &confirmed)
	}
	c.messages[conversationID] = kept

	if conv, ok := c.convs[conversationID]; ok {
		conv.LastMessage = &confirmed
		if confirmed.CreatedAt.After(conv.UpdatedAt) {
			conv.UpdatedAt = confirmed.CreatedAt
		}
	}
}

// DropPending rolls back one failed optimistic entry.
func (c *conversationCache) DropPending(conversationID, localID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var kept []*Message
	for _, m := range c.messages[conversationID] {
		if m.Pending() && m.LocalID == localID {
			continue
		}
		kept = append(kept, m)
	}
	c.messages[conversationID] = kept
}

// ── Event mutations ──────────────────────────────────────

// ApplyNew handles an inbound new_message event. The message is appended only
// when its conversation is the actively viewed one; the parent conversation's
// last-message pointer always updates. Returns whether a transient
// notification should be raised (foreign sender, conversation not open).
// Events for unloaded conversations are a silent no-op.
func (c *conversationCache) ApplyNew(msg Message, selectedConversation, localUserID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv, ok := c.convs[msg.ConversationID]
	if !ok {
		return false
	}
	msg.Status = StatusConfirmed

	if msg.ConversationID == selectedConversation {
		dup := false
		for _, m := range c.messages[msg.ConversationID] {
			if msg.ID != "" && m.ID == msg.ID {
				dup = true
				break
			}
		}
		if !dup {
			copied := msg
			c.messages[msg.ConversationID] = append(c.messages[msg.ConversationID], &copied)
		}
	}

	snapshot := msg
	conv.LastMessage = &snapshot
	if msg.CreatedAt.After(conv.UpdatedAt) {
		conv.UpdatedAt = msg.CreatedAt
	}

	if msg.SenderID != localUserID && msg.ConversationID != selectedConversation {
		conv.UnreadCount++
		return true
	}
	return false
}

// ApplyUpdate patches content and deletion state in place. No-op when the
// message is absent (evicted or never loaded).
func (c *conversationCache) ApplyUpdate(p MessageUpdatedPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := c.findLocked(p.ConversationID, p.MessageID)
	if msg == nil {
		return
	}
	if p.Content != "" {
		msg.Content = p.Content
	}
	msg.Deleted = p.Deleted
	msg.Edited = true
	msg.UpdatedAt = p.UpdatedAt

	if conv, ok := c.convs[p.ConversationID]; ok && conv.LastMessage != nil && conv.LastMessage.ID == p.MessageID {
		snapshot := *msg
		conv.LastMessage = &snapshot
	}
}

// ApplyRead upserts a read receipt: one entry per user per message.
func (c *conversationCache) ApplyRead(p MessageReadPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := c.findLocked(p.ConversationID, p.MessageID)
	if msg == nil {
		return
	}
	for i := range msg.ReadBy {
		if msg.ReadBy[i].UserID == p.UserID {
			msg.ReadBy[i].ReadAt = p.ReadAt
			return
		}
	}
	msg.ReadBy = append(msg.ReadBy, ReadReceipt{UserID: p.UserID, ReadAt: p.ReadAt})
}

// ApplyReaction adds or removes a reaction. Adding an existing (user, emoji)
// pair refreshes its timestamp instead of duplicating; removing clears every
// matching pair.
func (c *conversationCache) ApplyReaction(p ReactionPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := c.findLocked(p.ConversationID, p.MessageID)
	if msg == nil {
		return
	}

	switch p.Action {
	case "add":
		for i := range msg.Reactions {
			if msg.Reactions[i].UserID == p.UserID && msg.Reactions[i].Emoji == p.Emoji {
				msg.Reactions[i].CreatedAt = p.CreatedAt
				return
			}
		}
		msg.Reactions = append(msg.Reactions, Reaction{UserID: p.UserID, Emoji: p.Emoji, CreatedAt: p.CreatedAt})
	case "remove":
		var kept []Reaction
		for _, r := range msg.Reactions {
			if r.UserID == p.UserID && r.Emoji == p.Emoji {
				continue
			}
			kept = append(kept, r)
		}
		msg.Reactions = kept
	}
}

// findLocked locates a confirmed message by server id. When the payload omits
// the conversation id every loaded conversation is scanned.
func (c *conversationCache) findLocked(conversationID, messageID string) *Message {
	if messageID == "" {
		return nil
	}
	if conversationID != "" {
		for _, m := range c.messages[conversationID] {
			if m.ID == messageID {
				return m
			}
		}
		return nil
	}
	for _, list := range c.messages {
		for _, m := range list {
			if m.ID == messageID {
				return m
			}
		}
	}
	return nil
}
