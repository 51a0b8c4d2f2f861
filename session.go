package mindwell

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultNamespace is the realtime namespace for messaging traffic.
	DefaultNamespace = "messaging"

	reconnectBaseDelay   = 1000 * time.Millisecond
	reconnectMaxDelay    = 30000 * time.Millisecond
	reconnectFloor       = 500 * time.Millisecond
	maxReconnectAttempts = 5
	reconnectSettleDelay = 1000 * time.Millisecond

	errOffline   = "Device is offline"
	errExhausted = "Unable to reconnect after %d attempts"
)

// ============================================================================
// Reconnector
// ============================================================================

// reconnector computes backoff delays for dropped connections. Delay for
// attempt n (1-indexed) is min(base * 2^(n-1), max) with ±25% multiplicative
// jitter, never below the floor. After maxAttempts the session stops retrying
// until a manual reconnect or an online transition.
type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	floor       time.Duration
	maxAttempts int
	attempt     int
	rng         func() float64
}

func newReconnector() *reconnector {
	return &reconnector{
		baseDelay:   reconnectBaseDelay,
		maxDelay:    reconnectMaxDelay,
		floor:       reconnectFloor,
		maxAttempts: maxReconnectAttempts,
		rng:         rand.Float64,
	}
}

func (r *reconnector) exhausted() bool {
	return r.attempt >= r.maxAttempts
}

// nextDelay consumes one attempt and returns the delay to wait before it.
func (r *reconnector) nextDelay() time.Duration {
	r.attempt++
	delay := math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt-1)),
		float64(r.maxDelay),
	)
	delay *= 1 + (r.rng()*2-1)*0.25
	if delay < float64(r.floor) {
		delay = float64(r.floor)
	}
	return time.Duration(delay)
}

func (r *reconnector) reset() {
	r.attempt = 0
}

// ============================================================================
// Session
// ============================================================================

// SessionConfig carries the identity and feature switches for one realtime
// session.
type SessionConfig struct {
	// User is the authenticated local user. Required for connecting; without
	// it the session settles disconnected without error.
	User *User

	// Token is the realtime access credential. Required like User.
	Token string

	// Namespace selects the realtime namespace, DefaultNamespace when empty.
	Namespace string

	// RealtimeEnabled gates the socket entirely. When false, Connect is a
	// silent no-op and the session works in REST-only mode.
	RealtimeEnabled bool

	// DisableTypingIndicators suppresses outbound typing traffic.
	DisableTypingIndicators bool
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithTransportFactory replaces the socket implementation, e.g. with a fake
// in tests.
func WithTransportFactory(f TransportFactory) SessionOption {
	return func(s *Session) { s.factory = f }
}

// WithNotifier installs the sink for transient user-facing notices.
func WithNotifier(n Notifier) SessionOption {
	return func(s *Session) { s.notifier = n }
}

// WithSessionLogger enables diagnostic logging.
func WithSessionLogger(l *log.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithTypingStopDelay overrides the typing auto-stop delay.
func WithTypingStopDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.stopTimer = newStopTimer(d) }
}

// Session owns one realtime messaging connection and the client-side state
// it feeds: the conversation/message cache, typing and presence trackers, and
// the observable connection state. All mutation flows through the session;
// consumers read snapshots and subscribe to change signals.
type Session struct {
	client   *Client
	cfg      SessionConfig
	factory  TransportFactory
	notifier Notifier
	logger   *log.Logger

	cache     *conversationCache
	typing    *typingTracker
	presence  *presenceTracker
	stopTimer *stopTimer

	mu             sync.Mutex
	ctx            context.Context
	transport      Transport
	state          ConnectionState
	reconn         *reconnector
	reconnectTimer *time.Timer
	settleTimer    *time.Timer
	online         bool
	closing        bool
	typingActive   bool
	typingConv     string
	selected       string

	stateSubs  map[int]func(ConnectionState)
	updateSubs map[int]func()
	nextSubID  int
}

// NewSession builds a session on top of an authenticated Client. Connect must
// be called before any realtime traffic flows; REST-backed actions work
// immediately.
func NewSession(client *Client, cfg SessionConfig, opts ...SessionOption) *Session {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	s := &Session{
		client:     client,
		cfg:        cfg,
		factory:    NewWebSocketTransport(client.baseURL),
		notifier:   nopNotifier{},
		cache:      newConversationCache(),
		typing:     newTypingTracker(),
		presence:   newPresenceTracker(),
		stopTimer:  newStopTimer(typingStopDelay),
		reconn:     newReconnector(),
		online:     true,
		stateSubs:  make(map[int]func(ConnectionState)),
		updateSubs: make(map[int]func()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf("[mindwell] "+format, args...)
	}
}

// ── Lifecycle ────────────────────────────────────────────

// Connect establishes the realtime connection. Already-connected sessions
// no-op. Missing credentials or a disabled realtime flag settle the state to
// disconnected without error; that is configuration, not failure. Event
// handlers are registered before the transport dials so no early server
// event is dropped. Dial failures are absorbed into the backoff schedule,
// never returned to the caller.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Connected {
		s.mu.Unlock()
		return nil
	}
	if s.cfg.Token == "" || s.cfg.User == nil || !s.cfg.RealtimeEnabled {
		s.state = ConnectionState{}
		s.mu.Unlock()
		s.emitState()
		return nil
	}
	s.ctx = ctx
	s.closing = false
	old := s.transport
	t := s.factory(s.cfg.Namespace, s.cfg.Token)
	s.transport = t
	s.mu.Unlock()

	// A dead transport may linger after a drop.
	if old != nil {
		old.RemoveAllListeners()
		_ = old.Close()
	}

	t.OnConnect(s.handleConnect)
	t.OnDisconnect(s.handleDisconnect)
	t.OnConnectError(s.handleConnectError)
	t.On(EventNewMessage, s.onNewMessage)
	t.On(EventMessageUpdated, s.onMessageUpdated)
	t.On(EventMessageRead, s.onMessageRead)
	t.On(EventMessageReaction, s.onMessageReaction)
	t.On(EventTypingIndicator, s.onTypingIndicator)
	t.On(EventUserStatusChanged, s.onUserStatus)
	t.On(EventConversationJoined, s.onRoomEvent("joined"))
	t.On(EventConversationLeft, s.onRoomEvent("left"))

	if err := t.Connect(ctx); err != nil {
		s.logf("connect failed: %v", err)
	}
	return nil
}

// Disconnect tears the session down: pending reconnect and typing timers are
// cancelled, handlers removed, the socket closed, and connection, typing and
// presence state reset. The message cache is retained so the UI keeps
// rendering during a teardown/reconnect cycle. Safe to call repeatedly and
// in any state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.closing = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.settleTimer != nil {
		s.settleTimer.Stop()
		s.settleTimer = nil
	}
	t := s.transport
	s.transport = nil
	s.state = ConnectionState{}
	s.typingActive = false
	s.typingConv = ""
	s.mu.Unlock()

	s.stopTimer.Cancel()
	if t != nil {
		t.RemoveAllListeners()
		if err := t.Close(); err != nil {
			s.logf("close: %v", err)
		}
	}
	s.typing.Reset()
	s.presence.Reset()
	metricConnected.Set(0)
	s.emitState()
	s.emitUpdate()
}

// Reconnect forces a disconnect-then-connect cycle with a fixed settle delay
// between the two halves, and resets the attempt counter. This is the manual
// escape hatch after retries are exhausted.
func (s *Session) Reconnect() {
	s.Disconnect()
	s.mu.Lock()
	s.reconn.reset()
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	s.settleTimer = time.AfterFunc(reconnectSettleDelay, func() {
		if err := s.Connect(ctx); err != nil {
			s.logf("reconnect: %v", err)
		}
	})
	s.mu.Unlock()
}

// SetOnline feeds host network transitions into the session. Going offline
// cancels any scheduled retry and records the offline condition; coming back
// online resets the attempt counter and connects immediately rather than
// waiting out a backoff timer.
func (s *Session) SetOnline(online bool) {
	s.mu.Lock()
	s.online = online
	if !online {
		if s.reconnectTimer != nil {
			s.reconnectTimer.Stop()
			s.reconnectTimer = nil
		}
		if !s.state.Connected {
			s.state.Reconnecting = false
			s.state.Err = errOffline
		}
		s.mu.Unlock()
		s.emitState()
		return
	}
	s.reconn.reset()
	// A retry scheduled before the transition must not fire later and tear
	// down the connection made here.
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	connected := s.state.Connected
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if !connected {
		s.state.Err = ""
	}
	s.mu.Unlock()
	if !connected {
		if err := s.Connect(ctx); err != nil {
			s.logf("online reconnect: %v", err)
		}
	}
}

// State returns a snapshot of the connection state.
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChange subscribes to connection state transitions. The returned
// function unsubscribes.
func (s *Session) OnStateChange(fn func(ConnectionState)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.stateSubs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.stateSubs, id)
	}
}

// OnUpdate subscribes to data changes: cache, typing or presence mutations.
// The signal carries no payload, subscribers re-read the accessors. The
// returned function unsubscribes.
func (s *Session) OnUpdate(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.updateSubs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.updateSubs, id)
	}
}

func (s *Session) emitState() {
	s.mu.Lock()
	state := s.state
	subs := make([]func(ConnectionState), 0, len(s.stateSubs))
	for _, fn := range s.stateSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(state)
	}
}

func (s *Session) emitUpdate() {
	s.mu.Lock()
	subs := make([]func(), 0, len(s.updateSubs))
	for _, fn := range s.updateSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// ── Connection callbacks ─────────────────────────────────

func (s *Session) handleConnect() {
	s.mu.Lock()
	s.reconn.reset()
	s.state = ConnectionState{Connected: true, LastConnected: time.Now()}
	selected := s.selected
	t := s.transport
	s.mu.Unlock()

	metricConnected.Set(1)
	s.logf("connected")

	// Room membership is per-connection server state, so the open
	// conversation must be re-joined after every (re)connect.
	if selected != "" && t != nil {
		if err := t.Emit(EventJoinConversation, RoomPayload{ConversationID: selected}); err != nil {
			s.logf("rejoin %s: %v", selected, err)
		}
	}
	s.emitState()
}

func (s *Session) handleDisconnect(reason string) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.state.Connected = false
	s.typingActive = false
	s.typingConv = ""
	s.mu.Unlock()

	metricConnected.Set(0)
	s.stopTimer.Cancel()
	s.typing.Reset()
	s.logf("disconnected: %s", reason)
	s.scheduleReconnect(fmt.Sprintf("connection lost: %s", reason))
	s.emitUpdate()
}

func (s *Session) handleConnectError(err error) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.state.Connected = false
	s.mu.Unlock()

	metricConnected.Set(0)
	s.logf("connect error: %v", err)
	s.scheduleReconnect(err.Error())
}

// scheduleReconnect arms the next backoff attempt. Offline hosts and
// exhausted attempt budgets record an error state instead; both require an
// external trigger (online transition or manual Reconnect) to resume.
func (s *Session) scheduleReconnect(cause string) {
	s.mu.Lock()
	if !s.online {
		s.state.Reconnecting = false
		s.state.Err = errOffline
		s.mu.Unlock()
		s.emitState()
		return
	}
	if s.reconn.exhausted() {
		s.state.Reconnecting = false
		s.state.Err = fmt.Sprintf(errExhausted, s.reconn.maxAttempts)
		s.mu.Unlock()
		s.notifier.Notify(NotifyError, "Connection lost", "Unable to reconnect. Please reconnect manually.")
		s.emitState()
		return
	}
	delay := s.reconn.nextDelay()
	attempt := s.reconn.attempt
	s.state.Reconnecting = true
	s.state.Err = cause
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.state.Connected {
			s.mu.Unlock()
			return
		}
		old := s.transport
		s.transport = nil
		s.mu.Unlock()
		if old != nil {
			old.RemoveAllListeners()
			_ = old.Close()
		}
		if err := s.Connect(ctx); err != nil {
			s.logf("reconnect attempt: %v", err)
		}
	})
	s.mu.Unlock()

	metricReconnects.Inc()
	s.logf("reconnect attempt %d in %s", attempt, delay)
	s.emitState()
}

// ── Inbound events ───────────────────────────────────────

func (s *Session) localUserID() string {
	if s.cfg.User == nil {
		return ""
	}
	return s.cfg.User.ID
}

func (s *Session) onNewMessage(payload json.RawMessage) {
	metricEvents.WithLabelValues(EventNewMessage).Inc()
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logf("new_message decode: %v", err)
		return
	}
	s.mu.Lock()
	selected := s.selected
	s.mu.Unlock()

	if s.cache.ApplyNew(msg, selected, s.localUserID()) {
		s.notifier.Notify(NotifyInfo, msg.SenderName, preview(msg))
	}
	// Message arrival supersedes the sender's typing state: their client may
	// have lost the stop event, so the entry is cleared here rather than
	// waiting on one.
	s.typing.Apply(TypingStatus{ConversationID: msg.ConversationID, UserID: msg.SenderID, IsTyping: false})
	s.emitUpdate()
}

func (s *Session) onMessageUpdated(payload json.RawMessage) {
	metricEvents.WithLabelValues(EventMessageUpdated).Inc()
	var p MessageUpdatedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logf("message_updated decode: %v", err)
		return
	}
	s.cache.ApplyUpdate(p)
	s.emitUpdate()
}

func (s *Session) onMessageRead(payload json.RawMessage) {
	metricEvents.WithLabelValues(EventMessageRead).Inc()
	var p MessageReadPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logf("message_read decode: %v", err)
		return
	}
	s.cache.ApplyRead(p)
	s.emitUpdate()
}

func (s *Session) onMessageReaction(payload json.RawMessage) {
	metricEvents.WithLabelValues(EventMessageReaction).Inc()
	var p ReactionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logf("message_reaction decode: %v", err)
		return
	}
	s.cache.ApplyReaction(p)
	s.emitUpdate()
}

func (s *Session) onTypingIndicator(payload json.RawMessage) {
	metricEvents.WithLabelValues(EventTypingIndicator).Inc()
	var status TypingStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		s.logf("typing_indicator decode: %v", err)
		return
	}
	// The server echoes typing to the whole room, including the sender.
	if status.UserID == s.localUserID() {
		return
	}
	s.typing.Apply(status)
	s.emitUpdate()
}

func (s *Session) onUserStatus(payload json.RawMessage) {
	metricEvents.WithLabelValues(EventUserStatusChanged).Inc()
	var p UserStatusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logf("user_status_changed decode: %v", err)
		return
	}
	s.presence.Apply(p.UserID, p.Status)
	s.emitUpdate()
}

func (s *Session) onRoomEvent(kind string) EventHandler {
	return func(payload json.RawMessage) {
		var p RoomPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return
		}
		s.logf("conversation %s: %s user=%s", kind, p.ConversationID, p.UserID)
	}
}

func preview(msg Message) string {
	if msg.Type != MessageText {
		return "Sent an attachment"
	}
	const max = 80
	if len(msg.Content) > max {
		return msg.Content[:max] + "…"
	}
	return msg.Content
}

// ── Actions ──────────────────────────────────────────────

// LoadConversations fetches the conversation list over REST and seeds the
// cache.
func (s *Session) LoadConversations(ctx context.Context) ([]Conversation, error) {
	convs, err := s.client.Messaging().Conversations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	s.cache.SetConversations(convs)
	s.emitUpdate()
	return convs, nil
}

// SelectConversation opens one conversation: its room is joined (the
// previous one left), history loaded, and its unread counter cleared both
// locally and server-side. The read-marking error is non-fatal; a stale
// counter corrects itself on the next load.
func (s *Session) SelectConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	previous := s.selected
	s.selected = conversationID
	t := s.transport
	connected := s.state.Connected
	s.mu.Unlock()

	if connected && t != nil {
		if previous != "" && previous != conversationID {
			if err := t.Emit(EventLeaveConversation, RoomPayload{ConversationID: previous}); err != nil {
				s.logf("leave %s: %v", previous, err)
			}
		}
		if err := t.Emit(EventJoinConversation, RoomPayload{ConversationID: conversationID}); err != nil {
			s.logf("join %s: %v", conversationID, err)
		}
	}

	msgs, err := s.client.Messaging().Messages.History(ctx, conversationID, nil)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	s.cache.SetHistory(conversationID, msgs)

	if conv, ok := s.cache.Conversation(conversationID); ok && conv.UnreadCount > 0 {
		conv.UnreadCount = 0
		s.cache.UpsertConversation(conv)
		if err := s.client.Messaging().Conversations.MarkRead(ctx, conversationID); err != nil {
			s.logf("mark conversation read: %v", err)
		}
	}
	s.emitUpdate()
	return nil
}

// SelectedConversation returns the id of the open conversation, if any.
func (s *Session) SelectedConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// SendMessage delivers a message with optimistic local echo: a pending record
// appears in the cache synchronously, before any network I/O, then the send
// runs over REST. On success every pending record in the conversation is
// reconciled away and the confirmed one appended; on failure only this
// attempt's record is rolled back and an error notice raised. The returned
// error is informational, the UI contract is state plus notification.
func (s *Session) SendMessage(ctx context.Context, conversationID, content string, opts *SendOptions) (*Message, error) {
	if conversationID == "" {
		s.notifier.Notify(NotifyError, "Message not delivered", "No conversation selected")
		return nil, fmt.Errorf("send message: no conversation selected")
	}

	localID := uuid.NewString()
	now := time.Now()

	pending := Message{
		LocalID:        localID,
		Status:         StatusPending,
		ConversationID: conversationID,
		SenderID:       s.localUserID(),
		Content:        content,
		Type:           MessageText,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if s.cfg.User != nil {
		pending.SenderName = s.cfg.User.DisplayName()
	}
	if opts != nil {
		if opts.Type != "" {
			pending.Type = opts.Type
		}
		pending.ReplyTo = opts.ReplyTo
		pending.Attachments = opts.Attachments
	}
	s.cache.AppendPending(pending)
	s.emitUpdate()

	// Sending implies the local user stopped typing.
	s.stopTypingNow(conversationID)

	confirmed, err := s.client.Messaging().Messages.Send(ctx, conversationID, content, localID, opts)
	if err != nil {
		s.cache.DropPending(conversationID, localID)
		metricSendFailures.Inc()
		s.notifier.Notify(NotifyError, "Message not delivered", err.Error())
		s.emitUpdate()
		return nil, fmt.Errorf("send message: %w", err)
	}
	s.cache.ConfirmSend(conversationID, *confirmed)
	metricMessagesSent.Inc()
	s.emitUpdate()
	return confirmed, nil
}

// MarkAsRead records the local user's read position on a message. There is
// no optimistic path: the cache converges on the echoed message_read event.
func (s *Session) MarkAsRead(ctx context.Context, messageID string) error {
	if err := s.client.Messaging().Messages.MarkRead(ctx, messageID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// AddReaction attaches an emoji reaction. Like MarkAsRead, the cache updates
// only on the echoed event.
func (s *Session) AddReaction(ctx context.Context, messageID, emoji string) error {
	if err := s.client.Messaging().Messages.React(ctx, messageID, emoji); err != nil {
		return fmt.Errorf("add reaction: %w", err)
	}
	return nil
}

// RemoveReaction removes the local user's reaction.
func (s *Session) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	if err := s.client.Messaging().Messages.Unreact(ctx, messageID, emoji); err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	return nil
}

// EditMessage replaces a message's content. The cache converges on the
// echoed message_updated event.
func (s *Session) EditMessage(ctx context.Context, messageID, content string) error {
	if err := s.client.Messaging().Messages.Edit(ctx, messageID, content); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// DeleteMessage soft-deletes a message.
func (s *Session) DeleteMessage(ctx context.Context, messageID string) error {
	if err := s.client.Messaging().Messages.Delete(ctx, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// SendTypingIndicator signals that the local user is typing. Every keystroke
// re-issues the start event and re-arms the single auto-stop timer, which
// emits the matching stop event after three seconds of silence. Switching to
// another conversation mid-typing stops the old one first. No-op while
// disconnected or when typing indicators are disabled; a keystroke made while
// disconnected leaves no state behind.
func (s *Session) SendTypingIndicator(conversationID string) {
	if s.cfg.DisableTypingIndicators {
		return
	}
	s.mu.Lock()
	t := s.transport
	connected := s.state.Connected
	previous := s.typingConv
	s.mu.Unlock()
	if !connected || t == nil {
		return
	}

	if previous != "" && previous != conversationID {
		s.stopTypingNow(previous)
	}

	s.mu.Lock()
	s.typingActive = true
	s.typingConv = conversationID
	s.mu.Unlock()

	if err := t.Emit(EventTypingIndicator, s.typingPayload(conversationID, true)); err != nil {
		s.logf("typing start: %v", err)
	}
	s.stopTimer.Arm(func() { s.stopTypingNow(conversationID) })
}

// stopTypingNow cancels the auto-stop timer and emits the stop event if a
// start was outstanding for this conversation.
func (s *Session) stopTypingNow(conversationID string) {
	s.mu.Lock()
	active := s.typingActive && s.typingConv == conversationID
	if active {
		s.typingActive = false
		s.typingConv = ""
	}
	t := s.transport
	connected := s.state.Connected
	s.mu.Unlock()
	if !active {
		return
	}
	s.stopTimer.Cancel()
	if !connected || t == nil {
		return
	}
	if err := t.Emit(EventTypingIndicator, s.typingPayload(conversationID, false)); err != nil {
		s.logf("typing stop: %v", err)
	}
}

func (s *Session) typingPayload(conversationID string, isTyping bool) TypingStatus {
	status := TypingStatus{
		ConversationID: conversationID,
		UserID:         s.localUserID(),
		IsTyping:       isTyping,
	}
	if s.cfg.User != nil {
		status.UserName = s.cfg.User.DisplayName()
	}
	return status
}

// UploadAttachment uploads a file and returns it as an attachment ready for
// SendOptions.
func (s *Session) UploadAttachment(ctx context.Context, filePath string) (*Attachment, error) {
	desc, err := s.client.Messaging().Files.UploadFile(ctx, filePath, nil)
	if err != nil {
		return nil, fmt.Errorf("upload attachment: %w", err)
	}
	att := desc.Attachment()
	return &att, nil
}

// SearchMessages runs a server-side full-text search across the user's
// conversations. Results are not merged into the cache.
func (s *Session) SearchMessages(ctx context.Context, query string) ([]Message, error) {
	return s.client.Messaging().Messages.Search(ctx, query)
}

// CreateConversation starts a conversation with the given participants and
// adds it to the cache.
func (s *Session) CreateConversation(ctx context.Context, participantIDs []string) (*Conversation, error) {
	conv, err := s.client.Messaging().Conversations.Create(ctx, participantIDs)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s.cache.UpsertConversation(*conv)
	s.emitUpdate()
	return conv, nil
}

// BlockUser blocks another user via the moderation surface.
func (s *Session) BlockUser(ctx context.Context, userID, reason string) error {
	return s.client.Messaging().Moderation.BlockUser(ctx, userID, reason)
}

// UnblockUser reverses a block.
func (s *Session) UnblockUser(ctx context.Context, userID string) error {
	return s.client.Messaging().Moderation.UnblockUser(ctx, userID)
}

// ── Read accessors ───────────────────────────────────────

// Conversations returns a snapshot of the conversation list, most recently
// active first.
func (s *Session) Conversations() []Conversation {
	return s.cache.Conversations()
}

// Messages returns a snapshot of a conversation's messages in render order.
func (s *Session) Messages(conversationID string) []Message {
	return s.cache.Messages(conversationID)
}

// TypingUsers returns who is currently typing in a conversation.
func (s *Session) TypingUsers(conversationID string) []TypingStatus {
	return s.typing.InConversation(conversationID)
}

// OnlineUsers returns the ids of users known to be online.
func (s *Session) OnlineUsers() []string {
	return s.presence.Online()
}
