package mindwell

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"nhooyr.io/websocket"
)

// ============================================================================
// Realtime event names
// ============================================================================

// Inbound server events.
const (
	EventNewMessage         = "new_message"
	EventMessageUpdated     = "message_updated"
	EventMessageRead        = "message_read"
	EventMessageReaction    = "message_reaction"
	EventTypingIndicator    = "typing_indicator"
	EventUserStatusChanged  = "user_status_changed"
	EventConversationJoined = "conversation_joined"
	EventConversationLeft   = "conversation_left"
)

// Outbound client events.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
)

// Envelope is the wire format for all realtime traffic, both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ============================================================================
// Transport
// ============================================================================

// EventHandler receives the raw payload of one inbound event.
type EventHandler func(payload json.RawMessage)

// Transport is the socket abstraction the session drives. Handlers must be
// registered before Connect so that no early server event is lost, and are
// invoked in receive order from a single reader goroutine.
type Transport interface {
	Connect(ctx context.Context) error
	Emit(event string, payload any) error
	On(event string, h EventHandler)
	OnConnect(h func())
	OnDisconnect(h func(reason string))
	OnConnectError(h func(err error))
	RemoveAllListeners()
	Close() error
}

// TransportFactory builds a transport for one namespace/credential pair. The
// session constructs a fresh transport per connection attempt.
type TransportFactory func(namespace, token string) Transport

// ============================================================================
// WebSocket transport
// ============================================================================

// wsTransport is the production Transport over a WebSocket connection.
type wsTransport struct {
	url string

	mu             sync.Mutex
	conn           *websocket.Conn
	handlers       map[string][]EventHandler
	onConnect      []func()
	onDisconnect   []func(string)
	onConnectError []func(error)
	closed         bool
	cancelRead     context.CancelFunc
}

// NewWebSocketTransport returns a TransportFactory dialing the given base URL.
// The namespace becomes a path segment and the token a query parameter, e.g.
// wss://api.mindwell.health/realtime/messaging?token=...
func NewWebSocketTransport(baseURL string) TransportFactory {
	return func(namespace, token string) Transport {
		wsURL := strings.Replace(baseURL, "https://", "wss://", 1)
		wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
		wsURL = strings.TrimRight(wsURL, "/") + "/realtime/" + namespace
		if token != "" {
			wsURL += "?token=" + token
		}
		return &wsTransport{
			url:      wsURL,
			handlers: make(map[string][]EventHandler),
		}
	}
}

func (t *wsTransport) On(event string, h EventHandler) {
	t.mu.Lock()
	t.handlers[event] = append(t.handlers[event], h)
	t.mu.Unlock()
}

func (t *wsTransport) OnConnect(h func()) {
	t.mu.Lock()
	t.onConnect = append(t.onConnect, h)
	t.mu.Unlock()
}

func (t *wsTransport) OnDisconnect(h func(string)) {
	t.mu.Lock()
	t.onDisconnect = append(t.onDisconnect, h)
	t.mu.Unlock()
}

func (t *wsTransport) OnConnectError(h func(error)) {
	t.mu.Lock()
	t.onConnectError = append(t.onConnectError, h)
	t.mu.Unlock()
}

func (t *wsTransport) RemoveAllListeners() {
	t.mu.Lock()
	t.handlers = make(map[string][]EventHandler)
	t.onConnect = nil
	t.onDisconnect = nil
	t.onConnectError = nil
	t.mu.Unlock()
}

// Connect dials the server and starts the reader. The handshake relies on the
// websocket library's own timeout via ctx.
func (t *wsTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	t.closed = false
	t.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, t.url, nil)
	if err != nil {
		t.mu.Lock()
		errHandlers := append([]func(error){}, t.onConnectError...)
		t.mu.Unlock()
		for _, h := range errHandlers {
			h(err)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.conn = conn
	t.cancelRead = cancel
	connHandlers := append([]func(){}, t.onConnect...)
	t.mu.Unlock()

	for _, h := range connHandlers {
		h()
	}

	go t.readLoop(readCtx, conn)
	return nil
}

func (t *wsTransport) Emit(event string, payload any) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Envelope{Event: event, Payload: raw})
	if err != nil {
		return err
	}
	return conn.Write(context.Background(), websocket.MessageText, data)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	if t.cancelRead != nil {
		t.cancelRead()
		t.cancelRead = nil
	}
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

// readLoop decodes envelopes and dispatches handlers inline, preserving the
// server's event order.
func (t *wsTransport) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.mu.Lock()
			intentional := t.closed
			if t.conn == conn {
				t.conn = nil
			}
			dropHandlers := append([]func(string){}, t.onDisconnect...)
			t.mu.Unlock()

			if intentional {
				return
			}
			for _, h := range dropHandlers {
				h(err.Error())
			}
			return
		}

		var env Envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}

		t.mu.Lock()
		handlers := append([]EventHandler{}, t.handlers[env.Event]...)
		t.mu.Unlock()
		for _, h := range handlers {
			h(env.Payload)
		}
	}
}
