package mindwell

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SignatureHeader carries the HMAC signature on webhook deliveries.
const SignatureHeader = "X-Mindwell-Signature"

// webhookSource identifies payloads originating from the messaging platform.
const webhookSource = "mindwell_messaging"

// ============================================================================
// Webhook types
// ============================================================================

// WebhookPayload is one server-to-server delivery, POSTed to an integration
// endpoint when a messaging event fires (e.g. a message to a care-team
// inbox).
type WebhookPayload struct {
	Source       string       `json:"source"`
	Event        string       `json:"event"`
	Timestamp    int64        `json:"timestamp"`
	Message      Message      `json:"message"`
	Sender       User         `json:"sender"`
	Conversation Conversation `json:"conversation"`
}

// WebhookReply is an optional automated response a handler may return, sent
// back into the originating conversation.
type WebhookReply struct {
	Content string      `json:"content"`
	Type    MessageType `json:"type,omitempty"`
}

// WebhookHandlerFunc processes one verified payload.
type WebhookHandlerFunc func(payload *WebhookPayload) (*WebhookReply, error)

// ============================================================================
// Verification and parsing
// ============================================================================

// VerifyWebhookSignature checks an HMAC-SHA256 hex signature over the raw
// body, tolerating an optional "sha256=" prefix. Comparison is constant-time.
func VerifyWebhookSignature(body, signature, secret string) bool {
	if body == "" || signature == "" || secret == "" {
		return false
	}

	sig := strings.TrimPrefix(signature, "sha256=")
	if sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	expected := hex.EncodeToString(mac.Sum(nil))

	if len(sig) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) == 1
}

// ParseWebhookPayload decodes and validates a raw webhook body.
func ParseWebhookPayload(body string) (*WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON in webhook body: %w", err)
	}

	if payload.Source != webhookSource {
		return nil, fmt.Errorf("unknown webhook source: %s", payload.Source)
	}
	if payload.Event == "" {
		return nil, fmt.Errorf("missing event field in webhook payload")
	}
	if payload.Message.ID == "" || payload.Sender.ID == "" || payload.Conversation.ID == "" {
		return nil, fmt.Errorf("missing required fields in webhook payload (message, sender, conversation)")
	}
	return &payload, nil
}

// ============================================================================
// Webhook receiver
// ============================================================================

// Webhook verifies, parses and dispatches inbound webhook deliveries.
type Webhook struct {
	secret    string
	onMessage WebhookHandlerFunc
	messaging *MessagingClient
}

// NewWebhook builds a webhook receiver. The secret is the shared HMAC key
// configured on the platform side.
func NewWebhook(secret string, onMessage WebhookHandlerFunc) (*Webhook, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	return &Webhook{secret: secret, onMessage: onMessage}, nil
}

// SetReplyClient makes handler replies flow back into the originating
// conversation through the messaging API. Without it, replies are only
// returned in the HTTP response body.
func (w *Webhook) SetReplyClient(m *MessagingClient) {
	w.messaging = m
}

// Verify checks a delivery signature against the shared secret.
func (w *Webhook) Verify(body, signature string) bool {
	return VerifyWebhookSignature(body, signature, w.secret)
}

// Handle runs verify + parse + dispatch for one delivery and returns the
// status code and response body for the caller to write.
func (w *Webhook) Handle(body, signature string) (int, any) {
	if !w.Verify(body, signature) {
		return http.StatusUnauthorized, map[string]string{"error": "Invalid signature"}
	}

	payload, err := ParseWebhookPayload(body)
	if err != nil {
		return http.StatusBadRequest, map[string]string{"error": err.Error()}
	}

	reply, err := w.onMessage(payload)
	if err != nil {
		return http.StatusInternalServerError, map[string]string{"error": err.Error()}
	}

	if reply != nil {
		if w.messaging != nil {
			opts := &SendOptions{Type: reply.Type}
			if _, err := w.messaging.Messages.Send(context.Background(), payload.Conversation.ID, reply.Content, "", opts); err != nil {
				return http.StatusBadGateway, map[string]string{"error": fmt.Sprintf("reply failed: %v", err)}
			}
		}
		return http.StatusOK, reply
	}
	return http.StatusOK, map[string]bool{"ok": true}
}

// HTTPHandler returns an http.Handler for mounting the receiver:
//
//	wh, _ := mindwell.NewWebhook("secret", handler)
//	http.Handle("/webhook", wh.HTTPHandler())
func (w *Webhook) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			json.NewEncoder(rw).Encode(map[string]string{"error": "Method not allowed"})
			return
		}

		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(rw).Encode(map[string]string{"error": "Failed to read body"})
			return
		}
		defer r.Body.Close()

		statusCode, data := w.Handle(string(bodyBytes), r.Header.Get(SignatureHeader))
		rw.WriteHeader(statusCode)
		json.NewEncoder(rw).Encode(data)
	})
}

// HTTPHandlerFunc returns an http.HandlerFunc for convenience.
func (w *Webhook) HTTPHandlerFunc() http.HandlerFunc {
	return w.HTTPHandler().ServeHTTP
}
