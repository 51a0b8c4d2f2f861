// Package mindwell provides the Go client SDK for the Mindwell care platform.
//
// Covers the messaging REST API and the realtime messaging session with
// sub-module access pattern.
//
// Example:
//
//	client := mindwell.NewClient("eyJhbGciOi...")
//
//	// Messaging REST API (sub-module pattern)
//	convs, _ := client.Messaging().Conversations.List(ctx)
//	msg, _ := client.Messaging().Messages.Send(ctx, "conv-123", "Hello!", "", nil)
//
//	// Realtime session
//	session := mindwell.NewSession(client, mindwell.SessionConfig{
//		User: me, Token: token, RealtimeEnabled: true,
//	})
//	session.Connect(ctx)
//	defer session.Disconnect()
package mindwell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ============================================================================
// Environment
// ============================================================================

type Environment string

const (
	Production Environment = "production"
	Staging    Environment = "staging"
)

var environments = map[Environment]string{
	Production: "https://api.mindwell.health",
	Staging:    "https://api.staging.mindwell.health",
}

const (
	DefaultBaseURL = "https://api.mindwell.health"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client is the Mindwell API client. It holds the HTTP transport and the
// bearer credential shared by all sub-clients.
type Client struct {
	token      string
	baseURL    string
	userAgent  string
	httpClient *http.Client
	messaging  *MessagingClient
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithEnvironment(env Environment) ClientOption {
	return func(c *Client) {
		if u, ok := environments[env]; ok {
			c.baseURL = u
		}
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithUserAgent(agent string) ClientOption {
	return func(c *Client) { c.userAgent = agent }
}

// NewClient creates a new Mindwell client authenticated with an access token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.messaging = newMessagingClient(c)
	return c
}

// SetToken sets or updates the access token, e.g. after a refresh.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Messaging returns the messaging API sub-client.
func (c *Client) Messaging() *MessagingClient {
	return c.messaging
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	data, err := c.doRequest(ctx, "GET", "/api/auth/me", nil, nil)
	if err != nil {
		return nil, err
	}
	res, err := decodeJSON[Result](data)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	var user User
	if err := res.Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &user, nil
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// ============================================================================
// Messaging Client (orchestrates sub-modules)
// ============================================================================

// MessagingClient provides access to the messaging API via sub-modules.
type MessagingClient struct {
	client *Client

	Conversations *ConversationsClient
	Messages      *MessagesClient
	Files         *FilesClient
	Moderation    *ModerationClient
}

func newMessagingClient(c *Client) *MessagingClient {
	m := &MessagingClient{client: c}
	m.Conversations = &ConversationsClient{m: m}
	m.Messages = &MessagesClient{m: m}
	m.Files = &FilesClient{m: m}
	m.Moderation = &ModerationClient{m: m}
	return m
}

func (m *MessagingClient) do(ctx context.Context, method, path string, body interface{}, query map[string]string) (*Result, error) {
	data, err := m.client.doRequest(ctx, method, path, body, query)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Result](data)
}

// Health checks messaging service health.
func (m *MessagingClient) Health(ctx context.Context) (*Result, error) {
	return m.do(ctx, "GET", "/api/messaging/health", nil, nil)
}

// ============================================================================
// Conversations
// ============================================================================

// ConversationsClient handles conversation management.
type ConversationsClient struct{ m *MessagingClient }

// List returns the viewer's conversations with unread counters and
// last-message snapshots.
func (cv *ConversationsClient) List(ctx context.Context) ([]Conversation, error) {
	res, err := cv.m.do(ctx, "GET", "/api/messaging/conversations", nil, nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	var convs []Conversation
	if err := res.Decode(&convs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return convs, nil
}

// Get returns a single conversation.
func (cv *ConversationsClient) Get(ctx context.Context, conversationID string) (*Conversation, error) {
	res, err := cv.m.do(ctx, "GET", "/api/messaging/conversations/"+conversationID, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	var conv Conversation
	if err := res.Decode(&conv); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return &conv, nil
}

// Create starts a conversation with the given participants.
func (cv *ConversationsClient) Create(ctx context.Context, participantIDs []string) (*Conversation, error) {
	res, err := cv.m.do(ctx, "POST", "/api/messaging/conversations", map[string]any{
		"participantIds": participantIDs,
	}, nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	var conv Conversation
	if err := res.Decode(&conv); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return &conv, nil
}

// MarkRead resets the viewer's unread counter for a conversation.
func (cv *ConversationsClient) MarkRead(ctx context.Context, conversationID string) error {
	res, err := cv.m.do(ctx, "POST", "/api/messaging/conversations/"+conversationID+"/read", nil, nil)
	if err != nil {
		return err
	}
	return res.Err()
}

// ============================================================================
// Messages
// ============================================================================

// MessagesClient handles message operations.
type MessagesClient struct{ m *MessagingClient }

// PageOptions paginate message history.
type PageOptions struct {
	Limit  int
	Before string
}

func (p *PageOptions) query() map[string]string {
	if p == nil {
		return nil
	}
	q := map[string]string{}
	if p.Limit > 0 {
		q["limit"] = fmt.Sprintf("%d", p.Limit)
	}
	if p.Before != "" {
		q["before"] = p.Before
	}
	if len(q) == 0 {
		return nil
	}
	return q
}

// History returns a conversation's message history, oldest first.
func (ms *MessagesClient) History(ctx context.Context, conversationID string, page *PageOptions) ([]Message, error) {
	res, err := ms.m.do(ctx, "GET", "/api/messaging/conversations/"+conversationID+"/messages", nil, page.query())
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	var msgs []Message
	if err := res.Decode(&msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return msgs, nil
}

// Send posts a message to a conversation and returns the server-confirmed
// record. clientID is echoed back for reconciliation of optimistic sends.
func (ms *MessagesClient) Send(ctx context.Context, conversationID, content string, clientID string, opts *SendOptions) (*Message, error) {
	payload := map[string]any{"content": content, "type": MessageText}
	if clientID != "" {
		payload["clientId"] = clientID
	}
	if opts != nil {
		if opts.Type != "" {
			payload["type"] = opts.Type
		}
		if opts.ReplyTo != "" {
			payload["replyTo"] = opts.ReplyTo
		}
		if len(opts.Attachments) > 0 {
			payload["attachments"] = opts.Attachments
		}
	}
	res, err := ms.m.do(ctx, "POST", "/api/messaging/conversations/"+conversationID+"/messages", payload, nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	var msg Message
	if err := res.Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}

// Edit replaces a message's content.
func (ms *MessagesClient) Edit(ctx context.Context, messageID, content string) error {
	res, err := ms.m.do(ctx, "PATCH", "/api/messaging/messages/"+messageID, map[string]string{"content": content}, nil)
	if err != nil {
		return err
	}
	return res.Err()
}

// Delete soft-deletes a message.
func (ms *MessagesClient) Delete(ctx context.Context, messageID string) error {
	res, err := ms.m.do(ctx, "DELETE", "/api/messaging/messages/"+messageID, nil, nil)
	if err != nil {
		return err
	}
	return res.Err()
}

// MarkRead records a read receipt for a message. Local state is reconciled
// only through the echoed message_read event.
func (ms *MessagesClient) MarkRead(ctx context.Context, messageID string) error {
	res, err := ms.m.do(ctx, "POST", "/api/messaging/messages/"+messageID+"/read", nil, nil)
	if err != nil {
		return err
	}
	return res.Err()
}

// React adds an emoji reaction to a message.
func (ms *MessagesClient) React(ctx context.Context, messageID, emoji string) error {
	res, err := ms.m.do(ctx, "POST", "/api/messaging/messages/"+messageID+"/reactions", map[string]string{"emoji": emoji}, nil)
	if err != nil {
		return err
	}
	return res.Err()
}

// Unreact removes the viewer's emoji reaction from a message.
func (ms *MessagesClient) Unreact(ctx context.Context, messageID, emoji string) error {
	res, err := ms.m.do(ctx, "DELETE", "/api/messaging/messages/"+messageID+"/reactions", map[string]string{"emoji": emoji}, nil)
	if err != nil {
		return err
	}
	return res.Err()
}

// Search performs a full-text search over the viewer's messages.
func (ms *MessagesClient) Search(ctx context.Context, query string) ([]Message, error) {
	res, err := ms.m.do(ctx, "GET", "/api/messaging/messages/search", nil, map[string]string{"q": query})
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	var msgs []Message
	if err := res.Decode(&msgs); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}
	return msgs, nil
}

// ============================================================================
// Moderation
// ============================================================================

// ModerationClient handles user-level safety actions.
type ModerationClient struct{ m *MessagingClient }

// BlockUser blocks another user from contacting the viewer.
func (mo *ModerationClient) BlockUser(ctx context.Context, userID, reason string) error {
	res, err := mo.m.do(ctx, "POST", "/api/messaging/users/"+userID+"/block", map[string]string{"reason": reason}, nil)
	if err != nil {
		return err
	}
	return res.Err()
}

// UnblockUser lifts a block.
func (mo *ModerationClient) UnblockUser(ctx context.Context, userID string) error {
	res, err := mo.m.do(ctx, "DELETE", "/api/messaging/users/"+userID+"/block", nil, nil)
	if err != nil {
		return err
	}
	return res.Err()
}

// ============================================================================
// Files
// ============================================================================

const (
	maxFileSize       = 50 * 1024 * 1024
	simpleUploadLimit = 10 * 1024 * 1024
	multipartChunk    = 5 * 1024 * 1024
)

// FilesClient handles the attachment upload lifecycle:
// presign, upload (simple or multipart), confirm.
type FilesClient struct{ m *MessagingClient }

// Presign requests an upload slot for a file.
func (f *FilesClient) Presign(ctx context.Context, fileName string, fileSize int64, mimeType string) (*PresignResult, error) {
	res, err := f.m.do(ctx, "POST", "/api/messaging/files/presign", map[string]any{
		"fileName": fileName, "fileSize": fileSize, "mimeType": mimeType,
	}, nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	var presign PresignResult
	if err := res.Decode(&presign); err != nil {
		return nil, fmt.Errorf("decode presign: %w", err)
	}
	return &presign, nil
}

// Confirm finalizes an uploaded file and returns its descriptor.
func (f *FilesClient) Confirm(ctx context.Context, uploadID string) (*FileDescriptor, error) {
	res, err := f.m.do(ctx, "POST", "/api/messaging/files/confirm", map[string]string{"uploadId": uploadID}, nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	var desc FileDescriptor
	if err := res.Decode(&desc); err != nil {
		return nil, fmt.Errorf("decode confirm: %w", err)
	}
	return &desc, nil
}

// Quota returns the viewer's storage quota.
func (f *FilesClient) Quota(ctx context.Context) (*FileQuota, error) {
	res, err := f.m.do(ctx, "GET", "/api/messaging/files/quota", nil, nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	var quota FileQuota
	if err := res.Decode(&quota); err != nil {
		return nil, fmt.Errorf("decode quota: %w", err)
	}
	return &quota, nil
}

// Delete removes an uploaded file.
func (f *FilesClient) Delete(ctx context.Context, uploadID string) error {
	res, err := f.m.do(ctx, "DELETE", "/api/messaging/files/"+uploadID, nil, nil)
	if err != nil {
		return err
	}
	return res.Err()
}

// InitMultipart initializes a multipart upload (for files > 10 MB).
func (f *FilesClient) InitMultipart(ctx context.Context, fileName string, fileSize int64, mimeType string) (*MultipartInitResult, error) {
	res, err := f.m.do(ctx, "POST", "/api/messaging/files/upload/init", map[string]any{
		"fileName": fileName, "fileSize": fileSize, "mimeType": mimeType,
	}, nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	var init MultipartInitResult
	if err := res.Decode(&init); err != nil {
		return nil, fmt.Errorf("decode multipart init: %w", err)
	}
	return &init, nil
}

// CompleteMultipart completes a multipart upload.
func (f *FilesClient) CompleteMultipart(ctx context.Context, uploadID string, parts []CompletedPart) (*FileDescriptor, error) {
	res, err := f.m.do(ctx, "POST", "/api/messaging/files/upload/complete", map[string]any{
		"uploadId": uploadID, "parts": parts,
	}, nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	var desc FileDescriptor
	if err := res.Decode(&desc); err != nil {
		return nil, fmt.Errorf("decode multipart complete: %w", err)
	}
	return &desc, nil
}

// Upload uploads a file from bytes (full lifecycle: presign, upload, confirm).
// FileName in opts is required.
func (f *FilesClient) Upload(ctx context.Context, data []byte, opts *UploadOptions) (*FileDescriptor, error) {
	if opts == nil || opts.FileName == "" {
		return nil, fmt.Errorf("fileName is required when uploading bytes")
	}
	fileName := opts.FileName
	mimeType := opts.MimeType
	if mimeType == "" {
		mimeType = guessMimeType(fileName)
	}
	fileSize := int64(len(data))

	if fileSize > maxFileSize {
		return nil, fmt.Errorf("file exceeds maximum size of 50 MB")
	}

	if fileSize <= simpleUploadLimit {
		return f.uploadSimple(ctx, data, fileName, fileSize, mimeType, opts.OnProgress)
	}
	return f.uploadMultipart(ctx, data, fileName, fileSize, mimeType, opts.OnProgress)
}

// UploadFile uploads a file from a local path.
// FileName and MimeType in opts are auto-detected from the path if not set.
func (f *FilesClient) UploadFile(ctx context.Context, filePath string, opts *UploadOptions) (*FileDescriptor, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if opts == nil {
		opts = &UploadOptions{}
	}
	if opts.FileName == "" {
		opts.FileName = filepath.Base(filePath)
	}
	return f.Upload(ctx, data, opts)
}

// --------------------------------------------------------------------------
// Private upload helpers
// --------------------------------------------------------------------------

func (f *FilesClient) uploadSimple(
	ctx context.Context, data []byte, fileName string, fileSize int64, mimeType string,
	onProgress func(int64, int64),
) (*FileDescriptor, error) {
	presign, err := f.Presign(ctx, fileName, fileSize, mimeType)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	// Absolute presign URLs point at object storage; relative ones are served
	// by the API and need auth headers.
	isExternal := strings.HasPrefix(presign.URL, "http")
	if isExternal {
		for k, v := range presign.Fields {
			_ = w.WriteField(k, v)
		}
	}

	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write file data: %w", err)
	}
	_ = w.Close()

	uploadURL := presign.URL
	if !isExternal {
		uploadURL = f.m.client.baseURL + presign.URL
	}

	req, err := http.NewRequestWithContext(ctx, "POST", uploadURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if !isExternal {
		f.setAuthHeaders(req)
	}

	resp, err := f.m.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("upload failed (%d): %s", resp.StatusCode, string(body))
	}

	if onProgress != nil {
		onProgress(fileSize, fileSize)
	}

	return f.Confirm(ctx, presign.UploadID)
}

func (f *FilesClient) uploadMultipart(
	ctx context.Context, data []byte, fileName string, fileSize int64, mimeType string,
	onProgress func(int64, int64),
) (*FileDescriptor, error) {
	init, err := f.InitMultipart(ctx, fileName, fileSize, mimeType)
	if err != nil {
		return nil, err
	}

	var completed []CompletedPart
	var uploaded int64

	for _, p := range init.Parts {
		start := int64(p.PartNumber-1) * multipartChunk
		end := start + multipartChunk
		if end > fileSize {
			end = fileSize
		}
		chunk := data[start:end]

		isExternal := strings.HasPrefix(p.URL, "http")
		partURL := p.URL
		if !isExternal {
			partURL = f.m.client.baseURL + p.URL
		}

		req, err := http.NewRequestWithContext(ctx, "PUT", partURL, bytes.NewReader(chunk))
		if err != nil {
			return nil, fmt.Errorf("failed to create part request: %w", err)
		}
		req.Header.Set("Content-Type", mimeType)
		if !isExternal {
			f.setAuthHeaders(req)
		}

		resp, err := f.m.client.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("part %d upload failed: %w", p.PartNumber, err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("part %d upload failed (%d)", p.PartNumber, resp.StatusCode)
		}

		etag := resp.Header.Get("ETag")
		if etag == "" {
			etag = fmt.Sprintf(`"part-%d"`, p.PartNumber)
		}
		completed = append(completed, CompletedPart{PartNumber: p.PartNumber, ETag: etag})
		uploaded += int64(len(chunk))
		if onProgress != nil {
			onProgress(uploaded, fileSize)
		}
	}

	return f.CompleteMultipart(ctx, init.UploadID, completed)
}

func (f *FilesClient) setAuthHeaders(req *http.Request) {
	if f.m.client.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.m.client.token)
	}
	if f.m.client.userAgent != "" {
		req.Header.Set("User-Agent", f.m.client.userAgent)
	}
}

// guessMimeType returns MIME type from file extension.
func guessMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	// Fallback for types not in Go's builtin registry
	fallback := map[string]string{
		".md": "text/markdown", ".yaml": "text/yaml", ".yml": "text/yaml",
		".webp": "image/webp", ".webm": "video/webm", ".m4a": "audio/mp4",
	}
	if m, ok := fallback[ext]; ok {
		return m
	}
	t := mime.TypeByExtension(ext)
	if t != "" {
		// Strip charset parameter (e.g. "text/plain; charset=utf-8" → "text/plain")
		if idx := strings.Index(t, ";"); idx > 0 {
			t = strings.TrimSpace(t[:idx])
		}
		return t
	}
	return "application/octet-stream"
}
