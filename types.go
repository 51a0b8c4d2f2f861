package mindwell

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Result is the generic API response envelope.
type Result struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Meta  map[string]any  `json:"meta,omitempty"`
	Error *APIError       `json:"error,omitempty"`
}

// Decode unmarshals the Data field into the provided type.
func (r *Result) Decode(v interface{}) error {
	if r.Data == nil {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Err returns the API error as a Go error, or nil when the result is OK.
func (r *Result) Err() error {
	if r.OK {
		return nil
	}
	if r.Error != nil {
		return r.Error
	}
	return &APIError{Code: "UNKNOWN", Message: "request failed"}
}

// ============================================================================
// Identity
// ============================================================================

// User is the authenticated identity supplied by the auth collaborator.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

// DisplayName returns the user's full name.
func (u *User) DisplayName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// ============================================================================
// Conversations
// ============================================================================

// Participant is a member of a conversation.
type Participant struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	User   *User  `json:"user,omitempty"`
}

// Conversation is a participant set sharing a message thread.
type Conversation struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"` // "direct" or "group"
	Title        string        `json:"title,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
	UnreadCount  int           `json:"unreadCount"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt,omitempty"`
}

// ============================================================================
// Messages
// ============================================================================

// MessageType enumerates supported message content kinds.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageAudio MessageType = "audio"
	MessageVideo MessageType = "video"
)

// MessageStatus distinguishes optimistic local records from server-confirmed
// ones. A pending message carries only a LocalID; a confirmed message carries
// the server-assigned ID.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusConfirmed MessageStatus = "confirmed"
)

// Attachment describes an uploaded file referenced by a message.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// Reaction is a single user's emoji reaction to a message. A user may react
// with multiple distinct emoji, but at most once per emoji.
type Reaction struct {
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReadReceipt records that a user has viewed a message.
type ReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Message is a single chat message. Locally originated messages start out
// pending with a client-generated LocalID and are reconciled against their
// server-confirmed counterpart on send acknowledgment.
type Message struct {
	ID             string        `json:"id,omitempty"`
	LocalID        string        `json:"clientId,omitempty"`
	Status         MessageStatus `json:"status,omitempty"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	SenderName     string        `json:"senderName,omitempty"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"type"`
	ReplyTo        string        `json:"replyTo,omitempty"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	Reactions      []Reaction    `json:"reactions,omitempty"`
	ReadBy         []ReadReceipt `json:"readBy,omitempty"`
	Edited         bool          `json:"edited,omitempty"`
	Deleted        bool          `json:"deleted,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt,omitempty"`
}

// Pending reports whether the message is an optimistic local record awaiting
// server confirmation.
func (m *Message) Pending() bool {
	return m.Status == StatusPending
}

// SendOptions configures an outbound message.
type SendOptions struct {
	Type        MessageType  `json:"type,omitempty"`
	ReplyTo     string       `json:"replyTo,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ============================================================================
// Realtime payloads
// ============================================================================

// TypingStatus is the ephemeral composing signal for one user in one
// conversation. Presence of an entry in the tracker is the signal; absence
// means not typing.
type TypingStatus struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	IsTyping       bool   `json:"isTyping"`
}

// MessageUpdatedPayload patches an existing message in place.
type MessageUpdatedPayload struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	Content        string    `json:"content,omitempty"`
	Deleted        bool      `json:"deleted,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// MessageReadPayload upserts a read receipt.
type MessageReadPayload struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	ReadAt         time.Time `json:"readAt"`
}

// ReactionPayload adds or removes a reaction.
type ReactionPayload struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Emoji          string    `json:"emoji"`
	Action         string    `json:"action"` // "add" or "remove"
	CreatedAt      time.Time `json:"createdAt"`
}

// UserStatusPayload signals a presence change.
type UserStatusPayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"` // "online" or "offline"
}

// RoomPayload accompanies conversation join/leave events.
type RoomPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// ConnectionState is the observable state of the realtime session.
type ConnectionState struct {
	Connected     bool
	Reconnecting  bool
	Err           string
	LastConnected time.Time
}

// ============================================================================
// File uploads
// ============================================================================

// UploadOptions configures a file upload.
type UploadOptions struct {
	FileName   string
	MimeType   string
	OnProgress func(uploaded, total int64)
}

// PresignResult is the server's response to an upload presign request.
type PresignResult struct {
	UploadID string            `json:"uploadId"`
	URL      string            `json:"url"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// MultipartPart describes one presigned part of a multipart upload.
type MultipartPart struct {
	PartNumber int    `json:"partNumber"`
	URL        string `json:"url"`
}

// MultipartInitResult is the server's response to a multipart init request.
type MultipartInitResult struct {
	UploadID string          `json:"uploadId"`
	Parts    []MultipartPart `json:"parts"`
}

// CompletedPart reports one uploaded part back to the server.
type CompletedPart struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

// FileDescriptor is a confirmed upload, usable as a message attachment.
type FileDescriptor struct {
	UploadID string `json:"uploadId"`
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

// Attachment converts the descriptor into a message attachment.
func (d *FileDescriptor) Attachment() Attachment {
	return Attachment{URL: d.URL, Name: d.FileName, Size: d.FileSize, MimeType: d.MimeType}
}

// FileQuota reports storage usage for the authenticated user.
type FileQuota struct {
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	FileCount int   `json:"fileCount"`
}
