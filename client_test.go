package mindwell

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("tok")
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, "tok", c.token)

	c = NewClient("tok", WithEnvironment(Staging))
	assert.Contains(t, c.baseURL, "staging")

	c = NewClient("tok", WithBaseURL("http://localhost:8080/"))
	assert.Equal(t, "http://localhost:8080", c.baseURL)
}

func TestMeSendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/auth/me", r.URL.Path)
		w.Write(okEnvelope(User{ID: "u1", FirstName: "Avery", LastName: "Quinn"}))
	}))
	defer server.Close()

	c := NewClient("tok-123", WithBaseURL(server.URL))
	user, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "Avery Quinn", user.DisplayName())
}

func TestAPIErrorSurfacesFromEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write(errEnvelope("unauthorized", "Token expired"))
	}))
	defer server.Close()

	c := NewClient("stale", WithBaseURL(server.URL))
	_, err := c.Me(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "unauthorized", apiErr.Code)
}

func TestConversationsList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/messaging/conversations", r.URL.Path)
		w.Write(okEnvelope([]Conversation{{ID: "c1"}, {ID: "c2"}}))
	}))
	defer server.Close()

	c := NewClient("tok", WithBaseURL(server.URL))
	convs, err := c.Messaging().Conversations.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, convs, 2)
}

func TestMessagesSendEchoesClientID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/messaging/conversations/c1/messages", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "local-1", body["clientId"])
		assert.Equal(t, "hello", body["content"])
		assert.Equal(t, "text", body["type"])
		w.Write(okEnvelope(Message{ID: "m1", LocalID: "local-1", ConversationID: "c1", Content: "hello"}))
	}))
	defer server.Close()

	c := NewClient("tok", WithBaseURL(server.URL))
	msg, err := c.Messaging().Messages.Send(context.Background(), "c1", "hello", "local-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "local-1", msg.LocalID)
}

func TestMessagesHistoryPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "m-cursor", r.URL.Query().Get("before"))
		w.Write(okEnvelope([]Message{{ID: "m1"}}))
	}))
	defer server.Close()

	c := NewClient("tok", WithBaseURL(server.URL))
	msgs, err := c.Messaging().Messages.History(context.Background(), "c1", &PageOptions{Limit: 25, Before: "m-cursor"})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestGuessMimeType(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"notes.md", "text/markdown"},
		{"pic.webp", "image/webp"},
		{"voice.m4a", "audio/mp4"},
		{"report.pdf", "application/pdf"},
		{"mystery", "application/octet-stream"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, guessMimeType(tt.file), tt.file)
	}
}

func TestUploadRejectsOversizedFiles(t *testing.T) {
	c := NewClient("tok")
	_, err := c.Messaging().Files.Upload(context.Background(), make([]byte, maxFileSize+1), &UploadOptions{FileName: "big.bin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum size")

	_, err = c.Messaging().Files.Upload(context.Background(), []byte("x"), nil)
	assert.ErrorContains(t, err, "fileName is required")
}

func TestUploadSimpleLifecycle(t *testing.T) {
	var gotPresign, gotUpload, gotConfirm bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/messaging/files/presign":
			gotPresign = true
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "note.txt", body["fileName"])
			w.Write(okEnvelope(PresignResult{UploadID: "up-1", URL: "/api/messaging/files/up-1/content"}))
		case "/api/messaging/files/up-1/content":
			gotUpload = true
			// Relative presign URLs are served by the API and carry auth.
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			require.NoError(t, r.ParseMultipartForm(1<<20))
			_, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			assert.Equal(t, "note.txt", hdr.Filename)
			w.WriteHeader(http.StatusOK)
		case "/api/messaging/files/confirm":
			gotConfirm = true
			w.Write(okEnvelope(FileDescriptor{UploadID: "up-1", URL: "https://cdn.example/note.txt", FileName: "note.txt", FileSize: 5, MimeType: "text/plain"}))
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := NewClient("tok", WithBaseURL(server.URL))
	var lastProgress int64
	desc, err := c.Messaging().Files.Upload(context.Background(), []byte("hello"), &UploadOptions{
		FileName:   "note.txt",
		OnProgress: func(uploaded, total int64) { lastProgress = uploaded },
	})
	require.NoError(t, err)

	assert.True(t, gotPresign && gotUpload && gotConfirm)
	assert.Equal(t, "up-1", desc.UploadID)
	assert.Equal(t, int64(5), lastProgress)

	att := desc.Attachment()
	assert.Equal(t, "note.txt", att.Name)
	assert.Equal(t, "https://cdn.example/note.txt", att.URL)
}

func TestUploadSwitchesToMultipartAboveLimit(t *testing.T) {
	var partsUploaded int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/messaging/files/upload/init":
			var parts []MultipartPart
			for i := 1; i <= 3; i++ {
				parts = append(parts, MultipartPart{PartNumber: i, URL: fmt.Sprintf("/parts/%d", i)})
			}
			w.Write(okEnvelope(MultipartInitResult{UploadID: "up-2", Parts: parts}))
		case r.Method == "PUT":
			partsUploaded++
			w.Header().Set("ETag", `"etag"`)
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/api/messaging/files/upload/complete":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Len(t, body["parts"], 3)
			w.Write(okEnvelope(FileDescriptor{UploadID: "up-2", FileName: "big.bin"}))
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	c := NewClient("tok", WithBaseURL(server.URL))
	data := make([]byte, simpleUploadLimit+1)
	desc, err := c.Messaging().Files.Upload(context.Background(), data, &UploadOptions{FileName: "big.bin"})
	require.NoError(t, err)
	assert.Equal(t, "up-2", desc.UploadID)
	assert.Equal(t, 3, partsUploaded, "10 MB + 1 byte spans three 5 MB parts")
}
