package owl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...ClientOption) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(append([]ClientOption{WithBaseURL(server.URL + "/api/")}, opts...)...)
	return client, server
}

func TestConversationsList(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/conversations/" {
			t.Errorf("path = %s, want /api/conversations/", r.URL.Path)
		}
		if got := r.URL.Query().Get("user_id"); got != "user-1" {
			t.Errorf("user_id = %q, want user-1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"t1","content":"{\"title\":\"First\",\"messages\":[{\"id\":\"msg-0\",\"content\":\"hello\",\"role\":\"user\"}]}","created_at":"2026-08-01T10:00:00Z"},
			{"id":"t2","content":"[{\"id\":\"msg-0\",\"content\":\"legacy\",\"role\":\"assistant\"}]"}
		]`))
	}))

	talks, err := client.Conversations.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(talks) != 2 {
		t.Fatalf("got %d talks, want 2", len(talks))
	}
	if talks[0].Title != "First" {
		t.Errorf("talks[0].Title = %q, want First", talks[0].Title)
	}
	if len(talks[0].Messages) != 1 || talks[0].Messages[0].Content != "hello" {
		t.Errorf("talks[0].Messages = %+v", talks[0].Messages)
	}
	// The second row uses the earlier bare-array content format.
	if talks[1].Title != "" {
		t.Errorf("talks[1].Title = %q, want empty", talks[1].Title)
	}
	if len(talks[1].Messages) != 1 || talks[1].Messages[0].Role != RoleAssistant {
		t.Errorf("talks[1].Messages = %+v", talks[1].Messages)
	}
}

func TestConversationsListRequiresUserID(t *testing.T) {
	client := NewClient()
	_, err := client.Conversations.List(context.Background(), "  ")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Type != ErrInvalidRequest {
		t.Fatalf("expected invalid_request_error, got %v", err)
	}
}

func TestConversationsCreateEncodesContent(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var payload struct {
			Content string `json:"content"`
			UserID  string `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		if payload.UserID != "user-1" {
			t.Errorf("user_id = %q, want user-1", payload.UserID)
		}
		var content struct {
			Title    string    `json:"title"`
			Messages []Message `json:"messages"`
		}
		if err := json.Unmarshal([]byte(payload.Content), &content); err != nil {
			t.Errorf("content is not JSON-in-string: %v", err)
		}
		if content.Title != "Conversation with Alex Thompson 2026-08-01 10:30" {
			t.Errorf("title = %q", content.Title)
		}
		if len(content.Messages) != 2 {
			t.Errorf("got %d messages, want 2", len(content.Messages))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"id":      "t9",
			"content": payload.Content,
		})
	}))

	input := CreateTalkInput{
		Title: "Conversation with Alex Thompson 2026-08-01 10:30",
		Messages: []Message{
			{ID: "msg-0", Content: "hi", Role: RoleUser},
			{ID: "msg-1", Content: "hello there", Role: RoleAssistant},
		},
	}
	talk, err := client.Conversations.Create(context.Background(), "user-1", input)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if talk.ID != "t9" {
		t.Errorf("talk.ID = %q, want t9", talk.ID)
	}
	if talk.Title != input.Title {
		t.Errorf("talk.Title = %q, want %q", talk.Title, input.Title)
	}
	if len(talk.Messages) != 2 || talk.Messages[1].Role != RoleAssistant {
		t.Errorf("talk.Messages = %+v", talk.Messages)
	}
}

func TestConversationsGetNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"conversation not found"}`))
	}))

	_, err := client.Conversations.Get(context.Background(), "user-1", "missing")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if apiErr.Type != ErrNotFound {
		t.Errorf("type = %q, want not_found_error", apiErr.Type)
	}
	if apiErr.Message != "conversation not found" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestConversationsDelete(t *testing.T) {
	var gotMethod, gotPath, gotUser string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotUser = r.URL.Query().Get("user_id")
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.Conversations.Delete(context.Background(), "user-1", "t1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", gotMethod)
	}
	if gotPath != "/api/conversations/t1/" {
		t.Errorf("path = %s", gotPath)
	}
	if gotUser != "user-1" {
		t.Errorf("user_id = %q, want user-1", gotUser)
	}
}

func TestConversationsUpdateTitle(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		var payload struct {
			Title  string `json:"title"`
			UserID string `json:"user_id"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		if payload.Title != "Renamed" {
			t.Errorf("title = %q, want Renamed", payload.Title)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"t1","content":"{\"title\":\"Renamed\",\"messages\":[]}"}`))
	}))

	talk, err := client.Conversations.Update(context.Background(), "user-1", "t1", UpdateTalkInput{Title: "Renamed"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if talk.Title != "Renamed" {
		t.Errorf("talk.Title = %q, want Renamed", talk.Title)
	}
}
