package owl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// Message roles as persisted in a conversation transcript.
const (
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

// Message is one persisted transcript entry.
type Message struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Talk is one persisted voice-session transcript. Messages are immutable
// once the talk is created; only the title may change afterwards.
type Talk struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt string    `json:"created_at,omitempty"`
	UpdatedAt string    `json:"updated_at,omitempty"`
}

// CreateTalkInput is the payload for persisting a finished session.
type CreateTalkInput struct {
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// UpdateTalkInput patches talk metadata.
type UpdateTalkInput struct {
	Title string `json:"title"`
}

// ConversationsService talks to the conversations/ endpoint family.
//
// The backend stores each transcript as an opaque content string holding
// JSON {title, messages}; this service encodes on create and decodes on
// read so callers only ever see Talk values.
type ConversationsService struct {
	client *Client
}

type talkRow struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type talkContent struct {
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

func (r talkRow) decode() Talk {
	talk := Talk{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	var content talkContent
	if err := json.Unmarshal([]byte(r.Content), &content); err == nil {
		talk.Title = content.Title
		talk.Messages = content.Messages
		return talk
	}
	// Earlier backend revisions stored a bare message array.
	var messages []Message
	if err := json.Unmarshal([]byte(r.Content), &messages); err == nil {
		talk.Messages = messages
	}
	return talk
}

// List returns all conversations for the given identity, newest first as
// returned by the backend.
func (s *ConversationsService) List(ctx context.Context, userID string) ([]Talk, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewInvalidRequestError("user id must not be empty")
	}
	var rows []talkRow
	query := url.Values{"user_id": {userID}}
	if err := s.client.doJSON(ctx, http.MethodGet, "conversations/", query, nil, &rows); err != nil {
		return nil, err
	}
	talks := make([]Talk, 0, len(rows))
	for _, row := range rows {
		talks = append(talks, row.decode())
	}
	return talks, nil
}

// Get fetches one conversation by id.
func (s *ConversationsService) Get(ctx context.Context, userID, id string) (*Talk, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewInvalidRequestError("user id must not be empty")
	}
	if strings.TrimSpace(id) == "" {
		return nil, NewInvalidRequestError("talk id must not be empty")
	}
	var row talkRow
	query := url.Values{"user_id": {userID}}
	if err := s.client.doJSON(ctx, http.MethodGet, "conversations/"+id+"/", query, nil, &row); err != nil {
		return nil, err
	}
	talk := row.decode()
	return &talk, nil
}

// Create persists a complete transcript as a new conversation.
func (s *ConversationsService) Create(ctx context.Context, userID string, input CreateTalkInput) (*Talk, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewInvalidRequestError("user id must not be empty")
	}
	encoded, err := json.Marshal(talkContent{Title: input.Title, Messages: input.Messages})
	if err != nil {
		return nil, NewInvalidRequestError("failed to encode transcript")
	}
	payload := struct {
		Content string `json:"content"`
		UserID  string `json:"user_id"`
	}{Content: string(encoded), UserID: userID}

	var row talkRow
	if err := s.client.doJSON(ctx, http.MethodPost, "conversations/", nil, payload, &row); err != nil {
		return nil, err
	}
	talk := row.decode()
	if talk.Title == "" {
		talk.Title = input.Title
	}
	if len(talk.Messages) == 0 {
		talk.Messages = input.Messages
	}
	return &talk, nil
}

// Update patches talk metadata (title only; transcripts are immutable).
func (s *ConversationsService) Update(ctx context.Context, userID, id string, input UpdateTalkInput) (*Talk, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewInvalidRequestError("user id must not be empty")
	}
	if strings.TrimSpace(id) == "" {
		return nil, NewInvalidRequestError("talk id must not be empty")
	}
	payload := struct {
		Title  string `json:"title"`
		UserID string `json:"user_id"`
	}{Title: input.Title, UserID: userID}

	var row talkRow
	if err := s.client.doJSON(ctx, http.MethodPut, "conversations/"+id+"/", nil, payload, &row); err != nil {
		return nil, err
	}
	talk := row.decode()
	return &talk, nil
}

// Delete removes a conversation.
func (s *ConversationsService) Delete(ctx context.Context, userID, id string) error {
	if strings.TrimSpace(userID) == "" {
		return NewInvalidRequestError("user id must not be empty")
	}
	if strings.TrimSpace(id) == "" {
		return NewInvalidRequestError("talk id must not be empty")
	}
	query := url.Values{"user_id": {userID}}
	return s.client.doJSON(ctx, http.MethodDelete, "conversations/"+id+"/", query, nil, nil)
}
