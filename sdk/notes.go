package owl

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Note is a user-authored markdown note. The title is not stored; it is
// derived from the first line of the content.
type Note struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Title returns the derived display title for the note.
func (n Note) Title() string {
	return DeriveTitle(n.Content)
}

// DeriveTitle extracts a display title from markdown content: the first
// non-empty line with leading heading markers stripped.
func DeriveTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "#"))
		if line == "" {
			continue
		}
		return line
	}
	return "Untitled"
}

// NotesService talks to the notes/ endpoint family.
type NotesService struct {
	client *Client
}

type notePayload struct {
	Content string `json:"content"`
	UserID  string `json:"user_id"`
}

// List returns all notes for the given identity.
func (s *NotesService) List(ctx context.Context, userID string) ([]Note, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewInvalidRequestError("user id must not be empty")
	}
	var notes []Note
	query := url.Values{"user_id": {userID}}
	if err := s.client.doJSON(ctx, http.MethodGet, "notes/", query, nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// Get fetches one note by id.
func (s *NotesService) Get(ctx context.Context, userID, id string) (*Note, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewInvalidRequestError("user id must not be empty")
	}
	if strings.TrimSpace(id) == "" {
		return nil, NewInvalidRequestError("note id must not be empty")
	}
	var note Note
	query := url.Values{"user_id": {userID}}
	if err := s.client.doJSON(ctx, http.MethodGet, "notes/"+id+"/", query, nil, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// Create stores a new note.
func (s *NotesService) Create(ctx context.Context, userID, content string) (*Note, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewInvalidRequestError("user id must not be empty")
	}
	var note Note
	payload := notePayload{Content: content, UserID: userID}
	if err := s.client.doJSON(ctx, http.MethodPost, "notes/", nil, payload, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// Update replaces a note's content. Saves are explicit; there is no
// autosave anywhere in the product.
func (s *NotesService) Update(ctx context.Context, userID, id, content string) (*Note, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewInvalidRequestError("user id must not be empty")
	}
	if strings.TrimSpace(id) == "" {
		return nil, NewInvalidRequestError("note id must not be empty")
	}
	var note Note
	payload := notePayload{Content: content, UserID: userID}
	if err := s.client.doJSON(ctx, http.MethodPut, "notes/"+id+"/", nil, payload, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// Delete removes a note.
func (s *NotesService) Delete(ctx context.Context, userID, id string) error {
	if strings.TrimSpace(userID) == "" {
		return NewInvalidRequestError("user id must not be empty")
	}
	if strings.TrimSpace(id) == "" {
		return NewInvalidRequestError("note id must not be empty")
	}
	query := url.Values{"user_id": {userID}}
	return s.client.doJSON(ctx, http.MethodDelete, "notes/"+id+"/", query, nil, nil)
}
