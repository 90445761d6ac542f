package owl

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// eventWindow is the fixed forward window requested on every event fetch.
const eventWindow = 30 * 24 * time.Hour

const dateLayout = "2006-01-02"

// EventTime is a calendar timestamp; all-day events carry Date instead of
// DateTime.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

// Event is one synced calendar entry.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
}

// CalendarService syncs a webcal feed and fetches upcoming events.
type CalendarService struct {
	client *Client
}

// Sync submits the identity's webcal feed URL for a full resync. Every
// sync is a complete resubmission; there is no incremental mode.
func (s *CalendarService) Sync(ctx context.Context, userID, webcalURL string) error {
	if strings.TrimSpace(userID) == "" {
		return NewInvalidRequestError("user id must not be empty")
	}
	if strings.TrimSpace(webcalURL) == "" {
		return NewInvalidRequestError("webcal url must not be empty")
	}
	payload := struct {
		UserID    string `json:"user_id"`
		WebcalURL string `json:"webcal_url"`
	}{UserID: userID, WebcalURL: webcalURL}
	return s.client.doJSON(ctx, http.MethodPost, "calendar-sync/", nil, payload, nil)
}

// Events fetches events in a 30-day forward window starting today.
func (s *CalendarService) Events(ctx context.Context, userID string) ([]Event, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewInvalidRequestError("user id must not be empty")
	}
	now := s.client.clock.Now()
	query := url.Values{
		"user_id":    {userID},
		"start_date": {now.Format(dateLayout)},
		"end_date":   {now.Add(eventWindow).Format(dateLayout)},
	}
	var events []Event
	if err := s.client.doJSON(ctx, http.MethodGet, "calendar-events/", query, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}
