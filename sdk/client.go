// Package owl provides the Go client SDK for the PersonAI mentor backend.
//
// The client covers the full REST surface (conversations, notes, CV
// analysis, calendar) plus the websocket voice-agent boundary. All
// persisted data is scoped to an opaque per-installation identity token
// passed as user_id on every call.
package owl

import (
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/Person-I/mindful-mentor-owl/internal/clock"
)

const defaultBaseURL = "http://localhost:8000/api/"

// Client is the main entry point for the SDK.
type Client struct {
	Conversations *ConversationsService
	Notes         *NotesService
	CV            *CVService
	Calendar      *CalendarService
	Voice         *VoiceService

	// Internal
	baseURL    string
	voiceURL   string
	agentID    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	clock      clock.Clock
}

// NewClient creates a new backend client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: newDefaultHTTPClient(),
		logger:     slog.Default(),
		clock:      clock.System(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if !strings.HasSuffix(c.baseURL, "/") {
		c.baseURL += "/"
	}

	c.Conversations = &ConversationsService{client: c}
	c.Notes = &NotesService{client: c}
	c.CV = &CVService{client: c}
	c.Calendar = &CalendarService{client: c}
	c.Voice = &VoiceService{client: c}
	return c
}

// BaseURL returns the configured REST base URL (always slash-terminated).
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AgentID returns the configured default voice agent identifier.
func (c *Client) AgentID() string {
	return c.agentID
}
