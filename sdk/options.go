package owl

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Person-I/mindful-mentor-owl/internal/clock"
)

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the REST base URL of the mentor backend.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithVoiceURL sets the websocket endpoint of the voice agent service.
func WithVoiceURL(url string) ClientOption {
	return func(c *Client) {
		c.voiceURL = url
	}
}

// WithAgentID sets the default voice agent identifier used by
// Voice.Connect when the request does not carry one.
func WithAgentID(id string) ClientOption {
	return func(c *Client) {
		c.agentID = id
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger for the client.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithTracer sets the OpenTelemetry tracer for the client.
func WithTracer(t trace.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithClock sets the clock used for date windows. Intended for tests.
func WithClock(clk clock.Clock) ClientOption {
	return func(c *Client) {
		c.clock = clk
	}
}
