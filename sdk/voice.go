package owl

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const defaultVoiceConnectTimeout = 15 * time.Second

// Turn sources as delivered by the voice agent.
const (
	SourceAI   = "ai"
	SourceUser = "user"
)

// ConnectRequest configures a voice-agent websocket session.
type ConnectRequest struct {
	// AgentID selects the conversational agent. Falls back to the
	// client-level WithAgentID value when empty.
	AgentID string

	// DynamicVariables seed the agent's prompt template (persona name,
	// trait string, prior-conversation context, identity, date window).
	DynamicVariables map[string]string

	// VoiceID overrides the agent's TTS voice.
	VoiceID string
}

// SessionEvent is an event emitted by VoiceSession.Events().
type SessionEvent interface {
	sessionEventType() string
}

// ConnectedEvent reports the accepted session.
type ConnectedEvent struct {
	ConversationID string
}

func (e ConnectedEvent) sessionEventType() string { return "connected" }

// TurnEvent is one utterance exchanged during the session. Source is
// SourceAI or SourceUser.
type TurnEvent struct {
	Message string
	Source  string
}

func (e TurnEvent) sessionEventType() string { return "turn" }

// ErrorEvent carries a non-fatal agent-side error.
type ErrorEvent struct {
	Err *Error
}

func (e ErrorEvent) sessionEventType() string { return "error" }

// DisconnectEvent reports session teardown; the events channel closes
// right after it is delivered.
type DisconnectEvent struct {
	Reason string
}

func (e DisconnectEvent) sessionEventType() string { return "disconnect" }

// Wire frames. The agent protocol is JSON text frames with a type
// discriminator; audio is carried out-of-band by the agent runtime and is
// not surfaced here.
type voiceClientInit struct {
	Type             string            `json:"type"`
	AgentID          string            `json:"agent_id"`
	DynamicVariables map[string]string `json:"dynamic_variables,omitempty"`
	TTSOverride      *voiceTTSOverride `json:"tts_override,omitempty"`
}

type voiceTTSOverride struct {
	VoiceID string `json:"voice_id"`
}

type voiceServerFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text,omitempty"`
	Message        string `json:"message,omitempty"`
	Code           string `json:"code,omitempty"`
	EventID        int64  `json:"event_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

type voiceClientControl struct {
	Type    string `json:"type"`
	EventID int64  `json:"event_id,omitempty"`
}

// VoiceService opens websocket sessions against the voice agent endpoint.
type VoiceService struct {
	client *Client
}

// VoiceSession is a live voice-agent websocket session.
type VoiceSession struct {
	conn *websocket.Conn

	events chan SessionEvent
	done   chan struct{}
	quit   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// Connect dials the voice endpoint, performs the init handshake and
// returns an established session. The first server frame must be an init
// ack; an error frame fails the connect.
func (s *VoiceService) Connect(ctx context.Context, req *ConnectRequest) (*VoiceSession, error) {
	if s == nil || s.client == nil {
		return nil, NewInvalidRequestError("voice service is not initialized")
	}
	if req == nil {
		return nil, NewInvalidRequestError("req must not be nil")
	}

	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		agentID = strings.TrimSpace(s.client.agentID)
	}
	if agentID == "" {
		return nil, NewInvalidRequestError("agent id is required (set WithAgentID)")
	}

	wsURL, err := s.client.voiceEndpoint(agentID)
	if err != nil {
		return nil, err
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, defaultVoiceConnectTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, &TransportError{Op: "GET", URL: wsURL, Err: fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)}
		}
		return nil, &TransportError{Op: "GET", URL: wsURL, Err: err}
	}

	hello := voiceClientInit{
		Type:             "conversation_init",
		AgentID:          agentID,
		DynamicVariables: req.DynamicVariables,
	}
	if voiceID := strings.TrimSpace(req.VoiceID); voiceID != "" {
		hello.TTSOverride = &voiceTTSOverride{VoiceID: voiceID}
	}
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send conversation_init: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(defaultVoiceConnectTimeout))
	var first voiceServerFrame
	if err := conn.ReadJSON(&first); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read conversation_init_ack: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	switch first.Type {
	case "conversation_init_ack":
		session := &VoiceSession{
			conn:   conn,
			events: make(chan SessionEvent, 256),
			done:   make(chan struct{}),
			quit:   make(chan struct{}),
		}
		session.emit(ConnectedEvent{ConversationID: first.ConversationID})
		go session.readLoop()
		return session, nil
	case "error":
		_ = conn.Close()
		return nil, &Error{
			Type:    ErrSession,
			Message: strings.TrimSpace(first.Message),
			Code:    strings.TrimSpace(first.Code),
		}
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first voice frame type %q", first.Type)
	}
}

func (c *Client) voiceEndpoint(agentID string) (string, error) {
	raw := strings.TrimSpace(c.voiceURL)
	if raw == "" {
		return "", NewInvalidRequestError("voice endpoint is not configured (set WithVoiceURL)")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", NewInvalidRequestError("invalid voice endpoint URL")
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already websocket scheme.
	default:
		return "", NewInvalidRequestError("voice endpoint must use http(s) or ws(s)")
	}
	query := u.Query()
	query.Set("agent_id", agentID)
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// Events yields session events in arrival order. The channel closes after
// the terminating DisconnectEvent once the read loop exits.
func (s *VoiceSession) Events() <-chan SessionEvent {
	if s == nil {
		return nil
	}
	return s.events
}

// End requests a graceful session shutdown. The agent closes the
// connection in response, which drains the read loop.
func (s *VoiceSession) End() error {
	return s.sendJSON(voiceClientControl{Type: "end_session"})
}

// Close tears the websocket down unconditionally.
func (s *VoiceSession) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.quit)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

// Err returns the terminal session error (if any) after teardown.
func (s *VoiceSession) Err() error {
	if s == nil {
		return nil
	}
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *VoiceSession) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *VoiceSession) sendJSON(v any) error {
	if s == nil {
		return fmt.Errorf("session must not be nil")
	}
	if s.closed.Load() {
		return fmt.Errorf("voice session is closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *VoiceSession) readLoop() {
	reason := ""
	defer func() {
		s.emit(DisconnectEvent{Reason: reason})
		close(s.events)
		close(s.done)
	}()

	for {
		var frame voiceServerFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || s.closed.Load() {
				return
			}
			s.setErr(err)
			reason = "transport_error"
			return
		}

		switch frame.Type {
		case "user_transcript":
			s.emit(TurnEvent{Message: frame.Text, Source: SourceUser})
		case "agent_response":
			s.emit(TurnEvent{Message: frame.Text, Source: SourceAI})
		case "ping":
			// Keepalive; answered inline so the agent does not drop us.
			_ = s.sendJSON(voiceClientControl{Type: "pong", EventID: frame.EventID})
		case "error":
			s.emit(ErrorEvent{Err: &Error{
				Type:    ErrSession,
				Message: strings.TrimSpace(frame.Message),
				Code:    strings.TrimSpace(frame.Code),
			}})
		case "session_end":
			reason = frame.Reason
			return
		default:
			// Unknown frame types are skipped; the protocol grows
			// additively.
		}
	}
}

// emit delivers every event in order. Transcript turns must not be
// dropped, so this blocks when the buffer is full until the consumer
// catches up or the session is closed.
func (s *VoiceSession) emit(event SessionEvent) {
	if event == nil {
		return
	}
	select {
	case s.events <- event:
	case <-s.quit:
	}
}
