package owl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// newVoiceServer runs handler for each websocket connection and returns a
// client pointed at it.
func newVoiceServer(t *testing.T, handler func(*testing.T, *websocket.Conn, *http.Request)) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		handler(t, conn, r)
	}))
	t.Cleanup(server.Close)
	return NewClient(WithVoiceURL(server.URL), WithAgentID("agent-test"))
}

func readInit(t *testing.T, conn *websocket.Conn) voiceClientInit {
	t.Helper()
	var init voiceClientInit
	if err := conn.ReadJSON(&init); err != nil {
		t.Errorf("read conversation_init: %v", err)
	}
	return init
}

func TestVoiceConnectHandshake(t *testing.T) {
	client := newVoiceServer(t, func(t *testing.T, conn *websocket.Conn, r *http.Request) {
		if got := r.URL.Query().Get("agent_id"); got != "agent-test" {
			t.Errorf("agent_id query = %q, want agent-test", got)
		}
		init := readInit(t, conn)
		if init.Type != "conversation_init" {
			t.Errorf("init.Type = %q", init.Type)
		}
		if init.DynamicVariables["agent_name"] != "Alex Thompson" {
			t.Errorf("dynamic_variables = %v", init.DynamicVariables)
		}
		if init.TTSOverride == nil || init.TTSOverride.VoiceID != "voice-1" {
			t.Errorf("tts_override = %+v", init.TTSOverride)
		}
		conn.WriteJSON(map[string]string{"type": "conversation_init_ack", "conversation_id": "conv-1"})
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})

	sess, err := client.Voice.Connect(context.Background(), &ConnectRequest{
		DynamicVariables: map[string]string{"agent_name": "Alex Thompson"},
		VoiceID:          "voice-1",
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()

	first, ok := <-sess.Events()
	if !ok {
		t.Fatalf("events channel closed before first event")
	}
	connected, ok := first.(ConnectedEvent)
	if !ok {
		t.Fatalf("first event = %T, want ConnectedEvent", first)
	}
	if connected.ConversationID != "conv-1" {
		t.Errorf("ConversationID = %q, want conv-1", connected.ConversationID)
	}
}

func TestVoiceConnectRejectedByAgent(t *testing.T) {
	client := newVoiceServer(t, func(t *testing.T, conn *websocket.Conn, r *http.Request) {
		readInit(t, conn)
		conn.WriteJSON(map[string]string{"type": "error", "message": "agent unavailable", "code": "agent_busy"})
	})

	_, err := client.Voice.Connect(context.Background(), &ConnectRequest{})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if apiErr.Type != ErrSession || apiErr.Code != "agent_busy" {
		t.Errorf("got %+v", apiErr)
	}
}

func TestVoiceSessionTurnOrder(t *testing.T) {
	client := newVoiceServer(t, func(t *testing.T, conn *websocket.Conn, r *http.Request) {
		readInit(t, conn)
		conn.WriteJSON(map[string]string{"type": "conversation_init_ack", "conversation_id": "conv-1"})
		conn.WriteJSON(map[string]string{"type": "user_transcript", "text": "how do I grow?"})
		conn.WriteJSON(map[string]string{"type": "some_future_frame"})
		conn.WriteJSON(map[string]string{"type": "agent_response", "text": "ship things and reflect"})
		conn.WriteJSON(map[string]string{"type": "session_end", "reason": "agent_done"})
	})

	sess, err := client.Voice.Connect(context.Background(), &ConnectRequest{})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var turns []TurnEvent
	var disconnect *DisconnectEvent
	for event := range sess.Events() {
		switch e := event.(type) {
		case TurnEvent:
			turns = append(turns, e)
		case DisconnectEvent:
			disconnect = &e
		}
	}

	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Source != SourceUser || turns[0].Message != "how do I grow?" {
		t.Errorf("turns[0] = %+v", turns[0])
	}
	if turns[1].Source != SourceAI || turns[1].Message != "ship things and reflect" {
		t.Errorf("turns[1] = %+v", turns[1])
	}
	if disconnect == nil || disconnect.Reason != "agent_done" {
		t.Errorf("disconnect = %+v", disconnect)
	}
	if err := sess.Err(); err != nil {
		t.Errorf("session ended with error: %v", err)
	}
}

func TestVoiceSessionAnswersPing(t *testing.T) {
	pong := make(chan voiceClientControl, 1)
	client := newVoiceServer(t, func(t *testing.T, conn *websocket.Conn, r *http.Request) {
		readInit(t, conn)
		conn.WriteJSON(map[string]string{"type": "conversation_init_ack"})
		conn.WriteJSON(map[string]any{"type": "ping", "event_id": 42})
		var control voiceClientControl
		if err := conn.ReadJSON(&control); err != nil {
			t.Errorf("read pong: %v", err)
			return
		}
		pong <- control
		conn.WriteJSON(map[string]string{"type": "session_end"})
	})

	sess, err := client.Voice.Connect(context.Background(), &ConnectRequest{})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	for range sess.Events() {
	}

	select {
	case control := <-pong:
		if control.Type != "pong" || control.EventID != 42 {
			t.Errorf("pong = %+v", control)
		}
	default:
		t.Fatalf("no pong received")
	}
}

func TestVoiceSessionEnd(t *testing.T) {
	client := newVoiceServer(t, func(t *testing.T, conn *websocket.Conn, r *http.Request) {
		readInit(t, conn)
		conn.WriteJSON(map[string]string{"type": "conversation_init_ack"})
		var control voiceClientControl
		if err := conn.ReadJSON(&control); err != nil {
			t.Errorf("read end_session: %v", err)
			return
		}
		if control.Type != "end_session" {
			t.Errorf("control.Type = %q, want end_session", control.Type)
		}
		conn.WriteJSON(map[string]string{"type": "session_end", "reason": "client_request"})
	})

	sess, err := client.Voice.Connect(context.Background(), &ConnectRequest{})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := sess.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}

	var reason string
	for event := range sess.Events() {
		if e, ok := event.(DisconnectEvent); ok {
			reason = e.Reason
		}
	}
	if reason != "client_request" {
		t.Errorf("disconnect reason = %q, want client_request", reason)
	}
}

func TestVoiceConnectRequiresAgentID(t *testing.T) {
	client := NewClient(WithVoiceURL("ws://localhost:1"))
	_, err := client.Voice.Connect(context.Background(), &ConnectRequest{})
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Type != ErrInvalidRequest {
		t.Fatalf("expected invalid_request_error, got %v", err)
	}
}

func TestVoiceEndpointSchemeMapping(t *testing.T) {
	cases := []struct {
		voiceURL string
		want     string
	}{
		{"http://localhost:9000/convai", "ws://localhost:9000/convai?agent_id=a1"},
		{"https://api.example.com/v1/convai/conversation", "wss://api.example.com/v1/convai/conversation?agent_id=a1"},
		{"wss://api.example.com/convai", "wss://api.example.com/convai?agent_id=a1"},
	}
	for _, tc := range cases {
		client := NewClient(WithVoiceURL(tc.voiceURL))
		got, err := client.voiceEndpoint("a1")
		if err != nil {
			t.Fatalf("voiceEndpoint(%q) failed: %v", tc.voiceURL, err)
		}
		if got != tc.want {
			t.Errorf("voiceEndpoint(%q) = %q, want %q", tc.voiceURL, got, tc.want)
		}
	}
}
