// Package session owns the lifecycle of one live voice conversation:
// start, turn accumulation, end, persistence. Only one session can be
// active at a time; the state machine, not locking at call sites, is what
// serializes access to the transcript buffer.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Person-I/mindful-mentor-owl/internal/clock"
	"github.com/Person-I/mindful-mentor-owl/internal/outbox"
	"github.com/Person-I/mindful-mentor-owl/internal/persona"
	owl "github.com/Person-I/mindful-mentor-owl/sdk"
)

// State is the controller's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateEnding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	default:
		return "unknown"
	}
}

var (
	// ErrNoPersona is returned by Start when no selectable persona is
	// resolved; no external session is opened in that case.
	ErrNoPersona = errors.New("no persona selected")

	// ErrSessionActive is returned by Start when a session is already
	// underway.
	ErrSessionActive = errors.New("a session is already active")

	// ErrNotActive is returned by End outside the Active state.
	ErrNotActive = errors.New("no active session")
)

const saveTimeout = 30 * time.Second

// Turn is one utterance captured during the active session. Source is
// owl.SourceAI or owl.SourceUser as delivered by the agent.
type Turn struct {
	Message string
	Source  string
}

// Session is the controller's view of a live voice session.
type Session interface {
	Events() <-chan owl.SessionEvent
	End() error
	Close() error
	Err() error
}

// Dialer opens voice sessions. The SDK implementation is wrapped by
// SDKDialer; tests inject fakes.
type Dialer interface {
	Connect(ctx context.Context, req *owl.ConnectRequest) (Session, error)
}

// SDKDialer adapts owl.VoiceService to the Dialer interface.
type SDKDialer struct {
	Voice *owl.VoiceService
}

func (d SDKDialer) Connect(ctx context.Context, req *owl.ConnectRequest) (Session, error) {
	sess, err := d.Voice.Connect(ctx, req)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// TalkStore is the slice of the conversations repository the controller
// needs: context fetch on start, transcript persist on disconnect.
type TalkStore interface {
	List(ctx context.Context, userID string) ([]owl.Talk, error)
	Create(ctx context.Context, userID string, input owl.CreateTalkInput) (*owl.Talk, error)
}

// MicrophoneAccess requests capture permission from the runtime. A nil
// hook means access is already granted.
type MicrophoneAccess func(ctx context.Context) error

// Handlers are the user-facing callbacks. All are optional and invoked
// from the controller's event goroutine.
type Handlers struct {
	OnConnect    func()
	OnTurn       func(Turn)
	OnError      func(error)
	OnDisconnect func()
}

// Config wires the controller's collaborators.
type Config struct {
	Identity      string
	Registry      *persona.Registry
	Selection     *persona.Selection
	Conversations TalkStore
	Dialer        Dialer
	AgentID       string
	Microphone    MicrophoneAccess
	Outbox        *outbox.Outbox // optional; nil keeps saves best-effort
	Clock         clock.Clock
	Logger        *slog.Logger
	Handlers      Handlers
}

// Controller is the conversation session controller.
type Controller struct {
	cfg Config

	mu      sync.Mutex
	state   State
	buffer  []Turn
	current Session
	persona persona.Persona
}

// New creates an idle controller.
func New(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{cfg: cfg}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns a copy of the in-session buffer in arrival order.
func (c *Controller) Transcript() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.buffer))
	copy(out, c.buffer)
	return out
}

// AwaitingResponse reports whether the last captured turn came from the
// user. Derived state only; nothing is stored for it.
func (c *Controller) AwaitingResponse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer) > 0 && c.buffer[len(c.buffer)-1].Source == owl.SourceUser
}

// Start opens a voice session for the selected persona. It requires a
// resolvable persona and microphone access, clears the transcript buffer,
// seeds the agent with recent-conversation context and transitions
// Idle → Connecting → Active. Failures surface through OnError and return
// the controller to Idle; there is no automatic retry.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrSessionActive
	}
	selected := c.cfg.Selection.Current()
	if selected == "" {
		c.mu.Unlock()
		return ErrNoPersona
	}
	p, ok := c.cfg.Registry.Find(selected)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: unknown persona %q", ErrNoPersona, selected)
	}
	c.state = StateConnecting
	c.persona = p
	c.buffer = nil
	c.mu.Unlock()

	if c.cfg.Microphone != nil {
		if err := c.cfg.Microphone(ctx); err != nil {
			err = fmt.Errorf("microphone access: %w", err)
			c.fail(err)
			return err
		}
	}

	now := c.cfg.Clock.Now()
	req := &owl.ConnectRequest{
		AgentID: c.cfg.AgentID,
		DynamicVariables: map[string]string{
			"agent_name":   p.Name,
			"key_features": p.TraitString(),
			"context":      c.buildContext(ctx, now),
			"user_id":      c.cfg.Identity,
			"start_date":   now.Add(-lookbackWindow).Format("2006-01-02"),
			"end_date":     now.Format("2006-01-02"),
		},
		VoiceID: p.VoiceID,
	}

	sess, err := c.cfg.Dialer.Connect(ctx, req)
	if err != nil {
		c.fail(err)
		return err
	}

	c.mu.Lock()
	c.state = StateActive
	c.current = sess
	c.mu.Unlock()

	if h := c.cfg.Handlers.OnConnect; h != nil {
		h()
	}
	go c.run(sess)
	return nil
}

// End requests a graceful shutdown of the active session. The disconnect
// path (persistence included) runs when the session's event stream drains.
func (c *Controller) End() error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	c.state = StateEnding
	sess := c.current
	c.mu.Unlock()

	if err := sess.End(); err != nil {
		// The polite close frame did not go out; tear down hard. The
		// read loop still drains and triggers the disconnect path.
		_ = sess.Close()
	}
	return nil
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.state = StateIdle
	c.current = nil
	c.mu.Unlock()

	c.cfg.Logger.Error("voice session failed to start", "error", err)
	if h := c.cfg.Handlers.OnError; h != nil {
		h(err)
	}
}

// run is the single consumer of the session's event stream. Buffer
// mutation happens only here and in Start's reset, which the state
// machine orders strictly before it.
func (c *Controller) run(sess Session) {
	for event := range sess.Events() {
		switch e := event.(type) {
		case owl.TurnEvent:
			turn := Turn{Message: e.Message, Source: e.Source}
			c.mu.Lock()
			c.buffer = append(c.buffer, turn)
			c.mu.Unlock()
			if h := c.cfg.Handlers.OnTurn; h != nil {
				h(turn)
			}
		case owl.ErrorEvent:
			c.cfg.Logger.Error("voice session error", "error", e.Err)
			if h := c.cfg.Handlers.OnError; h != nil {
				h(e.Err)
			}
		case owl.ConnectedEvent, owl.DisconnectEvent:
			// Connection state is tracked by the controller itself.
		}
	}
	c.finish(sess.Err())
}

// finish runs the disconnect path: persist a non-empty transcript, clear
// the buffer and return to Idle regardless of outcome.
func (c *Controller) finish(sessErr error) {
	c.mu.Lock()
	turns := c.buffer
	c.buffer = nil
	p := c.persona
	c.state = StateIdle
	c.current = nil
	c.mu.Unlock()

	if sessErr != nil {
		c.cfg.Logger.Error("voice session ended with error", "error", sessErr)
		if h := c.cfg.Handlers.OnError; h != nil {
			h(sessErr)
		}
	}

	if len(turns) > 0 {
		c.persist(p, turns)
	}

	if h := c.cfg.Handlers.OnDisconnect; h != nil {
		h()
	}
}

func (c *Controller) persist(p persona.Persona, turns []Turn) {
	now := c.cfg.Clock.Now()
	messages := make([]owl.Message, 0, len(turns))
	for i, turn := range turns {
		role := owl.RoleUser
		if turn.Source == owl.SourceAI {
			role = owl.RoleAssistant
		}
		messages = append(messages, owl.Message{
			ID:        fmt.Sprintf("msg-%d", i),
			Content:   turn.Message,
			Role:      role,
			CreatedAt: now.UTC().Format(time.RFC3339),
		})
	}
	input := owl.CreateTalkInput{
		Title:    fmt.Sprintf("Conversation with %s %s", p.Name, now.Format("2006-01-02 15:04")),
		Messages: messages,
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if _, err := c.cfg.Conversations.Create(ctx, c.cfg.Identity, input); err != nil {
		c.cfg.Logger.Error("failed to save conversation", "error", err, "turns", len(turns))
		if h := c.cfg.Handlers.OnError; h != nil {
			h(fmt.Errorf("save conversation: %w", err))
		}
		c.spool(input)
		return
	}
	c.cfg.Logger.Info("conversation saved", "turns", len(turns))
}

// spool hands a failed save to the outbox when one is configured;
// otherwise the transcript is gone, which is the documented best-effort
// default.
func (c *Controller) spool(input owl.CreateTalkInput) {
	if c.cfg.Outbox == nil {
		return
	}
	payload, err := json.Marshal(input)
	if err != nil {
		c.cfg.Logger.Error("failed to encode transcript for outbox", "error", err)
		return
	}
	if err := c.cfg.Outbox.Put(c.cfg.Identity, payload); err != nil {
		c.cfg.Logger.Error("failed to spool transcript", "error", err)
		return
	}
	c.cfg.Logger.Info("transcript spooled for retry", "turns", len(input.Messages))
}

// ReplayFunc builds the outbox flush callback that replays spooled
// transcripts through the conversations repository.
func ReplayFunc(store TalkStore) outbox.SaveFunc {
	return func(ctx context.Context, userID string, payload []byte) error {
		var input owl.CreateTalkInput
		if err := json.Unmarshal(payload, &input); err != nil {
			return fmt.Errorf("decode spooled transcript: %w", err)
		}
		_, err := store.Create(ctx, userID, input)
		return err
	}
}
