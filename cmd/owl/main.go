// Command owl is the terminal client for the PersonAI mentor backend:
// voice conversations with a selected mentor persona, conversation
// history, markdown notes, CV analysis and calendar sync.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Person-I/mindful-mentor-owl/internal/config"
	"github.com/Person-I/mindful-mentor-owl/internal/identity"
	"github.com/Person-I/mindful-mentor-owl/internal/outbox"
	"github.com/Person-I/mindful-mentor-owl/internal/persona"
	"github.com/Person-I/mindful-mentor-owl/internal/session"
	owl "github.com/Person-I/mindful-mentor-owl/sdk"
)

const requestTimeout = 30 * time.Second

type app struct {
	cfg       config.Config
	logger    *slog.Logger
	client    *owl.Client
	identity  string
	registry  *persona.Registry
	selection *persona.Selection
	out       io.Writer
}

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	client := owl.NewClient(
		owl.WithBaseURL(cfg.APIURL),
		owl.WithVoiceURL(cfg.VoiceURL),
		owl.WithAgentID(cfg.AgentID),
		owl.WithLogger(logger),
	)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		identity:  identity.NewStore(cfg.DataDir, logger).GetOrCreate(),
		registry:  persona.NewRegistry(),
		selection: persona.NewSelection(cfg.DataDir),
		out:       os.Stdout,
	}

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "talk":
		err = a.runTalk()
	case "persona":
		err = a.runPersona(os.Args[2:])
	case "history":
		err = a.runHistory(os.Args[2:])
	case "notes":
		err = a.runNotes(os.Args[2:])
	case "cv":
		err = a.runCV(os.Args[2:])
	case "calendar":
		err = a.runCalendar(os.Args[2:])
	case "help", "-h", "--help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: owl <command> [args]

commands:
  talk                      hold a voice conversation with the selected mentor
  persona list              list available mentor personas
  persona select <id>       choose the active persona
  persona current           show the active persona
  history list              list saved conversations
  history show <id>         print one conversation transcript
  history delete <id>       delete a conversation
  history rename <id> <t>   change a conversation title
  notes list|show|create|edit|delete
  cv submit <file.pdf>      upload a CV for analysis
  cv show                   print the current CV analysis
  calendar sync <url>       sync a webcal feed
  calendar events           list events for the next 30 days`)
}

func (a *app) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// --- talk ---

func (a *app) runTalk() error {
	spool, err := outbox.Open(filepath.Join(a.cfg.DataDir, "outbox.db"))
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer spool.Close()
	a.flushOutbox(spool)

	done := make(chan struct{})
	ctrl := session.New(session.Config{
		Identity:      a.identity,
		Registry:      a.registry,
		Selection:     a.selection,
		Conversations: a.client.Conversations,
		Dialer:        session.SDKDialer{Voice: a.client.Voice},
		AgentID:       a.cfg.AgentID,
		Outbox:        spool,
		Logger:        a.logger,
		Handlers: session.Handlers{
			OnConnect: func() {
				fmt.Fprintln(a.out, "Connected. Start talking; Ctrl+C ends the session.")
			},
			OnTurn: func(turn session.Turn) {
				fmt.Fprintln(a.out, renderTurn(turn))
				if turn.Source == owl.SourceUser {
					fmt.Fprintln(a.out, "...")
				}
			},
			OnError: func(err error) {
				fmt.Fprintf(a.out, "error: %v\n", err)
			},
			OnDisconnect: func() {
				close(done)
			},
		},
	})

	if err := ctrl.Start(context.Background()); err != nil {
		if errors.Is(err, session.ErrNoPersona) {
			return fmt.Errorf("%w (run `owl persona select <id>` first)", err)
		}
		return err
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	select {
	case <-interrupt:
		fmt.Fprintln(a.out, "\nEnding session...")
		if err := ctrl.End(); err != nil && !errors.Is(err, session.ErrNotActive) {
			return err
		}
		<-done
	case <-done:
	}
	fmt.Fprintln(a.out, "Session ended.")
	return nil
}

func (a *app) flushOutbox(spool *outbox.Outbox) {
	pending, err := spool.Pending()
	if err != nil || pending == 0 {
		return
	}
	a.logger.Info("replaying spooled conversations", "pending", pending)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	delivered, err := spool.Flush(ctx, session.ReplayFunc(a.client.Conversations))
	if err != nil {
		a.logger.Warn("outbox flush incomplete", "delivered", delivered, "error", err)
		return
	}
	a.logger.Info("outbox flushed", "delivered", delivered)
}

func renderTurn(turn session.Turn) string {
	label := "you"
	if turn.Source == owl.SourceAI {
		label = "mentor"
	}
	return fmt.Sprintf("%s: %s", label, turn.Message)
}

// --- persona ---

func (a *app) runPersona(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: owl persona list|select|current")
	}
	switch args[0] {
	case "list":
		current := a.selection.Current()
		for _, p := range a.registry.All() {
			marker := " "
			if p.ID == current {
				marker = "*"
			}
			fmt.Fprintf(a.out, "%s %s  %s (%s)\n", marker, p.ID, p.Name, p.Role)
		}
		return nil
	case "select":
		if len(args) < 2 {
			return errors.New("usage: owl persona select <id>")
		}
		p, ok := a.registry.Find(args[1])
		if !ok {
			return fmt.Errorf("unknown persona %q", args[1])
		}
		if err := a.selection.Select(p.ID); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Selected %s (%s)\n", p.Name, p.Role)
		return nil
	case "current":
		id := a.selection.Current()
		if id == "" {
			fmt.Fprintln(a.out, "No persona selected.")
			return nil
		}
		if p, ok := a.registry.Find(id); ok {
			fmt.Fprintf(a.out, "%s  %s (%s)\n", p.ID, p.Name, p.Role)
		} else {
			fmt.Fprintf(a.out, "%s (not in catalog)\n", id)
		}
		return nil
	default:
		return fmt.Errorf("unknown persona subcommand %q", args[0])
	}
}

// --- history ---

func (a *app) runHistory(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: owl history list|show|delete|rename")
	}
	ctx, cancel := a.ctx()
	defer cancel()

	switch args[0] {
	case "list":
		talks, err := a.client.Conversations.List(ctx, a.identity)
		if err != nil {
			return err
		}
		if len(talks) == 0 {
			fmt.Fprintln(a.out, "No conversations.")
			return nil
		}
		for _, talk := range talks {
			fmt.Fprintf(a.out, "%s  %s (%d messages)\n", talk.ID, displayTitle(talk), len(talk.Messages))
		}
		return nil
	case "show":
		if len(args) < 2 {
			return errors.New("usage: owl history show <id>")
		}
		talk, err := a.client.Conversations.Get(ctx, a.identity, args[1])
		if err != nil {
			return err
		}
		fmt.Fprint(a.out, renderTalk(*talk))
		return nil
	case "delete":
		if len(args) < 2 {
			return errors.New("usage: owl history delete <id>")
		}
		if err := a.client.Conversations.Delete(ctx, a.identity, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Deleted.")
		// Mirror the product's navigation: land on the next remaining
		// conversation, or the empty view when none remain.
		remaining, err := a.client.Conversations.List(ctx, a.identity)
		if err != nil {
			return err
		}
		if next, ok := nextAfterDelete(remaining, args[1]); ok {
			fmt.Fprint(a.out, renderTalk(next))
		} else {
			fmt.Fprintln(a.out, "No conversations.")
		}
		return nil
	case "rename":
		if len(args) < 3 {
			return errors.New("usage: owl history rename <id> <title>")
		}
		talk, err := a.client.Conversations.Update(ctx, a.identity, args[1], owl.UpdateTalkInput{Title: strings.Join(args[2:], " ")})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Renamed to %q.\n", talk.Title)
		return nil
	default:
		return fmt.Errorf("unknown history subcommand %q", args[0])
	}
}

func displayTitle(talk owl.Talk) string {
	if strings.TrimSpace(talk.Title) != "" {
		return talk.Title
	}
	return "(untitled)"
}

func renderTalk(talk owl.Talk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", displayTitle(talk))
	for _, msg := range talk.Messages {
		label := "you"
		if msg.Role == owl.RoleAssistant {
			label = "mentor"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, msg.Content)
	}
	return b.String()
}

// nextAfterDelete picks the conversation to land on after a delete: the
// first remaining one, skipping the deleted id in case the backend list
// is stale.
func nextAfterDelete(talks []owl.Talk, deletedID string) (owl.Talk, bool) {
	for _, talk := range talks {
		if talk.ID == deletedID {
			continue
		}
		return talk, true
	}
	return owl.Talk{}, false
}

// --- notes ---

func (a *app) runNotes(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: owl notes list|show|create|edit|delete")
	}
	ctx, cancel := a.ctx()
	defer cancel()

	switch args[0] {
	case "list":
		notes, err := a.client.Notes.List(ctx, a.identity)
		if err != nil {
			return err
		}
		if len(notes) == 0 {
			fmt.Fprintln(a.out, "No notes.")
			return nil
		}
		for _, note := range notes {
			fmt.Fprintf(a.out, "%s  %s\n", note.ID, note.Title())
		}
		return nil
	case "show":
		if len(args) < 2 {
			return errors.New("usage: owl notes show <id>")
		}
		note, err := a.client.Notes.Get(ctx, a.identity, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, note.Content)
		return nil
	case "create":
		content, err := readContent(args[1:])
		if err != nil {
			return err
		}
		note, err := a.client.Notes.Create(ctx, a.identity, content)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Created note %s (%s)\n", note.ID, note.Title())
		return nil
	case "edit":
		if len(args) < 2 {
			return errors.New("usage: owl notes edit <id> [content]")
		}
		content, err := readContent(args[2:])
		if err != nil {
			return err
		}
		note, err := a.client.Notes.Update(ctx, a.identity, args[1], content)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Saved note %s (%s)\n", note.ID, note.Title())
		return nil
	case "delete":
		if len(args) < 2 {
			return errors.New("usage: owl notes delete <id>")
		}
		if err := a.client.Notes.Delete(ctx, a.identity, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Deleted.")
		return nil
	default:
		return fmt.Errorf("unknown notes subcommand %q", args[0])
	}
}

// readContent takes note content from the argument list when present,
// otherwise from stdin (until EOF).
func readContent(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read note content: %w", err)
	}
	return string(data), nil
}

// --- cv ---

func (a *app) runCV(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: owl cv submit|show")
	}
	switch args[0] {
	case "submit":
		if len(args) < 2 {
			return errors.New("usage: owl cv submit <file.pdf>")
		}
		file, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer file.Close()

		contentType := "application/octet-stream"
		if strings.EqualFold(filepath.Ext(args[1]), ".pdf") {
			contentType = "application/pdf"
		}

		// Uploads get a longer leash than regular requests.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := a.client.CV.Submit(ctx, a.identity, filepath.Base(args[1]), contentType, file); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "CV uploaded and analyzed successfully.")

		analysis, err := a.client.CV.Current(ctx, a.identity)
		if err != nil {
			a.logger.Warn("analysis fetch after upload failed", "error", err)
			return nil
		}
		fmt.Fprintln(a.out, analysis.Summary)
		return nil
	case "show":
		ctx, cancel := a.ctx()
		defer cancel()
		analysis, err := a.client.CV.Current(ctx, a.identity)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, analysis.Summary)
		return nil
	default:
		return fmt.Errorf("unknown cv subcommand %q", args[0])
	}
}

// --- calendar ---

func (a *app) runCalendar(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: owl calendar sync|events")
	}
	ctx, cancel := a.ctx()
	defer cancel()

	switch args[0] {
	case "sync":
		if len(args) < 2 {
			return errors.New("usage: owl calendar sync <webcal-url>")
		}
		if err := a.client.Calendar.Sync(ctx, a.identity, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Calendar synchronized.")
		fallthrough
	case "events":
		events, err := a.client.Calendar.Events(ctx, a.identity)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(a.out, "No upcoming events.")
			return nil
		}
		for _, event := range events {
			when := event.Start.DateTime
			if when == "" {
				when = event.Start.Date
			}
			fmt.Fprintf(a.out, "%s  %s\n", when, event.Summary)
		}
		return nil
	default:
		return fmt.Errorf("unknown calendar subcommand %q", args[0])
	}
}
