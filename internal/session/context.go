package session

import (
	"context"
	"strings"
	"time"

	owl "github.com/Person-I/mindful-mentor-owl/sdk"
)

// lookbackWindow bounds how far back prior conversations are pulled into
// the agent's seed context.
const lookbackWindow = 7 * 24 * time.Hour

// buildContext fetches the identity's recent conversations and flattens
// them into the human-readable context string passed to the agent. A
// fetch failure degrades to an empty context rather than blocking the
// session.
func (c *Controller) buildContext(ctx context.Context, now time.Time) string {
	talks, err := c.cfg.Conversations.List(ctx, c.cfg.Identity)
	if err != nil {
		c.cfg.Logger.Warn("prior conversations unavailable, starting without context", "error", err)
		return ""
	}
	return flattenTalks(talks, now.Add(-lookbackWindow))
}

// flattenTalks renders each conversation created at or after since as a
// timestamped header followed by role-labeled lines.
func flattenTalks(talks []owl.Talk, since time.Time) string {
	var b strings.Builder
	for _, talk := range talks {
		createdAt, err := time.Parse(time.RFC3339, talk.CreatedAt)
		if err != nil || createdAt.Before(since) {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("=== Conversation from ")
		b.WriteString(createdAt.UTC().Format(time.RFC3339))
		b.WriteString(" ===\n")
		for _, msg := range talk.Messages {
			b.WriteString(msg.Role)
			b.WriteString(": ")
			b.WriteString(msg.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}
