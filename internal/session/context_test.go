package session

import (
	"strings"
	"testing"
	"time"

	owl "github.com/Person-I/mindful-mentor-owl/sdk"
)

func TestFlattenTalks(t *testing.T) {
	since := time.Date(2026, 7, 25, 0, 0, 0, 0, time.UTC)
	talks := []owl.Talk{
		{
			ID:        "recent",
			CreatedAt: "2026-07-30T08:00:00Z",
			Messages: []owl.Message{
				{Content: "how do I prepare?", Role: owl.RoleUser},
				{Content: "start with the basics", Role: owl.RoleAssistant},
			},
		},
		{
			ID:        "stale",
			CreatedAt: "2026-06-01T08:00:00Z",
			Messages:  []owl.Message{{Content: "old stuff", Role: owl.RoleUser}},
		},
		{
			ID:        "broken-timestamp",
			CreatedAt: "yesterday",
			Messages:  []owl.Message{{Content: "unparseable", Role: owl.RoleUser}},
		},
	}

	got := flattenTalks(talks, since)

	if !strings.Contains(got, "=== Conversation from 2026-07-30T08:00:00Z ===") {
		t.Errorf("missing header in:\n%s", got)
	}
	if !strings.Contains(got, "user: how do I prepare?") {
		t.Errorf("missing user line in:\n%s", got)
	}
	if !strings.Contains(got, "assistant: start with the basics") {
		t.Errorf("missing assistant line in:\n%s", got)
	}
	if strings.Contains(got, "old stuff") {
		t.Errorf("stale talk leaked into context:\n%s", got)
	}
	if strings.Contains(got, "unparseable") {
		t.Errorf("talk with a broken timestamp leaked into context:\n%s", got)
	}
}

func TestFlattenTalksEmpty(t *testing.T) {
	if got := flattenTalks(nil, time.Now()); got != "" {
		t.Fatalf("flattenTalks(nil) = %q, want empty", got)
	}
}

func TestFlattenTalksSeparatesConversations(t *testing.T) {
	since := time.Date(2026, 7, 25, 0, 0, 0, 0, time.UTC)
	talks := []owl.Talk{
		{CreatedAt: "2026-07-28T08:00:00Z", Messages: []owl.Message{{Content: "a", Role: owl.RoleUser}}},
		{CreatedAt: "2026-07-29T08:00:00Z", Messages: []owl.Message{{Content: "b", Role: owl.RoleUser}}},
	}
	got := flattenTalks(talks, since)
	if strings.Count(got, "=== Conversation from") != 2 {
		t.Fatalf("expected two headers in:\n%s", got)
	}
	if !strings.Contains(got, "\n\n=== Conversation from 2026-07-29") {
		t.Errorf("conversations not blank-line separated:\n%s", got)
	}
}
