package export

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/companion-ai/companion-core/internal/model"
)

func sampleConversation() *model.ConversationWithMessages {
	return &model.ConversationWithMessages{
		Conversation: model.Conversation{
			ID:        "0191e9a0-0000-7000-8000-000000000001",
			Title:     "Debugging the context meter",
			CreatedAt: 1700000000000,
			UpdatedAt: 1700000400000,
			Pinned:    true,
		},
		Messages: []model.Message{
			{
				ID:             "m1",
				ConversationID: "0191e9a0-0000-7000-8000-000000000001",
				Role:           model.RoleUser,
				Content:        "Why does the meter show 120%?",
				ScreenshotPath: "/tmp/shots/meter.png",
				CreatedAt:      1700000000000,
			},
			{
				ID:             "m2",
				ConversationID: "0191e9a0-0000-7000-8000-000000000001",
				Role:           model.RoleAssistant,
				Content:        "The percentage is unclamped before truncation runs.",
				TokensUsed:     42,
				CreatedAt:      1700000400000,
			},
		},
	}
}

func TestToMarkdown(t *testing.T) {
	t.Parallel()

	out := ToMarkdown(sampleConversation(), "claude-3-5-sonnet-20241022")

	for _, want := range []string{
		"# Debugging the context meter",
		"- **Model:** claude-3-5-sonnet-20241022",
		"- **Messages:** 2",
		"## User",
		"## Assistant",
		"Why does the meter show 120%?",
		"![screenshot](/tmp/shots/meter.png)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}

	userIdx := strings.Index(out, "## User")
	assistantIdx := strings.Index(out, "## Assistant")
	if userIdx > assistantIdx {
		t.Error("messages rendered out of chronological order")
	}
}

func TestToMarkdownOmitsModelWhenUnknown(t *testing.T) {
	t.Parallel()

	out := ToMarkdown(sampleConversation(), "")
	if strings.Contains(out, "**Model:**") {
		t.Errorf("markdown has a model line for an unknown model:\n%s", out)
	}
}

func TestToText(t *testing.T) {
	t.Parallel()

	out := ToText(sampleConversation())

	for _, want := range []string{
		"Debugging the context meter",
		"[User]",
		"[Assistant]",
		"(screenshot: /tmp/shots/meter.png)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text export missing %q:\n%s", want, out)
		}
	}
}

func TestToJSONRoundTripsThroughImport(t *testing.T) {
	t.Parallel()

	original := sampleConversation()
	data, err := ToJSON(original)
	if err != nil {
		t.Fatalf("ToJSON() error: %v", err)
	}

	result, err := ParseImport(data)
	if err != nil {
		t.Fatalf("ParseImport() error: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("ParseImport() item errors: %v", result.Errors)
	}
	if len(result.Conversations) != 1 {
		t.Fatalf("imported %d conversations, want 1", len(result.Conversations))
	}

	got := result.Conversations[0]
	if got.ID != original.ID || got.Title != original.Title ||
		got.CreatedAt != original.CreatedAt || got.UpdatedAt != original.UpdatedAt ||
		got.Pinned != original.Pinned {
		t.Errorf("round-tripped conversation = %+v, want %+v", got.Conversation, original.Conversation)
	}
	if len(got.Messages) != len(original.Messages) {
		t.Fatalf("round-tripped %d messages, want %d", len(got.Messages), len(original.Messages))
	}
	for i := range got.Messages {
		if got.Messages[i] != original.Messages[i] {
			t.Errorf("message %d = %+v, want %+v", i, got.Messages[i], original.Messages[i])
		}
	}
}

func TestToJSONBatchRoundTrips(t *testing.T) {
	t.Parallel()

	batch := []model.ConversationWithMessages{*sampleConversation()}
	data, err := ToJSONBatch(batch)
	if err != nil {
		t.Fatalf("ToJSONBatch() error: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Version != Version || env.Count != 1 {
		t.Errorf("envelope = version %d count %d, want version %d count 1", env.Version, env.Count, Version)
	}

	result, err := ParseImport(data)
	if err != nil {
		t.Fatalf("ParseImport() error: %v", err)
	}
	if len(result.Conversations) != 1 || len(result.Errors) != 0 {
		t.Errorf("ParseImport() = %d conversations, %d errors, want 1 and 0",
			len(result.Conversations), len(result.Errors))
	}
}

func TestFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		title  string
		ext    string
		prefix string
	}{
		{"simple", "My Chat", "md", "My-Chat-"},
		{"punctuation stripped", "What's new? (v2)", ".json", "What-s-new-v2-"},
		{"empty title", "!!!", "txt", "conversation-"},
		{
			"long title capped",
			strings.Repeat("a", 80),
			"md",
			strings.Repeat("a", 50) + "-",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := FileName(tt.title, tt.ext)
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("FileName(%q) = %q, want prefix %q", tt.title, got, tt.prefix)
			}
			wantExt := "." + strings.TrimPrefix(tt.ext, ".")
			if !strings.HasSuffix(got, wantExt) {
				t.Errorf("FileName(%q) = %q, want suffix %q", tt.title, got, wantExt)
			}
			// Date stamp sits between the sanitized title and the extension.
			if !strings.Contains(got, "-20") {
				t.Errorf("FileName(%q) = %q, missing date stamp", tt.title, got)
			}
		})
	}
}
