// Package export serializes conversations to portable formats and
// validates payloads coming back in. Serializers are pure; persistence
// of imported conversations is the store's job.
package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/companion-ai/companion-core/internal/model"
)

// Version identifies the batch envelope layout written by ToJSONBatch.
const Version = 1

const fileNameMaxChars = 50

// Envelope wraps a batch of exported conversations.
type Envelope struct {
	ExportedAt    string                           `json:"exported_at"`
	Version       int                              `json:"version"`
	Count         int                              `json:"count"`
	Conversations []model.ConversationWithMessages `json:"conversations"`
}

// ToJSON serializes a single conversation with its messages.
func ToJSON(conv *model.ConversationWithMessages) ([]byte, error) {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: marshal conversation %s: %w", conv.ID, err)
	}
	return data, nil
}

// ToJSONBatch serializes multiple conversations inside the versioned
// envelope.
func ToJSONBatch(convs []model.ConversationWithMessages) ([]byte, error) {
	env := Envelope{
		ExportedAt:    time.Now().UTC().Format(time.RFC3339),
		Version:       Version,
		Count:         len(convs),
		Conversations: convs,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: marshal batch: %w", err)
	}
	return data, nil
}

// ToMarkdown renders a conversation as a Markdown document: a header
// block with title, timestamps and the model (when known), then one
// section per message. Screenshot attachments become image links.
func ToMarkdown(conv *model.ConversationWithMessages, modelID string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", conv.Title)
	fmt.Fprintf(&b, "- **Created:** %s\n", formatMillis(conv.CreatedAt))
	fmt.Fprintf(&b, "- **Updated:** %s\n", formatMillis(conv.UpdatedAt))
	if modelID != "" {
		fmt.Fprintf(&b, "- **Model:** %s\n", modelID)
	}
	fmt.Fprintf(&b, "- **Messages:** %d\n", len(conv.Messages))
	b.WriteString("\n---\n")

	for _, msg := range conv.Messages {
		fmt.Fprintf(&b, "\n## %s\n\n", roleLabel(msg.Role))
		b.WriteString(msg.Content)
		b.WriteString("\n")
		if msg.ScreenshotPath != "" {
			fmt.Fprintf(&b, "\n![screenshot](%s)\n", msg.ScreenshotPath)
		}
	}

	return b.String()
}

// ToText renders a conversation as plain text.
func ToText(conv *model.ConversationWithMessages) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", conv.Title)
	fmt.Fprintf(&b, "Created: %s\n", formatMillis(conv.CreatedAt))
	fmt.Fprintf(&b, "Updated: %s\n", formatMillis(conv.UpdatedAt))
	b.WriteString(strings.Repeat("=", 40) + "\n")

	for _, msg := range conv.Messages {
		fmt.Fprintf(&b, "\n[%s]\n%s\n", roleLabel(msg.Role), msg.Content)
		if msg.ScreenshotPath != "" {
			fmt.Fprintf(&b, "(screenshot: %s)\n", msg.ScreenshotPath)
		}
	}

	return b.String()
}

// FileName builds a download filename from a conversation title: runs
// of non-alphanumeric characters collapse to single dashes, the result
// is capped at 50 characters, and the current date is appended.
func FileName(title, ext string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteRune('-')
			lastDash = true
		}
	}

	name := strings.Trim(b.String(), "-")
	if runes := []rune(name); len(runes) > fileNameMaxChars {
		name = strings.Trim(string(runes[:fileNameMaxChars]), "-")
	}
	if name == "" {
		name = "conversation"
	}

	ext = strings.TrimPrefix(ext, ".")
	return fmt.Sprintf("%s-%s.%s", name, time.Now().UTC().Format("2006-01-02"), ext)
}

func roleLabel(r model.Role) string {
	switch r {
	case model.RoleUser:
		return "User"
	case model.RoleAssistant:
		return "Assistant"
	case model.RoleSystem:
		return "System"
	}
	return string(r)
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
