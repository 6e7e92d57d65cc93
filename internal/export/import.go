package export

import (
	"encoding/json"
	"fmt"

	"github.com/companion-ai/companion-core/internal/model"
)

// ItemError reports why a single conversation in an import payload was
// rejected. Index is the conversation's position in the batch (0 for a
// bare single-conversation payload).
type ItemError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

func (e ItemError) Error() string {
	return fmt.Sprintf("conversation %d: %s", e.Index, e.Reason)
}

// ImportResult separates the conversations that passed structural
// validation from per-item rejections. A payload where every item is
// invalid is still a successful parse with an empty Conversations
// slice.
type ImportResult struct {
	Conversations []model.ConversationWithMessages
	Errors        []ItemError
}

// ParseImport parses an export payload: either a bare conversation
// object or a batch envelope with a "conversations" array. Each
// candidate is validated structurally before it counts as imported;
// invalid entries land in Errors. Only unparseable JSON fails the
// whole call.
func ParseImport(data []byte) (*ImportResult, error) {
	var probe struct {
		Conversations []json.RawMessage `json:"conversations"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("export: parse import payload: %w", err)
	}

	items := probe.Conversations
	if items == nil {
		// Bare conversation object.
		items = []json.RawMessage{data}
	}

	result := &ImportResult{}
	for i, raw := range items {
		conv, err := validateConversation(raw)
		if err != nil {
			result.Errors = append(result.Errors, ItemError{Index: i, Reason: err.Error()})
			continue
		}
		result.Conversations = append(result.Conversations, *conv)
	}

	return result, nil
}

// validateConversation shape-checks a candidate conversation before
// decoding it: string id and title, numeric created_at/updated_at, and
// an array of messages whose entries carry a known role and string
// content. Unknown extra fields are ignored.
func validateConversation(raw json.RawMessage) (*model.ConversationWithMessages, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("not a JSON object")
	}

	var id string
	if err := unmarshalField(fields, "id", &id); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("field %q is empty", "id")
	}

	var title string
	if err := unmarshalField(fields, "title", &title); err != nil {
		return nil, err
	}

	var createdAt, updatedAt int64
	if err := unmarshalField(fields, "created_at", &createdAt); err != nil {
		return nil, err
	}
	if err := unmarshalField(fields, "updated_at", &updatedAt); err != nil {
		return nil, err
	}

	rawMessages, ok := fields["messages"]
	if !ok {
		return nil, fmt.Errorf("field %q is missing", "messages")
	}
	var msgItems []json.RawMessage
	if err := json.Unmarshal(rawMessages, &msgItems); err != nil {
		return nil, fmt.Errorf("field %q is not an array", "messages")
	}

	conv := &model.ConversationWithMessages{}
	if err := json.Unmarshal(raw, conv); err != nil {
		return nil, fmt.Errorf("decode conversation: %v", err)
	}

	for i, m := range conv.Messages {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("message %d: invalid role %q", i, m.Role)
		}
		if m.Content == "" && m.ScreenshotPath == "" {
			return nil, fmt.Errorf("message %d: empty content", i)
		}
		if m.TokensUsed < 0 {
			return nil, fmt.Errorf("message %d: negative tokens_used", i)
		}
	}

	return conv, nil
}

// unmarshalField decodes a required field into dst, reporting a typed
// mismatch or absence as a validation error.
func unmarshalField(fields map[string]json.RawMessage, name string, dst any) error {
	raw, ok := fields[name]
	if !ok {
		return fmt.Errorf("field %q is missing", name)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %q has the wrong type", name)
	}
	return nil
}
