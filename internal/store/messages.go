package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/companion-ai/companion-core/internal/model"
)

const (
	// titleMaxChars is the cut point for auto-derived titles.
	titleMaxChars = 50

	// titleWordBoundaryMin is the earliest position at which a mid-word
	// cut is trimmed back to the previous whole word. Cuts before this
	// point keep the raw prefix so very long first words still produce
	// a usable title.
	titleWordBoundaryMin = 20
)

// AddMessageParams are the caller-supplied fields for a new message.
type AddMessageParams struct {
	Role           model.Role
	Content        string
	ScreenshotPath string
	TokensUsed     int
}

// MessageListOptions controls GetMessages pagination.
type MessageListOptions struct {
	Limit  int
	Offset int
}

// AddMessage appends a message to a conversation, bumping the parent's
// updated_at. If the conversation still carries the placeholder title
// and the new message is the user's, a title is derived from the
// message content. Returns ErrConversationNotFound if the parent does
// not exist.
func (s *Store) AddMessage(conversationID string, params AddMessageParams) (*model.Message, error) {
	if !params.Role.Valid() {
		return nil, fmt.Errorf("store: invalid message role %q", params.Role)
	}
	if params.TokensUsed < 0 {
		return nil, fmt.Errorf("store: negative tokens_used %d", params.TokensUsed)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: add message: %w", err)
	}
	defer tx.Rollback()

	var currentTitle string
	err = tx.QueryRow(
		`SELECT title FROM conversations WHERE id = ?`, conversationID,
	).Scan(&currentTitle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: add message: %w", err)
	}

	msg := &model.Message{
		ID:             newID(),
		ConversationID: conversationID,
		Role:           params.Role,
		Content:        params.Content,
		ScreenshotPath: params.ScreenshotPath,
		TokensUsed:     params.TokensUsed,
		CreatedAt:      nowMillis(),
	}

	if _, err := tx.Exec(`
INSERT INTO messages (id, conversation_id, role, content, screenshot_path, tokens_used, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content,
		nullableString(msg.ScreenshotPath), msg.TokensUsed, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("store: add message: %w", err)
	}

	newTitle := currentTitle
	if currentTitle == model.DefaultTitle && params.Role == model.RoleUser {
		if derived := deriveTitle(params.Content); derived != "" {
			newTitle = derived
		}
	}

	if _, err := tx.Exec(
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		newTitle, msg.CreatedAt, conversationID); err != nil {
		return nil, fmt.Errorf("store: add message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: add message: %w", err)
	}
	return msg, nil
}

// GetMessages returns a conversation's messages ordered oldest-first.
// A missing conversation yields an empty slice.
func (s *Store) GetMessages(conversationID string, opts MessageListOptions) ([]model.Message, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.Query(`
SELECT id, conversation_id, role, content, screenshot_path, tokens_used, created_at
FROM messages
WHERE conversation_id = ?
ORDER BY created_at ASC, id ASC
LIMIT ? OFFSET ?`,
		conversationID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("store: get messages: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0)
	for rows.Next() {
		var msg model.Message
		var role string
		var screenshot sql.NullString
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &role, &msg.Content,
			&screenshot, &msg.TokensUsed, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: get messages: %w", err)
		}
		msg.Role = model.Role(role)
		msg.ScreenshotPath = screenshot.String
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// DeleteMessage removes a single message. Returns whether a row was
// removed.
func (s *Store) DeleteMessage(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: delete message: %w", err)
	}
	return affected > 0, nil
}

// deriveTitle builds a conversation title from the first user message:
// whitespace collapsed, cut at 50 characters, trimmed back to the last
// whole word when the cut lands mid-word past character 20, and
// suffixed with "...". Returns "" when nothing usable remains.
func deriveTitle(content string) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	if collapsed == "" {
		return ""
	}

	runes := []rune(collapsed)
	if len(runes) <= titleMaxChars {
		return collapsed
	}

	cut := string(runes[:titleMaxChars])
	midWord := runes[titleMaxChars] != ' ' && !strings.HasSuffix(cut, " ")
	if midWord {
		if idx := strings.LastIndex(cut, " "); idx > titleWordBoundaryMin {
			cut = cut[:idx]
		}
	}
	return strings.TrimSpace(cut) + "..."
}

// nullableString maps "" to NULL for optional text columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
