package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/companion-ai/companion-core/internal/model"
)

// conversationColumns selects the stored columns plus the derived
// message_count and last_message fields.
const conversationColumns = `
c.id, c.title, c.created_at, c.updated_at, c.pinned, c.archived,
(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
COALESCE((SELECT m.content FROM messages m WHERE m.conversation_id = c.id
          ORDER BY m.created_at DESC, m.id DESC LIMIT 1), '')`

// ListOptions controls ListConversations filtering, ordering, and
// pagination. Use DefaultListOptions for the standard view.
type ListOptions struct {
	IncludeArchived bool
	PinnedFirst     bool
	Limit           int
	Offset          int

	// Search filters to conversations whose title or any message
	// content contains the given substring, case-insensitively.
	Search string
}

// DefaultListOptions returns the default listing: archived excluded,
// pinned conversations first, newest-updated first, at most 100 rows.
func DefaultListOptions() ListOptions {
	return ListOptions{PinnedFirst: true, Limit: 100}
}

// CreateConversation creates a new empty conversation. An empty title
// gets the placeholder, which is later replaced when the first user
// message arrives.
func (s *Store) CreateConversation(title string) (*model.Conversation, error) {
	if strings.TrimSpace(title) == "" {
		title = model.DefaultTitle
	}

	conv := &model.Conversation{
		ID:        newID(),
		Title:     title,
		CreatedAt: nowMillis(),
	}
	conv.UpdatedAt = conv.CreatedAt

	_, err := s.db.Exec(`
INSERT INTO conversations (id, title, created_at, updated_at, pinned, archived)
VALUES (?, ?, ?, ?, 0, 0)`,
		conv.ID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation returns the conversation with the given id, or nil
// if it does not exist.
func (s *Store) GetConversation(id string) (*model.Conversation, error) {
	row := s.db.QueryRow(
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = ?`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get conversation: %w", err)
	}
	return conv, nil
}

// GetConversationWithMessages returns the conversation and its full
// message history oldest-first, or nil if the conversation does not
// exist.
func (s *Store) GetConversationWithMessages(id string) (*model.ConversationWithMessages, error) {
	conv, err := s.GetConversation(id)
	if err != nil || conv == nil {
		return nil, err
	}

	messages, err := s.GetMessages(id, MessageListOptions{})
	if err != nil {
		return nil, err
	}

	return &model.ConversationWithMessages{
		Conversation: *conv,
		Messages:     messages,
	}, nil
}

// ListConversations returns conversations matching opts. Archived
// conversations are excluded unless requested; ordering is pinned-first
// then updated_at descending, or purely updated_at descending when
// PinnedFirst is false.
func (s *Store) ListConversations(opts ListOptions) ([]model.Conversation, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	var where []string
	var args []any

	if !opts.IncludeArchived {
		where = append(where, "c.archived = 0")
	}
	if opts.Search != "" {
		where = append(where, `(INSTR(LOWER(c.title), LOWER(?)) > 0
    OR EXISTS (SELECT 1 FROM messages m
               WHERE m.conversation_id = c.id
                 AND INSTR(LOWER(m.content), LOWER(?)) > 0))`)
		args = append(args, opts.Search, opts.Search)
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations c`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if opts.PinnedFirst {
		query += " ORDER BY c.pinned DESC, c.updated_at DESC"
	} else {
		query += " ORDER BY c.updated_at DESC"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]model.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list conversations: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	return conversations, rows.Err()
}

// UpdateConversation applies the non-nil fields of req and bumps
// updated_at. Returns nil if the conversation does not exist.
func (s *Store) UpdateConversation(id string, req model.UpdateConversationRequest) (*model.Conversation, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: update conversation: %w", err)
	}
	defer tx.Rollback()

	var title string
	var pinned, archived bool
	err = tx.QueryRow(
		`SELECT title, pinned, archived FROM conversations WHERE id = ?`, id,
	).Scan(&title, &pinned, &archived)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: update conversation: %w", err)
	}

	if req.Title != nil {
		title = *req.Title
	}
	if req.Pinned != nil {
		pinned = *req.Pinned
	}
	if req.Archived != nil {
		archived = *req.Archived
	}

	if _, err := tx.Exec(`
UPDATE conversations SET title = ?, pinned = ?, archived = ?, updated_at = ?
WHERE id = ?`,
		title, pinned, archived, nowMillis(), id); err != nil {
		return nil, fmt.Errorf("store: update conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: update conversation: %w", err)
	}
	return s.GetConversation(id)
}

// DeleteConversation deletes the conversation and all of its messages
// in one transaction. Returns whether a conversation row was removed.
//
// The child delete is explicit rather than relying on the foreign-key
// cascade, so the operation stays atomic even on handles opened
// without the foreign_keys pragma.
func (s *Store) DeleteConversation(id string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("store: delete conversation: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return false, fmt.Errorf("store: delete conversation messages: %w", err)
	}

	res, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: delete conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("store: delete conversation: %w", err)
	}
	return affected > 0, nil
}

// ImportConversation persists an imported conversation and its
// messages, preserving titles, flags, and timestamps. A colliding
// conversation id is replaced with a fresh one; message ids are always
// regenerated. Returns the stored conversation.
func (s *Store) ImportConversation(conv model.ConversationWithMessages) (*model.Conversation, error) {
	id := conv.ID
	if id == "" {
		id = newID()
	}
	if existing, err := s.GetConversation(id); err != nil {
		return nil, err
	} else if existing != nil {
		id = newID()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: import conversation: %w", err)
	}
	defer tx.Rollback()

	title := conv.Title
	if strings.TrimSpace(title) == "" {
		title = model.DefaultTitle
	}

	if _, err := tx.Exec(`
INSERT INTO conversations (id, title, created_at, updated_at, pinned, archived)
VALUES (?, ?, ?, ?, ?, ?)`,
		id, title, conv.CreatedAt, conv.UpdatedAt, conv.Pinned, conv.Archived); err != nil {
		return nil, fmt.Errorf("store: import conversation: %w", err)
	}

	for _, m := range conv.Messages {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("store: import conversation: invalid role %q", m.Role)
		}
		if _, err := tx.Exec(`
INSERT INTO messages (id, conversation_id, role, content, screenshot_path, tokens_used, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			newID(), id, string(m.Role), m.Content,
			nullableString(m.ScreenshotPath), m.TokensUsed, m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: import message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: import conversation: %w", err)
	}
	return s.GetConversation(id)
}

// scanConversation reads one conversation row, including the derived
// message_count and last_message columns.
func scanConversation(row interface{ Scan(...any) error }) (*model.Conversation, error) {
	var conv model.Conversation
	err := row.Scan(
		&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt,
		&conv.Pinned, &conv.Archived,
		&conv.MessageCount, &conv.LastMessage,
	)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}
