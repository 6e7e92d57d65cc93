// Package store provides the durable conversation store backed by an
// embedded SQLite database. The store is opened once per process and
// all operations run against a single shared handle; writers are
// serialized by capping the connection pool at one connection.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/companion-ai/companion-core/internal/model"
	"github.com/companion-ai/companion-core/pkg/logger"
)

// ErrConversationNotFound is returned when a message is appended to a
// conversation that does not exist. Read operations on missing ids
// return nil/false sentinels instead.
var ErrConversationNotFound = errors.New("store: conversation not found")

// migration is a single schema change applied exactly once, in order.
// A migration that fails mid-execution is rolled back and its version
// is never recorded, which aborts startup.
type migration struct {
	version int
	name    string
	stmts   string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial schema",
		stmts: `
CREATE TABLE conversations (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    pinned     INTEGER NOT NULL DEFAULT 0,
    archived   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE messages (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role            TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
    content         TEXT NOT NULL,
    screenshot_path TEXT,
    tokens_used     INTEGER NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL
);

CREATE TABLE settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX idx_messages_conversation_id ON messages(conversation_id);
CREATE INDEX idx_messages_created_at ON messages(created_at);
CREATE INDEX idx_conversations_updated_at ON conversations(updated_at);
CREATE INDEX idx_conversations_pinned ON conversations(pinned);
`,
	},
}

// Store is the conversation store. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// Open opens (creating if necessary) the database at path, applies
// pending migrations, and returns the store. The caller must Close the
// store at shutdown. Use ":memory:" for an ephemeral database in tests.
func Open(path string, log *logger.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	// Single connection: SQLite serializes writes anyway, and one
	// shared handle keeps the WAL reader/writer model simple.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("store opened", zap.String("path", path))
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies all pending migrations in version order. Each
// migration runs in its own transaction together with the insertion of
// its schema_version row, so a partial migration never advances the
// ledger.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("store: create schema_version: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_version`,
	).Scan(&current); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("store: migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.stmts); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
			m.version, nowMillis(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: commit migration %d: %w", m.version, err)
		}

		s.logger.Info("migration applied",
			zap.Int("version", m.version),
			zap.String("name", m.name),
		)
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	return version, err
}

// Ping verifies the database handle is still usable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Stats returns aggregate counts across the whole store.
func (s *Store) Stats() (*model.StoreStats, error) {
	stats := &model.StoreStats{}
	err := s.db.QueryRow(`
SELECT
    (SELECT COUNT(*) FROM conversations),
    (SELECT COUNT(*) FROM messages),
    (SELECT COALESCE(SUM(tokens_used), 0) FROM messages)
`).Scan(&stats.TotalConversations, &stats.TotalMessages, &stats.TotalTokens)
	if err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	return stats, nil
}

// SetSetting inserts or replaces a key/value setting.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, nowMillis())
	if err != nil {
		return fmt.Errorf("store: set setting %q: %w", key, err)
	}
	return nil
}

// GetSetting returns the value for key and whether it exists.
func (s *Store) GetSetting(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get setting %q: %w", key, err)
	}
	return value, true, nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
