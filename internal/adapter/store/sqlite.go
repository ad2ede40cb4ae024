package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"chatrelay/internal/domain"
)

// SQLiteStore implements domain.MessageStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open message db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate message db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL DEFAULT '',
			sender          TEXT NOT NULL,
			text            TEXT NOT NULL,
			incomplete      INTEGER NOT NULL DEFAULT 0,
			error           TEXT NOT NULL DEFAULT '',
			model           TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages (conversation_id, created_at)
	`)
	return err
}

// SaveMessage stores a finalized streaming message. Saving the same ID
// twice overwrites, so a retried finalize stays idempotent.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg domain.StreamingMessage) error {
	incomplete := 0
	if msg.Incomplete {
		incomplete = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender, text, incomplete, error, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			incomplete = excluded.incomplete,
			error = excluded.error,
			model = excluded.model`,
		msg.ID, msg.ConversationID, msg.Sender, msg.Text, incomplete,
		msg.Error, msg.Model, msg.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save message %s: %w", msg.ID, err)
	}
	return nil
}

// History returns up to limit messages of a conversation, oldest first.
func (s *SQLiteStore) History(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender, text, created_at FROM (
			SELECT sender, text, created_at FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		) ORDER BY created_at ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var sender, text, createdAt string
		if err := rows.Scan(&sender, &text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		ts, _ := time.Parse(time.RFC3339Nano, createdAt)
		messages = append(messages, domain.Message{
			Role:      sender,
			Content:   text,
			Timestamp: ts,
		})
	}
	return messages, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
