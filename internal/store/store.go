// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/safadev/safachat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnavailable indicates the storage engine failed; callers
	// should treat it as non-fatal and degrade to in-memory state.
	ErrUnavailable = errors.New("local store unavailable")

	// ErrChatNotFound is returned when a chat id does not exist.
	ErrChatNotFound = errors.New("chat not found")

	// ErrMessageNotFound is returned when a message id does not exist.
	ErrMessageNotFound = errors.New("message not found")
)

// =============================================================================
// STORE
// =============================================================================

// Store is the local chat database.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default database location (~/.safachat/chats.db).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".safachat", "chats.db"), nil
}

// Open opens (creating if needed) the chat database at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create database directory: %v", ErrUnavailable, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrUnavailable, err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: failed to set pragma: %v", ErrUnavailable, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to create schema: %v", ErrUnavailable, err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to init metadata: %v", ErrUnavailable, err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// CreateChat inserts the chat and assigns its row id.
func (s *Store) CreateChat(ctx context.Context, chat *model.Chat) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (title, model, user_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		chat.Title, chat.Model, chat.UserID, chat.CreatedAt.UnixNano(), chat.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: insert chat: %v", ErrUnavailable, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: chat id: %v", ErrUnavailable, err)
	}
	chat.ID = id
	return nil
}

// GetChat returns the chat with the given id.
func (s *Store) GetChat(ctx context.Context, id int64) (*model.Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, model, user_id, created_at, updated_at FROM chats WHERE id = ?`, id)

	chat, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("%w: get chat: %v", ErrUnavailable, err)
	}
	return chat, nil
}

// ListChats returns the chats owned by userID ordered by updated_at
// descending (most recently active first).
func (s *Store) ListChats(ctx context.Context, userID string) ([]model.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, model, user_id, created_at, updated_at
		 FROM chats WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list chats: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	chats := []model.Chat{}
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan chat: %v", ErrUnavailable, err)
		}
		chats = append(chats, *chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list chats: %v", ErrUnavailable, err)
	}
	return chats, nil
}

// UpdateChatTitle sets the title and refreshes updated_at.
func (s *Store) UpdateChatTitle(ctx context.Context, id int64, title string, updatedAt time.Time) error {
	return s.execOnChat(ctx,
		`UPDATE chats SET title = ?, updated_at = ? WHERE id = ?`,
		title, updatedAt.UnixNano(), id)
}

// UpdateChatModel sets the model. This is a same-transaction metadata
// update: it does not bump updated_at.
func (s *Store) UpdateChatModel(ctx context.Context, id int64, modelID string) error {
	return s.execOnChat(ctx, `UPDATE chats SET model = ? WHERE id = ?`, modelID, id)
}

// TouchChat refreshes updated_at.
func (s *Store) TouchChat(ctx context.Context, id int64, updatedAt time.Time) error {
	return s.execOnChat(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, updatedAt.UnixNano(), id)
}

// UpsertChat inserts the chat under its existing id, or overwrites the
// local row's fields if one is already present. Used when applying
// remote reconciliation results; the id is preserved so messages keep
// their foreign key.
func (s *Store) UpsertChat(ctx context.Context, chat *model.Chat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, title, model, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title, model = excluded.model,
		   user_id = excluded.user_id, updated_at = excluded.updated_at`,
		chat.ID, chat.Title, chat.Model, chat.UserID,
		chat.CreatedAt.UnixNano(), chat.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: upsert chat: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteChat removes the chat and all of its messages in one
// transaction.
func (s *Store) DeleteChat(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin delete: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, id); err != nil {
		return fmt.Errorf("%w: delete messages: %v", ErrUnavailable, err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete chat: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete chat: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrChatNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit delete: %v", ErrUnavailable, err)
	}
	return nil
}

// PurgeOtherUsers removes all chats (and their messages) that do not
// belong to userID. Anonymous rows (empty user_id) are kept. Called
// before reconciling so a shared machine never mixes accounts.
func (s *Store) PurgeOtherUsers(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin purge: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE chat_id IN
		   (SELECT id FROM chats WHERE user_id != ? AND user_id != '')`, userID); err != nil {
		return fmt.Errorf("%w: purge messages: %v", ErrUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chats WHERE user_id != ? AND user_id != ''`, userID); err != nil {
		return fmt.Errorf("%w: purge chats: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit purge: %v", ErrUnavailable, err)
	}
	return nil
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// CreateMessage inserts the message and assigns its row id.
func (s *Store) CreateMessage(ctx context.Context, msg *model.Message) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, content, role, timestamp, is_streaming, reasoning)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ChatID, msg.Content, msg.Role.String(), msg.Timestamp.UnixNano(),
		boolToInt(msg.IsStreaming), msg.Reasoning)
	if err != nil {
		return fmt.Errorf("%w: insert message: %v", ErrUnavailable, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: message id: %v", ErrUnavailable, err)
	}
	msg.ID = id
	return nil
}

// GetMessage returns the message with the given id.
func (s *Store) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, content, role, timestamp, is_streaming, reasoning
		 FROM messages WHERE id = ?`, id)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("%w: get message: %v", ErrUnavailable, err)
	}
	return msg, nil
}

// Messages returns all messages in the chat ordered by timestamp
// ascending.
func (s *Store) Messages(ctx context.Context, chatID int64) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, content, role, timestamp, is_streaming, reasoning
		 FROM messages WHERE chat_id = ? ORDER BY timestamp ASC, id ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", ErrUnavailable, err)
		}
		msgs = append(msgs, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", ErrUnavailable, err)
	}
	return msgs, nil
}

// LatestMessage returns the most recent message in the chat, or
// ErrMessageNotFound for an empty chat.
func (s *Store) LatestMessage(ctx context.Context, chatID int64) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, content, role, timestamp, is_streaming, reasoning
		 FROM messages WHERE chat_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1`, chatID)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("%w: latest message: %v", ErrUnavailable, err)
	}
	return msg, nil
}

// CountMessages returns the number of messages in the chat.
func (s *Store) CountMessages(ctx context.Context, chatID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE chat_id = ?`, chatID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count messages: %v", ErrUnavailable, err)
	}
	return n, nil
}

// UpdateMessageContent overwrites the streaming message's content and
// reasoning in place. Used on every chunk while a reply streams.
func (s *Store) UpdateMessageContent(ctx context.Context, id int64, content, reasoning string) error {
	return s.execOnMessage(ctx,
		`UPDATE messages SET content = ?, reasoning = ? WHERE id = ?`,
		content, reasoning, id)
}

// FinalizeMessage writes the final content and reasoning and clears the
// streaming flag.
func (s *Store) FinalizeMessage(ctx context.Context, id int64, content, reasoning string) error {
	return s.execOnMessage(ctx,
		`UPDATE messages SET content = ?, reasoning = ?, is_streaming = 0 WHERE id = ?`,
		content, reasoning, id)
}

// ReplaceMessages deletes the chat's messages and inserts the given
// ones, preserving their ids. Used when a remote chat snapshot wins
// reconciliation.
func (s *Store) ReplaceMessages(ctx context.Context, chatID int64, msgs []model.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin replace: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("%w: clear messages: %v", ErrUnavailable, err)
	}
	for i := range msgs {
		msg := &msgs[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, chat_id, content, role, timestamp, is_streaming, reasoning)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, chatID, msg.Content, msg.Role.String(), msg.Timestamp.UnixNano(),
			boolToInt(msg.IsStreaming), msg.Reasoning); err != nil {
			return fmt.Errorf("%w: insert message: %v", ErrUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit replace: %v", ErrUnavailable, err)
	}
	return nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanChat(sc scanner) (*model.Chat, error) {
	var chat model.Chat
	var createdAt, updatedAt int64
	if err := sc.Scan(&chat.ID, &chat.Title, &chat.Model, &chat.UserID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	chat.CreatedAt = time.Unix(0, createdAt)
	chat.UpdatedAt = time.Unix(0, updatedAt)
	return &chat, nil
}

func scanMessage(sc scanner) (*model.Message, error) {
	var msg model.Message
	var role string
	var ts int64
	var streaming int
	if err := sc.Scan(&msg.ID, &msg.ChatID, &msg.Content, &role, &ts, &streaming, &msg.Reasoning); err != nil {
		return nil, err
	}
	msg.Role = model.Role(role)
	msg.Timestamp = time.Unix(0, ts)
	msg.IsStreaming = streaming != 0
	return &msg, nil
}

func (s *Store) execOnChat(ctx context.Context, query string, args ...any) error {
	return s.execChecked(ctx, query, ErrChatNotFound, args...)
}

func (s *Store) execOnMessage(ctx context.Context, query string, args ...any) error {
	return s.execChecked(ctx, query, ErrMessageNotFound, args...)
}

func (s *Store) execChecked(ctx context.Context, query string, notFound error, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
