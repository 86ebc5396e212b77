package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	TypeConversation = "conversation"
	TypeScheduled    = "scheduled"
)

const (
	defaultCacheSize = 100
	defaultRetention = 1000
)

// Message is one immutable entry in a (user, platform) conversation log
type Message struct {
	ID          int64
	UserID      string
	Platform    string
	Role        string
	Content     string
	MessageType string
	CreatedAt   time.Time
}

// Key identifies one conversation
type Key struct {
	UserID   string
	Platform string
}

type Options struct {
	// CacheSize caps the in-memory working set per conversation
	CacheSize int
	// Retention caps persisted raw messages per user
	Retention int
}

type Store struct {
	db        *sql.DB
	retention int
	cache     *cache
}

const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    platform TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    message_type TEXT NOT NULL DEFAULT 'conversation',
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(user_id, platform, id);

CREATE TABLE IF NOT EXISTS compressed_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id INTEGER NOT NULL UNIQUE,
    user_id TEXT NOT NULL,
    platform TEXT NOT NULL,
    role TEXT NOT NULL,
    original_length INTEGER NOT NULL,
    compressed_content TEXT NOT NULL,
    compressed_length INTEGER NOT NULL,
    compression_ratio REAL NOT NULL,
    model_used TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_compressed_user ON compressed_messages(user_id, platform);

CREATE TABLE IF NOT EXISTS conversation_summaries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    platform TEXT NOT NULL,
    first_message_id INTEGER NOT NULL,
    last_message_id INTEGER NOT NULL,
    summary TEXT NOT NULL,
    key_topics TEXT NOT NULL DEFAULT '',
    message_count INTEGER NOT NULL,
    model_used TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_summaries_conversation ON conversation_summaries(user_id, platform, last_message_id);
`

// NewStore creates the conversation log using the provided database connection
func NewStore(db *sql.DB, opts Options) (*Store, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}

	s := &Store{db: db, retention: opts.Retention, cache: newCache(opts.CacheSize)}
	if _, err := s.db.Exec(schema); err != nil {
		return nil, err
	}
	return s, nil
}

const messageColumns = `id, user_id, platform, role, content, message_type, created_at`

func scanMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Platform, &m.Role, &m.Content, &m.MessageType, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// Append persists a message and returns it with its generated id
func (s *Store) Append(ctx context.Context, userID, platform, role, content, messageType string, now time.Time) (*Message, error) {
	if messageType == "" {
		messageType = TypeConversation
	}

	ts := now.UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (user_id, platform, role, content, message_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, platform, role, content, messageType, ts)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	m := Message{
		ID:          id,
		UserID:      userID,
		Platform:    platform,
		Role:        role,
		Content:     content,
		MessageType: messageType,
		CreatedAt:   ts,
	}
	s.cache.push(Key{userID, platform}, m)

	return &m, nil
}

// Recent returns up to limit of the newest messages in chronological order.
// Reads are served from the working set when it already holds enough.
func (s *Store) Recent(ctx context.Context, userID, platform string, limit int) ([]Message, error) {
	key := Key{userID, platform}
	if limit <= 0 {
		return nil, nil
	}

	if cached, ok := s.cache.recent(key, limit); ok {
		return cached, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE user_id = ? AND platform = ?
		ORDER BY id DESC
		LIMIT ?`,
		userID, platform, max(limit, s.cache.size))
	if err != nil {
		return nil, err
	}

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)

	s.cache.fill(key, messages)

	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// Last returns the newest message of a conversation, or nil when it is empty
func (s *Store) Last(ctx context.Context, userID, platform string) (*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE user_id = ? AND platform = ?
		ORDER BY id DESC
		LIMIT 1`, userID, platform)
	if err != nil {
		return nil, err
	}

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}
	return &messages[0], nil
}

// After returns up to limit messages with id > afterID, oldest first
func (s *Store) After(ctx context.Context, userID, platform string, afterID int64, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE user_id = ? AND platform = ? AND id > ?
		ORDER BY id ASC
		LIMIT ?`, userID, platform, afterID, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// CountAfter counts messages with id > afterID
func (s *Store) CountAfter(ctx context.Context, userID, platform string, afterID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE user_id = ? AND platform = ? AND id > ?`,
		userID, platform, afterID).Scan(&n)
	return n, err
}

// Conversations lists every (user, platform) pair with at least one message
func (s *Store) Conversations(ctx context.Context) ([]Key, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id, platform FROM messages ORDER BY user_id, platform`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.UserID, &k.Platform); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Cleanup deletes a user's oldest raw messages beyond the retention cap.
// Compressed rows and summaries referencing them are left in place.
func (s *Store) Cleanup(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE user_id = ? AND id NOT IN (
			SELECT id FROM messages
			WHERE user_id = ?
			ORDER BY id DESC
			LIMIT ?
		)`, userID, userID, s.retention)
	if err != nil {
		return 0, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.cache.dropUser(userID)
	}
	return n, nil
}

// CleanupAll applies the retention cap to every user with messages
func (s *Store) CleanupAll(ctx context.Context) (int64, error) {
	keys, err := s.Conversations(ctx)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool)
	var total int64
	var errs []error
	for _, k := range keys {
		if seen[k.UserID] {
			continue
		}
		seen[k.UserID] = true

		n, err := s.Cleanup(ctx, k.UserID)
		if err != nil {
			errs = append(errs, fmt.Errorf("cleanup %s: %w", k.UserID, err))
			continue
		}
		total += n
	}

	return total, errors.Join(errs...)
}

// CountMessages counts all persisted raw messages
func (s *Store) CountMessages(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// Forget drops the in-memory working set for a conversation
func (s *Store) Forget(userID, platform string) {
	s.cache.drop(Key{userID, platform})
}
