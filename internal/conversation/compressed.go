package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Compressed is the shortened form of exactly one raw message
type Compressed struct {
	ID               int64
	MessageID        int64
	UserID           string
	Platform         string
	Role             string
	OriginalLength   int
	Content          string
	CompressedLength int
	Ratio            float64
	Model            string
	CreatedAt        time.Time
}

type CompressionStats struct {
	Count        int
	AverageRatio float64
	CharsSaved   int
}

// SaveCompressed stores the compressed form of a message. A message is
// compressed at most once; later writes for the same message are ignored.
func (s *Store) SaveCompressed(ctx context.Context, c Compressed, now time.Time) (*Compressed, error) {
	c.CompressedLength = utf8.RuneCountInString(c.Content)
	c.Ratio = 1.0
	if c.OriginalLength > 0 {
		c.Ratio = float64(c.CompressedLength) / float64(c.OriginalLength)
	}
	c.CreatedAt = now.UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO compressed_messages (message_id, user_id, platform, role, original_length,
		                                 compressed_content, compressed_length, compression_ratio, model_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING`,
		c.MessageID, c.UserID, c.Platform, c.Role, c.OriginalLength,
		c.Content, c.CompressedLength, c.Ratio, c.Model, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert compressed message: %w", err)
	}

	c.ID, _ = result.LastInsertId()
	return &c, nil
}

// CompressedFor loads the compressed forms that exist for the given message ids
func (s *Store) CompressedFor(ctx context.Context, messageIDs []int64) (map[int64]Compressed, error) {
	out := make(map[int64]Compressed, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(messageIDs)), ",")
	args := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, user_id, platform, role, original_length, compressed_content,
		       compressed_length, compression_ratio, model_used, created_at
		FROM compressed_messages
		WHERE message_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c Compressed
		if err := rows.Scan(&c.ID, &c.MessageID, &c.UserID, &c.Platform, &c.Role, &c.OriginalLength, &c.Content,
			&c.CompressedLength, &c.Ratio, &c.Model, &c.CreatedAt); err != nil {
			return nil, err
		}
		out[c.MessageID] = c
	}

	return out, rows.Err()
}

// CompressionStats aggregates a user's compressed messages across platforms
func (s *Store) CompressionStats(ctx context.Context, userID string) (*CompressionStats, error) {
	var stats CompressionStats
	var avg *float64
	var saved *int

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(compression_ratio), SUM(original_length - compressed_length)
		FROM compressed_messages
		WHERE user_id = ?`, userID).Scan(&stats.Count, &avg, &saved)
	if err != nil {
		return nil, err
	}

	if avg != nil {
		stats.AverageRatio = *avg
	}
	if saved != nil {
		stats.CharsSaved = *saved
	}
	return &stats, nil
}
