package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrSummaryOverlap is returned when a summary would cover messages that an
// earlier summary of the same conversation already covers.
var ErrSummaryOverlap = errors.New("summary range overlaps an existing summary")

// Summary is a digest of the contiguous raw range [FirstMessageID, LastMessageID]
type Summary struct {
	ID             int64
	UserID         string
	Platform       string
	FirstMessageID int64
	LastMessageID  int64
	Text           string
	KeyTopics      []string
	MessageCount   int
	Model          string
	CreatedAt      time.Time
}

const summaryColumns = `id, user_id, platform, first_message_id, last_message_id, summary,
       key_topics, message_count, model_used, created_at`

func scanSummaries(rows *sql.Rows) ([]Summary, error) {
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		var topics string
		if err := rows.Scan(&sm.ID, &sm.UserID, &sm.Platform, &sm.FirstMessageID, &sm.LastMessageID, &sm.Text,
			&topics, &sm.MessageCount, &sm.Model, &sm.CreatedAt); err != nil {
			return nil, err
		}
		if topics != "" {
			sm.KeyTopics = strings.Split(topics, ",")
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// SaveSummary persists a summary. Ranges must advance past the previous
// summary's last message; the check and insert share one transaction.
func (s *Store) SaveSummary(ctx context.Context, sm Summary, now time.Time) (*Summary, error) {
	if sm.FirstMessageID > sm.LastMessageID {
		return nil, fmt.Errorf("invalid summary range %d..%d", sm.FirstMessageID, sm.LastMessageID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var lastCovered int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(last_message_id), 0) FROM conversation_summaries
		WHERE user_id = ? AND platform = ?`, sm.UserID, sm.Platform).Scan(&lastCovered)
	if err != nil {
		return nil, err
	}
	if sm.FirstMessageID <= lastCovered {
		return nil, ErrSummaryOverlap
	}

	sm.CreatedAt = now.UTC()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_summaries (user_id, platform, first_message_id, last_message_id, summary,
		                                    key_topics, message_count, model_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sm.UserID, sm.Platform, sm.FirstMessageID, sm.LastMessageID, sm.Text,
		strings.Join(sm.KeyTopics, ","), sm.MessageCount, sm.Model, sm.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert summary: %w", err)
	}

	sm.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sm, nil
}

// LastSummary returns the newest summary of a conversation, or nil
func (s *Store) LastSummary(ctx context.Context, userID, platform string) (*Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+summaryColumns+` FROM conversation_summaries
		WHERE user_id = ? AND platform = ?
		ORDER BY last_message_id DESC
		LIMIT 1`, userID, platform)
	if err != nil {
		return nil, err
	}

	summaries, err := scanSummaries(rows)
	if err != nil || len(summaries) == 0 {
		return nil, err
	}
	return &summaries[0], nil
}

const defaultSummaryLimit = 3

// RecentSummaries returns up to limit of the newest summaries, oldest first.
// A non-positive limit means 3.
func (s *Store) RecentSummaries(ctx context.Context, userID, platform string, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = defaultSummaryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+summaryColumns+` FROM conversation_summaries
		WHERE user_id = ? AND platform = ?
		ORDER BY last_message_id DESC
		LIMIT ?`, userID, platform, limit)
	if err != nil {
		return nil, err
	}

	summaries, err := scanSummaries(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(summaries)
	return summaries, nil
}
