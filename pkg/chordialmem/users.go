package chordialmem

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, COALESCE(preferred_name, ''), timezone, schedule_preferences,
       bot_personality, COALESCE(onboarding_state, 'none'), is_active, created_at, updated_at`

const joinedUserColumns = `u.id, COALESCE(u.preferred_name, ''), u.timezone, u.schedule_preferences,
       u.bot_personality, COALESCE(u.onboarding_state, 'none'), u.is_active, u.created_at, u.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var prefs, state string
	if err := row.Scan(&u.ID, &u.PreferredName, &u.Timezone, &prefs, &u.Personality, &state, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}

	u.OnboardingState = OnboardingState(state)
	if prefs != "" {
		// malformed preferences fall back to defaults rather than failing the read
		_ = json.Unmarshal([]byte(prefs), &u.Schedule)
	}

	return &u, nil
}

// GetOrCreateUser resolves the user behind a platform identity, creating both
// the user and the identity on first contact. created is true for new users.
func (s *Store) GetOrCreateUser(ctx context.Context, platform, platformUserID, username string, now time.Time) (user *User, created bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+joinedUserColumns+`
			FROM platform_identities pi
			JOIN users u ON u.id = pi.user_id
			WHERE pi.platform = ? AND pi.platform_user_id = ?`,
			platform, platformUserID)

		user, err = scanUser(row)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		id := uuid.New().String()
		ts := now.UTC()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, onboarding_state, created_at, updated_at)
			VALUES (?, ?, ?, ?)`,
			id, OnboardingNone, ts, ts); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO platform_identities (user_id, platform, platform_user_id, username, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			id, platform, platformUserID, username, ts); err != nil {
			return fmt.Errorf("insert identity: %w", err)
		}

		user, err = scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
		created = true
		return err
	})
	if err != nil {
		return nil, false, err
	}

	return user, created, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// FindUser returns the user for a platform identity, or ErrUserNotFound
func (s *Store) FindUser(ctx context.Context, platform, platformUserID string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+joinedUserColumns+`
		FROM platform_identities pi
		JOIN users u ON u.id = pi.user_id
		WHERE pi.platform = ? AND pi.platform_user_id = ?`,
		platform, platformUserID)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// Identities lists the platform identities attached to a user
func (s *Store) Identities(ctx context.Context, userID string) ([]PlatformIdentity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, platform, platform_user_id, COALESCE(username, ''), created_at
		FROM platform_identities
		WHERE user_id = ?
		ORDER BY id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []PlatformIdentity
	for rows.Next() {
		var pi PlatformIdentity
		if err := rows.Scan(&pi.ID, &pi.UserID, &pi.Platform, &pi.PlatformUserID, &pi.Username, &pi.CreatedAt); err != nil {
			return nil, err
		}
		ids = append(ids, pi)
	}

	return ids, rows.Err()
}

// ScheduleTarget pairs an onboarded user with their id on one platform
type ScheduleTarget struct {
	User           *User
	PlatformUserID string
}

// ListSchedulable returns active, onboarded users on platform whose
// check-ins are not disabled.
func (s *Store) ListSchedulable(ctx context.Context, platform string) ([]ScheduleTarget, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+joinedUserColumns+`, pi.platform_user_id
		FROM platform_identities pi
		JOIN users u ON u.id = pi.user_id
		WHERE pi.platform = ?
		  AND u.is_active = 1
		  AND COALESCE(u.preferred_name, '') != ''
		ORDER BY u.created_at ASC`, platform)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []ScheduleTarget
	for rows.Next() {
		var t ScheduleTarget
		var prefs, state string
		var u User
		if err := rows.Scan(&u.ID, &u.PreferredName, &u.Timezone, &prefs, &u.Personality, &state, &u.Active, &u.CreatedAt, &u.UpdatedAt, &t.PlatformUserID); err != nil {
			return nil, err
		}
		u.OnboardingState = OnboardingState(state)
		_ = json.Unmarshal([]byte(prefs), &u.Schedule)

		if u.Schedule.Disabled {
			continue
		}

		t.User = &u
		targets = append(targets, t)
	}

	return targets, rows.Err()
}

func (s *Store) SetPreferredName(ctx context.Context, userID, name string) error {
	return s.updateUser(ctx, userID, "preferred_name", name)
}

func (s *Store) SetTimezone(ctx context.Context, userID, tz string) error {
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	return s.updateUser(ctx, userID, "timezone", tz)
}

func (s *Store) SetSchedulePreferences(ctx context.Context, userID string, prefs SchedulePreferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return s.updateUser(ctx, userID, "schedule_preferences", string(data))
}

func (s *Store) SetPersonality(ctx context.Context, userID, personality string) error {
	return s.updateUser(ctx, userID, "bot_personality", personality)
}

func (s *Store) SetOnboardingState(ctx context.Context, userID string, state OnboardingState) error {
	return s.updateUser(ctx, userID, "onboarding_state", string(state))
}

// DeactivateUser soft-deletes a user; rows are never removed
func (s *Store) DeactivateUser(ctx context.Context, userID string) error {
	return s.updateUser(ctx, userID, "is_active", 0)
}

func (s *Store) updateUser(ctx context.Context, userID, column string, value any) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}

	return nil
}

// CountUsers counts active users
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE is_active = 1`).Scan(&n)
	return n, err
}
