package chordialmem

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const memoryColumns = `id, user_id, instruction, memory_type, source, keywords, weighting, core,
       active, ttl_seconds, access_count, last_accessed_at, metadata, created_at`

func scanMemory(row rowScanner) (*Memory, error) {
	var m Memory
	var keywords, metadata string
	var ttl sql.NullInt64
	var lastAccessed sql.NullTime

	err := row.Scan(&m.ID, &m.UserID, &m.Instruction, &m.Type, &m.Source, &keywords, &m.Weighting, &m.Core,
		&m.Active, &ttl, &m.AccessCount, &lastAccessed, &metadata, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	m.Keywords = splitKeywords(keywords)
	if ttl.Valid {
		v := ttl.Int64
		m.TTLSeconds = &v
	}
	if lastAccessed.Valid {
		v := lastAccessed.Time
		m.LastAccessedAt = &v
	}
	if metadata != "" {
		_ = json.Unmarshal([]byte(metadata), &m.Metadata)
	}

	return &m, nil
}

func splitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// CreateMemory stores a memory for an existing user. Core memories always
// carry CoreWeight whatever weighting was supplied.
func (s *Store) CreateMemory(ctx context.Context, nm NewMemory, now time.Time) (*Memory, error) {
	if _, err := s.GetUser(ctx, nm.UserID); err != nil {
		return nil, err
	}

	if nm.Type == "" {
		nm.Type = TypePreference
	}
	if nm.Source == "" {
		nm.Source = SourceUserExplicit
	}

	weight := DefaultWeight
	if nm.Weighting != nil {
		weight = *nm.Weighting
	}
	if nm.Core {
		weight = CoreWeight
	}

	metadata := "{}"
	if len(nm.Metadata) > 0 {
		data, err := json.Marshal(nm.Metadata)
		if err != nil {
			return nil, fmt.Errorf("metadata: %w", err)
		}
		metadata = string(data)
	}

	ts := now.UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (user_id, instruction, memory_type, source, keywords, weighting, core, ttl_seconds, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nm.UserID, nm.Instruction, string(nm.Type), string(nm.Source), strings.Join(nm.Keywords, ","),
		weight, nm.Core, nm.TTLSeconds, metadata, ts)
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	embedding := nm.Embedding
	if embedding == nil && s.embedder != nil {
		// embeddings are optional, a failed embed still leaves a usable memory
		embedding, _ = s.embedder.Embed(ctx, nm.Instruction)
	}
	if len(embedding) > 0 {
		s.storeEmbedding(ctx, id, embedding)
	}

	return &Memory{
		ID:          id,
		UserID:      nm.UserID,
		Instruction: nm.Instruction,
		Type:        nm.Type,
		Source:      nm.Source,
		Keywords:    nm.Keywords,
		Weighting:   weight,
		Core:        nm.Core,
		Active:      true,
		TTLSeconds:  nm.TTLSeconds,
		Metadata:    nm.Metadata,
		CreatedAt:   ts,
	}, nil
}

func (s *Store) GetMemory(ctx context.Context, id int64) (*Memory, error) {
	m, err := scanMemory(s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemoryNotFound
	}
	return m, err
}

// GetActive returns the user's active memories, optionally filtered by type.
// Unless includeExpired is set, memories whose ttl has elapsed at now are
// deactivated as part of the read and left out of the result.
func (s *Store) GetActive(ctx context.Context, userID string, memType MemoryType, includeExpired bool, now time.Time) ([]*Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE user_id = ? AND active = 1`
	args := []any{userID}
	if memType != "" {
		query += ` AND memory_type = ?`
		args = append(args, string(memType))
	}
	query += ` ORDER BY id ASC`

	all, err := s.queryMemories(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	if includeExpired {
		return all, nil
	}

	return s.dropExpired(ctx, all, now)
}

// GetCore returns the user's active, unexpired core memories
func (s *Store) GetCore(ctx context.Context, userID string, now time.Time) ([]*Memory, error) {
	all, err := s.GetActive(ctx, userID, "", false, now)
	if err != nil {
		return nil, err
	}

	var core []*Memory
	for _, m := range all {
		if m.Core {
			core = append(core, m)
		}
	}
	return core, nil
}

// SearchByKeyword matches any term against any keyword, case-insensitively
func (s *Store) SearchByKeyword(ctx context.Context, userID string, terms []string, now time.Time) ([]*Memory, error) {
	all, err := s.GetActive(ctx, userID, "", false, now)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			wanted[t] = true
		}
	}

	var matched []*Memory
	for _, m := range all {
		for _, k := range m.Keywords {
			if wanted[strings.ToLower(k)] {
				matched = append(matched, m)
				break
			}
		}
	}
	return matched, nil
}

// SelectForPrompt picks the memories injected into a prompt. All core
// memories are included even past maxCount; the remaining slots go to regular
// memories by weighting, then recency. Access tracking for every selected
// memory runs in the background (see Wait).
func (s *Store) SelectForPrompt(ctx context.Context, userID string, maxCount int, now time.Time) ([]PromptMemory, error) {
	all, err := s.GetActive(ctx, userID, "", false, now)
	if err != nil {
		return nil, err
	}

	var core, regular []*Memory
	for _, m := range all {
		if m.Core {
			core = append(core, m)
		} else {
			regular = append(regular, m)
		}
	}

	sort.SliceStable(regular, func(i, j int) bool {
		if regular[i].Weighting != regular[j].Weighting {
			return regular[i].Weighting > regular[j].Weighting
		}
		return regular[i].recency().After(regular[j].recency())
	})

	slots := max(0, maxCount-len(core))
	if slots < len(regular) {
		regular = regular[:slots]
	}

	selected := append(core, regular...)
	out := make([]PromptMemory, 0, len(selected))
	ids := make([]int64, 0, len(selected))
	for _, m := range selected {
		out = append(out, PromptMemory{ID: m.ID, Type: m.Type, Instruction: m.Instruction, Core: m.Core, Source: m.Source})
		ids = append(ids, m.ID)
	}

	if len(ids) > 0 {
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			// detached from ctx so a finished request does not cancel tracking
			_ = s.touchMemories(context.Background(), ids, now)
		}()
	}

	return out, nil
}

func (s *Store) touchMemories(ctx context.Context, ids []int64, now time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`,
				now.UTC(), id); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateWeight changes a regular memory's weighting. Core memories are left
// untouched without error.
func (s *Store) UpdateWeight(ctx context.Context, id int64, weight float64) error {
	m, err := s.GetMemory(ctx, id)
	if err != nil {
		return err
	}
	if m.Core {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `UPDATE memories SET weighting = ? WHERE id = ? AND core = 0`, weight, id)
	return err
}

// Deactivate soft-deletes a memory. Repeated calls are harmless.
func (s *Store) Deactivate(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE memories SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMemoryNotFound
	}
	return nil
}

// MemoryStats summarises a user's active memories
func (s *Store) MemoryStats(ctx context.Context, userID string, now time.Time) (*MemoryStats, error) {
	all, err := s.GetActive(ctx, userID, "", false, now)
	if err != nil {
		return nil, err
	}

	stats := &MemoryStats{
		ByType:   make(map[MemoryType]int),
		BySource: make(map[Source]int),
	}

	accesses := 0
	for _, m := range all {
		stats.Total++
		if m.Core {
			stats.Core++
		}
		stats.ByType[m.Type]++
		stats.BySource[m.Source]++
		accesses += m.AccessCount
	}

	if stats.Total > 0 {
		stats.AvgAccessCount = float64(accesses) / float64(stats.Total)
	}

	return stats, nil
}

// CountActiveMemories counts active memories across all users
func (s *Store) CountActiveMemories(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE active = 1`).Scan(&n)
	return n, err
}

func (s *Store) queryMemories(ctx context.Context, query string, args ...any) ([]*Memory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}

	return memories, rows.Err()
}

// dropExpired deactivates expired memories and returns the rest. The rows
// cursor is already closed by the time this runs.
func (s *Store) dropExpired(ctx context.Context, memories []*Memory, now time.Time) ([]*Memory, error) {
	var live []*Memory
	var expired []int64
	for _, m := range memories {
		if m.Expired(now) {
			expired = append(expired, m.ID)
			continue
		}
		live = append(live, m)
	}

	if len(expired) > 0 {
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			for _, id := range expired {
				if _, err := tx.ExecContext(ctx, `UPDATE memories SET active = 0 WHERE id = ?`, id); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("expire memories: %w", err)
		}
	}

	return live, nil
}
