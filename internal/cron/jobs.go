package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/bowerhall/chordial/internal/metrics"
)

// Job names
const (
	JobSummaries = "summaries"
	JobRetention = "retention"
	JobBackup    = "backup"
	JobGauges    = "gauges"
)

type Summarizer interface {
	SweepAll(ctx context.Context, now time.Time) (int, error)
}

type Retainer interface {
	CleanupAll(ctx context.Context) (int64, error)
}

type Backuper interface {
	Backup(ctx context.Context, now time.Time) ([]string, error)
}

type MemoryCounter interface {
	CountActiveMemories(ctx context.Context) (int, error)
}

// SummaryJob runs the summary sweep over every known conversation
func SummaryJob(s Summarizer) JobFunc {
	return func(ctx context.Context, now time.Time) (string, error) {
		n, err := s.SweepAll(ctx, now)
		return fmt.Sprintf("%d summaries", n), err
	}
}

// RetentionJob trims every user's raw log to the retention cap
func RetentionJob(r Retainer) JobFunc {
	return func(ctx context.Context, _ time.Time) (string, error) {
		n, err := r.CleanupAll(ctx)
		return fmt.Sprintf("%d messages removed", n), err
	}
}

func BackupJob(b Backuper) JobFunc {
	return func(ctx context.Context, now time.Time) (string, error) {
		keys, err := b.Backup(ctx, now)
		return fmt.Sprintf("%d objects uploaded", len(keys)), err
	}
}

// GaugeJob refreshes gauges that are expensive to keep live
func GaugeJob(c MemoryCounter) JobFunc {
	return func(ctx context.Context, _ time.Time) (string, error) {
		n, err := c.CountActiveMemories(ctx)
		if err != nil {
			return "", err
		}
		metrics.ActiveMemories.Set(float64(n))
		return fmt.Sprintf("%d active memories", n), nil
	}
}
