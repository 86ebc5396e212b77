package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/bowerhall/chordial/internal/scheduler"
)

// Tuning holds the numeric policy knobs of the core
type Tuning struct {
	DMIntervalMinutes    int `env:"DM_INTERVAL_MINUTES" envDefault:"60"`
	IgnoredBackoffHours  int `env:"IGNORED_BACKOFF_HOURS" envDefault:"24"`
	QuietHoursStart      int `env:"QUIET_HOURS_START" envDefault:"21"`
	QuietHoursEnd        int `env:"QUIET_HOURS_END" envDefault:"8"`
	SchedulerTickMinutes int `env:"SCHEDULER_TICK_MINUTES" envDefault:"5"`
	CompressMinLength    int `env:"COMPRESS_MIN_LENGTH" envDefault:"100"`
	SummaryMinMessages   int `env:"SUMMARY_MIN_MESSAGES" envDefault:"20"`
	SummaryMaxMessages   int `env:"SUMMARY_MAX_MESSAGES" envDefault:"50"`
	MaxPromptMemories    int `env:"MAX_PROMPT_MEMORIES" envDefault:"10"`
	HistoryLimit         int `env:"HISTORY_LIMIT" envDefault:"15"`
	HistoryFullMessages  int `env:"HISTORY_FULL_MESSAGES" envDefault:"5"`
	RawCacheSize         int `env:"RAW_CACHE_SIZE" envDefault:"100"`
	RawRetention         int `env:"RAW_RETENTION" envDefault:"1000"`
}

func LoadTuning() (Tuning, error) {
	var t Tuning
	if err := env.Parse(&t); err != nil {
		return Tuning{}, fmt.Errorf("tuning: %w", err)
	}
	return t, t.validate()
}

func (t Tuning) validate() error {
	for name, h := range map[string]int{"QUIET_HOURS_START": t.QuietHoursStart, "QUIET_HOURS_END": t.QuietHoursEnd} {
		if h < 0 || h > 23 {
			return fmt.Errorf("%s must be an hour between 0 and 23, got %d", name, h)
		}
	}
	if t.SummaryMinMessages <= 0 || t.SummaryMaxMessages < t.SummaryMinMessages {
		return fmt.Errorf("SUMMARY_MIN_MESSAGES (%d) must be positive and not above SUMMARY_MAX_MESSAGES (%d)",
			t.SummaryMinMessages, t.SummaryMaxMessages)
	}
	if t.HistoryFullMessages < 0 || t.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive and HISTORY_FULL_MESSAGES not negative")
	}
	if t.DMIntervalMinutes <= 0 || t.IgnoredBackoffHours <= 0 || t.SchedulerTickMinutes <= 0 {
		return fmt.Errorf("scheduler intervals must be positive")
	}
	return nil
}

func (t Tuning) Policy() scheduler.Policy {
	return scheduler.Policy{
		Interval:       time.Duration(t.DMIntervalMinutes) * time.Minute,
		IgnoredBackoff: time.Duration(t.IgnoredBackoffHours) * time.Hour,
		QuietStart:     t.QuietHoursStart,
		QuietEnd:       t.QuietHoursEnd,
	}
}

func (t Tuning) Tick() time.Duration {
	return time.Duration(t.SchedulerTickMinutes) * time.Minute
}
