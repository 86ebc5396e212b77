package chordialmem

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrMemoryNotFound = errors.New("memory not found")
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Store struct {
	db       *sql.DB
	embedder Embedder
	pending  sync.WaitGroup
}

type OnboardingState string

const (
	OnboardingNone               OnboardingState = "none"
	OnboardingAwaitingName       OnboardingState = "awaiting_name"
	OnboardingAwaitingCoreMemory OnboardingState = "awaiting_core_memory"
)

// SchedulePreferences is stored as JSON on the user row. Zero values mean
// "use the service default".
type SchedulePreferences struct {
	Disabled        bool `json:"disabled,omitempty"`
	IntervalMinutes int  `json:"interval_minutes,omitempty"`
	QuietStart      *int `json:"quiet_start,omitempty"`
	QuietEnd        *int `json:"quiet_end,omitempty"`
}

type User struct {
	ID              string
	PreferredName   string
	Timezone        string
	Schedule        SchedulePreferences
	Personality     string
	OnboardingState OnboardingState
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Onboarded reports whether the user has given a name to be called by
func (u *User) Onboarded() bool {
	return u.PreferredName != ""
}

// Location resolves the user's timezone, falling back to UTC
func (u *User) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type PlatformIdentity struct {
	ID             int64
	UserID         string
	Platform       string
	PlatformUserID string
	Username       string
	CreatedAt      time.Time
}

type MemoryType string

const (
	TypePreference MemoryType = "PREFERENCE"
	TypeFact       MemoryType = "FACT"
	TypeEpisodic   MemoryType = "EPISODIC"
)

type Source string

const (
	SourceUserExplicit    Source = "USER_EXPLICIT"
	SourceAIInferred      Source = "AI_INFERRED"
	SourceSystemGenerated Source = "SYSTEM_GENERATED"
)

const (
	CoreWeight    = 999.0
	DefaultWeight = 1.0
)

type Memory struct {
	ID             int64
	UserID         string
	Instruction    string
	Type           MemoryType
	Source         Source
	Keywords       []string
	Weighting      float64
	Core           bool
	Active         bool
	TTLSeconds     *int64
	AccessCount    int
	LastAccessedAt *time.Time
	Metadata       map[string]any
	CreatedAt      time.Time
}

// Expired reports whether the memory's ttl has elapsed at now
func (m *Memory) Expired(now time.Time) bool {
	if m.TTLSeconds == nil {
		return false
	}
	return now.Sub(m.CreatedAt) >= time.Duration(*m.TTLSeconds)*time.Second
}

// recency is the timestamp used to break weighting ties
func (m *Memory) recency() time.Time {
	if m.LastAccessedAt != nil {
		return *m.LastAccessedAt
	}
	return m.CreatedAt
}

// NewMemory holds the inputs to CreateMemory. A nil Weighting means
// DefaultWeight; Core overrides any weighting with CoreWeight.
type NewMemory struct {
	UserID      string
	Instruction string
	Type        MemoryType
	Source      Source
	Keywords    []string
	Weighting   *float64
	Core        bool
	TTLSeconds  *int64
	Embedding   []float32
	Metadata    map[string]any
}

// PromptMemory is the slice of a memory the prompt assembler renders
type PromptMemory struct {
	ID          int64
	Type        MemoryType
	Instruction string
	Core        bool
	Source      Source
}

type MemoryStats struct {
	Total          int
	Core           int
	ByType         map[MemoryType]int
	BySource       map[Source]int
	AvgAccessCount float64
}
