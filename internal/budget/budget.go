package budget

import (
	"sync"
	"time"

	"github.com/bowerhall/chordial/internal/logger"
)

// Tracker enforces a daily token budget across every provider. It satisfies
// llm.Meter.
type Tracker struct {
	mu         sync.Mutex
	dailyLimit int
	warnAt     float64
	tokens     int
	lastReset  time.Time
	onWarn     func(used, limit int)
	onExceeded func(used, limit int)
	warnSent   bool
	exceeded   bool
	timezone   *time.Location
	store      *Store
	now        func() time.Time
}

// Config for a Tracker. A DailyLimit of zero disables enforcement while still
// recording usage.
type Config struct {
	DailyLimit int
	WarnAt     float64
	Timezone   *time.Location
}

func NewTracker(cfg Config, onWarn, onExceeded func(used, limit int)) *Tracker {
	tz := cfg.Timezone
	if tz == nil {
		tz = time.UTC
	}

	t := &Tracker{
		dailyLimit: cfg.DailyLimit,
		warnAt:     cfg.WarnAt,
		onWarn:     onWarn,
		onExceeded: onExceeded,
		timezone:   tz,
		now:        time.Now,
	}
	t.lastReset = t.now().In(tz)

	return t
}

func (t *Tracker) SetStore(s *Store) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.store = s

	// carry today's usage across restarts
	if s != nil {
		if tokens, err := s.TokensOn(t.now()); err == nil {
			t.tokens = tokens
			if t.dailyLimit > 0 && float64(t.tokens) >= float64(t.dailyLimit)*t.warnAt {
				t.warnSent = true
			}
			t.exceeded = t.dailyLimit > 0 && t.tokens >= t.dailyLimit
		}
	}
}

func (t *Tracker) Store() *Store {
	return t.store
}

// Add counts tokens against today's budget and reports whether the budget
// still has room.
func (t *Tracker) Add(tokens int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkReset()
	t.tokens += tokens

	if t.dailyLimit <= 0 {
		return true
	}

	if t.tokens >= t.dailyLimit {
		if !t.exceeded && t.onExceeded != nil {
			t.onExceeded(t.tokens, t.dailyLimit)
		}
		t.exceeded = true

		return false
	}

	if !t.warnSent && float64(t.tokens) >= float64(t.dailyLimit)*t.warnAt {
		t.warnSent = true

		if t.onWarn != nil {
			t.onWarn(t.tokens, t.dailyLimit)
		}
	}

	return true
}

func (t *Tracker) Record(provider, model string, inputTokens, outputTokens int) bool {
	if t.store != nil {
		if err := t.store.Record(provider, model, inputTokens, outputTokens, t.now()); err != nil {
			// usage tracking never blocks a reply
			logger.Warn("budget: failed to record usage", "provider", provider, "error", err)
		}
	}

	return t.Add(inputTokens + outputTokens)
}

// Exceeded reports whether today's budget is spent
func (t *Tracker) Exceeded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkReset()
	return t.exceeded
}

func (t *Tracker) Usage() (used, limit int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkReset()
	return t.tokens, t.dailyLimit
}

// must hold lock
func (t *Tracker) checkReset() {
	now := t.now().In(t.timezone)
	if now.YearDay() != t.lastReset.YearDay() || now.Year() != t.lastReset.Year() {
		t.tokens = 0
		t.warnSent = false
		t.exceeded = false
		t.lastReset = now
	}
}
