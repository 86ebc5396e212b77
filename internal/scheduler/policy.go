// Package scheduler decides when a proactive check-in goes out and runs the
// loop that sends them.
package scheduler

import (
	"time"

	"github.com/bowerhall/chordial/internal/conversation"
	"github.com/bowerhall/chordial/pkg/chordialmem"
)

// BackoffInclusive makes a conversation eligible again at exactly the
// ignored backoff, not only after it.
const BackoffInclusive = true

const (
	DefaultInterval       = 60 * time.Minute
	DefaultIgnoredBackoff = 24 * time.Hour
	DefaultQuietStart     = 21
	DefaultQuietEnd       = 8
)

type Reason string

const (
	ReasonColdStart     Reason = "cold_start"
	ReasonBackoffPassed Reason = "backoff_passed"
	ReasonIntervalDue   Reason = "interval_due"
	ReasonNotOnboarded  Reason = "not_onboarded"
	ReasonDisabled      Reason = "disabled"
	ReasonAwaitingReply Reason = "awaiting_reply"
	ReasonQuietHours    Reason = "quiet_hours"
	ReasonTooSoon       Reason = "too_soon"
)

// Decision is the outcome for one conversation at one instant
type Decision struct {
	Send   bool
	Reason Reason
	// NextEligible is advisory, zero when unknown
	NextEligible time.Time
}

// Policy holds the scheduling knobs. Quiet hours wrap midnight when
// QuietStart > QuietEnd and are disabled when the two are equal.
type Policy struct {
	Interval       time.Duration
	IgnoredBackoff time.Duration
	QuietStart     int
	QuietEnd       int
}

func DefaultPolicy() Policy {
	return Policy{
		Interval:       DefaultInterval,
		IgnoredBackoff: DefaultIgnoredBackoff,
		QuietStart:     DefaultQuietStart,
		QuietEnd:       DefaultQuietEnd,
	}
}

// ForUser applies a user's schedule preferences over the service defaults
func (p Policy) ForUser(prefs chordialmem.SchedulePreferences) Policy {
	if prefs.IntervalMinutes > 0 {
		p.Interval = time.Duration(prefs.IntervalMinutes) * time.Minute
	}
	if prefs.QuietStart != nil && validHour(*prefs.QuietStart) {
		p.QuietStart = *prefs.QuietStart
	}
	if prefs.QuietEnd != nil && validHour(*prefs.QuietEnd) {
		p.QuietEnd = *prefs.QuietEnd
	}
	return p
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}

// InQuietHours reports whether a local hour falls in the quiet window
func (p Policy) InQuietHours(hour int) bool {
	switch {
	case p.QuietStart == p.QuietEnd:
		return false
	case p.QuietStart > p.QuietEnd:
		return hour >= p.QuietStart || hour < p.QuietEnd
	default:
		return hour >= p.QuietStart && hour < p.QuietEnd
	}
}

// quietEnds returns the next instant the quiet window closes after now
func (p Policy) quietEnds(now time.Time) time.Time {
	end := time.Date(now.Year(), now.Month(), now.Day(), p.QuietEnd, 0, 0, 0, now.Location())
	if !end.After(now) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}

func (p Policy) backoffElapsed(elapsed time.Duration) bool {
	if BackoffInclusive {
		return elapsed >= p.IgnoredBackoff
	}
	return elapsed > p.IgnoredBackoff
}

// Decide is the pure decision for one conversation. last is the newest raw
// message or nil; now must already be in the user's location so quiet hours
// use the local hour.
func (p Policy) Decide(last *conversation.Message, now time.Time) Decision {
	if last == nil {
		return Decision{Send: true, Reason: ReasonColdStart, NextEligible: now}
	}

	elapsed := now.Sub(last.CreatedAt)

	if last.Role == conversation.RoleAssistant && last.MessageType == conversation.TypeScheduled {
		if p.backoffElapsed(elapsed) {
			return Decision{Send: true, Reason: ReasonBackoffPassed, NextEligible: now}
		}
		return Decision{Reason: ReasonAwaitingReply, NextEligible: last.CreatedAt.Add(p.IgnoredBackoff)}
	}

	if p.InQuietHours(now.Hour()) {
		next := p.quietEnds(now)
		if due := last.CreatedAt.Add(p.Interval); due.After(next) {
			next = due
		}
		return Decision{Reason: ReasonQuietHours, NextEligible: next}
	}

	if elapsed >= p.Interval {
		return Decision{Send: true, Reason: ReasonIntervalDue, NextEligible: now}
	}
	return Decision{Reason: ReasonTooSoon, NextEligible: last.CreatedAt.Add(p.Interval)}
}

// Evaluate applies the user-level preconditions, the user's preferences and
// timezone, then Decide.
func (p Policy) Evaluate(user *chordialmem.User, last *conversation.Message, now time.Time) Decision {
	if user == nil || !user.Onboarded() {
		return Decision{Reason: ReasonNotOnboarded}
	}
	if user.Schedule.Disabled {
		return Decision{Reason: ReasonDisabled}
	}
	return p.ForUser(user.Schedule).Decide(last, now.In(user.Location()))
}
