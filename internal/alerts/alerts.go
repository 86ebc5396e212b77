// Package alerts notifies the operator about failures, at most once per
// component and message within the cooldown.
package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/bowerhall/chordial/internal/logger"
)

const DefaultCooldown = time.Hour

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityCritical
)

type NotifyFunc func(message string)

type Alerter struct {
	mu        sync.Mutex
	notify    NotifyFunc
	cooldowns map[string]time.Time
	cooldown  time.Duration
	now       func() time.Time
}

func New(notify NotifyFunc, cooldown time.Duration) *Alerter {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Alerter{
		notify:    notify,
		cooldowns: make(map[string]time.Time),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Alert is a no-op on a nil Alerter so callers need no guard
func (a *Alerter) Alert(severity Severity, component, message string, err error) {
	if a == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := fmt.Sprintf("%s:%s", component, message)
	now := a.now()

	if lastSent, ok := a.cooldowns[key]; ok {
		if now.Sub(lastSent) < a.cooldown {
			logger.Debug("alert suppressed (cooldown)", "component", component, "message", message)
			return
		}
	}

	var text string
	switch severity {
	case SeverityCritical:
		text = fmt.Sprintf("🚨 %s: %s", component, message)
	case SeverityWarn:
		text = fmt.Sprintf("⚠️ %s: %s", component, message)
	default:
		text = fmt.Sprintf("ℹ️ %s: %s", component, message)
	}

	if err != nil {
		text += fmt.Sprintf("\n\nError: %v", err)
	}

	if a.notify == nil {
		logger.Warn("alert (no notifier)", "component", component, "message", message, "error", err)
		return
	}

	a.notify(text)
	a.cooldowns[key] = now
	logger.Info("alert sent", "component", component, "severity", severity)
}

func (a *Alerter) Critical(component, message string, err error) {
	a.Alert(SeverityCritical, component, message, err)
}

func (a *Alerter) Warn(component, message string, err error) {
	a.Alert(SeverityWarn, component, message, err)
}

func (a *Alerter) Info(component, message string) {
	a.Alert(SeverityInfo, component, message, nil)
}
