package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/bowerhall/chordial/internal/conversation"
	"github.com/bowerhall/chordial/internal/logger"
	"github.com/bowerhall/chordial/internal/metrics"
	"github.com/bowerhall/chordial/internal/session"
	"github.com/bowerhall/chordial/pkg/chordialmem"
)

const DefaultTick = 5 * time.Minute

// Deliverer is the capability every transport exposes for outbound messages
type Deliverer interface {
	Platform() string
	Deliver(ctx context.Context, platformUserID, text string) error
}

// Generator produces (and persists) a scheduled message for one user
type Generator interface {
	GenerateScheduled(ctx context.Context, platform, platformUserID string) (string, error)
}

// Users lists the users the loop considers on a platform
type Users interface {
	ListSchedulable(ctx context.Context, platform string) ([]chordialmem.ScheduleTarget, error)
}

// History exposes the newest message of a conversation
type History interface {
	Last(ctx context.Context, userID, platform string) (*conversation.Message, error)
}

// AlertFunc reports loop failures to the operator
type AlertFunc func(component, message string)

// Runner ticks over every schedulable user of every transport
type Runner struct {
	policy     Policy
	tick       time.Duration
	users      Users
	history    History
	generator  Generator
	transports []Deliverer
	sessions   *session.Store
	alert      AlertFunc
	now        func() time.Time
}

type Config struct {
	Policy Policy
	Tick   time.Duration
}

func NewRunner(cfg Config, users Users, history History, generator Generator, sessions *session.Store, alert AlertFunc, transports ...Deliverer) *Runner {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if sessions == nil {
		sessions = session.NewStore()
	}

	return &Runner{
		policy:     cfg.Policy,
		tick:       cfg.Tick,
		users:      users,
		history:    history,
		generator:  generator,
		transports: transports,
		sessions:   sessions,
		alert:      alert,
		now:        time.Now,
	}
}

// Run ticks until ctx is cancelled. A tick in progress finishes its current
// user but starts no new platform scan once stopped.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	logger.Info("scheduler started", "tick", r.tick, "transports", len(r.transports))
	r.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("scheduler stopping")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one pass and returns how many messages were delivered
func (r *Runner) Tick(ctx context.Context) int {
	sent := 0
	for _, t := range r.transports {
		if ctx.Err() != nil {
			return sent
		}

		platform := t.Platform()
		targets, err := r.users.ListSchedulable(ctx, platform)
		if err != nil {
			logger.Error("failed to list schedulable users", "platform", platform, "error", err)
			r.raise("scheduler", fmt.Sprintf("listing %s users failed: %v", platform, err))
			continue
		}

		for _, target := range targets {
			ok, err := r.consider(ctx, t, target)
			if err != nil {
				metrics.ScheduledDecisions.WithLabelValues(metrics.OutcomeFailed).Inc()
				logger.Error("scheduled message failed", "user", target.User.ID, "platform", platform, "error", err)
				r.raise("scheduler", fmt.Sprintf("scheduled message to %s on %s failed", target.User.ID, platform))
				continue
			}
			if ok {
				sent++
			}
		}
	}
	return sent
}

func (r *Runner) consider(ctx context.Context, t Deliverer, target chordialmem.ScheduleTarget) (bool, error) {
	platform := t.Platform()
	user := target.User
	now := r.now()

	last, err := r.history.Last(ctx, user.ID, platform)
	if err != nil {
		return false, fmt.Errorf("load last message: %w", err)
	}

	sess := r.sessions.Get(session.Key(platform, user.ID))
	if _, loaded := sess.Scheduled(); !loaded {
		sess.Load(contextFrom(last))
	}

	decision := r.policy.Evaluate(user, last, now)
	if !decision.Send {
		metrics.ScheduledDecisions.WithLabelValues(metrics.OutcomeSkipped).Inc()
		logger.Debug("not sending scheduled message", "user", user.ID, "platform", platform,
			"reason", decision.Reason, "next", decision.NextEligible)
		return false, nil
	}

	text, err := r.generator.GenerateScheduled(ctx, platform, target.PlatformUserID)
	if err != nil {
		return false, err
	}
	if text == "" {
		return false, nil
	}

	if err := t.Deliver(ctx, target.PlatformUserID, text); err != nil {
		return false, fmt.Errorf("deliver: %w", err)
	}

	policy := r.policy.ForUser(user.Schedule)
	sess.MarkScheduledSent(now, now.Add(policy.IgnoredBackoff))
	metrics.ScheduledDecisions.WithLabelValues(metrics.OutcomeSent).Inc()
	logger.Info("sent scheduled message", "user", user.ID, "platform", platform, "reason", decision.Reason)

	return true, nil
}

func (r *Runner) raise(component, message string) {
	if r.alert != nil {
		r.alert(component, message)
	}
}

func contextFrom(last *conversation.Message) session.ScheduledContext {
	if last == nil {
		return session.ScheduledContext{}
	}
	sc := session.ScheduledContext{
		LastWasScheduled: last.Role == conversation.RoleAssistant && last.MessageType == conversation.TypeScheduled,
	}
	if sc.LastWasScheduled {
		sc.LastScheduledAt = last.CreatedAt
	}
	return sc
}
