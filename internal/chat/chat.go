// Package chat is the glue between transports and the core: it resolves
// users, runs onboarding and commands, and drives the
// history → prompt → generate → history pipeline for every turn.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bowerhall/chordial/internal/conversation"
	"github.com/bowerhall/chordial/internal/history"
	"github.com/bowerhall/chordial/internal/llm"
	"github.com/bowerhall/chordial/internal/logger"
	"github.com/bowerhall/chordial/internal/metrics"
	"github.com/bowerhall/chordial/internal/prompt"
	"github.com/bowerhall/chordial/internal/session"
	"github.com/bowerhall/chordial/pkg/chordialmem"
)

func New(model llm.LLM, users *chordialmem.Store, engine *history.Engine, assembler *prompt.Assembler, sessions *session.Store, cfg Config) *Orchestrator {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = history.DefaultHistoryLimit
	}
	if cfg.FullMessages <= 0 {
		cfg.FullMessages = history.DefaultFullMessages
	}
	if sessions == nil {
		sessions = session.NewStore()
	}

	return &Orchestrator{
		llm:          model,
		users:        users,
		history:      engine,
		assembler:    assembler,
		sessions:     sessions,
		policy:       cfg.Policy,
		historyLimit: cfg.HistoryLimit,
		fullMessages: cfg.FullMessages,
		now:          time.Now,
	}
}

// ProcessIncoming handles one inbound message and returns the reply. Failures
// never escape: the user gets FallbackReply and the cause is logged.
func (o *Orchestrator) ProcessIncoming(ctx context.Context, platform, platformUserID, username, content string) string {
	logger.Debug("message received", "platform", platform, "platform_user", platformUserID)

	reply, err := o.processIncoming(ctx, platform, platformUserID, username, content)
	if err != nil {
		logger.Error("failed to process message", "platform", platform, "platform_user", platformUserID, "error", err)
		metrics.GenerationFailures.WithLabelValues(prompt.TypeConversation).Inc()
		if !errors.Is(err, llm.ErrBudgetExceeded) {
			o.alert("chat", "Message processing failed", err)
		}
		return FallbackReply
	}

	return reply
}

func (o *Orchestrator) processIncoming(ctx context.Context, platform, platformUserID, username, content string) (string, error) {
	now := o.now()

	user, created, err := o.users.GetOrCreateUser(ctx, platform, platformUserID, username, now)
	if err != nil {
		return "", fmt.Errorf("resolve user: %w", err)
	}

	sess := o.sessions.Get(session.Key(platform, user.ID))
	sess.Lock()
	defer sess.Release()

	if created {
		logger.Info("new user, starting onboarding", "user", user.ID, "platform", platform)
		return o.startOnboarding(ctx, user)
	}

	if !user.Onboarded() || user.OnboardingState != chordialmem.OnboardingNone {
		return o.onboard(ctx, user, content, now)
	}

	if reply, handled, err := o.command(ctx, user, content, now); handled {
		return reply, err
	}

	loc := user.Location()

	// history is read before the inbound message is appended so the current
	// message is only rendered once, as the trailing "(now)" turn
	entries, err := o.history.Hybrid(ctx, user.ID, platform, history.HybridOptions{
		Limit:           o.historyLimit,
		FullCount:       o.fullMessages,
		IncludeTemporal: true,
		Location:        loc,
	}, now)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	if _, err := o.history.Append(ctx, user.ID, platform, conversation.RoleUser, content, conversation.TypeConversation, now); err != nil {
		return "", fmt.Errorf("append user message: %w", err)
	}

	messages := o.assembler.Build(ctx, prompt.Request{
		Type:        prompt.TypeConversation,
		UserID:      user.ID,
		UserName:    user.PreferredName,
		Personality: user.Personality,
		History:     entries,
		Summaries:   o.history.SummaryContext(ctx, user.ID, platform, 0),
		Current:     content,
		Now:         now,
		Location:    loc,
	})

	reply, err := o.generate(ctx, prompt.TypeConversation, messages)
	if err != nil {
		return "", err
	}

	if _, err := o.history.Append(ctx, user.ID, platform, conversation.RoleAssistant, reply, conversation.TypeConversation, o.now()); err != nil {
		return "", fmt.Errorf("append reply: %w", err)
	}

	sess.MarkActivity(now.Add(o.policy.ForUser(user.Schedule).Interval))

	return reply, nil
}

// GenerateScheduled writes and persists a proactive message. It returns ""
// without error when the user is unknown, not onboarded, or busy.
func (o *Orchestrator) GenerateScheduled(ctx context.Context, platform, platformUserID string) (string, error) {
	user, err := o.users.FindUser(ctx, platform, platformUserID)
	if errors.Is(err, chordialmem.ErrUserNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve user: %w", err)
	}

	if !user.Onboarded() {
		logger.Info("skipping scheduled message, user still onboarding", "user", user.ID)
		return "", nil
	}

	sess := o.sessions.Get(session.Key(platform, user.ID))
	if !sess.TryAcquire() {
		logger.Debug("session busy, skipping scheduled message", "user", user.ID, "platform", platform)
		return "", nil
	}
	defer sess.Release()

	now := o.now()
	loc := user.Location()

	entries, err := o.history.Hybrid(ctx, user.ID, platform, history.HybridOptions{
		Limit:           o.historyLimit,
		FullCount:       o.fullMessages,
		IncludeTemporal: true,
		Location:        loc,
	}, now)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	messages := o.assembler.Build(ctx, prompt.Request{
		Type:        prompt.TypeScheduled,
		UserID:      user.ID,
		UserName:    user.PreferredName,
		Personality: user.Personality,
		History:     entries,
		Summaries:   o.history.SummaryContext(ctx, user.ID, platform, 0),
		Now:         now,
		Location:    loc,
	})

	text, err := o.generate(ctx, prompt.TypeScheduled, messages)
	if err != nil {
		metrics.GenerationFailures.WithLabelValues(prompt.TypeScheduled).Inc()
		return "", err
	}

	// persisted before delivery; the scheduled tag drives the next backoff decision
	if _, err := o.history.Append(ctx, user.ID, platform, conversation.RoleAssistant, text, conversation.TypeScheduled, o.now()); err != nil {
		return "", fmt.Errorf("append scheduled message: %w", err)
	}

	return text, nil
}

func (o *Orchestrator) generate(ctx context.Context, kind string, messages []llm.Message) (string, error) {
	if o.llm == nil || !o.llm.Available() {
		return "", llm.ErrUnavailable
	}

	start := time.Now()
	resp, err := o.llm.Generate(ctx, messages)
	metrics.GenerationSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", kind, err)
	}

	if resp.Content == "" {
		return "", fmt.Errorf("generate %s: empty response", kind)
	}

	return resp.Content, nil
}

func (o *Orchestrator) alert(component, message string, err error) {
	if o.alerts != nil {
		o.alerts.Critical(component, message, err)
	}
}
