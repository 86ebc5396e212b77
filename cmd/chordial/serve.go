package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bowerhall/chordial/internal/alerts"
	"github.com/bowerhall/chordial/internal/bot"
	"github.com/bowerhall/chordial/internal/budget"
	"github.com/bowerhall/chordial/internal/chat"
	"github.com/bowerhall/chordial/internal/config"
	"github.com/bowerhall/chordial/internal/logger"
	"github.com/bowerhall/chordial/internal/prompt"
	"github.com/bowerhall/chordial/internal/scheduler"
	"github.com/bowerhall/chordial/internal/server"
	"github.com/bowerhall/chordial/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bots, the scheduler and maintenance",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.setEmbedder(cfg.Embedder); err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}

	// set once the bots exist; a nil alerter drops alerts
	var alerter *alerts.Alerter

	tracker := budget.NewTracker(
		budget.Config{
			DailyLimit: cfg.Budget.DailyLimit,
			WarnAt:     cfg.Budget.WarnAt,
			Timezone:   cfg.Location(),
		},
		func(used, limit int) {
			logger.Warn("budget warning", "used", used, "limit", limit)
			alerter.Warn("budget", fmt.Sprintf("%d/%d tokens used (%.0f%%). Approaching daily limit.", used, limit, float64(used)/float64(limit)*100), nil)
		},
		func(used, limit int) {
			logger.Error("budget exceeded", "used", used, "limit", limit)
			alerter.Critical("budget", fmt.Sprintf("%d/%d tokens used. Responses disabled until tomorrow.", used, limit), nil)
		},
	)
	tracker.SetStore(st.usage)
	if cfg.Budget.Enabled {
		logger.Info("budget tracking enabled", "limit", cfg.Budget.DailyLimit, "warnAt", cfg.Budget.WarnAt)
	}

	model, err := newLLM(cfg.LLM, tracker)
	if err != nil {
		return fmt.Errorf("create llm: %w", err)
	}

	engine, err := newEngine(cfg, st, tracker)
	if err != nil {
		return err
	}
	defer engine.Wait()

	promptLog, err := prompt.NewLog(cfg.PromptLogDir)
	if err != nil {
		return err
	}

	personalities, err := prompt.LoadPersonalities(cfg.PersonalitiesFile)
	if err != nil {
		return err
	}

	assembler := prompt.NewAssembler(st.memory, personalities, cfg.Tuning.MaxPromptMemories, promptLog)
	sessions := session.NewStore()

	orchestrator := chat.New(model, st.memory, engine, assembler, sessions, chat.Config{
		HistoryLimit: cfg.Tuning.HistoryLimit,
		FullMessages: cfg.Tuning.HistoryFullMessages,
		Policy:       cfg.Tuning.Policy(),
	})

	bots, err := newBots(cfg.Bots, orchestrator)
	if err != nil {
		return err
	}

	alerter = newAlerter(cfg.Alerts, bots)
	orchestrator.SetAlerter(alerter)

	deliverers := make([]scheduler.Deliverer, 0, len(bots))
	for _, b := range bots {
		deliverers = append(deliverers, b)
	}

	dms := scheduler.NewRunner(
		scheduler.Config{Policy: cfg.Tuning.Policy(), Tick: cfg.Tuning.Tick()},
		st.memory,
		st.conv,
		orchestrator,
		sessions,
		func(component, message string) {
			alerter.Warn(component, message, nil)
		},
		deliverers...,
	)

	maintenance, err := newMaintenance(ctx, cfg, st, engine, promptLog, func(component, message string, err error) {
		alerter.Critical(component, message, err)
	})
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	for _, b := range bots {
		run(func() {
			if err := b.Start(ctx); err != nil {
				logger.Error("bot stopped", "platform", b.Platform(), "error", err)
				alerter.Critical("bot", b.Platform()+" stopped", err)
			}
		})
	}

	run(func() { dms.Run(ctx) })
	run(func() { maintenance.Start(ctx) })

	if cfg.Ops.Addr != "" {
		ops := server.New(cfg.Ops.Addr, counts(st, sessions, tracker))
		run(func() {
			if err := ops.Run(ctx); err != nil {
				logger.Error("ops server stopped", "error", err)
			}
		})
	}

	embedderProvider := cfg.Embedder.Provider
	if embedderProvider == "" {
		embedderProvider = "none"
	}

	logger.Info("chordial started",
		"bots", len(bots),
		"llm", cfg.LLM.Provider,
		"compressor", cfg.Compressor.Model,
		"embedder", embedderProvider,
		"db", cfg.DBPath,
		"tick", cfg.Tuning.Tick(),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("shutdown timed out waiting for workers")
	}

	return nil
}

func newBots(cfg config.MultiBot, handler bot.Handler) ([]bot.Bot, error) {
	var bots []bot.Bot

	if cfg.Telegram.Enabled {
		b, err := bot.NewTelegram(cfg.Telegram.Token, handler)
		if err != nil {
			return nil, fmt.Errorf("create telegram bot: %w", err)
		}
		bots = append(bots, b)
	}

	if cfg.Discord.Enabled {
		b, err := bot.NewDiscord(cfg.Discord.Token, handler)
		if err != nil {
			return nil, fmt.Errorf("create discord bot: %w", err)
		}
		bots = append(bots, b)
	}

	return bots, nil
}

// newAlerter sends operator alerts to ALERT_CHAT_ID on the alert platform. It
// returns nil when no chat is configured.
func newAlerter(cfg config.AlertsConfig, bots []bot.Bot) *alerts.Alerter {
	if cfg.ChatID == "" {
		return nil
	}

	for _, b := range bots {
		if b.Platform() != cfg.Platform {
			continue
		}

		notifier := b
		logger.Info("error alerting enabled", "platform", cfg.Platform, "chatID", cfg.ChatID)

		return alerts.New(func(message string) {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if err := notifier.Deliver(ctx, cfg.ChatID, message); err != nil {
				logger.Error("alert delivery failed", "error", err, "chatID", cfg.ChatID)
			}
		}, alerts.DefaultCooldown)
	}

	logger.Warn("alert platform has no bot, alerts will only be logged", "platform", cfg.Platform)
	return nil
}

func counts(st *stores, sessions *session.Store, tracker *budget.Tracker) server.CountFunc {
	return func(ctx context.Context) (server.Counts, error) {
		var c server.Counts
		var err error

		if c.Users, err = st.memory.CountUsers(ctx); err != nil {
			return c, err
		}
		if c.Messages, err = st.conv.CountMessages(ctx); err != nil {
			return c, err
		}
		if c.ActiveMemories, err = st.memory.CountActiveMemories(ctx); err != nil {
			return c, err
		}

		c.Sessions = sessions.Len()
		c.TokensUsed, c.TokenLimit = tracker.Usage()

		return c, nil
	}
}
