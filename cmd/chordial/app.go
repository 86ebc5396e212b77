package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bowerhall/chordial/internal/budget"
	"github.com/bowerhall/chordial/internal/config"
	"github.com/bowerhall/chordial/internal/conversation"
	"github.com/bowerhall/chordial/internal/cron"
	"github.com/bowerhall/chordial/internal/embedder"
	"github.com/bowerhall/chordial/internal/history"
	"github.com/bowerhall/chordial/internal/llm"
	"github.com/bowerhall/chordial/internal/logger"
	"github.com/bowerhall/chordial/internal/prompt"
	"github.com/bowerhall/chordial/internal/storage"
	"github.com/bowerhall/chordial/pkg/chordialmem"
)

// stores are the SQLite-backed stores every command shares
type stores struct {
	memory *chordialmem.Store
	conv   *conversation.Store
	usage  *budget.Store
	runs   *cron.Store
}

func openStores(cfg *config.Config) (*stores, error) {
	memory, err := chordialmem.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open memory: %w", err)
	}

	conv, err := conversation.NewStore(memory.DB(), conversation.Options{
		CacheSize: cfg.Tuning.RawCacheSize,
		Retention: cfg.Tuning.RawRetention,
	})
	if err != nil {
		memory.Close()
		return nil, fmt.Errorf("conversation store: %w", err)
	}

	usage, err := budget.NewStore(memory.DB(), cfg.Location())
	if err != nil {
		memory.Close()
		return nil, fmt.Errorf("usage store: %w", err)
	}

	runs, err := cron.NewStore(memory.DB())
	if err != nil {
		memory.Close()
		return nil, fmt.Errorf("maintenance store: %w", err)
	}

	return &stores{memory: memory, conv: conv, usage: usage, runs: runs}, nil
}

func (s *stores) Close() error {
	s.memory.Wait()
	return s.memory.Close()
}

func (s *stores) setEmbedder(cfg config.EmbedderConfig) error {
	emb, err := embedder.New(embedder.Config{
		Provider: cfg.Provider,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
	})
	if err != nil {
		return err
	}

	if emb != nil {
		s.memory.SetEmbedder(emb)
		logger.Debug("embedder configured", "provider", cfg.Provider)
	}
	return nil
}

func newLLM(cfg config.LLMConfig, meter llm.Meter) (llm.LLM, error) {
	model, err := llm.New(llm.Config{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	return llm.Metered(model, meter), nil
}

// newEngine builds the history engine around the compressor model
func newEngine(cfg *config.Config, st *stores, meter llm.Meter) (*history.Engine, error) {
	compressorLLM, err := newLLM(cfg.Compressor, meter)
	if err != nil {
		return nil, fmt.Errorf("create compressor llm: %w", err)
	}

	compressor := history.NewCompressor(compressorLLM, st.conv, cfg.Tuning.CompressMinLength)
	summarizer := history.NewSummarizer(compressorLLM, st.conv, cfg.Tuning.SummaryMinMessages, cfg.Tuning.SummaryMaxMessages)

	return history.NewEngine(st.conv, compressor, summarizer), nil
}

type maintenanceJob struct {
	name string
	spec string
	fn   cron.JobFunc
}

// newMaintenance registers the maintenance jobs. The backup job is only added
// when object storage is configured and reachable.
func newMaintenance(ctx context.Context, cfg *config.Config, st *stores, engine *history.Engine, promptLog *prompt.Log, alert cron.AlertFunc) (*cron.Runner, error) {
	runner := cron.NewRunner(st.runs, cfg.Location(), alert)
	m := cfg.Maintenance

	jobs := []maintenanceJob{
		{cron.JobSummaries, m.SummaryCron, cron.SummaryJob(engine.Summarizer())},
		{cron.JobRetention, m.RetentionCron, cron.RetentionJob(st.conv)},
		{cron.JobGauges, m.GaugeCron, cron.GaugeJob(st.memory)},
	}

	if client := newStorage(ctx, cfg.Storage); client != nil {
		backup := storage.NewBackup(client, st.memory.DB(), promptLog.Files, cfg.Storage.Keep)
		jobs = append(jobs, maintenanceJob{cron.JobBackup, m.BackupCron, cron.BackupJob(backup)})
	}

	for _, j := range jobs {
		if err := runner.Add(j.name, j.spec, j.fn); err != nil {
			return nil, err
		}
	}

	return runner, nil
}

func newStorage(ctx context.Context, cfg config.StorageConfig) *storage.Client {
	if !cfg.Enabled {
		return nil
	}

	client, err := storage.NewClient(storage.Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
	})
	if err != nil {
		logger.Error("failed to create storage client", "error", err)
		return nil
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Init(initCtx); err != nil {
		logger.Error("failed to init storage bucket", "error", err)
		return nil
	}

	logger.Info("storage enabled", "endpoint", cfg.Endpoint, "bucket", client.Bucket())
	return client
}

// usageMeter records one-shot command usage against the daily budget
func (s *stores) usageMeter(cfg *config.Config) *budget.Tracker {
	tracker := budget.NewTracker(budget.Config{
		DailyLimit: cfg.Budget.DailyLimit,
		WarnAt:     cfg.Budget.WarnAt,
		Timezone:   cfg.Location(),
	}, nil, nil)
	tracker.SetStore(s.usage)
	return tracker
}
