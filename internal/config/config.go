package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bowerhall/chordial/internal/cron"
	"github.com/bowerhall/chordial/internal/llm"
)

// Load reads the configuration from the environment. Missing credentials are
// not an error here; Validate checks what serving needs.
func Load() (*Config, error) {
	dbPath := os.Getenv("CHORDIAL_DB")
	if dbPath == "" {
		dbPath = "chordial.db"
	}

	timezone := os.Getenv("TZ")
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("invalid TZ %q: %w", timezone, err)
	}

	llmConfig, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}

	compressorConfig, err := loadCompressorConfig(llmConfig)
	if err != nil {
		return nil, err
	}

	tuning, err := LoadTuning()
	if err != nil {
		return nil, err
	}

	maintenance, err := loadMaintenanceConfig()
	if err != nil {
		return nil, err
	}

	bots := loadMultiBotConfig()

	return &Config{
		DBPath:            dbPath,
		Timezone:          timezone,
		PromptLogDir:      os.Getenv("PROMPT_LOG_DIR"),
		PersonalitiesFile: os.Getenv("PERSONALITIES_FILE"),
		LLM:               llmConfig,
		Compressor:        compressorConfig,
		Embedder:          loadEmbedderConfig(),
		Bots:              bots,
		Storage:           loadStorageConfig(),
		Budget:            loadBudgetConfig(),
		Alerts:            loadAlertsConfig(bots),
		Ops:               OpsConfig{Addr: os.Getenv("OPS_ADDR")},
		Maintenance:       maintenance,
		Tuning:            tuning,
	}, nil
}

// Validate checks the settings serve cannot run without
func (c *Config) Validate() error {
	var errs []error

	if c.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("%s not set", EnvKeyForProvider(c.LLM.Provider)))
	}
	if c.Compressor.APIKey == "" && c.Compressor.Provider != c.LLM.Provider {
		errs = append(errs, fmt.Errorf("%s not set for the compressor", EnvKeyForProvider(c.Compressor.Provider)))
	}
	if !c.Bots.Telegram.Enabled && !c.Bots.Discord.Enabled {
		errs = append(errs, errors.New("no bot configured: set TELEGRAM_TOKEN and/or DISCORD_TOKEN"))
	}

	return errors.Join(errs...)
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func loadMaintenanceConfig() (MaintenanceConfig, error) {
	m := MaintenanceConfig{
		SummaryCron:   cronSpec("MAINTENANCE_SUMMARY_CRON", "*/30 * * * *"),
		RetentionCron: cronSpec("MAINTENANCE_RETENTION_CRON", "0 4 * * *"),
		BackupCron:    cronSpec("MAINTENANCE_BACKUP_CRON", "0 3 * * *"),
		GaugeCron:     cronSpec("MAINTENANCE_GAUGE_CRON", "*/5 * * * *"),
	}

	for _, spec := range []string{m.SummaryCron, m.RetentionCron, m.BackupCron, m.GaugeCron} {
		if spec == "" {
			continue
		}
		if err := cron.Validate(spec); err != nil {
			return MaintenanceConfig{}, err
		}
	}

	return m, nil
}

func loadStorageConfig() StorageConfig {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "minio:9000"
	}

	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")

	keep := 14
	if n, err := strconv.Atoi(os.Getenv("BACKUP_KEEP")); err == nil && n > 0 {
		keep = n
	}

	return StorageConfig{
		Enabled:   accessKey != "" && secretKey != "",
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		Bucket:    os.Getenv("MINIO_BUCKET"),
		Keep:      keep,
	}
}

func loadBudgetConfig() BudgetConfig {
	var dailyLimit int
	if limit, err := strconv.Atoi(os.Getenv("BUDGET_DAILY_LIMIT")); err == nil && limit > 0 {
		dailyLimit = limit
	}

	warnAt := 0.8 // default 80%
	if warn, err := strconv.ParseFloat(os.Getenv("BUDGET_WARN_AT"), 64); err == nil && warn > 0 && warn < 1 {
		warnAt = warn
	}

	return BudgetConfig{
		Enabled:    dailyLimit > 0,
		DailyLimit: dailyLimit,
		WarnAt:     warnAt,
	}
}

func loadMultiBotConfig() MultiBot {
	telegramToken := os.Getenv("TELEGRAM_TOKEN")
	discordToken := os.Getenv("DISCORD_TOKEN")

	return MultiBot{
		Telegram: BotInstance{
			Enabled: telegramToken != "",
			Token:   telegramToken,
		},
		Discord: BotInstance{
			Enabled: discordToken != "",
			Token:   discordToken,
		},
	}
}

func loadAlertsConfig(bots MultiBot) AlertsConfig {
	platform := os.Getenv("ALERT_PLATFORM")
	if platform == "" {
		platform = "telegram"
		if !bots.Telegram.Enabled && bots.Discord.Enabled {
			platform = "discord"
		}
	}

	return AlertsConfig{
		Platform: platform,
		ChatID:   os.Getenv("ALERT_CHAT_ID"),
	}
}

func loadEmbedderConfig() EmbedderConfig {
	return EmbedderConfig{
		Provider: os.Getenv("EMBEDDER_PROVIDER"),
		BaseURL:  os.Getenv("EMBEDDER_BASE_URL"),
		Model:    os.Getenv("EMBEDDER_MODEL"),
	}
}

func loadLLMConfig() (LLMConfig, error) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		provider = DetectProvider()
	}
	if !llm.IsKnownProvider(provider) {
		return LLMConfig{}, fmt.Errorf("unknown LLM_PROVIDER: %s", provider)
	}

	return LLMConfig{
		Provider: provider,
		APIKey:   getAPIKey(provider, "LLM"),
		Model:    os.Getenv("LLM_MODEL"),
		BaseURL:  os.Getenv("LLM_BASE_URL"),
	}, nil
}

// loadCompressorConfig defaults to the conversation provider with a small model
func loadCompressorConfig(main LLMConfig) (LLMConfig, error) {
	provider := os.Getenv("COMPRESSOR_PROVIDER")
	if provider == "" {
		provider = main.Provider
	}
	if !llm.IsKnownProvider(provider) {
		return LLMConfig{}, fmt.Errorf("unknown COMPRESSOR_PROVIDER: %s", provider)
	}

	model := os.Getenv("COMPRESSOR_MODEL")
	if model == "" {
		model = DefaultCompressorModel(provider)
	}

	apiKey := getAPIKey(provider, "COMPRESSOR")
	baseURL := os.Getenv("COMPRESSOR_BASE_URL")
	if provider == main.Provider {
		if apiKey == "" {
			apiKey = main.APIKey
		}
		if baseURL == "" {
			baseURL = main.BaseURL
		}
	}

	return LLMConfig{
		Provider: provider,
		APIKey:   apiKey,
		Model:    model,
		BaseURL:  baseURL,
	}, nil
}

// getAPIKey prefers {PREFIX}_API_KEY, then the provider's own variable
func getAPIKey(provider, prefix string) string {
	if key := os.Getenv(prefix + "_API_KEY"); key != "" {
		return key
	}

	if provider == "ollama" {
		// Ollama doesn't need an API key
		return "ollama"
	}

	return os.Getenv(EnvKeyForProvider(provider))
}

// cronSpec reads a cron expression, where "off" disables the job
func cronSpec(key, fallback string) string {
	v := os.Getenv(key)
	switch v {
	case "":
		return fallback
	case "off":
		return ""
	default:
		return v
	}
}
