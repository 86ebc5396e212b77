package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "LLM_PROVIDER", "LLM_API_KEY", "LLM_MODEL",
		"COMPRESSOR_PROVIDER", "COMPRESSOR_MODEL", "COMPRESSOR_API_KEY",
		"TELEGRAM_TOKEN", "DISCORD_TOKEN", "ALERT_PLATFORM", "BUDGET_DAILY_LIMIT", "BUDGET_WARN_AT",
		"MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MAINTENANCE_BACKUP_CRON", "QUIET_HOURS_START", "TZ",
	} {
		// Setenv restores the original value after the test
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name      string
		openai    string
		anthropic string
		want      string
	}{
		{"openai key", "sk-test", "", "openai"},
		{"anthropic key", "", "sk-ant", "claude"},
		{"both prefers openai", "sk-test", "sk-ant", "openai"},
		{"neither", "", "", "openai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", tt.openai)
			t.Setenv("ANTHROPIC_API_KEY", tt.anthropic)

			if got := DetectProvider(); got != tt.want {
				t.Errorf("DetectProvider() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnvKeyForProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"claude", "ANTHROPIC_API_KEY"},
		{"openai", "OPENAI_API_KEY"},
		{"kimi", "KIMI_API_KEY"},
		{"ollama", ""},
		{"mistral", "MISTRAL_API_KEY"},
	}

	for _, tt := range tests {
		if got := EnvKeyForProvider(tt.provider); got != tt.want {
			t.Errorf("EnvKeyForProvider(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TELEGRAM_TOKEN", "tg")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DBPath != "chordial.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.APIKey != "sk-test" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.Compressor.Model != "gpt-4o-mini" || cfg.Compressor.APIKey != "sk-test" {
		t.Errorf("Compressor = %+v", cfg.Compressor)
	}
	if cfg.Budget.Enabled {
		t.Error("budget should be disabled without a limit")
	}
	if cfg.Storage.Enabled {
		t.Error("storage should be disabled without credentials")
	}
	if cfg.Alerts.Platform != "telegram" {
		t.Errorf("Alerts.Platform = %q", cfg.Alerts.Platform)
	}
	if cfg.Maintenance.BackupCron != "0 3 * * *" {
		t.Errorf("BackupCron = %q", cfg.Maintenance.BackupCron)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadTuningDefaults(t *testing.T) {
	clearEnv(t)

	tuning, err := LoadTuning()
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}

	policy := tuning.Policy()
	if policy.Interval != time.Hour || policy.IgnoredBackoff != 24*time.Hour {
		t.Errorf("policy = %+v", policy)
	}
	if policy.QuietStart != 21 || policy.QuietEnd != 8 {
		t.Errorf("quiet hours = %d-%d", policy.QuietStart, policy.QuietEnd)
	}
	if tuning.Tick() != 5*time.Minute {
		t.Errorf("tick = %v", tuning.Tick())
	}
	if tuning.HistoryLimit != 15 || tuning.HistoryFullMessages != 5 {
		t.Errorf("history = %d/%d", tuning.HistoryLimit, tuning.HistoryFullMessages)
	}
}

func TestLoadTuningRejectsBadHour(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUIET_HOURS_START", "25")

	if _, err := LoadTuning(); err == nil {
		t.Error("expected error for hour 25")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "nope")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "unknown LLM_PROVIDER") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadRejectsBadCron(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAINTENANCE_BACKUP_CRON", "every night")

	if _, err := Load(); err == nil {
		t.Error("expected cron validation error")
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"OPENAI_API_KEY", "no bot configured"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestBudgetConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("BUDGET_DAILY_LIMIT", "50000")
	t.Setenv("BUDGET_WARN_AT", "0.5")

	b := loadBudgetConfig()
	if !b.Enabled || b.DailyLimit != 50000 || b.WarnAt != 0.5 {
		t.Errorf("budget = %+v", b)
	}
}
