package config

type Config struct {
	DBPath            string
	Timezone          string
	PromptLogDir      string
	PersonalitiesFile string
	LLM               LLMConfig
	Compressor        LLMConfig
	Embedder          EmbedderConfig
	Bots              MultiBot
	Storage           StorageConfig
	Budget            BudgetConfig
	Alerts            AlertsConfig
	Ops               OpsConfig
	Maintenance       MaintenanceConfig
	Tuning            Tuning
}

type LLMConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

type EmbedderConfig struct {
	Provider string
	BaseURL  string
	Model    string
}

type BotInstance struct {
	Enabled bool
	Token   string
}

type MultiBot struct {
	Telegram BotInstance
	Discord  BotInstance
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Keep      int
}

type BudgetConfig struct {
	Enabled    bool
	DailyLimit int
	WarnAt     float64
}

// AlertsConfig names where operator alerts go: a chat on one platform
type AlertsConfig struct {
	Platform string
	ChatID   string
}

type OpsConfig struct {
	Addr string
}

// MaintenanceConfig holds the cron expressions of the maintenance jobs. An
// empty expression disables that job.
type MaintenanceConfig struct {
	SummaryCron   string
	RetentionCron string
	BackupCron    string
	GaugeCron     string
}
