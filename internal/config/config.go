package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Gmail       GmailConfig     `mapstructure:"gmail"`
	Sheets      SheetsConfig    `mapstructure:"sheets"`
	Generator   GeneratorConfig `mapstructure:"generator"`
	Dispatch    DispatchConfig  `mapstructure:"dispatch"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	Artifacts   ArtifactsConfig `mapstructure:"artifacts"`
	Institution string          `mapstructure:"institution"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration. Driver selects
// between the embedded sqlite store and MySQL.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// GmailConfig holds Gmail API credentials for sending digests
type GmailConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RefreshToken string   `mapstructure:"refresh_token"`
	Sender       string   `mapstructure:"sender"`
	CC           []string `mapstructure:"cc"`
}

// SheetsConfig holds the intake spreadsheet settings for roster sync
type SheetsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	SpreadsheetID string `mapstructure:"spreadsheet_id"`
	ReadRange     string `mapstructure:"read_range"`
	FallbackRange string `mapstructure:"fallback_range"`
}

// GeneratorConfig holds digest generation settings
type GeneratorConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// DispatchConfig holds batch dispatch pacing and dedup settings
type DispatchConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	StaggerDelay time.Duration `mapstructure:"stagger_delay"`
	BatchDelay   time.Duration `mapstructure:"batch_delay"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
	DedupWindow  time.Duration `mapstructure:"dedup_window"`
}

// SchedulerConfig holds the cron automation settings for serve mode
type SchedulerConfig struct {
	CronSpec  string `mapstructure:"cron_spec"`
	SyncOnRun bool   `mapstructure:"sync_on_run"`
}

// ArtifactsConfig holds digest artifact file settings
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()

	// Bind environment variables
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "data/rfp_digest.db")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)

	viper.SetDefault("sheets.enabled", false)
	viper.SetDefault("sheets.read_range", "Form Responses 1!A1:Z1000")
	viper.SetDefault("sheets.fallback_range", "A1:Z1000")

	viper.SetDefault("generator.model", "gemini-1.5-flash")
	viper.SetDefault("generator.max_retries", 3)
	viper.SetDefault("generator.retry_delay_base", "5s")
	viper.SetDefault("generator.timeout", "120s")

	viper.SetDefault("dispatch.batch_size", 5)
	viper.SetDefault("dispatch.stagger_delay", "2s")
	viper.SetDefault("dispatch.batch_delay", "10s")
	viper.SetDefault("dispatch.stale_after", "2h")
	viper.SetDefault("dispatch.dedup_window", "168h")

	viper.SetDefault("scheduler.cron_spec", "0 0 7 * * *")
	viper.SetDefault("scheduler.sync_on_run", true)

	viper.SetDefault("artifacts.dir", "data/digests")
	viper.SetDefault("institution", "Innovation and Commercialization Center")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.driver", "DB_DRIVER")
	viper.BindEnv("database.path", "DB_PATH")
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")

	// Gmail
	viper.BindEnv("gmail.client_id", "GMAIL_CLIENT_ID")
	viper.BindEnv("gmail.client_secret", "GMAIL_CLIENT_SECRET")
	viper.BindEnv("gmail.refresh_token", "GMAIL_REFRESH_TOKEN")
	viper.BindEnv("gmail.sender", "GMAIL_SENDER")
	viper.BindEnv("gmail.cc", "GMAIL_CC")

	// Sheets
	viper.BindEnv("sheets.enabled", "SHEETS_ENABLED")
	viper.BindEnv("sheets.spreadsheet_id", "SHEETS_SPREADSHEET_ID")
	viper.BindEnv("sheets.read_range", "SHEETS_READ_RANGE")

	// Generator
	viper.BindEnv("generator.api_key", "GEMINI_API_KEY")
	viper.BindEnv("generator.model", "GEMINI_MODEL")
	viper.BindEnv("generator.max_retries", "GENERATOR_MAX_RETRIES")
	viper.BindEnv("generator.retry_delay_base", "GENERATOR_RETRY_DELAY_BASE")
	viper.BindEnv("generator.timeout", "GENERATOR_TIMEOUT")

	// Dispatch
	viper.BindEnv("dispatch.batch_size", "DISPATCH_BATCH_SIZE")
	viper.BindEnv("dispatch.stagger_delay", "DISPATCH_STAGGER_DELAY")
	viper.BindEnv("dispatch.batch_delay", "DISPATCH_BATCH_DELAY")
	viper.BindEnv("dispatch.stale_after", "DISPATCH_STALE_AFTER")
	viper.BindEnv("dispatch.dedup_window", "DISPATCH_DEDUP_WINDOW")

	// Scheduler
	viper.BindEnv("scheduler.cron_spec", "SCHEDULER_CRON_SPEC")
	viper.BindEnv("scheduler.sync_on_run", "SCHEDULER_SYNC_ON_RUN")

	// Artifacts
	viper.BindEnv("artifacts.dir", "ARTIFACTS_DIR")
	viper.BindEnv("institution", "INSTITUTION")
}

// GetDSN returns the MySQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	case "mysql":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required for mysql")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Gmail.ClientID == "" || c.Gmail.ClientSecret == "" || c.Gmail.RefreshToken == "" {
		return fmt.Errorf("Gmail OAuth2 credentials are required")
	}
	if c.Gmail.Sender == "" {
		return fmt.Errorf("Gmail sender address is required")
	}

	if c.Generator.APIKey == "" {
		return fmt.Errorf("generator API key is required")
	}
	if c.Generator.MaxRetries < 1 {
		return fmt.Errorf("generator max retries must be at least 1")
	}

	if c.Dispatch.BatchSize < 1 {
		return fmt.Errorf("dispatch batch size must be at least 1")
	}

	if c.Sheets.Enabled && c.Sheets.SpreadsheetID == "" {
		return fmt.Errorf("spreadsheet id is required when sheets sync is enabled")
	}

	if c.Scheduler.CronSpec == "" {
		return fmt.Errorf("scheduler cron spec is required")
	}

	return nil
}
