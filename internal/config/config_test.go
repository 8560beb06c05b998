package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Driver: "sqlite", Path: "data/test.db"},
		Gmail: GmailConfig{
			ClientID:     "id",
			ClientSecret: "secret",
			RefreshToken: "token",
			Sender:       "icc@x.edu",
		},
		Generator: GeneratorConfig{APIKey: "key", MaxRetries: 3},
		Dispatch:  DispatchConfig{BatchSize: 5},
		Scheduler: SchedulerConfig{CronSpec: "0 0 7 * * *"},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database path"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, "unsupported database driver"},
		{"mysql without host", func(c *Config) {
			c.Database.Driver = "mysql"
			c.Database.User = "u"
			c.Database.DBName = "d"
		}, "host, user, and dbname"},
		{"missing gmail creds", func(c *Config) { c.Gmail.RefreshToken = "" }, "Gmail OAuth2 credentials"},
		{"missing sender", func(c *Config) { c.Gmail.Sender = "" }, "sender address"},
		{"missing api key", func(c *Config) { c.Generator.APIKey = "" }, "generator API key"},
		{"zero retries", func(c *Config) { c.Generator.MaxRetries = 0 }, "max retries"},
		{"zero batch size", func(c *Config) { c.Dispatch.BatchSize = 0 }, "batch size"},
		{"sheets without id", func(c *Config) { c.Sheets.Enabled = true }, "spreadsheet id"},
		{"missing cron spec", func(c *Config) { c.Scheduler.CronSpec = "" }, "cron spec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/rfp_digest.db", cfg.Database.Path)
	assert.Equal(t, "gemini-1.5-flash", cfg.Generator.Model)
	assert.Equal(t, 3, cfg.Generator.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Generator.RetryDelayBase)
	assert.Equal(t, 5, cfg.Dispatch.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.StaggerDelay)
	assert.Equal(t, 10*time.Second, cfg.Dispatch.BatchDelay)
	assert.Equal(t, 2*time.Hour, cfg.Dispatch.StaleAfter)
	assert.Equal(t, 7*24*time.Hour, cfg.Dispatch.DedupWindow)
	assert.Equal(t, "0 0 7 * * *", cfg.Scheduler.CronSpec)
	assert.True(t, cfg.Scheduler.SyncOnRun)
	assert.Equal(t, "data/digests", cfg.Artifacts.Dir)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("DISPATCH_BATCH_SIZE", "2")
	t.Setenv("SCHEDULER_CRON_SPEC", "0 30 6 * * *")
	t.Setenv("DB_DRIVER", "mysql")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Dispatch.BatchSize)
	assert.Equal(t, "0 30 6 * * *", cfg.Scheduler.CronSpec)
	assert.Equal(t, "mysql", cfg.Database.Driver)
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 3306, DBName: "d"}
	assert.Equal(t, "u:p@tcp(h:3306)/d?charset=utf8mb4&parseTime=True&loc=Local", db.GetDSN())
}
