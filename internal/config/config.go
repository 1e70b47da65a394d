package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"voyagr/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Engine     EngineConfig     `yaml:"engine"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Google     GoogleConfig     `yaml:"google"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// EngineConfig holds the time thresholds driving automatic transitions.
type EngineConfig struct {
	PendingTimeoutHours       float64 `yaml:"pending_timeout_hours"`
	UpcomingThresholdHours    float64 `yaml:"upcoming_threshold_hours"`
	ExploringStartOffsetHours float64 `yaml:"exploring_start_offset_hours"`
	DefaultDurationHours      float64 `yaml:"default_duration_hours"`
	SweepIntervalMinutes      int     `yaml:"sweep_interval_minutes"`
	DispatchIntervalSeconds   int     `yaml:"dispatch_interval_seconds"`
	HistoryRetentionDays      int     `yaml:"history_retention_days"`
	ReviewRequestDelayHours   float64 `yaml:"review_request_delay_hours"`
}

func (e EngineConfig) SweepInterval() time.Duration {
	return time.Duration(e.SweepIntervalMinutes) * time.Minute
}

func (e EngineConfig) DispatchInterval() time.Duration {
	return time.Duration(e.DispatchIntervalSeconds) * time.Second
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	CacheTTL int    `yaml:"cache_ttl_seconds"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type GoogleConfig struct {
	Enabled             bool   `yaml:"enabled"`
	CredentialsFile     string `yaml:"credentials_file"`
	LedgerSpreadsheetID string `yaml:"ledger_spreadsheet_id"`
	LedgerSheetName     string `yaml:"ledger_sheet_name"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env опционален: в проде переменные приходят из окружения
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Engine.UpcomingThresholdHours <= c.Engine.ExploringStartOffsetHours {
		return fmt.Errorf("upcoming_threshold_hours (%v) must exceed exploring_start_offset_hours (%v)",
			c.Engine.UpcomingThresholdHours, c.Engine.ExploringStartOffsetHours)
	}

	if c.Google.Enabled {
		if c.Google.CredentialsFile == "" {
			return errors.New("google.credentials_file is required when sheets mirror is enabled")
		}
		if c.Google.LedgerSpreadsheetID == "" {
			return errors.New("google.ledger_spreadsheet_id is required when sheets mirror is enabled")
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "voyagr"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = 300
	}
	if c.Google.LedgerSheetName == "" {
		c.Google.LedgerSheetName = "Ledger"
	}

	// Engine defaults
	if c.Engine.PendingTimeoutHours == 0 {
		c.Engine.PendingTimeoutHours = models.DefaultPendingTimeoutHours
	}
	if c.Engine.UpcomingThresholdHours == 0 {
		c.Engine.UpcomingThresholdHours = models.DefaultUpcomingThresholdHours
	}
	if c.Engine.DefaultDurationHours == 0 {
		c.Engine.DefaultDurationHours = models.DefaultDurationHours
	}
	if c.Engine.SweepIntervalMinutes == 0 {
		c.Engine.SweepIntervalMinutes = models.DefaultSweepIntervalMinutes
	}
	if c.Engine.DispatchIntervalSeconds == 0 {
		c.Engine.DispatchIntervalSeconds = 30
	}
	if c.Engine.HistoryRetentionDays == 0 {
		c.Engine.HistoryRetentionDays = models.DefaultHistoryRetentionDays
	}
	if c.Engine.ReviewRequestDelayHours == 0 {
		c.Engine.ReviewRequestDelayHours = models.DefaultReviewRequestDelayHours
	}
}
