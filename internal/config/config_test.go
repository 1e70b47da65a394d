package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
app:
  name: "voyagr-test"
database:
  path: "test.db"
engine:
  pending_timeout_hours: 12
  sweep_interval_minutes: 1
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.App.Name != "voyagr-test" {
		t.Errorf("expected app name voyagr-test, got %s", cfg.App.Name)
	}
	if cfg.Engine.PendingTimeoutHours != 12 {
		t.Errorf("expected pending_timeout_hours 12, got %v", cfg.Engine.PendingTimeoutHours)
	}

	// defaults applied for unset fields
	if cfg.Engine.UpcomingThresholdHours != 24 {
		t.Errorf("expected default upcoming threshold 24, got %v", cfg.Engine.UpcomingThresholdHours)
	}
	if cfg.Engine.SweepInterval().Minutes() != 1 {
		t.Errorf("expected sweep interval 1m, got %v", cfg.Engine.SweepInterval())
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.API.Auth.HeaderAPIKey)
	}
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("VOYAGR_TEST_DB", filepath.Join(tmpDir, "env.db"))

	yamlContent := `
database:
  path: "${VOYAGR_TEST_DB}"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Path != filepath.Join(tmpDir, "env.db") {
		t.Errorf("env expansion failed, got %s", cfg.Database.Path)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Engine:   EngineConfig{UpcomingThresholdHours: 24},
			},
			wantErr: false,
		},
		{
			name:    "missing database path",
			cfg:     Config{Engine: EngineConfig{UpcomingThresholdHours: 24}},
			wantErr: true,
		},
		{
			name: "upcoming window inside exploring offset",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Engine:   EngineConfig{UpcomingThresholdHours: 1, ExploringStartOffsetHours: 2},
			},
			wantErr: true,
		},
		{
			name: "sheets enabled without credentials",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Engine:   EngineConfig{UpcomingThresholdHours: 24},
				Google:   GoogleConfig{Enabled: true},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
