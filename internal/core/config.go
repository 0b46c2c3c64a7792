package core

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentpilot/agentpilot/pkg/models"
	"github.com/spf13/viper"
)

// ConfigurationManager loads and validates the per-session configuration
// from a .apilotrc file in the session directory.
type ConfigurationManager interface {
	LoadConfig() (*models.SessionConfig, error)
	ValidateConfig(cfg *models.SessionConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper to read
// the YAML .apilotrc file.
type viperConfigManager struct {
	sessionDir string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// configuration relative to sessionDir.
func NewConfigurationManager(sessionDir string) ConfigurationManager {
	return &viperConfigManager{sessionDir: sessionDir}
}

// defaultSessionConfig returns a SessionConfig populated with defaults.
// By default the session directory itself is the substrate repository.
func defaultSessionConfig(sessionDir string) *models.SessionConfig {
	return &models.SessionConfig{
		BacklogPath:   "backlog.yaml",
		PhasePath:     "phase.yaml",
		TraceDBPath:   "traces.db",
		EventLogPath:  "events.jsonl",
		LockPath:      ".checkpoint.lock",
		RepoPath:      sessionDir,
		CompactAge:    7 * 24 * time.Hour,
		RequiredFiles: []string{"backlog.yaml"},
		HookScripts:   nil,
	}
}

// LoadConfig reads .apilotrc from the session directory. A missing file
// yields the defaults; a malformed file is an error.
func (cm *viperConfigManager) LoadConfig() (*models.SessionConfig, error) {
	cfg := defaultSessionConfig(cm.sessionDir)

	v := viper.New()
	v.SetConfigName(".apilotrc")
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.sessionDir)

	v.SetDefault("backlog_path", cfg.BacklogPath)
	v.SetDefault("phase_path", cfg.PhasePath)
	v.SetDefault("trace_db_path", cfg.TraceDBPath)
	v.SetDefault("event_log_path", cfg.EventLogPath)
	v.SetDefault("lock_path", cfg.LockPath)
	v.SetDefault("repo_path", cfg.RepoPath)
	v.SetDefault("compact_age", cfg.CompactAge.String())
	v.SetDefault("required_files", cfg.RequiredFiles)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading .apilotrc: %w", err)
	}

	cfg.BacklogPath = v.GetString("backlog_path")
	cfg.PhasePath = v.GetString("phase_path")
	cfg.TraceDBPath = v.GetString("trace_db_path")
	cfg.EventLogPath = v.GetString("event_log_path")
	cfg.LockPath = v.GetString("lock_path")
	cfg.RepoPath = v.GetString("repo_path")
	cfg.RequiredFiles = v.GetStringSlice("required_files")
	cfg.HookScripts = v.GetStringSlice("hook_scripts")

	if raw := v.GetString("compact_age"); raw != "" {
		age, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("reading .apilotrc: compact_age %q: %w", raw, err)
		}
		cfg.CompactAge = age
	}

	return cfg, nil
}

// ValidateConfig checks the configuration for invalid values and returns a
// clear message identifying every problem found.
func (cm *viperConfigManager) ValidateConfig(cfg *models.SessionConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string
	if cfg.BacklogPath == "" {
		errs = append(errs, "backlog_path must not be empty")
	}
	if cfg.PhasePath == "" {
		errs = append(errs, "phase_path must not be empty")
	}
	if cfg.TraceDBPath == "" {
		errs = append(errs, "trace_db_path must not be empty")
	}
	if cfg.RepoPath == "" {
		errs = append(errs, "repo_path must not be empty")
	}
	if cfg.CompactAge <= 0 {
		errs = append(errs, fmt.Sprintf("compact_age must be positive, got %s", cfg.CompactAge))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ResolvePath resolves a configured path against the session directory.
// Absolute paths are returned unchanged.
func ResolvePath(sessionDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(sessionDir, path)
}
