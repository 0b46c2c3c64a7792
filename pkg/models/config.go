package models

import "time"

// SessionConfig holds the resolved configuration for one agent session.
// All relative paths are resolved against the session directory.
type SessionConfig struct {
	BacklogPath  string        `yaml:"backlog_path" mapstructure:"backlog_path"`
	PhasePath    string        `yaml:"phase_path" mapstructure:"phase_path"`
	TraceDBPath  string        `yaml:"trace_db_path" mapstructure:"trace_db_path"`
	EventLogPath string        `yaml:"event_log_path" mapstructure:"event_log_path"`
	LockPath     string        `yaml:"lock_path" mapstructure:"lock_path"`
	RepoPath     string        `yaml:"repo_path" mapstructure:"repo_path"`
	CompactAge   time.Duration `yaml:"compact_age" mapstructure:"compact_age"`

	// RequiredFiles and HookScripts feed the INIT phase exit criteria.
	RequiredFiles []string `yaml:"required_files" mapstructure:"required_files"`
	HookScripts   []string `yaml:"hook_scripts" mapstructure:"hook_scripts"`
}
