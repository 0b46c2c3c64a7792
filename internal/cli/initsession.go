package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentpilot/agentpilot/internal/integration"
	"github.com/spf13/cobra"
)

// defaultConfigContent is the .apilotrc written by apilot init.
const defaultConfigContent = `backlog_path: backlog.yaml
phase_path: phase.yaml
trace_db_path: traces.db
event_log_path: events.jsonl
repo_path: .
compact_age: 168h
required_files:
  - backlog.yaml
hook_scripts:
  - hooks/validate-transition.sh
  - hooks/require-checkpoint.sh
`

// sampleBacklogContent seeds an empty backlog for the agent to fill in.
const sampleBacklogContent = `version: "1.0"
features: []
`

// gitignoreContent keeps the session's own bookkeeping files out of the
// substrate repository. Checkpoints capture the work product; the backlog
// write-back after each commit, the trace database, and the event log would
// otherwise leave the tree permanently dirty.
const gitignoreContent = `# agentpilot session state
backlog.yaml
phase.yaml
traces.db*
events.jsonl
.checkpoint.lock
`

// hookScripts are the enforcement hooks installed into the session
// directory. The INIT phase exit criteria require them to be present and
// executable.
var hookScripts = map[string]string{
	"hooks/validate-transition.sh": `#!/bin/sh
# Refuse phase changes that bypass the state machine.
exec apilot advance-phase
`,
	"hooks/require-checkpoint.sh": `#!/bin/sh
# A feature may only be marked tested after its work is checkpointed.
[ -n "$1" ] || { echo "usage: require-checkpoint.sh <feature-id>" >&2; exit 2; }
exec apilot checkpoint "$1"
`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a session directory",
	Long: `Initialize the current session directory: write a default .apilotrc, an
empty backlog, and a .gitignore for the session state files if none exist,
install the enforcement hook scripts, and initialize the substrate git
repository.

Existing files are never overwritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := SessionDir
		if dir == "" {
			dir = "."
		}

		if err := writeIfMissing(filepath.Join(dir, ".apilotrc"), defaultConfigContent, 0o600); err != nil {
			return fmt.Errorf("initializing session: %w", err)
		}
		if err := writeIfMissing(filepath.Join(dir, "backlog.yaml"), sampleBacklogContent, 0o600); err != nil {
			return fmt.Errorf("initializing session: %w", err)
		}
		if err := writeIfMissing(filepath.Join(dir, ".gitignore"), gitignoreContent, 0o600); err != nil {
			return fmt.Errorf("initializing session: %w", err)
		}

		for rel, content := range hookScripts {
			path := filepath.Join(dir, rel)
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return fmt.Errorf("initializing session: creating hooks directory: %w", err)
			}
			if err := writeIfMissing(path, content, 0o700); err != nil {
				return fmt.Errorf("initializing session: %w", err)
			}
		}

		substrate := integration.NewGitSubstrate(dir)
		if err := substrate.Init(); err != nil {
			return fmt.Errorf("initializing session: %w", err)
		}

		fmt.Printf("Session initialized in %s\n", dir)
		fmt.Println("Edit backlog.yaml and run 'apilot status' to see the INIT checklist.")
		return nil
	},
}

// writeIfMissing writes content to path unless the file already exists.
func writeIfMissing(path, content string, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(initCmd)
}
