package cli

import (
	"fmt"

	"github.com/agentpilot/agentpilot/pkg/models"
	"github.com/spf13/cobra"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <subject> [label]",
	Short: "Checkpoint pending changes for a feature or the session",
	Long: `Atomically commit all pending substrate changes as one checkpoint.

The subject is a feature id, or the literal "session" for a session-level
checkpoint. When the subject is a feature, the resulting checkpoint is
recorded on that feature as its last_checkpoint. When there is nothing to
persist, the command reports that and succeeds without creating anything.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Recorder == nil {
			return fmt.Errorf("checkpoint recorder not initialized")
		}

		subject := args[0]
		label := ""
		if len(args) > 1 {
			label = args[1]
		}

		result, err := Recorder.Checkpoint(subject, label)
		if err != nil {
			return err
		}
		if result.Skipped {
			fmt.Println("Nothing to checkpoint: no pending changes.")
			return nil
		}

		if subject != models.SessionSubject && SaveBacklog != nil {
			if err := SaveBacklog(); err != nil {
				return fmt.Errorf("checkpoint %s recorded, but saving backlog failed: %w", result.Checkpoint.ID, err)
			}
		}

		fmt.Printf("Checkpoint %s recorded for %s\n", result.Checkpoint.ID, subject)
		fmt.Printf("  Label: %s\n", result.Checkpoint.Label)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
}
