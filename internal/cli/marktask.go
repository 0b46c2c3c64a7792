package cli

import (
	"fmt"

	"github.com/agentpilot/agentpilot/pkg/models"
	"github.com/spf13/cobra"
)

var markTaskCmd = &cobra.Command{
	Use:   "mark-task <id> <status>",
	Short: "Transition a feature's status",
	Long: `Transition a feature to a new status. Legal transitions:

  pending     -> in_progress
  in_progress -> completed, blocked
  blocked     -> pending        (retry)
  completed   -> tested         (requires a recorded checkpoint)

Any other transition is rejected.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Scheduler == nil {
			return fmt.Errorf("scheduler not initialized")
		}

		id := args[0]
		status := models.FeatureStatus(args[1])

		if err := Scheduler.Mark(id, status); err != nil {
			return err
		}
		if SaveBacklog != nil {
			if err := SaveBacklog(); err != nil {
				return fmt.Errorf("marking %s: %w", id, err)
			}
		}

		fmt.Printf("Marked %s as %s\n", id, status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(markTaskCmd)
}
