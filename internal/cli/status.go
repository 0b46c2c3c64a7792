package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session phase, backlog aggregate, and exit checklist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Session == nil || Scheduler == nil {
			return fmt.Errorf("session not initialized")
		}

		phase := Session.Current()
		fmt.Printf("Phase: %s (entered %s)\n", phase.Name, phase.EnteredAt.Format("2006-01-02 15:04:05"))

		counts := Scheduler.Aggregate()
		fmt.Printf("\nBacklog (%d feature(s)):\n", counts.Total())
		fmt.Printf("  %-12s %d\n", "pending", counts.Pending)
		fmt.Printf("  %-12s %d\n", "in_progress", counts.InProgress)
		fmt.Printf("  %-12s %d\n", "blocked", counts.Blocked)
		fmt.Printf("  %-12s %d\n", "completed", counts.Completed)
		fmt.Printf("  %-12s %d\n", "tested", counts.Tested)

		checklist := Session.VerifyExit()
		if checklist.Total == 0 {
			fmt.Printf("\nNo exit criteria for %s (terminal phase).\n", phase.Name)
			return nil
		}

		fmt.Printf("\nExit criteria for %s (%d/%d passing):\n", phase.Name, checklist.Passed, checklist.Total)
		for _, check := range checklist.Results {
			if check.Passed {
				fmt.Printf("  PASS %s\n", check.Name)
			} else {
				fmt.Printf("  FAIL %s: %s\n", check.Name, check.Reason)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
