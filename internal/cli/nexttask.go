package cli

import (
	"fmt"
	"strings"

	"github.com/agentpilot/agentpilot/internal/core"
	"github.com/spf13/cobra"
)

var nextTaskCmd = &cobra.Command{
	Use:   "next-task",
	Short: "Show the next runnable feature",
	Long: `Show the highest-priority pending feature whose dependencies are all
completed or tested. Reports "blocked" when pending work exists but nothing
is currently eligible (wait and retry) and "exhausted" when no pending work
remains (halt). Neither is an error.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Scheduler == nil {
			return fmt.Errorf("scheduler not initialized")
		}

		feature, state := Scheduler.Next()
		switch state {
		case core.NextReady:
			fmt.Printf("Next: %s [%s] %s\n", feature.ID, feature.Priority, feature.Description)
			if len(feature.Dependencies) > 0 {
				fmt.Printf("  Dependencies: %s\n", strings.Join(feature.Dependencies, ", "))
			}
			if len(feature.Tests) > 0 {
				fmt.Printf("  Tests:\n")
				for _, test := range feature.Tests {
					fmt.Printf("    - %s\n", test)
				}
			}
		case core.NextBlocked:
			fmt.Println("No feature eligible right now (dependencies or blocks outstanding). Wait and retry.")
		case core.NextExhausted:
			fmt.Println("Backlog exhausted: no pending features remain.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nextTaskCmd)
}
