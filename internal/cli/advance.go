package cli

import (
	"errors"
	"fmt"

	"github.com/agentpilot/agentpilot/internal/core"
	"github.com/agentpilot/agentpilot/pkg/models"
	"github.com/spf13/cobra"
)

var advancePhaseCmd = &cobra.Command{
	Use:   "advance-phase",
	Short: "Advance the session to its next lifecycle phase",
	Long: `Verify the current phase's exit criteria and, when every check passes,
advance to the next phase. The new phase is persisted, the session is
checkpointed, and the transition is traced.

A failing checklist leaves the phase unchanged and lists the failed checks.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Session == nil {
			return fmt.Errorf("session state machine not initialized")
		}

		result, err := Session.Advance()
		if err != nil {
			var notMet *core.ExitCriteriaNotMet
			if errors.As(err, &notMet) {
				fmt.Printf("Phase %s not exited: %d of %d check(s) failed\n",
					notMet.Phase, notMet.Checklist.Failed, notMet.Checklist.Total)
				for _, check := range notMet.Checklist.Results {
					if !check.Passed {
						fmt.Printf("  FAIL %s: %s\n", check.Name, check.Reason)
					}
				}
			}
			return err
		}

		if result.Outcome == models.AdvanceAlreadyTerminal {
			fmt.Println("Session is already COMPLETE; nothing to advance.")
			return nil
		}

		fmt.Printf("Advanced %s -> %s (%d check(s) passed)\n",
			result.From, result.To, result.Checklist.Passed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(advancePhaseCmd)
}
