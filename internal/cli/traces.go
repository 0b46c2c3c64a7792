package cli

import (
	"fmt"
	"time"

	"github.com/agentpilot/agentpilot/pkg/models"
	"github.com/spf13/cobra"
)

var (
	tracesCategory string
	tracesOutcome  string
	tracesLimit    int
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Record and inspect decision traces",
}

var traceAddCmd = &cobra.Command{
	Use:   "add <decision>",
	Short: "Append a decision trace record",
	Long: `Append a decision record to the trace store. Use --category to tag the
record and --outcome to record the result (pending, success, failure).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Traces == nil {
			return fmt.Errorf("trace store not initialized")
		}

		category, _ := cmd.Flags().GetString("category")
		outcome, _ := cmd.Flags().GetString("outcome")
		payload, _ := cmd.Flags().GetString("payload")

		rec := models.TraceRecord{
			Timestamp: time.Now().UTC(),
			Category:  category,
			Decision:  args[0],
			Outcome:   outcome,
			Payload:   payload,
		}
		if err := Traces.Append(rec); err != nil {
			return err
		}
		fmt.Println("Trace recorded.")
		return nil
	},
}

var traceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trace records, newest first",
	Long: `List decision traces from both the live store and the archive.
Compacted records are marked; their payload has been discarded but the
decision and outcome remain queryable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Traces == nil {
			return fmt.Errorf("trace store not initialized")
		}

		records, err := Traces.Query(models.TraceFilter{
			Category: tracesCategory,
			Outcome:  tracesOutcome,
			Limit:    tracesLimit,
		})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No traces found.")
			return nil
		}

		for _, rec := range records {
			marker := " "
			if rec.Compacted {
				marker = "*"
			}
			fmt.Printf("%s %s  %-12s %-8s %s\n",
				marker,
				rec.Timestamp.Format(time.RFC3339),
				rec.Category,
				rec.Outcome,
				rec.Decision,
			)
		}
		fmt.Printf("\n%d record(s). * = compacted\n", len(records))
		return nil
	},
}

var compactOlderThan string

var compactTracesCmd = &cobra.Command{
	Use:   "compact-traces",
	Short: "Compact old trace records to their metadata projection",
	Long: `Move trace records older than the age threshold into the archive,
keeping only id, timestamp, category, decision, and outcome. Compaction is
one-way and idempotent: records are never re-expanded, and a second run with
the same threshold compacts nothing new.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Traces == nil {
			return fmt.Errorf("trace store not initialized")
		}

		age := time.Duration(0)
		if compactOlderThan != "" {
			parsed, err := time.ParseDuration(compactOlderThan)
			if err != nil {
				return fmt.Errorf("parsing --older-than %q: %w", compactOlderThan, err)
			}
			age = parsed
		} else if Config != nil {
			age = Config.CompactAge
		}
		if age <= 0 {
			return fmt.Errorf("age threshold must be positive")
		}

		count, err := Traces.Compact(time.Now().UTC().Add(-age))
		if err != nil {
			return err
		}
		fmt.Printf("Compacted %d record(s) older than %s.\n", count, age)
		return nil
	},
}

func init() {
	traceAddCmd.Flags().String("category", "general", "Category tag for the record")
	traceAddCmd.Flags().String("outcome", "pending", "Outcome (pending, success, failure)")
	traceAddCmd.Flags().String("payload", "", "Bulky payload, discarded on compaction")

	traceListCmd.Flags().StringVar(&tracesCategory, "category", "", "Filter by category")
	traceListCmd.Flags().StringVar(&tracesOutcome, "outcome", "", "Filter by outcome")
	traceListCmd.Flags().IntVar(&tracesLimit, "limit", 20, "Maximum records to show (0 = all)")

	compactTracesCmd.Flags().StringVar(&compactOlderThan, "older-than", "", "Age threshold (e.g. 168h); defaults to compact_age from config")

	traceCmd.AddCommand(traceAddCmd)
	traceCmd.AddCommand(traceListCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(compactTracesCmd)
}
