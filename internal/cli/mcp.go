package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	apmcp "github.com/agentpilot/agentpilot/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the apilot MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the apilot MCP server on stdio",
	Long: `Start the apilot MCP server on stdio transport.

The server exposes the session control plane as MCP tools that AI coding
assistants can call: next_feature, mark_feature, session_status,
advance_phase, record_checkpoint, record_trace, query_traces.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Scheduler == nil || Session == nil {
			return fmt.Errorf("session not initialized")
		}

		srv := apmcp.NewServer(Scheduler, Session, Recorder, Traces, SaveBacklog, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
