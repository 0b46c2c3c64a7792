// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the session control plane as MCP tools for AI coding assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/agentpilot/agentpilot/internal/core"
	"github.com/agentpilot/agentpilot/internal/storage"
	"github.com/agentpilot/agentpilot/pkg/models"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/oklog/ulid/v2"
)

// Server wraps the session services and exposes them as MCP tools.
type Server struct {
	server    *gomcp.Server
	scheduler core.FeatureScheduler
	session   core.SessionStateMachine
	recorder  core.CheckpointRecorder
	traces    storage.TraceStore
	save      func() error
}

// NewServer creates a new MCP server with the given session dependencies.
// traces may be nil if the trace store is unavailable. save persists the
// backlog after mutating tool calls and may be nil.
func NewServer(scheduler core.FeatureScheduler, session core.SessionStateMachine, recorder core.CheckpointRecorder, traces storage.TraceStore, save func() error, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		scheduler: scheduler,
		session:   session,
		recorder:  recorder,
		traces:    traces,
		save:      save,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "apilot", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type nextFeatureInput struct{}

type featureOutput struct {
	ID             string   `json:"id"`
	Description    string   `json:"description"`
	Type           string   `json:"type"`
	Priority       string   `json:"priority"`
	Status         string   `json:"status"`
	Dependencies   []string `json:"dependencies,omitempty"`
	Tests          []string `json:"tests,omitempty"`
	LastCheckpoint string   `json:"last_checkpoint,omitempty"`
}

type nextFeatureOutput struct {
	State   string         `json:"state"`
	Feature *featureOutput `json:"feature,omitempty"`
	Message string         `json:"message"`
}

type markFeatureInput struct {
	FeatureID string `json:"feature_id" jsonschema:"required,the unique feature identifier from the backlog"`
	Status    string `json:"status" jsonschema:"required,the new status (pending, in_progress, blocked, completed, tested)"`
}

type markFeatureOutput struct {
	Message string `json:"message"`
}

type sessionStatusInput struct{}

type checkOutput struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

type sessionStatusOutput struct {
	Phase        string         `json:"phase"`
	EnteredAt    string         `json:"entered_at,omitempty"`
	Counts       map[string]int `json:"counts"`
	ExitCriteria []checkOutput  `json:"exit_criteria,omitempty"`
	ExitReady    bool           `json:"exit_ready"`
}

type advancePhaseInput struct{}

type advancePhaseOutput struct {
	From    string `json:"from"`
	To      string `json:"to,omitempty"`
	Message string `json:"message"`
}

type recordCheckpointInput struct {
	Subject string `json:"subject" jsonschema:"required,a feature id or the literal session"`
	Label   string `json:"label,omitempty" jsonschema:"commit label for the checkpoint"`
}

type recordCheckpointOutput struct {
	ID      string `json:"id,omitempty"`
	Label   string `json:"label,omitempty"`
	Skipped bool   `json:"skipped"`
	Message string `json:"message"`
}

type recordTraceInput struct {
	Decision string `json:"decision" jsonschema:"required,the decision text to record"`
	Category string `json:"category,omitempty" jsonschema:"decision category (e.g. scheduling, state, general)"`
	Outcome  string `json:"outcome,omitempty" jsonschema:"decision outcome (pending, success, failure)"`
	Payload  string `json:"payload,omitempty" jsonschema:"free-form context attached to the decision"`
}

type recordTraceOutput struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type queryTracesInput struct {
	Category string `json:"category,omitempty" jsonschema:"filter by category"`
	Outcome  string `json:"outcome,omitempty" jsonschema:"filter by outcome"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of records to return (default 20)"`
}

type traceRecordOutput struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Category  string `json:"category"`
	Decision  string `json:"decision"`
	Outcome   string `json:"outcome"`
	Payload   string `json:"payload,omitempty"`
	Compacted bool   `json:"compacted"`
}

type queryTracesOutput struct {
	Traces []traceRecordOutput `json:"traces"`
	Count  int                 `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "next_feature",
		Description: "Get the next workable feature from the backlog. Returns the highest-priority pending feature whose dependencies are all tested, or reports that the backlog is blocked or exhausted.",
	}, s.handleNextFeature)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "mark_feature",
		Description: "Update a feature's lifecycle status. Valid statuses: pending, in_progress, blocked, completed, tested. Marking tested requires a prior checkpoint for the feature.",
	}, s.handleMarkFeature)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "session_status",
		Description: "Get the current session phase, backlog status counts, and the exit-criteria checklist for the phase.",
	}, s.handleSessionStatus)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "advance_phase",
		Description: "Advance the session to the next phase if all exit criteria pass. Records a session checkpoint on success.",
	}, s.handleAdvancePhase)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "record_checkpoint",
		Description: "Atomically commit all pending substrate changes as one checkpoint for a feature or the session. Reports skipped when nothing is pending.",
	}, s.handleRecordCheckpoint)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "record_trace",
		Description: "Record a decision trace with a category, outcome, and optional payload.",
	}, s.handleRecordTrace)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "query_traces",
		Description: "Query decision traces across live and compacted records, newest first, with optional category and outcome filters.",
	}, s.handleQueryTraces)
}

// --- Tool handlers ---

func (s *Server) handleNextFeature(_ context.Context, _ *gomcp.CallToolRequest, _ nextFeatureInput) (*gomcp.CallToolResult, nextFeatureOutput, error) {
	feature, state := s.scheduler.Next()

	out := nextFeatureOutput{State: string(state)}
	switch state {
	case core.NextReady:
		fo := featureToOutput(feature)
		out.Feature = &fo
		out.Message = fmt.Sprintf("work on %s next", feature.ID)
	case core.NextBlocked:
		out.Message = "no feature is workable right now; remaining features wait on unfinished dependencies"
	case core.NextExhausted:
		out.Message = "the backlog is exhausted; every feature is completed or tested"
	}

	return nil, out, nil
}

func (s *Server) handleMarkFeature(_ context.Context, _ *gomcp.CallToolRequest, input markFeatureInput) (*gomcp.CallToolResult, markFeatureOutput, error) {
	if input.FeatureID == "" {
		return errorResult("feature_id is required"), markFeatureOutput{}, nil
	}
	if input.Status == "" {
		return errorResult("status is required"), markFeatureOutput{}, nil
	}

	if err := s.scheduler.Mark(input.FeatureID, models.FeatureStatus(input.Status)); err != nil {
		return errorResult(fmt.Sprintf("marking feature %s: %s", input.FeatureID, err)), markFeatureOutput{}, nil
	}

	if s.save != nil {
		if err := s.save(); err != nil {
			return errorResult(fmt.Sprintf("feature %s marked %s but saving backlog failed: %s", input.FeatureID, input.Status, err)), markFeatureOutput{}, nil
		}
	}

	out := markFeatureOutput{
		Message: fmt.Sprintf("feature %s marked %s", input.FeatureID, input.Status),
	}
	return nil, out, nil
}

func (s *Server) handleSessionStatus(_ context.Context, _ *gomcp.CallToolRequest, _ sessionStatusInput) (*gomcp.CallToolResult, sessionStatusOutput, error) {
	phase := s.session.Current()
	counts := s.scheduler.Aggregate()
	checklist := s.session.VerifyExit()

	out := sessionStatusOutput{
		Phase: string(phase.Name),
		Counts: map[string]int{
			"pending":     counts.Pending,
			"in_progress": counts.InProgress,
			"blocked":     counts.Blocked,
			"completed":   counts.Completed,
			"tested":      counts.Tested,
		},
		ExitReady: checklist.Failed == 0,
	}
	if !phase.EnteredAt.IsZero() {
		out.EnteredAt = phase.EnteredAt.Format(time.RFC3339)
	}
	for _, r := range checklist.Results {
		out.ExitCriteria = append(out.ExitCriteria, checkOutput{
			Name:   r.Name,
			Passed: r.Passed,
			Reason: r.Reason,
		})
	}

	return nil, out, nil
}

func (s *Server) handleAdvancePhase(_ context.Context, _ *gomcp.CallToolRequest, _ advancePhaseInput) (*gomcp.CallToolResult, advancePhaseOutput, error) {
	result, err := s.session.Advance()
	if err != nil {
		return errorResult(fmt.Sprintf("advancing phase: %s", err)), advancePhaseOutput{}, nil
	}

	out := advancePhaseOutput{From: string(result.From)}
	switch result.Outcome {
	case models.AdvanceAlreadyTerminal:
		out.Message = fmt.Sprintf("session is already in terminal phase %s", result.From)
	default:
		out.To = string(result.To)
		out.Message = fmt.Sprintf("session advanced from %s to %s", result.From, result.To)
	}

	return nil, out, nil
}

func (s *Server) handleRecordCheckpoint(_ context.Context, _ *gomcp.CallToolRequest, input recordCheckpointInput) (*gomcp.CallToolResult, recordCheckpointOutput, error) {
	if s.recorder == nil {
		return errorResult("checkpoint recorder not available"), recordCheckpointOutput{}, nil
	}
	if input.Subject == "" {
		return errorResult("subject is required"), recordCheckpointOutput{}, nil
	}

	result, err := s.recorder.Checkpoint(input.Subject, input.Label)
	if err != nil {
		return errorResult(fmt.Sprintf("checkpointing %s: %s", input.Subject, err)), recordCheckpointOutput{}, nil
	}
	if result.Skipped {
		return nil, recordCheckpointOutput{
			Skipped: true,
			Message: "nothing to checkpoint: no pending changes",
		}, nil
	}

	if input.Subject != models.SessionSubject && s.save != nil {
		if err := s.save(); err != nil {
			return errorResult(fmt.Sprintf("checkpoint %s recorded but saving backlog failed: %s", result.Checkpoint.ID, err)), recordCheckpointOutput{}, nil
		}
	}

	out := recordCheckpointOutput{
		ID:      result.Checkpoint.ID,
		Label:   result.Checkpoint.Label,
		Message: fmt.Sprintf("checkpoint %s recorded for %s", result.Checkpoint.ID, input.Subject),
	}
	return nil, out, nil
}

func (s *Server) handleRecordTrace(_ context.Context, _ *gomcp.CallToolRequest, input recordTraceInput) (*gomcp.CallToolResult, recordTraceOutput, error) {
	if s.traces == nil {
		return errorResult("trace store not available"), recordTraceOutput{}, nil
	}
	if input.Decision == "" {
		return errorResult("decision is required"), recordTraceOutput{}, nil
	}

	outcome := input.Outcome
	if outcome == "" {
		outcome = models.OutcomePending
	}
	category := input.Category
	if category == "" {
		category = "general"
	}

	record := models.TraceRecord{
		ID:        ulid.Make().String(),
		Timestamp: time.Now().UTC(),
		Category:  category,
		Decision:  input.Decision,
		Outcome:   outcome,
		Payload:   input.Payload,
	}
	if err := s.traces.Append(record); err != nil {
		return errorResult(fmt.Sprintf("recording trace: %s", err)), recordTraceOutput{}, nil
	}

	out := recordTraceOutput{
		ID:      record.ID,
		Message: fmt.Sprintf("trace %s recorded", record.ID),
	}
	return nil, out, nil
}

func (s *Server) handleQueryTraces(_ context.Context, _ *gomcp.CallToolRequest, input queryTracesInput) (*gomcp.CallToolResult, queryTracesOutput, error) {
	if s.traces == nil {
		return errorResult("trace store not available"), queryTracesOutput{}, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	records, err := s.traces.Query(models.TraceFilter{
		Category: input.Category,
		Outcome:  input.Outcome,
		Limit:    limit,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("querying traces: %s", err)), queryTracesOutput{}, nil
	}

	out := queryTracesOutput{
		Traces: make([]traceRecordOutput, len(records)),
		Count:  len(records),
	}
	for i, r := range records {
		out.Traces[i] = traceRecordOutput{
			ID:        r.ID,
			Timestamp: r.Timestamp.Format(time.RFC3339),
			Category:  r.Category,
			Decision:  r.Decision,
			Outcome:   r.Outcome,
			Payload:   r.Payload,
			Compacted: r.Compacted,
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func featureToOutput(f *models.Feature) featureOutput {
	out := featureOutput{
		ID:           f.ID,
		Description:  f.Description,
		Type:         string(f.Type),
		Priority:     string(f.Priority),
		Status:       string(f.Status),
		Dependencies: f.Dependencies,
		Tests:        f.Tests,
	}
	if f.LastCheckpoint != nil {
		out.LastCheckpoint = f.LastCheckpoint.ID
	}
	return out
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
