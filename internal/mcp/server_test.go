package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/agentpilot/agentpilot/internal/core"
	"github.com/agentpilot/agentpilot/internal/storage"
	"github.com/agentpilot/agentpilot/pkg/models"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// --- Fake implementations ---

type fakeSession struct {
	phase     models.SessionPhase
	checklist models.ChecklistResult
	result    models.AdvanceResult
	err       error
}

func (s *fakeSession) Current() models.SessionPhase       { return s.phase }
func (s *fakeSession) VerifyExit() models.ChecklistResult { return s.checklist }
func (s *fakeSession) Advance() (models.AdvanceResult, error) {
	return s.result, s.err
}

type fakeRecorder struct {
	result   core.CheckpointResult
	err      error
	subjects []string
}

func (r *fakeRecorder) Checkpoint(subject, label string) (core.CheckpointResult, error) {
	r.subjects = append(r.subjects, subject)
	return r.result, r.err
}

// --- Test helpers ---

func newTestServer(t *testing.T, features []models.Feature, session *fakeSession) (*Server, core.FeatureScheduler) {
	t.Helper()

	scheduler := core.NewFeatureScheduler(nil, nil)
	if len(features) > 0 {
		if err := scheduler.Load(features); err != nil {
			t.Fatalf("loading backlog: %v", err)
		}
	}

	traces, err := storage.NewTraceStore(filepath.Join(t.TempDir(), "traces.db"))
	if err != nil {
		t.Fatalf("opening trace store: %v", err)
	}
	t.Cleanup(func() { _ = traces.Close() })

	if session == nil {
		session = &fakeSession{phase: models.SessionPhase{Name: models.PhaseImplement}}
	}

	srv := NewServer(scheduler, session, nil, traces, nil, "test")
	return srv, scheduler
}

// callTool connects an in-memory client to the server and calls one tool.
func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	t1, t2 := gomcp.NewInMemoryTransports()

	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("call tool %s: %v", toolName, err)
	}

	return result
}

func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func decodeOutput(t *testing.T, result *gomcp.CallToolResult, out any) {
	t.Helper()
	if result.StructuredContent != nil {
		data, err := json.Marshal(result.StructuredContent)
		if err != nil {
			t.Fatalf("marshalling structured content: %v", err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("unmarshalling structured content: %v", err)
		}
		return
	}
	if err := json.Unmarshal([]byte(extractText(result)), out); err != nil {
		t.Fatalf("unmarshalling tool output: %v (text was: %s)", err, extractText(result))
	}
}

func sampleBacklog() []models.Feature {
	return []models.Feature{
		{ID: "schema", Description: "user table", Type: models.FeatureTypeDatabase,
			Priority: models.P0, Status: models.StatusPending},
		{ID: "api", Description: "login endpoint", Type: models.FeatureTypeAPI,
			Priority: models.P1, Status: models.StatusPending, Dependencies: []string{"schema"}},
	}
}

// --- Tests ---

func TestNextFeature(t *testing.T) {
	srv, _ := newTestServer(t, sampleBacklog(), nil)

	result := callTool(t, srv, "next_feature", nil)
	if result.IsError {
		t.Fatalf("expected success, got: %s", extractText(result))
	}

	var out nextFeatureOutput
	decodeOutput(t, result, &out)
	if out.State != "ready" {
		t.Errorf("expected ready, got %s", out.State)
	}
	if out.Feature == nil || out.Feature.ID != "schema" {
		t.Errorf("expected schema first, got %+v", out.Feature)
	}
}

func TestNextFeature_Exhausted(t *testing.T) {
	srv, _ := newTestServer(t, []models.Feature{
		{ID: "done", Status: models.StatusTested, Priority: models.P1},
	}, nil)

	result := callTool(t, srv, "next_feature", nil)
	var out nextFeatureOutput
	decodeOutput(t, result, &out)
	if out.State != "exhausted" {
		t.Errorf("expected exhausted, got %s", out.State)
	}
	if out.Feature != nil {
		t.Error("exhausted state must not carry a feature")
	}
}

func TestMarkFeature(t *testing.T) {
	srv, scheduler := newTestServer(t, sampleBacklog(), nil)

	result := callTool(t, srv, "mark_feature", map[string]any{
		"feature_id": "schema",
		"status":     "in_progress",
	})
	if result.IsError {
		t.Fatalf("expected success, got: %s", extractText(result))
	}

	f, err := scheduler.Get("schema")
	if err != nil {
		t.Fatal(err)
	}
	if f.Status != models.StatusInProgress {
		t.Errorf("expected in_progress, got %s", f.Status)
	}
}

func TestMarkFeature_IllegalTransition(t *testing.T) {
	srv, _ := newTestServer(t, sampleBacklog(), nil)

	result := callTool(t, srv, "mark_feature", map[string]any{
		"feature_id": "schema",
		"status":     "tested",
	})
	if !result.IsError {
		t.Fatal("expected error result for an illegal transition")
	}
}

func TestSessionStatus(t *testing.T) {
	session := &fakeSession{
		phase: models.SessionPhase{Name: models.PhaseImplement},
		checklist: models.ChecklistResult{
			Phase: models.PhaseImplement, Total: 2, Passed: 1, Failed: 1,
			Results: []models.CheckResult{
				models.Pass("no_pending_features"),
				models.Fail("no_blocked_features", "1 feature(s) still blocked"),
			},
		},
	}
	srv, _ := newTestServer(t, sampleBacklog(), session)

	result := callTool(t, srv, "session_status", nil)
	if result.IsError {
		t.Fatalf("expected success, got: %s", extractText(result))
	}

	var out sessionStatusOutput
	decodeOutput(t, result, &out)
	if out.Phase != "IMPLEMENT" {
		t.Errorf("expected IMPLEMENT, got %s", out.Phase)
	}
	if out.Counts["pending"] != 2 {
		t.Errorf("expected 2 pending, got %d", out.Counts["pending"])
	}
	if out.ExitReady {
		t.Error("a failing checklist must report not exit-ready")
	}
	if len(out.ExitCriteria) != 2 {
		t.Errorf("expected 2 checklist entries, got %d", len(out.ExitCriteria))
	}
}

func TestAdvancePhase(t *testing.T) {
	session := &fakeSession{
		result: models.AdvanceResult{
			Outcome: models.AdvanceOK,
			From:    models.PhaseInit,
			To:      models.PhaseImplement,
		},
	}
	srv, _ := newTestServer(t, nil, session)

	result := callTool(t, srv, "advance_phase", nil)
	if result.IsError {
		t.Fatalf("expected success, got: %s", extractText(result))
	}

	var out advancePhaseOutput
	decodeOutput(t, result, &out)
	if out.From != "INIT" || out.To != "IMPLEMENT" {
		t.Errorf("unexpected transition %s -> %s", out.From, out.To)
	}
}

func TestRecordAndQueryTraces(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	recorded := callTool(t, srv, "record_trace", map[string]any{
		"decision": "chose sqlite for the trace store",
		"category": "architecture",
		"outcome":  "success",
		"payload":  "single writer, no server process",
	})
	if recorded.IsError {
		t.Fatalf("expected success, got: %s", extractText(recorded))
	}
	var rec recordTraceOutput
	decodeOutput(t, recorded, &rec)
	if rec.ID == "" {
		t.Fatal("expected a generated trace id")
	}

	queried := callTool(t, srv, "query_traces", map[string]any{"category": "architecture"})
	var out queryTracesOutput
	decodeOutput(t, queried, &out)
	if out.Count != 1 {
		t.Fatalf("expected 1 trace, got %d", out.Count)
	}
	if out.Traces[0].ID != rec.ID || out.Traces[0].Compacted {
		t.Errorf("unexpected trace %+v", out.Traces[0])
	}
}

func TestRecordCheckpoint(t *testing.T) {
	recorder := &fakeRecorder{
		result: core.CheckpointResult{
			Checkpoint: &models.Checkpoint{ID: "abc123", Label: "checkpoint: schema", Subject: "schema"},
		},
	}
	saves := 0
	srv := NewServer(nil, nil, recorder, nil, func() error { saves++; return nil }, "test")

	result := callTool(t, srv, "record_checkpoint", map[string]any{"subject": "schema"})
	if result.IsError {
		t.Fatalf("expected success, got: %s", extractText(result))
	}

	var out recordCheckpointOutput
	decodeOutput(t, result, &out)
	if out.ID != "abc123" || out.Skipped {
		t.Errorf("unexpected output %+v", out)
	}
	if len(recorder.subjects) != 1 || recorder.subjects[0] != "schema" {
		t.Errorf("unexpected recorded subjects %v", recorder.subjects)
	}
	if saves != 1 {
		t.Errorf("expected 1 backlog save after a feature checkpoint, got %d", saves)
	}
}

func TestRecordCheckpoint_SessionSubjectSkipsSave(t *testing.T) {
	recorder := &fakeRecorder{
		result: core.CheckpointResult{
			Checkpoint: &models.Checkpoint{ID: "def456", Label: "checkpoint: session", Subject: models.SessionSubject},
		},
	}
	saves := 0
	srv := NewServer(nil, nil, recorder, nil, func() error { saves++; return nil }, "test")

	result := callTool(t, srv, "record_checkpoint", map[string]any{"subject": models.SessionSubject})
	if result.IsError {
		t.Fatalf("expected success, got: %s", extractText(result))
	}
	if saves != 0 {
		t.Errorf("session checkpoints must not save the backlog, saw %d saves", saves)
	}
}

func TestRecordCheckpoint_Skipped(t *testing.T) {
	recorder := &fakeRecorder{result: core.CheckpointResult{Skipped: true}}
	srv := NewServer(nil, nil, recorder, nil, nil, "test")

	result := callTool(t, srv, "record_checkpoint", map[string]any{"subject": "schema"})
	if result.IsError {
		t.Fatalf("a skipped checkpoint is not an error: %s", extractText(result))
	}

	var out recordCheckpointOutput
	decodeOutput(t, result, &out)
	if !out.Skipped {
		t.Error("expected skipped to be reported")
	}
}

func TestRecordCheckpoint_RequiresSubject(t *testing.T) {
	srv := NewServer(nil, nil, &fakeRecorder{}, nil, nil, "test")

	result := callTool(t, srv, "record_checkpoint", map[string]any{"subject": ""})
	if !result.IsError {
		t.Fatal("expected error for empty subject")
	}
}

func TestRecordTrace_RequiresDecision(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	result := callTool(t, srv, "record_trace", map[string]any{"decision": ""})
	if !result.IsError {
		t.Fatal("expected error for empty decision")
	}
}
