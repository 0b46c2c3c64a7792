package core

import (
	"errors"
	"testing"

	"github.com/agentpilot/agentpilot/pkg/models"
)

// memPhaseStore keeps the persisted phase in memory.
type memPhaseStore struct {
	phase *models.SessionPhase
	fail  bool
	saves int
}

func (s *memPhaseStore) SavePhase(phase models.SessionPhase) error {
	if s.fail {
		return errors.New("disk full")
	}
	cp := phase
	s.phase = &cp
	s.saves++
	return nil
}

func (s *memPhaseStore) LoadPhase() (*models.SessionPhase, error) {
	return s.phase, nil
}

// memRecorder records checkpoint requests.
type memRecorder struct {
	subjects []string
	fail     bool
}

func (r *memRecorder) Checkpoint(subject, label string) (CheckpointResult, error) {
	if r.fail {
		return CheckpointResult{}, errors.New("substrate down")
	}
	r.subjects = append(r.subjects, subject)
	return CheckpointResult{Checkpoint: &models.Checkpoint{ID: "cp-1", Subject: subject, Label: label}}, nil
}

func passingChecklists() map[models.PhaseName][]Check {
	pass := []Check{{Name: "always_pass", Run: func() models.CheckResult { return models.Pass("") }}}
	return map[models.PhaseName][]Check{
		models.PhaseInit:      pass,
		models.PhaseImplement: pass,
		models.PhaseTest:      pass,
	}
}

func TestNewSessionStateMachine_StartsAtInitAndPersists(t *testing.T) {
	store := &memPhaseStore{}
	sm, err := NewSessionStateMachine(store, passingChecklists(), nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := sm.Current().Name; got != models.PhaseInit {
		t.Errorf("expected INIT, got %s", got)
	}
	if store.phase == nil || store.phase.Name != models.PhaseInit {
		t.Error("initial phase must be persisted immediately")
	}
}

func TestNewSessionStateMachine_ResumesPersistedPhase(t *testing.T) {
	store := &memPhaseStore{phase: &models.SessionPhase{Name: models.PhaseTest}}
	sm, err := NewSessionStateMachine(store, passingChecklists(), nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := sm.Current().Name; got != models.PhaseTest {
		t.Errorf("expected resumed TEST phase, got %s", got)
	}
}

func TestVerifyExit_ReportsOrderedResults(t *testing.T) {
	store := &memPhaseStore{}
	checklists := map[models.PhaseName][]Check{
		models.PhaseInit: {
			{Name: "first", Run: func() models.CheckResult { return models.Pass("") }},
			{Name: "second", Run: func() models.CheckResult { return models.Fail("", "not ready") }},
			{Name: "third", Run: func() models.CheckResult { return models.Pass("") }},
		},
	}
	sm, err := NewSessionStateMachine(store, checklists, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	result := sm.VerifyExit()
	if result.Total != 3 || result.Passed != 2 || result.Failed != 1 {
		t.Errorf("unexpected tallies: %+v", result)
	}
	names := []string{"first", "second", "third"}
	for i, r := range result.Results {
		if r.Name != names[i] {
			t.Errorf("result %d: expected %s, got %s", i, names[i], r.Name)
		}
	}
	if result.Results[1].Reason != "not ready" {
		t.Errorf("expected failure reason preserved, got %q", result.Results[1].Reason)
	}
}

func TestAdvance_FailingChecklistLeavesPhase(t *testing.T) {
	store := &memPhaseStore{}
	checklists := map[models.PhaseName][]Check{
		models.PhaseInit: {
			{Name: "backlog_loaded", Run: func() models.CheckResult { return models.Fail("", "backlog is empty") }},
		},
	}
	sm, err := NewSessionStateMachine(store, checklists, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	savesBefore := store.saves

	_, advErr := sm.Advance()
	var notMet *ExitCriteriaNotMet
	if !errors.As(advErr, &notMet) {
		t.Fatalf("expected *ExitCriteriaNotMet, got %v", advErr)
	}
	if len(notMet.Failed) != 1 || notMet.Failed[0] != "backlog_loaded" {
		t.Errorf("expected failed check [backlog_loaded], got %v", notMet.Failed)
	}
	if sm.Current().Name != models.PhaseInit {
		t.Error("failed advance must leave the phase unchanged")
	}
	if store.saves != savesBefore {
		t.Error("failed advance must not persist anything")
	}
}

func TestAdvance_FullLifecycle(t *testing.T) {
	store := &memPhaseStore{}
	recorder := &memRecorder{}
	sink := &memTraceSink{}
	sm, err := NewSessionStateMachine(store, passingChecklists(), recorder, sink, nil)
	if err != nil {
		t.Fatal(err)
	}

	expected := []struct{ from, to models.PhaseName }{
		{models.PhaseInit, models.PhaseImplement},
		{models.PhaseImplement, models.PhaseTest},
		{models.PhaseTest, models.PhaseComplete},
	}
	for _, step := range expected {
		result, err := sm.Advance()
		if err != nil {
			t.Fatalf("advancing from %s: %v", step.from, err)
		}
		if result.Outcome != models.AdvanceOK || result.From != step.from || result.To != step.to {
			t.Errorf("unexpected result: %+v", result)
		}
		if store.phase.Name != step.to {
			t.Errorf("phase %s not persisted", step.to)
		}
	}

	if len(recorder.subjects) != 3 {
		t.Fatalf("expected 3 session checkpoints, got %d", len(recorder.subjects))
	}
	for _, subject := range recorder.subjects {
		if subject != models.SessionSubject {
			t.Errorf("expected session subject, got %q", subject)
		}
	}
	if len(sink.records) != 3 {
		t.Errorf("expected 3 advance traces, got %d", len(sink.records))
	}
}

func TestAdvance_AlreadyTerminal(t *testing.T) {
	store := &memPhaseStore{phase: &models.SessionPhase{Name: models.PhaseComplete}}
	recorder := &memRecorder{}
	sm, err := NewSessionStateMachine(store, passingChecklists(), recorder, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	result, err := sm.Advance()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != models.AdvanceAlreadyTerminal {
		t.Errorf("expected already_terminal, got %s", result.Outcome)
	}
	if len(recorder.subjects) != 0 {
		t.Error("terminal no-op must not checkpoint")
	}
}

func TestAdvance_CheckpointFailureKeepsTransition(t *testing.T) {
	store := &memPhaseStore{}
	recorder := &memRecorder{fail: true}
	sm, err := NewSessionStateMachine(store, passingChecklists(), recorder, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	result, advErr := sm.Advance()
	if advErr == nil {
		t.Fatal("expected checkpoint failure to surface")
	}
	if result.Outcome != models.AdvanceOK || result.To != models.PhaseImplement {
		t.Errorf("transition should stand despite checkpoint failure: %+v", result)
	}
	if sm.Current().Name != models.PhaseImplement {
		t.Error("phase should remain advanced")
	}
}

func TestAdvance_PersistFailureAbortsTransition(t *testing.T) {
	store := &memPhaseStore{}
	sm, err := NewSessionStateMachine(store, passingChecklists(), nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	store.fail = true
	_, advErr := sm.Advance()
	if advErr == nil {
		t.Fatal("expected persistence error")
	}
	if sm.Current().Name != models.PhaseInit {
		t.Error("phase must not change when the new phase cannot be persisted")
	}
}
