package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentpilot/agentpilot/pkg/models"
)

// Check is a single named exit-criteria predicate. Run inspects ambient
// session facts (filesystem, scheduler aggregate) and reports Pass or
// Fail(reason); it never returns an error.
type Check struct {
	Name string
	Run  func() models.CheckResult
}

// PhaseStore is the subset of the phase persistence layer the state machine
// needs. The active phase is replaced wholesale on each transition, never
// mutated in place.
type PhaseStore interface {
	SavePhase(phase models.SessionPhase) error
	LoadPhase() (*models.SessionPhase, error)
}

// CheckpointRequester is the subset of the checkpoint recorder the state
// machine needs to checkpoint the session itself after an advance.
type CheckpointRequester interface {
	Checkpoint(subject, label string) (CheckpointResult, error)
}

// SessionStateMachine owns the session's linear lifecycle:
// INIT -> IMPLEMENT -> TEST -> COMPLETE. A phase is exited only forward,
// never skipped, and only once its ordered exit-criteria checklist passes
// in full.
type SessionStateMachine interface {
	Current() models.SessionPhase
	VerifyExit() models.ChecklistResult
	Advance() (models.AdvanceResult, error)
}

type sessionStateMachine struct {
	phase      models.SessionPhase
	checklists map[models.PhaseName][]Check
	store      PhaseStore
	recorder   CheckpointRequester
	traces     TraceSink
	events     EventLogger
}

// NewSessionStateMachine creates a state machine resuming from the phase in
// store, or starting at INIT when no phase has been persisted yet. store is
// required; recorder, traces, and events may be nil.
func NewSessionStateMachine(store PhaseStore, checklists map[models.PhaseName][]Check, recorder CheckpointRequester, traces TraceSink, events EventLogger) (SessionStateMachine, error) {
	if store == nil {
		return nil, fmt.Errorf("creating state machine: phase store is required")
	}

	phase, err := store.LoadPhase()
	if err != nil {
		return nil, fmt.Errorf("creating state machine: loading phase: %w", err)
	}
	if phase == nil {
		initial := models.SessionPhase{Name: models.PhaseInit, EnteredAt: time.Now().UTC()}
		if err := store.SavePhase(initial); err != nil {
			return nil, fmt.Errorf("creating state machine: saving initial phase: %w", err)
		}
		phase = &initial
	}

	return &sessionStateMachine{
		phase:      *phase,
		checklists: checklists,
		store:      store,
		recorder:   recorder,
		traces:     traces,
		events:     events,
	}, nil
}

// Current returns the active phase.
func (m *sessionStateMachine) Current() models.SessionPhase {
	return m.phase
}

// VerifyExit runs the current phase's ordered checklist and returns the
// structured result. Check failures are data, not errors.
func (m *sessionStateMachine) VerifyExit() models.ChecklistResult {
	checks := m.checklists[m.phase.Name]
	result := models.ChecklistResult{
		Phase: m.phase.Name,
		Total: len(checks),
	}

	for _, check := range checks {
		cr := check.Run()
		cr.Name = check.Name
		if cr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Results = append(result.Results, cr)
	}

	return result
}

// Advance verifies the current phase's exit criteria and, when every check
// passes, replaces the phase with its successor and persists the new phase.
// A failing checklist returns *ExitCriteriaNotMet and leaves the phase
// unchanged. Advancing from COMPLETE is a no-op reporting AlreadyTerminal.
//
// On a successful advance the session itself is checkpointed and a trace
// record summarizing the passed checks is appended. If the checkpoint fails
// the transition stands and the substrate error is returned alongside it.
func (m *sessionStateMachine) Advance() (models.AdvanceResult, error) {
	if m.phase.Name == models.PhaseComplete {
		return models.AdvanceResult{
			Outcome: models.AdvanceAlreadyTerminal,
			From:    models.PhaseComplete,
			To:      models.PhaseComplete,
		}, nil
	}

	checklist := m.VerifyExit()
	if checklist.Failed > 0 {
		return models.AdvanceResult{}, &ExitCriteriaNotMet{
			Phase:     m.phase.Name,
			Failed:    checklist.FailedNames(),
			Checklist: checklist,
		}
	}

	next, ok := m.phase.Next()
	if !ok {
		// Unreachable while PhaseOrder is linear and COMPLETE is handled above.
		return models.AdvanceResult{}, fmt.Errorf("advancing: no successor for phase %s", m.phase.Name)
	}

	from := m.phase.Name
	newPhase := models.SessionPhase{Name: next, EnteredAt: time.Now().UTC()}
	if err := m.store.SavePhase(newPhase); err != nil {
		return models.AdvanceResult{}, fmt.Errorf("advancing %s -> %s: persisting phase: %w", from, next, err)
	}
	m.phase = newPhase

	m.logEvent("session.phase_advanced", map[string]any{
		"from":          string(from),
		"to":            string(next),
		"checks_passed": checklist.Passed,
	})
	m.appendTrace(from, next, checklist)

	result := models.AdvanceResult{
		Outcome:   models.AdvanceOK,
		From:      from,
		To:        next,
		Checklist: checklist,
	}

	if m.recorder != nil {
		label := fmt.Sprintf("session: phase %s -> %s", from, next)
		if _, err := m.recorder.Checkpoint(models.SessionSubject, label); err != nil {
			return result, fmt.Errorf("phase advanced to %s but session checkpoint failed: %w", next, err)
		}
	}

	return result, nil
}

func (m *sessionStateMachine) appendTrace(from, to models.PhaseName, checklist models.ChecklistResult) {
	if m.traces == nil {
		return
	}
	passed := make([]string, 0, len(checklist.Results))
	for _, c := range checklist.Results {
		if c.Passed {
			passed = append(passed, c.Name)
		}
	}
	rec := models.TraceRecord{
		Timestamp: time.Now().UTC(),
		Category:  "state",
		Decision:  fmt.Sprintf("Advanced %s -> %s", from, to),
		Outcome:   models.OutcomeSuccess,
		Payload:   "checks passed: " + strings.Join(passed, ", "),
	}
	if err := m.traces.Append(rec); err != nil {
		m.logEvent("trace.append_failed", map[string]any{"error": err.Error()})
	}
}

func (m *sessionStateMachine) logEvent(eventType string, data map[string]any) {
	if m.events == nil {
		return
	}
	_ = m.events.LogEvent(eventType, data)
}
