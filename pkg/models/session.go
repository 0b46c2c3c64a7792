package models

import "time"

// PhaseName identifies one stage of the session lifecycle.
type PhaseName string

const (
	PhaseInit      PhaseName = "INIT"
	PhaseImplement PhaseName = "IMPLEMENT"
	PhaseTest      PhaseName = "TEST"
	PhaseComplete  PhaseName = "COMPLETE"
)

// PhaseOrder lists the session phases in their strict linear order.
// The machine only ever moves forward through this list, one step at a time.
var PhaseOrder = []PhaseName{PhaseInit, PhaseImplement, PhaseTest, PhaseComplete}

// SessionPhase is the active lifecycle phase of a session. A new value
// replaces the old one on every verified transition; phases are never
// mutated in place.
type SessionPhase struct {
	Name      PhaseName `yaml:"name"`
	EnteredAt time.Time `yaml:"entered_at"`
}

// Next returns the phase that follows p, or ok=false when p is terminal.
func (p SessionPhase) Next() (PhaseName, bool) {
	for i, name := range PhaseOrder {
		if name == p.Name && i+1 < len(PhaseOrder) {
			return PhaseOrder[i+1], true
		}
	}
	return "", false
}

// CheckResult is the outcome of a single named exit-criteria check.
// A failed check carries the reason; failure is data, not an error.
type CheckResult struct {
	Name   string
	Passed bool
	Reason string
}

// Pass returns a passing CheckResult for the given check name.
func Pass(name string) CheckResult {
	return CheckResult{Name: name, Passed: true}
}

// Fail returns a failing CheckResult carrying the reason it failed.
func Fail(name, reason string) CheckResult {
	return CheckResult{Name: name, Passed: false, Reason: reason}
}

// ChecklistResult summarizes one run of a phase's exit-criteria checklist.
type ChecklistResult struct {
	Phase   PhaseName
	Total   int
	Passed  int
	Failed  int
	Results []CheckResult
}

// FailedNames returns the names of all failed checks, in checklist order.
func (r ChecklistResult) FailedNames() []string {
	var names []string
	for _, c := range r.Results {
		if !c.Passed {
			names = append(names, c.Name)
		}
	}
	return names
}

// AdvanceOutcome classifies the result of an advance attempt.
type AdvanceOutcome string

const (
	// AdvanceOK means the exit criteria passed and the phase moved forward.
	AdvanceOK AdvanceOutcome = "advanced"
	// AdvanceAlreadyTerminal means the session is at COMPLETE; advancing is a no-op.
	AdvanceAlreadyTerminal AdvanceOutcome = "already_terminal"
)

// AdvanceResult reports a successful (or no-op) phase advance.
type AdvanceResult struct {
	Outcome   AdvanceOutcome
	From      PhaseName
	To        PhaseName
	Checklist ChecklistResult
}
