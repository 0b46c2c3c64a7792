package core

import (
	"fmt"
	"strings"

	"github.com/agentpilot/agentpilot/pkg/models"
)

// ConfigError reports a malformed or cyclic backlog. It is fatal: the
// scheduler refuses to load and never attempts to repair the input.
type ConfigError struct {
	Reason string
	// IDs lists the offending feature IDs, when the problem is attributable
	// to specific entries (duplicate IDs, unknown dependencies, cycle members).
	IDs []string
}

func (e *ConfigError) Error() string {
	if len(e.IDs) == 0 {
		return fmt.Sprintf("invalid backlog: %s", e.Reason)
	}
	return fmt.Sprintf("invalid backlog: %s: %s", e.Reason, strings.Join(e.IDs, ", "))
}

// InvalidTransitionError reports an illegal feature status change. The call
// is rejected and no state is modified; the caller may retry with a valid
// transition.
type InvalidTransitionError struct {
	FeatureID string
	From      models.FeatureStatus
	To        models.FeatureStatus
	Reason    string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition for %s: %s -> %s", e.FeatureID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ExitCriteriaNotMet signals that a phase's checklist has failing checks.
// It is an expected outcome, not a fault: the session simply stays in the
// current phase. The failed check names are carried for diagnostics.
type ExitCriteriaNotMet struct {
	Phase     models.PhaseName
	Failed    []string
	Checklist models.ChecklistResult
}

func (e *ExitCriteriaNotMet) Error() string {
	return fmt.Sprintf("exit criteria not met for %s: %d check(s) failed: %s",
		e.Phase, len(e.Failed), strings.Join(e.Failed, ", "))
}

// PersistenceError reports that the persistence substrate refused or failed
// a checkpoint write. The recorder never retries on its own; the caller
// decides after inspecting substrate state.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence substrate: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// StorageError reports that the trace store is unreadable or unwritable.
// Trace loss degrades observability but must never block scheduling or
// checkpointing.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("trace store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
