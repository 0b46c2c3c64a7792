package core

import (
	"fmt"
	"time"

	"github.com/agentpilot/agentpilot/pkg/models"
)

// Substrate is the persistence collaborator checkpoints are written through.
// The core assumes nothing about the backend beyond atomicity of CommitAll
// and an opaque identifier for the committed state.
type Substrate interface {
	HasPendingChanges() (bool, error)
	CommitAll(label string) (string, error)
}

// CheckpointWriteback is the subset of the scheduler the recorder needs to
// back-fill a feature's last_checkpoint reference.
type CheckpointWriteback interface {
	SetLastCheckpoint(id string, cp models.Checkpoint) error
}

// CheckpointResult reports the outcome of one checkpoint request. Skipped is
// true when the substrate had nothing to persist; that is a normal result,
// distinct from failure.
type CheckpointResult struct {
	Checkpoint *models.Checkpoint
	Skipped    bool
}

// CheckpointRecorder wraps a scheduler or session state change in a durable,
// atomic checkpoint.
type CheckpointRecorder interface {
	Checkpoint(subject, label string) (CheckpointResult, error)
}

type checkpointRecorder struct {
	substrate Substrate
	scheduler CheckpointWriteback
	lockPath  string
	events    EventLogger
}

// NewCheckpointRecorder creates a recorder that serializes checkpoint writes
// through the lock file at lockPath. scheduler may be nil when no feature
// write-back is needed; events may be nil.
func NewCheckpointRecorder(substrate Substrate, scheduler CheckpointWriteback, lockPath string, events EventLogger) CheckpointRecorder {
	return &checkpointRecorder{
		substrate: substrate,
		scheduler: scheduler,
		lockPath:  lockPath,
		events:    events,
	}
}

// Checkpoint atomically persists all pending substrate changes as one unit
// under an exclusive lock held for the duration of the write. When there is
// nothing to persist it returns Skipped without error, and no checkpoint id
// is produced. Substrate failures surface as *PersistenceError and are never
// retried here: retrying a write that failed midway risks double-recording,
// so the caller decides after inspecting substrate state.
//
// If subject names a feature, the resulting checkpoint is written back onto
// that feature via the scheduler; the session subject touches no feature.
func (r *checkpointRecorder) Checkpoint(subject, label string) (CheckpointResult, error) {
	if subject == "" {
		return CheckpointResult{}, fmt.Errorf("checkpointing: subject must not be empty")
	}
	if label == "" {
		label = "checkpoint: " + subject
	}

	unlock, err := lockFile(r.lockPath)
	if err != nil {
		return CheckpointResult{}, &PersistenceError{Op: "acquiring write lock", Err: err}
	}
	defer func() { _ = unlock() }()

	pending, err := r.substrate.HasPendingChanges()
	if err != nil {
		return CheckpointResult{}, &PersistenceError{Op: "inspecting pending changes", Err: err}
	}
	if !pending {
		r.logEvent("checkpoint.skipped", map[string]any{"subject": subject})
		return CheckpointResult{Skipped: true}, nil
	}

	id, err := r.substrate.CommitAll(label)
	if err != nil {
		return CheckpointResult{}, &PersistenceError{Op: "committing changes", Err: err}
	}

	cp := models.Checkpoint{
		ID:        id,
		Label:     label,
		Subject:   subject,
		CreatedAt: time.Now().UTC(),
	}

	if subject != models.SessionSubject && r.scheduler != nil {
		if err := r.scheduler.SetLastCheckpoint(subject, cp); err != nil {
			return CheckpointResult{Checkpoint: &cp}, fmt.Errorf("checkpoint %s recorded but feature write-back failed: %w", cp.ID, err)
		}
	}

	r.logEvent("checkpoint.recorded", map[string]any{
		"id":      cp.ID,
		"subject": subject,
		"label":   label,
	})
	return CheckpointResult{Checkpoint: &cp}, nil
}

func (r *checkpointRecorder) logEvent(eventType string, data map[string]any) {
	if r.events == nil {
		return
	}
	_ = r.events.LogEvent(eventType, data)
}
