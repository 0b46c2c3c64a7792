package core

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/agentpilot/agentpilot/pkg/models"
)

// fakeSubstrate simulates the persistence backend. pending holds the number
// of uncommitted change sets; each commit consumes one.
type fakeSubstrate struct {
	pending     int
	commits     []string
	failPending bool
	failCommit  bool
}

func (s *fakeSubstrate) HasPendingChanges() (bool, error) {
	if s.failPending {
		return false, errors.New("backend unreachable")
	}
	return s.pending > 0, nil
}

func (s *fakeSubstrate) CommitAll(label string) (string, error) {
	if s.failCommit {
		return "", errors.New("write failed")
	}
	s.pending--
	s.commits = append(s.commits, label)
	return "sha-" + label, nil
}

// memWriteback records SetLastCheckpoint calls.
type memWriteback struct {
	checkpoints map[string]models.Checkpoint
	fail        bool
}

func (w *memWriteback) SetLastCheckpoint(id string, cp models.Checkpoint) error {
	if w.fail {
		return errors.New("unknown feature")
	}
	if w.checkpoints == nil {
		w.checkpoints = make(map[string]models.Checkpoint)
	}
	w.checkpoints[id] = cp
	return nil
}

func newTestRecorder(t *testing.T, substrate Substrate, wb CheckpointWriteback) CheckpointRecorder {
	t.Helper()
	return NewCheckpointRecorder(substrate, wb, filepath.Join(t.TempDir(), "cp.lock"), nil)
}

func TestCheckpoint_FeatureSubjectWritesBack(t *testing.T) {
	substrate := &fakeSubstrate{pending: 1}
	wb := &memWriteback{}
	r := newTestRecorder(t, substrate, wb)

	result, err := r.Checkpoint("auth", "auth: login endpoint done")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Skipped {
		t.Fatal("expected a recorded checkpoint, got skipped")
	}
	if result.Checkpoint.ID != "sha-auth: login endpoint done" {
		t.Errorf("unexpected checkpoint id %q", result.Checkpoint.ID)
	}
	if result.Checkpoint.Subject != "auth" {
		t.Errorf("unexpected subject %q", result.Checkpoint.Subject)
	}

	cp, ok := wb.checkpoints["auth"]
	if !ok {
		t.Fatal("checkpoint was not written back to the feature")
	}
	if cp.ID != result.Checkpoint.ID {
		t.Error("written-back checkpoint must match the returned one")
	}
}

func TestCheckpoint_SessionSubjectSkipsWriteback(t *testing.T) {
	substrate := &fakeSubstrate{pending: 1}
	wb := &memWriteback{}
	r := newTestRecorder(t, substrate, wb)

	result, err := r.Checkpoint(models.SessionSubject, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Checkpoint.IsSession() {
		t.Error("expected a session checkpoint")
	}
	if result.Checkpoint.Label != "checkpoint: session" {
		t.Errorf("expected default label, got %q", result.Checkpoint.Label)
	}
	if len(wb.checkpoints) != 0 {
		t.Error("session checkpoints must not touch any feature")
	}
}

func TestCheckpoint_NothingPendingIsSkippedNotError(t *testing.T) {
	substrate := &fakeSubstrate{pending: 1}
	r := newTestRecorder(t, substrate, &memWriteback{})

	first, err := r.Checkpoint("auth", "work done")
	if err != nil {
		t.Fatalf("first checkpoint failed: %v", err)
	}
	if first.Skipped {
		t.Fatal("first checkpoint should record")
	}

	// Nothing changed since; the identical request degrades to a no-op.
	second, err := r.Checkpoint("auth", "work done")
	if err != nil {
		t.Fatalf("second checkpoint failed: %v", err)
	}
	if !second.Skipped {
		t.Error("expected skipped result with no pending changes")
	}
	if second.Checkpoint != nil {
		t.Error("a skipped checkpoint must not produce an id")
	}
	if len(substrate.commits) != 1 {
		t.Errorf("expected exactly one commit, got %d", len(substrate.commits))
	}
}

func TestCheckpoint_EmptySubjectRejected(t *testing.T) {
	r := newTestRecorder(t, &fakeSubstrate{pending: 1}, nil)
	if _, err := r.Checkpoint("", "label"); err == nil {
		t.Fatal("expected error for empty subject")
	}
}

func TestCheckpoint_SubstrateFailuresArePersistenceErrors(t *testing.T) {
	cases := []struct {
		name      string
		substrate *fakeSubstrate
	}{
		{"pending inspection", &fakeSubstrate{failPending: true}},
		{"commit", &fakeSubstrate{pending: 1, failCommit: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRecorder(t, tc.substrate, nil)
			_, err := r.Checkpoint("auth", "label")
			var perr *PersistenceError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *PersistenceError, got %v", err)
			}
		})
	}
}

func TestCheckpoint_WritebackFailureStillReturnsCheckpoint(t *testing.T) {
	substrate := &fakeSubstrate{pending: 1}
	r := newTestRecorder(t, substrate, &memWriteback{fail: true})

	result, err := r.Checkpoint("ghost", "label")
	if err == nil {
		t.Fatal("expected write-back failure to surface")
	}
	if result.Checkpoint == nil {
		t.Fatal("the recorded checkpoint must still be returned")
	}
	if len(substrate.commits) != 1 {
		t.Error("the commit itself should have happened")
	}
}
