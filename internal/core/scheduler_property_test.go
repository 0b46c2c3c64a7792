package core

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/agentpilot/agentpilot/pkg/models"
)

// genBacklog produces a random acyclic backlog: each feature may only depend
// on features that precede it in the slice, so cycles are impossible by
// construction.
func genBacklog(rt *rapid.T) []models.Feature {
	n := rapid.IntRange(1, 12).Draw(rt, "n")
	priorities := []models.Priority{models.P0, models.P1, models.P2}

	features := make([]models.Feature, n)
	for i := 0; i < n; i++ {
		f := models.Feature{
			ID:          fmt.Sprintf("feat-%02d", i),
			Description: fmt.Sprintf("generated feature %d", i),
			Priority:    rapid.SampledFrom(priorities).Draw(rt, fmt.Sprintf("prio%d", i)),
			Status:      models.StatusPending,
		}
		if i > 0 {
			depCount := rapid.IntRange(0, i).Draw(rt, fmt.Sprintf("deps%d", i))
			seen := map[int]bool{}
			for d := 0; d < depCount; d++ {
				j := rapid.IntRange(0, i-1).Draw(rt, fmt.Sprintf("dep%d_%d", i, d))
				if !seen[j] {
					seen[j] = true
					f.Dependencies = append(f.Dependencies, fmt.Sprintf("feat-%02d", j))
				}
			}
		}
		features[i] = f
	}
	return features
}

// Driving any acyclic backlog to completion through Next and Mark must
// return every feature exactly once, never return a feature before its
// dependencies are tested, and end exhausted.
func TestProperty_SchedulerDrainsAcyclicBacklog(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		features := genBacklog(rt)
		s := NewFeatureScheduler(nil, nil)
		if err := s.Load(features); err != nil {
			rt.Fatalf("loading generated backlog: %v", err)
		}

		deps := make(map[string][]string, len(features))
		for _, f := range features {
			deps[f.ID] = f.Dependencies
		}

		done := map[string]bool{}
		for i := 0; i < len(features); i++ {
			next, state := s.Next()
			if state != NextReady {
				rt.Fatalf("expected ready with %d features left, got %s", len(features)-i, state)
			}
			if done[next.ID] {
				rt.Fatalf("feature %s returned twice", next.ID)
			}
			for _, dep := range deps[next.ID] {
				if !done[dep] {
					rt.Fatalf("feature %s returned before dependency %s finished", next.ID, dep)
				}
			}

			if err := s.Mark(next.ID, models.StatusInProgress); err != nil {
				rt.Fatalf("marking in_progress: %v", err)
			}
			if err := s.Mark(next.ID, models.StatusCompleted); err != nil {
				rt.Fatalf("marking completed: %v", err)
			}
			if err := s.SetLastCheckpoint(next.ID, models.Checkpoint{ID: "cp-" + next.ID, Subject: next.ID}); err != nil {
				rt.Fatalf("setting checkpoint: %v", err)
			}
			if err := s.Mark(next.ID, models.StatusTested); err != nil {
				rt.Fatalf("marking tested: %v", err)
			}
			done[next.ID] = true
		}

		if _, state := s.Next(); state != NextExhausted {
			rt.Fatalf("expected exhausted after draining, got %s", state)
		}
	})
}

// Aggregate counts must always sum to the backlog size, whatever sequence of
// legal transitions has been applied.
func TestProperty_AggregateTotalInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		features := genBacklog(rt)
		s := NewFeatureScheduler(nil, nil)
		if err := s.Load(features); err != nil {
			rt.Fatalf("loading generated backlog: %v", err)
		}

		steps := rapid.IntRange(0, 30).Draw(rt, "steps")
		statuses := []models.FeatureStatus{
			models.StatusPending, models.StatusInProgress,
			models.StatusBlocked, models.StatusCompleted, models.StatusTested,
		}
		for i := 0; i < steps; i++ {
			idx := rapid.IntRange(0, len(features)-1).Draw(rt, fmt.Sprintf("idx%d", i))
			to := rapid.SampledFrom(statuses).Draw(rt, fmt.Sprintf("to%d", i))
			// Illegal transitions are rejected and must not disturb counts.
			_ = s.Mark(features[idx].ID, to)

			if got := s.Aggregate().Total(); got != len(features) {
				rt.Fatalf("aggregate total %d != backlog size %d", got, len(features))
			}
		}
	})
}
