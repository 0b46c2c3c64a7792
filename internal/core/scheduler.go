// Package core contains the business logic for agentpilot: the
// dependency-aware feature scheduler, the session lifecycle state machine,
// the checkpoint recorder, and the exit-criteria checks that gate phase
// transitions.
package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/agentpilot/agentpilot/pkg/models"
)

// NextState classifies the result of a Next call so callers can decide
// whether to wait (blocked) or halt (exhausted).
type NextState string

const (
	// NextReady means a runnable feature was returned.
	NextReady NextState = "ready"
	// NextBlocked means pending or blocked work remains but nothing is
	// currently eligible. The caller should wait and retry.
	NextBlocked NextState = "blocked"
	// NextExhausted means no pending or blocked work remains; nothing more
	// will ever become runnable. The caller should halt.
	NextExhausted NextState = "exhausted"
)

// EventLogger is the narrow observability interface core components report
// through. Logging failures are swallowed by implementations; observability
// loss never affects correctness.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// TraceSink receives decision/outcome records. Appends from core are
// best-effort: a failing sink degrades observability, not scheduling.
type TraceSink interface {
	Append(rec models.TraceRecord) error
}

// TraceQuerier is implemented by sinks that can report previously recorded
// traces. Load consults it so a feature's creation trace is recorded once,
// not once per process start over the same backlog.
type TraceQuerier interface {
	Query(filter models.TraceFilter) ([]models.TraceRecord, error)
}

// FeatureScheduler owns the task backlog: it validates the dependency graph
// at load time, computes the next runnable feature lazily, and enforces the
// feature status transition table.
type FeatureScheduler interface {
	Load(features []models.Feature) error
	Next() (*models.Feature, NextState)
	Mark(id string, status models.FeatureStatus) error
	Aggregate() models.StatusCounts
	Get(id string) (*models.Feature, error)
	All() []*models.Feature
	SetLastCheckpoint(id string, cp models.Checkpoint) error
}

// featureScheduler implements FeatureScheduler over an in-memory backlog.
// Operations are synchronous and single-session (one writer); no locking.
type featureScheduler struct {
	features map[string]*models.Feature
	order    []string // insertion order, for stable tie-breaking
	events   EventLogger
	traces   TraceSink
}

// NewFeatureScheduler creates an empty scheduler. events and traces may be
// nil when observability is disabled.
func NewFeatureScheduler(events EventLogger, traces TraceSink) FeatureScheduler {
	return &featureScheduler{
		features: make(map[string]*models.Feature),
		events:   events,
		traces:   traces,
	}
}

var validTypes = map[models.FeatureType]bool{
	models.FeatureTypeAPI:         true,
	models.FeatureTypeUI:          true,
	models.FeatureTypeDatabase:    true,
	models.FeatureTypeIntegration: true,
	models.FeatureTypeConfig:      true,
}

var validPriorities = map[models.Priority]bool{
	models.P0: true,
	models.P1: true,
	models.P2: true,
}

var validStatuses = map[models.FeatureStatus]bool{
	models.StatusPending:    true,
	models.StatusInProgress: true,
	models.StatusBlocked:    true,
	models.StatusCompleted:  true,
	models.StatusTested:     true,
}

// priorityRank orders priorities for Next: P0 before P1 before P2.
var priorityRank = map[models.Priority]int{
	models.P0: 0,
	models.P1: 1,
	models.P2: 2,
}

// Load accepts the full backlog in one batch. It fails with *ConfigError on
// missing or duplicate IDs, unknown enumeration values, dependencies on
// unknown IDs, or a dependency cycle. On any failure the scheduler is left
// empty; a partial backlog is never loaded. Features without a prior
// creation trace get one recorded; reloading an unchanged backlog records
// nothing new.
func (s *featureScheduler) Load(features []models.Feature) error {
	byID := make(map[string]*models.Feature, len(features))
	order := make([]string, 0, len(features))

	var duplicates []string
	for i := range features {
		f := features[i]
		if f.ID == "" {
			return &ConfigError{Reason: fmt.Sprintf("feature at index %d has no id", i)}
		}
		if _, exists := byID[f.ID]; exists {
			duplicates = append(duplicates, f.ID)
			continue
		}
		if f.Status == "" {
			f.Status = models.StatusPending
		}
		if !validStatuses[f.Status] {
			return &ConfigError{Reason: fmt.Sprintf("unknown status %q", f.Status), IDs: []string{f.ID}}
		}
		if f.Type != "" && !validTypes[f.Type] {
			return &ConfigError{Reason: fmt.Sprintf("unknown type %q", f.Type), IDs: []string{f.ID}}
		}
		if f.Priority == "" {
			f.Priority = models.P2
		}
		if !validPriorities[f.Priority] {
			return &ConfigError{Reason: fmt.Sprintf("unknown priority %q", f.Priority), IDs: []string{f.ID}}
		}
		byID[f.ID] = &f
		order = append(order, f.ID)
	}
	if len(duplicates) > 0 {
		return &ConfigError{Reason: "duplicate ids", IDs: duplicates}
	}

	var unknownDeps []string
	for _, id := range order {
		for _, dep := range byID[id].Dependencies {
			if _, ok := byID[dep]; !ok {
				unknownDeps = append(unknownDeps, fmt.Sprintf("%s -> %s", id, dep))
			}
		}
	}
	if len(unknownDeps) > 0 {
		return &ConfigError{Reason: "dependencies on unknown ids", IDs: unknownDeps}
	}

	if cyclic := findCycle(byID, order); len(cyclic) > 0 {
		return &ConfigError{Reason: "dependency cycle", IDs: cyclic}
	}

	s.features = byID
	s.order = order

	s.logEvent("backlog.loaded", map[string]any{"count": len(order)})
	seenID, seenDecision := s.tracedCreations()
	for _, id := range order {
		decision := fmt.Sprintf("Feature created: %s", s.features[id].Description)
		if seenID[id] || seenDecision[decision] {
			continue
		}
		s.appendTrace(models.TraceRecord{
			Category: "feature",
			Decision: decision,
			Outcome:  models.OutcomePending,
			Payload:  id,
		})
	}
	return nil
}

// tracedCreations returns the feature ids and decision texts that already
// carry a creation trace. Live records are keyed by payload (the feature id);
// compacted records lost their payload, so the decision text covers them.
func (s *featureScheduler) tracedCreations() (map[string]bool, map[string]bool) {
	q, ok := s.traces.(TraceQuerier)
	if !ok {
		return nil, nil
	}
	records, err := q.Query(models.TraceFilter{Category: "feature"})
	if err != nil {
		s.logEvent("trace.query_failed", map[string]any{"error": err.Error()})
		return nil, nil
	}
	seenID := make(map[string]bool, len(records))
	seenDecision := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.Payload != "" {
			seenID[rec.Payload] = true
		}
		seenDecision[rec.Decision] = true
	}
	return seenID, seenDecision
}

// findCycle detects dependency cycles by iterative topological reduction:
// repeatedly remove features whose dependencies are all already removed. If
// a pass removes nothing while features remain, the remainder is exactly the
// cyclic set, returned sorted.
func findCycle(byID map[string]*models.Feature, order []string) []string {
	remaining := make(map[string]bool, len(order))
	for _, id := range order {
		remaining[id] = true
	}

	for len(remaining) > 0 {
		removed := false
		for _, id := range order {
			if !remaining[id] {
				continue
			}
			free := true
			for _, dep := range byID[id].Dependencies {
				if remaining[dep] {
					free = false
					break
				}
			}
			if free {
				delete(remaining, id)
				removed = true
			}
		}
		if !removed {
			cyclic := make([]string, 0, len(remaining))
			for id := range remaining {
				cyclic = append(cyclic, id)
			}
			sort.Strings(cyclic)
			return cyclic
		}
	}
	return nil
}

// Next returns the highest-priority pending feature whose dependencies have
// all reached completed or tested. Ties are broken by original insertion
// order. Eligibility is computed lazily on every call, so a feature that
// became blocked mid-session only affects its own eligibility.
func (s *featureScheduler) Next() (*models.Feature, NextState) {
	var best *models.Feature
	pending := 0
	blocked := 0

	for _, id := range s.order {
		f := s.features[id]
		switch f.Status {
		case models.StatusBlocked:
			blocked++
			continue
		case models.StatusPending:
			pending++
		default:
			continue
		}

		if !s.depsSatisfied(f) {
			continue
		}
		if best == nil || priorityRank[f.Priority] < priorityRank[best.Priority] {
			best = f
		}
	}

	if best != nil {
		s.logEvent("scheduler.next", map[string]any{"feature": best.ID, "priority": string(best.Priority)})
		cp := *best
		return &cp, NextReady
	}
	if pending > 0 || blocked > 0 {
		return nil, NextBlocked
	}
	return nil, NextExhausted
}

func (s *featureScheduler) depsSatisfied(f *models.Feature) bool {
	for _, dep := range f.Dependencies {
		d := s.features[dep]
		if d.Status != models.StatusCompleted && d.Status != models.StatusTested {
			return false
		}
	}
	return true
}

// transitions is the legal feature status transition table.
var transitions = map[models.FeatureStatus][]models.FeatureStatus{
	models.StatusPending:    {models.StatusInProgress},
	models.StatusInProgress: {models.StatusCompleted, models.StatusBlocked},
	models.StatusBlocked:    {models.StatusPending},
	models.StatusCompleted:  {models.StatusTested},
	models.StatusTested:     {},
}

// Mark transitions a feature's status. Illegal transitions fail with
// *InvalidTransitionError and leave the feature untouched. Marking a feature
// tested additionally requires a recorded checkpoint: untested work that was
// never committed cannot be declared tested.
func (s *featureScheduler) Mark(id string, status models.FeatureStatus) error {
	f, ok := s.features[id]
	if !ok {
		return fmt.Errorf("marking feature: feature %s not found", id)
	}
	if !validStatuses[status] {
		return &InvalidTransitionError{FeatureID: id, From: f.Status, To: status, Reason: "unknown status"}
	}

	allowed := false
	for _, to := range transitions[f.Status] {
		if to == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return &InvalidTransitionError{FeatureID: id, From: f.Status, To: status}
	}

	if status == models.StatusTested && f.LastCheckpoint == nil {
		return &InvalidTransitionError{
			FeatureID: id,
			From:      f.Status,
			To:        status,
			Reason:    "no checkpoint recorded; commit the work first",
		}
	}

	from := f.Status
	f.Status = status
	s.logEvent("feature.status_changed", map[string]any{
		"feature": id,
		"from":    string(from),
		"to":      string(status),
	})
	return nil
}

// Aggregate returns counts per status, consumed by the session state
// machine's exit criteria.
func (s *featureScheduler) Aggregate() models.StatusCounts {
	var counts models.StatusCounts
	for _, f := range s.features {
		switch f.Status {
		case models.StatusPending:
			counts.Pending++
		case models.StatusInProgress:
			counts.InProgress++
		case models.StatusBlocked:
			counts.Blocked++
		case models.StatusCompleted:
			counts.Completed++
		case models.StatusTested:
			counts.Tested++
		}
	}
	return counts
}

// Get returns a copy of the feature with the given ID.
func (s *featureScheduler) Get(id string) (*models.Feature, error) {
	f, ok := s.features[id]
	if !ok {
		return nil, fmt.Errorf("feature %s not found", id)
	}
	cp := *f
	return &cp, nil
}

// All returns copies of every feature in insertion order.
func (s *featureScheduler) All() []*models.Feature {
	out := make([]*models.Feature, 0, len(s.order))
	for _, id := range s.order {
		cp := *s.features[id]
		out = append(out, &cp)
	}
	return out
}

// SetLastCheckpoint back-fills the checkpoint reference onto a feature.
// Called by the checkpoint recorder after a successful commit.
func (s *featureScheduler) SetLastCheckpoint(id string, cp models.Checkpoint) error {
	f, ok := s.features[id]
	if !ok {
		return fmt.Errorf("setting checkpoint: feature %s not found", id)
	}
	f.LastCheckpoint = &cp
	return nil
}

func (s *featureScheduler) logEvent(eventType string, data map[string]any) {
	if s.events == nil {
		return
	}
	_ = s.events.LogEvent(eventType, data)
}

func (s *featureScheduler) appendTrace(rec models.TraceRecord) {
	if s.traces == nil {
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if err := s.traces.Append(rec); err != nil {
		s.logEvent("trace.append_failed", map[string]any{"error": err.Error()})
	}
}
