package models

import "time"

// FeatureType represents the kind of work a feature involves.
type FeatureType string

const (
	FeatureTypeAPI         FeatureType = "api"
	FeatureTypeUI          FeatureType = "ui"
	FeatureTypeDatabase    FeatureType = "database"
	FeatureTypeIntegration FeatureType = "integration"
	FeatureTypeConfig      FeatureType = "config"
)

// FeatureStatus represents the current lifecycle state of a feature.
type FeatureStatus string

const (
	StatusPending    FeatureStatus = "pending"
	StatusInProgress FeatureStatus = "in_progress"
	StatusBlocked    FeatureStatus = "blocked"
	StatusCompleted  FeatureStatus = "completed"
	StatusTested     FeatureStatus = "tested"
)

// Priority represents the urgency level of a feature. P0 is highest.
type Priority string

const (
	P0 Priority = "P0"
	P1 Priority = "P1"
	P2 Priority = "P2"
)

// Feature represents an atomic, independently completable unit of backlog
// work. Features are created in batch when the backlog is loaded; after that
// only the scheduler mutates Status and only the checkpoint recorder sets
// LastCheckpoint.
type Feature struct {
	ID             string        `yaml:"id"`
	Description    string        `yaml:"description"`
	Type           FeatureType   `yaml:"type"`
	Priority       Priority      `yaml:"priority"`
	Status         FeatureStatus `yaml:"status"`
	Dependencies   []string      `yaml:"dependencies,omitempty"`
	Tests          []string      `yaml:"tests,omitempty"`
	LastCheckpoint *Checkpoint   `yaml:"last_checkpoint,omitempty"`
	Created        time.Time     `yaml:"created,omitempty"`
}

// StatusCounts aggregates the backlog by feature status.
type StatusCounts struct {
	Pending    int `yaml:"pending"`
	InProgress int `yaml:"in_progress"`
	Blocked    int `yaml:"blocked"`
	Completed  int `yaml:"completed"`
	Tested     int `yaml:"tested"`
}

// Total returns the number of features across all statuses.
func (c StatusCounts) Total() int {
	return c.Pending + c.InProgress + c.Blocked + c.Completed + c.Tested
}

// Remaining returns the number of features not yet completed or tested.
func (c StatusCounts) Remaining() int {
	return c.Pending + c.InProgress + c.Blocked
}
