package models

import "time"

// SessionSubject is the reserved checkpoint subject for the session itself,
// used when a phase transition (rather than a single feature) is being
// checkpointed.
const SessionSubject = "session"

// Checkpoint is an immutable reference into the persistence substrate tying
// a unit of work to persisted state. It is created exactly once per committed
// unit of work and never mutated or deleted.
type Checkpoint struct {
	ID        string    `yaml:"id"`
	Label     string    `yaml:"label"`
	Subject   string    `yaml:"subject"`
	CreatedAt time.Time `yaml:"created_at"`
}

// IsSession reports whether the checkpoint was taken for the session itself
// rather than for a feature.
func (c Checkpoint) IsSession() bool {
	return c.Subject == SessionSubject
}
