package models

import "time"

// Trace outcome values used by convention. Outcome is free-form text; these
// are the values the CLI and MCP surfaces write.
const (
	OutcomePending = "pending"
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// TraceRecord is a logged decision/outcome pair mined for later analysis.
// Records are append-only: they are compacted by age (payload discarded,
// metadata kept) but never deleted outright.
type TraceRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	Decision  string    `json:"decision"`
	Outcome   string    `json:"outcome,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	Compacted bool      `json:"compacted"`
}

// TraceFilter specifies criteria for querying trace records.
// All specified fields use AND logic.
type TraceFilter struct {
	Category string
	Outcome  string
	Since    *time.Time
	Until    *time.Time
	Limit    int
}
