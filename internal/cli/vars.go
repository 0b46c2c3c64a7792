package cli

import (
	"github.com/agentpilot/agentpilot/internal/core"
	"github.com/agentpilot/agentpilot/internal/observability"
	"github.com/agentpilot/agentpilot/internal/storage"
	"github.com/agentpilot/agentpilot/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	SessionDir string
	Config     *models.SessionConfig

	Scheduler core.FeatureScheduler
	Session   core.SessionStateMachine
	Recorder  core.CheckpointRecorder
	Traces    storage.TraceStore
	EventLog  observability.EventLog

	// SaveBacklog persists the scheduler's feature state back to the
	// backlog file after a mutation.
	SaveBacklog func() error
)
