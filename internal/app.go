// Package internal provides the App struct that wires the agentpilot
// components together: configuration, storage, the scheduler, the session
// state machine, the checkpoint recorder, and the trace store.
package internal

import (
	"fmt"
	"os"
	"time"

	"github.com/agentpilot/agentpilot/internal/cli"
	"github.com/agentpilot/agentpilot/internal/core"
	"github.com/agentpilot/agentpilot/internal/integration"
	"github.com/agentpilot/agentpilot/internal/observability"
	"github.com/agentpilot/agentpilot/internal/storage"
	"github.com/agentpilot/agentpilot/pkg/models"
)

// App holds all service dependencies for one agent session.
type App struct {
	SessionDir string
	Config     *models.SessionConfig

	// Storage layer
	BacklogFile storage.BacklogFileManager
	PhaseFile   *storage.PhaseFileManager
	Traces      storage.TraceStore

	// Core services
	Scheduler core.FeatureScheduler
	Session   core.SessionStateMachine
	Recorder  core.CheckpointRecorder

	// Integration
	Substrate *integration.GitSubstrate

	// Observability
	EventLog observability.EventLog
}

// ResolveSessionDir returns the session directory: $APILOT_SESSION_DIR if
// set, otherwise the current working directory.
func ResolveSessionDir() string {
	if dir := os.Getenv("APILOT_SESSION_DIR"); dir != "" {
		return dir
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

// NewApp wires all components for the session rooted at sessionDir.
//
// A missing backlog file leaves the scheduler empty (apilot init has not run
// yet); a malformed or cyclic backlog is a fatal configuration error. An
// unopenable trace store or event log degrades observability but does not
// prevent startup.
func NewApp(sessionDir string) (*App, error) {
	configMgr := core.NewConfigurationManager(sessionDir)
	cfg, err := configMgr.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("initializing session: %w", err)
	}
	if err := configMgr.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("initializing session: %w", err)
	}

	a := &App{
		SessionDir: sessionDir,
		Config:     cfg,
	}

	if log, err := observability.NewJSONLEventLog(core.ResolvePath(sessionDir, cfg.EventLogPath)); err == nil {
		a.EventLog = log
	} else {
		fmt.Fprintf(os.Stderr, "Warning: event log unavailable: %v\n", err)
	}

	if traces, err := storage.NewTraceStore(core.ResolvePath(sessionDir, cfg.TraceDBPath)); err == nil {
		a.Traces = traces
	} else {
		fmt.Fprintf(os.Stderr, "Warning: trace store unavailable: %v\n", err)
	}

	var events core.EventLogger
	if a.EventLog != nil {
		events = &eventLogAdapter{log: a.EventLog}
	}
	var sink core.TraceSink
	if a.Traces != nil {
		sink = a.Traces
	}

	a.BacklogFile = storage.NewBacklogFileManager(core.ResolvePath(sessionDir, cfg.BacklogPath))
	a.PhaseFile = storage.NewPhaseFileManager(core.ResolvePath(sessionDir, cfg.PhasePath))
	a.Substrate = integration.NewGitSubstrate(core.ResolvePath(sessionDir, cfg.RepoPath))

	a.Scheduler = core.NewFeatureScheduler(events, sink)
	if a.BacklogFile.Exists() {
		features, err := a.BacklogFile.Load()
		if err != nil {
			return nil, fmt.Errorf("initializing session: %w", err)
		}
		if err := a.Scheduler.Load(features); err != nil {
			return nil, fmt.Errorf("initializing session: %w", err)
		}
	}

	a.Recorder = core.NewCheckpointRecorder(
		a.Substrate,
		a.Scheduler,
		core.ResolvePath(sessionDir, cfg.LockPath),
		events,
	)

	checklists := core.DefaultChecklists(a.Scheduler.Aggregate, sessionDir, cfg.RequiredFiles, cfg.HookScripts)
	session, err := core.NewSessionStateMachine(a.PhaseFile, checklists, a.Recorder, sink, events)
	if err != nil {
		return nil, fmt.Errorf("initializing session: %w", err)
	}
	a.Session = session

	cli.SessionDir = sessionDir
	cli.Config = cfg
	cli.Scheduler = a.Scheduler
	cli.Session = a.Session
	cli.Recorder = a.Recorder
	cli.Traces = a.Traces
	cli.EventLog = a.EventLog
	cli.SaveBacklog = a.SaveBacklog

	return a, nil
}

// SaveBacklog persists the scheduler's current feature state (statuses and
// checkpoint back-references) to the backlog file.
func (a *App) SaveBacklog() error {
	return a.BacklogFile.Save(a.Scheduler.All())
}

// Close releases the trace store and event log handles.
func (a *App) Close() error {
	var firstErr error
	if a.Traces != nil {
		if err := a.Traces.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.EventLog != nil {
		if err := a.EventLog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.Event{
		Time:    time.Now().UTC(),
		Level:   "INFO",
		Type:    eventType,
		Message: eventType,
		Data:    data,
	})
}
