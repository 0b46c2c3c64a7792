package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentpilot/agentpilot/pkg/models"
	"gopkg.in/yaml.v3"
)

// PhaseFileManager persists the session's active phase. The file is
// rewritten whole on every transition: phases are replaced, never edited.
type PhaseFileManager struct {
	path string
}

// NewPhaseFileManager creates a PhaseFileManager for the given file path.
func NewPhaseFileManager(path string) *PhaseFileManager {
	return &PhaseFileManager{path: path}
}

// LoadPhase reads the persisted phase. A missing file returns nil without
// error: the session has not started yet and the state machine begins at
// INIT.
func (m *PhaseFileManager) LoadPhase() (*models.SessionPhase, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading phase: %w", err)
	}

	var phase models.SessionPhase
	if err := yaml.Unmarshal(data, &phase); err != nil {
		return nil, fmt.Errorf("loading phase: parsing YAML: %w", err)
	}
	if phase.Name == "" {
		return nil, fmt.Errorf("loading phase: file %s has no phase name", m.path)
	}
	return &phase, nil
}

// SavePhase replaces the persisted phase with the given one.
func (m *PhaseFileManager) SavePhase(phase models.SessionPhase) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return fmt.Errorf("saving phase: creating directory: %w", err)
	}
	data, err := yaml.Marshal(&phase)
	if err != nil {
		return fmt.Errorf("saving phase: marshaling YAML: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("saving phase: writing file: %w", err)
	}
	return nil
}
