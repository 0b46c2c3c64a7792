// Package storage provides the persistence layer for agentpilot: the YAML
// backlog and phase files, and the SQLite-backed trace store.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentpilot/agentpilot/pkg/models"
	"gopkg.in/yaml.v3"
)

// BacklogFile is the top-level structure of backlog.yaml. Features are an
// ordered list: the scheduler breaks priority ties by this order, so it is
// preserved exactly on save.
type BacklogFile struct {
	Version  string           `yaml:"version"`
	Features []models.Feature `yaml:"features"`
}

// BacklogFileManager reads and writes the backlog file. Structural
// validation (duplicate IDs, cycles) belongs to the scheduler's Load; this
// layer only guarantees well-formed YAML.
type BacklogFileManager interface {
	Load() ([]models.Feature, error)
	Save(features []*models.Feature) error
	Exists() bool
}

type fileBacklogManager struct {
	path string
}

// NewBacklogFileManager creates a BacklogFileManager for the given file path.
func NewBacklogFileManager(path string) BacklogFileManager {
	return &fileBacklogManager{path: path}
}

func (m *fileBacklogManager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Load reads and parses the backlog file. A missing file is an error: the
// backlog is consumed once at scheduler construction and must exist.
func (m *fileBacklogManager) Load() ([]models.Feature, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("loading backlog: %w", err)
	}

	var bf BacklogFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("loading backlog: parsing YAML: %w", err)
	}
	return bf.Features, nil
}

// Save writes the features back to the backlog file, preserving order.
func (m *fileBacklogManager) Save(features []*models.Feature) error {
	bf := BacklogFile{
		Version:  "1.0",
		Features: make([]models.Feature, 0, len(features)),
	}
	for _, f := range features {
		bf.Features = append(bf.Features, *f)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return fmt.Errorf("saving backlog: creating directory: %w", err)
	}
	data, err := yaml.Marshal(&bf)
	if err != nil {
		return fmt.Errorf("saving backlog: marshaling YAML: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("saving backlog: writing file: %w", err)
	}
	return nil
}
