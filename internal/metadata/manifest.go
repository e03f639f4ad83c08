package metadata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// ManifestFile is the name of the build manifest inside the output directory.
const ManifestFile = ".build_manifest.json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DataFile describes a single parquet file written by a step.
type DataFile struct {
	Path        string         `json:"path"`
	FileSize    int64          `json:"file_size_in_bytes"`
	RecordCount int64          `json:"record_count"`
	Partition   map[string]any `json:"partition,omitempty"`
}

// StepRecord is the manifest entry of a completed step.
type StepRecord struct {
	Target         string     `json:"target,omitempty"`
	CompletedAt    time.Time  `json:"completed_at"`
	ElapsedSeconds float64    `json:"elapsed_seconds"`
	RunID          string     `json:"run_id,omitempty"`
	Files          []DataFile `json:"files,omitempty"`
}

// Manifest records which build steps have completed. It is keyed by step id
// so a renamed step version is treated as never built.
type Manifest struct {
	path  string
	steps map[string]StepRecord
}

func Path(outputDir string) string {
	return filepath.Join(outputDir, ManifestFile)
}

// Load reads the manifest of outputDir. A missing file yields an empty
// manifest.
func Load(outputDir string) (*Manifest, error) {
	m := &Manifest{path: Path(outputDir), steps: map[string]StepRecord{}}
	b, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := json.Unmarshal(b, &m.steps); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", m.path, err)
	}
	if m.steps == nil {
		m.steps = map[string]StepRecord{}
	}
	return m, nil
}

// Empty returns a manifest for outputDir with no completed steps.
func Empty(outputDir string) *Manifest {
	return &Manifest{path: Path(outputDir), steps: map[string]StepRecord{}}
}

func (m *Manifest) Has(stepID string) bool {
	_, ok := m.steps[stepID]
	return ok
}

func (m *Manifest) Get(stepID string) (StepRecord, bool) {
	rec, ok := m.steps[stepID]
	return rec, ok
}

func (m *Manifest) Record(stepID string, rec StepRecord) {
	m.steps[stepID] = rec
}

// StepIDs returns the recorded step ids sorted.
func (m *Manifest) StepIDs() []string {
	ids := make([]string, 0, len(m.steps))
	for id := range m.steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Save writes the manifest through a temporary file and renames it into
// place.
func (m *Manifest) Save() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m.steps, "", "  ")
	if err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit manifest: %w", err)
	}
	return nil
}

// NewRunID identifies one build invocation in the manifest and in logs.
func NewRunID() string {
	return uuid.NewString()
}
