// Package results persists the per-run artifacts of completed training:
// a human-readable JSON summary and versioned global-weight snapshots,
// both keyed by run ID so they survive a process restart.
package results

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	pkgerrors "github.com/absmach/fedsim/pkg/errors"
	"github.com/absmach/fedsim/pkg/fl"
	"github.com/absmach/fedsim/pkg/model"
	"github.com/absmach/fedsim/pkg/privacy"
	"github.com/absmach/fedsim/training"
)

// Artifact is the results document written once per completed run.
type Artifact struct {
	RunID        string                 `json:"run_id"`
	Name         string                 `json:"name,omitempty"`
	Config       training.RunConfig     `json:"config"`
	FinalMetrics model.Metrics          `json:"final_metrics"`
	History      []training.RoundRecord `json:"history"`
	Budget       privacy.BudgetSnapshot `json:"budget"`
	Attack       *privacy.AttackReport  `json:"attack,omitempty"`
	Baseline     *training.Baseline     `json:"baseline,omitempty"`
	SampleCounts []int                  `json:"sample_counts,omitempty"`
	CommCostMB   float64                `json:"comm_cost_mb"`
	CompletedAt  time.Time              `json:"completed_at"`
}

// snapshot is the on-disk form of one global-weight version.
type snapshot struct {
	RunID   string     `json:"run_id"`
	Version int        `json:"version"`
	Params  fl.Weights `json:"params"`
	SavedAt time.Time  `json:"saved_at"`
}

// Store writes artifacts under resultsDir and weight snapshots under a
// per-run subdirectory of modelsDir.
type Store struct {
	resultsDir string
	modelsDir  string
	mu         sync.RWMutex
}

func NewStore(resultsDir, modelsDir string) (*Store, error) {
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	return &Store{
		resultsDir: resultsDir,
		modelsDir:  modelsDir,
	}, nil
}

func (s *Store) SaveArtifact(runID string, a Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := safeRunID(runID)
	if !ok {
		return fmt.Errorf("%w: invalid run id %q", pkgerrors.ErrInvalidData, runID)
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results artifact: %w", err)
	}

	file := filepath.Join(s.resultsDir, fmt.Sprintf("run_%s.json", id))
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write results artifact: %w", err)
	}

	return nil
}

func (s *Store) LoadArtifact(runID string) (Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := safeRunID(runID)
	if !ok {
		return Artifact{}, fmt.Errorf("%w: invalid run id %q", pkgerrors.ErrInvalidData, runID)
	}

	file := filepath.Join(s.resultsDir, fmt.Sprintf("run_%s.json", id))
	data, err := os.ReadFile(file)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return Artifact{}, pkgerrors.ErrNotFound
		}

		return Artifact{}, fmt.Errorf("failed to read results artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, fmt.Errorf("failed to unmarshal results artifact: %w", err)
	}

	return a, nil
}

// SaveWeights writes the next version of a run's global weights and
// returns the version it assigned.
func (s *Store) SaveWeights(runID string, w fl.Weights) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := safeRunID(runID)
	if !ok {
		return 0, fmt.Errorf("%w: invalid run id %q", pkgerrors.ErrInvalidData, runID)
	}

	dir := filepath.Join(s.modelsDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create model directory: %w", err)
	}

	versions, err := listVersions(dir)
	if err != nil {
		return 0, err
	}
	version := 1
	if len(versions) > 0 {
		version = versions[len(versions)-1] + 1
	}

	data, err := json.MarshalIndent(snapshot{
		RunID:   runID,
		Version: version,
		Params:  w,
		SavedAt: time.Now(),
	}, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to marshal weight snapshot: %w", err)
	}

	file := filepath.Join(dir, fmt.Sprintf("model_v%d.json", version))
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write weight snapshot: %w", err)
	}

	return version, nil
}

// LoadWeights returns the latest weight snapshot of a run together with
// its version.
func (s *Store) LoadWeights(runID string) (fl.Weights, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := safeRunID(runID)
	if !ok {
		return nil, 0, fmt.Errorf("%w: invalid run id %q", pkgerrors.ErrInvalidData, runID)
	}

	dir := filepath.Join(s.modelsDir, id)
	versions, err := listVersions(dir)
	if err != nil {
		return nil, 0, err
	}
	if len(versions) == 0 {
		return nil, 0, pkgerrors.ErrNotFound
	}
	version := versions[len(versions)-1]

	file := filepath.Join(dir, fmt.Sprintf("model_v%d.json", version))
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read weight snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal weight snapshot: %w", err)
	}

	return snap.Params, version, nil
}

// Versions lists a run's snapshot versions in ascending order.
func (s *Store) Versions(runID string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := safeRunID(runID)
	if !ok {
		return nil, fmt.Errorf("%w: invalid run id %q", pkgerrors.ErrInvalidData, runID)
	}

	return listVersions(filepath.Join(s.modelsDir, id))
}

// Delete removes a run's artifact and every weight snapshot. Missing
// files are not an error; delete is how a run reset cleans up.
func (s *Store) Delete(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := safeRunID(runID)
	if !ok {
		return fmt.Errorf("%w: invalid run id %q", pkgerrors.ErrInvalidData, runID)
	}

	file := filepath.Join(s.resultsDir, fmt.Sprintf("run_%s.json", id))
	if err := os.Remove(file); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove results artifact: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(s.modelsDir, id)); err != nil {
		return fmt.Errorf("failed to remove weight snapshots: %w", err)
	}

	return nil
}

func listVersions(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "model_v%d.json", &version); err == nil {
			versions = append(versions, version)
		}
	}
	sort.Ints(versions)

	return versions, nil
}

// safeRunID reports whether a run ID can be used verbatim in a
// filename. Anything outside alphanumerics, hyphens, and underscores is
// rejected rather than rewritten, so a traversal attempt never aliases
// another run's files.
func safeRunID(runID string) (string, bool) {
	if runID == "" {
		return "", false
	}
	for _, r := range runID {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return "", false
		}
	}

	return runID, true
}
