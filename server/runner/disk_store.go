package runner

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// DiskStore persists run history to disk as one JSON file per run.
type DiskStore struct {
	dir      string
	logger   *slog.Logger
	maxCount int
	runs     []RunRecord // protected by mu, most recent first
	mu       sync.Mutex
}

// NewDiskStore creates a new disk-backed store.
// The directory is created if it doesn't exist, and existing runs are loaded.
func NewDiskStore(dir string, maxCount int, logger *slog.Logger) (*DiskStore, error) {
	if maxCount <= 0 {
		maxCount = defaultMaxHistorySize
	}
	s := &DiskStore{
		dir:      dir,
		logger:   logger,
		maxCount: maxCount,
		runs:     make([]RunRecord, 0),
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	runs, err := s.load()
	if err != nil {
		logger.Warn("failed to load existing runs", "error", err)
		// Continue without existing data
	} else {
		s.runs = runs
	}

	return s, nil
}

// History returns all runs as summaries.
func (s *DiskStore) History() []RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RunSummary, len(s.runs))
	for i, run := range s.runs {
		result[i] = run.RunSummary
	}
	return result
}

// Record returns the record of a specific run.
func (s *DiskStore) Record(id string) (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		if run.ID == id {
			return run, true
		}
	}
	return RunRecord{}, false
}

// Save writes a run to disk and updates the in-memory history. Files beyond
// the history size are removed.
func (s *DiskStore) Save(run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.StartedAt == nil {
		return fmt.Errorf("cannot save run without start time")
	}
	if run.ID == "" {
		run.ID = run.CalculateID()
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	path := filepath.Join(s.dir, fileName(run.RunSummary))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}

	// Prepend to keep most recent first
	s.runs = append([]RunRecord{run}, s.runs...)
	if len(s.runs) > s.maxCount {
		for _, old := range s.runs[s.maxCount:] {
			oldPath := filepath.Join(s.dir, fileName(old.RunSummary))
			if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("failed to remove old run file", "file", oldPath, "error", err)
			}
		}
		s.runs = s.runs[:s.maxCount]
	}

	s.logger.Debug("saved run to disk", "path", path)
	return nil
}

// Reload re-loads all runs from disk.
func (s *DiskStore) Reload() error {
	runs, err := s.load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = runs
	return nil
}

// fileName is 2006-01-02T15-04-05-<id>.json, so files sort by start time.
func fileName(s RunSummary) string {
	return s.StartedAt.UTC().Format("2006-01-02T15-04-05") + "-" + s.ID + ".json"
}

func (s *DiskStore) load() ([]RunRecord, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	runs := make([]RunRecord, 0, min(len(files), s.maxCount))
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.dir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read run file", "file", path, "error", err)
			continue
		}

		var run RunRecord
		if err := json.Unmarshal(data, &run); err != nil {
			s.logger.Warn("failed to parse run file", "file", path, "error", err)
			continue
		}
		if run.ID == "" {
			run.ID = run.CalculateID()
		}
		runs = append(runs, run)
	}

	// Sort by start time descending (most recent first)
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt == nil {
			return false
		}
		if runs[j].StartedAt == nil {
			return true
		}
		return runs[i].StartedAt.After(*runs[j].StartedAt)
	})

	if len(runs) > s.maxCount {
		runs = runs[:s.maxCount]
	}

	s.logger.Info("loaded run history from disk", "count", len(runs))
	return runs, nil
}
