package runner

import "sync"

// MemoryStore keeps run history in memory only (no persistence).
type MemoryStore struct {
	runs     []RunRecord
	maxCount int
	mu       sync.Mutex
}

// NewMemoryStore creates a new in-memory store holding up to maxCount runs.
// Zero or less means the default history size.
func NewMemoryStore(maxCount int) *MemoryStore {
	if maxCount <= 0 {
		maxCount = defaultMaxHistorySize
	}
	return &MemoryStore{
		runs:     make([]RunRecord, 0),
		maxCount: maxCount,
	}
}

// History returns all runs as summaries.
func (s *MemoryStore) History() []RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RunSummary, len(s.runs))
	for i, run := range s.runs {
		result[i] = run.RunSummary
	}
	return result
}

// Record returns the record of a specific run.
func (s *MemoryStore) Record(id string) (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		if run.ID == id {
			return run, true
		}
	}
	return RunRecord{}, false
}

// Save stores a run in memory.
func (s *MemoryStore) Save(run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = run.CalculateID()
	}

	// Prepend to keep most recent first
	s.runs = append([]RunRecord{run}, s.runs...)
	if len(s.runs) > s.maxCount {
		s.runs = s.runs[:s.maxCount]
	}
	return nil
}
