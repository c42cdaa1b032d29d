package runner

// StateStore manages persistence of run history.
type StateStore interface {
	// History returns the stored runs, most recent first.
	History() []RunSummary
	// Record returns the full record of a run.
	Record(id string) (RunRecord, bool)
	// Save persists a run.
	Save(RunRecord) error
}

// Reloader is implemented by stores that can re-read their backing storage.
type Reloader interface {
	Reload() error
}
