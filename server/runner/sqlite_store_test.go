package runner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests
// ---------------------------------------------------------------------

func TestSQLiteStore_SaveAndHistory(t *testing.T) {
	store := newTestSQLiteStore(t, 10)

	now := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(testRecord(now.Add(time.Duration(i)*time.Minute), "")))
	}

	history := store.History()
	require.Len(t, history, 3)
	for i := 0; i < len(history)-1; i++ {
		assert.True(t, history[i].StartedAt.After(*history[i+1].StartedAt))
	}
	assert.Equal(t, "test", history[0].Trigger)
	assert.Equal(t, []string{"demo"}, history[0].Chains)
	assert.Equal(t, ResultSuccess, history[0].Result)
	require.NotNil(t, history[0].EndedAt)
}

func TestSQLiteStore_Record(t *testing.T) {
	store := newTestSQLiteStore(t, 10)
	require.NoError(t, store.Save(testRecord(time.Now(), "run-1")))

	got, ok := store.Record("run-1")
	require.True(t, ok)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "function", got.Steps[0].Step)

	_, ok = store.Record("missing")
	assert.False(t, ok)
}

func TestSQLiteStore_SaveReplaces(t *testing.T) {
	store := newTestSQLiteStore(t, 10)

	run := testRecord(time.Now(), "run-1")
	require.NoError(t, store.Save(run))
	run.Result = ResultPartialFailure
	run.LeftBehind = 2
	require.NoError(t, store.Save(run))

	history := store.History()
	require.Len(t, history, 1)
	assert.Equal(t, ResultPartialFailure, history[0].Result)
	assert.Equal(t, 2, history[0].LeftBehind)
}

func TestSQLiteStore_Prunes(t *testing.T) {
	store := newTestSQLiteStore(t, 2)

	now := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Save(testRecord(now.Add(time.Duration(i)*time.Minute), "")))
	}
	assert.Len(t, store.History(), 2)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	store, err := NewSQLiteStore(context.Background(), path, 10, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Save(testRecord(time.Now(), "kept")))
	require.NoError(t, store.Close())

	// Migrations are already applied the second time.
	store, err = NewSQLiteStore(context.Background(), path, 10, testLogger())
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.Record("kept")
	assert.True(t, ok)
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	_, err := NewSQLiteStore(context.Background(), "", 10, testLogger())
	assert.Error(t, err)
}

// Test Helpers
// ---------------------------------------------------------------------

func newTestSQLiteStore(t *testing.T, maxCount int) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "runs.db"), maxCount, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
