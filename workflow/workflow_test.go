package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
)

// Test Helpers
// ---------------------------------------------------------------------

type fakeWorkflow struct {
	name   string
	result orchestrator.RunResult
	err    error
	run    func(ctx context.Context)
}

func (f *fakeWorkflow) Name() string { return f.name }

func (f *fakeWorkflow) Execute(ctx context.Context) (*orchestrator.ExecutionReport, error) {
	if f.run != nil {
		f.run(ctx)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.ExecutionReport{Chain: f.name, Result: f.result}, nil
}

func (f *fakeWorkflow) Snapshot() *orchestrator.ExecutionReport {
	return &orchestrator.ExecutionReport{Chain: f.name}
}

// Tests
// ---------------------------------------------------------------------

func TestGroup_ReportsInOrder(t *testing.T) {
	g := Compose([]Workflow{
		&fakeWorkflow{name: "a", result: orchestrator.ResultSuccess},
		&fakeWorkflow{name: "b", result: orchestrator.ResultPartialFailure},
	})

	reports, err := g.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "a", reports[0].Chain)
	assert.Equal(t, "b", reports[1].Chain)
	assert.False(t, Succeeded(reports), "one chain failed")
}

func TestGroup_RunsConcurrently(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	both := make(chan struct{})
	go func() {
		wg.Wait()
		close(both)
	}()

	barrier := func(ctx context.Context) {
		wg.Done()
		select {
		case <-both:
		case <-time.After(5 * time.Second):
		}
	}
	g := Compose([]Workflow{
		&fakeWorkflow{name: "a", result: orchestrator.ResultSuccess, run: barrier},
		&fakeWorkflow{name: "b", result: orchestrator.ResultSuccess, run: barrier},
	})

	start := time.Now()
	reports, err := g.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, Succeeded(reports))
	assert.Less(t, time.Since(start), 5*time.Second, "both workflows were running at the same time")
}

func TestGroup_ConcurrencyLimit(t *testing.T) {
	var running, peak atomic.Int32
	track := func(ctx context.Context) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
	}

	var wfs []Workflow
	for _, name := range []string{"a", "b", "c", "d"} {
		wfs = append(wfs, &fakeWorkflow{name: name, result: orchestrator.ResultSuccess, run: track})
	}
	_, err := Compose(wfs, WithConcurrency(1)).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), peak.Load())
}

func TestGroup_ErrorDoesNotStopOthers(t *testing.T) {
	boom := errors.New("could not build chain")
	ran := false
	g := Compose([]Workflow{
		&fakeWorkflow{name: "broken", err: boom},
		&fakeWorkflow{name: "fine", result: orchestrator.ResultSuccess, run: func(ctx context.Context) {
			ran = ctx.Err() == nil
		}},
	}, WithConcurrency(1))

	reports, err := g.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "workflow broken")
	assert.True(t, ran, "the second workflow ran with a live context")
	assert.Nil(t, reports[0])
	assert.NotNil(t, reports[1])
	assert.False(t, Succeeded(reports))
}

func TestGroup_Snapshots(t *testing.T) {
	g := Compose([]Workflow{&fakeWorkflow{name: "a"}, &fakeWorkflow{name: "b"}})
	snaps := g.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "b", snaps[1].Chain)
	assert.Len(t, g.Workflows(), 2)
}

func TestSucceeded_Empty(t *testing.T) {
	assert.False(t, Succeeded(nil))
}
