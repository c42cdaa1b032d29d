package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Test Helpers
// ---------------------------------------------------------------------

var errPermanent = errors.New("permanent failure")

// callLog records capability calls across every fake in a test, in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// fakeCapability returns the queued create errors in order, then succeeds.
type fakeCapability struct {
	log        *callLog
	createErrs []error
	deleteErrs []error
	creates    int
	deletes    int
	lastReq    CreateRequest
}

func (f *fakeCapability) Create(_ context.Context, req CreateRequest) (CreateResult, error) {
	f.creates++
	f.lastReq = req
	if f.log != nil {
		f.log.add("create:" + req.Step)
	}
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return CreateResult{}, err
		}
	}
	return CreateResult{
		ExternalID: "id-" + req.Step,
		Attributes: map[string]string{"name": req.Step},
	}, nil
}

func (f *fakeCapability) Delete(_ context.Context, h ResourceHandle) error {
	f.deletes++
	if f.log != nil {
		f.log.add("delete:" + h.Step)
	}
	if len(f.deleteErrs) > 0 {
		err := f.deleteErrs[0]
		f.deleteErrs = f.deleteErrs[1:]
		return err
	}
	return nil
}

// inspectingCapability also reports operational state.
type inspectingCapability struct {
	fakeCapability
	state map[string]string
	err   error
}

func (c *inspectingCapability) Inspect(_ context.Context, h ResourceHandle) (map[string]string, error) {
	return c.state, c.err
}

type invokerFunc func(ctx context.Context, unit ResourceHandle, payload any) (any, error)

func (f invokerFunc) Invoke(ctx context.Context, unit ResourceHandle, payload any) (any, error) {
	return f(ctx, unit, payload)
}

// areaInvoker multiplies length and width like the demo workload.
var areaInvoker = invokerFunc(func(_ context.Context, _ ResourceHandle, payload any) (any, error) {
	in, ok := payload.(map[string]any)
	if !ok {
		return nil, errors.New("payload must be an object")
	}
	l, _ := in["length"].(int)
	w, _ := in["width"].(int)
	return map[string]any{"area": l * w}, nil
})

// recordingSleeper never sleeps but remembers what it was asked to wait.
type recordingSleeper struct {
	mu     sync.Mutex
	waits  []time.Duration
	cancel context.CancelFunc
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return ctx.Err()
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses map[string]string
}

func (s *statusRecorder) Set(step, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses == nil {
		s.statuses = make(map[string]string)
	}
	s.statuses[step] = status
}

type countingObserver struct {
	mu         sync.Mutex
	steps      []StepResult
	validation []ValidationResult
	teardown   []TeardownResult
	reports    int
}

func (c *countingObserver) StepFinished(s StepResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, s)
}

func (c *countingObserver) ValidationFinished(v ValidationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validation = append(c.validation, v)
}

func (c *countingObserver) TeardownFinished(t TeardownResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardown = append(c.teardown, t)
}

func (c *countingObserver) RunFinished(*ExecutionReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports++
}

func stepNames(steps []Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}
