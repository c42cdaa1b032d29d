package status

import (
	"sync"
	"time"
)

// Status is the latest message reported for a step.
type Status struct {
	Step      string    `json:"step"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Board stores the latest status message per step, in the order steps first reported.
type Board struct {
	mu       sync.RWMutex
	order    []string
	statuses map[string]Status
	now      func() time.Time
}

// NewBoard creates an empty Board.
func NewBoard() *Board {
	return &Board{
		statuses: make(map[string]Status),
		now:      time.Now,
	}
}

// Set records the status for a step. Board implements orchestrator.StatusSink.
func (b *Board) Set(step, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.statuses[step]; !ok {
		b.order = append(b.order, step)
	}
	b.statuses[step] = Status{Step: step, Message: message, UpdatedAt: b.now()}
}

// Get returns the current message for a step, or "" if it has not reported.
func (b *Board) Get(step string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.statuses[step].Message
}

// All returns a copy of every status in first-report order.
func (b *Board) All() []Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Status, 0, len(b.order))
	for _, step := range b.order {
		out = append(out, b.statuses[step])
	}
	return out
}

// Messages returns the current messages keyed by step.
func (b *Board) Messages() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.statuses))
	for step, s := range b.statuses {
		out[step] = s.Message
	}
	return out
}

// Reset clears the board before a new run.
func (b *Board) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.order = nil
	b.statuses = make(map[string]Status)
}
