package logging

import (
	"slices"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Collector stores captured log records per step. It is safe for concurrent use.
type Collector struct {
	mu      sync.RWMutex
	order   []string
	entries map[string][]Entry
	limit   int
	dropped map[string]int
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithEntryLimit caps the number of records kept per step. Older records are kept;
// later ones are counted in Dropped.
func WithEntryLimit(n int) CollectorOption {
	return func(c *Collector) {
		c.limit = n
	}
}

// NewCollector creates an empty Collector.
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		entries: make(map[string][]Entry),
		dropped: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add records an entry for the step.
func (c *Collector) Add(step string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, seen := c.entries[step]
	if !seen {
		c.order = append(c.order, step)
	}
	if c.limit > 0 && len(existing) >= c.limit {
		c.dropped[step]++
		return
	}
	c.entries[step] = append(existing, e)
}

// Entries returns a copy of the records captured for the step.
func (c *Collector) Entries(step string) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.entries[step])
}

// Steps returns the steps that logged anything, in the order they first logged.
func (c *Collector) Steps() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.order)
}

// All returns a copy of every captured record grouped by step.
func (c *Collector) All() map[string][]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]Entry, len(c.entries))
	for step, entries := range c.entries {
		out[step] = slices.Clone(entries)
	}
	return out
}

// Dropped returns how many records were discarded for the step because of the entry limit.
func (c *Collector) Dropped(step string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dropped[step]
}

// Reset removes all captured records.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.entries = make(map[string][]Entry)
	c.dropped = make(map[string]int)
}
