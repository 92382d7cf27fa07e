package testutil

import (
	"fmt"
	"sync"
	"time"
)

// StubClock returns a fixed time. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock set to the given time.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to 2024-01-16 12:00:05 +05:30.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 16, 12, 0, 5, 0, time.FixedZone("IST", 5*3600+1800)))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SeqIDGenerator produces "id-1", "id-2", ... deterministically.
type SeqIDGenerator struct {
	mu sync.Mutex
	n  int
}

func NewSeqIDGenerator() *SeqIDGenerator { return &SeqIDGenerator{} }

func (g *SeqIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}
