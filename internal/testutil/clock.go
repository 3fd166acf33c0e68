package testutil

import (
	"sync"
	"time"
)

// Epoch is the time FixedClock starts at.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is a database.Clock that only moves when told to.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStubClock(t time.Time) *StubClock { return &StubClock{now: t} }

// FixedClock returns a StubClock at Epoch.
func FixedClock() *StubClock { return NewStubClock(Epoch) }

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	now := c.now
	c.mu.Unlock()
	return now
}

// Advance moves the clock forward by d and returns the new time, so that tests
// can record the mtime the next write will get.
func (c *StubClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// StubIDGenerator hands out the queued ids first, then sequential ids
// starting at 1000.
type StubIDGenerator struct {
	mu      sync.Mutex
	queue   []int64
	counter int64
	calls   int
}

func NewStubIDGenerator(queued ...int64) *StubIDGenerator {
	return &StubIDGenerator{queue: queued, counter: 999}
}

func (g *StubIDGenerator) New() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.queue) > 0 {
		id := g.queue[0]
		g.queue = g.queue[1:]
		return id
	}
	g.counter++
	return g.counter
}

// Calls returns how many ids were drawn.
func (g *StubIDGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// ConstantIDGenerator always returns the same id.
type ConstantIDGenerator int64

func (g ConstantIDGenerator) New() int64 { return int64(g) }
