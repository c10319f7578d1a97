package testutil

import "sync"

// DefaultEpochMs is the first timestamp a DeterministicClock returns.
const DefaultEpochMs int64 = 1_700_000_000_000

// DeterministicClock is a wall clock for tests that advances by one second on
// every reading.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	epoch int64
	ticks int64
}

// NewDeterministicClock creates a clock whose first reading is DefaultEpochMs.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{epoch: DefaultEpochMs}
}

// NowMs returns the next timestamp in milliseconds.
func (c *DeterministicClock) NowMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.epoch + c.ticks*1000
	c.ticks++
	return now
}

// Readings returns how many times NowMs has been called.
func (c *DeterministicClock) Readings() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset rewinds the clock so the next reading is DefaultEpochMs again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
