// Package testutil holds deterministic clocks, fake providers and store
// fixtures shared by package tests and the scenario harness.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant every DeterministicClock reports by default.
var Epoch = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe stepping wall clock for tests.
//
// Each call to Now advances by a fixed step, so timestamps written by the
// store are reproducible and strictly increasing. Reset restarts the
// sequence, enabling the same scenario to run twice with identical output.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	n     int64
}

// NewDeterministicClock creates a clock starting at Epoch with a one-second
// step. The first call to Now returns Epoch.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(Epoch, time.Second)
}

// NewDeterministicClockAt creates a clock with an explicit start and step.
func NewDeterministicClockAt(start time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{start: start.UTC(), step: step}
}

// Now returns the current instant and advances the clock one step.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Ticks returns how many times Now has been called since the last Reset.
func (c *DeterministicClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Reset restarts the clock. The next call to Now returns the start instant.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
