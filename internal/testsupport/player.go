package testsupport

import (
	"context"
	"sync"
	"time"
)

// Player is a recording control handle.
type Player struct {
	mu      sync.Mutex
	plays   int
	pauses  int
	seeks   []int64
	playErr error
}

// Play records a start and returns the configured error.
func (p *Player) Play(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	return p.playErr
}

// Pause records a pause.
func (p *Player) Pause(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses++
	return nil
}

// Seek records the requested position.
func (p *Player) Seek(positionMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeks = append(p.seeks, positionMs)
}

// FailPlay makes subsequent Play calls return err.
func (p *Player) FailPlay(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playErr = err
}

// Plays returns the number of Play calls.
func (p *Player) Plays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}

// Pauses returns the number of Pause calls.
func (p *Player) Pauses() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pauses
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
}

// Now returns the current virtual time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
