package scheduler

import (
	"sync"
	"time"

	"github.com/pydio/gosync/pkg/config"
)

// Looper triggers a job's sync on a schedule. Implementations are not
// reusable after Stop.
type Looper interface {
	// Start begins invoking fn on the schedule. The first invocation
	// timing is implementation-defined.
	Start(fn func())
	// Stop halts the schedule and joins the trigger goroutine.
	Stop()
}

// FromFrequency builds the right looper for a configured frequency.
func FromFrequency(f config.Frequency) Looper {
	if f.At != nil {
		return NewClock(f.At.Hour, f.At.Minute)
	}
	return NewPeriodic(f.Every)
}

// Periodic triggers at a fixed interval, starting with an immediate run.
type Periodic struct {
	interval time.Duration
	stopCh   chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// NewPeriodic creates a periodic looper.
func NewPeriodic(interval time.Duration) *Periodic {
	return &Periodic{
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start implements Looper.
func (p *Periodic) Start(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		// run once right away; the ticker covers the rest
		fn()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-p.stopCh:
				return
			}
		}
	}()
}

// Stop implements Looper.
func (p *Periodic) Stop() {
	p.once.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// Clock triggers once a day at a fixed local time.
type Clock struct {
	hour   int
	minute int
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewClock creates a daily looper for HH:MM local time.
func NewClock(hour, minute int) *Clock {
	return &Clock{
		hour:   hour,
		minute: minute,
		stopCh: make(chan struct{}),
	}
}

// NextRun returns the next occurrence of the scheduled time after now.
func (c *Clock) NextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), c.hour, c.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// Start implements Looper.
func (c *Clock) Start(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			wait := time.Until(c.NextRun(time.Now()))
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
				fn()
			case <-c.stopCh:
				timer.Stop()
				return
			}
		}
	}()
}

// Stop implements Looper.
func (c *Clock) Stop() {
	c.once.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}
