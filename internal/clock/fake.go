// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called; After and Sleep waiters block until
// the clock is advanced past their deadline.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.waitersChanged = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a deterministic Clock for testing. Safe for concurrent
// use.
type FakeClock struct {
	mu             sync.Mutex
	current        time.Time
	waiters        []*fakeWaiter
	waitersChanged *sync.Cond
}

type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time
	fired    bool
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	deadline := c.current.Add(d)
	if d <= 0 {
		c.mu.Unlock()
		ch <- deadline
		return ch
	}
	c.waiters = append(c.waiters, &fakeWaiter{deadline: deadline, channel: ch})
	c.mu.Unlock()
	return ch
}

func (c *FakeClock) Sleep(d time.Duration) {
	<-c.After(d)
}

// Advance moves the fake clock forward by d, firing any waiter whose
// deadline has been reached, in deadline order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)

	ready := make([]*fakeWaiter, 0, len(c.waiters))
	remaining := make([]*fakeWaiter, 0, len(c.waiters))
	for _, w := range c.waiters {
		if !w.deadline.After(c.current) {
			ready = append(ready, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	now := c.current
	c.mu.Unlock()

	sort.Slice(ready, func(i, j int) bool { return ready[i].deadline.Before(ready[j].deadline) })
	for _, w := range ready {
		w.channel <- now
	}
}
