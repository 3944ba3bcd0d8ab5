// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time operations so that the controller's three
// designed timeouts (transport-setup grace, editor-server startup, and
// the health-probe backoff) can be driven deterministically in tests.
// Production code injects Real(); tests inject Fake() with explicit
// control over when time advances.
package clock

import "time"

// Clock is the subset of time operations used throughout the
// controller. Any function that would otherwise call time.Now,
// time.After, time.NewTicker, or time.Sleep directly should instead
// accept a Clock.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0 the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the calling goroutine for at least duration d.
	Sleep(d time.Duration)
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                       { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (realClock) Sleep(d time.Duration)                 { time.Sleep(d) }
