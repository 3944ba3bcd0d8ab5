// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package taskspace

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/socratic-shell/theoldswitcheroo/internal/clock"
)

// probeTimeout is the per-attempt HTTP timeout.
const probeTimeout = 2 * time.Second

// probeBackoffStart and probeBackoffCap bound the exponential backoff
// between probe attempts.
const (
	probeBackoffStart = 1 * time.Second
	probeBackoffCap   = 5 * time.Second
	probeMaxAttempts  = 10
)

// ProbeLocalPort issues GET / against localhost:port, retrying with
// capped exponential backoff, until it observes a 200 response or
// exhausts probeMaxAttempts. Returns nil on a 200 response.
func ProbeLocalPort(ctx context.Context, c clock.Clock, port int) error {
	url := fmt.Sprintf("http://localhost:%d/", port)
	backoff := probeBackoffStart

	var lastErr error
	for attempt := 1; attempt <= probeMaxAttempts; attempt++ {
		err := probeOnce(ctx, url)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == probeMaxAttempts {
			break
		}
		c.Sleep(backoff)
		backoff *= 2
		if backoff > probeBackoffCap {
			backoff = probeBackoffCap
		}
	}
	return fmt.Errorf("probing localhost:%d failed after %d attempts: %w", port, probeMaxAttempts, lastErr)
}

// ProbeOnce issues a single GET / against localhost:port with no retry,
// for the periodic Running-taskspace health check (as opposed to
// ProbeLocalPort's retrying variant used right after startup).
func ProbeOnce(ctx context.Context, port int) error {
	return probeOnce(ctx, fmt.Sprintf("http://localhost:%d/", port))
}

func probeOnce(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
