// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package taskspace

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/socratic-shell/theoldswitcheroo/internal/clock"
)

func startLocalServer(t *testing.T, handler http.Handler) (int, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	_, portStr, _ := net.SplitHostPort(server.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return port, server.Close
}

func TestProbeLocalPortSucceedsOn200(t *testing.T) {
	port, closeServer := startLocalServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer closeServer()

	if err := ProbeLocalPort(context.Background(), clock.Real(), port); err != nil {
		t.Fatalf("ProbeLocalPort: %v", err)
	}
}

func TestProbeLocalPortFailsOnConnectionRefused(t *testing.T) {
	fc := clock.Fake(time.Now())
	done := make(chan error, 1)
	go func() { done <- ProbeLocalPort(context.Background(), fc, 1) }()

	// Drive the fake clock through every backoff sleep so the probe loop
	// exhausts its attempts without real wall-clock delay. Each sleep is
	// registered only after its probe attempt fails, so keep advancing
	// until the loop returns rather than advancing a fixed number of
	// times up front.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			if err == nil {
				t.Fatal("expected an error probing a closed port")
			}
			return
		case <-timeout:
			t.Fatal("ProbeLocalPort did not return after exhausting attempts")
		case <-time.After(time.Millisecond):
			fc.Advance(probeBackoffCap)
		}
	}
}
