// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

// Package busclient is the shared core used by the taskspace CLI and
// the tool-protocol endpoint (spec.md §4.3): find the daemon's socket,
// connect, write one line, half-close, and wait briefly for the other
// side to close before exiting.
package busclient

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"
)

// SocketEnvVar overrides the default socket path when set, matching
// the controller binary it is named after.
const SocketEnvVar = "THEOLDSWITCHEROO_SOCKET"

// closeWait is how long Send waits for the daemon to close its end
// after a half-close, before giving up and exiting zero anyway (the
// daemon may simply have nothing to say back).
const closeWait = 5 * time.Second

// ErrUnavailable is returned when the daemon's socket does not exist.
var ErrUnavailable = errors.New("bus daemon is unavailable")

// SocketFileName is the bus daemon socket's fixed name under the
// remote base directory.
const SocketFileName = "daemon.sock"

// DefaultSocketPath returns the fixed socket location under baseDir,
// or the THEOLDSWITCHEROO_SOCKET override if set. Callers resolving a
// socket path for their own process's use (switcheroo-agent, the
// tool-protocol front-end) want this; the controller, which builds
// the remote daemon's command line from its own local environment,
// wants SocketFileName directly instead so a locally-set override
// never leaks into the remote invocation.
func DefaultSocketPath(baseDir string) string {
	if override := os.Getenv(SocketEnvVar); override != "" {
		return override
	}
	return filepath.Join(baseDir, SocketFileName)
}

// Send connects to the daemon at socketPath, writes line (which must
// already end in a newline), half-closes the write side, and waits up
// to closeWait for the daemon to close its end.
func Send(socketPath string, line []byte) error {
	if _, err := os.Stat(socketPath); err != nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, socketPath)
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("%w: connecting to %s: %v", ErrUnavailable, socketPath, err)
	}
	defer conn.Close()

	if _, err := conn.Write(line); err != nil {
		return fmt.Errorf("writing event to bus: %w", err)
	}

	unixConn, ok := conn.(*net.UnixConn)
	if ok {
		if err := unixConn.CloseWrite(); err != nil {
			return fmt.Errorf("half-closing bus connection: %w", err)
		}
	}

	conn.SetReadDeadline(time.Now().Add(closeWait))
	_, err = io.Copy(io.Discard, conn)
	if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		return nil
	}
	return nil
}
