// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewLogger creates a structured logger for the switcheroo command-line
// binaries. When stderr is a terminal, it uses slog.TextHandler for
// human-readable output. When stderr is piped or redirected (a
// background run, a test harness), it uses
// slog.JSONHandler for machine-parseable output.
func NewLogger() *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
