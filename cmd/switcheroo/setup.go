// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/socratic-shell/theoldswitcheroo/internal/cli"
	"github.com/socratic-shell/theoldswitcheroo/internal/clock"
	"github.com/socratic-shell/theoldswitcheroo/internal/persist"
	"github.com/socratic-shell/theoldswitcheroo/internal/taskspace"
	"github.com/socratic-shell/theoldswitcheroo/internal/transport"
)

// runSetup runs just the editor-binary and bus-runtime installers
// against host and reports success, without touching any roster
// state. Useful for pre-warming a host or diagnosing installation
// failures in isolation from taskspace creation.
func runSetup(host, baseDirOverride string) error {
	if host == "" {
		return fmt.Errorf("--host is required")
	}
	logger := cli.NewLogger()

	dataDir := localDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating local data directory: %w", err)
	}
	runDir := filepath.Join(dataDir, "run")
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("creating local run directory: %w", err)
	}
	cacheDir := filepath.Join(dataDir, "code-cache")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return fmt.Errorf("creating local archive cache directory: %w", err)
	}

	settingsStore := persist.NewSettingsStore(dataDir)
	settings, err := settingsStore.Load()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	settings.Host = host

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mux := transport.New(runDir, clock.Real())
	defer mux.ShutdownAll(context.Background())

	if err := mux.EnsureChannel(ctx, host); err != nil {
		return fmt.Errorf("establishing channel to %q: %w", host, err)
	}

	baseDir, err := taskspace.ResolveBaseDir(ctx, mux, host, baseDirOverride)
	if err != nil {
		return fmt.Errorf("resolving remote base directory: %w", err)
	}
	logger.Info("resolved remote base directory", "host", host, "baseDir", baseDir)

	if err := installRemoteComponents(ctx, mux, settings, cacheDir, baseDir, logger); err != nil {
		return err
	}

	logger.Info("setup complete", "host", host, "baseDir", baseDir)
	return nil
}
