// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/socratic-shell/theoldswitcheroo/internal/busclient"
	"github.com/socratic-shell/theoldswitcheroo/internal/cli"
	"github.com/socratic-shell/theoldswitcheroo/internal/clock"
	"github.com/socratic-shell/theoldswitcheroo/internal/persist"
	"github.com/socratic-shell/theoldswitcheroo/internal/router"
	"github.com/socratic-shell/theoldswitcheroo/internal/taskspace"
	"github.com/socratic-shell/theoldswitcheroo/internal/transport"
	"github.com/socratic-shell/theoldswitcheroo/internal/uicontract"
)

// runController brings up C1 through C7 against host, restores the
// persisted roster, and blocks relaying bus events until it is
// signaled to stop. baseDirOverride may be empty, in which case the
// remote base directory is probed from the host's own $HOME.
func runController(host, baseDirOverride string) error {
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
	if host != "" {
		settings.Host = host
	}
	if settings.Host == "" {
		return fmt.Errorf("no host configured: pass --host or set it in %s", filepath.Join(dataDir, "settings.json"))
	}
	if err := settingsStore.Save(settings); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mux := transport.New(runDir, clock.Real())
	defer mux.ShutdownAll(context.Background())

	if err := mux.EnsureChannel(ctx, settings.Host); err != nil {
		return fmt.Errorf("establishing channel to %q: %w", settings.Host, err)
	}

	baseDir, err := taskspace.ResolveBaseDir(ctx, mux, settings.Host, baseDirOverride)
	if err != nil {
		return fmt.Errorf("resolving remote base directory: %w", err)
	}
	logger.Info("resolved remote base directory", "host", settings.Host, "baseDir", baseDir)

	if err := installRemoteComponents(ctx, mux, settings, cacheDir, baseDir, logger); err != nil {
		return err
	}

	editorPaths := taskspace.DeriveEditorPaths(baseDir)
	busRuntimePaths := taskspace.DeriveBusRuntimePaths(baseDir)

	uploadsDir := filepath.Join(dataDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		return fmt.Errorf("creating local uploads directory: %w", err)
	}

	surface := &uicontract.LogSurface{Logger: logger}
	rosterStore := persist.NewRosterStore(dataDir)
	controller := taskspace.New(settings.Host, baseDir, editorPaths.Binary, uploadsDir, mux, surface, rosterStore, clock.Real(), logger)

	if focus, ok, err := controller.Restore(ctx); err != nil {
		logger.Warn("restoring roster failed", "error", err)
	} else if ok {
		logger.Info("restored roster, focusing taskspace", "uuid", focus)
	}

	go controller.RunHealthLoop(ctx)

	socketPath := filepath.Join(baseDir, busclient.SocketFileName)
	busCommand := fmt.Sprintf("%s --socket-path %s", transport.ShellQuote(busRuntimePaths.BusBinary), transport.ShellQuote(socketPath))
	stream, err := mux.ExecuteStreaming(ctx, settings.Host, busCommand)
	if err != nil {
		return fmt.Errorf("launching bus daemon: %w", err)
	}

	rt := &router.Router{
		Handlers: &controllerHandlers{controller: controller, projectsDir: filepath.Join(dataDir, "projects")},
		Output:   stream.Stdin,
		Clock:    clock.Real(),
		Logger:   logger,
	}

	runErr := rt.Run(ctx, stream.Stdout)
	if waitErr := stream.Wait(); waitErr != nil && runErr == nil {
		runErr = fmt.Errorf("bus daemon exited: %w", waitErr)
	}
	return runErr
}

// installRemoteComponents installs the editor-server and bus-runtime
// archives host needs, skipping either installer whose archive isn't
// configured in settings yet.
func installRemoteComponents(ctx context.Context, mux *transport.Multiplexer, settings persist.Settings, cacheDir, baseDir string, logger *slog.Logger) error {
	if unameM, err := mux.Execute(ctx, settings.Host, "uname -m"); err == nil {
		if tag, recognized := taskspace.ArchTag(unameM); !recognized {
			logger.Warn("unrecognized remote architecture, assuming the pinned archives target it anyway", "unameM", unameM, "assumedTag", tag)
		}
	}

	editorPaths := taskspace.DeriveEditorPaths(baseDir)
	if settings.EditorArchiveURL == "" {
		logger.Warn("no editor archive configured, skipping install", "setting", "editorArchiveURL")
	} else {
		spec := taskspace.ArchSpec{URL: settings.EditorArchiveURL, BLAKE3Digest: settings.EditorArchiveDigest}
		if err := taskspace.EnsureArchiveInstalled(ctx, mux, settings.Host, spec, cacheDir, editorPaths.ArchivePath, editorPaths.InstallDir); err != nil {
			return fmt.Errorf("installing editor binary: %w", err)
		}
	}

	busRuntimePaths := taskspace.DeriveBusRuntimePaths(baseDir)
	if settings.BusRuntimeArchiveURL == "" {
		logger.Warn("no bus-runtime archive configured, skipping install", "setting", "busRuntimeArchiveURL")
	} else {
		spec := taskspace.ArchSpec{URL: settings.BusRuntimeArchiveURL, BLAKE3Digest: settings.BusRuntimeArchiveDigest}
		if err := taskspace.EnsureBusRuntime(ctx, mux, settings.Host, spec, cacheDir, busRuntimePaths); err != nil {
			return fmt.Errorf("installing bus runtime: %w", err)
		}
	}
	return nil
}
