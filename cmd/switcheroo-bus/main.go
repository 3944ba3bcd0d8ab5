// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

// Switcheroo-bus is the remote-side bus daemon (C2): a small,
// unattended relay between the controller's stdio (piped over the
// transport multiplexer's ExecuteStreaming) and the Unix-socket
// clients that switcheroo-agent connects as. It holds no state beyond
// the set of currently-connected clients.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/socratic-shell/theoldswitcheroo/internal/bus"
	"github.com/socratic-shell/theoldswitcheroo/internal/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var socketPath string
	flag.StringVar(&socketPath, "socket-path", "", "unix socket path for switcheroo-agent clients to connect to (required)")
	flag.Parse()

	if socketPath == "" {
		return fmt.Errorf("--socket-path is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	daemon := &bus.Daemon{
		SocketPath: socketPath,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Logger:     logger,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received termination signal, shutting down", "signal", sig)
		daemon.Shutdown()
	}()

	return daemon.Run()
}
