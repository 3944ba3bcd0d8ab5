// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

// Switcheroo is the desktop controller: it provisions and supervises
// taskspaces on a remote host over C1, relays the remote bus daemon's
// events through C5, and drives C4's lifecycle state machine.
package main

import (
	"os"

	"github.com/socratic-shell/theoldswitcheroo/internal/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	return root().Execute(os.Args[1:])
}
