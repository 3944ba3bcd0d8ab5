// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

// Switcheroo-agent is the taskspace-side CLI and tool-protocol
// endpoint (C3): a thin client over the bus daemon's Unix socket,
// plus a JSON-RPC tool-protocol front-end for agents running inside
// a taskspace.
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
