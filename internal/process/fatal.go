// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the small conventions shared by every
// switcheroo binary entrypoint.
package process

import (
	"fmt"
	"os"
)

// Fatal reports a top-level error and exits. Commands that print
// their own output and just need a specific exit code return an
// error implementing ExitCode() int; Fatal honors that instead of
// printing a redundant "error:" line. Every switcheroo binary's
// main() follows the same shape:
//
//	func main() {
//		if err := run(); err != nil {
//			process.Fatal(err)
//		}
//	}
func Fatal(err error) {
	if coder, ok := err.(interface{ ExitCode() int }); ok {
		os.Exit(coder.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
