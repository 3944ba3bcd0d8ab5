// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/spf13/pflag"

	"github.com/socratic-shell/theoldswitcheroo/internal/cli"
)

// root builds the switcheroo command tree: running the binary with no
// subcommand brings up the controller against --host; the setup
// subcommand runs just the remote installers.
func root() *cli.Command {
	var host, baseDir string

	return &cli.Command{
		Name:    "switcheroo",
		Summary: "desktop controller for remote browser-based taskspaces",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("switcheroo", pflag.ContinueOnError)
			fs.StringVar(&host, "host", "", "remote host to connect to (ssh destination); defaults to the last host used")
			fs.StringVar(&baseDir, "base-dir", "", "remote base directory; defaults to a probe of the host's own $HOME")
			return fs
		},
		Run: func(args []string) error {
			return runController(host, baseDir)
		},
		Subcommands: []*cli.Command{
			setupCommand(),
		},
	}
}

func setupCommand() *cli.Command {
	var host, baseDir string
	return &cli.Command{
		Name:    "setup",
		Summary: "install the editor binary and bus runtime on a host without creating any taskspace",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("setup", pflag.ContinueOnError)
			fs.StringVar(&host, "host", "", "remote host to install onto (required)")
			fs.StringVar(&baseDir, "base-dir", "", "remote base directory; defaults to a probe of the host's own $HOME")
			return fs
		},
		Run: func(args []string) error {
			return runSetup(host, baseDir)
		},
	}
}
