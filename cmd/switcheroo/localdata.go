// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
)

// localDataDir returns the local per-user data directory (spec.md
// §6's "local filesystem layout" root): $XDG_CONFIG_HOME/switcheroo if
// set, otherwise ~/.config/switcheroo.
func localDataDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join("/tmp", "switcheroo")
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "switcheroo")
}
