// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// baseDirEnvVar overrides the remote base directory, matching
// spec.md §6's BASE_DIR. Without it, the controller arrives at the
// same default location by probing the host's $HOME once
// (taskspace.ResolveBaseDir) and joining the same directory name.
const baseDirEnvVar = "BASE_DIR"

const defaultBaseDirName = ".theoldswitcheroo"

// resolveBaseDir returns BASE_DIR if set, otherwise a fixed directory
// under the invoking user's home.
func resolveBaseDir() (string, error) {
	if v := os.Getenv(baseDirEnvVar); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving default base directory: %w", err)
	}
	return filepath.Join(home, defaultBaseDirName), nil
}
