// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package taskspace

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/socratic-shell/theoldswitcheroo/internal/transport"
)

// busRuntimeWrapperTemplate is staged under the remote bin/ directory
// so that taskspace-side CLI and tool-protocol invocations have a
// single fixed path to call regardless of where the bus runtime
// archive happens to be unpacked.
const busRuntimeWrapperTemplate = "#!/bin/sh\nexec %s \"$@\"\n"

// BusRuntimePaths are the remote locations touched by EnsureBusRuntime,
// derived from the remote base directory the way DerivePaths derives
// per-taskspace paths.
type BusRuntimePaths struct {
	ArchivePath   string
	InstallDir    string
	WrapperScript string
	BusBinary     string
	AgentBinary   string
}

// DeriveBusRuntimePaths computes the remote bus-runtime locations under
// baseDir.
func DeriveBusRuntimePaths(baseDir string) BusRuntimePaths {
	installDir := filepath.Join(baseDir, "bus-runtime")
	return BusRuntimePaths{
		ArchivePath:   filepath.Join(baseDir, "bus-runtime.tar.gz"),
		InstallDir:    installDir,
		WrapperScript: filepath.Join(baseDir, "bin", "switcheroo-agent"),
		BusBinary:     filepath.Join(installDir, "switcheroo-bus"),
		AgentBinary:   filepath.Join(installDir, "switcheroo-agent"),
	}
}

// EnsureBusRuntime installs the cross-compiled switcheroo-bus and
// switcheroo-agent binaries for host's architecture, bundled together
// as a single archive since the remote host has no Go toolchain of
// its own to build them, then writes the wrapper script that launches
// switcheroo-agent with the paths it needs resolved in advance. Both
// the archive install and the wrapper-script write are gated on pure
// existence checks, so the whole operation is idempotent.
func EnsureBusRuntime(ctx context.Context, mux *transport.Multiplexer, host string, spec ArchSpec, localCacheDir string, paths BusRuntimePaths) error {
	if err := EnsureArchiveInstalled(ctx, mux, host, spec, localCacheDir, paths.ArchivePath, paths.InstallDir); err != nil {
		return fmt.Errorf("installing bus runtime: %w", err)
	}

	if _, err := statRemote(ctx, mux, host, paths.WrapperScript); err == nil {
		return nil
	}

	wrapper := fmt.Sprintf(busRuntimeWrapperTemplate, shQuote(paths.AgentBinary))
	tmp, err := writeTempFile(wrapper)
	if err != nil {
		return fmt.Errorf("staging bus-runtime wrapper script: %w", err)
	}
	defer removeTempFile(tmp)

	mkdirCmd := fmt.Sprintf("mkdir -p %s", shQuote(filepath.Dir(paths.WrapperScript)))
	if _, err := mux.Execute(ctx, host, mkdirCmd); err != nil {
		return fmt.Errorf("creating remote bin directory: %w", err)
	}
	if err := mux.Upload(ctx, host, tmp, paths.WrapperScript); err != nil {
		return fmt.Errorf("uploading bus-runtime wrapper script: %w", err)
	}
	if _, err := mux.Execute(ctx, host, "chmod +x "+shQuote(paths.WrapperScript)); err != nil {
		return fmt.Errorf("making wrapper script executable: %w", err)
	}
	return nil
}
