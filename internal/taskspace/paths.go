// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package taskspace

import (
	"path/filepath"

	"github.com/google/uuid"
)

// Paths are the remote filesystem locations derived deterministically
// from a taskspace identifier and the remote base directory. Calling
// these repeatedly for the same uuid and baseDir yields equal strings —
// a restarted controller can always rediscover them.
type Paths struct {
	Root             string
	CloneRoot        string
	ServerDataRoot   string
	ExtensionsRoot   string
	FreshCloneScript string
}

// DerivePaths computes the remote paths for taskspace id under the
// remote base directory baseDir.
func DerivePaths(baseDir string, id uuid.UUID) Paths {
	u := id.String()
	root := filepath.Join(baseDir, "taskspaces", u)
	taskspaceDataRoot := filepath.Join(baseDir, "taskspaces", "taskspace-"+u)
	return Paths{
		Root:             root,
		CloneRoot:        filepath.Join(root, "clone"),
		ServerDataRoot:   filepath.Join(taskspaceDataRoot, "server-data"),
		ExtensionsRoot:   filepath.Join(taskspaceDataRoot, "extensions"),
		FreshCloneScript: filepath.Join(root, "fresh-clone.sh"),
	}
}

// SharedUserDataDir is the single vscode-user-data directory shared
// across every taskspace on a host, at the base level.
func SharedUserDataDir(baseDir string) string {
	return filepath.Join(baseDir, "vscode-user-data")
}

// EditorPaths are the remote locations of the pinned editor-server
// archive and the binary it unpacks to.
type EditorPaths struct {
	ArchivePath string
	InstallDir  string
	Binary      string
}

// DeriveEditorPaths computes the remote editor-server archive and
// binary locations under baseDir.
func DeriveEditorPaths(baseDir string) EditorPaths {
	installDir := filepath.Join(baseDir, "openvscode-server")
	return EditorPaths{
		ArchivePath: filepath.Join(baseDir, "openvscode-server.tar.gz"),
		InstallDir:  installDir,
		Binary:      filepath.Join(installDir, "bin", "openvscode-server"),
	}
}
