// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package taskspace

import (
	"fmt"
	"strings"
)

// ServerInvocationScript builds the single shell script run once
// through ExecuteStreaming to bring up a taskspace's editor server:
// create the data directories, install any marketplace or uploaded
// extensions, then launch the editor bound to all interfaces on an
// OS-chosen port.
func ServerInvocationScript(editorBinary string, paths Paths, sharedUserDataDir string, manifest ExtensionManifest, uploadedPackagePaths map[string]string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "set -e\n")
	fmt.Fprintf(&b, "mkdir -p %s %s\n", shQuote(paths.ServerDataRoot), shQuote(paths.ExtensionsRoot))

	for _, id := range manifest.Marketplace {
		fmt.Fprintf(&b, "%s --extensions-dir %s --install-extension %s\n",
			shQuote(editorBinary), shQuote(paths.ExtensionsRoot), shQuote(id))
	}

	for _, packageName := range manifest.Uploaded {
		remotePath := uploadedPackagePaths[packageName]
		fmt.Fprintf(&b, "%s --extensions-dir %s --install-extension %s\n",
			shQuote(editorBinary), shQuote(paths.ExtensionsRoot), shQuote(remotePath))
	}

	fmt.Fprintf(&b, "exec %s --host 0.0.0.0 --port 0 --server-data-dir %s --extensions-dir %s --user-data-dir %s --without-connection-token --shutdown-timeout-on-last-client-disconnect 0 --default-workspace %s --disable-workspace-trust\n",
		shQuote(editorBinary), shQuote(paths.ServerDataRoot), shQuote(paths.ExtensionsRoot), shQuote(sharedUserDataDir), shQuote(paths.CloneRoot))

	return b.String()
}
