// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

// Package uicontract defines the narrow interface the taskspace
// lifecycle controller requires from whatever renders progress and
// terminal failure. The core never depends on a concrete rendering
// technology — it only calls through this interface.
package uicontract

// ViewHandle is an opaque reference constructed and owned by the UI
// collaborator. The core stores and passes these around by reference
// but never inspects them.
type ViewHandle interface{}

// Surface is the interface a taskspace lifecycle controller drives
// during state transitions.
type Surface interface {
	// UpdateProgress reports advisory progress during a blocking state
	// transition. Fire-and-forget — the core never waits on it.
	UpdateProgress(message string)

	// ShowError reports a failure or a request for the operator's
	// attention. The taskspace controller calls it on every failed
	// provisioning or startup transition, including failures that leave
	// the taskspace in Cloned or Stale, and for every user_signal event;
	// it does not distinguish failures during initial boot from later
	// ones.
	ShowError(title, message string, details string)

	// Present swaps the main view to the given handle.
	Present(handle ViewHandle)

	// CreateEditorView constructs a view handle for a taskspace's editor
	// session, partitioned by sessionPartition and pointed at
	// initialURL.
	CreateEditorView(sessionPartition, initialURL string) ViewHandle

	// CreateMetaView constructs a view handle for a taskspace's meta
	// (non-editor) session, partitioned by sessionPartition.
	CreateMetaView(sessionPartition string) ViewHandle
}
