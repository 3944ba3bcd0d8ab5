// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

// Package taskspace drives the per-taskspace lifecycle state machine:
// provisioning a remote clone, installing and launching an editor
// server, discovering its port, forwarding it locally, and persisting
// state across restarts.
package taskspace

import (
	"time"

	"github.com/google/uuid"

	"github.com/socratic-shell/theoldswitcheroo/internal/uicontract"
)

// State is one node of the taskspace lifecycle state machine.
type State int

const (
	Absent State = iota
	Provisioning
	Cloned
	Starting
	Running
	Stale
	Removed
)

func (s State) String() string {
	switch s {
	case Absent:
		return "Absent"
	case Provisioning:
		return "Provisioning"
	case Cloned:
		return "Cloned"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stale:
		return "Stale"
	case Removed:
		return "Removed"
	default:
		return "Unknown"
	}
}

// ViewMode selects which kind of view a taskspace presents.
type ViewMode int

const (
	ViewEditor ViewMode = iota
	ViewMeta
)

// ExtensionManifest names the extensions a taskspace's editor server
// should have installed: marketplace identifiers and uploaded package
// file names, each in the order they were requested.
type ExtensionManifest struct {
	Marketplace []string
	Uploaded    []string
}

// Taskspace is the in-memory representation of one taskspace. The
// identifier is immutable once assigned; Paths is a pure function of
// it (see DerivePaths).
type Taskspace struct {
	UUID        uuid.UUID
	Name        string
	Description string
	Paths       Paths
	State       State
	Port        int // remote port announced by the editor server; 0 = never started
	LocalPort   int // local end of the active forward; 0 when not Running
	Manifest    ExtensionManifest
	ViewMode    ViewMode
	LastSeen    time.Time

	EditorView uicontract.ViewHandle
	MetaView   uicontract.ViewHandle
}
