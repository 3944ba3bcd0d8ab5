// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package persist

import (
	"path/filepath"
	"time"
)

// ExtensionManifest names the two ordered sequences a taskspace
// installs into its extensions root: marketplace identifiers and
// uploaded package file names.
type ExtensionManifest struct {
	Marketplace []string `json:"marketplace,omitempty"`
	Uploaded    []string `json:"uploaded,omitempty"`
}

// TaskspaceRecord is one persisted roster entry.
type TaskspaceRecord struct {
	UUID          string            `json:"uuid"`
	Name          string            `json:"name"`
	Port          int               `json:"port"`
	ServerDataDir string            `json:"serverDataDir"`
	Extensions    ExtensionManifest `json:"extensions,omitempty"`
	LastSeen      time.Time         `json:"lastSeen"`
}

// Roster is the on-disk shape of the taskspace roster file: one host,
// its taskspaces, and which one (if any) is currently active.
type Roster struct {
	Hostname            string            `json:"hostname"`
	ActiveTaskSpaceUUID string            `json:"activeTaskSpaceUuid,omitempty"`
	Taskspaces          []TaskspaceRecord `json:"taskspaces"`
}

// RosterStore reads and writes the roster file under dataDir.
type RosterStore struct {
	path string
}

// NewRosterStore returns a store backed by "<dataDir>/taskspaces.json".
func NewRosterStore(dataDir string) *RosterStore {
	return &RosterStore{path: filepath.Join(dataDir, "taskspaces.json")}
}

// Load reads the roster file. A missing file yields a zero Roster, not
// an error.
func (s *RosterStore) Load() (Roster, error) {
	var roster Roster
	if err := readJSONTolerant(s.path, &roster); err != nil {
		return Roster{}, err
	}
	return roster, nil
}

// Save atomically rewrites the roster file.
func (s *RosterStore) Save(roster Roster) error {
	return writeJSONAtomic(s.path, roster)
}
