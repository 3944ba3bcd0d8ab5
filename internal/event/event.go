// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

// Package event defines the wire format exchanged over the bus: single
// line, newline-terminated JSON objects carrying a "type" discriminator
// and an RFC 3339 "timestamp".
package event

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Type names the six record shapes the bus daemon relays.
type Type string

const (
	NewTaskspaceRequest Type = "new_taskspace_request"
	UpdateTaskspace      Type = "update_taskspace"
	StatusRequest        Type = "status_request"
	StatusResponse       Type = "status_response"
	ProgressLog          Type = "progress_log"
	UserSignal           Type = "user_signal"
)

// Category enumerates the allowed progress_log severities.
type Category string

const (
	CategoryInfo      Category = "info"
	CategoryWarn      Category = "warn"
	CategoryError     Category = "error"
	CategoryMilestone Category = "milestone"
	CategoryQuestion  Category = "question"
)

// Envelope is the minimal shape every record satisfies: enough to read
// the type and timestamp before unmarshaling the rest of the body.
type Envelope struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTaskspaceRequestBody is emitted by switcheroo-agent's
// new-taskspace subcommand.
type NewTaskspaceRequestBody struct {
	Type          Type      `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Cwd           string    `json:"cwd,omitempty"`
	InitialPrompt string    `json:"initial_prompt,omitempty"`
}

// UpdateTaskspaceBody is emitted by update-taskspace; UUID is derived
// from the caller's working directory, not supplied explicitly by the
// user.
type UpdateTaskspaceBody struct {
	Type        Type      `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	UUID        string    `json:"uuid"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
}

// StatusRequestBody carries no payload beyond the envelope.
type StatusRequestBody struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskspaceSummary is one entry of a StatusResponseBody's taskspace
// list.
type TaskspaceSummary struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	UUID   string `json:"uuid"`
}

// StatusResponseBody is synthesized by the router in reply to a
// StatusRequest.
type StatusResponseBody struct {
	Type            Type               `json:"type"`
	Timestamp       time.Time          `json:"timestamp"`
	Taskspaces      []TaskspaceSummary `json:"taskspaces"`
	ActiveTaskspace string             `json:"activeTaskSpace,omitempty"`
}

// ProgressLogBody is emitted by log-progress.
type ProgressLogBody struct {
	Type           Type      `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	Message        string    `json:"message"`
	Category       Category  `json:"category"`
	TaskspaceUUID  string    `json:"taskspace_uuid,omitempty"`
}

// UserSignalBody is emitted by signal-user.
type UserSignalBody struct {
	Type          Type      `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	Message       string    `json:"message"`
	TaskspaceUUID string    `json:"taskspace_uuid,omitempty"`
}

// ParseEnvelope reads just the type and timestamp from a line, leaving
// the caller to re-unmarshal into the concrete body once the type is
// known.
func ParseEnvelope(line []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Envelope{}, fmt.Errorf("parsing event envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("parsing event envelope: missing type field")
	}
	return env, nil
}

// Marshal appends a trailing newline, matching the newline-delimited
// wire format the bus daemon relays byte-for-byte.
func Marshal(v any) ([]byte, error) {
	line, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling event: %w", err)
	}
	return append(line, '\n'), nil
}

var uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// DeriveUUID extracts the canonical 8-4-4-4-12 UUID substring from a
// filesystem path, matching the way CLI and tool-protocol clients
// infer their taskspace identity from their working directory. Returns
// an error if no valid UUID substring is present.
func DeriveUUID(path string) (uuid.UUID, error) {
	match := uuidPattern.FindString(path)
	if match == "" {
		return uuid.UUID{}, fmt.Errorf("no UUID found in path %q", path)
	}
	id, err := uuid.Parse(match)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid UUID substring %q in path %q: %w", match, path, err)
	}
	return id, nil
}
