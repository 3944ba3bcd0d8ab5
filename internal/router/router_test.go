// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/socratic-shell/theoldswitcheroo/internal/event"
)

// fakeHandlers records every call it receives, standing in for a
// *taskspace.Controller adapter.
type fakeHandlers struct {
	newTaskspaces    []event.NewTaskspaceRequestBody
	updates          []event.UpdateTaskspaceBody
	progressLogs     []event.ProgressLogBody
	progressAttr     []bool
	userSignals      []event.UserSignalBody
	userSignalAttr   []bool
	knownTaskspace   uuid.UUID
	rows             []event.TaskspaceSummary
	activeUUID       string
	hasActive        bool
}

func (f *fakeHandlers) NewTaskspace(ctx context.Context, body event.NewTaskspaceRequestBody) error {
	f.newTaskspaces = append(f.newTaskspaces, body)
	return nil
}

func (f *fakeHandlers) UpdateTaskspace(ctx context.Context, id uuid.UUID, body event.UpdateTaskspaceBody) error {
	f.updates = append(f.updates, body)
	return nil
}

func (f *fakeHandlers) ProgressLog(ctx context.Context, id uuid.UUID, attributed bool, body event.ProgressLogBody) error {
	f.progressLogs = append(f.progressLogs, body)
	f.progressAttr = append(f.progressAttr, attributed)
	return nil
}

func (f *fakeHandlers) UserSignal(ctx context.Context, id uuid.UUID, attributed bool, body event.UserSignalBody) error {
	f.userSignals = append(f.userSignals, body)
	f.userSignalAttr = append(f.userSignalAttr, attributed)
	return nil
}

func (f *fakeHandlers) TaskspaceExists(id uuid.UUID) bool {
	return id == f.knownTaskspace
}

func (f *fakeHandlers) RosterSummary() ([]event.TaskspaceSummary, string, bool) {
	return f.rows, f.activeUUID, f.hasActive
}

func TestDispatchRoutesNewTaskspaceRequest(t *testing.T) {
	handlers := &fakeHandlers{}
	router := &Router{Handlers: handlers, Output: &bytes.Buffer{}}

	line := `{"type":"new_taskspace_request","timestamp":"2026-01-01T00:00:00Z","name":"Alpha"}`
	router.Dispatch(context.Background(), []byte(line))

	if len(handlers.newTaskspaces) != 1 || handlers.newTaskspaces[0].Name != "Alpha" {
		t.Fatalf("got %+v, want one request named Alpha", handlers.newTaskspaces)
	}
}

func TestDispatchNonJSONLineIsLoggedNotRouted(t *testing.T) {
	handlers := &fakeHandlers{}
	router := &Router{Handlers: handlers, Output: &bytes.Buffer{}}

	router.Dispatch(context.Background(), []byte("daemon: listening"))

	if len(handlers.newTaskspaces) != 0 || len(handlers.updates) != 0 {
		t.Fatal("plain log output must not reach any handler")
	}
}

func TestDispatchUnknownTypeIsIgnored(t *testing.T) {
	handlers := &fakeHandlers{}
	router := &Router{Handlers: handlers, Output: &bytes.Buffer{}}

	line := `{"type":"something_else","timestamp":"2026-01-01T00:00:00Z"}`
	router.Dispatch(context.Background(), []byte(line))

	if len(handlers.newTaskspaces) != 0 {
		t.Fatal("unknown type must not dispatch to a handler")
	}
}

func TestDispatchStatusRequestEmitsStatusResponse(t *testing.T) {
	handlers := &fakeHandlers{
		rows:       []event.TaskspaceSummary{{Name: "Alpha", Status: "Running", UUID: "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"}},
		activeUUID: "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		hasActive:  true,
	}
	var out bytes.Buffer
	router := &Router{Handlers: handlers, Output: &out}

	line := `{"type":"status_request","timestamp":"2026-01-01T00:00:00Z"}`
	router.Dispatch(context.Background(), []byte(line))

	var reply event.StatusResponseBody
	if err := json.Unmarshal(out.Bytes(), &reply); err != nil {
		t.Fatalf("unmarshaling reply: %v (raw: %s)", err, out.String())
	}
	if reply.Type != event.StatusResponse {
		t.Fatalf("got type %q, want status_response", reply.Type)
	}
	if len(reply.Taskspaces) != 1 || reply.Taskspaces[0].Name != "Alpha" {
		t.Fatalf("got %+v", reply.Taskspaces)
	}
	if reply.ActiveTaskspace != handlers.activeUUID {
		t.Fatalf("got active %q, want %q", reply.ActiveTaskspace, handlers.activeUUID)
	}
	if !strings.HasSuffix(out.String(), "\n") {
		t.Fatal("reply line must be newline-terminated")
	}
}

func TestDispatchProgressLogAttributesKnownUUID(t *testing.T) {
	known := uuid.New()
	handlers := &fakeHandlers{knownTaskspace: known}
	router := &Router{Handlers: handlers, Output: &bytes.Buffer{}}

	line := `{"type":"progress_log","timestamp":"2026-01-01T00:00:00Z","message":"cloning","category":"info","taskspace_uuid":"` + known.String() + `"}`
	router.Dispatch(context.Background(), []byte(line))

	if len(handlers.progressAttr) != 1 || !handlers.progressAttr[0] {
		t.Fatalf("expected attribution to succeed, got %v", handlers.progressAttr)
	}
}

func TestDispatchProgressLogUnattributedWhenUUIDUnknown(t *testing.T) {
	handlers := &fakeHandlers{knownTaskspace: uuid.New()}
	router := &Router{Handlers: handlers, Output: &bytes.Buffer{}}

	line := `{"type":"progress_log","timestamp":"2026-01-01T00:00:00Z","message":"cloning","category":"info","taskspace_uuid":"` + uuid.New().String() + `"}`
	router.Dispatch(context.Background(), []byte(line))

	if len(handlers.progressAttr) != 1 || handlers.progressAttr[0] {
		t.Fatalf("expected attribution to fail for an unrelated uuid, got %v", handlers.progressAttr)
	}
}

func TestDispatchUserSignalWithoutUUIDIsUnattributed(t *testing.T) {
	handlers := &fakeHandlers{knownTaskspace: uuid.New()}
	router := &Router{Handlers: handlers, Output: &bytes.Buffer{}}

	line := `{"type":"user_signal","timestamp":"2026-01-01T00:00:00Z","message":"need input"}`
	router.Dispatch(context.Background(), []byte(line))

	if len(handlers.userSignalAttr) != 1 || handlers.userSignalAttr[0] {
		t.Fatal("a signal carrying no uuid must not attribute")
	}
}

func TestRunProcessesLinesInOrder(t *testing.T) {
	handlers := &fakeHandlers{}
	router := &Router{Handlers: handlers, Output: &bytes.Buffer{}}

	input := strings.NewReader(
		`{"type":"new_taskspace_request","timestamp":"2026-01-01T00:00:00Z","name":"First"}` + "\n" +
			`{"type":"new_taskspace_request","timestamp":"2026-01-01T00:00:01Z","name":"Second"}` + "\n",
	)
	if err := router.Run(context.Background(), input); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(handlers.newTaskspaces) != 2 {
		t.Fatalf("got %d requests, want 2", len(handlers.newTaskspaces))
	}
	if handlers.newTaskspaces[0].Name != "First" || handlers.newTaskspaces[1].Name != "Second" {
		t.Fatalf("got %+v, want First then Second in arrival order", handlers.newTaskspaces)
	}
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	handlers := &fakeHandlers{}
	router := &Router{Handlers: handlers, Output: &bytes.Buffer{}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := strings.NewReader(`{"type":"new_taskspace_request","timestamp":"2026-01-01T00:00:00Z","name":"Late"}` + "\n")
	if err := router.Run(ctx, input); err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if len(handlers.newTaskspaces) != 0 {
		t.Fatal("a canceled context must prevent any further dispatch")
	}
}
