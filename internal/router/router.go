// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

// Package router dispatches typed events read from the bus daemon's
// stdout to named handlers and injects synthesized replies onto the
// daemon's stdin for broadcast back out to taskspace clients.
package router

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/socratic-shell/theoldswitcheroo/internal/clock"
	"github.com/socratic-shell/theoldswitcheroo/internal/event"
)

// Handlers is the controller-side surface the router dispatches to. One
// implementation adapts a *taskspace.Controller; router itself never
// imports the taskspace package, keeping the dispatch table decoupled
// from lifecycle details.
type Handlers interface {
	NewTaskspace(ctx context.Context, body event.NewTaskspaceRequestBody) error
	UpdateTaskspace(ctx context.Context, id uuid.UUID, body event.UpdateTaskspaceBody) error
	ProgressLog(ctx context.Context, id uuid.UUID, attributed bool, body event.ProgressLogBody) error
	UserSignal(ctx context.Context, id uuid.UUID, attributed bool, body event.UserSignalBody) error

	// TaskspaceExists reports whether id names a live roster entry, used
	// to decide whether a progress_log/user_signal UUID attributes.
	TaskspaceExists(id uuid.UUID) bool

	// RosterSummary returns the rows and active-taskspace identifier for
	// a status_response.
	RosterSummary() (rows []event.TaskspaceSummary, activeUUID string, hasActive bool)
}

// Router reads C2's stdout line by line, classifying each complete line
// as JSON or plain daemon log output, and writes synthesized replies to
// Output (C2's stdin).
type Router struct {
	Handlers Handlers
	Output   io.Writer
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Run scans lines from r until EOF or ctx is canceled, calling Dispatch
// for each. It is the only intended caller of Dispatch, satisfying the
// single-stream non-reordering guarantee: one goroutine, one Scanner,
// lines handled strictly in arrival order.
func (router *Router) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		router.Dispatch(ctx, scanner.Bytes())
	}
	return scanner.Err()
}

// Dispatch classifies a single line and routes it. Non-JSON lines and
// lines with unrecognized types are logged and otherwise ignored. Must
// never be called concurrently with itself.
func (router *Router) Dispatch(ctx context.Context, line []byte) {
	env, err := event.ParseEnvelope(line)
	if err != nil {
		router.log("daemon output", "line", string(line))
		return
	}

	var dispatchErr error
	switch env.Type {
	case event.NewTaskspaceRequest:
		var body event.NewTaskspaceRequestBody
		if err := json.Unmarshal(line, &body); err != nil {
			router.log("malformed new_taskspace_request", "error", err)
			return
		}
		dispatchErr = router.Handlers.NewTaskspace(ctx, body)

	case event.UpdateTaskspace:
		var body event.UpdateTaskspaceBody
		if err := json.Unmarshal(line, &body); err != nil {
			router.log("malformed update_taskspace", "error", err)
			return
		}
		id, err := uuid.Parse(body.UUID)
		if err != nil {
			router.log("update_taskspace missing valid uuid", "uuid", body.UUID)
			return
		}
		dispatchErr = router.Handlers.UpdateTaskspace(ctx, id, body)

	case event.StatusRequest:
		dispatchErr = router.replyStatus()

	case event.ProgressLog:
		var body event.ProgressLogBody
		if err := json.Unmarshal(line, &body); err != nil {
			router.log("malformed progress_log", "error", err)
			return
		}
		id, attributed := router.attribute(body.TaskspaceUUID)
		dispatchErr = router.Handlers.ProgressLog(ctx, id, attributed, body)

	case event.UserSignal:
		var body event.UserSignalBody
		if err := json.Unmarshal(line, &body); err != nil {
			router.log("malformed user_signal", "error", err)
			return
		}
		id, attributed := router.attribute(body.TaskspaceUUID)
		dispatchErr = router.Handlers.UserSignal(ctx, id, attributed, body)

	default:
		router.log("unrecognized event type", "type", string(env.Type))
		return
	}

	if dispatchErr != nil {
		router.log("handler failed", "type", string(env.Type), "error", dispatchErr)
	}
}

// attribute resolves a progress_log/user_signal's optional taskspace
// UUID against the live roster. An empty or unparseable UUID, or one
// that names no roster entry, attributes to nothing.
func (router *Router) attribute(raw string) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, false
	}
	if !router.Handlers.TaskspaceExists(id) {
		return uuid.UUID{}, false
	}
	return id, true
}

func (router *Router) replyStatus() error {
	rows, activeUUID, hasActive := router.Handlers.RosterSummary()
	body := event.StatusResponseBody{
		Type:       event.StatusResponse,
		Timestamp:  router.now(),
		Taskspaces: rows,
	}
	if hasActive {
		body.ActiveTaskspace = activeUUID
	}
	return router.emit(body)
}

func (router *Router) emit(v any) error {
	line, err := event.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling reply: %w", err)
	}
	if _, err := router.Output.Write(line); err != nil {
		return fmt.Errorf("writing reply to bus stdin: %w", err)
	}
	return nil
}

func (router *Router) now() time.Time {
	if router.Clock != nil {
		return router.Clock.Now()
	}
	return time.Now()
}

func (router *Router) log(msg string, args ...any) {
	if router.Logger != nil {
		router.Logger.Info(msg, args...)
	}
}
