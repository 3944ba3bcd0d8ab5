// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/socratic-shell/theoldswitcheroo/internal/event"
	"github.com/socratic-shell/theoldswitcheroo/internal/taskspace"
)

// defaultProjectName names the local project directory consulted when
// a new_taskspace_request carries no cwd, matching the bare
// "projects/<project-name>/fresh-clone.sh" local layout.
const defaultProjectName = "default"

// controllerHandlers adapts *taskspace.Controller to router.Handlers,
// resolving the one piece router's wire events don't carry: the
// fresh-clone script a new taskspace is seeded from, read from the
// local per-project directory named by the request's cwd field.
type controllerHandlers struct {
	controller  *taskspace.Controller
	projectsDir string
}

func (h *controllerHandlers) NewTaskspace(ctx context.Context, body event.NewTaskspaceRequestBody) error {
	project := body.Cwd
	if project == "" {
		project = defaultProjectName
	}
	scriptPath := filepath.Join(h.projectsDir, project, "fresh-clone.sh")
	source, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("reading clone script for project %q: %w", project, err)
	}

	t, err := h.controller.CreateTaskspace(ctx, body.Name, body.Description, string(source))
	if err != nil {
		return err
	}

	// A bus-driven creation has no UI focus event to wait for, so start
	// the editor server immediately rather than leaving it Cloned until
	// something else focuses it.
	return h.controller.Start(ctx, t.UUID)
}

func (h *controllerHandlers) UpdateTaskspace(ctx context.Context, id uuid.UUID, body event.UpdateTaskspaceBody) error {
	return h.controller.UpdateTaskspace(ctx, id, body)
}

func (h *controllerHandlers) ProgressLog(ctx context.Context, id uuid.UUID, attributed bool, body event.ProgressLogBody) error {
	return h.controller.ProgressLog(ctx, id, attributed, body)
}

func (h *controllerHandlers) UserSignal(ctx context.Context, id uuid.UUID, attributed bool, body event.UserSignalBody) error {
	return h.controller.UserSignal(ctx, id, attributed, body)
}

func (h *controllerHandlers) TaskspaceExists(id uuid.UUID) bool {
	return h.controller.TaskspaceExists(id)
}

func (h *controllerHandlers) RosterSummary() (rows []event.TaskspaceSummary, activeUUID string, hasActive bool) {
	return h.controller.RosterSummary()
}
