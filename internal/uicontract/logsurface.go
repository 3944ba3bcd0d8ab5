// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package uicontract

import "log/slog"

// logViewHandle is the handle shape LogSurface hands back; it carries
// just enough to make Present's logged output informative.
type logViewHandle struct {
	kind              string
	sessionPartition  string
	initialURL        string
}

// LogSurface is a minimal Surface that reports everything through
// structured logging. Used by cmd/switcheroo when no richer UI is
// attached — a headless run, or a smoke test of the lifecycle
// controller in isolation.
type LogSurface struct {
	Logger *slog.Logger
}

func (s *LogSurface) UpdateProgress(message string) {
	s.Logger.Info("taskspace progress", "message", message)
}

func (s *LogSurface) ShowError(title, message, details string) {
	s.Logger.Error("taskspace error", "title", title, "message", message, "details", details)
}

func (s *LogSurface) Present(handle ViewHandle) {
	s.Logger.Info("presenting view", "handle", handle)
}

func (s *LogSurface) CreateEditorView(sessionPartition, initialURL string) ViewHandle {
	s.Logger.Info("creating editor view", "sessionPartition", sessionPartition, "initialURL", initialURL)
	return &logViewHandle{kind: "editor", sessionPartition: sessionPartition, initialURL: initialURL}
}

func (s *LogSurface) CreateMetaView(sessionPartition string) ViewHandle {
	s.Logger.Info("creating meta view", "sessionPartition", sessionPartition)
	return &logViewHandle{kind: "meta", sessionPartition: sessionPartition}
}
