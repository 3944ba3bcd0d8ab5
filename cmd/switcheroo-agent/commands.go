// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/socratic-shell/theoldswitcheroo/internal/busclient"
	"github.com/socratic-shell/theoldswitcheroo/internal/cli"
	"github.com/socratic-shell/theoldswitcheroo/internal/event"
	"github.com/socratic-shell/theoldswitcheroo/internal/toolserver"
)

// root builds the switcheroo-agent command tree: one subcommand per
// bus event type plus tool-server, the JSON-RPC front-end.
func root() *cli.Command {
	return &cli.Command{
		Name:    "switcheroo-agent",
		Summary: "taskspace-side CLI and tool-protocol endpoint for the switcheroo bus",
		Subcommands: []*cli.Command{
			newTaskspaceCommand(),
			updateTaskspaceCommand(),
			statusCommand(),
			logProgressCommand(),
			signalUserCommand(),
			toolServerCommand(),
		},
	}
}

func newTaskspaceCommand() *cli.Command {
	var name, description, cwd, initialPrompt string
	return &cli.Command{
		Name:    "new-taskspace",
		Summary: "request a new taskspace",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("new-taskspace", pflag.ContinueOnError)
			fs.StringVar(&name, "name", "", "taskspace name (required)")
			fs.StringVar(&description, "description", "", "taskspace description")
			fs.StringVar(&cwd, "cwd", "", "name of the controller-side project (under its local projects/ directory) to seed the taskspace from; empty means \"default\"")
			fs.StringVar(&initialPrompt, "initial-prompt", "", "initial prompt to hand the taskspace's agent")
			return fs
		},
		Run: func(args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			return sendEvent(event.NewTaskspaceRequestBody{
				Type:          event.NewTaskspaceRequest,
				Timestamp:     time.Now(),
				Name:          name,
				Description:   description,
				Cwd:           cwd,
				InitialPrompt: initialPrompt,
			})
		},
	}
}

func updateTaskspaceCommand() *cli.Command {
	var name, description string
	return &cli.Command{
		Name:    "update-taskspace",
		Summary: "rename or redescribe the taskspace owning the current directory",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("update-taskspace", pflag.ContinueOnError)
			fs.StringVar(&name, "name", "", "new taskspace name")
			fs.StringVar(&description, "description", "", "new taskspace description")
			return fs
		},
		Run: func(args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting working directory: %w", err)
			}
			id, err := event.DeriveUUID(cwd)
			if err != nil {
				return fmt.Errorf("determining taskspace from working directory %q: %w", cwd, err)
			}
			return sendEvent(event.UpdateTaskspaceBody{
				Type:        event.UpdateTaskspace,
				Timestamp:   time.Now(),
				UUID:        id.String(),
				Name:        name,
				Description: description,
			})
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:    "status",
		Summary: "request the current taskspace roster",
		Run: func(args []string) error {
			return sendEvent(event.StatusRequestBody{
				Type:      event.StatusRequest,
				Timestamp: time.Now(),
			})
		},
	}
}

func logProgressCommand() *cli.Command {
	var message, category string
	return &cli.Command{
		Name:    "log-progress",
		Summary: "record a progress message",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("log-progress", pflag.ContinueOnError)
			fs.StringVar(&message, "message", "", "progress message (required)")
			fs.StringVar(&category, "category", "", "one of info, warn, error, milestone, question (required)")
			return fs
		},
		Run: func(args []string) error {
			if message == "" {
				return fmt.Errorf("--message is required")
			}
			cat, err := validCategory(category)
			if err != nil {
				return err
			}
			return sendEvent(event.ProgressLogBody{
				Type:      event.ProgressLog,
				Timestamp: time.Now(),
				Message:   message,
				Category:  cat,
			})
		},
	}
}

func signalUserCommand() *cli.Command {
	var message string
	return &cli.Command{
		Name:    "signal-user",
		Summary: "raise a signal that needs the operator's attention",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("signal-user", pflag.ContinueOnError)
			fs.StringVar(&message, "message", "", "signal message (required)")
			return fs
		},
		Run: func(args []string) error {
			if message == "" {
				return fmt.Errorf("--message is required")
			}
			return sendEvent(event.UserSignalBody{
				Type:      event.UserSignal,
				Timestamp: time.Now(),
				Message:   message,
			})
		},
	}
}

func toolServerCommand() *cli.Command {
	return &cli.Command{
		Name:    "tool-server",
		Summary: "serve the taskspace-scoped tool protocol over stdio",
		Run: func(args []string) error {
			baseDir, err := resolveBaseDir()
			if err != nil {
				return err
			}
			socketPath := busclient.DefaultSocketPath(baseDir)

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting working directory: %w", err)
			}
			id, err := event.DeriveUUID(cwd)
			hasUUID := err == nil

			server := toolserver.New(id, hasUUID, socketPath)
			return server.Serve(os.Stdin, os.Stdout)
		},
	}
}

func validCategory(s string) (event.Category, error) {
	switch event.Category(s) {
	case event.CategoryInfo, event.CategoryWarn, event.CategoryError, event.CategoryMilestone, event.CategoryQuestion:
		return event.Category(s), nil
	default:
		return "", fmt.Errorf("invalid --category %q: must be one of info, warn, error, milestone, question", s)
	}
}

// sendEvent marshals body and sends it to the bus daemon's socket,
// resolving the socket path the same way the tool-protocol front-end
// does. A missing daemon surfaces as a single diagnostic on stderr; a
// daemon that does not close its end within busclient's close wait is
// not treated as an error.
func sendEvent(body any) error {
	baseDir, err := resolveBaseDir()
	if err != nil {
		return err
	}
	socketPath := busclient.DefaultSocketPath(baseDir)

	line, err := event.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return busclient.Send(socketPath, line)
}
