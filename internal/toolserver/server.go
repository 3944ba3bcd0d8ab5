// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package toolserver

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/socratic-shell/theoldswitcheroo/internal/busclient"
	"github.com/socratic-shell/theoldswitcheroo/internal/event"
)

// Server is a JSON-RPC 2.0 tool-protocol endpoint over stdio, scoped
// to a single taskspace. HasUUID false means the endpoint was started
// outside any taskspace clone directory: tools/list then reports the
// empty set and tools/call refuses every name.
type Server struct {
	UUID       uuid.UUID
	HasUUID    bool
	SocketPath string

	initialized bool
	now         func() time.Time
}

// New returns a Server bound to socketPath, scoped to id if hasUUID
// is true.
func New(id uuid.UUID, hasUUID bool, socketPath string) *Server {
	return &Server{UUID: id, HasUUID: hasUUID, SocketPath: socketPath, now: time.Now}
}

// Serve runs the server against the process's own stdio.
func (s *Server) Serve(stdin io.Reader, stdout io.Writer) error {
	return s.Run(stdin, stdout)
}

// Run processes newline-delimited JSON-RPC 2.0 requests from input,
// writing one response line per request (notifications get none) to
// output, until input reaches EOF.
func (s *Server) Run(input io.Reader, output io.Writer) error {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	encoder := json.NewEncoder(output)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			if werr := writeError(encoder, json.RawMessage("null"), codeParseError, "parse error: "+err.Error()); werr != nil {
				return werr
			}
			continue
		}
		if req.JSONRPC != "2.0" {
			if !req.isNotification() {
				if werr := writeError(encoder, req.ID, codeInvalidRequest, "unsupported JSON-RPC version"); werr != nil {
					return werr
				}
			}
			continue
		}
		if req.isNotification() {
			continue
		}
		if err := s.dispatch(encoder, &req); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(encoder *json.Encoder, req *request) error {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(encoder, req)
	case "ping":
		return writeResult(encoder, req.ID, struct{}{})
	case "tools/list":
		if !s.initialized {
			return writeError(encoder, req.ID, codeInvalidRequest, "server not initialized")
		}
		return writeResult(encoder, req.ID, toolsListResult{Tools: s.tools()})
	case "tools/call":
		if !s.initialized {
			return writeError(encoder, req.ID, codeInvalidRequest, "server not initialized")
		}
		return s.handleToolsCall(encoder, req)
	default:
		return writeError(encoder, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
	}
}

func (s *Server) handleInitialize(encoder *json.Encoder, req *request) error {
	s.initialized = true
	return writeResult(encoder, req.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    serverCapabilities{Tools: &toolCapability{}},
		ServerInfo:      serverInfo{Name: "switcheroo-agent", Version: "0"},
	})
}

// tools returns the taskspace-scoped tool descriptions, or none when
// this endpoint has no taskspace context.
func (s *Server) tools() []toolDescription {
	if !s.HasUUID {
		return nil
	}
	return []toolDescription{
		{
			Name:        "update_taskspace",
			Description: "Rename or redescribe the current taskspace.",
			InputSchema: objectSchema(map[string]string{"name": "string", "description": "string"}, nil),
		},
		{
			Name:        "log_progress",
			Description: "Record a progress message against the current taskspace.",
			InputSchema: objectSchema(map[string]string{
				"message":  "string",
				"category": "string",
			}, []string{"message", "category"}),
		},
		{
			Name:        "signal_user",
			Description: "Raise a signal that needs the operator's attention.",
			InputSchema: objectSchema(map[string]string{"message": "string"}, []string{"message"}),
		},
	}
}

func (s *Server) handleToolsCall(encoder *json.Encoder, req *request) error {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return writeError(encoder, req.ID, codeInvalidParams, "invalid tools/call params: "+err.Error())
	}

	if !s.HasUUID {
		return writeResult(encoder, req.ID, toolError(fmt.Sprintf("no taskspace context: %q is unavailable outside a taskspace clone directory", params.Name)))
	}

	var body any
	switch params.Name {
	case "update_taskspace":
		var args struct {
			Name        string `json:"name,omitempty"`
			Description string `json:"description,omitempty"`
		}
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return writeResult(encoder, req.ID, toolError("invalid arguments: "+err.Error()))
		}
		body = event.UpdateTaskspaceBody{
			Type:        event.UpdateTaskspace,
			Timestamp:   s.timeNow(),
			UUID:        s.UUID.String(),
			Name:        args.Name,
			Description: args.Description,
		}

	case "log_progress":
		var args struct {
			Message  string `json:"message"`
			Category string `json:"category"`
		}
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return writeResult(encoder, req.ID, toolError("invalid arguments: "+err.Error()))
		}
		body = event.ProgressLogBody{
			Type:          event.ProgressLog,
			Timestamp:     s.timeNow(),
			Message:       args.Message,
			Category:      event.Category(args.Category),
			TaskspaceUUID: s.UUID.String(),
		}

	case "signal_user":
		var args struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return writeResult(encoder, req.ID, toolError("invalid arguments: "+err.Error()))
		}
		body = event.UserSignalBody{
			Type:          event.UserSignal,
			Timestamp:     s.timeNow(),
			Message:       args.Message,
			TaskspaceUUID: s.UUID.String(),
		}

	default:
		return writeResult(encoder, req.ID, toolError(fmt.Sprintf("unknown tool %q", params.Name)))
	}

	line, err := event.Marshal(body)
	if err != nil {
		return writeResult(encoder, req.ID, toolError("marshaling event: "+err.Error()))
	}
	if err := busclient.Send(s.SocketPath, line); err != nil {
		return writeResult(encoder, req.ID, toolError("sending event: "+err.Error()))
	}
	return writeResult(encoder, req.ID, toolsCallResult{Content: []contentBlock{{Type: "text", Text: "ok"}}})
}

func (s *Server) timeNow() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func toolError(message string) toolsCallResult {
	return toolsCallResult{Content: []contentBlock{{Type: "text", Text: message}}, IsError: true}
}

func objectSchema(properties map[string]string, required []string) map[string]any {
	props := make(map[string]any, len(properties))
	for name, typ := range properties {
		props[name] = map[string]string{"type": typ}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func writeResult(encoder *json.Encoder, id json.RawMessage, result any) error {
	return encoder.Encode(response{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(encoder *json.Encoder, id json.RawMessage, code int, message string) error {
	return encoder.Encode(response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}
