// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"strings"
	"testing"
	"time"
)

func TestMarshalAppendsNewline(t *testing.T) {
	body := StatusRequestBody{Type: StatusRequest, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	line, err := Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.HasSuffix(string(line), "\n") {
		t.Fatalf("expected trailing newline, got %q", line)
	}
	if strings.Count(string(line), "\n") != 1 {
		t.Fatalf("expected exactly one newline, got %q", line)
	}
}

func TestParseEnvelopeReadsType(t *testing.T) {
	line := []byte(`{"type":"status_request","timestamp":"2026-01-01T00:00:00Z"}`)
	env, err := ParseEnvelope(line)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if env.Type != StatusRequest {
		t.Fatalf("got type %q, want %q", env.Type, StatusRequest)
	}
}

func TestParseEnvelopeRejectsMissingType(t *testing.T) {
	if _, err := ParseEnvelope([]byte(`{"timestamp":"2026-01-01T00:00:00Z"}`)); err == nil {
		t.Fatal("expected error for missing type field")
	}
}

func TestDeriveUUIDFromCloneDir(t *testing.T) {
	path := "/home/user/switcheroo/taskspaces/7e6e1234-abcd-4ef0-9012-abcdefabc012/clone"
	id, err := DeriveUUID(path)
	if err != nil {
		t.Fatalf("DeriveUUID: %v", err)
	}
	if id.String() != "7e6e1234-abcd-4ef0-9012-abcdefabc012" {
		t.Fatalf("got %q, want 7e6e1234-abcd-4ef0-9012-abcdefabc012", id.String())
	}
}

func TestDeriveUUIDNoMatch(t *testing.T) {
	if _, err := DeriveUUID("/home/user/projects/demo"); err == nil {
		t.Fatal("expected error when path has no UUID substring")
	}
}
