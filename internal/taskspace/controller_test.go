// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package taskspace

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/socratic-shell/theoldswitcheroo/internal/clock"
	"github.com/socratic-shell/theoldswitcheroo/internal/event"
	"github.com/socratic-shell/theoldswitcheroo/internal/persist"
	"github.com/socratic-shell/theoldswitcheroo/internal/transport"
	"github.com/socratic-shell/theoldswitcheroo/internal/uicontract"
)

// announcedPort is the listening port the fake editor server in
// installFakeSSHWithServerScript always reports, matched by
// servePort45137 so the subsequent forwarded-port health probe has
// something real to bridge to.
const announcedPort = 45137

// servePort45137 binds a plain HTTP 200 responder to announcedPort on
// 127.0.0.1, standing in for the editor server that the fake ssh's -W
// netcat mode bridges forwarded connections to.
func servePort45137(t *testing.T) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:45137")
	if err != nil {
		t.Fatalf("listening on %d: %v", announcedPort, err)
	}
	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusOK)
	})}
	go server.Serve(listener)
	t.Cleanup(func() { server.Close() })
}

// fakeSurface is a uicontract.Surface that just records calls, for
// assertions without pulling in a real renderer.
type fakeSurface struct {
	progress  []string
	errors    []string
	presented uicontract.ViewHandle
}

func (f *fakeSurface) UpdateProgress(message string)              { f.progress = append(f.progress, message) }
func (f *fakeSurface) ShowError(title, message, details string)   { f.errors = append(f.errors, title+": "+message) }
func (f *fakeSurface) Present(handle uicontract.ViewHandle)       { f.presented = handle }
func (f *fakeSurface) CreateEditorView(partition, url string) uicontract.ViewHandle {
	return "editor:" + url
}
func (f *fakeSurface) CreateMetaView(partition string) uicontract.ViewHandle { return "meta:" + partition }

// installFakeSSHWithServerScript installs a fake ssh on PATH that,
// beyond the control-master/check/exit modes from transport_test.go,
// reads and discards whatever script is piped to its stdin (`sh -s`),
// writes a burst of noise to stderr, and echoes a fixed port
// announcement line before sleeping, simulating an editor server that
// has just started.
func installFakeSSHWithServerScript(t *testing.T) {
	t.Helper()
	dir := t.TempDir()

	script := `#!/bin/bash
sock=""
mode=""
host=""
args=""
w_target=""
while [ $# -gt 0 ]; do
  case "$1" in
    -S) shift; sock="$1" ;;
    -M) mode="master" ;;
    -N) ;;
    -O) shift; mode="$1" ;;
    -o) shift ;;
    -W) shift; w_target="$1" ;;
    *) if [ -z "$host" ]; then host="$1"; else args="$args $1"; fi ;;
  esac
  shift
done

case "$mode" in
  master)
    : > "$sock"
    trap 'rm -f "$sock"; exit 0' TERM INT
    while [ -f "$sock" ]; do sleep 0.05; done
    exit 0
    ;;
  check)
    [ -f "$sock" ] && exit 0 || exit 1
    ;;
  exit)
    rm -f "$sock"
    exit 0
    ;;
  *)
    if [ -n "$w_target" ]; then
      port="${w_target##*:}"
      exec 3<>"/dev/tcp/127.0.0.1/$port"
      cat <&3 &
      cat >&3
      exit 0
    fi
    case "$args" in
      *"sh -s"*)
        cat > /dev/null
        yes "package manager warning: pretend this is noisy" | head -c 200000 1>&2
        echo "Web UI available at http://0.0.0.0:45137"
        sleep 1
        exit 0
        ;;
    esac
    if [ -n "$args" ]; then
      sh -c "$args"
      exit $?
    fi
    exit 0
    ;;
esac
`
	path := filepath.Join(dir, "ssh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake ssh: %v", err)
	}
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

func newTestController(t *testing.T, surface *fakeSurface) *Controller {
	t.Helper()
	runDir := t.TempDir()
	dataDir := t.TempDir()
	baseDir := t.TempDir()
	mux := transport.New(runDir, clock.Real())
	store := persist.NewRosterStore(dataDir)

	ctrl := New("example.com", baseDir, filepath.Join(baseDir, "bin", "openvscode-server"), t.TempDir(), mux, surface, store, clock.Real(), nil)

	if err := mux.EnsureChannel(context.Background(), "example.com"); err != nil {
		t.Fatalf("EnsureChannel: %v", err)
	}
	t.Cleanup(func() { mux.ShutdownAll(context.Background()) })
	// Every controller allocates local ports from the same starting
	// value, so release this one's forwards before the next test runs.
	t.Cleanup(func() {
		ctrl.forwardsMu.Lock()
		defer ctrl.forwardsMu.Unlock()
		for _, tunnel := range ctrl.forwards {
			tunnel.Close()
		}
	})

	return ctrl
}

func TestCreateTaskspaceTransitionsToCloned(t *testing.T) {
	installFakeSSHWithServerScript(t)
	surface := &fakeSurface{}
	ctrl := newTestController(t, surface)

	taskspace, err := ctrl.CreateTaskspace(context.Background(), "Alpha", "", "#!/bin/sh\nmkdir -p \"$1\"\n")
	if err != nil {
		t.Fatalf("CreateTaskspace: %v", err)
	}
	if taskspace.State != Cloned {
		t.Fatalf("got state %s, want Cloned", taskspace.State)
	}
	if len(surface.errors) != 0 {
		t.Fatalf("unexpected errors: %v", surface.errors)
	}
}

func TestStartTransitionsToRunning(t *testing.T) {
	installFakeSSHWithServerScript(t)
	servePort45137(t)
	surface := &fakeSurface{}
	ctrl := newTestController(t, surface)

	taskspace, err := ctrl.CreateTaskspace(context.Background(), "Alpha", "", "#!/bin/sh\nmkdir -p \"$1\"\n")
	if err != nil {
		t.Fatalf("CreateTaskspace: %v", err)
	}

	if err := ctrl.Start(context.Background(), taskspace.UUID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if taskspace.State != Running {
		t.Fatalf("got state %s, want Running", taskspace.State)
	}
	if taskspace.Port != 45137 {
		t.Fatalf("got port %d, want 45137", taskspace.Port)
	}
	if surface.presented == nil {
		t.Fatal("expected Present to have been called")
	}
}

func TestStartUploadsExtensionPackagesBeforeInvoking(t *testing.T) {
	installFakeSSHWithServerScript(t)
	servePort45137(t)
	surface := &fakeSurface{}
	ctrl := newTestController(t, surface)

	if err := os.WriteFile(filepath.Join(ctrl.UploadsDir, "my-ext.vsix"), []byte("fake vsix contents"), 0o644); err != nil {
		t.Fatalf("writing fake package: %v", err)
	}

	ts, err := ctrl.CreateTaskspace(context.Background(), "Alpha", "", "#!/bin/sh\nmkdir -p \"$1\"\n")
	if err != nil {
		t.Fatalf("CreateTaskspace: %v", err)
	}
	ts.Manifest.Uploaded = []string{"my-ext.vsix"}

	if err := ctrl.Start(context.Background(), ts.UUID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	remotePath := filepath.Join(ts.Paths.Root, "uploads", "my-ext.vsix")
	got, err := os.ReadFile(remotePath)
	if err != nil {
		t.Fatalf("reading uploaded package at %s: %v", remotePath, err)
	}
	if string(got) != "fake vsix contents" {
		t.Fatalf("got uploaded contents %q, want %q", got, "fake vsix contents")
	}
}

func TestRemoveDeletesRosterEntry(t *testing.T) {
	installFakeSSHWithServerScript(t)
	surface := &fakeSurface{}
	ctrl := newTestController(t, surface)

	taskspace, err := ctrl.CreateTaskspace(context.Background(), "Alpha", "", "#!/bin/sh\nmkdir -p \"$1\"\n")
	if err != nil {
		t.Fatalf("CreateTaskspace: %v", err)
	}

	if err := ctrl.Remove(taskspace.UUID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ctrl.Roster.Get(taskspace.UUID) != nil {
		t.Fatal("taskspace should no longer be in the roster")
	}
}

func TestCheckHealthMarksRunningTaskspaceStaleOnProbeFailure(t *testing.T) {
	installFakeSSHWithServerScript(t)
	servePort45137(t)
	surface := &fakeSurface{}
	ctrl := newTestController(t, surface)

	taskspace, err := ctrl.CreateTaskspace(context.Background(), "Alpha", "", "#!/bin/sh\nmkdir -p \"$1\"\n")
	if err != nil {
		t.Fatalf("CreateTaskspace: %v", err)
	}
	if err := ctrl.Start(context.Background(), taskspace.UUID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Probing through the real forwarded tunnel would require the fake
	// ssh's -W bridge to still be backed by a live server; instead
	// stop answering on the editor's port directly to simulate the
	// editor process having died underneath the forward.
	taskspace.LocalPort = 1 // nothing listens here

	ctrl.CheckHealth(context.Background())

	if taskspace.State != Stale {
		t.Fatalf("got state %s, want Stale", taskspace.State)
	}
}

func TestUpdateTaskspaceRenamesRosterEntry(t *testing.T) {
	installFakeSSHWithServerScript(t)
	surface := &fakeSurface{}
	ctrl := newTestController(t, surface)

	ts, err := ctrl.CreateTaskspace(context.Background(), "Alpha", "", "#!/bin/sh\nmkdir -p \"$1\"\n")
	if err != nil {
		t.Fatalf("CreateTaskspace: %v", err)
	}

	err = ctrl.UpdateTaskspace(context.Background(), ts.UUID, event.UpdateTaskspaceBody{
		UUID: ts.UUID.String(),
		Name: "Beta",
	})
	if err != nil {
		t.Fatalf("UpdateTaskspace: %v", err)
	}
	if got := ctrl.Roster.Get(ts.UUID).Name; got != "Beta" {
		t.Fatalf("got name %q, want %q", got, "Beta")
	}
}

func TestUpdateTaskspaceUnknownUUIDFails(t *testing.T) {
	installFakeSSHWithServerScript(t)
	surface := &fakeSurface{}
	ctrl := newTestController(t, surface)

	err := ctrl.UpdateTaskspace(context.Background(), uuid.New(), event.UpdateTaskspaceBody{Name: "Beta"})
	if err == nil {
		t.Fatal("expected an error for an unknown taskspace")
	}
}

func TestProgressLogReportsToSurface(t *testing.T) {
	installFakeSSHWithServerScript(t)
	surface := &fakeSurface{}
	ctrl := newTestController(t, surface)

	if err := ctrl.ProgressLog(context.Background(), uuid.UUID{}, false, event.ProgressLogBody{Message: "cloning"}); err != nil {
		t.Fatalf("ProgressLog: %v", err)
	}
	if len(surface.progress) == 0 || surface.progress[len(surface.progress)-1] != "cloning" {
		t.Fatalf("got progress %v, want the message reported", surface.progress)
	}
}

func TestUserSignalReportsToSurface(t *testing.T) {
	installFakeSSHWithServerScript(t)
	surface := &fakeSurface{}
	ctrl := newTestController(t, surface)

	if err := ctrl.UserSignal(context.Background(), uuid.UUID{}, false, event.UserSignalBody{Message: "need input"}); err != nil {
		t.Fatalf("UserSignal: %v", err)
	}
	if len(surface.errors) == 0 {
		t.Fatal("expected UserSignal to report through ShowError")
	}
}

func TestTaskspaceExistsReflectsRoster(t *testing.T) {
	installFakeSSHWithServerScript(t)
	surface := &fakeSurface{}
	ctrl := newTestController(t, surface)

	if ctrl.TaskspaceExists(uuid.New()) {
		t.Fatal("unexpected taskspace reported as existing")
	}

	ts, err := ctrl.CreateTaskspace(context.Background(), "Alpha", "", "#!/bin/sh\nmkdir -p \"$1\"\n")
	if err != nil {
		t.Fatalf("CreateTaskspace: %v", err)
	}
	if !ctrl.TaskspaceExists(ts.UUID) {
		t.Fatal("expected the newly created taskspace to exist")
	}
}

func TestRosterSummaryReflectsActiveTaskspace(t *testing.T) {
	installFakeSSHWithServerScript(t)
	surface := &fakeSurface{}
	ctrl := newTestController(t, surface)

	ts, err := ctrl.CreateTaskspace(context.Background(), "Alpha", "", "#!/bin/sh\nmkdir -p \"$1\"\n")
	if err != nil {
		t.Fatalf("CreateTaskspace: %v", err)
	}
	if err := ctrl.Roster.SetActive(ts.UUID); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	rows, activeUUID, hasActive := ctrl.RosterSummary()
	if len(rows) != 1 || rows[0].UUID != ts.UUID.String() {
		t.Fatalf("got rows %+v, want one row for %s", rows, ts.UUID)
	}
	if !hasActive || activeUUID != ts.UUID.String() {
		t.Fatalf("got active %q (hasActive=%v), want %s", activeUUID, hasActive, ts.UUID)
	}
}
