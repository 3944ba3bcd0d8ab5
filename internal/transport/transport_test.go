// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/socratic-shell/theoldswitcheroo/internal/clock"
	"github.com/socratic-shell/theoldswitcheroo/internal/testutil"
)

// installFakeSSH writes a fake `ssh` onto PATH that understands just
// enough of the control-master command line to exercise Multiplexer
// without a real remote host: `-M -S sock host` creates sock and blocks
// until killed or told to exit; `-S sock -O check host` succeeds while
// sock exists; `-S sock -O exit host` removes sock; `-S sock host
// <command>` execs command as a regular shell command (so Execute can
// be tested against ordinary local shell behavior).
func installFakeSSH(t *testing.T) {
	t.Helper()
	dir := t.TempDir()

	script := `#!/bin/sh
sock=""
mode=""
host=""
args=""
while [ $# -gt 0 ]; do
  case "$1" in
    -S) shift; sock="$1" ;;
    -M) mode="master" ;;
    -N) ;;
    -O) shift; mode="$1" ;;
    -o) shift ;;
    -W) shift ;;
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

func TestEnsureChannelIdempotent(t *testing.T) {
	installFakeSSH(t)
	runDir := testutil.SocketDir(t)
	m := New(runDir, clock.Real())

	ctx := context.Background()
	if err := m.EnsureChannel(ctx, "example.com"); err != nil {
		t.Fatalf("EnsureChannel: %v", err)
	}
	if err := m.EnsureChannel(ctx, "example.com"); err != nil {
		t.Fatalf("second EnsureChannel: %v", err)
	}

	m.ShutdownAll(ctx)
}

func TestExecuteCapturesStdout(t *testing.T) {
	installFakeSSH(t)
	runDir := testutil.SocketDir(t)
	m := New(runDir, clock.Real())
	ctx := context.Background()

	if err := m.EnsureChannel(ctx, "example.com"); err != nil {
		t.Fatalf("EnsureChannel: %v", err)
	}
	defer m.ShutdownAll(ctx)

	out, err := m.Execute(ctx, "example.com", "echo hello")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "hello" {
		t.Fatalf("got %q, want %q", out, "hello")
	}
}

func TestExecuteReturnsRemoteCommandError(t *testing.T) {
	installFakeSSH(t)
	runDir := testutil.SocketDir(t)
	m := New(runDir, clock.Real())
	ctx := context.Background()

	if err := m.EnsureChannel(ctx, "example.com"); err != nil {
		t.Fatalf("EnsureChannel: %v", err)
	}
	defer m.ShutdownAll(ctx)

	_, err := m.Execute(ctx, "example.com", "exit 3")
	if err == nil {
		t.Fatal("expected an error for non-zero exit")
	}
}

func TestForwardPortRequiresEnsureChannel(t *testing.T) {
	installFakeSSH(t)
	runDir := testutil.SocketDir(t)
	m := New(runDir, clock.Real())
	ctx := context.Background()

	_, err := m.ForwardPort(ctx, "example.com", 0, 1234)
	if err == nil {
		t.Fatal("expected ErrPrecondition when EnsureChannel was not called")
	}
}

func TestEnsureChannelFailsWhenControlMasterExitsImmediately(t *testing.T) {
	dir := t.TempDir()
	script := "#!/bin/sh\nexit 1\n"
	if err := os.WriteFile(filepath.Join(dir, "ssh"), []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake ssh: %v", err)
	}
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	runDir := testutil.SocketDir(t)
	fc := clock.Fake(time.Now())
	m := New(runDir, fc)

	done := make(chan error, 1)
	go func() { done <- m.EnsureChannel(context.Background(), "example.com") }()

	err := testutil.RequireReceive(t, done, 5*time.Second, "EnsureChannel should return once control master exits")
	if err == nil {
		t.Fatal("expected ErrTransportSetup")
	}
}
