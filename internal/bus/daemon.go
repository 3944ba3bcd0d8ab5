// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

// Package bus implements the remote-side bus daemon: a two-way
// fan-in/fan-out relay between the controller's stdio and an arbitrary
// number of local Unix-socket clients. It never parses message bodies —
// complete lines are copied byte-for-byte.
package bus

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// handoffPollInterval is how often Run checks whether its own socket
// file has been deleted out from under it.
const handoffPollInterval = 200 * time.Millisecond

// handoffBound is the maximum time Run takes to notice a deleted socket
// and exit, per the handoff protocol's design bound.
const handoffBound = 2 * time.Second

// ErrAlreadyRunning is returned by Run when the socket path already
// exists at startup, signaling that another daemon instance holds it.
type ErrAlreadyRunning struct {
	SocketPath string
}

func (e *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("bus daemon socket %q already exists; refusing to start", e.SocketPath)
}

// Daemon relays newline-delimited JSON lines between Stdin/Stdout
// (attached to the controller) and clients connected to SocketPath.
type Daemon struct {
	SocketPath string
	Stdin      io.Reader
	Stdout     io.Writer
	Logger     *slog.Logger

	mu      sync.Mutex
	clients map[net.Conn]struct{}
}

// Run starts the daemon and blocks until the socket file disappears
// (a handoff, or Shutdown removing it) or Stdin reaches EOF (the
// controller is gone). It takes no context; callers force shutdown
// by calling Shutdown or by closing Stdin.
func (d *Daemon) Run() error {
	if _, err := os.Stat(d.SocketPath); err == nil {
		return &ErrAlreadyRunning{SocketPath: d.SocketPath}
	}

	listener, err := net.Listen("unix", d.SocketPath)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", d.SocketPath, err)
	}
	if err := os.Chmod(d.SocketPath, 0o600); err != nil {
		listener.Close()
		os.Remove(d.SocketPath)
		return fmt.Errorf("setting owner-only permissions on %q: %w", d.SocketPath, err)
	}

	d.clients = make(map[net.Conn]struct{})

	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	go d.watchSocket(finish)
	go d.acceptLoop(listener)
	go d.relayStdin(finish)

	<-done
	listener.Close()
	d.closeAllClients()
	return nil
}

// watchSocket waits for the socket file's disappearance — the handoff
// signal — and calls finish as soon as it notices. Prefers an inotify
// watch on the socket's directory; if that can't be set up (missing
// permission, exotic filesystem), falls back to stat polling at
// handoffPollInterval, which is chosen well below handoffBound so the
// daemon still reliably notices and exits within that design bound.
func (d *Daemon) watchSocket(finish func()) {
	dir := filepath.Dir(d.SocketPath)
	name := filepath.Base(d.SocketPath)

	gone, cleanup, err := watchForDeletion(dir, name)
	if err != nil {
		d.log("inotify watch unavailable, falling back to polling", "error", err)
		d.watchSocketByPolling(finish)
		return
	}
	defer cleanup()

	<-gone
	d.log("bus daemon socket deleted, yielding to new instance", "socket", d.SocketPath)
	finish()
}

func (d *Daemon) watchSocketByPolling(finish func()) {
	for {
		if _, err := os.Stat(d.SocketPath); os.IsNotExist(err) {
			d.log("bus daemon socket deleted, yielding to new instance", "socket", d.SocketPath)
			finish()
			return
		}
		time.Sleep(handoffPollInterval)
	}
}

func (d *Daemon) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.clients[conn] = struct{}{}
		d.mu.Unlock()
		go d.relayClient(conn)
	}
}

// relayClient accumulates bytes from conn and writes each complete line
// verbatim to Stdout, for the controller's event router to dispatch.
func (d *Daemon) relayClient(conn net.Conn) {
	defer func() {
		d.mu.Lock()
		delete(d.clients, conn)
		d.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		d.mu.Lock()
		_, _ = d.Stdout.Write(append(append([]byte{}, line...), '\n'))
		d.mu.Unlock()
	}
}

// relayStdin reads lines from the controller and broadcasts each to
// every connected client. Stdin reaching EOF means the controller is
// gone; the daemon has nothing left to relay for, so it finishes.
func (d *Daemon) relayStdin(finish func()) {
	scanner := bufio.NewScanner(d.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := append(append([]byte{}, scanner.Bytes()...), '\n')
		d.broadcast(line)
	}
	d.log("bus daemon stdin closed, controller is gone")
	finish()
}

func (d *Daemon) broadcast(line []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for conn := range d.clients {
		_, _ = conn.Write(line)
	}
}

func (d *Daemon) closeAllClients() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for conn := range d.clients {
		conn.Close()
	}
	d.clients = make(map[net.Conn]struct{})
}

// Shutdown removes the socket file and closes all client connections,
// matching the normal-exit path of spec.md §4.2 ("on catching the
// conventional termination signals").
func (d *Daemon) Shutdown() {
	os.Remove(d.SocketPath)
	d.closeAllClients()
}

func (d *Daemon) log(msg string, args ...any) {
	if d.Logger != nil {
		d.Logger.Info(msg, args...)
	}
}
