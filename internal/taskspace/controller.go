// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package taskspace

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/socratic-shell/theoldswitcheroo/internal/clock"
	"github.com/socratic-shell/theoldswitcheroo/internal/event"
	"github.com/socratic-shell/theoldswitcheroo/internal/persist"
	"github.com/socratic-shell/theoldswitcheroo/internal/transport"
	"github.com/socratic-shell/theoldswitcheroo/internal/uicontract"
)

// startupTimeout bounds how long Start waits for the editor server to
// announce a listening port before failing the transition.
const startupTimeout = 60 * time.Second

// ErrStartupTimeout is returned when no port is discovered within
// startupTimeout.
var ErrStartupTimeout = fmt.Errorf("editor server startup timed out")

// Controller drives the taskspace lifecycle state machine, in
// cooperation with the transport multiplexer, a UI surface, and a
// roster store. Transitions on one taskspace are serialized by
// transitionLocks; transitions on different taskspaces may proceed
// concurrently.
type Controller struct {
	Host         string
	BaseDir      string
	EditorBinary string
	UploadsDir   string // local directory holding files named by a taskspace's Manifest.Uploaded
	Mux          *transport.Multiplexer
	Surface      uicontract.Surface
	RosterStore  *persist.RosterStore
	Clock        clock.Clock
	Logger       *slog.Logger

	Roster *Roster

	forwardsMu sync.Mutex
	forwards   map[uuid.UUID]*transport.Tunnel
	nextPort   int

	transitionsMu sync.Mutex
	transitions   map[uuid.UUID]*sync.Mutex
}

// New returns a Controller ready to drive taskspaces for host, rooted
// at baseDir on the remote side. uploadsDir is where Start looks up
// the local files named by a taskspace's Manifest.Uploaded; it may be
// empty for controllers that never handle uploaded packages.
func New(host, baseDir, editorBinary, uploadsDir string, mux *transport.Multiplexer, surface uicontract.Surface, store *persist.RosterStore, c clock.Clock, logger *slog.Logger) *Controller {
	return &Controller{
		Host:         host,
		BaseDir:      baseDir,
		EditorBinary: editorBinary,
		UploadsDir:   uploadsDir,
		Mux:          mux,
		Surface:      surface,
		RosterStore:  store,
		Clock:        c,
		Logger:       logger,
		Roster:       NewRoster(host),
		forwards:     make(map[uuid.UUID]*transport.Tunnel),
		nextPort:     44000,
		transitions:  make(map[uuid.UUID]*sync.Mutex),
	}
}

func (c *Controller) transitionLock(id uuid.UUID) *sync.Mutex {
	c.transitionsMu.Lock()
	defer c.transitionsMu.Unlock()
	lock, ok := c.transitions[id]
	if !ok {
		lock = &sync.Mutex{}
		c.transitions[id] = lock
	}
	return lock
}

// CreateTaskspace allocates a fresh UUID, inserts a roster entry, and
// begins the Absent → Provisioning → Cloned transition by running the
// project's fresh-clone script through the transport multiplexer.
func (c *Controller) CreateTaskspace(ctx context.Context, name, description, cloneScriptSource string) (*Taskspace, error) {
	if existing := c.Roster.FindByName(name); existing != nil {
		return nil, fmt.Errorf("taskspace named %q already exists (%s)", name, existing.UUID)
	}

	id := uuid.New()
	paths := DerivePaths(c.BaseDir, id)

	t := &Taskspace{
		UUID:        id,
		Name:        name,
		Description: description,
		Paths:       paths,
		State:       Provisioning,
		LastSeen:    c.Clock.Now(),
	}
	if err := c.Roster.Insert(t); err != nil {
		return nil, err
	}
	c.notifyRosterChanged()

	lock := c.transitionLock(id)
	lock.Lock()
	defer lock.Unlock()

	c.Surface.UpdateProgress(fmt.Sprintf("provisioning taskspace %s", name))

	if _, err := c.Mux.Execute(ctx, c.Host, fmt.Sprintf("mkdir -p %s", shQuote(paths.Root))); err != nil {
		c.Surface.ShowError("Provisioning failed", "could not create taskspace directory", err.Error())
		return t, fmt.Errorf("creating taskspace root: %w", err)
	}

	uploadPath := paths.FreshCloneScript
	if err := c.uploadScript(ctx, cloneScriptSource, uploadPath); err != nil {
		c.Surface.ShowError("Provisioning failed", "could not upload clone script", err.Error())
		return t, err
	}

	cloneCmd := fmt.Sprintf("sh %s %s", shQuote(uploadPath), shQuote(paths.CloneRoot))
	if _, err := c.Mux.Execute(ctx, c.Host, cloneCmd); err != nil {
		c.Surface.ShowError("Provisioning failed", "clone script exited non-zero", err.Error())
		return t, fmt.Errorf("running clone script: %w", err)
	}

	t.State = Cloned
	t.LastSeen = c.Clock.Now()
	c.notifyRosterChanged()
	return t, nil
}

func (c *Controller) uploadScript(ctx context.Context, source, remotePath string) error {
	tmp, err := writeTempFile(source)
	if err != nil {
		return fmt.Errorf("staging clone script: %w", err)
	}
	defer removeTempFile(tmp)
	return c.Mux.Upload(ctx, c.Host, tmp, remotePath)
}

// Start drives a Cloned or Stale taskspace into Starting and then
// Running: it constructs the server invocation script, runs it through
// ExecuteStreaming, watches stdout for the listening-port announcement,
// opens a local forward, and probes the port for readiness.
func (c *Controller) Start(ctx context.Context, id uuid.UUID) error {
	t := c.Roster.Get(id)
	if t == nil {
		return fmt.Errorf("taskspace %s not in roster", id)
	}

	lock := c.transitionLock(id)
	lock.Lock()
	defer lock.Unlock()

	if t.State != Cloned && t.State != Stale {
		return fmt.Errorf("cannot start taskspace %s from state %s", id, t.State)
	}

	t.State = Starting
	c.Surface.UpdateProgress(fmt.Sprintf("starting editor server for %s", t.Name))

	uploadedPackagePaths, err := c.uploadExtensionPackages(ctx, t)
	if err != nil {
		t.State = Cloned
		c.Surface.ShowError("Startup failed", "could not upload extension package", err.Error())
		return err
	}

	script := ServerInvocationScript(c.EditorBinary, t.Paths, SharedUserDataDir(c.BaseDir), t.Manifest, uploadedPackagePaths)
	stream, err := c.Mux.ExecuteStreaming(ctx, c.Host, "sh -s")
	if err != nil {
		t.State = Cloned
		c.Surface.ShowError("Startup failed", "could not launch editor server", err.Error())
		return fmt.Errorf("launching editor server: %w", err)
	}
	go func() { _, _ = stream.Stdin.Write([]byte(script)); stream.Stdin.Close() }()
	go c.drainStderr(stream)

	port, err := c.watchForPort(ctx, stream)
	if err != nil {
		t.State = Cloned
		t.Port = 0
		c.Surface.ShowError("Startup failed", "editor server never announced a listening port", err.Error())
		return err
	}

	localPort := c.allocateLocalPort()
	tunnel, err := c.Mux.ForwardPort(ctx, c.Host, localPort, port)
	if err != nil {
		t.State = Cloned
		c.Surface.ShowError("Startup failed", "could not forward local port", err.Error())
		return fmt.Errorf("forwarding port: %w", err)
	}

	if err := ProbeLocalPort(ctx, c.Clock, localPort); err != nil {
		tunnel.Close()
		t.State = Stale
		c.Surface.ShowError("Startup failed", "editor server did not become healthy", err.Error())
		return fmt.Errorf("probing editor server: %w", err)
	}

	c.forwardsMu.Lock()
	c.forwards[id] = tunnel
	c.forwardsMu.Unlock()

	t.Port = port
	t.LocalPort = localPort
	t.State = Running
	t.LastSeen = c.Clock.Now()

	url := fmt.Sprintf("http://localhost:%d", localPort)
	t.EditorView = c.Surface.CreateEditorView(id.String(), url)
	c.Surface.Present(t.EditorView)

	c.notifyRosterChanged()
	return nil
}

// uploadExtensionPackages stages every file named in t.Manifest.Uploaded
// from c.UploadsDir to a remote path under the taskspace's root, and
// returns the resulting package-name-to-remote-path map for
// ServerInvocationScript. A taskspace with no uploaded packages costs
// nothing: the map is nil and no upload runs.
func (c *Controller) uploadExtensionPackages(ctx context.Context, t *Taskspace) (map[string]string, error) {
	if len(t.Manifest.Uploaded) == 0 {
		return nil, nil
	}
	remoteUploadsDir := filepath.Join(t.Paths.Root, "uploads")
	if _, err := c.Mux.Execute(ctx, c.Host, "mkdir -p "+shQuote(remoteUploadsDir)); err != nil {
		return nil, fmt.Errorf("creating remote uploads directory: %w", err)
	}

	remotePaths := make(map[string]string, len(t.Manifest.Uploaded))
	for _, packageName := range t.Manifest.Uploaded {
		localPath := filepath.Join(c.UploadsDir, packageName)
		remotePath := filepath.Join(remoteUploadsDir, packageName)
		if err := c.Mux.Upload(ctx, c.Host, localPath, remotePath); err != nil {
			return nil, fmt.Errorf("uploading extension package %s: %w", packageName, err)
		}
		remotePaths[packageName] = remotePath
	}
	return remotePaths, nil
}

// drainStderr logs stream's stderr line by line so a chatty remote
// invocation (package-manager warnings, missing-file errors) never
// fills the pipe and stalls the process watchForPort is waiting on.
func (c *Controller) drainStderr(stream *transport.Stream) {
	scanner := bufio.NewScanner(stream.Stderr)
	for scanner.Scan() {
		c.log("editor server stderr", "line", scanner.Text())
	}
}

func (c *Controller) allocateLocalPort() int {
	c.forwardsMu.Lock()
	defer c.forwardsMu.Unlock()
	port := c.nextPort
	c.nextPort++
	return port
}

// watchForPort reads stream's stdout line by line until ScanPortFromLine
// finds a port, the stream ends, or startupTimeout elapses.
func (c *Controller) watchForPort(ctx context.Context, stream *transport.Stream) (int, error) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stream.Stdout)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	deadline := c.Clock.After(startupTimeout)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return 0, fmt.Errorf("%w: editor server output ended before announcing a port", ErrStartupTimeout)
			}
			c.log("editor server output", "line", line)
			if port := ScanPortFromLine(line); port != 0 {
				return port, nil
			}
		case <-deadline:
			return 0, fmt.Errorf("%w: no port discovered within %s", ErrStartupTimeout, startupTimeout)
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// MarkStale transitions a Running taskspace to Stale after a failed
// health probe, clearing nothing but the forward — the last-known port
// is retained so the next Start attempt can report what was lost.
func (c *Controller) MarkStale(id uuid.UUID) {
	t := c.Roster.Get(id)
	if t == nil {
		return
	}
	lock := c.transitionLock(id)
	lock.Lock()
	defer lock.Unlock()

	if t.State != Running {
		return
	}

	c.forwardsMu.Lock()
	if tunnel, ok := c.forwards[id]; ok {
		tunnel.Close()
		delete(c.forwards, id)
	}
	c.forwardsMu.Unlock()

	t.LocalPort = 0
	t.State = Stale
	c.notifyRosterChanged()
}

// healthCheckInterval is how often RunHealthLoop probes every Running
// taskspace's forwarded port.
const healthCheckInterval = 30 * time.Second

// CheckHealth probes every Running taskspace's forwarded port once and
// marks any that fail as Stale, implementing the Running → Stale
// transition's triggering condition (spec.md §4.4.2) outside of the
// startup path. Safe to call concurrently with itself; each taskspace's
// probe-then-maybe-mark sequence still serializes through that
// taskspace's transition lock inside MarkStale.
func (c *Controller) CheckHealth(ctx context.Context) {
	for _, t := range c.Roster.All() {
		if t.State != Running || t.LocalPort == 0 {
			continue
		}
		if err := ProbeOnce(ctx, t.LocalPort); err != nil {
			c.log("health probe failed, marking stale", "uuid", t.UUID, "error", err)
			c.MarkStale(t.UUID)
		}
	}
}

// RunHealthLoop calls CheckHealth on every healthCheckInterval tick
// until ctx is canceled. Intended to run in its own goroutine for the
// lifetime of the controller.
func (c *Controller) RunHealthLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Clock.After(healthCheckInterval):
			c.CheckHealth(ctx)
		}
	}
}

// Remove tears down a taskspace's forward (if any) and deletes its
// roster entry. Valid from Running, Cloned, or Stale.
func (c *Controller) Remove(id uuid.UUID) error {
	t := c.Roster.Get(id)
	if t == nil {
		return fmt.Errorf("taskspace %s not in roster", id)
	}
	lock := c.transitionLock(id)
	lock.Lock()
	defer lock.Unlock()

	if t.State != Running && t.State != Cloned && t.State != Stale {
		return fmt.Errorf("cannot remove taskspace %s from state %s", id, t.State)
	}

	c.forwardsMu.Lock()
	if tunnel, ok := c.forwards[id]; ok {
		tunnel.Close()
		delete(c.forwards, id)
	}
	c.forwardsMu.Unlock()

	t.State = Removed
	c.Roster.Remove(id)
	c.notifyRosterChanged()
	return nil
}

// UpdateTaskspace applies a rename and/or redescription to a roster
// entry. Empty fields in body leave the corresponding value
// unchanged.
func (c *Controller) UpdateTaskspace(ctx context.Context, id uuid.UUID, body event.UpdateTaskspaceBody) error {
	t := c.Roster.Get(id)
	if t == nil {
		return fmt.Errorf("taskspace %s not in roster", id)
	}
	if body.Name != "" {
		t.Name = body.Name
	}
	if body.Description != "" {
		t.Description = body.Description
	}
	t.LastSeen = c.Clock.Now()
	c.notifyRosterChanged()
	return nil
}

// ProgressLog relays a taskspace's progress message to the UI
// surface and refreshes its last-seen timestamp when attributed to a
// live roster entry.
func (c *Controller) ProgressLog(ctx context.Context, id uuid.UUID, attributed bool, body event.ProgressLogBody) error {
	if attributed {
		if t := c.Roster.Get(id); t != nil {
			t.LastSeen = c.Clock.Now()
		}
	}
	c.Surface.UpdateProgress(body.Message)
	return nil
}

// UserSignal relays a taskspace's request for the operator's
// attention to the UI surface.
func (c *Controller) UserSignal(ctx context.Context, id uuid.UUID, attributed bool, body event.UserSignalBody) error {
	if attributed {
		if t := c.Roster.Get(id); t != nil {
			t.LastSeen = c.Clock.Now()
		}
	}
	c.Surface.ShowError("Taskspace needs attention", body.Message, "")
	return nil
}

// TaskspaceExists reports whether id names a live roster entry.
func (c *Controller) TaskspaceExists(id uuid.UUID) bool {
	return c.Roster.Get(id) != nil
}

// RosterSummary returns the rows and active-taskspace identifier for
// a status_response reply.
func (c *Controller) RosterSummary() (rows []event.TaskspaceSummary, activeUUID string, hasActive bool) {
	for _, t := range c.Roster.All() {
		rows = append(rows, event.TaskspaceSummary{
			Name:   t.Name,
			Status: t.State.String(),
			UUID:   t.UUID.String(),
		})
	}
	active, ok := c.Roster.Active()
	if ok {
		return rows, active.UUID.String(), true
	}
	return rows, "", false
}

// notifyRosterChanged emits the observable side effect required by
// spec.md §4.4.7: signal the UI collaborator, then persist. A
// persistence error is logged, never surfaced as a UI failure.
func (c *Controller) notifyRosterChanged() {
	c.Surface.UpdateProgress("roster changed")

	if c.RosterStore == nil {
		return
	}
	snapshot := c.snapshotRoster()
	if err := c.RosterStore.Save(snapshot); err != nil {
		c.log("failed to persist roster", "error", err)
	}
}

func (c *Controller) snapshotRoster() persist.Roster {
	active, hasActive := c.Roster.Active()
	snapshot := persist.Roster{Hostname: c.Host}
	if hasActive {
		snapshot.ActiveTaskSpaceUUID = active.UUID.String()
	}
	for _, t := range c.Roster.All() {
		snapshot.Taskspaces = append(snapshot.Taskspaces, persist.TaskspaceRecord{
			UUID:          t.UUID.String(),
			Name:          t.Name,
			Port:          t.Port,
			ServerDataDir: t.Paths.ServerDataRoot,
			Extensions:    persist.ExtensionManifest{Marketplace: t.Manifest.Marketplace, Uploaded: t.Manifest.Uploaded},
			LastSeen:      t.LastSeen,
		})
	}
	return snapshot
}

// Restore reads the persisted roster, drops entries whose clone
// directory no longer exists, and restores survivors into Cloned with
// their previous last-known port. Returns the identifier of the
// taskspace that should be focused first, if any survive.
func (c *Controller) Restore(ctx context.Context) (uuid.UUID, bool, error) {
	snapshot, err := c.RosterStore.Load()
	if err != nil {
		return uuid.UUID{}, false, fmt.Errorf("loading roster: %w", err)
	}

	var focus uuid.UUID
	hasFocus := false

	for _, record := range snapshot.Taskspaces {
		id, err := uuid.Parse(record.UUID)
		if err != nil {
			c.log("dropping roster entry with invalid uuid", "uuid", record.UUID)
			continue
		}
		paths := DerivePaths(c.BaseDir, id)
		if _, err := c.Mux.Execute(ctx, c.Host, "test -d "+shQuote(paths.CloneRoot)); err != nil {
			c.log("dropping roster entry with missing clone", "uuid", record.UUID)
			continue
		}

		t := &Taskspace{
			UUID:     id,
			Name:     record.Name,
			Paths:    paths,
			State:    Cloned,
			Port:     record.Port,
			LastSeen: record.LastSeen,
			Manifest: ExtensionManifest{Marketplace: record.Extensions.Marketplace, Uploaded: record.Extensions.Uploaded},
		}
		if err := c.Roster.Insert(t); err != nil {
			continue
		}

		if snapshot.ActiveTaskSpaceUUID == record.UUID {
			focus = id
			hasFocus = true
		}
	}

	if !hasFocus {
		if all := c.Roster.All(); len(all) > 0 {
			focus = all[0].UUID
			hasFocus = true
		}
	}
	if hasFocus {
		_ = c.Roster.SetActive(focus)
	}

	return focus, hasFocus, nil
}

func (c *Controller) log(msg string, args ...any) {
	if c.Logger != nil {
		c.Logger.Info(msg, args...)
	}
}
