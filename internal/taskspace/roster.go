// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package taskspace

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Roster is the in-memory ordered set of taskspaces for one host, plus
// the identifier of the currently active one. Every mutation holds the
// lock for its duration; callers needing multiple mutations in a
// transition should take care not to interleave across suspension
// points (see Controller's transition serialization).
type Roster struct {
	mu         sync.Mutex
	Host       string
	active     uuid.UUID
	hasActive  bool
	order      []uuid.UUID
	byUUID     map[uuid.UUID]*Taskspace
}

// NewRoster returns an empty roster for host.
func NewRoster(host string) *Roster {
	return &Roster{Host: host, byUUID: make(map[uuid.UUID]*Taskspace)}
}

// Insert adds t to the roster. t.UUID must not already be present.
func (r *Roster) Insert(t *Taskspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byUUID[t.UUID]; exists {
		return fmt.Errorf("taskspace %s already in roster", t.UUID)
	}
	r.byUUID[t.UUID] = t
	r.order = append(r.order, t.UUID)
	return nil
}

// Remove deletes the taskspace with the given id, if present. If it was
// the active taskspace, no other taskspace is automatically promoted —
// the caller decides the new focus.
func (r *Roster) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byUUID, id)
	for i, u := range r.order {
		if u == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.hasActive && r.active == id {
		r.hasActive = false
	}
}

// Get returns the taskspace with the given id, or nil if absent.
func (r *Roster) Get(id uuid.UUID) *Taskspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byUUID[id]
}

// FindByName returns the taskspace whose name matches, or nil.
func (r *Roster) FindByName(name string) *Taskspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.order {
		if t := r.byUUID[u]; t.Name == name {
			return t
		}
	}
	return nil
}

// All returns taskspaces in roster order.
func (r *Roster) All() []*Taskspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Taskspace, 0, len(r.order))
	for _, u := range r.order {
		out = append(out, r.byUUID[u])
	}
	return out
}

// SetActive marks id as the focused taskspace. id must already be in
// the roster.
func (r *Roster) SetActive(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byUUID[id]; !exists {
		return fmt.Errorf("cannot focus taskspace %s: not in roster", id)
	}
	r.active = id
	r.hasActive = true
	return nil
}

// Active returns the currently focused taskspace and whether one is
// set.
func (r *Roster) Active() (*Taskspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasActive {
		return nil, false
	}
	return r.byUUID[r.active], true
}
