// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package registry tracks the open connection of every machine.
package registry

import (
	"sort"
	"sync"

	"github.com/juju/errors"
)

// Registry maps machine indexes to their open Handle. At most one handle
// is held per machine. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	handles map[int]*Handle
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		handles: make(map[int]*Handle),
	}
}

// Register adds the handle. It fails if another handle is already
// registered for the same machine.
func (r *Registry) Register(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.handles[h.machine]; ok {
		if existing == h {
			return nil
		}
		return errors.AlreadyExistsf("connection for machine %d", h.machine)
	}
	r.handles[h.machine] = h
	return nil
}

// Unregister removes the handle, reporting whether it was registered.
// A different handle registered for the same machine is left alone.
func (r *Registry) Unregister(h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.handles[h.machine]; !ok || existing != h {
		return false
	}
	delete(r.handles, h.machine)
	return true
}

// Get returns the handle for the machine.
func (r *Registry) Get(machine int) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handles[machine]
	return h, ok
}

// Handles returns the registered handles ordered by machine index.
func (r *Registry) Handles() []*Handle {
	r.mu.RLock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	sort.Slice(handles, func(i, j int) bool {
		return handles[i].machine < handles[j].machine
	})
	return handles
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
