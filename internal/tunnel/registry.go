package tunnel

import (
	"sort"
	"sync"

	"github.com/kthomann/dbtunnel/internal/model"
)

// Registry tracks active tunnels by local port, enforcing at most one
// tunnel per port. Instances are passed explicitly rather than held in
// package state so tests and callers never share hidden mutable state.
// All mutation goes through the registry mutex.
type Registry struct {
	mu      sync.Mutex
	entries map[int]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int]*Handle)}
}

// Register stores the handle under its spec's local port. Returns
// PortInUseError if a live entry already owns the port; a dead leftover
// entry is evicted and replaced.
func (r *Registry) Register(h *Handle) error {
	port := h.Spec().LocalPort
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[port]; ok {
		if existing.State() == HandleRunning || existing.State() == HandleCreated {
			return &PortInUseError{Port: port}
		}
	}
	r.entries[port] = h
	return nil
}

// Unregister removes the entry for a local port. No-op if absent.
func (r *Registry) Unregister(localPort int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, localPort)
}

// Lookup returns the handle for a local port, if registered.
func (r *Registry) Lookup(localPort int) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[localPort]
	return h, ok
}

// ListActive returns a snapshot of registered specs sorted by local port
// ascending. The snapshot does not live-update.
func (r *Registry) ListActive() []model.TunnelSpec {
	r.mu.Lock()
	out := make([]model.TunnelSpec, 0, len(r.entries))
	for _, h := range r.entries {
		out = append(out, h.Spec())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LocalPort < out[j].LocalPort })
	return out
}

// handles returns a snapshot of registered handles sorted by local port.
func (r *Registry) handles() []*Handle {
	r.mu.Lock()
	out := make([]*Handle, 0, len(r.entries))
	for _, h := range r.entries {
		out = append(out, h)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Spec().LocalPort < out[j].Spec().LocalPort })
	return out
}
