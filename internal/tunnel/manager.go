// Package tunnel manages the lifecycle of SSH forward tunnels to databases
// behind a bastion host: open, close, status, and connectivity testing.
package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kthomann/dbtunnel/internal/appconfig"
	"github.com/kthomann/dbtunnel/internal/events"
	"github.com/kthomann/dbtunnel/internal/model"
	"github.com/kthomann/dbtunnel/internal/util"
)

// Manager orchestrates create/close/status/test operations over a registry
// of tunnel handles. Liveness is only authoritative at the moment Status or
// Test is called: there is no background watcher, a silently died process is
// detected and demoted lazily on the next query.
type Manager struct {
	mu       sync.Mutex
	launcher Launcher
	registry *Registry
	journal  *events.Store
	meta     map[int]tunnelMeta

	ReadyTimeout time.Duration
	ProbeTimeout time.Duration
}

type tunnelMeta struct {
	startedAt time.Time
	driver    model.Driver
}

// NewManager creates a manager over the given launcher and registry. The
// journal may be nil to disable lifecycle event recording.
func NewManager(launcher Launcher, registry *Registry, journal *events.Store) *Manager {
	return &Manager{
		launcher:     launcher,
		registry:     registry,
		journal:      journal,
		meta:         make(map[int]tunnelMeta),
		ReadyTimeout: util.DefaultReadyTimeout,
		ProbeTimeout: util.ProbeTimeout,
	}
}

// Open validates the spec, reserves its local port in the registry, starts
// the forwarding process, and waits for the tunnel to accept connections.
// On any failure the registry entry and any partially started process are
// rolled back before the originating error is returned: a failed Open never
// leaves a half-registered tunnel behind.
func (m *Manager) Open(ctx context.Context, spec model.TunnelSpec) (model.TunnelInfo, error) {
	if err := ValidateSpec(spec); err != nil {
		return model.TunnelInfo{}, err
	}

	h := NewHandle(spec)
	if err := m.registry.Register(h); err != nil {
		return model.TunnelInfo{}, err
	}

	if err := h.Start(ctx, m.launcher); err != nil {
		m.registry.Unregister(spec.LocalPort)
		m.record(events.TypeOpenFailed, spec.LocalPort, 0, err.Error())
		return model.TunnelInfo{}, err
	}
	if err := h.WaitReady(m.ReadyTimeout); err != nil {
		_ = h.Close()
		m.registry.Unregister(spec.LocalPort)
		m.record(events.TypeOpenFailed, spec.LocalPort, h.PID(), err.Error())
		return model.TunnelInfo{}, err
	}

	m.mu.Lock()
	m.meta[spec.LocalPort] = tunnelMeta{startedAt: time.Now(), driver: m.launcher.Driver()}
	m.mu.Unlock()

	m.record(events.TypeOpened, spec.LocalPort, h.PID(), "")
	m.persist()
	return m.info(h, model.StateOpen), nil
}

// Close tears down the tunnel on a local port and removes it from the
// registry. Closing an absent or already-closed tunnel returns success
// without side effects.
func (m *Manager) Close(localPort int) error {
	h, ok := m.registry.Lookup(localPort)
	if !ok {
		return nil
	}
	pid := h.PID()
	if err := h.Close(); err != nil {
		slog.Warn("tunnel close", "port", localPort, "error", err)
	}
	m.registry.Unregister(localPort)
	m.forget(localPort)
	m.record(events.TypeClosed, localPort, pid, "")
	m.persist()
	return nil
}

// CloseAll tears down every registered tunnel.
func (m *Manager) CloseAll() {
	for _, spec := range m.registry.ListActive() {
		_ = m.Close(spec.LocalPort)
	}
}

// Status reports the state of the tunnel on a local port, re-checking
// process liveness. A process that died without an explicit close moves the
// tunnel to Errored, unregisters it, and returns a ProcessDiedError
// alongside the state.
func (m *Manager) Status(localPort int) (model.TunnelState, error) {
	h, ok := m.registry.Lookup(localPort)
	if !ok {
		return model.StateAbsent, nil
	}
	if h.IsAlive() {
		return model.StateOpen, nil
	}

	_ = h.Close()
	m.registry.Unregister(localPort)
	m.forget(localPort)
	err := &ProcessDiedError{Port: localPort}
	m.record(events.TypeDied, localPort, 0, err.Error())
	m.persist()
	return model.StateErrored, err
}

// TestReport is the result of a connectivity probe through a tunnel.
type TestReport struct {
	LocalPort int    `json:"local_port"`
	Forwarded bool   `json:"forwarded"`
	Reachable bool   `json:"reachable"`
	LatencyMS int64  `json:"latency_ms"`
	Detail    string `json:"detail,omitempty"`
}

// OK reports overall probe success.
func (r TestReport) OK() bool { return r.Forwarded && r.Reachable }

// Test probes the tunnel on a local port without mutating registry state.
// Two stages separate "port not forwarded" from "forwarded but database
// unreachable": first a loopback dial proves the listener is up, then a
// short read through the tunnel checks the far side. Database servers such
// as MySQL send a greeting on connect, so data means reachable; an EOF means
// ssh accepted locally but could not reach the endpoint behind the bastion.
func (m *Manager) Test(localPort int) (TestReport, error) {
	report := TestReport{LocalPort: localPort}

	if h, ok := m.registry.Lookup(localPort); ok && !h.IsAlive() {
		report.Detail = "tunnel process died"
		return report, &ProcessDiedError{Port: localPort}
	}

	start := time.Now()
	conn, err := net.DialTimeout("tcp", util.LoopbackAddr(localPort), m.ProbeTimeout)
	if err != nil {
		report.Detail = "local port not forwarded"
		return report, nil
	}
	defer conn.Close()
	report.Forwarded = true
	report.LatencyMS = time.Since(start).Milliseconds()

	_ = conn.SetReadDeadline(time.Now().Add(m.ProbeTimeout))
	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	switch {
	case n > 0:
		report.Reachable = true
	case err != nil && errors.Is(err, os.ErrDeadlineExceeded):
		// Connection held open with no server greeting. The forward is
		// intact; the endpoint speaks a client-first protocol.
		report.Reachable = true
		report.Detail = "no server greeting within probe window"
	default:
		// EOF or reset: ssh accepted locally, then the far-side dial failed.
		report.Detail = "forwarded but database unreachable"
	}
	return report, nil
}

// List returns runtime records for all registered tunnels, sorted by local
// port ascending.
func (m *Manager) List() []model.TunnelInfo {
	hs := m.registry.handles()
	out := make([]model.TunnelInfo, 0, len(hs))
	for _, h := range hs {
		state := model.StateOpen
		if !h.IsAlive() {
			state = model.StateErrored
		}
		out = append(out, m.info(h, state))
	}
	return out
}

// ListActive returns the registry's spec snapshot.
func (m *Manager) ListActive() []model.TunnelSpec {
	return m.registry.ListActive()
}

func (m *Manager) info(h *Handle, state model.TunnelState) model.TunnelInfo {
	spec := h.Spec()
	m.mu.Lock()
	meta := m.meta[spec.LocalPort]
	m.mu.Unlock()

	inf := model.TunnelInfo{
		Spec:      spec,
		Driver:    meta.driver,
		PID:       h.PID(),
		State:     state,
		StartedAt: meta.startedAt,
	}
	if !meta.startedAt.IsZero() {
		inf.UptimeSec = int64(time.Since(meta.startedAt).Seconds())
	}
	return inf
}

func (m *Manager) forget(localPort int) {
	m.mu.Lock()
	delete(m.meta, localPort)
	m.mu.Unlock()
}

func (m *Manager) record(eventType string, port, pid int, msg string) {
	if m.journal == nil {
		return
	}
	err := m.journal.Append(events.Event{
		LocalPort: port,
		EventType: eventType,
		PID:       pid,
		Message:   msg,
	})
	if err != nil {
		slog.Warn("failed to append tunnel event", "error", err)
	}
}

// LoadRuntime restores tunnel state persisted by a previous invocation.
// Entries whose process is gone, and entries opened by the in-process
// native driver of another process, are dropped rather than resumed.
func (m *Manager) LoadRuntime() error {
	path, err := appconfig.RuntimeFilePath()
	if err != nil {
		return err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var arr []model.TunnelInfo
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	for _, inf := range arr {
		if inf.Driver != model.DriverExec || inf.PID <= 0 || !processAlive(inf.PID) {
			continue
		}
		h := resumeHandle(inf.Spec, inf.PID)
		if err := m.registry.Register(h); err != nil {
			slog.Warn("skipping duplicate runtime entry", "port", inf.Spec.LocalPort)
			continue
		}
		m.mu.Lock()
		m.meta[inf.Spec.LocalPort] = tunnelMeta{startedAt: inf.StartedAt, driver: inf.Driver}
		m.mu.Unlock()
	}
	return nil
}

func (m *Manager) persist() {
	path, err := appconfig.RuntimeFilePath()
	if err != nil {
		slog.Warn("failed to resolve runtime path", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Warn("failed to create runtime dir", "error", err)
		return
	}
	arr := m.List()
	b, err := json.MarshalIndent(arr, "", "  ")
	if err != nil {
		slog.Warn("failed to encode runtime state", "error", err)
		return
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		slog.Warn("failed to persist runtime state", "error", err)
	}
}
