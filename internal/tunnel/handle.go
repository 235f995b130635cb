package tunnel

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/kthomann/dbtunnel/internal/model"
	"github.com/kthomann/dbtunnel/internal/util"
)

// HandleState is the lifecycle state of one forwarding resource.
type HandleState string

const (
	HandleCreated HandleState = "created"
	HandleRunning HandleState = "running"
	HandleStopped HandleState = "stopped"
	HandleFailed  HandleState = "failed"
)

// Handle owns one underlying forwarding resource for a tunnel spec. It is
// created unstarted so the registry can reserve the local port before any
// process exists, started exactly once, and closed idempotently. Close is
// safe to call from a different goroutine than the one that called Start.
type Handle struct {
	mu    sync.Mutex
	spec  model.TunnelSpec
	proc  Proc
	state HandleState
}

// NewHandle creates an unstarted handle for spec.
func NewHandle(spec model.TunnelSpec) *Handle {
	return &Handle{spec: spec, state: HandleCreated}
}

// resumeHandle adopts an already-running process from a previous invocation.
func resumeHandle(spec model.TunnelSpec, pid int) *Handle {
	return &Handle{spec: spec, proc: newResumedProc(pid), state: HandleRunning}
}

// Spec returns the tunnel spec this handle forwards for.
func (h *Handle) Spec() model.TunnelSpec { return h.spec }

// State returns the current lifecycle state.
func (h *Handle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// PID returns the OS process id of the forwarding process, or 0.
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.proc == nil {
		return 0
	}
	return h.proc.PID()
}

// Start launches the forwarding resource bound to the spec's local port.
// The loopback listen probe catches an OS-occupied port up front and turns
// it into a BindError before any ssh process is spawned; the driver's own
// bind failure handling remains as backstop for the probe-to-launch window.
// The context only bounds launch-time work (the native driver's SSH dial);
// after Start returns, Close is the sole cancellation path.
func (h *Handle) Start(ctx context.Context, launcher Launcher) error {
	h.mu.Lock()
	if h.state != HandleCreated {
		h.mu.Unlock()
		return &InvalidSpecError{Reason: "handle already started"}
	}
	h.mu.Unlock()

	ln, err := net.Listen("tcp", util.LoopbackAddr(h.spec.LocalPort))
	if err != nil {
		h.fail()
		return &BindError{Port: h.spec.LocalPort, Err: err}
	}
	_ = ln.Close()

	proc, err := launcher.Launch(ctx, h.spec)
	if err != nil {
		h.fail()
		return err
	}

	h.mu.Lock()
	h.proc = proc
	h.state = HandleRunning
	h.mu.Unlock()
	return nil
}

func (h *Handle) fail() {
	h.mu.Lock()
	h.state = HandleFailed
	h.mu.Unlock()
}

// IsAlive reports whether the forwarding resource is still up. Non-blocking;
// a dead child is not reaped here, the caller decides when to Close.
func (h *Handle) IsAlive() bool {
	h.mu.Lock()
	proc := h.proc
	state := h.state
	h.mu.Unlock()
	if state != HandleRunning || proc == nil {
		return false
	}
	return proc.Alive()
}

// WaitReady blocks until the tunnel accepts a loopback connection, the
// underlying process exits, or the timeout elapses. A process exit surfaces
// the driver's classified error (ConnectError, BindError); the deadline
// produces a TimeoutError.
func (h *Handle) WaitReady(timeout time.Duration) error {
	h.mu.Lock()
	proc := h.proc
	h.mu.Unlock()
	if proc == nil {
		return &ProcessDiedError{Port: h.spec.LocalPort, Detail: "not started"}
	}

	deadline := time.Now().Add(timeout)
	addr := h.spec.LocalAddr()
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &TimeoutError{Port: h.spec.LocalPort, Timeout: timeout}
		}

		interval := util.ReadyPollInterval
		if interval > remaining {
			interval = remaining
		}
		conn, err := net.DialTimeout("tcp", addr, interval)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		select {
		case <-proc.Done():
			if perr := proc.Err(); perr != nil {
				return perr
			}
			return &ProcessDiedError{Port: h.spec.LocalPort, Detail: "exited before ready"}
		case <-time.After(interval):
		}
	}
}

// Close releases the forwarding resource. Closing an already-closed or
// never-started handle is a no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	proc := h.proc
	closed := h.state == HandleStopped || h.state == HandleFailed
	h.state = HandleStopped
	h.mu.Unlock()

	if closed || proc == nil {
		return nil
	}
	return proc.Stop()
}
