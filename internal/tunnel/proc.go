package tunnel

import (
	"context"
	"os"
	"sync"
	"syscall"

	"github.com/kthomann/dbtunnel/internal/model"
)

// Proc is the minimal surface the tunnel handle needs from a running
// forwarding resource, whether that is an ssh child process (internal/sshexec)
// or an in-process forwarder (internal/sshnative).
type Proc interface {
	// PID returns the OS process id, or 0 for in-process forwarders.
	PID() int
	// Alive reports liveness without blocking and without reaping.
	Alive() bool
	// Done is closed once the underlying process or connection has exited.
	Done() <-chan struct{}
	// Err returns the classified exit error after Done is closed, nil for
	// a clean stop.
	Err() error
	// Stop releases the forwarding resource. Idempotent and safe to call
	// from any goroutine.
	Stop() error
}

// Launcher abstracts tunnel process creation so the manager can be tested
// without a bastion host, and so the exec and native drivers are
// interchangeable.
type Launcher interface {
	Launch(ctx context.Context, spec model.TunnelSpec) (Proc, error)
	Driver() model.Driver
}

// resumedProc adopts a tunnel child process recorded in runtime.json by an
// earlier invocation. Only the pid survived, so liveness and termination go
// through signals, the same way the original process would have been managed.
type resumedProc struct {
	pid      int
	done     chan struct{}
	doneOnce sync.Once
}

func newResumedProc(pid int) *resumedProc {
	return &resumedProc{pid: pid, done: make(chan struct{})}
}

func (p *resumedProc) PID() int { return p.pid }

func (p *resumedProc) Alive() bool { return processAlive(p.pid) }

func (p *resumedProc) Done() <-chan struct{} {
	if !processAlive(p.pid) {
		p.doneOnce.Do(func() { close(p.done) })
	}
	return p.done
}

func (p *resumedProc) Err() error { return nil }

func (p *resumedProc) Stop() error {
	if p.pid > 0 && processAlive(p.pid) {
		if proc, err := os.FindProcess(p.pid); err == nil {
			_ = proc.Signal(syscall.SIGTERM)
		}
	}
	p.doneOnce.Do(func() { close(p.done) })
	return nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil
}
