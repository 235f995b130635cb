// Package sshexec launches forward tunnels through the system ssh binary.
//
// This package does not implement the SSH protocol; it shells out to the
// installed OpenSSH client, which brings along the user's agent, known_hosts
// handling, and any ProxyJump configuration for free. A tunnel is a plain
// child process running
//
//	ssh -i <key> -N -L 127.0.0.1:<localPort>:<remoteHost>:<remotePort> <user>@<bastion>
//
// so it keeps running after the launching CLI process exits; later
// invocations find it again via the persisted pid (see tunnel.LoadRuntime).
//
// All ssh arguments are passed via exec.Command's argv, never through a
// shell, so hostnames and key paths with metacharacters cannot inject
// commands.
package sshexec

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/kthomann/dbtunnel/internal/model"
	"github.com/kthomann/dbtunnel/internal/security"
	"github.com/kthomann/dbtunnel/internal/tunnel"
)

// stderrLimit bounds how much ssh stderr is retained for error
// classification. OpenSSH failure messages fit comfortably.
const stderrLimit = 8 << 10

// EnsureSSHBinary checks that the "ssh" binary is available on PATH. Called
// early so a missing client fails with a clear message instead of a
// confusing exec error mid-open.
func EnsureSSHBinary() error {
	if _, err := exec.LookPath("ssh"); err != nil {
		return security.NewClassifiedError(
			"ssh binary not found in PATH",
			fmt.Sprintf("exec.LookPath(ssh): %v", err))
	}
	return nil
}

// BuildTunnelArgs constructs the ssh argv for a tunnel without starting a
// process. Split out so argument composition can be unit tested and echoed
// for debugging.
//
// BatchMode=yes turns any interactive prompt (password, MFA) into an
// immediate authentication failure; ExitOnForwardFailure=yes makes a local
// bind failure fatal rather than a warning.
func BuildTunnelArgs(spec model.TunnelSpec) []string {
	return []string{
		"-i", spec.KeyPath,
		"-N",
		"-o", "BatchMode=yes",
		"-o", "ExitOnForwardFailure=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		"-L", fmt.Sprintf("127.0.0.1:%d:%s:%d", spec.LocalPort, spec.RemoteHost, spec.RemotePort),
		spec.BastionTarget(),
	}
}

// Launcher starts tunnel child processes via the system ssh binary. It is
// stateless and safe for concurrent use.
type Launcher struct{}

// NewLauncher creates an exec-driver launcher.
func NewLauncher() *Launcher { return &Launcher{} }

// Driver identifies this launcher's mechanism.
func (l *Launcher) Driver() model.Driver { return model.DriverExec }

// Launch starts the ssh forwarding process for spec. The context is
// intentionally not bound to the process lifetime: exec-driver tunnels must
// survive the launching CLI invocation, so the only cancellation path after
// a successful Launch is Proc.Stop.
func (l *Launcher) Launch(_ context.Context, spec model.TunnelSpec) (tunnel.Proc, error) {
	cmd := exec.Command("ssh", BuildTunnelArgs(spec)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = io.Discard
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return nil, &tunnel.ConnectError{Target: spec.BastionTarget(), Err: err}
	}

	p := &Process{
		cmd:    cmd,
		target: spec.BastionTarget(),
		port:   spec.LocalPort,
		done:   make(chan struct{}),
	}
	// Single reaper: drains stderr (ssh blocks on a full pipe), waits for
	// exit, records the classified error. It never touches the registry;
	// liveness stays a lazy, on-demand check.
	go p.reap(stderr)
	return p, nil
}

// Process is one running ssh tunnel child process.
type Process struct {
	cmd    *exec.Cmd
	target string
	port   int

	mu      sync.Mutex
	stopped bool
	exitErr error

	done     chan struct{}
	stopOnce sync.Once
}

func (p *Process) reap(stderr io.Reader) {
	out, _ := io.ReadAll(io.LimitReader(stderr, stderrLimit))
	err := p.cmd.Wait()

	p.mu.Lock()
	if err != nil && !p.stopped {
		p.exitErr = ClassifyExit(p.port, p.target, string(out), err)
	}
	p.mu.Unlock()
	close(p.done)
}

// PID returns the child process id.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Alive reports whether the child is still running. Non-blocking.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done is closed when the child has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err returns the classified exit error once Done is closed.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Stop terminates the child with SIGTERM. Idempotent; a deliberate stop is
// not recorded as an exit error.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(syscall.SIGTERM)
		}
	})
	return nil
}

// ClassifyExit maps an ssh process exit plus its stderr output onto the
// tunnel error taxonomy. OpenSSH reports local forward bind failures and
// bastion connection/auth failures with distinct, stable message fragments.
func ClassifyExit(port int, target, stderr string, exitErr error) error {
	low := strings.ToLower(stderr)
	switch {
	case strings.Contains(low, "address already in use") ||
		strings.Contains(low, "cannot listen to port"):
		return &tunnel.BindError{Port: port, Err: fmt.Errorf("%s", firstLine(stderr))}
	case strings.Contains(low, "permission denied") ||
		strings.Contains(low, "authentication failed") ||
		strings.Contains(low, "host key verification failed") ||
		strings.Contains(low, "could not resolve hostname") ||
		strings.Contains(low, "connection refused") ||
		strings.Contains(low, "connection timed out") ||
		strings.Contains(low, "operation timed out") ||
		strings.Contains(low, "network is unreachable"):
		return &tunnel.ConnectError{Target: target, Err: fmt.Errorf("%s", firstLine(stderr))}
	case strings.TrimSpace(stderr) != "":
		return &tunnel.ConnectError{Target: target, Err: fmt.Errorf("%s", firstLine(stderr))}
	}
	return &tunnel.ConnectError{Target: target, Err: exitErr}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

var _ tunnel.Launcher = (*Launcher)(nil)
var _ tunnel.Proc = (*Process)(nil)
