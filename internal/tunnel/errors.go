package tunnel

import (
	"errors"
	"fmt"
	"time"
)

// InvalidSpecError reports a tunnel spec that failed construction-time
// validation (port range, empty remote host, inaccessible key).
type InvalidSpecError struct {
	Reason string
}

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid tunnel spec: %s", e.Reason)
}

// BindError reports a local port already taken at the OS level, as opposed
// to a registry-level duplicate (PortInUseError).
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("local port %d unavailable: %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ConnectError reports an unreachable bastion host or failed authentication.
// Interactive auth prompts (e.g. MFA) also surface here: the exec driver runs
// ssh with BatchMode=yes, so any prompt becomes an auth failure.
type ConnectError struct {
	Target string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("cannot establish tunnel via %s: %v", e.Target, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TimeoutError reports a tunnel that did not become ready within the
// wait_ready deadline.
type TimeoutError struct {
	Port    int
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tunnel on port %d not ready after %s", e.Port, e.Timeout)
}

// PortInUseError reports a registry-level duplicate: another live tunnel
// already owns the local port.
type PortInUseError struct {
	Port int
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("port %d already has an active tunnel", e.Port)
}

// ProcessDiedError reports a tunnel whose underlying process exited without
// an explicit close, detected lazily on status() or test().
type ProcessDiedError struct {
	Port   int
	Detail string
}

func (e *ProcessDiedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("tunnel process for port %d died", e.Port)
	}
	return fmt.Sprintf("tunnel process for port %d died: %s", e.Port, e.Detail)
}

// Exit codes for the CLI surface, one per taxonomy entry.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInvalidSpec = 2
	ExitPortInUse   = 3
	ExitBind        = 4
	ExitConnect     = 5
	ExitTimeout     = 6
	ExitProcessDied = 7
)

// ExitCode maps an error to the process exit code contract.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		invalid *InvalidSpecError
		inUse   *PortInUseError
		bind    *BindError
		connect *ConnectError
		timeout *TimeoutError
		died    *ProcessDiedError
	)
	switch {
	case errors.As(err, &invalid):
		return ExitInvalidSpec
	case errors.As(err, &inUse):
		return ExitPortInUse
	case errors.As(err, &bind):
		return ExitBind
	case errors.As(err, &connect):
		return ExitConnect
	case errors.As(err, &timeout):
		return ExitTimeout
	case errors.As(err, &died):
		return ExitProcessDied
	}
	return ExitFailure
}
