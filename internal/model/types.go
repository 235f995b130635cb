package model

import (
	"fmt"
	"time"
)

// TunnelSpec identifies and configures one forward tunnel: a loopback port
// whose traffic is relayed to a private database endpoint via a bastion host.
type TunnelSpec struct {
	LocalPort   int    `json:"local_port" yaml:"local_port"`
	RemoteHost  string `json:"remote_host" yaml:"remote_host"`
	RemotePort  int    `json:"remote_port" yaml:"remote_port"`
	BastionHost string `json:"bastion_host" yaml:"bastion_host"`
	BastionUser string `json:"bastion_user" yaml:"bastion_user"`
	KeyPath     string `json:"key_path" yaml:"key_path"`
}

// LocalAddr returns the loopback endpoint clients connect to.
func (s TunnelSpec) LocalAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", s.LocalPort)
}

// RemoteAddr returns the database endpoint behind the bastion.
func (s TunnelSpec) RemoteAddr() string {
	return fmt.Sprintf("%s:%d", s.RemoteHost, s.RemotePort)
}

// BastionTarget returns the ssh destination (user@host or bare host).
func (s TunnelSpec) BastionTarget() string {
	if s.BastionUser == "" {
		return s.BastionHost
	}
	return fmt.Sprintf("%s@%s", s.BastionUser, s.BastionHost)
}

// TunnelState is the manager-level state of one tunnel identity.
type TunnelState string

const (
	StateAbsent  TunnelState = "absent"
	StateOpening TunnelState = "opening"
	StateOpen    TunnelState = "open"
	StateClosing TunnelState = "closing"
	StateClosed  TunnelState = "closed"
	StateErrored TunnelState = "errored"
)

// Driver names the forwarding mechanism backing a tunnel.
type Driver string

const (
	// DriverExec shells out to the system ssh binary (-N -L). Tunnels
	// survive the invoking process, so the CLI can close them later.
	DriverExec Driver = "exec"
	// DriverNative forwards in-process via golang.org/x/crypto/ssh.
	// Tunnels live and die with the owning process.
	DriverNative Driver = "native"
)

// TunnelInfo is the runtime record for one tunnel, as reported by the
// manager and persisted to runtime.json between CLI invocations.
type TunnelInfo struct {
	Spec      TunnelSpec  `json:"spec"`
	Driver    Driver      `json:"driver"`
	PID       int         `json:"pid,omitempty"`
	State     TunnelState `json:"state"`
	StartedAt time.Time   `json:"started_at"`
	UptimeSec int64       `json:"uptime_seconds"`
	LastError string      `json:"last_error,omitempty"`
}
