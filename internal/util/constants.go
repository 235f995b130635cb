// Package util provides common utility functions and constants used across
// dbtunnel. This package is intentionally kept dependency-free (no imports
// from other internal/* packages) to serve as a shared foundation without
// introducing circular dependencies.
package util

import "time"

const (
	// ProbeTimeout is the maximum time allowed for a single TCP probe
	// against a tunnel's loopback endpoint. Loopback connects complete
	// well under this bound unless the tunnel is genuinely unhealthy.
	ProbeTimeout = 500 * time.Millisecond

	// DefaultReadyTimeout bounds how long open() waits for a freshly
	// started tunnel to accept its first connection. Covers the SSH
	// handshake to the bastion plus listener setup.
	DefaultReadyTimeout = 10 * time.Second

	// ReadyPollInterval is the delay between readiness dial attempts
	// while a tunnel is starting up.
	ReadyPollInterval = 50 * time.Millisecond

	// DefaultRefreshSeconds is the fallback interval for the dashboard's
	// periodic tunnel status refresh when config.yaml has no valid value.
	DefaultRefreshSeconds = 3
)
