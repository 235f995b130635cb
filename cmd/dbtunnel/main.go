// Package main is the entry point for the dbtunnel binary.
//
// dbtunnel manages SSH forward tunnels from a loopback port to a database
// reachable only through a bastion host. Invoked without arguments it
// launches the interactive dashboard; with subcommands (open, close, status,
// test, list, ...) it runs the corresponding operation and exits with a code
// mapped from the error taxonomy, so scripts can distinguish an occupied
// port from a failed bastion connection.
package main

import (
	"fmt"
	"os"

	"github.com/kthomann/dbtunnel/internal/appconfig"
	"github.com/kthomann/dbtunnel/internal/cli"
	"github.com/kthomann/dbtunnel/internal/security"
	"github.com/kthomann/dbtunnel/internal/tunnel"
)

func main() {
	cmd := cli.NewRootCommand()

	if err := cmd.Execute(); err != nil {
		redact := true
		if cfg, cfgErr := appconfig.Load(); cfgErr == nil {
			redact = cfg.Security.RedactErrors
		}
		fmt.Fprintln(os.Stderr, security.UserMessage(err, redact))
		os.Exit(tunnel.ExitCode(err))
	}
}
