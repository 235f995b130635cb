package sshexec

import (
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"

	"github.com/kthomann/dbtunnel/internal/model"
)

// ConnectCommand creates an exec.Cmd for an interactive ssh session on the
// bastion host itself. The caller wires the terminal (see RunInteractive).
func ConnectCommand(spec model.TunnelSpec) *exec.Cmd {
	return exec.Command("ssh", "-i", spec.KeyPath, spec.BastionTarget())
}

// RunInteractive opens an interactive ssh session to the bastion inside a
// pseudo-terminal, connecting the user's stdin/stdout to it. Blocks until
// the session ends; cancelling the context kills the ssh process.
func RunInteractive(ctx context.Context, spec model.TunnelSpec) error {
	cmd := ConnectCommand(spec)

	f, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	defer f.Close()

	// Keystrokes flow into the PTY master; the goroutine ends when the
	// PTY closes after the ssh process exits.
	go func() {
		_, _ = io.Copy(f, os.Stdin)
	}()

	_, _ = io.Copy(os.Stdout, f)

	if ctx.Err() != nil {
		_ = cmd.Process.Kill()
	}
	return cmd.Wait()
}
