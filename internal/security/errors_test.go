package security

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestRedactMessageDropsPemDirectories(t *testing.T) {
	msg := "key not accessible at /home/dev/secrets/bastion.pem"
	got := RedactMessage(msg)
	if strings.Contains(got, "/home/dev/secrets/") {
		t.Fatalf("directory leaked: %q", got)
	}
	if !strings.Contains(got, "bastion.pem") {
		t.Fatalf("file name lost: %q", got)
	}
}

func TestRedactMessageCollapsesHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory in test environment")
	}
	got := RedactMessage("cannot read " + home + "/notes.txt")
	if strings.Contains(got, home) {
		t.Fatalf("home directory leaked: %q", got)
	}
	if !strings.Contains(got, "~") {
		t.Fatalf("expected ~ substitution: %q", got)
	}
}

func TestUserMessageClassified(t *testing.T) {
	err := NewClassifiedError("cannot establish tunnel", "dial tcp 10.0.0.5:22: i/o timeout")

	if got := UserMessage(err, true); got != "cannot establish tunnel" {
		t.Fatalf("user message: %q", got)
	}
	if got := DebugMessage(err); !strings.Contains(got, "10.0.0.5") {
		t.Fatalf("debug detail lost: %q", got)
	}
}

func TestUserMessageWrappedClassified(t *testing.T) {
	inner := NewClassifiedError("auth failed", "publickey rejected for deploy")
	wrapped := fmt.Errorf("open tunnel: %w", inner)

	if got := UserMessage(wrapped, false); got != "auth failed" {
		t.Fatalf("wrapped classified error not found: %q", got)
	}
}

func TestUserMessagePlainError(t *testing.T) {
	err := errors.New("tunnel on port 5433 not ready after 10s")
	if got := UserMessage(err, true); got != err.Error() {
		t.Fatalf("plain error altered: %q", got)
	}
	if got := UserMessage(nil, true); got != "" {
		t.Fatalf("nil error produced %q", got)
	}
}
