package cli

import (
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/kthomann/dbtunnel/internal/events"
)

// captureStdout redirects os.Stdout around fn so command output written
// with fmt.Printf can be asserted on.
func captureStdout(fn func() error) (string, error) {
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}
	os.Stdout = w
	runErr := fn()
	_ = w.Close()
	os.Stdout = orig
	b, readErr := io.ReadAll(r)
	if readErr != nil {
		return "", readErr
	}
	return string(b), runErr
}

func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func writeTestKey(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bastion.pem")
	if err := os.WriteFile(path, []byte("key material"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStatusAbsentTunnel(t *testing.T) {
	isolateConfig(t)

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"status", "5433"})
	out, err := captureStdout(cmd.Execute)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "port 5433: absent") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestStatusJSONOutput(t *testing.T) {
	isolateConfig(t)

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"status", "5433", "--json"})
	out, err := captureStdout(cmd.Execute)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("json parse: %v; output=%s", err, out)
	}
	if got["state"] != "absent" {
		t.Fatalf("unexpected state: %v", got["state"])
	}
	if got["local_port"] != float64(5433) {
		t.Fatalf("unexpected port: %v", got["local_port"])
	}
}

func TestCloseAbsentTunnelSucceeds(t *testing.T) {
	isolateConfig(t)

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"close", "5433"})
	out, err := captureStdout(cmd.Execute)
	if err != nil {
		t.Fatalf("close absent tunnel should succeed: %v", err)
	}
	if !strings.Contains(out, "closed tunnel on port 5433") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestCloseWithoutArgsOrAllFails(t *testing.T) {
	isolateConfig(t)

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"close"})
	_, err := captureStdout(cmd.Execute)
	if err == nil {
		t.Fatal("expected error without port or --all")
	}
}

func TestListEmpty(t *testing.T) {
	isolateConfig(t)

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"list"})
	out, err := captureStdout(cmd.Execute)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "(no active tunnels)") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestProfilesAddListRemove(t *testing.T) {
	isolateConfig(t)
	key := writeTestKey(t)

	add := NewRootCommand()
	add.SetArgs([]string{
		"profiles", "add", "prod-orders",
		"--local-port", "5433",
		"--remote-host", "db.internal.example.com",
		"--remote-port", "3306",
		"--bastion", "bastion.example.com",
		"--user", "deploy",
		"--key", key,
	})
	if _, err := captureStdout(add.Execute); err != nil {
		t.Fatalf("add: %v", err)
	}

	list := NewRootCommand()
	list.SetArgs([]string{"profiles", "list", "--json"})
	out, err := captureStdout(list.Execute)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var profiles []map[string]any
	if err := json.Unmarshal([]byte(out), &profiles); err != nil {
		t.Fatalf("json parse: %v; output=%s", err, out)
	}
	if len(profiles) != 1 || profiles[0]["name"] != "prod-orders" {
		t.Fatalf("unexpected profiles: %v", profiles)
	}

	remove := NewRootCommand()
	remove.SetArgs([]string{"profiles", "remove", "prod-orders"})
	if _, err := captureStdout(remove.Execute); err != nil {
		t.Fatalf("remove: %v", err)
	}

	removeAgain := NewRootCommand()
	removeAgain.SetArgs([]string{"profiles", "remove", "prod-orders"})
	if _, err := captureStdout(removeAgain.Execute); err == nil {
		t.Fatal("expected error removing absent profile")
	}
}

func TestProfilesAddRejectsInvalidSpec(t *testing.T) {
	isolateConfig(t)

	cmd := NewRootCommand()
	cmd.SetArgs([]string{
		"profiles", "add", "broken",
		"--local-port", "5433",
		"--bastion", "bastion.example.com",
		"--key", writeTestKey(t),
	})
	if _, err := captureStdout(cmd.Execute); err == nil {
		t.Fatal("expected validation error without remote host")
	}
}

func TestOpenByMissingProfile(t *testing.T) {
	isolateConfig(t)

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"open", "no-such-profile"})
	_, err := captureStdout(cmd.Execute)
	if err == nil || !strings.Contains(err.Error(), "profile not found") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEventsOutput(t *testing.T) {
	isolateConfig(t)

	store := events.NewStore()
	if err := store.Append(events.Event{LocalPort: 5433, EventType: events.TypeOpened, PID: 42}); err != nil {
		t.Fatal(err)
	}

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"events", "--port", "5433"})
	out, err := captureStdout(cmd.Execute)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "port=5433") || !strings.Contains(out, "opened") {
		t.Fatalf("unexpected output: %s", out)
	}

	empty := NewRootCommand()
	empty.SetArgs([]string{"events", "--port", "9999"})
	out, err = captureStdout(empty.Execute)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "(no events)") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestResolvePort(t *testing.T) {
	isolateConfig(t)

	port, err := resolvePort("5433")
	if err != nil || port != 5433 {
		t.Fatalf("numeric: port=%d err=%v", port, err)
	}

	if _, err := resolvePort("70000"); err == nil {
		t.Fatal("expected range error")
	}

	if _, err := resolvePort("unknown-profile"); err == nil {
		t.Fatal("expected lookup error")
	}
}

func TestTestCommandUnforwardedPort(t *testing.T) {
	isolateConfig(t)

	// A kernel-assigned port, released before the probe, so nothing is
	// listening on it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"test", strconv.Itoa(port)})
	out, err := captureStdout(cmd.Execute)
	if err == nil {
		t.Fatal("expected failure for unforwarded port")
	}
	if !strings.Contains(out, "[FAIL]") {
		t.Fatalf("unexpected output: %s", out)
	}
}
