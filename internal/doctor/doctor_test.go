package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kthomann/dbtunnel/internal/model"
	"github.com/kthomann/dbtunnel/internal/profile"
)

// hasIssue reports whether the report contains an issue for a check,
// optionally narrowed to one target. The environment may add unrelated
// issues (e.g. a missing ssh binary), so tests assert presence of specific
// checks rather than exact counts.
func hasIssue(r Report, check, target string) bool {
	for _, is := range r.Issues {
		if is.Check != check {
			continue
		}
		if target == "" || is.Target == target {
			return true
		}
	}
	return false
}

func saveProfile(t *testing.T, name string, port int, keyPath string) {
	t.Helper()
	err := profile.Save(name, model.TunnelSpec{
		LocalPort:   port,
		RemoteHost:  "db.internal",
		RemotePort:  3306,
		BastionHost: "bastion.example.com",
		KeyPath:     keyPath,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func writeKeyWithMode(t *testing.T, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, []byte("key material"), mode); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunFlagsBroadKeyPermissions(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	saveProfile(t, "loose", 5433, writeKeyWithMode(t, 0o644))

	report, err := Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !hasIssue(report, "key-permissions", "loose") {
		t.Fatalf("expected key-permissions issue, got %+v", report.Issues)
	}
	if !report.HasHigh() {
		t.Fatal("broad key permissions should be high severity")
	}
}

func TestRunAcceptsOwnerOnlyKey(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	saveProfile(t, "tight", 5433, writeKeyWithMode(t, 0o600))

	report, err := Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if hasIssue(report, "key-permissions", "tight") {
		t.Fatalf("unexpected key-permissions issue: %+v", report.Issues)
	}
	if hasIssue(report, "key-file", "tight") {
		t.Fatalf("unexpected key-file issue: %+v", report.Issues)
	}
}

func TestRunFlagsMissingKey(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	saveProfile(t, "nokey", 5433, filepath.Join(t.TempDir(), "absent.pem"))

	report, err := Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !hasIssue(report, "key-file", "nokey") {
		t.Fatalf("expected key-file issue, got %+v", report.Issues)
	}
}

func TestRunFlagsDuplicateLocalPorts(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	key := writeKeyWithMode(t, 0o600)
	saveProfile(t, "a", 5433, key)
	saveProfile(t, "b", 5433, key)
	saveProfile(t, "c", 5500, key)

	report, err := Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !hasIssue(report, "duplicate-local-port", "port 5433") {
		t.Fatalf("expected duplicate-local-port issue, got %+v", report.Issues)
	}
	if hasIssue(report, "duplicate-local-port", "port 5500") {
		t.Fatal("unique port flagged as duplicate")
	}
}

func TestRunFlagsBroadStateFilePermissions(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfgDir := filepath.Join(dir, "dbtunnel")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "runtime.json"), []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !hasIssue(report, "state-permissions", filepath.Join(cfgDir, "runtime.json")) {
		t.Fatalf("expected state-permissions issue, got %+v", report.Issues)
	}
}
