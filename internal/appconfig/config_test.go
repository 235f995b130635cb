package appconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tunnel.Driver != "exec" {
		t.Fatalf("default driver = %q", cfg.Tunnel.Driver)
	}
	if cfg.Tunnel.ReadyTimeoutSeconds != 10 || cfg.Tunnel.ProbeTimeoutMS != 500 {
		t.Fatalf("unexpected default timeouts: %+v", cfg.Tunnel)
	}
	if !cfg.Security.RedactErrors {
		t.Fatal("redaction should default on")
	}

	// First Load materializes config.yaml on disk.
	if _, err := os.Stat(filepath.Join(dir, "dbtunnel", "config.yaml")); err != nil {
		t.Fatalf("config.yaml missing: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := Default()
	cfg.Tunnel.Driver = "native"
	cfg.Tunnel.ReadyTimeoutSeconds = 30
	cfg.UI.RefreshSeconds = 5
	cfg.Security.RedactErrors = false
	if err := Save(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Tunnel.Driver != "native" || got.Tunnel.ReadyTimeoutSeconds != 30 {
		t.Fatalf("tunnel config lost: %+v", got.Tunnel)
	}
	if got.UI.RefreshSeconds != 5 || got.Security.RedactErrors {
		t.Fatalf("config lost: %+v", got)
	}
}

func TestLoadNormalizesInvalidValues(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfgDir := filepath.Join(dir, "dbtunnel")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	raw := []byte("tunnel:\n  driver: telnet\n  ready_timeout_seconds: -3\n  probe_timeout_ms: 0\nui:\n  refresh_seconds: 0\n")
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.Tunnel.Driver != def.Tunnel.Driver {
		t.Fatalf("driver not normalized: %q", cfg.Tunnel.Driver)
	}
	if cfg.Tunnel.ReadyTimeoutSeconds != def.Tunnel.ReadyTimeoutSeconds ||
		cfg.Tunnel.ProbeTimeoutMS != def.Tunnel.ProbeTimeoutMS {
		t.Fatalf("timeouts not normalized: %+v", cfg.Tunnel)
	}
	if cfg.UI.RefreshSeconds != def.UI.RefreshSeconds {
		t.Fatalf("refresh not normalized: %d", cfg.UI.RefreshSeconds)
	}
}

func TestConfigDirHonorsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	d, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if d != "/tmp/xdg-test/dbtunnel" {
		t.Fatalf("unexpected config dir: %s", d)
	}
}
