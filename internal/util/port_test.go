package util

import "testing"

func TestValidatePort(t *testing.T) {
	for _, port := range []int{1, 5433, 65535} {
		if err := ValidatePort(port); err != nil {
			t.Fatalf("port %d should be valid: %v", port, err)
		}
	}
	for _, port := range []int{0, -1, 65536, 100000} {
		if err := ValidatePort(port); err == nil {
			t.Fatalf("port %d should be invalid", port)
		}
	}
}

func TestLoopbackAddr(t *testing.T) {
	if got := LoopbackAddr(5433); got != "127.0.0.1:5433" {
		t.Fatalf("unexpected addr: %s", got)
	}
}

func TestEmptyDash(t *testing.T) {
	if got := EmptyDash(""); got != "-" {
		t.Fatalf("empty: %q", got)
	}
	if got := EmptyDash("  "); got != "-" {
		t.Fatalf("whitespace: %q", got)
	}
	if got := EmptyDash("deploy"); got != "deploy" {
		t.Fatalf("non-empty altered: %q", got)
	}
}
