package tunnel

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHandleStartTwice(t *testing.T) {
	h := NewHandle(testSpec(t, freePort(t)))
	launcher := fakeLauncher{serve: true, greeting: "J"}

	if err := h.Start(context.Background(), launcher); err != nil {
		t.Fatalf("first start: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })

	err := h.Start(context.Background(), launcher)
	var invalid *InvalidSpecError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidSpecError on double start, got %v", err)
	}
}

func TestHandleCloseUnstarted(t *testing.T) {
	h := NewHandle(testSpec(t, freePort(t)))
	if err := h.Close(); err != nil {
		t.Fatalf("close unstarted: %v", err)
	}
	if h.IsAlive() {
		t.Fatal("closed handle reports alive")
	}
}

func TestHandleWaitReadyTinyTimeout(t *testing.T) {
	h := NewHandle(testSpec(t, freePort(t)))
	// No listener ever appears: the process runs but forwards nothing.
	if err := h.Start(context.Background(), fakeLauncher{serve: false}); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })

	start := time.Now()
	err := h.WaitReady(time.Millisecond)
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("1ms wait took %s", elapsed)
	}
}

func TestHandleStartAfterCloseFails(t *testing.T) {
	h := NewHandle(testSpec(t, freePort(t)))
	_ = h.Close()

	err := h.Start(context.Background(), fakeLauncher{serve: true})
	var invalid *InvalidSpecError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidSpecError after close, got %v", err)
	}
}
