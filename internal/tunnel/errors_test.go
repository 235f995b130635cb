package tunnel

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"invalid spec", &InvalidSpecError{Reason: "remote host is empty"}, ExitInvalidSpec},
		{"port in use", &PortInUseError{Port: 5433}, ExitPortInUse},
		{"bind", &BindError{Port: 5433, Err: errors.New("address already in use")}, ExitBind},
		{"connect", &ConnectError{Target: "deploy@bastion", Err: errors.New("permission denied")}, ExitConnect},
		{"timeout", &TimeoutError{Port: 5433, Timeout: 10 * time.Second}, ExitTimeout},
		{"process died", &ProcessDiedError{Port: 5433}, ExitProcessDied},
		{"plain error", errors.New("something else"), ExitFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCode(tc.err); got != tc.want {
				t.Fatalf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestExitCodeSeesWrappedErrors(t *testing.T) {
	err := fmt.Errorf("open tunnel: %w", &BindError{Port: 5433, Err: errors.New("in use")})
	if got := ExitCode(err); got != ExitBind {
		t.Fatalf("wrapped BindError mapped to %d, want %d", got, ExitBind)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("address already in use")
	var bind error = &BindError{Port: 5433, Err: cause}
	if !errors.Is(bind, cause) {
		t.Fatal("BindError does not unwrap to its cause")
	}

	var connect error = &ConnectError{Target: "bastion", Err: cause}
	if !errors.Is(connect, cause) {
		t.Fatal("ConnectError does not unwrap to its cause")
	}
}

func TestProcessDiedErrorMessage(t *testing.T) {
	bare := &ProcessDiedError{Port: 5433}
	detailed := &ProcessDiedError{Port: 5433, Detail: "exited before ready"}
	if bare.Error() == detailed.Error() {
		t.Fatal("detail not reflected in message")
	}
}
