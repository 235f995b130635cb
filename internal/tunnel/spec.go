package tunnel

import (
	"fmt"
	"os"
	"strings"

	"github.com/kthomann/dbtunnel/internal/model"
	"github.com/kthomann/dbtunnel/internal/util"
)

// ValidateSpec checks a tunnel spec at construction time. Ports must be in
// range, the remote host non-empty, and the key file accessible.
func ValidateSpec(spec model.TunnelSpec) error {
	if err := util.ValidatePort(spec.LocalPort); err != nil {
		return &InvalidSpecError{Reason: fmt.Sprintf("local port: %v", err)}
	}
	if err := util.ValidatePort(spec.RemotePort); err != nil {
		return &InvalidSpecError{Reason: fmt.Sprintf("remote port: %v", err)}
	}
	if strings.TrimSpace(spec.RemoteHost) == "" {
		return &InvalidSpecError{Reason: "remote host is empty"}
	}
	if strings.TrimSpace(spec.BastionHost) == "" {
		return &InvalidSpecError{Reason: "bastion host is empty"}
	}
	if strings.TrimSpace(spec.KeyPath) == "" {
		return &InvalidSpecError{Reason: "key path is empty"}
	}
	if _, err := os.Stat(spec.KeyPath); err != nil {
		return &InvalidSpecError{Reason: fmt.Sprintf("key not accessible at %s", spec.KeyPath)}
	}
	return nil
}
