// Package doctor runs local preflight diagnostics for tunnel operations.
package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kthomann/dbtunnel/internal/appconfig"
	"github.com/kthomann/dbtunnel/internal/profile"
	"github.com/kthomann/dbtunnel/internal/sshexec"
	"github.com/kthomann/dbtunnel/internal/util"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

func (r Report) HasHigh() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// Run executes local diagnostics: ssh availability, key posture per
// profile, local port collisions between profiles, and permissions on
// the state files.
func Run() (Report, error) {
	var issues []Issue

	if err := sshexec.EnsureSSHBinary(); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "ssh-binary",
			Target:         "PATH",
			Message:        err.Error(),
			Recommendation: "install OpenSSH client and ensure `ssh` is on PATH, or switch tunnel.driver to native",
		})
	}

	profiles, err := profile.LoadAll()
	if err != nil {
		return Report{}, err
	}
	for _, p := range profiles {
		issues = append(issues, keyIssues(p)...)
		if err := util.ValidatePort(p.Spec.LocalPort); err != nil {
			issues = append(issues, Issue{
				Severity:       SeverityHigh,
				Check:          "profile-port",
				Target:         p.Name,
				Message:        err.Error(),
				Recommendation: "fix local_port in profiles.yaml",
			})
		}
	}
	issues = append(issues, duplicatePortIssues(profiles)...)
	issues = append(issues, stateFileIssues()...)

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Severity != issues[j].Severity {
			return severityRank(issues[i].Severity) > severityRank(issues[j].Severity)
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		return issues[i].Target < issues[j].Target
	})
	return Report{Issues: issues}, nil
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

func keyIssues(p profile.Definition) []Issue {
	var issues []Issue
	fi, err := os.Stat(p.Spec.KeyPath)
	if err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "key-file",
			Target:         p.Name,
			Message:        fmt.Sprintf("key not accessible: %v", err),
			Recommendation: "point key_path at a readable private key",
		})
		return issues
	}
	// ssh itself rejects keys readable by group/other.
	if fi.Mode().Perm()&0o077 != 0 {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "key-permissions",
			Target:         p.Name,
			Message:        fmt.Sprintf("key %s has mode %o, readable beyond owner", p.Spec.KeyPath, fi.Mode().Perm()),
			Recommendation: "chmod 600 the private key",
		})
	}
	return issues
}

// stateFileIssues flags config and runtime files readable beyond the
// owner. runtime.json carries PIDs and bastion targets.
func stateFileIssues() []Issue {
	var issues []Issue
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return issues
	}
	issues = append(issues, permIssue(dir, 0o700, "directory")...)
	for _, name := range []string{"config.yaml", "runtime.json", "profiles.yaml"} {
		issues = append(issues, permIssue(filepath.Join(dir, name), 0o600, "file")...)
	}
	return issues
}

func permIssue(path string, max os.FileMode, kind string) []Issue {
	st, err := os.Stat(path)
	if err != nil {
		return nil
	}
	mode := st.Mode().Perm()
	if mode <= max {
		return nil
	}
	return []Issue{{
		Severity:       SeverityMedium,
		Check:          "state-permissions",
		Target:         path,
		Message:        fmt.Sprintf("%s permissions are too broad (%#o)", kind, mode),
		Recommendation: fmt.Sprintf("restrict permissions to %#o or tighter", max),
	}}
}

func duplicatePortIssues(profiles []profile.Definition) []Issue {
	var issues []Issue
	byPort := map[int][]string{}
	for _, p := range profiles {
		byPort[p.Spec.LocalPort] = append(byPort[p.Spec.LocalPort], p.Name)
	}
	for port, names := range byPort {
		if len(names) < 2 {
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "duplicate-local-port",
			Target:         fmt.Sprintf("port %d", port),
			Message:        fmt.Sprintf("profiles %v share local port %d; only one can be open at a time", names, port),
			Recommendation: "give each profile a distinct local_port",
		})
	}
	return issues
}
