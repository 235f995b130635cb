package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kthomann/dbtunnel/internal/model"
	"github.com/kthomann/dbtunnel/internal/tunnel"
)

// Field indices for the profile form.
const (
	fieldName = iota
	fieldLocalPort
	fieldRemoteHost
	fieldRemotePort
	fieldBastionHost
	fieldBastionUser
	fieldKeyPath
	fieldCount
)

// formResult is returned when the user submits a valid profile.
type formResult struct {
	name string
	spec model.TunnelSpec
}

// profileForm holds all state for the "new profile" screen.
type profileForm struct {
	fields   []textinput.Model
	focusIdx int
	errMsg   string
}

func newProfileForm() *profileForm {
	placeholders := []string{
		"prod-orders (required)",
		"5433 (required)",
		"db.internal.example.com (required)",
		"3306 (default)",
		"bastion.example.com (required)",
		"deploy (optional)",
		"~/.ssh/bastion.pem (required)",
	}
	limits := []int{64, 6, 256, 6, 256, 64, 256}

	f := &profileForm{fields: make([]textinput.Model, fieldCount)}
	for i := range f.fields {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.CharLimit = limits[i]
		ti.Width = 40
		f.fields[i] = ti
	}
	f.fields[0].Focus()
	return f
}

func (f *profileForm) focusCmd() tea.Cmd {
	return f.fields[f.focusIdx].Cursor.BlinkCmd()
}

// update processes a key message and returns a formResult on submit.
func (f *profileForm) update(msg tea.KeyMsg) (*formResult, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab":
		f.fields[f.focusIdx].Blur()
		if msg.String() == "tab" {
			f.focusIdx = (f.focusIdx + 1) % fieldCount
		} else {
			f.focusIdx = (f.focusIdx - 1 + fieldCount) % fieldCount
		}
		f.fields[f.focusIdx].Focus()
		return nil, f.focusCmd()
	case "enter":
		name, spec, err := f.buildProfile()
		if err != nil {
			f.errMsg = err.Error()
			return nil, nil
		}
		return &formResult{name: name, spec: spec}, nil
	default:
		var cmd tea.Cmd
		f.fields[f.focusIdx], cmd = f.fields[f.focusIdx].Update(msg)
		f.errMsg = ""
		return nil, cmd
	}
}

func (f *profileForm) buildProfile() (string, model.TunnelSpec, error) {
	name := strings.TrimSpace(f.fields[fieldName].Value())
	if name == "" {
		return "", model.TunnelSpec{}, fmt.Errorf("profile name is required")
	}

	localPort, err := parsePortField(f.fields[fieldLocalPort].Value(), 0)
	if err != nil {
		return "", model.TunnelSpec{}, fmt.Errorf("local port: %w", err)
	}
	remotePort, err := parsePortField(f.fields[fieldRemotePort].Value(), 3306)
	if err != nil {
		return "", model.TunnelSpec{}, fmt.Errorf("remote port: %w", err)
	}

	spec := model.TunnelSpec{
		LocalPort:   localPort,
		RemoteHost:  strings.TrimSpace(f.fields[fieldRemoteHost].Value()),
		RemotePort:  remotePort,
		BastionHost: strings.TrimSpace(f.fields[fieldBastionHost].Value()),
		BastionUser: strings.TrimSpace(f.fields[fieldBastionUser].Value()),
		KeyPath:     strings.TrimSpace(f.fields[fieldKeyPath].Value()),
	}
	if err := tunnel.ValidateSpec(spec); err != nil {
		return "", model.TunnelSpec{}, err
	}
	return name, spec, nil
}

func parsePortField(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if fallback > 0 {
			return fallback, nil
		}
		return 0, fmt.Errorf("value is required")
	}
	p, err := strconv.Atoi(raw)
	if err != nil || p < 1 || p > 65535 {
		return 0, fmt.Errorf("port must be 1-65535")
	}
	return p, nil
}

// view renders the form panel.
func (f *profileForm) view(renderPanel func(string, string, int, lipgloss.Color) string, width int) string {
	labels := []string{
		"Name:", "Local port:", "Database host:", "Database port:",
		"Bastion host:", "Bastion user:", "Key path:",
	}

	var b strings.Builder
	for i, label := range labels {
		cursor := "  "
		if i == f.focusIdx {
			cursor = "> "
		}
		b.WriteString(fmt.Sprintf("%s%-15s %s\n", cursor, label, f.fields[i].View()))
	}

	if f.errMsg != "" {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		b.WriteString("\n" + errStyle.Render("Error: "+f.errMsg) + "\n")
	}

	b.WriteString("\nTab/Shift-Tab navigate | Enter save | Esc cancel")
	return renderPanel("New Profile", b.String(), width, lipgloss.Color("214"))
}
