// Package ui implements the interactive dashboard: saved profiles on the
// left, live tunnel table below, with open/close/test bound to single keys.
package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kthomann/dbtunnel/internal/appconfig"
	"github.com/kthomann/dbtunnel/internal/events"
	"github.com/kthomann/dbtunnel/internal/history"
	"github.com/kthomann/dbtunnel/internal/model"
	"github.com/kthomann/dbtunnel/internal/profile"
	"github.com/kthomann/dbtunnel/internal/security"
	"github.com/kthomann/dbtunnel/internal/sshexec"
	"github.com/kthomann/dbtunnel/internal/sshnative"
	"github.com/kthomann/dbtunnel/internal/tunnel"
	"github.com/kthomann/dbtunnel/internal/util"
)

type tickMsg time.Time

type statusMsg string

type dashboard struct {
	profiles []profile.Definition
	filtered []profile.Definition
	sel      int
	filter   string

	filterMode bool
	showHelp   bool
	form       *profileForm

	status  string
	tunnels []model.TunnelInfo
	width   int
	height  int

	cfg appconfig.Config
	mgr *tunnel.Manager
}

func initialModel() dashboard {
	cfg, _ := appconfig.Load()

	var launcher tunnel.Launcher
	if cfg.Tunnel.Driver == string(model.DriverNative) {
		launcher = sshnative.NewLauncher()
	} else {
		launcher = sshexec.NewLauncher()
	}
	mgr := tunnel.NewManager(launcher, tunnel.NewRegistry(), events.NewStore())
	mgr.ReadyTimeout = time.Duration(cfg.Tunnel.ReadyTimeoutSeconds) * time.Second
	mgr.ProbeTimeout = time.Duration(cfg.Tunnel.ProbeTimeoutMS) * time.Millisecond
	_ = mgr.LoadRuntime()

	m := dashboard{cfg: cfg, mgr: mgr}
	m.reload()
	m.status = "Ready. Select a profile, then o to open a tunnel or t to test it."
	return m
}

func (m *dashboard) reload() {
	profiles, err := profile.LoadAll()
	if err != nil {
		m.status = "profiles load error: " + err.Error()
		return
	}
	if lastUsed, err := history.LastUsed(); err == nil {
		profiles = history.SortProfilesRecent(profiles, lastUsed)
	}
	m.profiles = profiles
	m.applyFilter()
	m.tunnels = m.mgr.List()
}

func (m *dashboard) applyFilter() {
	if strings.TrimSpace(m.filter) == "" {
		m.filtered = append([]profile.Definition(nil), m.profiles...)
	} else {
		f := strings.ToLower(strings.TrimSpace(m.filter))
		m.filtered = nil
		for _, p := range m.profiles {
			if strings.Contains(strings.ToLower(p.Name), f) ||
				strings.Contains(strings.ToLower(p.Spec.RemoteHost), f) ||
				strings.Contains(strings.ToLower(p.Spec.BastionHost), f) {
				m.filtered = append(m.filtered, p)
			}
		}
	}
	if m.sel >= len(m.filtered) {
		m.sel = len(m.filtered) - 1
	}
	if m.sel < 0 {
		m.sel = 0
	}
}

func tickCmd(seconds int) tea.Cmd {
	if seconds <= 0 {
		seconds = util.DefaultRefreshSeconds
	}
	return tea.Tick(time.Duration(seconds)*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m dashboard) Init() tea.Cmd {
	return tickCmd(m.cfg.UI.RefreshSeconds)
}

func (m dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.tunnels = m.mgr.List()
		return m, tickCmd(m.cfg.UI.RefreshSeconds)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case statusMsg:
		m.status = string(msg)
		m.tunnels = m.mgr.List()
		return m, nil
	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m dashboard) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.form != nil {
		if msg.String() == "esc" {
			m.form = nil
			m.status = "Profile form cancelled"
			return m, nil
		}
		done, cmd := m.form.update(msg)
		if done != nil {
			if err := profile.Save(done.name, done.spec); err != nil {
				m.form.errMsg = err.Error()
				return m, nil
			}
			m.form = nil
			m.reload()
			m.status = "Saved profile " + done.name
		}
		return m, cmd
	}

	if m.filterMode {
		switch msg.String() {
		case "enter", "esc":
			m.filterMode = false
			m.applyFilter()
			return m, nil
		case "backspace":
			if len(m.filter) > 0 {
				m.filter = m.filter[:len(m.filter)-1]
			}
			m.applyFilter()
			return m, nil
		default:
			if len(msg.String()) == 1 {
				m.filter += msg.String()
				m.applyFilter()
			}
			return m, nil
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		// Exec-driver tunnels are meant to outlive the dashboard;
		// native ones cannot, so close them before exiting.
		if m.cfg.Tunnel.Driver == string(model.DriverNative) {
			m.mgr.CloseAll()
		}
		return m, tea.Quit
	case "j", "down":
		if m.sel < len(m.filtered)-1 {
			m.sel++
		}
	case "k", "up":
		if m.sel > 0 {
			m.sel--
		}
	case "/":
		m.filterMode = true
		m.status = "Filter mode: type and press Enter"
	case "?":
		m.showHelp = !m.showHelp
	case "a":
		m.form = newProfileForm()
		return m, m.form.focusCmd()
	case "r":
		m.reload()
		m.status = "Refreshed profiles and tunnel status"
	case "o", "enter":
		if len(m.filtered) == 0 {
			break
		}
		p := m.filtered[m.sel]
		return m, m.toggleCmd(p)
	case "t":
		if len(m.filtered) == 0 {
			break
		}
		p := m.filtered[m.sel]
		return m, m.testCmd(p)
	case "s":
		if len(m.filtered) == 0 {
			break
		}
		p := m.filtered[m.sel]
		cmd := sshexec.ConnectCommand(p.Spec)
		return m, tea.ExecProcess(cmd, func(err error) tea.Msg {
			if err != nil {
				return statusMsg("ssh exited: " + err.Error())
			}
			return statusMsg("ssh session closed")
		})
	}
	return m, nil
}

// toggleCmd opens the profile's tunnel, or closes it when already open.
// Runs as a tea.Cmd because Open blocks for up to the ready timeout.
func (m dashboard) toggleCmd(p profile.Definition) tea.Cmd {
	mgr := m.mgr
	redact := m.cfg.Security.RedactErrors
	return func() tea.Msg {
		if state, _ := mgr.Status(p.Spec.LocalPort); state == model.StateOpen {
			_ = mgr.Close(p.Spec.LocalPort)
			return statusMsg(fmt.Sprintf("Closed tunnel on port %d", p.Spec.LocalPort))
		}
		inf, err := mgr.Open(context.Background(), p.Spec)
		if err != nil {
			return statusMsg("Open failed: " + security.UserMessage(err, redact))
		}
		_ = history.Touch(p.Name)
		return statusMsg(fmt.Sprintf("Opened %s -> %s (pid=%d)", inf.Spec.LocalAddr(), inf.Spec.RemoteAddr(), inf.PID))
	}
}

func (m dashboard) testCmd(p profile.Definition) tea.Cmd {
	mgr := m.mgr
	return func() tea.Msg {
		report, err := mgr.Test(p.Spec.LocalPort)
		if err != nil {
			return statusMsg("Test: " + err.Error())
		}
		if report.OK() {
			return statusMsg(fmt.Sprintf("Test passed: port %d reachable (%dms)", p.Spec.LocalPort, report.LatencyMS))
		}
		return statusMsg("Test failed: " + report.Detail)
	}
}

func (m dashboard) View() string {
	head := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("dbtunnel Dashboard")
	subhead := fmt.Sprintf("profiles=%d shown=%d tunnels=%d driver=%s refresh=%ds",
		len(m.profiles), len(m.filtered), len(m.tunnels), m.cfg.Tunnel.Driver, m.cfg.UI.RefreshSeconds)

	if m.form != nil {
		return lipgloss.JoinVertical(lipgloss.Left, head, subhead,
			m.form.view(m.renderPanel, m.effectiveWidth()))
	}

	left := strings.Builder{}
	left.WriteString("j/k to navigate; [T] means active tunnel.\n")
	for i, p := range m.filtered {
		cursor := " "
		if i == m.sel {
			cursor = ">"
		}
		mark := " "
		if m.portHasTunnel(p.Spec.LocalPort) {
			mark = "T"
		}
		left.WriteString(fmt.Sprintf("%s[%s] %-18s :%-6d %s\n", cursor, mark, p.Name, p.Spec.LocalPort, p.Spec.RemoteHost))
	}
	if len(m.filtered) == 0 {
		left.WriteString("  (no profiles matched; press a to add one)\n")
	}

	detail := strings.Builder{}
	if len(m.filtered) > 0 {
		p := m.filtered[m.sel]
		detail.WriteString(fmt.Sprintf("Profile: %s\nLocal: %s\nDatabase: %s\nBastion: %s\nUser: %s\nKey: %s\n",
			p.Name, p.Spec.LocalAddr(), p.Spec.RemoteAddr(), p.Spec.BastionHost,
			util.EmptyDash(p.Spec.BastionUser), p.Spec.KeyPath))
	} else {
		detail.WriteString("Pick a profile to view tunnel options.\n")
	}

	tbl := strings.Builder{}
	tbl.WriteString(fmt.Sprintf("%-8s %-28s %-24s %-10s %-8s %-10s\n", "LOCAL", "REMOTE", "BASTION", "STATE", "PID", "UPTIME(s)"))
	tunnels := append([]model.TunnelInfo(nil), m.tunnels...)
	sort.Slice(tunnels, func(i, j int) bool { return tunnels[i].Spec.LocalPort < tunnels[j].Spec.LocalPort })
	for _, inf := range tunnels {
		tbl.WriteString(fmt.Sprintf("%-8d %-28s %-24s %-10s %-8d %-10d\n",
			inf.Spec.LocalPort, inf.Spec.RemoteAddr(), inf.Spec.BastionHost, inf.State, inf.PID, inf.UptimeSec))
	}
	if len(tunnels) == 0 {
		tbl.WriteString("(none)\n")
	}

	filterLine := fmt.Sprintf("Filter: %s", m.filter)
	if m.filterMode {
		filterLine += " (typing...)"
	}
	quickHelp := "Keys: o open/close | t test | s bastion shell | a add profile | / filter | r refresh | ? help | q quit"

	main := m.renderMainPanels(left.String(), detail.String())
	tunnelPanel := m.renderPanel("Active Tunnels", tbl.String(), m.effectiveWidth(), lipgloss.Color("63"))
	status := m.renderPanel("Status", m.status, m.effectiveWidth(), lipgloss.Color("205"))
	help := ""
	if m.showHelp {
		help = m.renderPanel("Help", m.helpBlock(), m.effectiveWidth(), lipgloss.Color("244"))
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		head,
		subhead,
		filterLine,
		quickHelp,
		main,
		tunnelPanel,
		help,
		status,
	)
}

// Run starts the dashboard program.
func Run() error {
	p := tea.NewProgram(initialModel(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m dashboard) portHasTunnel(port int) bool {
	for _, inf := range m.tunnels {
		if inf.Spec.LocalPort == port && inf.State == model.StateOpen {
			return true
		}
	}
	return false
}

func (m dashboard) renderMainPanels(profilesPanel, detailsPanel string) string {
	width := m.effectiveWidth()
	if width < 96 {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			m.renderPanel("Profiles", profilesPanel, width, lipgloss.Color("39")),
			m.renderPanel("Details", detailsPanel, width, lipgloss.Color("69")),
		)
	}
	leftWidth := width / 2
	rightWidth := width - leftWidth
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderPanel("Profiles", profilesPanel, leftWidth, lipgloss.Color("39")),
		m.renderPanel("Details", detailsPanel, rightWidth, lipgloss.Color("69")),
	)
}

func (m dashboard) helpBlock() string {
	return strings.Join([]string{
		"  Navigation: j/k or arrow keys move selection.",
		"  Filtering: press /, type profile/host text, then Enter.",
		"  Tunnel: o (or Enter) toggles the selected profile's tunnel.",
		"  Test: t probes connectivity through the tunnel.",
		"  Shell: s opens an interactive ssh session on the bastion.",
		"  Profiles: a opens the new-profile form.",
		"  Quit: q exits; native-driver tunnels are closed, exec ones keep running.",
	}, "\n")
}

func (m dashboard) effectiveWidth() int {
	if m.width <= 0 {
		return 100
	}
	return m.width
}

func (m dashboard) renderPanel(title, body string, width int, accent lipgloss.Color) string {
	if width < 24 {
		width = 24
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(title)
	content := strings.TrimSuffix(body, "\n")
	panel := strings.TrimSpace(header + "\n" + content)
	return lipgloss.NewStyle().
		Width(width).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Render(panel)
}
