// Package cli provides the command-line interface for dbtunnel.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kthomann/dbtunnel/internal/appconfig"
	"github.com/kthomann/dbtunnel/internal/doctor"
	"github.com/kthomann/dbtunnel/internal/events"
	"github.com/kthomann/dbtunnel/internal/history"
	"github.com/kthomann/dbtunnel/internal/model"
	"github.com/kthomann/dbtunnel/internal/profile"
	"github.com/kthomann/dbtunnel/internal/sshexec"
	"github.com/kthomann/dbtunnel/internal/sshnative"
	"github.com/kthomann/dbtunnel/internal/tunnel"
	"github.com/kthomann/dbtunnel/internal/ui"
	"github.com/kthomann/dbtunnel/internal/util"
)

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "dbtunnel",
		Short:         "SSH tunnel manager for databases behind a bastion host",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ui.Run()
		},
	}

	root.AddCommand(
		newOpenCmd(),
		newCloseCmd(),
		newStatusCmd(),
		newTestCmd(),
		newListCmd(),
		newProfilesCmd(),
		newEventsCmd(),
		newDoctorCmd(),
		newSSHCmd(),
	)
	return root
}

// newManager assembles a manager from on-disk config: driver selection,
// timeouts, event journal, and the runtime state left by earlier
// invocations.
func newManager() (*tunnel.Manager, appconfig.Config, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return nil, appconfig.Config{}, err
	}

	var launcher tunnel.Launcher
	if cfg.Tunnel.Driver == string(model.DriverNative) {
		launcher = sshnative.NewLauncher()
	} else {
		launcher = sshexec.NewLauncher()
	}

	mgr := tunnel.NewManager(launcher, tunnel.NewRegistry(), events.NewStore())
	mgr.ReadyTimeout = time.Duration(cfg.Tunnel.ReadyTimeoutSeconds) * time.Second
	mgr.ProbeTimeout = time.Duration(cfg.Tunnel.ProbeTimeoutMS) * time.Millisecond
	if err := mgr.LoadRuntime(); err != nil {
		slog.Warn("failed to load tunnel runtime", "error", err)
	}
	return mgr, cfg, nil
}

// resolveSpec builds a tunnel spec from a profile name argument or from
// explicit flags.
func resolveSpec(args []string, flags *specFlags) (model.TunnelSpec, string, error) {
	if len(args) == 1 {
		p, err := profile.Get(args[0])
		if err != nil {
			return model.TunnelSpec{}, "", err
		}
		return p.Spec, p.Name, nil
	}
	spec := model.TunnelSpec{
		LocalPort:   flags.localPort,
		RemoteHost:  flags.remoteHost,
		RemotePort:  flags.remotePort,
		BastionHost: flags.bastion,
		BastionUser: flags.user,
		KeyPath:     flags.key,
	}
	return spec, "", nil
}

// resolvePort interprets an argument as a local port number or a profile name.
func resolvePort(arg string) (int, error) {
	if port, err := strconv.Atoi(arg); err == nil {
		if err := util.ValidatePort(port); err != nil {
			return 0, err
		}
		return port, nil
	}
	p, err := profile.Get(arg)
	if err != nil {
		return 0, err
	}
	return p.Spec.LocalPort, nil
}

type specFlags struct {
	localPort  int
	remoteHost string
	remotePort int
	bastion    string
	user       string
	key        string
}

func (f *specFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.localPort, "local-port", 0, "loopback port clients connect to")
	cmd.Flags().StringVar(&f.remoteHost, "remote-host", "", "database endpoint host (private network)")
	cmd.Flags().IntVar(&f.remotePort, "remote-port", 3306, "database endpoint port")
	cmd.Flags().StringVar(&f.bastion, "bastion", "", "bastion host public address")
	cmd.Flags().StringVar(&f.user, "user", "", "bastion OS user")
	cmd.Flags().StringVar(&f.key, "key", "", "path to private key (.pem)")
}

func newOpenCmd() *cobra.Command {
	var flags specFlags
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "open [profile]",
		Short: "Open a tunnel to a database behind the bastion",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, cfg, err := newManager()
			if err != nil {
				return err
			}
			spec, name, err := resolveSpec(args, &flags)
			if err != nil {
				return err
			}
			if cfg.Tunnel.Driver == string(model.DriverExec) {
				if err := sshexec.EnsureSSHBinary(); err != nil {
					return err
				}
				slog.Debug("launching tunnel", "command",
					"ssh "+strings.Join(sshexec.BuildTunnelArgs(spec), " "))
			}

			inf, err := mgr.Open(context.Background(), spec)
			if err != nil {
				return err
			}
			if name != "" {
				if err := history.Touch(name); err != nil {
					slog.Warn("failed to record profile history", "error", err)
				}
			}
			if jsonOut {
				return printJSON(inf)
			}
			fmt.Printf("opened %s -> %s via %s pid=%d\n",
				inf.Spec.LocalAddr(), inf.Spec.RemoteAddr(), inf.Spec.BastionHost, inf.PID)
			if inf.Driver == model.DriverNative {
				fmt.Println("note: native-driver tunnels close when this process exits")
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newCloseCmd() *cobra.Command {
	var all bool
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "close [local-port|profile]",
		Short: "Close a tunnel (idempotent; absent tunnels are a no-op)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := newManager()
			if err != nil {
				return err
			}
			if all {
				mgr.CloseAll()
				if jsonOut {
					return printJSON(map[string]string{"result": "closed all"})
				}
				fmt.Println("closed all tunnels")
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("specify a local port, a profile name, or --all")
			}
			port, err := resolvePort(args[0])
			if err != nil {
				return err
			}
			if err := mgr.Close(port); err != nil {
				return err
			}
			if jsonOut {
				return printJSON(map[string]any{"local_port": port, "state": model.StateClosed})
			}
			fmt.Printf("closed tunnel on port %d\n", port)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "close every managed tunnel")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status <local-port|profile>",
		Short: "Report tunnel state, re-checking process liveness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := newManager()
			if err != nil {
				return err
			}
			port, err := resolvePort(args[0])
			if err != nil {
				return err
			}
			state, stErr := mgr.Status(port)
			if jsonOut {
				out := map[string]any{"local_port": port, "state": state}
				if stErr != nil {
					out["error"] = stErr.Error()
				}
				if err := printJSON(out); err != nil {
					return err
				}
			} else {
				fmt.Printf("port %d: %s\n", port, state)
			}
			return stErr
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newTestCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "test <local-port|profile>",
		Short: "Probe connectivity through a tunnel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := newManager()
			if err != nil {
				return err
			}
			port, err := resolvePort(args[0])
			if err != nil {
				return err
			}
			report, tErr := mgr.Test(port)
			if jsonOut {
				if err := printJSON(report); err != nil {
					return err
				}
			} else if report.OK() {
				fmt.Printf("[PASS] port %d forwarded, database reachable (%dms)\n", port, report.LatencyMS)
			} else {
				fmt.Printf("[FAIL] port %d: %s\n", port, report.Detail)
			}
			if tErr != nil {
				return tErr
			}
			if !report.OK() {
				return fmt.Errorf("connectivity test failed: %s", report.Detail)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newListCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active tunnels",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, _, err := newManager()
			if err != nil {
				return err
			}
			infos := mgr.List()
			if jsonOut {
				return printJSON(infos)
			}
			fmt.Printf("%-8s %-28s %-24s %-10s %-8s %-10s\n", "LOCAL", "REMOTE", "BASTION", "STATE", "PID", "UPTIME(s)")
			for _, inf := range infos {
				fmt.Printf("%-8d %-28s %-24s %-10s %-8d %-10d\n",
					inf.Spec.LocalPort, inf.Spec.RemoteAddr(), inf.Spec.BastionHost,
					inf.State, inf.PID, inf.UptimeSec)
			}
			if len(infos) == 0 {
				fmt.Println("(no active tunnels)")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newProfilesCmd() *cobra.Command {
	root := &cobra.Command{Use: "profiles", Short: "Manage named tunnel profiles"}

	var jsonOut bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := profile.LoadAll()
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(profiles)
			}
			fmt.Printf("%-20s %-8s %-28s %-24s %s\n", "NAME", "LOCAL", "REMOTE", "BASTION", "USER")
			for _, p := range profiles {
				fmt.Printf("%-20s %-8d %-28s %-24s %s\n",
					p.Name, p.Spec.LocalPort, p.Spec.RemoteAddr(), p.Spec.BastionHost,
					util.EmptyDash(p.Spec.BastionUser))
			}
			return nil
		},
	}
	list.Flags().BoolVar(&jsonOut, "json", false, "output JSON")

	var flags specFlags
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or replace a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := model.TunnelSpec{
				LocalPort:   flags.localPort,
				RemoteHost:  flags.remoteHost,
				RemotePort:  flags.remotePort,
				BastionHost: flags.bastion,
				BastionUser: flags.user,
				KeyPath:     flags.key,
			}
			if err := tunnel.ValidateSpec(spec); err != nil {
				return err
			}
			if err := profile.Save(args[0], spec); err != nil {
				return err
			}
			fmt.Printf("saved profile %s\n", args[0])
			return nil
		},
	}
	flags.register(add)

	remove := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := profile.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("removed profile %s\n", args[0])
			return nil
		},
	}

	root.AddCommand(list, add, remove)
	return root
}

func newEventsCmd() *cobra.Command {
	var port int
	var eventType string
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the tunnel lifecycle journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := events.NewStore()
			evts, err := store.Read(events.Query{LocalPort: port, EventType: eventType, Limit: limit})
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(evts)
			}
			for _, evt := range evts {
				fmt.Printf("%s port=%d %s pid=%d %s\n",
					evt.Timestamp.Format(time.RFC3339), evt.LocalPort, evt.EventType, evt.PID, evt.Message)
			}
			if len(evts) == 0 {
				fmt.Println("(no events)")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "filter by local port")
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local preflight diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := doctor.Run()
			if err != nil {
				return err
			}
			if jsonOut {
				if err := printJSON(report); err != nil {
					return err
				}
			} else if len(report.Issues) == 0 {
				fmt.Println("no issues found")
			} else {
				for _, is := range report.Issues {
					fmt.Printf("[%s] %s %s: %s (%s)\n", is.Severity, is.Check, is.Target, is.Message, is.Recommendation)
				}
			}
			if report.HasHigh() {
				return fmt.Errorf("doctor found high severity issues")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newSSHCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ssh <profile>",
		Short: "Open an interactive shell on a profile's bastion host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sshexec.EnsureSSHBinary(); err != nil {
				return err
			}
			p, err := profile.Get(args[0])
			if err != nil {
				return err
			}
			return sshexec.RunInteractive(cmd.Context(), p.Spec)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
