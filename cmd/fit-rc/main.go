// Command fit-rc is the process supervisor CLI: start, stop, restart,
// and report the status of the services declared in a services.yaml
// file, delegating to the long-running svscan daemon for anything
// that must keep running across CLI invocations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/supervisor"
	"github.com/forwardimpact/monorepo-sub001/internal/telemetry"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	logger := telemetry.NewNoopLogger()
	ctx := context.Background()

	// FIT_SVSCAND_ROOT marks a re-exec'd daemon process: serve the
	// socket protocol instead of dispatching a CLI command.
	handled, err := supervisor.RunDaemonIfRequested(ctx, logger)
	if err != nil {
		slog.Error("svscan daemon failed", "error", err)
		os.Exit(1)
	}
	if handled {
		return
	}

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var (
		root         string
		servicesPath string
	)

	rootCmd := &cobra.Command{
		Use:          "fit-rc",
		Short:        "Control the fit process supervisor",
		Version:      fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&root, "root", envOr("FIT_RC_ROOT", "."), "supervisor root directory (data/ lives under it)")
	rootCmd.PersistentFlags().StringVarP(&servicesPath, "services", "s", envOr("FIT_RC_SERVICES", "services.yaml"), "path to the services.yaml declaration")

	loadManager := func() (*supervisor.Manager, error) {
		specs, err := supervisor.LoadServices(servicesPath)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", servicesPath, err)
		}
		return supervisor.NewManager(root, specs, logger), nil
	}

	rootCmd.AddCommand(
		buildStartCmd(loadManager),
		buildStopCmd(loadManager),
		buildRestartCmd(loadManager),
		buildStatusCmd(loadManager),
	)
	return rootCmd
}

type managerFactory func() (*supervisor.Manager, error)

func buildStartCmd(loadManager managerFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "start [service]",
		Short: "Start all services, or every service up to and including [service]",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager()
			if err != nil {
				return err
			}
			name := serviceArg(args)
			if err := mgr.Start(cmd.Context(), name); err != nil {
				return describeFailure(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "started")
			return nil
		},
	}
}

func buildStopCmd(loadManager managerFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "stop [service]",
		Short: "Stop all services, or every service from the end back through [service]",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager()
			if err != nil {
				return err
			}
			name := serviceArg(args)
			if err := mgr.Stop(cmd.Context(), name); err != nil {
				return describeFailure(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stopped")
			return nil
		},
	}
}

func buildRestartCmd(loadManager managerFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "restart [service]",
		Short: "Stop then start all services, or just [service]",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager()
			if err != nil {
				return err
			}
			name := serviceArg(args)
			if err := mgr.Restart(cmd.Context(), name); err != nil {
				return describeFailure(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "restarted")
			return nil
		},
	}
}

func buildStatusCmd(loadManager managerFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "status [service]",
		Short: "Report the state of every managed service, or just [service]",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager()
			if err != nil {
				return err
			}
			name := serviceArg(args)
			statuses, err := mgr.Status(cmd.Context(), name)
			if err != nil {
				return describeFailure(err)
			}
			out := cmd.OutOrStdout()
			for _, st := range statuses {
				fmt.Fprintf(out, "%-24s %-8s %d\n", st.Name, st.State, st.PID)
			}
			return nil
		},
	}
}

func serviceArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// describeFailure distinguishes "daemon not running" (a NotFound
// fault raised by Manager.Status when svscan.sock has no listener;
// Manager.Stop returns nil in that case) from any other failure to
// send a command.
func describeFailure(err error) error {
	if fault, ok := faults.As(err); ok && fault.Kind == faults.NotFound {
		return fmt.Errorf("daemon not running: %w", err)
	}
	return err
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
