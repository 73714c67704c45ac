package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hackstack/hack/pkg/daemon"
	"github.com/hackstack/hack/pkg/paths"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the control daemon",
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	Long: `Run the daemon in the foreground, holding the pidfile lock and the
unix socket until terminated. 'hack daemon start' spawns this command
in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, cfg, err := resolveEnv()
		if err != nil {
			return err
		}
		if err := p.Writable(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return daemon.Run(ctx, daemon.RunOptions{
			Paths:   p,
			Config:  cfg,
			Version: Version,
		})
	},
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := supervisor()
		if err != nil {
			return err
		}
		if err := s.Start(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("daemon is running")
		return nil
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := supervisor()
		if err != nil {
			return err
		}
		if err := s.Stop(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("daemon stopped")
		return nil
	},
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := supervisor()
		if err != nil {
			return err
		}
		if err := s.Restart(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("daemon is running")
		return nil
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report daemon process health",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := supervisor()
		if err != nil {
			return err
		}
		report := s.Status(cmd.Context())

		fmt.Printf("Status:   %s\n", report.Status)
		if report.PID > 0 {
			fmt.Printf("PID:      %d\n", report.PID)
		}
		fmt.Printf("Process:  %v\n", report.ProcessRunning)
		fmt.Printf("API:      %v\n", report.APIOk)
		fmt.Printf("Socket:   %v\n", report.SocketExists)
		fmt.Printf("Log file: %v\n", report.LogExists)
		if report.StaleReason != "" {
			fmt.Printf("Stale:    %s\n", report.StaleReason)
		}

		if report.Status != "running" {
			os.Exit(1)
		}
		return nil
	},
}

var daemonInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the daemon as a login service (macOS)",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := supervisor()
		if err != nil {
			return err
		}
		if err := s.Install(); err != nil {
			return err
		}
		fmt.Println("service installed")
		return nil
	},
}

func supervisor() (*daemon.Supervisor, error) {
	p, err := paths.Resolve()
	if err != nil {
		return nil, err
	}
	if err := p.Writable(); err != nil {
		return nil, err
	}
	return daemon.NewSupervisor(p)
}

func init() {
	daemonCmd.AddCommand(daemonRunCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonInstallCmd)
}
