package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hackstack/hack/pkg/client"
	"github.com/hackstack/hack/pkg/config"
	"github.com/hackstack/hack/pkg/log"
	"github.com/hackstack/hack/pkg/paths"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// errUsage marks argument errors so main can exit 2 instead of 1.
var errUsage = errors.New("usage")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errUsage)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hack",
	Short: "hack - local development environment control plane",
	Long: `hack keeps a per-user control daemon that tracks your checked-out
projects, their container stacks, gateway access tokens and the health
of the shared development services (proxy, DNS, log store).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Init(log.Config{Level: log.WarnLevel, Output: os.Stderr})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"hack version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(tokensCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
}

// resolveEnv loads the state root and its config document.
func resolveEnv() (*paths.Paths, *config.Config, error) {
	p, err := paths.Resolve()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(p.ConfigFile)
	if err != nil {
		return nil, nil, err
	}
	return p, cfg, nil
}

// apiClient builds the daemon client for the resolved socket.
func apiClient() (*client.Client, error) {
	p, err := paths.Resolve()
	if err != nil {
		return nil, err
	}
	return client.New(p.SocketPath), nil
}
