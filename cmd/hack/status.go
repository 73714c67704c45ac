package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hackstack/hack/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the aggregated environment status",
	RunE: func(cmd *cobra.Command, args []string) error {
		includeAll, _ := cmd.Flags().GetBool("all")

		c, err := apiClient()
		if err != nil {
			return err
		}
		snap, err := c.Status(cmd.Context(), includeAll)
		if err != nil {
			return err
		}

		printSnapshot(snap)
		return nil
	},
}

func printSnapshot(snap *types.StatusSnapshot) {
	fmt.Printf("Environment: %s  (snapshot v%d)\n", okString(snap.Summary.OK), snap.Version)
	fmt.Printf("  runtime: %s  proxy: %s  logging: %s  networks: %s\n",
		okString(snap.Summary.Runtime), okString(snap.Summary.Proxy),
		okString(snap.Summary.Logging), okString(snap.Summary.Networks))

	if !snap.Runtime.OK && snap.Runtime.Error != "" {
		fmt.Printf("  runtime error: %s\n", snap.Runtime.Error)
	}
	if snap.Runtime.ResetCount > 0 {
		fmt.Printf("  runtime resets: %d\n", snap.Runtime.ResetCount)
	}

	fmt.Println()
	if len(snap.Projects) == 0 {
		fmt.Println("No projects")
	} else {
		fmt.Printf("%-20s %-13s %8s %10s\n", "PROJECT", "STATUS", "RUNNING", "CONTAINERS")
		for _, p := range snap.Projects {
			fmt.Printf("%-20s %-13s %8d %10d\n", p.Name, p.Status, p.RunningCount, p.Containers)
		}
	}

	if snap.Gateway.Enabled {
		fmt.Println()
		fmt.Printf("Gateway: %s:%d (writes: %v, tokens: %d live / %d total)\n",
			snap.Gateway.Bind, snap.Gateway.Port, snap.Gateway.AllowWrites,
			snap.Gateway.TokensLive, snap.Gateway.TokensTotal)
		for _, exp := range snap.Gateway.Exposures {
			line := fmt.Sprintf("  %-14s %s", exp.Kind, exp.State)
			if exp.Message != "" {
				line += "  (" + exp.Message + ")"
			}
			fmt.Println(line)
		}
	}

	if len(snap.Probes) > 0 {
		fmt.Println()
		fmt.Printf("%-12s %-6s %6s  %s\n", "PROBE", "STATUS", "MS", "MESSAGE")
		for _, probe := range snap.Probes {
			fmt.Printf("%-12s %-6s %6d  %s\n", probe.Name, probe.Status, probe.DurationMs, probe.Message)
		}
	}
}

func okString(ok bool) string {
	if ok {
		return "ok"
	}
	return "degraded"
}

func init() {
	statusCmd.Flags().Bool("all", false, "include unregistered compose projects")
}
