package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hackstack/hack/pkg/client"
	"github.com/hackstack/hack/pkg/registry"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage the project registry",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		projects, err := c.Projects(cmd.Context())
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects registered")
			return nil
		}

		fmt.Printf("%-20s %-38s %s\n", "NAME", "ID", "REPO ROOT")
		for _, p := range projects {
			fmt.Printf("%-20s %-38s %s\n", p.Name, p.ID, p.RepoRoot)
		}
		return nil
	},
}

var projectsAddCmd = &cobra.Command{
	Use:   "add [path]",
	Short: "Register the project at path (default: current directory)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return usageErrorf("invalid path %q", dir)
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			return usageErrorf("%s is not a directory", abs)
		}

		name, _ := cmd.Flags().GetString("name")
		devHost, _ := cmd.Flags().GetString("dev-host")

		c, err := apiClient()
		if err != nil {
			return err
		}
		result, err := c.RegisterProject(cmd.Context(), client.UpsertProject{
			RepoRoot:   abs,
			ProjectDir: abs,
			Name:       name,
			DevHost:    devHost,
		})
		if err != nil {
			return err
		}

		switch result.Status {
		case registry.StatusInserted:
			fmt.Printf("Registered %s (%s)\n", result.Project.Name, result.Project.ID)
		case registry.StatusUpdated:
			fmt.Printf("Refreshed %s (%s)\n", result.Project.Name, result.Project.ID)
		}
		return nil
	},
}

var projectsPruneCmd = &cobra.Command{
	Use:   "prune <id>...",
	Short: "Remove projects from the registry",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		for _, id := range args {
			if err := c.RemoveProject(cmd.Context(), id); err != nil {
				return err
			}
		}
		fmt.Printf("Pruned %d project(s)\n", len(args))
		return nil
	},
}

func init() {
	projectsAddCmd.Flags().String("name", "", "explicit project name (default: directory basename)")
	projectsAddCmd.Flags().String("dev-host", "", "development hostname for the project")

	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsAddCmd)
	projectsCmd.AddCommand(projectsPruneCmd)
}
