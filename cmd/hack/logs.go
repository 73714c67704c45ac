package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hackstack/hack/pkg/logs"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Tail logs for a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		services, _ := cmd.Flags().GetStringSlice("service")
		tail, _ := cmd.Flags().GetInt("tail")
		since, _ := cmd.Flags().GetString("since")
		follow, _ := cmd.Flags().GetBool("follow")

		if project == "" {
			return usageErrorf("--project is required")
		}

		query := url.Values{}
		query.Set("project", project)
		for _, svc := range services {
			query.Add("service", svc)
		}
		if tail > 0 {
			query.Set("tail", strconv.Itoa(tail))
		}
		if since != "" {
			if _, err := time.Parse(time.RFC3339, since); err != nil {
				return usageErrorf("--since must be an RFC3339 timestamp")
			}
			query.Set("since", since)
		}
		if follow {
			query.Set("follow", "true")
		}

		c, err := apiClient()
		if err != nil {
			return err
		}
		return c.StreamLogs(cmd.Context(), query, printLogEvent)
	},
}

func printLogEvent(event logs.Event) error {
	switch event.Type {
	case logs.EventLog:
		entry := event.Entry
		ts := ""
		if entry.Timestamp != nil {
			ts = entry.Timestamp.Format("15:04:05.000") + " "
		}
		service := entry.Service
		if entry.Instance != "" {
			service += "-" + entry.Instance
		}
		fmt.Printf("%s%-16s %-5s %s\n", ts, service, entry.Level, entry.Message)
	case logs.EventError:
		fmt.Fprintf(os.Stderr, "! %s\n", event.Reason)
	case logs.EventEnd:
		if event.Reason != "eof" {
			fmt.Fprintf(os.Stderr, "stream ended: %s\n", event.Reason)
		}
	}
	return nil
}

func init() {
	logsCmd.Flags().String("project", "", "project name (required)")
	logsCmd.Flags().StringSlice("service", nil, "limit to specific services")
	logsCmd.Flags().Int("tail", 100, "number of historical lines to replay")
	logsCmd.Flags().String("since", "", "replay from an RFC3339 timestamp")
	logsCmd.Flags().BoolP("follow", "f", false, "keep streaming new entries")
}
