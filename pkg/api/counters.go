package api

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// CountersView is the JSON projection of the daemon's instrumentation
// served at /v1/metrics. The full Prometheus exposition lives at
// /metrics.
type CountersView struct {
	Requests        map[string]int64 `json:"requests"`
	StatusSnapshots StatusCounters   `json:"statusSnapshots"`
	LogPipeline     LogCounters      `json:"logPipeline"`
}

// StatusCounters summarizes snapshot generation.
type StatusCounters struct {
	Version       uint64  `json:"version"`
	Generations   uint64  `json:"generations"`
	LastAvgMs     float64 `json:"avgGenerationMs"`
	RuntimeResets int64   `json:"runtimeResets"`
}

// LogCounters summarizes the log pipeline's reader load.
type LogCounters struct {
	ActiveReaders int64 `json:"activeReaders"`
	DroppedEvents int64 `json:"droppedEvents"`
}

// gatherCounters projects the process-wide Prometheus registry into the
// JSON view.
func gatherCounters() (*CountersView, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	view := &CountersView{Requests: make(map[string]int64)}
	for _, family := range families {
		switch family.GetName() {
		case "hackd_api_requests_total":
			for _, m := range family.GetMetric() {
				view.Requests[labelValue(m, "path")] += int64(m.GetCounter().GetValue())
			}
		case "hackd_status_generation_seconds":
			for _, m := range family.GetMetric() {
				h := m.GetHistogram()
				view.StatusSnapshots.Generations = h.GetSampleCount()
				if h.GetSampleCount() > 0 {
					view.StatusSnapshots.LastAvgMs = h.GetSampleSum() / float64(h.GetSampleCount()) * 1000
				}
			}
		case "hackd_status_snapshot_version":
			for _, m := range family.GetMetric() {
				view.StatusSnapshots.Version = uint64(m.GetGauge().GetValue())
			}
		case "hackd_runtime_resets_total":
			for _, m := range family.GetMetric() {
				view.StatusSnapshots.RuntimeResets = int64(m.GetCounter().GetValue())
			}
		case "hackd_log_readers_active":
			for _, m := range family.GetMetric() {
				view.LogPipeline.ActiveReaders = int64(m.GetGauge().GetValue())
			}
		case "hackd_log_events_dropped_total":
			for _, m := range family.GetMetric() {
				view.LogPipeline.DroppedEvents = int64(m.GetCounter().GetValue())
			}
		}
	}
	return view, nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, pair := range m.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}
