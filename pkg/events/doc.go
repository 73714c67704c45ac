// Package events fans status-change notifications out to /v1/events
// subscribers. Events carry only the new snapshot version; clients pull
// the full snapshot when they care.
package events
