// Package logs converts raw lines from the container runtime and the log
// store into canonical entries and fans them out to connected readers
// over bounded queues.
package logs
