// Package log wraps zerolog with the daemon's logging conventions: a
// global logger initialized once, component-scoped child loggers, JSON
// lines appended to hackd.log when running as the daemon, and console
// output on stderr for CLI use.
package log
