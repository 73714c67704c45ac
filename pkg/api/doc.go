// Package api serves the daemon's HTTP surface: a unix-socket listener
// trusted by file permissions and an optional TCP gateway listener
// guarded by bearer tokens.
package api
