// Package daemon runs the control daemon's foreground loop and the
// supervisor that manages it as a background process.
package daemon
