// Package paths resolves the per-user state root (~/.hack by default,
// HACK_STATE_ROOT to override) and mints the well-known file locations
// under it. It also owns pidfile/socket arbitration: a daemon acquires
// exclusivity here before serving, stale state left by a crashed daemon is
// detected and cleared, and a live daemon is never clobbered.
package paths
