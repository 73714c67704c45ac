// Package status assembles versioned StatusSnapshots from the registry,
// the container inventory, the token store, the gateway configuration and
// the health probe set. Runtime-health counters persist across restarts
// via a sidecar document under the state root.
package status
