/*
Package types defines the core data structures shared across the hack
daemon and CLI.

It contains the project registry record, gateway token record, derived
container inventory types, the versioned status snapshot and all of its
sections, canonical log entries, and the supervisor's daemon state report.
The stable error-code taxonomy that crosses the API boundary also lives
here (see errors.go).

All types are designed to be:
  - Serializable (JSON, camelCase keys, RFC3339 timestamps)
  - Immutable where possible (use pointers for updates)
  - Self-documenting (typed string enums with constants)

Thread safety: values are read-safe; mutations must be synchronized by the
owning store (pkg/registry, pkg/token) or built fresh per snapshot
(pkg/status).
*/
package types
