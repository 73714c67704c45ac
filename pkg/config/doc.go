// Package config loads the optional configuration document at
// <root>/config.yaml: gateway bind policy, per-exposure settings, and the
// enabled flag per extension namespace. Extensions are registered static
// handlers compiled into the binary; the document only switches them on.
package config
