// Package client is the CLI's view of the daemon: an HTTP client over
// the unix socket with typed wrappers for every endpoint.
package client
