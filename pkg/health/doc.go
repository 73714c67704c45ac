/*
Package health provides the stateless probes the status reconciler
evaluates each snapshot: binary availability, TCP reachability of the
reverse proxy and logging stack, DNS resolution through the local
forwarder, named runtime network existence, well-known file presence, and
container runtime reachability.

All probes implement the Probe interface and are run concurrently by
RunAll under a clamped per-check timeout (default 1.5s, hard cap 5s). A
probe that runs out of time reports warn "timed out" rather than error:
slowness is suspicion, not proof.
*/
package health
