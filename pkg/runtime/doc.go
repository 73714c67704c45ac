/*
Package runtime derives the container topology by shelling out to the
container runtime CLI. The daemon never drives a runtime API directly:
containers are enumerated with `ps --filter label=com.docker.compose.project`
and inspected in bulk, and the compose labels on each container map it back
to a project, service, and instance ordinal.

Projects whose compose working directory lives under the user state root
are classified as global infra (the daemon's own proxy/DNS/logging stacks)
and flagged so consumers can filter them.

An absent or unreachable runtime yields an empty inventory plus a
runtime-unavailable diagnostic; it is never a fatal error.
*/
package runtime
