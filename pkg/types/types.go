package types

import (
	"time"
)

// Project is a registered checkout-based project. Identity is the slug in
// Name; ID is minted once on insert and never changes, so external
// references (tokens, CLI output) key on it.
type Project struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	RepoRoot          string    `json:"repoRoot"`
	ProjectDir        string    `json:"projectDir"`
	DevHost           string    `json:"devHost,omitempty"`
	ConfigFingerprint string    `json:"configFingerprint,omitempty"`
	FirstSeenAt       time.Time `json:"firstSeenAt"`
	LastSeenAt        time.Time `json:"lastSeenAt"`
}

// TokenScope is the capability attached to a gateway token.
type TokenScope string

const (
	ScopeRead  TokenScope = "read"
	ScopeWrite TokenScope = "write"
)

// Valid reports whether the scope is one of the known values.
func (s TokenScope) Valid() bool {
	return s == ScopeRead || s == ScopeWrite
}

// GatewayToken is the persisted record of a gateway credential. The
// plaintext secret is returned exactly once from mint and never stored;
// Hash is a salted digest of it.
type GatewayToken struct {
	ID        string     `json:"id"`
	Label     string     `json:"label,omitempty"`
	Scope     TokenScope `json:"scope"`
	Hash      string     `json:"hash"`
	ProjectID string     `json:"projectId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	RevokedAt *time.Time `json:"revokedAt"`
}

// Revoked reports whether the token has been revoked.
func (t *GatewayToken) Revoked() bool {
	return t.RevokedAt != nil
}

// ContainerState mirrors the container runtime's state vocabulary.
type ContainerState string

const (
	ContainerRunning    ContainerState = "running"
	ContainerExited     ContainerState = "exited"
	ContainerRestarting ContainerState = "restarting"
	ContainerPaused     ContainerState = "paused"
	ContainerCreated    ContainerState = "created"
	ContainerUnknown    ContainerState = "unknown"
)

// ParseContainerState maps free-form runtime state text to a ContainerState.
func ParseContainerState(s string) ContainerState {
	switch ContainerState(s) {
	case ContainerRunning, ContainerExited, ContainerRestarting, ContainerPaused, ContainerCreated:
		return ContainerState(s)
	default:
		return ContainerUnknown
	}
}

// ContainerRecord is a single container as reported by the runtime,
// enriched with its compose labels. Derived on demand, never persisted.
type ContainerRecord struct {
	ID              string         `json:"id"`
	ProjectLabel    string         `json:"projectLabel"`
	ServiceLabel    string         `json:"serviceLabel"`
	InstanceOrdinal int            `json:"instanceOrdinal"`
	State           ContainerState `json:"state"`
	Status          string         `json:"status"`
	WorkingDir      string         `json:"workingDir,omitempty"`
	OneOff          bool           `json:"oneOff"`
}

// ProjectStatus is the rolled-up state of one project in a snapshot.
type ProjectStatus string

const (
	ProjectRunning      ProjectStatus = "running"
	ProjectStopped      ProjectStatus = "stopped"
	ProjectMissing      ProjectStatus = "missing"
	ProjectUnregistered ProjectStatus = "unregistered"
)

// ProjectProjection is one project's entry in a StatusSnapshot.
type ProjectProjection struct {
	ID              string        `json:"id,omitempty"`
	Name            string        `json:"name"`
	RepoRoot        string        `json:"repoRoot,omitempty"`
	DevHost         string        `json:"devHost,omitempty"`
	Status          ProjectStatus `json:"status"`
	DefinedServices []string      `json:"definedServices,omitempty"`
	RuntimeServices []string      `json:"runtimeServices,omitempty"`
	RunningCount    int           `json:"runningCount"`
	Containers      int           `json:"containers"`
}

// DaemonSection reports the daemon's own process state in a snapshot.
type DaemonSection struct {
	PID           int       `json:"pid"`
	Ready         bool      `json:"ready"`
	PIDFileExists bool      `json:"pidFileExists"`
	SocketExists  bool      `json:"socketExists"`
	StaleReason   string    `json:"staleReason,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
}

// RuntimeSection carries the runtime health counters. The counters survive
// daemon restarts via the counters sidecar document.
type RuntimeSection struct {
	OK            bool       `json:"ok"`
	LastCheckedAt time.Time  `json:"lastCheckedAt"`
	LastOkAt      *time.Time `json:"lastOkAt,omitempty"`
	ResetAt       *time.Time `json:"resetAt,omitempty"`
	ResetCount    int        `json:"resetCount"`
	Error         string     `json:"error,omitempty"`
}

// ExposureKind names a remote-access channel for the gateway.
type ExposureKind string

const (
	ExposureLocalNetwork ExposureKind = "local-network"
	ExposureMeshVPN      ExposureKind = "mesh-vpn"
	ExposurePublicTunnel ExposureKind = "public-tunnel"
)

// ExposureState is the evaluated state of one exposure channel.
type ExposureState string

const (
	ExposureDisabled    ExposureState = "disabled"
	ExposureNeedsConfig ExposureState = "needs-config"
	ExposureConfigured  ExposureState = "configured"
	ExposureRunning     ExposureState = "running"
	ExposureBlocked     ExposureState = "blocked"
	ExposureUnknown     ExposureState = "unknown"
)

// Exposure is one channel's entry in the gateway section.
type Exposure struct {
	Kind    ExposureKind  `json:"kind"`
	State   ExposureState `json:"state"`
	Message string        `json:"message,omitempty"`
}

// GatewaySection reports gateway configuration and token counts.
type GatewaySection struct {
	Enabled     bool       `json:"enabled"`
	Bind        string     `json:"bind,omitempty"`
	Port        int        `json:"port,omitempty"`
	AllowWrites bool       `json:"allowWrites"`
	Exposures   []Exposure `json:"exposures"`
	TokensLive  int        `json:"tokensLive"`
	TokensTotal int        `json:"tokensTotal"`
}

// SummarySection is the per-subsystem rollup. OK is true iff every other
// flag is true.
type SummarySection struct {
	OK       bool `json:"ok"`
	Runtime  bool `json:"runtime"`
	Proxy    bool `json:"proxy"`
	Logging  bool `json:"logging"`
	Networks bool `json:"networks"`
}

// ProbeOutcome is the result of one health probe in a snapshot.
type ProbeOutcome struct {
	Name       string `json:"name"`
	Status     string `json:"status"` // ok, warn, error
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// StatusSnapshot is the versioned aggregate produced by the reconciler.
// Snapshots are generated on demand and never stored; Version increases
// monotonically for the lifetime of the daemon process.
type StatusSnapshot struct {
	Version     uint64              `json:"version"`
	GeneratedAt time.Time           `json:"generatedAt"`
	Daemon      DaemonSection       `json:"daemon"`
	Runtime     RuntimeSection      `json:"runtime"`
	Projects    []ProjectProjection `json:"projects"`
	Gateway     GatewaySection      `json:"gateway"`
	Probes      []ProbeOutcome      `json:"probes,omitempty"`
	Summary     SummarySection      `json:"summary"`
}

// LogSource identifies where a log line came from.
type LogSource string

const (
	SourceContainerRuntime LogSource = "container-runtime"
	SourceLogStore         LogSource = "log-store"
)

// LogLevel is the normalized severity of a log entry.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is a canonical structured log event. Entries are transient; the
// daemon never persists them.
type LogEntry struct {
	Source    LogSource         `json:"source"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
	Level     LogLevel          `json:"level"`
	Service   string            `json:"service,omitempty"`
	Project   string            `json:"project,omitempty"`
	Instance  string            `json:"instance,omitempty"`
	Stream    string            `json:"stream,omitempty"` // stdout or stderr
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Raw       string            `json:"raw"`
}

// Readiness is the daemon's startup phase.
type Readiness string

const (
	ReadinessStarting Readiness = "starting"
	ReadinessRunning  Readiness = "running"
)

// DaemonState describes a daemon process as seen by the supervisor.
type DaemonState struct {
	PID        int       `json:"pid"`
	SocketPath string    `json:"socketPath"`
	PIDPath    string    `json:"pidPath"`
	LogPath    string    `json:"logPath"`
	StartedAt  time.Time `json:"startedAt"`
	Readiness  Readiness `json:"readiness"`
}

// SupervisorStatus is the combined liveness report returned by the
// supervisor's status operation.
type SupervisorStatus struct {
	Status         string `json:"status"` // running, starting, stale, stopped
	PID            int    `json:"pid,omitempty"`
	ProcessRunning bool   `json:"processRunning"`
	APIOk          bool   `json:"apiOk"`
	SocketExists   bool   `json:"socketExists"`
	LogExists      bool   `json:"logExists"`
	StaleReason    string `json:"staleReason,omitempty"`
}
