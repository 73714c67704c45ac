package status

import (
	"fmt"
	"os/exec"

	"github.com/hackstack/hack/pkg/config"
	"github.com/hackstack/hack/pkg/types"
)

// exposureKinds is the evaluation order; it is also the output order.
var exposureKinds = []types.ExposureKind{
	types.ExposureLocalNetwork,
	types.ExposureMeshVPN,
	types.ExposurePublicTunnel,
}

// lookPath reports whether a dependency binary is installed.
func lookPath(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}

func evaluateExposures(cfg *config.Config, daemonUp bool, depInstalled func(string) bool) []types.Exposure {
	out := make([]types.Exposure, 0, len(exposureKinds))
	for _, kind := range exposureKinds {
		out = append(out, evaluateExposure(kind, cfg, daemonUp, depInstalled))
	}
	return out
}

// evaluateExposure runs the exposure state machine for one channel. The
// states are recomputed on every snapshot, never persisted. blocked wins
// over needs-config; unknown is reserved for a malformed dependency
// report, which the binary-presence check here cannot produce.
func evaluateExposure(kind types.ExposureKind, cfg *config.Config, daemonUp bool, depInstalled func(string) bool) types.Exposure {
	exp := cfg.Exposure(string(kind))

	enabled := exp.Enabled
	if kind == types.ExposureLocalNetwork {
		// Local-network exposure rides on the gateway bind itself; it
		// needs no separate extension toggle.
		enabled = enabled || cfg.Gateway.Enabled
	}
	if !enabled {
		return types.Exposure{Kind: kind, State: types.ExposureDisabled}
	}

	// Hard blockers beat configuration gaps.
	if exp.Dependency != "" && !depInstalled(exp.Dependency) {
		return types.Exposure{
			Kind:    kind,
			State:   types.ExposureBlocked,
			Message: fmt.Sprintf("dependency %q is not installed", exp.Dependency),
		}
	}
	if !daemonUp {
		return types.Exposure{Kind: kind, State: types.ExposureBlocked, Message: "daemon is not running"}
	}
	if kind == types.ExposureLocalNetwork && loopbackBind(cfg.Gateway.Bind) {
		return types.Exposure{
			Kind:    kind,
			State:   types.ExposureBlocked,
			Message: fmt.Sprintf("gateway bound to loopback %s", cfg.Gateway.Bind),
		}
	}

	if missing := missingConfig(kind, exp); missing != "" {
		return types.Exposure{
			Kind:    kind,
			State:   types.ExposureNeedsConfig,
			Message: fmt.Sprintf("missing %s", missing),
		}
	}

	if !cfg.Gateway.Enabled {
		// Fully configured, but the gateway listener is off so the
		// channel is not serving yet.
		return types.Exposure{Kind: kind, State: types.ExposureConfigured, Message: "gateway disabled"}
	}
	return types.Exposure{Kind: kind, State: types.ExposureRunning}
}

// missingConfig names the first absent required field, or "".
func missingConfig(kind types.ExposureKind, exp config.ExposureConfig) string {
	switch kind {
	case types.ExposureMeshVPN:
		if exp.Dependency == "" {
			return "dependency"
		}
	case types.ExposurePublicTunnel:
		if exp.Dependency == "" {
			return "dependency"
		}
		if exp.Hostname == "" {
			return "hostname"
		}
	}
	return ""
}

func loopbackBind(bind string) bool {
	return bind == "" || bind == "127.0.0.1" || bind == "localhost" || bind == "::1"
}
